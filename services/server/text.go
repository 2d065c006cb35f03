// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"github.com/quillcheck/quillcheck/services/diagnostic"
	"github.com/quillcheck/quillcheck/services/lsp"
)

// applyChanges folds incremental content changes into a document. A
// change without a range replaces the whole text. Positions are
// UTF-16 based, so each change resolves through a fresh line index.
func applyChanges(text string, changes []lsp.TextDocumentContentChangeEvent) string {
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		ix := diagnostic.NewLineIndex(text)
		start := ix.OffsetFor(change.Range.Start)
		end := ix.OffsetFor(change.Range.End)
		if end < start {
			end = start
		}
		text = text[:start] + change.Text + text[end:]
	}
	return text
}
