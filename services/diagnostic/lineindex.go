// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagnostic

import (
	"sort"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/quillcheck/quillcheck/services/lsp"
)

// LineIndex converts byte offsets in a document to LSP positions
// (zero-based line, UTF-16 character). Built once per document
// version and reused for every diagnostic in it.
type LineIndex struct {
	text       string
	lineStarts []int
}

// NewLineIndex indexes the line starts of text.
func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{text: text, lineStarts: starts}
}

// PositionFor converts a byte offset to a position. Offsets beyond
// the text clamp to the end of the last line.
func (ix *LineIndex) PositionFor(offset int) lsp.Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(ix.text) {
		offset = len(ix.text)
	}
	line := sort.Search(len(ix.lineStarts), func(i int) bool {
		return ix.lineStarts[i] > offset
	}) - 1

	char := 0
	for i := ix.lineStarts[line]; i < offset; {
		r, size := utf8.DecodeRuneInString(ix.text[i:])
		i += size
		char += len(utf16.Encode([]rune{r}))
	}
	return lsp.Position{Line: uint32(line), Character: uint32(char)}
}

// RangeFor converts a byte range to an LSP range.
func (ix *LineIndex) RangeFor(start, end int) lsp.Range {
	return lsp.Range{Start: ix.PositionFor(start), End: ix.PositionFor(end)}
}

// OffsetFor converts a position back to a byte offset, clamping
// positions past the end of a line or the document. The inverse of
// PositionFor for valid positions.
func (ix *LineIndex) OffsetFor(pos lsp.Position) int {
	if int(pos.Line) >= len(ix.lineStarts) {
		return len(ix.text)
	}
	i := ix.lineStarts[pos.Line]
	lineEnd := len(ix.text)
	if int(pos.Line)+1 < len(ix.lineStarts) {
		lineEnd = ix.lineStarts[pos.Line+1] - 1
	}
	char := int(pos.Character)
	for char > 0 && i < lineEnd {
		r, size := utf8.DecodeRuneInString(ix.text[i:])
		i += size
		char -= len(utf16.Encode([]rune{r}))
	}
	return i
}
