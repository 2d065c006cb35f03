// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package diagnostic translates checker issues from segment space
// back to document positions and shapes them as LSP diagnostics.
package diagnostic

import (
	"encoding/json"
	"sort"

	"github.com/quillcheck/quillcheck/services/checker"
	"github.com/quillcheck/quillcheck/services/extract"
	"github.com/quillcheck/quillcheck/services/lsp"
)

// Source tags every diagnostic this server publishes.
const Source = "quillcheck"

// FixData rides in Diagnostic.Data through the editor and back into
// codeAction requests.
type FixData struct {
	Replacements []string `json:"replacements,omitempty"`
}

// SegmentIssues pairs one checked segment's map with its findings.
// The map translates segment offsets to block offsets.
type SegmentIssues struct {
	Map    *extract.OffsetMap
	Issues []checker.Issue
}

// ForBlock maps every issue found in a block's segments to document
// diagnostics. Each issue offset travels segment → block → source
// through the composed maps; ranges that widen stay inside the block
// by construction, so a diagnostic can never point outside the text
// the author wrote.
func ForBlock(ix *LineIndex, block extract.Block, segments []SegmentIssues) []lsp.Diagnostic {
	var out []lsp.Diagnostic
	for _, seg := range segments {
		srcMap := block.Map.Compose(seg.Map)
		for _, issue := range seg.Issues {
			r := srcMap.ToSource(extract.Range{
				Start: issue.Offset,
				End:   issue.Offset + issue.Length,
			})
			if r.Len() == 0 {
				continue
			}
			out = append(out, lsp.Diagnostic{
				Range:    ix.RangeFor(r.Start, r.End),
				Severity: lsp.SeverityInformation,
				Code:     issue.RuleID,
				Source:   Source,
				Message:  issue.Message,
				Data:     marshalFixData(issue.Replacements),
			})
		}
	}
	return out
}

// Sort orders diagnostics by position, the order editors expect.
func Sort(diags []lsp.Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i].Range.Start, diags[j].Range.Start
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Character < b.Character
	})
}

// Actions builds quick-fix code actions for the diagnostics an editor
// echoed back. One action per replacement, carrying a WorkspaceEdit
// that swaps the diagnosed range for the suggestion.
func Actions(uri string, diags []lsp.Diagnostic) []lsp.CodeAction {
	var actions []lsp.CodeAction
	for _, d := range diags {
		if d.Source != Source || len(d.Data) == 0 {
			continue
		}
		var data FixData
		if err := json.Unmarshal(d.Data, &data); err != nil {
			continue
		}
		for _, rep := range data.Replacements {
			actions = append(actions, lsp.CodeAction{
				Title:       "Replace with ‘" + rep + "’",
				Kind:        lsp.CodeActionKindQuickFix,
				Diagnostics: []lsp.Diagnostic{d},
				Edit: &lsp.WorkspaceEdit{
					Changes: map[string][]lsp.TextEdit{
						uri: {{Range: d.Range, NewText: rep}},
					},
				},
			})
		}
	}
	return actions
}

func marshalFixData(replacements []string) json.RawMessage {
	if len(replacements) == 0 {
		return nil
	}
	data, err := json.Marshal(FixData{Replacements: replacements})
	if err != nil {
		return nil
	}
	return data
}
