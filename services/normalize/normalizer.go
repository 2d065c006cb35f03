// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package normalize reduces extracted block text to plain prose
// segments suitable for a grammar checker, keeping an exact offset
// map from every segment back to its block.
//
// Markdown blocks are parsed with the tree-sitter Markdown block
// grammar: code blocks, HTML blocks and link reference definitions
// are dropped wholesale, and inline markup (code spans, link
// destinations, emphasis markers, escapes) is cut out of each inline
// run. Plain-text blocks pass through verbatim.
package normalize

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	tree_sitter_markdown "github.com/smacker/go-tree-sitter/markdown/tree-sitter-markdown"

	"github.com/quillcheck/quillcheck/pkg/logging"
	"github.com/quillcheck/quillcheck/services/extract"
)

// Segment is one checkable run of plain prose.
type Segment struct {
	// Text is the prose with markup removed.
	Text string

	// Map translates Text offsets back to block-text offsets. Compose
	// it with the block's own map to reach original source offsets.
	Map *extract.OffsetMap
}

// Normalizer converts extracted blocks into checkable segments.
//
// Thread Safety: safe for concurrent use; each Normalize call uses
// its own parser.
type Normalizer struct {
	logger *logging.Logger
}

// New builds a Normalizer. A nil logger is replaced with a no-op one.
func New(logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Normalizer{logger: logger}
}

// Normalize splits a block into prose segments. Blocks that contain
// no prose (an all-code comment, say) yield an empty slice; that is
// not an error.
func (n *Normalizer) Normalize(ctx context.Context, block extract.Block) []Segment {
	if block.Text == "" {
		return nil
	}
	if block.Kind == extract.KindPlainText {
		return []Segment{{
			Text: block.Text,
			Map:  extract.Identity(len(block.Text)),
		}}
	}
	return n.normalizeMarkdown(ctx, block.Text)
}

func (n *Normalizer) normalizeMarkdown(ctx context.Context, text string) []Segment {
	src := []byte(text)
	parser := sitter.NewParser()
	parser.SetLanguage(tree_sitter_markdown.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		// Markdown has no invalid inputs; a failure here is a
		// cancelled context or an exhausted parser. Checking the raw
		// text verbatim beats silently checking nothing.
		n.logger.Warn("markdown parse failed, treating block as plain text", "error", err)
		return []Segment{{Text: text, Map: extract.Identity(len(text))}}
	}
	defer tree.Close()

	var segments []Segment
	for _, inline := range collectInlines(tree.RootNode()) {
		segments = append(segments, segmentInline(text, inline)...)
	}
	return segments
}

// collectInlines walks the block tree and returns the byte ranges of
// every inline node that sits in prose position. Code blocks, HTML
// blocks, link reference definitions and tables never contribute.
func collectInlines(node *sitter.Node) []extract.Range {
	var out []extract.Range
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case mdNodeFencedCodeBlock, mdNodeIndentedCodeBlock,
			mdNodeHTMLBlock, mdNodeLinkRefDef, mdNodePipeTable:
			return
		case mdNodeInline:
			out = append(out, extract.Range{
				Start: int(n.StartByte()),
				End:   int(n.EndByte()),
			})
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(node)
	return out
}

// cut is a span of inline markup to remove. A splitting cut (code
// span, autolink) also ends the current segment: the removed content
// was a standalone token, not punctuation around prose.
type cut struct {
	r     extract.Range
	split bool
}

// segmentInline slices one inline run into prose segments, removing
// markup and trimming surrounding whitespace.
func segmentInline(text string, inline extract.Range) []Segment {
	cuts := scanInline(text[inline.Start:inline.End], inline.Start)

	var segments []Segment
	var b strings.Builder
	mb := extract.NewMapBuilder(inline.Start, 0)

	flush := func(nextStart int) {
		if seg, ok := finishSegment(b.String(), mb.Build()); ok {
			segments = append(segments, seg)
		}
		b.Reset()
		mb = extract.NewMapBuilder(nextStart, 0)
	}

	pos := inline.Start
	for _, c := range cuts {
		if c.r.Start > pos {
			b.WriteString(text[pos:c.r.Start])
			mb.Keep(c.r.Start - pos)
		}
		if c.split {
			flush(c.r.End)
		} else {
			mb.Replace(c.r.Len(), 0)
		}
		pos = c.r.End
	}
	if inline.End > pos {
		b.WriteString(text[pos:inline.End])
		mb.Keep(inline.End - pos)
	}
	flush(inline.End)
	return segments
}

// finishSegment trims whitespace off both ends, composing a final
// sub-map so trimmed offsets still resolve. Whitespace-only runs are
// dropped.
func finishSegment(text string, m *extract.OffsetMap) (Segment, bool) {
	trimmed := strings.Trim(text, " \t\r\n")
	if trimmed == "" {
		return Segment{}, false
	}
	lead := len(text) - len(strings.TrimLeft(text, " \t\r\n"))
	if lead == 0 && len(trimmed) == len(text) {
		return Segment{Text: text, Map: m}, true
	}
	sub := extract.NewMapBuilder(lead, 0)
	sub.Keep(len(trimmed))
	return Segment{Text: trimmed, Map: m.Compose(sub.Build())}, true
}

// scanInline finds the markup spans inside one inline run. Offsets in
// the returned cuts are block-relative (base added).
func scanInline(s string, base int) []cut {
	var cuts []cut
	scanRange(s, 0, len(s), base, &cuts)
	return cuts
}

// scanRange scans s[lo:hi]. Link text recurses so code spans nested
// in links are still found.
func scanRange(s string, lo, hi, base int, cuts *[]cut) {
	i := lo
	for i < hi {
		switch s[i] {
		case '\\':
			if i+1 < hi {
				*cuts = append(*cuts, cut{r: extract.Range{Start: base + i, End: base + i + 1}})
				i += 2
				continue
			}
			i++
		case '`':
			n := runLen(s, i, hi, '`')
			if end, ok := findCodeSpanEnd(s, i+n, hi, n); ok {
				*cuts = append(*cuts, cut{r: extract.Range{Start: base + i, End: base + end}, split: true})
				i = end
				continue
			}
			i += n
		case '!':
			if i+1 < hi && s[i+1] == '[' {
				// The bang is markup; the bracket is handled next pass.
				*cuts = append(*cuts, cut{r: extract.Range{Start: base + i, End: base + i + 1}})
			}
			i++
		case '[':
			if textEnd, linkEnd, ok := parseLink(s, i, hi); ok {
				*cuts = append(*cuts, cut{r: extract.Range{Start: base + i, End: base + i + 1}})
				scanRange(s, i+1, textEnd, base, cuts)
				*cuts = append(*cuts, cut{r: extract.Range{Start: base + textEnd, End: base + linkEnd}})
				i = linkEnd
				continue
			}
			i++
		case '<':
			if end, ok := findAutolinkEnd(s, i, hi); ok {
				*cuts = append(*cuts, cut{r: extract.Range{Start: base + i, End: base + end}, split: true})
				i = end
				continue
			}
			i++
		case '*', '_':
			marker := s[i]
			n := runLen(s, i, hi, marker)
			if n <= 3 && isEmphasisRun(s, i, i+n, marker) {
				*cuts = append(*cuts, cut{r: extract.Range{Start: base + i, End: base + i + n}})
			}
			i += n
		default:
			i++
		}
	}
}

// runLen counts consecutive occurrences of ch starting at i.
func runLen(s string, i, hi int, ch byte) int {
	n := 0
	for i+n < hi && s[i+n] == ch {
		n++
	}
	return n
}

// findCodeSpanEnd looks for a closing backtick run of exactly n
// backticks, per the CommonMark code span rule. Returns the offset
// just past the closing run.
func findCodeSpanEnd(s string, from, hi, n int) (int, bool) {
	i := from
	for i < hi {
		if s[i] != '`' {
			i++
			continue
		}
		run := runLen(s, i, hi, '`')
		if run == n {
			return i + run, true
		}
		i += run
	}
	return 0, false
}

// parseLink matches `[text](dest)`, `[text][ref]` and `[text]` at
// position i. Returns the offset of the closing bracket of the text
// and the offset just past the whole construct.
func parseLink(s string, i, hi int) (textEnd, linkEnd int, ok bool) {
	depth := 0
	j := i
	for ; j < hi; j++ {
		switch s[j] {
		case '\\':
			j++
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				goto closed
			}
		}
	}
	return 0, 0, false

closed:
	textEnd = j
	linkEnd = j + 1
	if linkEnd < hi && s[linkEnd] == '(' {
		depth := 0
		for k := linkEnd; k < hi; k++ {
			switch s[k] {
			case '\\':
				k++
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return textEnd, k + 1, true
				}
			}
		}
		return 0, 0, false
	}
	if linkEnd < hi && s[linkEnd] == '[' {
		for k := linkEnd + 1; k < hi; k++ {
			if s[k] == ']' {
				return textEnd, k + 1, true
			}
			if s[k] == '\n' {
				break
			}
		}
		return 0, 0, false
	}
	// Shortcut reference link: just the brackets go.
	return textEnd, linkEnd, true
}

// findAutolinkEnd matches `<scheme:...>` autolinks. Raw HTML tags are
// left alone; unlike autolinks their contents are not prose that the
// surrounding sentence depends on, and cutting them without an HTML
// parser causes more harm than good.
func findAutolinkEnd(s string, i, hi int) (int, bool) {
	for j := i + 1; j < hi; j++ {
		switch s[j] {
		case '>':
			inner := s[i+1 : j]
			if strings.ContainsRune(inner, ':') && !strings.ContainsAny(inner, " \t") {
				return j + 1, true
			}
			return 0, false
		case ' ', '\t', '\n':
			return 0, false
		}
	}
	return 0, false
}

// isEmphasisRun applies a loose flanking test: a delimiter run counts
// as emphasis only when it touches non-space text, and underscores
// additionally never match inside a word (snake_case survives).
func isEmphasisRun(s string, lo, hi int, marker byte) bool {
	prevSpace := lo == 0 || isSpaceByte(s[lo-1])
	nextSpace := hi >= len(s) || isSpaceByte(s[hi])
	if prevSpace && nextSpace {
		return false
	}
	if marker == '_' {
		prevWord := lo > 0 && isWordByte(s[lo-1])
		nextWord := hi < len(s) && isWordByte(s[hi])
		if prevWord && nextWord {
			return false
		}
	}
	return true
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}
