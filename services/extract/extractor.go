// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extract locates prose spans in a syntax tree and tracks
// exact offset mappings through the text transforms that turn raw
// captures into checkable blocks.
package extract

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ResultKind tags how a block's text should be normalized before it
// is checked.
type ResultKind string

const (
	// KindMarkdown marks blocks whose text is Markdown and needs
	// markup stripped before checking (doc comments in most
	// languages render as Markdown).
	KindMarkdown ResultKind = "markdown"

	// KindPlainText marks blocks whose text is already plain prose.
	KindPlainText ResultKind = "plaintext"
)

// Node is one compiled extraction rule: a tree-sitter query plus the
// per-capture transforms that strip markers from whatever it matches.
// The grammar registry compiles these at load time; a Node in hand is
// always valid.
type Node struct {
	// Kind tags every block this node produces.
	Kind ResultKind

	// Query is the compiled tree-sitter query.
	Query *sitter.Query

	// Transforms maps capture names to their ordered rewrite lists.
	Transforms map[string][]Transform
}

// Block is a contiguous run of matched captures of one result kind,
// concatenated in source order with a single newline between
// originally-adjacent captures.
type Block struct {
	// Kind is the result kind of the node that produced the block.
	Kind ResultKind

	// Text is the transformed, concatenated block text.
	Text string

	// Map translates Text offsets back to original byte offsets.
	Map *OffsetMap

	// StartByte and EndByte give the block's extent in the original
	// source (first capture start to last capture end).
	StartByte int
	EndByte   int
}

// capture is a single query capture in source order.
type capture struct {
	start int
	end   int
	name  string
	kind  ResultKind
	node  *Node
}

// Extract runs every extraction rule over the tree in declaration
// order and returns the merged, transformed blocks, sorted by start
// offset and non-overlapping. Zero matches is not an error: the
// result is simply empty.
func Extract(nodes []*Node, tree *sitter.Tree, src []byte) []Block {
	var blocks []Block
	for _, node := range nodes {
		captures := runQuery(node, tree, src)
		blocks = append(blocks, mergeCaptures(captures, src)...)
	}

	// Stable keeps rule declaration order for equal starts, so the
	// earlier rule wins ties below.
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].StartByte < blocks[j].StartByte })

	// Blocks for a document must be non-overlapping. Queries from
	// different rules can in principle capture the same span; the
	// earlier block wins.
	out := blocks[:0]
	lastEnd := -1
	for _, b := range blocks {
		if b.StartByte < lastEnd {
			continue
		}
		out = append(out, b)
		lastEnd = b.EndByte
	}
	return out
}

// runQuery collects this node's captures in source order. Captures
// whose name starts with '_' are anchors for the query author and are
// never extracted.
func runQuery(node *Node, tree *sitter.Tree, src []byte) []capture {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(node.Query, tree.RootNode())

	var captures []capture
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, src)
		for _, c := range match.Captures {
			name := node.Query.CaptureNameForId(c.Index)
			if strings.HasPrefix(name, "_") {
				continue
			}
			captures = append(captures, capture{
				start: int(c.Node.StartByte()),
				end:   int(c.Node.EndByte()),
				name:  name,
				kind:  node.Kind,
				node:  node,
			})
		}
	}

	sort.Slice(captures, func(i, j int) bool { return captures[i].start < captures[j].start })
	return captures
}

// mergeCaptures groups textually adjacent captures into blocks. Two
// captures are adjacent when the bytes between them are pure
// whitespace containing at most one newline; a blank line or any
// intervening non-captured token starts a new block.
func mergeCaptures(captures []capture, src []byte) []Block {
	var blocks []Block
	var group []capture
	flush := func() {
		if len(group) > 0 {
			blocks = append(blocks, buildBlock(group, src))
			group = nil
		}
	}
	for _, c := range captures {
		if c.end <= c.start {
			continue
		}
		if len(group) > 0 {
			prev := group[len(group)-1]
			if c.start < prev.end || !mergeableGap(src[prev.end:c.start]) {
				flush()
			}
		}
		group = append(group, c)
	}
	flush()
	return blocks
}

// mergeableGap reports whether the bytes between two captures allow
// them to share a block: whitespace only, and no blank line.
func mergeableGap(gap []byte) bool {
	newlines := 0
	for _, b := range gap {
		switch b {
		case '\n':
			newlines++
			if newlines > 1 {
				return false
			}
		case ' ', '\t', '\r':
		default:
			return false
		}
	}
	return true
}

// buildBlock transforms each capture in isolation, then concatenates
// the results with single newline separators, assembling the block
// offset map from the per-capture sub-maps.
func buildBlock(group []capture, src []byte) Block {
	var text strings.Builder
	mb := NewMapBuilder(group[0].start, 0)
	for i, c := range group {
		if i > 0 {
			text.WriteByte('\n')
			mb.Insert(1)
		}
		raw := string(src[c.start:c.end])
		transformed, m := applyAll(c.node.Transforms[c.name], raw)
		text.WriteString(transformed)
		mb.Append(m, c.start)
	}
	return Block{
		Kind:      group[0].kind,
		Text:      text.String(),
		Map:       mb.Build(),
		StartByte: group[0].start,
		EndByte:   group[len(group)-1].end,
	}
}
