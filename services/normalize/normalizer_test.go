// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package normalize

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcheck/quillcheck/services/extract"
)

func markdownBlock(text string) extract.Block {
	return extract.Block{
		Kind: extract.KindMarkdown,
		Text: text,
		Map:  extract.Identity(len(text)),
	}
}

func segmentTexts(segments []Segment) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = s.Text
	}
	return out
}

// roundTrip maps a substring of a segment back to block offsets and
// returns what the block text holds there.
func roundTrip(t *testing.T, blockText string, seg Segment, substr string) string {
	t.Helper()
	idx := strings.Index(seg.Text, substr)
	require.GreaterOrEqual(t, idx, 0, "segment should contain %q", substr)
	r := seg.Map.ToSource(extract.Range{Start: idx, End: idx + len(substr)})
	require.LessOrEqual(t, r.End, len(blockText))
	return blockText[r.Start:r.End]
}

func TestNormalizePlainTextPassthrough(t *testing.T) {
	n := New(nil)
	block := extract.Block{
		Kind: extract.KindPlainText,
		Text: "Exactly as written.",
		Map:  extract.Identity(19),
	}
	segs := n.Normalize(context.Background(), block)
	require.Len(t, segs, 1)
	assert.Equal(t, "Exactly as written.", segs[0].Text)

	r := segs[0].Map.ToSource(extract.Range{Start: 8, End: 10})
	assert.Equal(t, extract.Range{Start: 8, End: 10}, r)
}

func TestNormalizeEmptyBlock(t *testing.T) {
	n := New(nil)
	assert.Empty(t, n.Normalize(context.Background(), markdownBlock("")))
}

func TestNormalizeCodeSpanSplitsSegments(t *testing.T) {
	n := New(nil)
	text := "This is fine. `let x = 5;` Also fine."
	segs := n.Normalize(context.Background(), markdownBlock(text))

	require.Equal(t, []string{"This is fine.", "Also fine."}, segmentTexts(segs))
	assert.Equal(t, "fine", roundTrip(t, text, segs[0], "fine"))
	assert.Equal(t, "Also fine.", roundTrip(t, text, segs[1], "Also fine."))
}

func TestNormalizeCodeSpanOnly(t *testing.T) {
	n := New(nil)
	segs := n.Normalize(context.Background(), markdownBlock("`only code`"))
	assert.Empty(t, segs)
}

func TestNormalizeUnbalancedBackticksAreLiteral(t *testing.T) {
	n := New(nil)
	text := "a ` b"
	segs := n.Normalize(context.Background(), markdownBlock(text))
	require.Len(t, segs, 1)
	assert.Equal(t, "a ` b", segs[0].Text)
}

func TestNormalizeLinkKeepsTextDropsDestination(t *testing.T) {
	n := New(nil)
	text := "See [the docs](https://example.com/guide) for details."
	segs := n.Normalize(context.Background(), markdownBlock(text))

	require.Len(t, segs, 1)
	assert.Equal(t, "See the docs for details.", segs[0].Text)
	assert.Equal(t, "docs", roundTrip(t, text, segs[0], "docs"))
	assert.Equal(t, "details", roundTrip(t, text, segs[0], "details"))
}

func TestNormalizeReferenceLink(t *testing.T) {
	n := New(nil)
	text := "See [the docs][ref] here."
	segs := n.Normalize(context.Background(), markdownBlock(text))
	require.Len(t, segs, 1)
	assert.Equal(t, "See the docs here.", segs[0].Text)
}

func TestNormalizeImageAltText(t *testing.T) {
	n := New(nil)
	text := "Shown as ![a diagram](fig.png) above."
	segs := n.Normalize(context.Background(), markdownBlock(text))
	require.Len(t, segs, 1)
	assert.Equal(t, "Shown as a diagram above.", segs[0].Text)
}

func TestNormalizeAutolinkSplits(t *testing.T) {
	n := New(nil)
	text := "Visit <https://example.com> today."
	segs := n.Normalize(context.Background(), markdownBlock(text))
	assert.Equal(t, []string{"Visit", "today."}, segmentTexts(segs))
}

func TestNormalizeEmphasisMarkersRemoved(t *testing.T) {
	n := New(nil)
	text := "This is *really* **important** stuff."
	segs := n.Normalize(context.Background(), markdownBlock(text))
	require.Len(t, segs, 1)
	assert.Equal(t, "This is really important stuff.", segs[0].Text)
}

func TestNormalizeSnakeCaseSurvives(t *testing.T) {
	n := New(nil)
	text := "Call the foo_bar helper."
	segs := n.Normalize(context.Background(), markdownBlock(text))
	require.Len(t, segs, 1)
	assert.Equal(t, "Call the foo_bar helper.", segs[0].Text)
}

func TestNormalizeEscapeRemoved(t *testing.T) {
	n := New(nil)
	text := `a \* b`
	segs := n.Normalize(context.Background(), markdownBlock(text))
	require.Len(t, segs, 1)
	assert.Equal(t, "a * b", segs[0].Text)
}

func TestNormalizeFencedCodeBlockExcluded(t *testing.T) {
	n := New(nil)
	text := "Before the code.\n\n```go\nfunc main() {}\n```\n\nAfter the code.\n"
	segs := n.Normalize(context.Background(), markdownBlock(text))

	require.Equal(t, []string{"Before the code.", "After the code."}, segmentTexts(segs))
	assert.Equal(t, "After the code.", roundTrip(t, text, segs[1], "After the code."))
}

func TestNormalizeHeadingAndParagraph(t *testing.T) {
	n := New(nil)
	text := "# Getting Started\n\nInstall it first.\n"
	segs := n.Normalize(context.Background(), markdownBlock(text))

	require.Equal(t, []string{"Getting Started", "Install it first."}, segmentTexts(segs))
	assert.Equal(t, "Getting", roundTrip(t, text, segs[0], "Getting"))
}

func TestNormalizeBlockQuote(t *testing.T) {
	n := New(nil)
	text := "> Quoted prose here.\n"
	segs := n.Normalize(context.Background(), markdownBlock(text))
	require.Equal(t, []string{"Quoted prose here."}, segmentTexts(segs))
}

func TestNormalizeListItems(t *testing.T) {
	n := New(nil)
	text := "- First item.\n- Second item.\n"
	segs := n.Normalize(context.Background(), markdownBlock(text))
	require.Equal(t, []string{"First item.", "Second item."}, segmentTexts(segs))
}

func TestNormalizeLinkReferenceDefinitionExcluded(t *testing.T) {
	n := New(nil)
	text := "Some prose.\n\n[ref]: https://example.com\n"
	segs := n.Normalize(context.Background(), markdownBlock(text))
	require.Equal(t, []string{"Some prose."}, segmentTexts(segs))
}

func TestNormalizeTrimsWhitespace(t *testing.T) {
	n := New(nil)
	text := "Padded sentence.   `x` \n"
	segs := n.Normalize(context.Background(), markdownBlock(text))
	require.Equal(t, []string{"Padded sentence."}, segmentTexts(segs))
}

// Normalizing the same block twice yields identical segments and
// maps, so downstream cache keys are stable.
func TestNormalizeIsDeterministic(t *testing.T) {
	n := New(nil)
	text := "Prose with `code` and [a link](u) in it.\n\nSecond paragraph.\n"
	first := n.Normalize(context.Background(), markdownBlock(text))
	second := n.Normalize(context.Background(), markdownBlock(text))
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

// A segment range must always resolve inside its block, even through
// lossy cuts.
func TestNormalizeRangesStayInBlock(t *testing.T) {
	n := New(nil)
	text := "Mix of *emphasis*, `code`, [links](u), and <https://x.test> prose.\n"
	segs := n.Normalize(context.Background(), markdownBlock(text))
	require.NotEmpty(t, segs)
	for _, seg := range segs {
		for i := 0; i <= len(seg.Text); i++ {
			r := seg.Map.ToSource(extract.Range{Start: i, End: i})
			assert.GreaterOrEqual(t, r.Start, 0)
			assert.LessOrEqual(t, r.End, len(text))
		}
	}
}
