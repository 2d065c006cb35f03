// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransformCompact(t *testing.T) {
	tr, err := ParseTransform(`/^\/\/\/ ?//`)
	require.NoError(t, err)

	got, m := tr.Apply("/// Doc line.")
	assert.Equal(t, "Doc line.", got)
	// "Doc" sits at source offset 4.
	assert.Equal(t, Range{Start: 4, End: 7}, m.ToSource(Range{Start: 0, End: 3}))
}

func TestParseTransformFlags(t *testing.T) {
	tr, err := ParseTransform(`/^# ?//m`)
	require.NoError(t, err)

	got, _ := tr.Apply("# one\n# two")
	assert.Equal(t, "one\ntwo", got)

	ci, err := ParseTransform(`/todo/FIXME/i`)
	require.NoError(t, err)
	got, _ = ci.Apply("a ToDo item")
	assert.Equal(t, "a FIXME item", got)
}

func TestParseTransformEscapedSlash(t *testing.T) {
	// An escaped slash is literal; other escapes reach the engine.
	tr, err := ParseTransform(`/a\/b/X/`)
	require.NoError(t, err)
	got, _ := tr.Apply("c a/b d")
	assert.Equal(t, "c X d", got)
}

func TestParseTransformErrors(t *testing.T) {
	cases := []string{
		"no-leading-slash",
		"/a/b/c/d",
		`/pattern`,
		`/pat/rep/x`,
		`/trailing\`,
		`/(/x/`,
	}
	for _, in := range cases {
		_, err := ParseTransform(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestTransformApplyNoMatchIsIdentity(t *testing.T) {
	tr, err := CompileTransform("xyz", "", "")
	require.NoError(t, err)
	got, m := tr.Apply("nothing here")
	assert.Equal(t, "nothing here", got)
	assert.Equal(t, Range{Start: 2, End: 5}, m.ToSource(Range{Start: 2, End: 5}))
}

func TestTransformApplyGroups(t *testing.T) {
	tr, err := CompileTransform(`\\(.)`, "$1", "")
	require.NoError(t, err)
	got, m := tr.Apply(`say \"hi\"`)
	assert.Equal(t, `say "hi"`, got)

	// Offsets after an unescape still land inside the right source
	// span, widened over the rewritten escape.
	r := m.ToSource(Range{Start: 5, End: 7})
	assert.True(t, (Range{Start: 4, End: 9}).Contains(r))
}

func TestTransformApplyExpandingReplacement(t *testing.T) {
	tr, err := CompileTransform("&", "&amp;", "")
	require.NoError(t, err)
	got, m := tr.Apply("a & b")
	assert.Equal(t, "a &amp; b", got)
	// The expansion maps back to the single source byte.
	assert.Equal(t, Range{Start: 2, End: 3}, m.ToSource(Range{Start: 2, End: 7}))
	assert.Equal(t, Range{Start: 4, End: 5}, m.ToSource(Range{Start: 8, End: 9}))
}

func TestApplyAllChainsMaps(t *testing.T) {
	strip, err := ParseTransform(`/^> ?//`)
	require.NoError(t, err)
	unescape, err := ParseTransform(`/\\n/ /`)
	require.NoError(t, err)

	got, m := applyAll([]Transform{strip, unescape}, `> first\nsecond`)
	assert.Equal(t, "first second", got)

	// "first" starts at source offset 2 even after both rewrites.
	assert.Equal(t, Range{Start: 2, End: 7}, m.ToSource(Range{Start: 0, End: 5}))
	// "second" follows the rewritten escape.
	assert.Equal(t, Range{Start: 9, End: 15}, m.ToSource(Range{Start: 6, End: 12}))
}

func TestTransformString(t *testing.T) {
	tr, err := CompileTransform("^-- ?", "", "m")
	require.NoError(t, err)
	assert.Equal(t, "/^-- ?//m", tr.String())
}
