// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend serves canned LanguageTool responses and records the
// form values it saw.
func fakeBackend(t *testing.T, matches []ltMatch, sawForm *map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/check", r.URL.Path)
		require.NoError(t, r.ParseForm())
		if sawForm != nil {
			*sawForm = map[string]string{
				"text":          r.PostFormValue("text"),
				"language":      r.PostFormValue("language"),
				"disabledRules": r.PostFormValue("disabledRules"),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ltResponse{Matches: matches})
	}))
}

func TestClientCheck(t *testing.T) {
	var saw map[string]string
	srv := fakeBackend(t, []ltMatch{{
		Message: "Possible typo",
		Offset:  5,
		Length:  4,
		Rule: ltRule{
			ID:        "MORFOLOGIK_RULE_EN_US",
			IssueType: "misspelling",
			Category:  ltCategory{ID: "TYPOS"},
		},
		Replacements: []ltReplacement{{Value: "test"}},
	}}, &saw)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	issues, err := c.Check(context.Background(), "Some tset here.", "en-US")
	require.NoError(t, err)

	assert.Equal(t, "Some tset here.", saw["text"])
	assert.Equal(t, "en-US", saw["language"])
	assert.Equal(t, "WHITESPACE_RULE,CONSECUTIVE_SPACES", saw["disabledRules"])

	require.Len(t, issues, 1)
	assert.Equal(t, 5, issues[0].Offset)
	assert.Equal(t, 4, issues[0].Length)
	assert.Equal(t, "MORFOLOGIK_RULE_EN_US", issues[0].RuleID)
	assert.Equal(t, "TYPOS", issues[0].CategoryID)
	assert.Equal(t, []string{"test"}, issues[0].Replacements)
}

// The backend reports offsets in UTF-16 code units; issues must carry
// byte offsets.
func TestClientCheckConvertsOffsets(t *testing.T) {
	// "naïve tset." — the word tset starts at UTF-16 offset 6 but
	// byte offset 7 (ï is two bytes).
	srv := fakeBackend(t, []ltMatch{{
		Message: "typo", Offset: 6, Length: 4,
	}}, nil)
	defer srv.Close()

	text := "naïve tset."
	c := NewClient(srv.URL, time.Second, nil)
	issues, err := c.Check(context.Background(), text, "en-US")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "tset", text[issues[0].Offset:issues[0].Offset+issues[0].Length])
}

func TestClientCheckCapsReplacements(t *testing.T) {
	var reps []ltReplacement
	for i := 0; i < 25; i++ {
		reps = append(reps, ltReplacement{Value: fmt.Sprintf("fix%d", i)})
	}
	srv := fakeBackend(t, []ltMatch{{
		Message: "typo", Offset: 0, Length: 4, Replacements: reps,
	}}, nil)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	issues, err := c.Check(context.Background(), "tset text", "en-US")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Len(t, issues[0].Replacements, maxReplacements)
}

func TestClientCheckDropsOutOfRangeMatches(t *testing.T) {
	srv := fakeBackend(t, []ltMatch{
		{Message: "beyond", Offset: 90, Length: 5},
		{Message: "empty", Offset: 2, Length: 0},
	}, nil)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	issues, err := c.Check(context.Background(), "short", "en-US")
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestClientCheckBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	_, err := c.Check(context.Background(), "text", "en-US")
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusInternalServerError, be.Status)
	assert.Equal(t, "boom", be.Body)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&BackendError{Status: 500}))
	assert.True(t, retryable(&BackendError{Status: 429}))
	assert.False(t, retryable(&BackendError{Status: 400}))
	assert.True(t, retryable(fmt.Errorf("connection refused")))
}

func TestUTF16ConverterASCII(t *testing.T) {
	conv := newUTF16Converter("plain ascii")
	assert.Equal(t, 0, conv.byteOffset(0))
	assert.Equal(t, 6, conv.byteOffset(6))
	assert.Equal(t, 11, conv.byteOffset(50))
}

func TestUTF16ConverterAstral(t *testing.T) {
	// The emoji is one 4-byte rune and two UTF-16 code units.
	text := "a\U0001F600b"
	conv := newUTF16Converter(text)
	assert.Equal(t, 1, conv.byteOffset(1))
	assert.Equal(t, 5, conv.byteOffset(3))
	assert.Equal(t, 6, conv.byteOffset(4))
}

func TestUTF16ConverterRewinds(t *testing.T) {
	conv := newUTF16Converter("naïve tset.")
	assert.Equal(t, 7, conv.byteOffset(6))
	// A query behind the current position restarts the pass.
	assert.Equal(t, 1, conv.byteOffset(1))
	assert.Equal(t, 7, conv.byteOffset(6))
}

// Overlapping matches regress the offset sequence; the second match
// must still land on the right bytes.
func TestClientCheckOverlappingMatches(t *testing.T) {
	srv := fakeBackend(t, []ltMatch{
		{Message: "first", Offset: 0, Length: 5},
		{Message: "second", Offset: 2, Length: 3},
	}, nil)
	defer srv.Close()

	text := "naïve tset."
	c := NewClient(srv.URL, time.Second, nil)
	issues, err := c.Check(context.Background(), text, "en-US")
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "naïve", text[issues[0].Offset:issues[0].Offset+issues[0].Length])
	assert.Equal(t, "ïve", text[issues[1].Offset:issues[1].Offset+issues[1].Length])
}
