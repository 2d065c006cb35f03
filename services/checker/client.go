// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package checker talks to a LanguageTool-compatible backend and
// turns its matches into issues with byte offsets into the checked
// text. The Dispatcher layers caching, request coalescing and retry
// on top of the raw client.
package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/quillcheck/quillcheck/pkg/logging"
)

var tracer = otel.Tracer("quillcheck.checker")

// Rules whose findings are artifacts of extraction rather than the
// author's prose. Comment markers and alignment produce whitespace
// the author never wrote, so these stay disabled.
const disabledRules = "WHITESPACE_RULE,CONSECUTIVE_SPACES"

// maxReplacements bounds the suggestions carried per issue; backends
// can return dozens for common misspellings.
const maxReplacements = 10

// Issue is one finding in a checked text. Offset and Length are byte
// offsets into the text that was sent.
type Issue struct {
	Offset       int
	Length       int
	Message      string
	ShortMessage string
	RuleID       string
	CategoryID   string
	IssueType    string
	Replacements []string
}

// Client is a minimal LanguageTool HTTP client.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
}

// NewClient builds a client for the backend at baseURL (scheme and
// host, e.g. "http://localhost:8081"). The timeout bounds a single
// request; retries are the dispatcher's concern.
func NewClient(baseURL string, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

// LanguageTool v2 response structures. Only the fields consumed are
// declared.
type ltResponse struct {
	Matches []ltMatch `json:"matches"`
}

type ltMatch struct {
	Message      string          `json:"message"`
	ShortMessage string          `json:"shortMessage"`
	Offset       int             `json:"offset"`
	Length       int             `json:"length"`
	Replacements []ltReplacement `json:"replacements"`
	Rule         ltRule          `json:"rule"`
}

type ltReplacement struct {
	Value string `json:"value"`
}

type ltRule struct {
	ID        string     `json:"id"`
	IssueType string     `json:"issueType"`
	Category  ltCategory `json:"category"`
}

type ltCategory struct {
	ID string `json:"id"`
}

// Check sends text to the backend and returns its findings, sorted as
// the backend reports them (ascending offset).
func (c *Client) Check(ctx context.Context, text, language string) ([]Issue, error) {
	ctx, span := tracer.Start(ctx, "Client.Check")
	defer span.End()
	span.SetAttributes(
		attribute.String("check.language", language),
		attribute.Int("check.text_bytes", len(text)),
	)

	form := url.Values{
		"text":          {text},
		"language":      {language},
		"disabledRules": {disabledRules},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v2/check", strings.NewReader(form.Encode()))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("building check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	recordBackendRequest(ctx, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := &BackendError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var parsed ltResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decoding check response: %w", err)
	}

	issues := convertMatches(text, parsed.Matches)
	span.SetAttributes(attribute.Int("check.issues", len(issues)))
	c.logger.Debug("backend check complete",
		"language", language, "issues", len(issues), "duration", time.Since(start))
	return issues, nil
}

// convertMatches translates backend matches into Issues. The backend
// measures offsets in UTF-16 code units (it is a Java server); issues
// carry byte offsets, so each match is converted. Matches normally
// arrive in ascending offset order, letting the converter walk the
// text once; overlapping matches rewind it.
func convertMatches(text string, matches []ltMatch) []Issue {
	conv := newUTF16Converter(text)
	issues := make([]Issue, 0, len(matches))
	for _, m := range matches {
		start := conv.byteOffset(m.Offset)
		end := conv.byteOffset(m.Offset + m.Length)
		if end <= start || end > len(text) {
			continue
		}
		reps := make([]string, 0, min(len(m.Replacements), maxReplacements))
		for _, r := range m.Replacements {
			if len(reps) == maxReplacements {
				break
			}
			reps = append(reps, r.Value)
		}
		issues = append(issues, Issue{
			Offset:       start,
			Length:       end - start,
			Message:      m.Message,
			ShortMessage: m.ShortMessage,
			RuleID:       m.Rule.ID,
			CategoryID:   m.Rule.Category.ID,
			IssueType:    m.Rule.IssueType,
			Replacements: reps,
		})
	}
	return issues
}

// utf16Converter maps UTF-16 code-unit offsets to byte offsets in a
// forward pass. A query below the current position restarts the pass
// from the beginning, so overlapping matches still map correctly.
type utf16Converter struct {
	text    string
	bytePos int
	u16Pos  int
}

func newUTF16Converter(text string) *utf16Converter {
	return &utf16Converter{text: text}
}

func (c *utf16Converter) byteOffset(u16 int) int {
	if u16 < c.u16Pos {
		c.bytePos, c.u16Pos = 0, 0
	}
	for c.u16Pos < u16 && c.bytePos < len(c.text) {
		r, size := utf8.DecodeRuneInString(c.text[c.bytePos:])
		c.bytePos += size
		c.u16Pos += len(utf16.Encode([]rune{r}))
	}
	return c.bytePos
}
