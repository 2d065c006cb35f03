// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quillcheck/quillcheck/services/checker"
	"github.com/quillcheck/quillcheck/services/diagnostic"
	"github.com/quillcheck/quillcheck/services/extract"
	"github.com/quillcheck/quillcheck/services/grammar"
	"github.com/quillcheck/quillcheck/services/lsp"
)

// checkResult is what one document check produces: the diagnostics to
// publish and the cache keys backing them.
type checkResult struct {
	diagnostics []lsp.Diagnostic
	keys        []checker.Key
}

// runCheck executes the pipeline for one document generation. It
// snapshots the document under the lock, works on the copy, and
// publishes only if the generation is still current when done.
func (s *Server) runCheck(uri string, seq uint64) {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok || doc.seq != seq {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	doc.cancel = cancel
	text, languageID, version := doc.text, doc.languageID, doc.version
	s.mu.Unlock()
	defer cancel()

	log := s.logger.With("check_id", uuid.NewString()[:8], "uri", uri)
	start := time.Now()
	result, err := s.check(ctx, languageID, text)
	switch {
	case err == nil:
		recordCheck(ctx, languageID, time.Since(start), "ok")
		s.publish(uri, version, seq, result)
	case errors.Is(err, context.Canceled):
		// Superseded by a newer edit.
		recordCheck(ctx, languageID, time.Since(start), "canceled")
	case errors.Is(err, grammar.ErrGrammarUnavailable),
		errors.Is(err, grammar.ErrNotConfigured):
		// Language is disabled; clear anything published earlier
		// (the languageID can change on rename).
		recordCheck(ctx, languageID, time.Since(start), "disabled")
		s.publish(uri, version, seq, &checkResult{})
	case errors.Is(err, checker.ErrBackendUnavailable):
		// Keep the previously published diagnostics; they are stale
		// but better than flickering to nothing during an outage.
		recordCheck(ctx, languageID, time.Since(start), "backend_unavailable")
		log.Warn("check skipped, backend unavailable")
	default:
		recordCheck(ctx, languageID, time.Since(start), "error")
		log.Error("check failed", "error", err)
	}
}

// check runs extract → normalize → check for a document snapshot.
// Segments are checked concurrently; the dispatcher bounds the
// fan-out to the backend.
func (s *Server) check(ctx context.Context, languageID, text string) (*checkResult, error) {
	g, err := s.registry.Load(languageID)
	if err != nil {
		return nil, err
	}

	src := []byte(text)
	tree, err := g.Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	blocks := extract.Extract(g.Nodes, tree, src)
	if len(blocks) == 0 || !s.dispatcher.Enabled() {
		return &checkResult{}, nil
	}

	language := s.settings.Check.Language
	segments := make([][]diagnostic.SegmentIssues, len(blocks))
	result := &checkResult{}
	grp, gctx := errgroup.WithContext(ctx)
	for bi, block := range blocks {
		segs := s.normalizer.Normalize(ctx, block)
		segments[bi] = make([]diagnostic.SegmentIssues, len(segs))
		for si, seg := range segs {
			// Keys identify what the published diagnostics depend on;
			// collected up front so Retain covers every segment even
			// when some checks coalesce.
			result.keys = append(result.keys, checker.NewKey(language, seg.Text))
			bi, si, seg := bi, si, seg
			grp.Go(func() error {
				issues, err := s.dispatcher.Check(gctx, language, seg.Text)
				if err != nil {
					return err
				}
				segments[bi][si] = diagnostic.SegmentIssues{Map: seg.Map, Issues: issues}
				return nil
			})
		}
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	ix := diagnostic.NewLineIndex(text)
	for bi, block := range blocks {
		result.diagnostics = append(result.diagnostics, diagnostic.ForBlock(ix, block, segments[bi])...)
	}
	diagnostic.Sort(result.diagnostics)
	return result, nil
}

// publish sends diagnostics if the generation is still current, and
// pins the backing cache entries for the document.
func (s *Server) publish(uri string, version int32, seq uint64, result *checkResult) {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	current := ok && doc.seq == seq
	s.mu.Unlock()
	if !current {
		return
	}

	s.dispatcher.Retain(uri, result.keys)
	diags := result.diagnostics
	if diags == nil {
		diags = []lsp.Diagnostic{}
	}
	if err := s.conn.Notify("textDocument/publishDiagnostics", lsp.PublishDiagnosticsParams{
		URI:         uri,
		Version:     version,
		Diagnostics: diags,
	}); err != nil {
		s.logger.Warn("publish failed", "uri", uri, "error", err)
		return
	}
	s.logger.Debug("published diagnostics", "uri", uri, "count", len(diags))
}
