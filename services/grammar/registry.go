// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package grammar resolves and caches per-language parsing capability
// and compiled extraction queries.
package grammar

import (
	"context"
	"fmt"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/quillcheck/quillcheck/pkg/logging"
	"github.com/quillcheck/quillcheck/services/extract"
)

// Grammar is the loaded parsing capability for one language: the
// tree-sitter language plus its compiled extraction rules. Parse and
// Compile are the only capabilities consumed downstream.
type Grammar struct {
	// Name is the language name the grammar was loaded under.
	Name string

	// Nodes are the compiled extraction rules, in declaration order.
	Nodes []*extract.Node

	lang *sitter.Language
}

// Parse parses source bytes into a syntax tree. Each call uses its
// own parser instance, so Parse is safe for concurrent use. The
// caller owns the returned tree and must Close it.
func (g *Grammar) Parse(ctx context.Context, src []byte) (*sitter.Tree, error) {
	start := time.Now()
	parser := sitter.NewParser()
	parser.SetLanguage(g.lang)
	tree, err := parser.ParseCtx(ctx, nil, src)
	recordParse(ctx, g.Name, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", g.Name, err)
	}
	return tree, nil
}

// Compile compiles query source against this grammar.
func (g *Grammar) Compile(querySource string) (*sitter.Query, error) {
	q, err := sitter.NewQuery([]byte(querySource), g.lang)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	return q, nil
}

// Registry resolves language names to Grammars, caching results (and
// failures) for the process lifetime. A load failure disables only
// that language; other languages are unaffected.
type Registry struct {
	cfg    Config
	logger *logging.Logger

	mu     sync.Mutex
	loaded map[string]*loadResult
}

type loadResult struct {
	grammar *Grammar
	err     error
}

// NewRegistry builds a registry over the given configuration.
func NewRegistry(cfg Config, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		cfg:    cfg,
		logger: logger,
		loaded: make(map[string]*loadResult),
	}
}

// Load resolves a language. Idempotent: repeated calls return the
// cached grammar or the cached failure. Failures are logged exactly
// once, at first load, never per document.
//
// Errors: ErrGrammarUnavailable when no provider exists for the
// language, ErrNotConfigured when it has no extraction rules, and
// *ConfigError when a query or transform fails to compile.
func (r *Registry) Load(language string) (*Grammar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.loaded[language]; ok {
		return cached.grammar, cached.err
	}

	grammar, err := r.load(language)
	r.loaded[language] = &loadResult{grammar: grammar, err: err}
	recordLoad(language, err)
	if err != nil {
		r.logger.Warn("language disabled", "language", language, "error", err)
	} else {
		r.logger.Info("language loaded", "language", language, "rules", len(grammar.Nodes))
	}
	return grammar, err
}

func (r *Registry) load(language string) (*Grammar, error) {
	provider, ok := lookupProvider(language)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGrammarUnavailable, language)
	}
	lc, ok := r.cfg.Languages[language]
	if !ok || len(lc.Nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, language)
	}

	g := &Grammar{Name: language, lang: provider()}
	for i, nc := range lc.Nodes {
		node, err := compileNode(g, nc)
		if err != nil {
			return nil, &ConfigError{Language: language, Err: fmt.Errorf("node %d: %w", i, err)}
		}
		g.Nodes = append(g.Nodes, node)
	}
	return g, nil
}

// compileNode compiles one rule: its query and every transform.
func compileNode(g *Grammar, nc QueryNodeConfig) (*extract.Node, error) {
	kind, err := parseKind(nc.Kind)
	if err != nil {
		return nil, err
	}
	query, err := g.Compile(nc.Query)
	if err != nil {
		return nil, err
	}

	transforms := make(map[string][]extract.Transform, len(nc.Transforms))
	for capture, list := range nc.Transforms {
		for _, tc := range list {
			t, err := compileTransform(tc)
			if err != nil {
				return nil, fmt.Errorf("capture %q: %w", capture, err)
			}
			transforms[capture] = append(transforms[capture], t)
		}
	}
	return &extract.Node{Kind: kind, Query: query, Transforms: transforms}, nil
}

func compileTransform(tc TransformConfig) (extract.Transform, error) {
	if tc.compact != "" {
		return extract.ParseTransform(tc.compact)
	}
	return extract.CompileTransform(tc.Regex, tc.Replace, tc.Flags)
}

func parseKind(s string) (extract.ResultKind, error) {
	switch s {
	case "", "markdown", "Markdown":
		return extract.KindMarkdown, nil
	case "plaintext", "PlainText", "text", "Text":
		return extract.KindPlainText, nil
	default:
		return "", fmt.Errorf("unknown result kind %q (valid: markdown, plaintext)", s)
	}
}
