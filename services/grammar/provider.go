// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grammar

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	tree_sitter_markdown "github.com/smacker/go-tree-sitter/markdown/tree-sitter-markdown"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
)

// Provider resolves a language name to its tree-sitter grammar. The
// registry treats providers as opaque: anything that can hand back a
// *sitter.Language can back a language.
type Provider func() *sitter.Language

var (
	providerMu sync.RWMutex

	// Statically linked providers. Editors addressing other languages
	// register additional providers before the registry is built.
	providers = map[string]Provider{
		"go":         golang.GetLanguage,
		"rust":       rust.GetLanguage,
		"python":     python.GetLanguage,
		"javascript": javascript.GetLanguage,
		"markdown":   tree_sitter_markdown.GetLanguage,
	}
)

// RegisterProvider makes a grammar available under the given language
// name, replacing any existing registration. Call before NewRegistry;
// registrations are not picked up by already-loaded languages.
func RegisterProvider(name string, p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providers[name] = p
}

// lookupProvider returns the provider for a language, if any.
func lookupProvider(name string) (Provider, bool) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	p, ok := providers[name]
	return p, ok
}

// SupportedLanguages lists the registered provider names.
func SupportedLanguages() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
