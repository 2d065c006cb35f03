// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grammar

import (
	"errors"
	"fmt"
)

// Sentinel errors for grammar resolution.
var (
	// ErrGrammarUnavailable indicates no parsing provider is
	// registered for the language. Diagnostics for that language are
	// simply absent; other languages are unaffected.
	ErrGrammarUnavailable = errors.New("no grammar provider for language")

	// ErrNotConfigured indicates the language has a provider but no
	// extraction rules configured.
	ErrNotConfigured = errors.New("language not configured")
)

// ConfigError reports a bad query or transform definition. It
// disables the affected language and is logged once at load time,
// never per document.
type ConfigError struct {
	// Language is the language whose configuration is broken.
	Language string

	// Err is the underlying compile failure.
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for language %q: %v", e.Language, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
