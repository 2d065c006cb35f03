// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lsp

import "errors"

var (
	// ErrConnClosed indicates a write was attempted after Close.
	ErrConnClosed = errors.New("lsp connection closed")

	// ErrMalformedMessage indicates a frame or message that does not
	// follow the base protocol.
	ErrMalformedMessage = errors.New("malformed lsp message")
)
