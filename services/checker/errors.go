// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checker

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable indicates the checking backend could not
	// be reached after exhausting retries. Callers keep previously
	// published results and try again on the next edit.
	ErrBackendUnavailable = errors.New("check backend unavailable")

	// ErrNoBackend indicates the dispatcher was built without a
	// backend URL. Checking is disabled, not broken.
	ErrNoBackend = errors.New("no check backend configured")
)

// BackendError is a non-2xx response from the backend.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

// retryable reports whether the request that produced err is worth
// repeating: transport failures and server-side errors are, malformed
// requests are not.
func retryable(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Status >= 500 || be.Status == 429
	}
	return true
}
