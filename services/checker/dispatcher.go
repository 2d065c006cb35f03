// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/quillcheck/quillcheck/pkg/logging"
)

// Options tunes the dispatcher. Zero values select the defaults.
type Options struct {
	// MaxConcurrent caps in-flight backend requests. Default 4.
	MaxConcurrent int

	// RatePerSecond throttles backend request starts. Default 20.
	RatePerSecond float64

	// CacheSize is the result cache capacity. Default 256.
	CacheSize int

	// MaxAttempts is the total tries per request. Default 3.
	MaxAttempts int

	// RetryDelay is the base backoff; attempt n waits n times this.
	// Default 200ms.
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 20
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 256
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 200 * time.Millisecond
	}
	return o
}

// Dispatcher deduplicates, throttles and retries backend checks.
//
// Identical texts in flight at the same time coalesce into a single
// backend request via singleflight; completed results land in an LRU
// keyed by (language, text digest) so re-checks after unrelated edits
// are free. A semaphore and a token-bucket limiter keep a burst of
// segment checks from flooding the backend.
//
// Thread Safety: safe for concurrent use.
type Dispatcher struct {
	client  *Client
	cache   *ResultCache
	opts    Options
	logger  *logging.Logger
	group   singleflight.Group
	sem     chan struct{}
	limiter *rate.Limiter

	mu       sync.Mutex
	retained map[string][]Key // document URI -> pinned result keys
}

// NewDispatcher wires a dispatcher over the given client. A nil
// client disables checking; Check then returns ErrNoBackend.
func NewDispatcher(client *Client, opts Options, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	opts = opts.withDefaults()
	return &Dispatcher{
		client:   client,
		cache:    NewResultCache(opts.CacheSize),
		opts:     opts,
		logger:   logger,
		sem:      make(chan struct{}, opts.MaxConcurrent),
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.MaxConcurrent),
		retained: make(map[string][]Key),
	}
}

// Cache exposes the result cache, mainly for stats reporting.
func (d *Dispatcher) Cache() *ResultCache { return d.cache }

// Enabled reports whether a backend is configured.
func (d *Dispatcher) Enabled() bool { return d.client != nil }

// Check returns the issues for text, from cache when possible. Blocks
// until a result is available or ctx is cancelled. Cancelling one
// caller never aborts a flight other callers are waiting on; the
// flight finishes and populates the cache for the next edit.
func (d *Dispatcher) Check(ctx context.Context, language, text string) ([]Issue, error) {
	if d.client == nil {
		return nil, ErrNoBackend
	}
	key := NewKey(language, text)
	if issues, ok := d.cache.Get(key); ok {
		return issues, nil
	}

	ch := d.group.DoChan(key.String(), func() (any, error) {
		// Double-check under the flight: a racing caller may have
		// populated the cache between our miss and the flight start.
		if issues, ok := d.cache.Get(key); ok {
			return issues, nil
		}
		// Detached from any single caller's ctx: coalesced waiters
		// come and go, the flight itself runs to completion.
		issues, err := d.fetch(context.Background(), language, text)
		if err != nil {
			return nil, err
		}
		d.cache.Set(key, issues)
		return issues, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		issues, ok := res.Val.([]Issue)
		if !ok {
			return nil, fmt.Errorf("unexpected type %T from check flight", res.Val)
		}
		recordCoalesced(res.Shared)
		return issues, nil
	}
}

// fetch performs the rate-limited, retried backend call.
func (d *Dispatcher) fetch(ctx context.Context, language, text string) ([]Issue, error) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-d.sem }()

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		issues, err := d.client.Check(ctx, text, language)
		if err == nil {
			return issues, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		recordRetry(language)
		d.logger.Warn("backend check failed",
			"language", language, "attempt", attempt, "error", err)
		if attempt < d.opts.MaxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * d.opts.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, lastErr)
}

// Retain pins the given result keys for a document, replacing
// whatever the document pinned before. Pinned results back published
// diagnostics: as long as a document displays them, the cache keeps
// them.
func (d *Dispatcher) Retain(uri string, keys []Key) {
	d.mu.Lock()
	old := d.retained[uri]
	d.retained[uri] = keys
	d.mu.Unlock()

	for _, k := range keys {
		d.cache.Retain(k)
	}
	for _, k := range old {
		d.cache.Release(k)
	}
}

// Release drops every pin a document holds. Called on didClose.
func (d *Dispatcher) Release(uri string) {
	d.Retain(uri, nil)
	d.mu.Lock()
	delete(d.retained, uri)
	d.mu.Unlock()
}
