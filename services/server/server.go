// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server is the LSP front end: it owns the stdio connection,
// tracks open documents, and drives the extract → normalize → check →
// publish pipeline on a debounced schedule.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/quillcheck/quillcheck/pkg/logging"
	"github.com/quillcheck/quillcheck/services/checker"
	"github.com/quillcheck/quillcheck/services/diagnostic"
	"github.com/quillcheck/quillcheck/services/grammar"
	"github.com/quillcheck/quillcheck/services/lsp"
	"github.com/quillcheck/quillcheck/services/normalize"
)

// Name and Version identify the server to editors.
const (
	Name    = "quillcheck"
	Version = "0.1.0"
)

// document is one open editor document plus its check state.
type document struct {
	uri        string
	languageID string
	version    int32
	text       string

	// seq is the edit generation. Every edit bumps it; a finished
	// check publishes only if its generation is still current, so a
	// stale result is discarded instead of overwriting fresher state.
	seq    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

// Server runs one editor session.
//
// Thread Safety: Run reads from a single goroutine; checks run on
// their own goroutines and publish through the connection's
// serialized writer.
type Server struct {
	conn     *lsp.Conn
	logger   *logging.Logger
	settings Settings

	registry   *grammar.Registry
	normalizer *normalize.Normalizer
	dispatcher *checker.Dispatcher

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu          sync.Mutex
	docs        map[string]*document
	initialized bool
	shutdown    bool
}

// New builds a server over a connection. Components that depend on
// configuration are wired during the initialize handshake, after the
// editor's initializationOptions have been merged in.
func New(conn *lsp.Conn, settings Settings, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		conn:     conn,
		logger:   logger,
		settings: settings,
		docs:     make(map[string]*document),
	}
}

// Run reads and dispatches messages until the editor sends exit or
// closes the stream. In-flight checks are cancelled on return.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx, s.baseCancel = context.WithCancel(ctx)
	defer s.baseCancel()
	defer s.conn.Close()

	for {
		msg, err := s.conn.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("editor closed the stream")
				return nil
			}
			if errors.Is(err, lsp.ErrMalformedMessage) {
				s.logger.Warn("dropping malformed message", "error", err)
				continue
			}
			return err
		}
		if s.dispatch(msg) {
			return nil
		}
	}
}

// dispatch routes one message. Returns true when the session is over.
func (s *Server) dispatch(msg *lsp.Message) (exit bool) {
	switch msg.Method {
	case "initialize":
		s.handleInitialize(msg)
	case "initialized":
		// Handshake complete; nothing to do.
	case "shutdown":
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		s.reply(msg.ID, nil)
	case "exit":
		return true
	case "$/cancelRequest":
		// Request cancellation is moot: the only slow work is checking,
		// which the edit generation already supersedes.
	default:
		if !s.ready(msg) {
			return false
		}
		switch msg.Method {
		case "textDocument/didOpen":
			s.handleDidOpen(msg)
		case "textDocument/didChange":
			s.handleDidChange(msg)
		case "textDocument/didSave":
			s.handleDidSave(msg)
		case "textDocument/didClose":
			s.handleDidClose(msg)
		case "textDocument/codeAction":
			s.handleCodeAction(msg)
		default:
			if msg.IsRequest() {
				_ = s.conn.ReplyError(msg.ID, lsp.CodeMethodNotFound, "unsupported method: "+msg.Method)
			}
		}
	}
	return false
}

// ready enforces the initialize handshake: requests before it get a
// protocol error, notifications are dropped.
func (s *Server) ready(msg *lsp.Message) bool {
	s.mu.Lock()
	ok := s.initialized
	s.mu.Unlock()
	if !ok && msg.IsRequest() {
		_ = s.conn.ReplyError(msg.ID, lsp.CodeServerNotInitialized, "server not initialized")
	}
	return ok
}

func (s *Server) handleInitialize(msg *lsp.Message) {
	var params lsp.InitializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		_ = s.conn.ReplyError(msg.ID, lsp.CodeInvalidParams, err.Error())
		return
	}
	if err := s.settings.ApplyJSON(params.InitializationOptions); err != nil {
		// Bad options are not fatal; the file/default settings stand.
		s.logger.Warn("ignoring initialization options", "error", err)
	}

	s.registry = grammar.NewRegistry(s.settings.GrammarConfig(), s.logger)
	s.normalizer = normalize.New(s.logger)
	var client *checker.Client
	if s.settings.Backend.URL != "" {
		client = checker.NewClient(s.settings.Backend.URL, s.settings.BackendTimeout(), s.logger)
	} else {
		s.logger.Warn("no backend configured, diagnostics disabled")
	}
	s.dispatcher = checker.NewDispatcher(client, s.settings.DispatcherOptions(), s.logger)

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	s.logger.Info("initialized",
		"backend", s.settings.Backend.URL,
		"language", s.settings.Check.Language,
		"debounce", s.settings.Debounce())

	s.reply(msg.ID, lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync: &lsp.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    lsp.SyncIncremental,
				Save:      true,
			},
			CodeActionProvider: true,
		},
		ServerInfo: lsp.ServerInfo{Name: Name, Version: Version},
	})
}

func (s *Server) handleDidOpen(msg *lsp.Message) {
	var params lsp.DidOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logger.Warn("bad didOpen params", "error", err)
		return
	}
	td := params.TextDocument
	s.mu.Lock()
	s.docs[td.URI] = &document{
		uri:        td.URI,
		languageID: td.LanguageID,
		version:    td.Version,
		text:       td.Text,
	}
	s.mu.Unlock()
	s.logger.Debug("document opened", "uri", td.URI, "language", td.LanguageID)

	// First check runs without the edit debounce.
	s.scheduleCheck(td.URI, 0)
}

func (s *Server) handleDidChange(msg *lsp.Message) {
	var params lsp.DidChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logger.Warn("bad didChange params", "error", err)
		return
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("change for unopened document", "uri", uri)
		return
	}
	doc.text = applyChanges(doc.text, params.ContentChanges)
	doc.version = params.TextDocument.Version
	s.mu.Unlock()

	s.scheduleCheck(uri, s.settings.Debounce())
}

func (s *Server) handleDidSave(msg *lsp.Message) {
	var params lsp.DidSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return
	}
	s.scheduleCheck(params.TextDocument.URI, 0)
}

func (s *Server) handleDidClose(msg *lsp.Message) {
	var params lsp.DidCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return
	}
	uri := params.TextDocument.URI

	s.mu.Lock()
	if doc, ok := s.docs[uri]; ok {
		if doc.timer != nil {
			doc.timer.Stop()
		}
		if doc.cancel != nil {
			doc.cancel()
		}
		delete(s.docs, uri)
	}
	s.mu.Unlock()

	s.dispatcher.Release(uri)
	// Editors keep stale diagnostics for closed files unless told.
	_ = s.conn.Notify("textDocument/publishDiagnostics", lsp.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []lsp.Diagnostic{},
	})
	s.logger.Debug("document closed", "uri", uri)
}

func (s *Server) handleCodeAction(msg *lsp.Message) {
	var params lsp.CodeActionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		_ = s.conn.ReplyError(msg.ID, lsp.CodeInvalidParams, err.Error())
		return
	}
	actions := diagnostic.Actions(params.TextDocument.URI, params.Context.Diagnostics)
	if actions == nil {
		actions = []lsp.CodeAction{}
	}
	s.reply(msg.ID, actions)
}

// scheduleCheck arms (or re-arms) a document's check. The previous
// timer is stopped and the previous in-flight check is cancelled; the
// new generation supersedes both.
func (s *Server) scheduleCheck(uri string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return
	}
	doc.seq++
	seq := doc.seq
	if doc.cancel != nil {
		doc.cancel()
		doc.cancel = nil
	}
	if doc.timer != nil {
		doc.timer.Stop()
	}
	doc.timer = time.AfterFunc(delay, func() {
		s.runCheck(uri, seq)
	})
}

func (s *Server) reply(id json.RawMessage, result any) {
	if err := s.conn.Reply(id, result); err != nil {
		s.logger.Warn("reply failed", "error", err)
	}
}
