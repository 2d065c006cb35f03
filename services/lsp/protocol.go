// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lsp implements the server side of the LSP base protocol:
// Content-Length framed JSON-RPC 2.0 over a byte stream, plus the
// protocol structures the server exchanges with editors.
package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// JSON-RPC error codes, including the LSP-reserved range.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeServerNotInitialized = -32002
	CodeRequestCancelled     = -32800
)

// Message is an incoming JSON-RPC message. A request has an ID and a
// Method; a notification has only a Method. The ID is kept raw
// because editors send both numbers and strings, and the reply must
// echo the ID exactly as received.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsRequest reports whether the message expects a response.
func (m *Message) IsRequest() bool { return len(m.ID) > 0 && string(m.ID) != "null" }

// response is an outgoing JSON-RPC response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// notification is an outgoing JSON-RPC notification.
type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// ResponseError is the error member of a JSON-RPC response.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Conn frames JSON-RPC messages over a reader/writer pair, normally
// stdin/stdout. Reads must come from a single goroutine; writes are
// serialized internally and safe from any goroutine, which is what
// lets check workers publish diagnostics while the read loop blocks.
type Conn struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewConn wraps a transport. For a stdio server, r is os.Stdin and w
// is os.Stdout.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{reader: bufio.NewReader(r), writer: w}
}

// Read blocks for the next message. io.EOF means the editor closed
// the stream; a clean shutdown path, not a failure.
func (c *Conn) Read() (*Message, error) {
	body, err := c.readFrame()
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &msg, nil
}

// readFrame reads one Content-Length framed body.
func (c *Conn) readFrame() ([]byte, error) {
	contentLength := -1
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)

		// Empty line marks end of headers.
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			contentLength, err = strconv.Atoi(strings.TrimSpace(v))
			if err != nil || contentLength < 0 {
				return nil, fmt.Errorf("%w: bad Content-Length %q", ErrMalformedMessage, v)
			}
		}
		// Other headers (Content-Type) are ignored.
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("%w: missing Content-Length header", ErrMalformedMessage)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// Reply sends a successful response for the given request ID.
func (c *Conn) Reply(id json.RawMessage, result any) error {
	return c.writeMessage(response{JSONRPC: JSONRPCVersion, ID: id, Result: result})
}

// ReplyError sends an error response for the given request ID.
func (c *Conn) ReplyError(id json.RawMessage, code int, message string) error {
	return c.writeMessage(response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &ResponseError{Code: code, Message: message},
	})
}

// Notify sends a server-to-editor notification.
func (c *Conn) Notify(method string, params any) error {
	return c.writeMessage(notification{JSONRPC: JSONRPCVersion, Method: method, Params: params})
}

// writeMessage marshals and writes one framed message.
func (c *Conn) writeMessage(v any) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := c.writer.Write([]byte(header)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// Close stops further writes. It does not close the underlying
// streams; the process owns those.
func (c *Conn) Close() {
	c.closed.Store(true)
}
