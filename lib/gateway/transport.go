// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"

	"nhooyr.io/websocket"
)

// Transport is one established gateway connection. Messages are whole
// websocket frames: compressed on the way in, plain encoded frames on
// the way out.
type Transport interface {
	// ReadMessage blocks until the next complete inbound message.
	ReadMessage(ctx context.Context) ([]byte, error)

	// WriteMessage sends one complete outbound message.
	WriteMessage(ctx context.Context, data []byte) error

	// Close tears the connection down. Pending reads fail after Close.
	Close() error
}

// Dialer establishes gateway connections. Tests substitute an
// in-memory implementation.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// maxMessageSize bounds a single inbound gateway message. The initial
// sync payload for an account in many guilds runs to megabytes.
const maxMessageSize = 64 << 20

// NewWebsocketDialer returns the production Dialer.
func NewWebsocketDialer() Dialer { return websocketDialer{} }

type websocketDialer struct{}

func (websocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: dialing %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &websocketTransport{conn: conn}, nil
}

type websocketTransport struct {
	conn *websocket.Conn
}

func (t *websocketTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway: reading message: %w", err)
	}
	return data, nil
}

func (t *websocketTransport) WriteMessage(ctx context.Context, data []byte) error {
	if err := t.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return fmt.Errorf("gateway: writing message: %w", err)
	}
	return nil
}

func (t *websocketTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
