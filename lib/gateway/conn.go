// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatvault/chatvault/lib/clock"
	"github.com/chatvault/chatvault/lib/codec"
	"github.com/chatvault/chatvault/lib/wire"
)

// EventHandler receives the dispatch events a connection decodes.
// Handlers are called from the connection's run loop; long-running
// work (attachment downloads, command execution) must move off that
// goroutine or heartbeats stall.
type EventHandler interface {
	// HandleReady is called once per fresh session with the confirmed
	// account identity, after the channel cache is seeded.
	HandleReady(user wire.User)

	// HandleEvent receives every other dispatch event with its payload
	// still encoded.
	HandleEvent(ctx context.Context, eventType string, data codec.RawMessage)
}

// ConnConfig holds configuration for creating a Conn.
type ConnConfig struct {
	// Transport is the established connection. The Conn takes ownership
	// and closes it when Run returns.
	Transport Transport
	// Session is the per-account state this connection serves.
	Session *Session
	// Handler receives dispatch events. May be nil.
	Handler EventHandler
	// Clock drives the heartbeat timer. If nil, the real clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
	// Established is called when the server confirms the session
	// (READY or RESUMED). May be nil.
	Established func()
}

// Conn drives one live gateway connection. All connection state lives
// on the run loop goroutine; nothing here needs a lock.
type Conn struct {
	transport   Transport
	session     *Session
	handler     EventHandler
	clock       clock.Clock
	logger      *slog.Logger
	established func()

	// Heartbeat state, owned by the run loop. tickerC stays nil until
	// the server's hello supplies the interval.
	ticker   *clock.Ticker
	tickerC  <-chan time.Time
	interval time.Duration
	lastAck  time.Time
}

// NewConn creates a connection actor over an established transport.
func NewConn(config ConnConfig) (*Conn, error) {
	if config.Transport == nil {
		return nil, fmt.Errorf("gateway: Transport is required")
	}
	if config.Session == nil {
		return nil, fmt.Errorf("gateway: Session is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Conn{
		transport:   config.Transport,
		session:     config.Session,
		handler:     config.Handler,
		clock:       clk,
		logger:      logger,
		established: config.Established,
	}, nil
}

// Run processes the connection until it fails, the server orders a
// reconnect, or ctx ends. The error says why the connection ended;
// ctx.Err() is returned unwrapped on cancellation so the supervisor
// can tell shutdown from failure.
func (c *Conn) Run(ctx context.Context) error {
	defer c.transport.Close()
	defer func() {
		if c.ticker != nil {
			c.ticker.Stop()
		}
	}()

	frames := make(chan wire.Frame)
	readErr := make(chan error, 1)
	loopDone := make(chan struct{})
	defer close(loopDone)

	go c.readLoop(ctx, frames, readErr, loopDone)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return err

		case frame := <-frames:
			c.logger.Debug("rx frame", "op", frame.Op, "type", frame.Type)
			if err := c.handleFrame(ctx, frame); err != nil {
				return err
			}

		case <-c.tickerC:
			elapsed := c.clock.Now().Sub(c.lastAck)
			if elapsed > 2*c.interval {
				return fmt.Errorf("gateway: no heartbeat ack for %v, forcing reconnect", elapsed)
			}
			if err := c.sendHeartbeat(ctx); err != nil {
				return err
			}
		}
	}
}

// readLoop feeds decoded frames to the run loop. It owns the
// connection's decompression context; any read, inflate, or decode
// failure ends the connection.
func (c *Conn) readLoop(ctx context.Context, frames chan<- wire.Frame, readErr chan<- error, loopDone <-chan struct{}) {
	fail := func(err error) {
		select {
		case readErr <- err:
		case <-loopDone:
		}
	}

	inflator := wire.NewInflator()
	for {
		message, err := c.transport.ReadMessage(ctx)
		if err != nil {
			fail(err)
			return
		}
		decompressed, err := inflator.Push(message)
		if err != nil {
			fail(err)
			return
		}
		frame, err := wire.Decode(decompressed)
		if err != nil {
			fail(err)
			return
		}
		select {
		case frames <- frame:
		case <-loopDone:
			return
		}
	}
}

func (c *Conn) handleFrame(ctx context.Context, frame wire.Frame) error {
	switch frame.Op {
	case wire.OpHello:
		return c.handleHello(ctx, frame)

	case wire.OpDispatch:
		if frame.Seq != nil {
			c.session.observeSeq(*frame.Seq)
		}
		return c.handleDispatch(ctx, frame)

	case wire.OpHeartbeatAck:
		c.lastAck = c.clock.Now()
		return nil

	case wire.OpReconnect:
		return errors.New("gateway: server requested reconnect")

	case wire.OpInvalidSession:
		// The session id is dead; the cursor is discarded with it when
		// the next connection identifies fresh.
		c.session.sessionID = ""
		return errors.New("gateway: session invalidated by server")

	default:
		c.logger.Debug("ignoring frame with unhandled opcode", "op", frame.Op)
		return nil
	}
}

// handleHello starts the heartbeat timer and opens the session, by
// resume when one is live and by fresh identify otherwise.
func (c *Conn) handleHello(ctx context.Context, frame wire.Frame) error {
	var hello wire.HelloData
	if err := codec.Unmarshal(frame.Data, &hello); err != nil {
		return fmt.Errorf("gateway: decoding hello payload: %w", err)
	}
	if hello.HeartbeatInterval <= 0 {
		return fmt.Errorf("gateway: hello carries non-positive heartbeat interval %d", hello.HeartbeatInterval)
	}

	c.interval = time.Duration(hello.HeartbeatInterval) * time.Millisecond
	c.lastAck = c.clock.Now()
	c.ticker = c.clock.NewTicker(c.interval)
	c.tickerC = c.ticker.C

	if c.session.resumable() {
		c.logger.Info("resuming session", "session_id", c.session.sessionID, "seq", c.session.seq)
		resume, err := wire.MarshalData(wire.OpResume, wire.ResumeData{
			Token:     c.session.token,
			SessionID: c.session.sessionID,
			Seq:       c.session.seq,
		})
		if err != nil {
			return err
		}
		return c.send(ctx, resume)
	}

	c.session.reset()
	identify, err := wire.MarshalData(wire.OpIdentify, wire.IdentifyData{
		Token:      c.session.token,
		Intents:    wire.DefaultIntents,
		Properties: map[string]any{},
	})
	if err != nil {
		return err
	}
	return c.send(ctx, identify)
}

func (c *Conn) handleDispatch(ctx context.Context, frame wire.Frame) error {
	switch frame.Type {
	case wire.EventReady:
		var ready wire.ReadyData
		if err := codec.Unmarshal(frame.Data, &ready); err != nil {
			return fmt.Errorf("gateway: decoding ready payload: %w", err)
		}
		c.session.sessionID = ready.SessionID
		c.session.user = ready.User
		c.session.channels.Seed(ready.PrivateChannels, ready.Guilds)
		c.logger.Info("logged in",
			"username", ready.User.Username,
			"discriminator", ready.User.Discriminator,
			"session_id", ready.SessionID,
			"channels", c.session.channels.Len(),
		)
		if c.established != nil {
			c.established()
		}
		if c.handler != nil {
			c.handler.HandleReady(ready.User)
		}
		return nil

	case wire.EventResumed:
		c.logger.Info("session resumed", "session_id", c.session.sessionID)
		if c.established != nil {
			c.established()
		}
		return nil

	case wire.EventChannelCreate:
		var channel wire.Channel
		if err := codec.Unmarshal(frame.Data, &channel); err != nil {
			return fmt.Errorf("gateway: decoding channel-create payload: %w", err)
		}
		c.session.channels.Insert(channel)
		return nil

	default:
		if c.handler != nil {
			c.handler.HandleEvent(ctx, frame.Type, frame.Data)
		}
		return nil
	}
}

// sendHeartbeat sends the sequence cursor, or null before the first
// dispatch of a session.
func (c *Conn) sendHeartbeat(ctx context.Context) error {
	var seq any
	if c.session.seqSeen {
		seq = c.session.seq
	}
	heartbeat, err := wire.MarshalData(wire.OpHeartbeat, seq)
	if err != nil {
		return err
	}
	return c.send(ctx, heartbeat)
}

func (c *Conn) send(ctx context.Context, frame wire.Frame) error {
	data, err := wire.Encode(frame)
	if err != nil {
		return err
	}
	c.logger.Debug("tx frame", "op", frame.Op)
	if err := c.transport.WriteMessage(ctx, data); err != nil {
		return fmt.Errorf("gateway: sending %s frame: %w", frame.Op, err)
	}
	return nil
}
