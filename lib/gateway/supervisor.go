// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatvault/chatvault/lib/clock"
)

const (
	// defaultMaxFailures is the number of consecutive connection
	// failures after which an account is abandoned.
	defaultMaxFailures = 5
	// defaultRetryDelay is the fixed wait between reconnection
	// attempts.
	defaultRetryDelay = 10 * time.Second
)

// SupervisorConfig holds configuration for creating a Supervisor.
type SupervisorConfig struct {
	// URL is the gateway endpoint, fully parameterized.
	URL string
	// Dialer establishes connections.
	Dialer Dialer
	// Session is the per-account state carried across connections.
	Session *Session
	// Handler receives dispatch events. May be nil.
	Handler EventHandler
	// Clock drives the inter-attempt delay and the heartbeat timers of
	// the connections. If nil, the real clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
	// MaxFailures overrides the consecutive-failure cap. Zero means
	// the default of 5.
	MaxFailures int
	// RetryDelay overrides the fixed inter-attempt delay. Zero means
	// the default of 10 s.
	RetryDelay time.Duration
}

// Supervisor keeps one account connected: dial, run, and on failure
// wait a fixed delay and try again. The failure counter resets each
// time the server confirms a session, so only consecutive failures
// count toward giving up.
type Supervisor struct {
	url         string
	dialer      Dialer
	session     *Session
	handler     EventHandler
	clock       clock.Clock
	logger      *slog.Logger
	maxFailures int
	retryDelay  time.Duration
}

// NewSupervisor creates a connection supervisor for one account.
func NewSupervisor(config SupervisorConfig) (*Supervisor, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("gateway: URL is required")
	}
	if config.Dialer == nil {
		return nil, fmt.Errorf("gateway: Dialer is required")
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
	maxFailures := config.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	retryDelay := config.RetryDelay
	if retryDelay == 0 {
		retryDelay = defaultRetryDelay
	}

	return &Supervisor{
		url:         config.URL,
		dialer:      config.Dialer,
		session:     config.Session,
		handler:     config.Handler,
		clock:       clk,
		logger:      logger,
		maxFailures: maxFailures,
		retryDelay:  retryDelay,
	}, nil
}

// Run connects and reconnects until ctx ends or the consecutive
// failure cap is reached. The returned error is ctx.Err() on shutdown
// and a fatal give-up error otherwise; either way the account is done.
func (s *Supervisor) Run(ctx context.Context) error {
	failures := 0

	for {
		err := s.runOnce(ctx, func() { failures = 0 })
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		if failures >= s.maxFailures {
			return fmt.Errorf("gateway: giving up after %d consecutive connection failures: %w", failures, err)
		}
		s.logger.Warn("connection ended, retrying",
			"error", err,
			"failures", failures,
			"retry_delay", s.retryDelay,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.retryDelay):
		}
	}
}

// runOnce performs a single dial-and-run cycle. established is invoked
// from the connection's run loop, which executes on this goroutine.
func (s *Supervisor) runOnce(ctx context.Context, established func()) error {
	transport, err := s.dialer.Dial(ctx, s.url)
	if err != nil {
		return err
	}

	conn, err := NewConn(ConnConfig{
		Transport:   transport,
		Session:     s.session,
		Handler:     s.handler,
		Clock:       s.clock,
		Logger:      s.logger,
		Established: established,
	})
	if err != nil {
		transport.Close()
		return err
	}
	return conn.Run(ctx)
}
