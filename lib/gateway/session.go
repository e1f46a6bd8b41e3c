// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"github.com/chatvault/chatvault/lib/channels"
	"github.com/chatvault/chatvault/lib/wire"
)

// Session is the per-account state that survives reconnects. At most
// one Conn is live for a Session at a time; the connection's run loop
// is the only writer, so no locking is needed (the channel cache has
// its own).
type Session struct {
	token    string
	channels *channels.Cache

	// sessionID is the resumable session identity, empty until the
	// first READY and cleared exactly when the server declares the
	// session invalid.
	sessionID string

	// seq is the last-seen dispatch sequence; seqSeen distinguishes
	// "no dispatch yet" from sequence zero. Reset only when a fresh
	// identify replaces the session.
	seq     int64
	seqSeen bool

	user wire.User
}

// NewSession creates session state for one account credential.
func NewSession(token string) *Session {
	return &Session{
		token:    token,
		channels: channels.NewCache(),
	}
}

// Channels returns the session's channel metadata cache.
func (s *Session) Channels() *channels.Cache { return s.channels }

// User returns the account identity from the last READY.
func (s *Session) User() wire.User { return s.user }

// ID returns the current session id, empty if none is resumable.
func (s *Session) ID() string { return s.sessionID }

// resumable reports whether the next connection should resume rather
// than identify.
func (s *Session) resumable() bool {
	return s.sessionID != "" && s.seqSeen
}

// observeSeq advances the sequence cursor from a dispatch frame.
func (s *Session) observeSeq(seq int64) {
	s.seq = seq
	s.seqSeen = true
}

// reset discards the session identity and cursor ahead of a fresh
// identify.
func (s *Session) reset() {
	s.sessionID = ""
	s.seq = 0
	s.seqSeen = false
}
