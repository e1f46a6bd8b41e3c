// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway maintains one authenticated realtime session per
// account against the service's websocket gateway.
//
// A Session carries the state that outlives a single connection: the
// credential, the resumable session id, the dispatch sequence cursor,
// and the channel metadata cache. A Conn owns one live connection: a
// single run loop selects over decoded inbound frames, heartbeat
// ticks, and cancellation, so connection state never needs a lock. The
// Supervisor re-establishes dropped connections with a fixed delay and
// gives up on an account after five consecutive failures.
package gateway
