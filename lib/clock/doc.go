// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// The gateway heartbeat, the reconnection supervisor, and the rate-limit
// backoff all depend on wall-clock time. Production code accepts a Clock
// parameter instead of calling time.Now, time.After, time.NewTicker, or
// time.Sleep directly; Real() supplies the standard library behavior and
// Fake() supplies a deterministic clock driven by Advance.
//
// When a goroutine calls Sleep, After, or NewTicker on a FakeClock it
// registers a pending waiter. Tests call WaitForTimers to block until the
// expected number of waiters exist, then Advance to fire them. This
// removes the race between timer registration and time advancement that
// plagues tests built on time.Sleep.
package clock
