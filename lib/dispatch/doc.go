// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch routes decoded gateway events for one account:
// into the archive under the per-account logging flags, into the
// attachment store under the per-kind attachment flags, and into the
// command layer for self-authored messages.
//
// Routing decisions consult the channel metadata cache; an event for
// an unknown channel is skipped silently, since it only means the
// event raced ahead of the initial sync. Archive and attachment
// failures are logged and skipped — nothing an event does can take
// down the connection that delivered it.
package dispatch
