// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package channels caches channel metadata for one account session.
//
// The gateway identifies events by channel id only; classifying an
// event (which directory it files under, whether attachments are
// stored) requires the channel's kind and owning guild. The cache is
// seeded once from the first-sync payload and kept current by
// channel-creation events. Entries are append-only for the life of the
// session: channel deletions are not reconciled, stale entries are
// accepted.
package channels
