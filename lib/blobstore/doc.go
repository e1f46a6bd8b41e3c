// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobstore is the content-addressed attachment store.
//
// Deduplication is two-stage. The identifier ledger (an append-only
// newline-delimited file) catches repeated delivery of the same
// attachment id without downloading anything. The content hash catches
// independent uploads of byte-identical content under different ids:
// blobs are stored under their BLAKE3 digest, so a given content hash
// corresponds to at most one file on disk no matter how many ids
// reference it.
//
// The ledger-check → download → hash-check → write sequence is
// check-then-act; the store serializes it under one mutex so two
// in-flight stores for the same account can never both miss a
// duplicate.
package blobstore
