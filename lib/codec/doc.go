// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec centralizes CBOR encoding for the gateway wire format
// and the archive sink.
//
// The gateway's structured-term encoding is CBOR. All marshaling goes
// through the fixed encoder/decoder modes in this package so that every
// component agrees on one configuration: deterministic encoding for
// outbound frames, string-keyed maps when decoding into any-typed
// targets, and json struct-tag fallback so payload types declare their
// field names once and serve both the wire and the archive.
package codec
