// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the gateway frame codec.
//
// Inbound traffic arrives as one zlib-stream compressed binary message
// per logical frame: a single deflate stream spans the whole
// connection, and the server ends every message with a sync flush so
// each message decompresses to exactly one CBOR-encoded frame. The
// Inflator owns the per-connection decompression state; Decode turns
// the decompressed bytes into a Frame.
//
// Outbound frames are CBOR-encoded and sent uncompressed.
//
// Any decode failure here is fatal to the connection: once the
// decompressor history or the term stream is out of step with the
// server, no later frame can be trusted, so the caller must tear the
// connection down and reconnect.
package wire
