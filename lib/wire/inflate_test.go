// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
)

// streamCompressor produces zlib-stream messages the way the gateway
// does: one deflate stream for the whole connection, a sync flush after
// every message, and the two-byte zlib header on the first message
// only.
type streamCompressor struct {
	buffer  bytes.Buffer
	writer  *flate.Writer
	started bool
}

func newStreamCompressor(t *testing.T) *streamCompressor {
	t.Helper()
	c := &streamCompressor{}
	writer, err := flate.NewWriter(&c.buffer, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	c.writer = writer
	return c
}

func (c *streamCompressor) message(t *testing.T, plaintext []byte) []byte {
	t.Helper()
	if _, err := c.writer.Write(plaintext); err != nil {
		t.Fatalf("compress write: %v", err)
	}
	if err := c.writer.Flush(); err != nil {
		t.Fatalf("compress flush: %v", err)
	}

	chunk := append([]byte(nil), c.buffer.Bytes()...)
	c.buffer.Reset()

	if !c.started {
		c.started = true
		// 0x78 0x9c: deflate, 32 KiB window, default level, check
		// bits valid.
		return append([]byte{0x78, 0x9c}, chunk...)
	}
	return chunk
}

func TestInflatorSingleMessage(t *testing.T) {
	compressor := newStreamCompressor(t)
	inflator := NewInflator()

	plaintext := []byte(`{"op":10,"d":{"heartbeat_interval":41250}}`)
	decompressed, err := inflator.Push(compressor.message(t, plaintext))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !bytes.Equal(decompressed, plaintext) {
		t.Errorf("got %q, want %q", decompressed, plaintext)
	}
}

func TestInflatorSharedHistoryAcrossMessages(t *testing.T) {
	compressor := newStreamCompressor(t)
	inflator := NewInflator()

	// The second and third messages repeat the first's content, so the
	// compressor emits back-references into earlier messages. Decoding
	// them correctly requires the inflator to carry the stream history
	// across Push calls.
	base := strings.Repeat(`{"channel_id":"81384788765712384","content":"hello"}`, 20)
	messages := [][]byte{
		[]byte(base),
		[]byte(base + "tail-1"),
		[]byte("head-2" + base),
	}

	for i, plaintext := range messages {
		decompressed, err := inflator.Push(compressor.message(t, plaintext))
		if err != nil {
			t.Fatalf("Push message %d: %v", i, err)
		}
		if !bytes.Equal(decompressed, plaintext) {
			t.Errorf("message %d: got %d bytes, want %d", i, len(decompressed), len(plaintext))
		}
	}
}

func TestInflatorManySmallMessages(t *testing.T) {
	compressor := newStreamCompressor(t)
	inflator := NewInflator()

	for i := 0; i < 200; i++ {
		plaintext := []byte(strings.Repeat("heartbeat-ack ", i%7+1))
		decompressed, err := inflator.Push(compressor.message(t, plaintext))
		if err != nil {
			t.Fatalf("Push message %d: %v", i, err)
		}
		if !bytes.Equal(decompressed, plaintext) {
			t.Fatalf("message %d mismatch", i)
		}
	}
}

func TestInflatorRejectsMissingSyncFlush(t *testing.T) {
	compressor := newStreamCompressor(t)
	inflator := NewInflator()

	message := compressor.message(t, []byte("truncated"))
	if _, err := inflator.Push(message[:len(message)-2]); err == nil {
		t.Error("Push should reject a message without the sync flush tail")
	}
}

func TestInflatorRejectsBadHeader(t *testing.T) {
	inflator := NewInflator()

	// Valid sync flush tail but a header that declares a non-deflate
	// method.
	message := []byte{0x79, 0x9c, 0x00, 0x00, 0x00, 0xff, 0xff}
	if _, err := inflator.Push(message); err == nil {
		t.Error("Push should reject a non-deflate zlib header")
	}
}

func TestInflatorRejectsCorruptBlock(t *testing.T) {
	inflator := NewInflator()

	// Valid zlib header, then a deflate block with the reserved block
	// type (BTYPE=11), then a sync flush tail.
	message := []byte{0x78, 0x9c, 0x06, 0x00, 0x00, 0xff, 0xff}
	if _, err := inflator.Push(message); err == nil {
		t.Error("Push should reject a corrupt deflate block")
	}
}
