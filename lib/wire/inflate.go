// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// historyWindow is the deflate back-reference window. The server may
// reference any of the last 32 KiB of decompressed output from earlier
// messages on the same connection.
const historyWindow = 32 * 1024

// syncFlushTail is the empty stored block a sync flush appends to every
// message. Its presence is what guarantees the message ends on a block
// and byte boundary, so the message can be inflated on its own against
// the accumulated history.
var syncFlushTail = []byte{0x00, 0x00, 0xff, 0xff}

// Inflator is the streaming decompressor for one connection's
// zlib-stream. The first message carries the zlib header; every message
// ends with a sync flush. Create a fresh Inflator per connection — the
// deflate history does not survive a reconnect.
//
// Inflator is not safe for concurrent use. The connection's read path
// is the only caller.
type Inflator struct {
	started bool
	history []byte
	out     bytes.Buffer
}

// NewInflator returns an empty decompression context.
func NewInflator() *Inflator {
	return &Inflator{}
}

// Push decompresses one complete inbound message and returns the
// decompressed bytes. The returned slice is owned by the caller.
//
// Any error is fatal to the connection: a malformed header, a missing
// sync flush, or a corrupt deflate block means the shared history can
// no longer be trusted.
func (z *Inflator) Push(message []byte) ([]byte, error) {
	if !bytes.HasSuffix(message, syncFlushTail) {
		return nil, fmt.Errorf("wire: compressed message does not end with a sync flush")
	}

	data := message
	if !z.started {
		header, rest, err := splitZlibHeader(data)
		if err != nil {
			return nil, err
		}
		_ = header
		data = rest
		z.started = true
	}

	// The sync flush ends every message on a block and byte boundary,
	// so each message is a self-contained run of deflate blocks. The
	// accumulated history is supplied as the preset dictionary, which
	// is exactly how deflate resolves back-references into earlier
	// messages of the same stream.
	reader := flate.NewReaderDict(bytes.NewReader(data), z.history)
	z.out.Reset()
	_, err := z.out.ReadFrom(reader)
	reader.Close()

	// Reading past the trailing empty stored block hits the end of the
	// message mid-stream; that truncation is the expected message
	// boundary, not corruption.
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("wire: inflating message: %w", err)
	}

	decompressed := append([]byte(nil), z.out.Bytes()...)
	z.appendHistory(decompressed)
	return decompressed, nil
}

// splitZlibHeader validates the two-byte zlib header (RFC 1950) that
// precedes the deflate stream on the first message of a connection.
func splitZlibHeader(data []byte) (header []byte, rest []byte, err error) {
	if len(data) < 2 {
		return nil, nil, fmt.Errorf("wire: compressed stream shorter than its zlib header")
	}
	cmf, flg := data[0], data[1]
	if cmf&0x0f != 8 {
		return nil, nil, fmt.Errorf("wire: zlib header declares compression method %d, want deflate", cmf&0x0f)
	}
	if (uint16(cmf)<<8|uint16(flg))%31 != 0 {
		return nil, nil, fmt.Errorf("wire: zlib header check failed (cmf=%#02x flg=%#02x)", cmf, flg)
	}
	if flg&0x20 != 0 {
		return nil, nil, fmt.Errorf("wire: zlib preset dictionary is not supported")
	}
	return data[:2], data[2:], nil
}

// appendHistory retains the last historyWindow bytes of decompressed
// output for back-references from later messages.
func (z *Inflator) appendHistory(decompressed []byte) {
	z.history = append(z.history, decompressed...)
	if len(z.history) > historyWindow {
		z.history = z.history[len(z.history)-historyWindow:]
	}
}
