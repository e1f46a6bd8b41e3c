// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"

	"github.com/chatvault/chatvault/lib/codec"
)

// Opcode identifies a frame's protocol role. The values are wire
// constants shared with the gateway — changing them breaks the
// protocol.
type Opcode int

const (
	// OpDispatch carries a domain event; Type names the event and Seq
	// advances the ordering cursor.
	OpDispatch Opcode = 0
	// OpHeartbeat is sent by the client at the server-given interval,
	// carrying the last-seen sequence cursor.
	OpHeartbeat Opcode = 1
	// OpIdentify opens a fresh session with the account credential.
	OpIdentify Opcode = 2
	// OpResume continues a previously established session.
	OpResume Opcode = 6
	// OpReconnect is a server request to drop and re-establish the
	// connection.
	OpReconnect Opcode = 7
	// OpInvalidSession tells the client its session id is no longer
	// resumable.
	OpInvalidSession Opcode = 9
	// OpHello is the first frame after connecting; it carries the
	// heartbeat interval.
	OpHello Opcode = 10
	// OpHeartbeatAck acknowledges a client heartbeat.
	OpHeartbeatAck Opcode = 11
)

// String returns the lowercase protocol name of the opcode, for logs.
func (op Opcode) String() string {
	switch op {
	case OpDispatch:
		return "dispatch"
	case OpHeartbeat:
		return "heartbeat"
	case OpIdentify:
		return "identify"
	case OpResume:
		return "resume"
	case OpReconnect:
		return "reconnect"
	case OpInvalidSession:
		return "invalid-session"
	case OpHello:
		return "hello"
	case OpHeartbeatAck:
		return "heartbeat-ack"
	default:
		return fmt.Sprintf("unknown(%d)", int(op))
	}
}

// Frame is one gateway message. Type and Seq are only populated on
// dispatch frames; Data is the opaque payload whose shape depends on
// (Op, Type) and stays encoded until a handler asks for it.
type Frame struct {
	Op   Opcode           `json:"op"`
	Type string           `json:"t,omitempty"`
	Seq  *int64           `json:"s,omitempty"`
	Data codec.RawMessage `json:"d,omitempty"`
}

// Decode parses decompressed frame bytes into a Frame.
func Decode(data []byte) (Frame, error) {
	var frame Frame
	if err := codec.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("wire: decoding frame: %w", err)
	}
	return frame, nil
}

// Encode serializes an outbound frame. No compression is applied to
// outbound traffic.
func Encode(frame Frame) ([]byte, error) {
	data, err := codec.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding %s frame: %w", frame.Op, err)
	}
	return data, nil
}

// MarshalData encodes a payload value and wraps it in a frame with the
// given opcode.
func MarshalData(op Opcode, payload any) (Frame, error) {
	data, err := codec.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: encoding %s payload: %w", op, err)
	}
	return Frame{Op: op, Data: data}, nil
}
