// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"testing"

	"github.com/chatvault/chatvault/lib/codec"
)

func int64Pointer(v int64) *int64 { return &v }

func TestFrameRoundtrip(t *testing.T) {
	payload, err := codec.Marshal(map[string]any{"channel_id": "42", "content": "hi"})
	if err != nil {
		t.Fatalf("Marshal payload: %v", err)
	}

	original := Frame{
		Op:   OpDispatch,
		Type: EventMessageCreate,
		Seq:  int64Pointer(1337),
		Data: payload,
	}

	encoded, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Op != original.Op || decoded.Type != original.Type {
		t.Errorf("got op=%v t=%q, want op=%v t=%q", decoded.Op, decoded.Type, original.Op, original.Type)
	}
	if decoded.Seq == nil || *decoded.Seq != 1337 {
		t.Errorf("Seq = %v, want 1337", decoded.Seq)
	}

	var body map[string]any
	if err := codec.Unmarshal(decoded.Data, &body); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if body["channel_id"] != "42" {
		t.Errorf("payload channel_id = %v", body["channel_id"])
	}
}

func TestFrameOptionalFieldsOmitted(t *testing.T) {
	// A heartbeat-ack has no event type, sequence, or payload; the
	// encoding must not materialize them so the round trip preserves
	// "absent" rather than turning it into zero values.
	encoded, err := Encode(Frame{Op: OpHeartbeatAck})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Seq != nil {
		t.Errorf("Seq = %v, want nil", decoded.Seq)
	}
	if decoded.Type != "" {
		t.Errorf("Type = %q, want empty", decoded.Type)
	}
	if len(decoded.Data) != 0 {
		t.Errorf("Data = %x, want empty", decoded.Data)
	}
}

func TestMarshalDataWrapsPayload(t *testing.T) {
	frame, err := MarshalData(OpResume, ResumeData{
		Token:     "token-a",
		SessionID: "session-1",
		Seq:       99,
	})
	if err != nil {
		t.Fatalf("MarshalData: %v", err)
	}
	if frame.Op != OpResume {
		t.Errorf("Op = %v, want OpResume", frame.Op)
	}

	var resume ResumeData
	if err := codec.Unmarshal(frame.Data, &resume); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if resume.SessionID != "session-1" || resume.Seq != 99 {
		t.Errorf("resume = %+v", resume)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte{0xFF, 0x00, 0xFF}); err == nil {
		t.Error("Decode should reject malformed term bytes")
	}
}

func TestOpcodeString(t *testing.T) {
	if got := OpHello.String(); got != "hello" {
		t.Errorf("OpHello.String() = %q", got)
	}
	if got := Opcode(42).String(); got != "unknown(42)" {
		t.Errorf("Opcode(42).String() = %q", got)
	}
}
