// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Same logical frame always
// produces identical bytes, which keeps outbound traffic reproducible
// in tests.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR.
// Unknown fields are silently ignored so new gateway payload fields do
// not break older builds.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Gateway payloads only ever use string map keys. When the
		// decode target is any (the archive sink re-encodes opaque
		// payloads as JSON), the decoder must pick a concrete Go map
		// type; the CBOR default map[interface{}]interface{} is
		// incompatible with encoding/json, so force map[string]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// RawMessage is a raw encoded CBOR value. It delays decoding of the
// opaque frame payload until the opcode and event type are known.
type RawMessage = cbor.RawMessage

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// ToJSON re-encodes a raw CBOR value as JSON. The archive stores one
// JSON record per line; dispatch payloads arrive as CBOR and pass
// through here on their way to disk. A nil or empty raw value encodes
// as JSON null.
func ToJSON(raw RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("null"), nil
	}

	var value any
	if err := decMode.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("codec: decoding payload for JSON conversion: %w", err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("codec: re-encoding payload as JSON: %w", err)
	}
	return data, nil
}
