// Package protocol
// Author: momentics <momentics@gmail.com>
//
// CBOR codec. Encoding is canonical so that equal messages produce equal
// bytes on both sides of a queue.

package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/momentics/hioload-mp/api"
)

var encMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Marshal encodes msg.
func Marshal(msg any) ([]byte, error) {
	return encMode.Marshal(msg)
}

// EncodeInto encodes msg into buf and returns the encoded length.
func EncodeInto(buf []byte, msg any) (int, error) {
	data, err := encMode.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("protocol: marshal %T: %w", msg, err)
	}
	if len(data) > len(buf) {
		return 0, api.Wrap(api.ErrCodeResourceExhausted, api.ErrResourceExhausted, "message exceeds buffer").
			WithContext("size", len(data)).
			WithContext("buffer", len(buf))
	}
	return copy(buf, data), nil
}

// DecodeCommand decodes a storage command.
func DecodeCommand(data []byte) (*Command, error) {
	var c Command
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal command: %w", err)
	}
	return &c, nil
}

// DecodeCompletion decodes a storage completion.
func DecodeCompletion(data []byte) (*Completion, error) {
	var c Completion
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal completion: %w", err)
	}
	return &c, nil
}

// DecodeI2CRequest decodes a bus request.
func DecodeI2CRequest(data []byte) (*I2CRequest, error) {
	var r I2CRequest
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal i2c request: %w", err)
	}
	return &r, nil
}

// DecodeI2CResponse decodes a bus response.
func DecodeI2CResponse(data []byte) (*I2CResponse, error) {
	var r I2CResponse
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal i2c response: %w", err)
	}
	return &r, nil
}
