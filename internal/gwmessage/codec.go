package gwmessage

import (
	"encoding/json"
	"fmt"
)

// Encode serializes an Envelope to its wire form.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("gwmessage: encode: %w", err)
	}
	return data, nil
}

// Decode parses one wire frame into an Envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("gwmessage: decode: %w", err)
	}
	return env, nil
}

// EncodePayload marshals a typed payload for embedding in an Envelope.
func EncodePayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("gwmessage: encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload unmarshals an Envelope's payload into a typed value.
func DecodePayload(payload json.RawMessage, target any) error {
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("gwmessage: decode payload: %w", err)
	}
	return nil
}
