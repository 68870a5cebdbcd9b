package model

import "github.com/google/uuid"

// UUID is a 128-bit identifier in standard textual form, used both for
// GATT service/characteristic identifiers and for outbound request ids
// in the connector's context poll.
type UUID = uuid.UUID

// ParseUUID parses the standard textual UUID form
// ("xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx").
func ParseUUID(s string) (UUID, error) {
	return uuid.Parse(s)
}

// NewRequestID generates a fresh request id for an outbound context.
func NewRequestID() UUID {
	return uuid.New()
}
