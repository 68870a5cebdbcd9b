// Package gwmessage defines the wire message DTOs exchanged with the
// upstream server over the connector's WebSocket link: the register
// handshake and the three commands the Command Router translates
// (§4.10): new device announcement, server device list, and last value.
package gwmessage

import "encoding/json"

// Type identifies an Envelope's payload shape.
type Type string

const (
	TypeRegisterGateway          Type = "register_gateway"
	TypeRegisterAccept           Type = "register_accept"
	TypeRegisterReject           Type = "register_reject"
	TypeNewDeviceAnnouncement    Type = "new_device_announcement"
	TypeServerDeviceListRequest  Type = "server_device_list_request"
	TypeServerDeviceListResponse Type = "server_device_list_response"
	TypeLastValueRequest         Type = "last_value_request"
	TypeLastValueResponse        Type = "last_value_response"
)

// Envelope is what every outbound and inbound frame serializes to: a
// client-generated request id for correlation (empty for the initial
// register frame, which is answered out of band) and a typed payload.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GatewayInfo identifies this gateway during registration.
type GatewayInfo struct {
	ID      string `json:"id"`
	Variant string `json:"variant"`
	Version string `json:"version"`
}

// RegisterGateway is the first frame sent after the socket opens (§6).
type RegisterGateway struct {
	Gateway GatewayInfo `json:"gateway"`
}

// RegisterResult is the server's accept/reject answer to RegisterGateway.
type RegisterResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// NewDeviceAnnouncement reports a freshly discovered device to the
// server. Fields mirror the original NewDeviceCommand DTO: vendor,
// product name, the module types it supports, and its refresh time (nil
// means the device is not pollable).
type NewDeviceAnnouncement struct {
	DeviceID       string   `json:"device_id"`
	Vendor         string   `json:"vendor"`
	ProductName    string   `json:"product_name"`
	DataTypes      []string `json:"data_types"`
	RefreshSeconds *float64 `json:"refresh_seconds,omitempty"`
}

// ServerDeviceListRequest asks the server which devices are paired with
// this gateway. It carries no fields.
type ServerDeviceListRequest struct{}

// ServerDeviceListResponse answers ServerDeviceListRequest.
type ServerDeviceListResponse struct {
	DeviceIDs []string `json:"device_ids"`
}

// LastValueRequest asks the server for the last known value of one
// module on one device.
type LastValueRequest struct {
	DeviceID string `json:"device_id"`
	ModuleID string `json:"module_id"`
}

// LastValueResponse answers LastValueRequest.
type LastValueResponse struct {
	ModuleID  string  `json:"module_id"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}
