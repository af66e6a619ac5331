package eventbus

import "time"

// Type names an event published on the bus. The set below is the full
// outward-facing vocabulary; consumers switch on it when serializing.
type Type string

const (
	TypeStatusChanged    Type = "status_changed"
	TypeAuthChallenge    Type = "auth_challenge"
	TypeMessage          Type = "message"
	TypeDisconnected     Type = "disconnected"
	TypeAuthFailure      Type = "auth_failure"
	TypeDispatchProgress Type = "dispatch_progress"
)

// Direction of a chat message as seen from this session.
type Direction string

const (
	DirIncoming Direction = "incoming"
	DirOutgoing Direction = "outgoing"
)

// StatusChanged reports a session state transition.
type StatusChanged struct {
	Running bool   `json:"running"`
	Ready   bool   `json:"ready"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// AuthChallenge carries the opaque credential-bootstrap payload (a scannable
// code on this network). Rendering is the subscriber's problem.
type AuthChallenge struct {
	Code string `json:"code"`
}

// MessageEvent reports one recorded chat message, either direction.
type MessageEvent struct {
	Direction    Direction `json:"direction"`
	Counterparty string    `json:"counterparty"`
	Content      string    `json:"content"`
	At           time.Time `json:"at"`
}

// Disconnected reports a dropped connection and its provider-supplied reason.
type Disconnected struct {
	Reason string `json:"reason"`
}

// AuthFailure reports a fatal authentication error.
type AuthFailure struct {
	Detail string `json:"detail"`
}

// DispatchProgress reports bulk-send progress, one event per delivered contact.
type DispatchProgress struct {
	Counterparty string `json:"counterparty"`
	Sent         int    `json:"sent"`
	Total        int    `json:"total"`
}
