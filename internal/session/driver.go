package session

import (
	"context"
	"time"
)

// EventKind discriminates driver events.
type EventKind int

const (
	// EventQR carries an authentication challenge payload in Code.
	EventQR EventKind = iota
	// EventPaired signals the challenge was accepted (credentials stored).
	EventPaired
	// EventReady signals the connection is fully established.
	EventReady
	// EventDisconnected signals an unexpected connection drop; Reason holds
	// the provider-supplied cause.
	EventDisconnected
	// EventLoggedOut signals the remote side invalidated the session.
	EventLoggedOut
	// EventAuthFailure signals a fatal authentication error; Detail explains.
	EventAuthFailure
	// EventMessage carries one inbound chat message.
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventQR:
		return "qr"
	case EventPaired:
		return "paired"
	case EventReady:
		return "ready"
	case EventDisconnected:
		return "disconnected"
	case EventLoggedOut:
		return "logged_out"
	case EventAuthFailure:
		return "auth_failure"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is one occurrence on the underlying connection.
type Event struct {
	Kind   EventKind
	Code   string // EventQR
	Reason string // EventDisconnected
	Detail string // EventAuthFailure

	// EventMessage fields.
	From string
	Text string
	At   time.Time
}

// Driver abstracts the underlying network connection (whatsmeow in
// production, fakes in tests).
//
// Contract:
//   - Dial establishes the connection and returns; subsequent occurrences are
//     delivered on events until Close.
//   - Sends on events must never block: the channel is buffered by the
//     Controller and drivers drop on overflow.
//   - After Close returns, the driver must not emit further events until it
//     is dialed again; Close ends a connection, not the driver's lifetime.
type Driver interface {
	Dial(ctx context.Context, events chan<- Event) error
	SendText(ctx context.Context, to, text string) error
	Close(ctx context.Context) error
}

// InboundMessage is one received chat message, handed to the registered
// message handler.
type InboundMessage struct {
	From string
	Text string
	At   time.Time
}
