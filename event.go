package gosp

import (
	"github.com/google/uuid"
)

type EventType int

const (
	EventTypeBound = EventType(iota)
	EventTypeBindFailed
	EventTypeConnected
	EventTypeConnectFailed
	EventTypeShutdown
	EventTypeAccepted
	EventTypeAcceptFailed
	EventTypeDialed
	EventTypeDialFailed
	EventTypeFailedHandshake
	EventTypeReady
	EventTypeDisconnected
	EventTypeClosed
	EventTypeDeviceFailed
)

func (e EventType) String() string {
	switch e {
	case EventTypeBound:
		return "Bound"
	case EventTypeBindFailed:
		return "Bind failed"
	case EventTypeConnected:
		return "Connected"
	case EventTypeConnectFailed:
		return "Connect failed"
	case EventTypeShutdown:
		return "Shutdown"
	case EventTypeAccepted:
		return "Accepted"
	case EventTypeAcceptFailed:
		return "Accept failed"
	case EventTypeDialed:
		return "Dialed"
	case EventTypeDialFailed:
		return "Dial failed"
	case EventTypeFailedHandshake:
		return "Failed handshake"
	case EventTypeReady:
		return "Ready"
	case EventTypeDisconnected:
		return "Disconnected"
	case EventTypeClosed:
		return "Closed"
	case EventTypeDeviceFailed:
		return "Device failed"
	}

	return ""
}

// Event describes something that happened to a socket, one of its
// endpoints or a device.
type Event struct {
	EventType

	// Socket is the id of the socket. Device failures carry the failed peer.
	Socket uuid.UUID

	// Endpoint is the endpoint id, zero when not applicable.
	Endpoint int

	LocalAddr  string
	RemoteAddr string

	// Err is set for failures.
	Err error
}

// EventBus receives events. Post must not block.
type EventBus interface {
	Post(Event)
}

// EventBusFunc adapts a function to EventBus.
type EventBusFunc func(Event)

func (f EventBusFunc) Post(ev Event) {
	f(ev)
}
