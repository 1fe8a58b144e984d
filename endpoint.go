package gosp

import (
	"io"

	"github.com/workspace-9/gosp/transport"
)

// Role tells whether an endpoint listens or dials.
type Role int

const (
	RoleBound = Role(iota + 1)
	RoleConnected
)

func (r Role) String() string {
	switch r {
	case RoleBound:
		return "bound"
	case RoleConnected:
		return "connected"
	}
	return ""
}

// endpoint is one successful bind or connect of a socket.
type endpoint struct {
	id       int
	role     Role
	addr     transport.Address
	identity string
	driver   io.Closer
	local    func() string
}

// EndpointInfo is a snapshot of an endpoint.
type EndpointInfo struct {
	ID      int
	Role    Role
	Address transport.Address

	// LocalAddr is the address actually listened on, which differs from
	// Address for ephemeral tcp ports. Empty for connected endpoints.
	LocalAddr string
}

func (e *endpoint) info() EndpointInfo {
	info := EndpointInfo{ID: e.id, Role: e.role, Address: e.addr}
	if e.local != nil {
		info.LocalAddr = e.local()
	}
	return info
}

// EndpointResult is the outcome of BindAsync or ConnectAsync.
type EndpointResult struct {
	ID  int
	Err error
}
