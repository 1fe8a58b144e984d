// Package transport defines how sockets reach each other and parses the
// endpoint address grammar shared by every transport.
package transport

import (
	"context"
	"fmt"
	"net"
)

// Transport represents a method of generating connections.
type Transport interface {
	// Name of the transport, which is also its URL scheme.
	Name() string

	// Identity returns the key under which a bind of addr is registered in
	// the process wide address table. An empty identity is never registered
	// (e.g. tcp port 0). Resolution failures such as an unknown interface
	// are reported here.
	Identity(addr Address) (string, error)

	// Listen creates a listener for addr.
	Listen(ctx context.Context, addr Address) (net.Listener, error)

	// Dial connects to addr. Fatal errors will not go away by retrying.
	Dial(ctx context.Context, addr Address) (conn net.Conn, fatal bool, err error)
}

// BuildURL builds a URL given a transport and a network address.
func BuildURL(addr net.Addr, tp Transport) string {
	if addr == nil {
		return ""
	}
	return fmt.Sprintf("%s://%s", tp.Name(), addr.String())
}
