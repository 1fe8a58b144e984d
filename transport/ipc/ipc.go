// Package ipc connects sockets through unix domain sockets, or named pipes on
// Windows.
package ipc

import (
	"context"
	"net"
	"path/filepath"

	"github.com/workspace-9/gosp/transport"
)

// Transport implements transport.Transport for ipc:// addresses.
type Transport struct{}

func (Transport) Name() string {
	return "ipc"
}

// Identity is the absolute socket path so that relative and absolute
// spellings of one file collide.
func (Transport) Identity(addr transport.Address) (string, error) {
	path, err := filepath.Abs(addr.Path)
	if err != nil {
		path = addr.Path
	}
	return "ipc://" + path, nil
}

func (Transport) Listen(ctx context.Context, addr transport.Address) (net.Listener, error) {
	return listen(ctx, addr.Path)
}

func (Transport) Dial(ctx context.Context, addr transport.Address) (net.Conn, bool, error) {
	conn, err := dial(ctx, addr.Path)
	return conn, false, err
}
