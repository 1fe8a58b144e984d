// Package socketutil drives the listening and dialing side of endpoints.
package socketutil

import (
	"context"
	"net"

	"github.com/workspace-9/gosp/transport"
)

// Stage is a step in the life of a connection.
type Stage int

const (
	StageAccepted = Stage(iota)
	StageAcceptFailed
	StageConnected
	StageConnectFailed
	StageDisconnected
)

func (s Stage) String() string {
	switch s {
	case StageAccepted:
		return "Accepted"
	case StageAcceptFailed:
		return "Accept failed"
	case StageConnected:
		return "Connected"
	case StageConnectFailed:
		return "Connect failed"
	case StageDisconnected:
		return "Disconnected"
	}

	return ""
}

// Observer is told about every stage a driver goes through.
type Observer func(stage Stage, local, remote string, err error)

// ConnHandler runs an established connection until it ends. The driver
// closes conn once the handler returns or the driver is closed.
type ConnHandler func(ctx context.Context, conn net.Conn) error

func urls(conn net.Conn, tp transport.Transport) (local, remote string) {
	return transport.BuildURL(conn.LocalAddr(), tp), transport.BuildURL(conn.RemoteAddr(), tp)
}

func serve(ctx context.Context, conn net.Conn, handler ConnHandler) error {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	err := handler(ctx, conn)
	stop()
	conn.Close()
	return err
}
