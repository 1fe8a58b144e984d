//go:build !windows

package ipc

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
)

// listen binds a unix socket at path. A socket file left behind by a dead
// process is removed once nothing answers on it.
func listen(ctx context.Context, path string) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err == nil || !errors.Is(err, syscall.EADDRINUSE) {
		return ln, err
	}

	var d net.Dialer
	if conn, dialErr := d.DialContext(ctx, "unix", path); dialErr == nil {
		conn.Close()
		return nil, err
	}
	if rmErr := os.Remove(path); rmErr != nil {
		return nil, err
	}
	return lc.Listen(ctx, "unix", path)
}

func dial(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}
