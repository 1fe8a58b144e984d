//go:build windows

package ipc

import (
	"context"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
)

const pipePrefix = `\\.\pipe\`

func pipeName(path string) string {
	if strings.HasPrefix(path, pipePrefix) {
		return path
	}
	return pipePrefix + strings.TrimLeft(strings.ReplaceAll(path, "/", `\`), `\`)
}

func listen(_ context.Context, path string) (net.Listener, error) {
	return winio.ListenPipe(pipeName(path), nil)
}

func dial(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, pipeName(path))
}
