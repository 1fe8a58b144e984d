package socketutil

import (
	"context"
	"net"

	"github.com/sourcegraph/conc"

	"github.com/workspace-9/gosp/transport"
)

// BindDriver accepts connections on a listener and serves each one on its
// own goroutine.
type BindDriver struct {
	wc        WaitCloser[error]
	listener  net.Listener
	transport transport.Transport
	handler   ConnHandler
	observe   Observer
	conns     conc.WaitGroup
}

func NewBindDriver(
	ctx context.Context,
	tp transport.Transport,
	listener net.Listener,
	handler ConnHandler,
	observe Observer,
) *BindDriver {
	return &BindDriver{
		wc:        NewWaitCloser[error](ctx),
		listener:  listener,
		transport: tp,
		handler:   handler,
		observe:   observe,
	}
}

// Addr is the address the listener ended up on.
func (b *BindDriver) Addr() net.Addr {
	return b.listener.Addr()
}

// URL is Addr in address form, useful after binding an ephemeral port.
func (b *BindDriver) URL() string {
	return transport.BuildURL(b.listener.Addr(), b.transport)
}

// Run accepts until the driver is closed or the listener fails.
func (b *BindDriver) Run() {
	stop := context.AfterFunc(b.wc.Context(), func() {
		b.listener.Close()
	})
	err := b.run()
	stop()
	b.listener.Close()
	b.conns.Wait()
	b.wc.Finish(err)
}

func (b *BindDriver) run() error {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if b.wc.Context().Err() != nil {
				return nil
			}
			b.observe(StageAcceptFailed, b.URL(), "", err)
			return err
		}

		local, remote := urls(conn, b.transport)
		b.observe(StageAccepted, local, remote, nil)
		b.conns.Go(func() {
			err := serve(b.wc.Context(), conn, b.handler)
			b.observe(StageDisconnected, local, remote, err)
		})
	}
}

// Done is closed once Run returned.
func (b *BindDriver) Done() <-chan struct{} {
	return b.wc.Finished()
}

// Close stops accepting, closes every accepted connection and waits for
// Run. It returns the error that ended the accept loop, if any.
func (b *BindDriver) Close() error {
	return b.wc.Close()
}
