package socketutil

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/workspace-9/gosp/transport"
)

// DialConfig tunes a ConnectionDriver.
type DialConfig struct {
	// ConnectTimeout bounds a single dial.
	ConnectTimeout time.Duration

	// ReconnectInterval is the first wait after a failure.
	ReconnectInterval time.Duration

	// ReconnectMax caps the exponential wait. Zero keeps it constant.
	ReconnectMax time.Duration
}

// ConnectionDriver keeps one outgoing connection alive, redialing with
// exponential backoff whenever it drops.
type ConnectionDriver struct {
	wc        WaitCloser[error]
	transport transport.Transport
	addr      transport.Address
	conf      DialConfig
	handler   ConnHandler
	observe   Observer
	backoff   *backoff.ExponentialBackOff
	pending   net.Conn
}

func NewConnectionDriver(
	ctx context.Context,
	tp transport.Transport,
	addr transport.Address,
	conf DialConfig,
	handler ConnHandler,
	observe Observer,
) *ConnectionDriver {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = conf.ReconnectInterval
	b.MaxInterval = conf.ReconnectMax
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Reset()

	return &ConnectionDriver{
		wc:        NewWaitCloser[error](ctx),
		transport: tp,
		addr:      addr,
		conf:      conf,
		handler:   handler,
		observe:   observe,
		backoff:   b,
	}
}

// TryConnect makes one dial attempt. The dial ends early when ctx or the
// driver is done. On success the connection is served by Run. It must not be
// called once Run started.
func (c *ConnectionDriver) TryConnect(ctx context.Context) (fatal bool, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.wc.Context(), cancel)
	defer stop()
	if c.conf.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.conf.ConnectTimeout)
		defer cancel()
	}

	conn, fatal, err := c.transport.Dial(ctx, c.addr)
	if err != nil {
		c.observe(StageConnectFailed, "", c.addr.Raw, err)
		return fatal, err
	}

	local, remote := urls(conn, c.transport)
	c.observe(StageConnected, local, remote, nil)
	c.backoff.Reset()
	c.pending = conn
	return false, nil
}

// Run serves and redials until the driver is closed or a dial fails fatally.
func (c *ConnectionDriver) Run() {
	c.wc.Finish(c.run())
}

func (c *ConnectionDriver) run() error {
	for {
		if err := c.wc.Context().Err(); err != nil {
			if c.pending != nil {
				c.pending.Close()
			}
			return nil
		}

		if c.pending == nil {
			fatal, err := c.TryConnect(c.wc.Context())
			if fatal {
				return err
			}
			if err != nil {
				if !c.wait() {
					return nil
				}
				continue
			}
		}

		conn := c.pending
		c.pending = nil
		local, remote := urls(conn, c.transport)
		err := serve(c.wc.Context(), conn, c.handler)
		c.observe(StageDisconnected, local, remote, err)
		if !c.wait() {
			return nil
		}
	}
}

// wait sleeps for the next backoff interval. It is false once the driver is
// closed.
func (c *ConnectionDriver) wait() bool {
	sleep := c.backoff.NextBackOff()
	if sleep == backoff.Stop {
		sleep = c.backoff.MaxInterval
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-c.wc.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Done is closed once Run returned.
func (c *ConnectionDriver) Done() <-chan struct{} {
	return c.wc.Finished()
}

// Close stops redialing, closes the live connection and waits for Run.
func (c *ConnectionDriver) Close() error {
	return c.wc.Close()
}

// Abandon releases a driver whose Run was never started.
func (c *ConnectionDriver) Abandon() {
	if c.pending != nil {
		c.pending.Close()
		c.pending = nil
	}
	c.wc.Finish(nil)
}
