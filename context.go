// Package gosp implements scalability protocol sockets: PUB/SUB, PUSH/PULL,
// SURVEYOR/RESPONDENT, REQ/REP, PAIR and BUS over inproc, ipc and tcp,
// plus devices that bridge two sockets.
package gosp

import (
	"context"
	"sync"

	"github.com/google/uuid"
	wk8 "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/workspace-9/gosp/errs"
	"github.com/workspace-9/gosp/metric"
	"github.com/workspace-9/gosp/transport"
)

// Context owns transports, the table of bound addresses and every socket
// created from it. Term shuts all of them down.
type Context struct {
	sync.RWMutex
	transports map[string]transport.Transport
	ctx        context.Context
	cancel     context.CancelFunc
	bus        EventBus
	metrics    *metric.Metrics
	errs       errs.Registry
	claims     addressTable
	sockets    *wk8.OrderedMap[uuid.UUID, *Socket]
	terminated bool
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithEventBus sends the events of every socket to bus.
func WithEventBus(bus EventBus) ContextOption {
	return func(c *Context) {
		c.bus = bus
	}
}

// WithLogger logs events through logger.
func WithLogger(logger *zap.Logger) ContextOption {
	return func(c *Context) {
		c.bus = ZapBus{Logger: logger}
	}
}

// WithMetrics records socket and device metrics.
func WithMetrics(m *metric.Metrics) ContextOption {
	return func(c *Context) {
		c.metrics = m
	}
}

// WithTransport makes the context use tp for its scheme in place of the
// registered transport.
func WithTransport(tp transport.Transport) ContextOption {
	return func(c *Context) {
		c.transports[tp.Name()] = tp
	}
}

func NewContext(ctx context.Context, opts ...ContextOption) *Context {
	derived, cancel := context.WithCancel(ctx)
	c := &Context{
		ctx:        derived,
		cancel:     cancel,
		transports: make(map[string]transport.Transport),
		bus:        ZapBus{Logger: zap.NewNop()},
		claims:     addressTable{claims: make(map[string]claim)},
		sockets:    wk8.New[uuid.UUID, *Socket](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) getTransport(name string) (transport.Transport, bool) {
	c.Lock()
	defer c.Unlock()

	if tp, ok := c.transports[name]; ok {
		return tp, ok
	}

	registeredTransports.RLock()
	defer registeredTransports.RUnlock()
	if fac, ok := registeredTransports.transports[name]; ok {
		tp := fac()
		c.transports[name] = tp
		return tp, true
	}

	return nil, false
}

// NewSocket creates a socket of pattern p.
func (c *Context) NewSocket(p Pattern, opts ...SocketOption) (*Socket, error) {
	if !p.Valid() {
		err := errs.New("socket", "", errs.ProtocolNotSupported, nil)
		c.errs.RecordError(err)
		return nil, err
	}

	c.Lock()
	defer c.Unlock()
	if c.terminated {
		err := errs.New("socket", "", errs.Terminated, nil)
		c.errs.RecordError(err)
		return nil, err
	}

	sock := newSocket(c, p, opts...)
	c.sockets.Set(sock.id, sock)
	return sock, nil
}

func (c *Context) forget(s *Socket) {
	c.Lock()
	defer c.Unlock()
	c.sockets.Delete(s.id)
}

// Sockets lists the open sockets in creation order.
func (c *Context) Sockets() []*Socket {
	c.RLock()
	defer c.RUnlock()
	out := make([]*Socket, 0, c.sockets.Len())
	for pair := c.sockets.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// LastError is the most recent failure of any socket of this context.
func (c *Context) LastError() errs.Record {
	return c.errs.Last()
}

// Term closes every socket. Blocked and later operations on them fail with
// Terminated, which also stops every device running on them.
func (c *Context) Term() error {
	c.Lock()
	if c.terminated {
		c.Unlock()
		return nil
	}
	c.terminated = true
	socks := make([]*Socket, 0, c.sockets.Len())
	for pair := c.sockets.Oldest(); pair != nil; pair = pair.Next() {
		socks = append(socks, pair.Value)
	}
	c.Unlock()

	for _, s := range socks {
		s.close(errs.Terminated)
	}
	c.cancel()
	return nil
}
