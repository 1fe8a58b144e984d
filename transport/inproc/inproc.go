// Package inproc connects sockets living in the same process. Every Transport
// value is its own namespace, so two gosp contexts never see each other's
// endpoints.
package inproc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/workspace-9/gosp/errs"
	"github.com/workspace-9/gosp/transport"
)

// Transport implements transport.Transport over net.Pipe.
type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

// New returns an empty inproc namespace.
func New() *Transport {
	return &Transport{listeners: make(map[string]*listener)}
}

func (*Transport) Name() string {
	return "inproc"
}

func (*Transport) Identity(addr transport.Address) (string, error) {
	return "inproc://" + addr.Name, nil
}

// Listen registers addr in the namespace.
func (t *Transport) Listen(_ context.Context, addr transport.Address) (net.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.listeners[addr.Name]; ok {
		return nil, errs.New("listen", addr.Raw, errs.AddressInUse, nil)
	}

	l := &listener{
		owner: t,
		addr:  Addr(addr.Name),
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	t.listeners[addr.Name] = l
	return l, nil
}

// Dial hands one end of a pipe to the listener bound at addr. A missing
// listener is not fatal; the name may be bound later.
func (t *Transport) Dial(ctx context.Context, addr transport.Address) (net.Conn, bool, error) {
	t.mu.Lock()
	l, ok := t.listeners[addr.Name]
	t.mu.Unlock()
	if !ok {
		return nil, false, fmt.Errorf("inproc %s: %w", addr.Name, syscall.ECONNREFUSED)
	}

	local, remote := net.Pipe()
	select {
	case l.conns <- &conn{Conn: remote, local: l.addr, remote: Addr(addr.Name + "#peer")}:
		return &conn{Conn: local, local: Addr(addr.Name + "#peer"), remote: l.addr}, false, nil
	case <-l.done:
		local.Close()
		remote.Close()
		return nil, false, fmt.Errorf("inproc %s: %w", addr.Name, syscall.ECONNREFUSED)
	case <-ctx.Done():
		local.Close()
		remote.Close()
		return nil, false, ctx.Err()
	}
}

func (t *Transport) remove(l *listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listeners[string(l.addr)] == l {
		delete(t.listeners, string(l.addr))
	}
}

// Addr is an inproc endpoint name.
type Addr string

func (Addr) Network() string {
	return "inproc"
}

func (a Addr) String() string {
	return string(a)
}

type listener struct {
	owner *Transport
	addr  Addr
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func (l *listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *listener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.owner.remove(l)
	})
	return nil
}

func (l *listener) Addr() net.Addr {
	return l.addr
}

// conn reports inproc addresses instead of the pipe's.
type conn struct {
	net.Conn
	local, remote Addr
}

func (c *conn) LocalAddr() net.Addr {
	return c.local
}

func (c *conn) RemoteAddr() net.Addr {
	return c.remote
}
