package gosp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	wk8 "github.com/wk8/go-ordered-map/v2"

	"github.com/workspace-9/gosp/errs"
	"github.com/workspace-9/gosp/sp"
)

const pipeIDMask = 0x7fffffff

type pipeEntry = wk8.Pair[uint32, *pipe]

// pipe is a connection that completed the header exchange.
type pipe struct {
	id       uint32
	endpoint int
	conn     *sp.Conn
	out      chan sp.Message
	done     chan struct{}
	once     sync.Once
}

func (p *pipe) stop() {
	p.once.Do(func() {
		close(p.done)
	})
}

type pipeRejected struct{}

func (pipeRejected) Error() string {
	return "Pipe rejected"
}

// ErrPipeRejected is reported when a socket refuses a connection, e.g. a
// second peer of a PAIR socket.
var ErrPipeRejected pipeRejected

// serveConn runs the protocol over one connection of ep.
func (s *Socket) serveConn(ep *endpoint, dialer bool) func(context.Context, net.Conn) error {
	return func(ctx context.Context, conn net.Conn) error {
		hctx, cancel := context.WithTimeout(ctx, s.conf.ConnectTimeout())
		c, err := sp.Handshake(hctx, conn, s.pattern.Number(), s.pattern.Peer().Number(), dialer, int64(s.conf.MaxRecvSize()))
		cancel()
		if err != nil {
			kind := errs.TransportFault
			if errors.Is(err, sp.ErrProtocolMismatch) || errors.Is(err, sp.ErrInvalidHeader) {
				kind = errs.ProtocolMismatch
			}
			err = errs.Wrap("handshake", ep.addr.Raw, err, kind)
			s.post(Event{EventType: EventTypeFailedHandshake, Endpoint: ep.id, RemoteAddr: conn.RemoteAddr().String(), Err: err})
			return err
		}

		p := s.attach(c, ep)
		if p == nil {
			return ErrPipeRejected
		}
		defer s.detach(p)

		s.post(Event{EventType: EventTypeReady, Endpoint: ep.id, RemoteAddr: conn.RemoteAddr().String()})
		return s.runPipe(ctx, p)
	}
}

func (s *Socket) attach(c *sp.Conn, ep *endpoint) *pipe {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateOpen {
		return nil
	}
	if s.pattern == Pair && s.pipes.Len() > 0 {
		return nil
	}

	s.lastPipe = (s.lastPipe + 1) & pipeIDMask
	if s.lastPipe == 0 {
		s.lastPipe = 1
	}
	p := &pipe{
		id:       s.lastPipe,
		endpoint: ep.id,
		conn:     c,
		out:      make(chan sp.Message, max(s.conf.QueueLen(), 0)),
		done:     make(chan struct{}),
	}
	s.pipes.Set(p.id, p)

	close(s.wake)
	s.wake = make(chan struct{})
	s.metrics.PipeAdded(s.pattern.String(), 1)
	return p
}

func (s *Socket) detach(p *pipe) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor != nil && s.cursor.Key == p.id {
		s.cursor = nil
	}
	s.pipes.Delete(p.id)
	s.metrics.PipeAdded(s.pattern.String(), -1)
}

// Peers is the number of connections that completed the handshake.
func (s *Socket) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipes.Len()
}

func (s *Socket) runPipe(ctx context.Context, p *pipe) error {
	var wg conc.WaitGroup
	wg.Go(func() {
		for {
			select {
			case m := <-p.out:
				if err := p.conn.Send(m); err != nil {
					p.conn.Close()
					return
				}
			case <-p.done:
				return
			}
		}
	})

	err := s.readPipe(ctx, p)
	p.stop()
	p.conn.Close()
	wg.Wait()
	return err
}

func (s *Socket) readPipe(ctx context.Context, p *pipe) error {
	for {
		raw, err := p.conn.Recv()
		if err != nil {
			return err
		}

		m, reason := s.decode(p, raw.Body)
		if m == nil {
			s.metrics.MessageDropped(s.pattern.String(), reason)
			continue
		}

		select {
		case s.recvq <- m:
		case <-s.closed:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// decode splits an incoming payload into header and body. It returns nil and
// a reason for messages that must be dropped.
func (s *Socket) decode(p *pipe, b []byte) (*Message, string) {
	if !s.pattern.CanRecv() {
		return nil, "unexpected"
	}

	m := &Message{pipe: p.id, from: s, arrived: time.Now()}
	switch s.pattern.info().header {
	case headerBacktrace:
		hdr, body, err := sp.SplitBacktrace(b)
		if err != nil {
			return nil, "malformed"
		}
		m.Header = append(sp.PutWord(make([]byte, 0, sp.WordLen+len(hdr)), p.id), hdr...)
		m.Body = body
	case headerID:
		if s.raw {
			if len(b) < sp.WordLen {
				return nil, "malformed"
			}
			m.Header, m.Body = b[:sp.WordLen], b[sp.WordLen:]
		} else {
			_, body, err := sp.SplitID(b)
			if err != nil {
				return nil, "malformed"
			}
			m.Header, m.Body = b[:sp.WordLen], body
		}
	default:
		m.Body = b
	}

	if s.pattern == Sub && !s.subscribed(m.Body) {
		return nil, "filtered"
	}
	return m, ""
}
