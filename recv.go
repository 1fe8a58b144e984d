package gosp

import (
	"context"

	"github.com/workspace-9/gosp/errs"
	"github.com/workspace-9/gosp/sp"
)

// Recv returns the body of the next message.
func (s *Socket) Recv() ([]byte, error) {
	m, err := s.RecvMsgContext(context.Background())
	if err != nil {
		return nil, err
	}
	return m.Body, nil
}

// RecvMsg returns the next message. On raw sockets the header is kept.
func (s *Socket) RecvMsg() (*Message, error) {
	return s.RecvMsgContext(context.Background())
}

// RecvMsgContext returns the next message or fails once ctx is done.
func (s *Socket) RecvMsgContext(ctx context.Context) (*Message, error) {
	if err := s.checkOpen("recv"); err != nil {
		return nil, err
	}
	if !s.pattern.CanRecv() {
		return nil, s.fail(errs.New("recv", "", errs.NotSupported, nil))
	}

	if s.pattern == Surveyor && !s.raw {
		m, err := s.recvSurvey(ctx)
		if err != nil {
			return nil, s.fail(err)
		}
		return m, nil
	}

	if s.pattern == Req && !s.raw {
		s.mu.Lock()
		pending := s.pending
		s.mu.Unlock()
		if pending == 0 {
			return nil, s.fail(errs.New("recv", "", errs.BadState, nil))
		}
	}

	if d := s.conf.RecvTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	for {
		select {
		case m := <-s.recvq:
			if m = s.accept(m); m == nil {
				continue
			}
			s.metrics.MessageReceived(s.pattern.String())
			return m, nil
		case <-s.closed:
			return nil, s.fail(s.closedErr("recv"))
		case <-ctx.Done():
			return nil, s.fail(ctxErr("recv", ctx))
		}
	}
}

// accept applies the cooked protocol state to an incoming message. It
// returns nil for messages that must be dropped.
func (s *Socket) accept(m *Message) *Message {
	if s.raw {
		return m
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.pattern {
	case Req:
		if s.pending == 0 || sp.Word(m.Header) != s.pending {
			s.metrics.MessageDropped(s.pattern.String(), "stale")
			return nil
		}
		s.pending = 0
	case Rep, Respondent:
		s.backtrace = m.Header
	}
	m.Header = nil
	return m
}
