package gosp

import (
	"context"
	"errors"

	"github.com/workspace-9/gosp/errs"
	"github.com/workspace-9/gosp/sp"
)

// Send sends body.
func (s *Socket) Send(body []byte) error {
	return s.SendMsgContext(context.Background(), NewMessage(body))
}

// SendMsg sends m. On raw sockets m.Header is sent as is.
func (s *Socket) SendMsg(m *Message) error {
	return s.SendMsgContext(context.Background(), m)
}

// SendMsgContext sends m, blocking while no peer can take it on patterns
// that deliver to a single peer. On a cooked SURVEYOR it starts a survey.
func (s *Socket) SendMsgContext(ctx context.Context, m *Message) error {
	if err := s.checkOpen("send"); err != nil {
		return err
	}
	info := s.pattern.info()
	if info.send == sendNone {
		return s.fail(errs.New("send", "", errs.NotSupported, nil))
	}

	if s.pattern == Surveyor && !s.raw {
		_, err := s.startSurvey(m.Body, s.conf.SurveyTime())
		if err != nil {
			return s.fail(err)
		}
		return nil
	}

	out, err := s.prepare(m)
	if err != nil {
		return s.fail(err)
	}

	if d := s.conf.SendTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	switch info.send {
	case sendBroadcast:
		var origin uint32
		if m.from == s {
			origin = m.pipe
		}
		s.broadcast(out, origin)
	case sendReply:
		s.reply(out)
	default:
		if err := s.push(ctx, out); err != nil {
			return s.fail(err)
		}
	}
	return nil
}

// prepare builds the wire message, applying the cooked protocol state.
func (s *Socket) prepare(m *Message) (sp.Message, error) {
	out := sp.Message{Header: m.Header, Body: m.Body}
	if s.raw {
		return out, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.pattern {
	case Req:
		s.reqID++
		s.pending = sp.MakeID(s.reqID)
		out.Header = sp.PutWord(nil, s.pending)
	case Rep, Respondent:
		if s.backtrace == nil {
			return out, errs.New("send", "", errs.BadState, nil)
		}
		out.Header = s.backtrace
		s.backtrace = nil
	default:
		out.Header = nil
	}
	return out, nil
}

// broadcast hands out to every pipe except the one it came from. Full pipes
// miss the message.
func (s *Socket) broadcast(out sp.Message, origin uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pair := s.pipes.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == origin {
			continue
		}
		select {
		case pair.Value.out <- out:
			s.metrics.MessageSent(s.pattern.String())
		default:
			s.metrics.MessageDropped(s.pattern.String(), "full")
		}
	}
}

// reply routes out to the pipe named by the first header word. Replies to
// pipes that are gone or full are dropped.
func (s *Socket) reply(out sp.Message) {
	if len(out.Header) < sp.WordLen {
		s.metrics.MessageDropped(s.pattern.String(), "malformed")
		return
	}
	id := sp.Word(out.Header)
	out.Header = out.Header[sp.WordLen:]

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pipes.Get(id)
	if !ok {
		s.metrics.MessageDropped(s.pattern.String(), "gone")
		return
	}
	select {
	case p.out <- out:
		s.metrics.MessageSent(s.pattern.String())
	default:
		s.metrics.MessageDropped(s.pattern.String(), "full")
	}
}

// push delivers out to one pipe, round robin. It waits for a pipe when none
// is connected or all are full.
func (s *Socket) push(ctx context.Context, out sp.Message) error {
	for {
		s.mu.Lock()
		if s.state != stateOpen {
			err := s.closedErrLocked("send")
			s.mu.Unlock()
			return err
		}

		wake := s.wake
		if s.pipes.Len() == 0 {
			s.mu.Unlock()
			select {
			case <-wake:
				continue
			case <-s.closed:
				return s.closedErr("send")
			case <-ctx.Done():
				return ctxErr("send", ctx)
			}
		}

		cur := s.cursor
		for range s.pipes.Len() {
			cur = s.nextPipe(cur)
			select {
			case cur.Value.out <- out:
				s.cursor = cur
				s.mu.Unlock()
				s.metrics.MessageSent(s.pattern.String())
				return nil
			default:
			}
		}

		target := s.nextPipe(s.cursor)
		s.cursor = target
		s.mu.Unlock()

		select {
		case target.Value.out <- out:
			s.metrics.MessageSent(s.pattern.String())
			return nil
		case <-target.Value.done:
		case <-wake:
		case <-s.closed:
			return s.closedErr("send")
		case <-ctx.Done():
			return ctxErr("send", ctx)
		}
	}
}

func (s *Socket) nextPipe(cur *pipeEntry) *pipeEntry {
	if cur != nil {
		if next := cur.Next(); next != nil {
			return next
		}
	}
	return s.pipes.Oldest()
}

// ctxErr classifies the error of a finished context.
func ctxErr(op string, ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errs.New(op, "", errs.TimedOut, ctx.Err())
	}
	return errs.New(op, "", errs.Terminated, ctx.Err())
}
