package gosp

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/workspace-9/gosp/errs"
	"github.com/workspace-9/gosp/sp"
)

// Survey is one question broadcast by a SURVEYOR socket and the answers
// gathered until its deadline.
type Survey struct {
	sock     *Socket
	id       uint32
	deadline time.Time
	done     chan struct{}
	once     sync.Once

	mu       sync.Mutex
	replies  [][]byte
	sealed   bool
	reported bool
}

// Survey broadcasts payload to every connected respondent and returns the
// survey collecting their answers. A deadline of zero or less uses the
// socket's SurveyTime. Only one survey may be open at a time.
func (s *Socket) Survey(ctx context.Context, payload []byte, deadline time.Duration) (*Survey, error) {
	if s.pattern != Surveyor || s.raw {
		return nil, s.fail(errs.New("survey", "", errs.NotSupported, nil))
	}
	if err := s.checkOpen("survey"); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, s.fail(ctxErr("survey", ctx))
	}
	if deadline <= 0 {
		deadline = s.conf.SurveyTime()
	}

	v, err := s.startSurvey(payload, deadline)
	if err != nil {
		return nil, s.fail(err)
	}
	return v, nil
}

func (s *Socket) startSurvey(payload []byte, d time.Duration) (*Survey, error) {
	s.mu.Lock()
	if s.survey != nil && !s.survey.isSealed() {
		s.mu.Unlock()
		return nil, errs.New("survey", "", errs.SurveyInProgress, nil)
	}
	s.reqID++
	v := &Survey{
		sock:     s,
		id:       sp.MakeID(s.reqID),
		deadline: time.Now().Add(d),
		done:     make(chan struct{}),
	}
	s.survey = v
	s.mu.Unlock()

	s.broadcast(sp.Message{Header: sp.PutWord(nil, v.id), Body: payload}, 0)
	return v, nil
}

// Deadline is when the survey seals.
func (v *Survey) Deadline() time.Time {
	return v.deadline
}

func (v *Survey) isSealed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sealed || !time.Now().Before(v.deadline)
}

func (v *Survey) seal() {
	v.once.Do(func() {
		v.mu.Lock()
		v.sealed = true
		v.mu.Unlock()
		close(v.done)
	})
}

// Next returns the next reply in arrival order. It returns io.EOF once the
// deadline passed or the survey was closed.
func (v *Survey) Next(ctx context.Context) ([]byte, error) {
	m, err := v.next(ctx)
	if err != nil {
		return nil, err
	}
	return m.Body, nil
}

func (v *Survey) next(ctx context.Context) (*Message, error) {
	s := v.sock
	for {
		select {
		case <-s.closed:
			return nil, s.closedErr("survey")
		default:
		}
		v.mu.Lock()
		sealed := v.sealed
		v.mu.Unlock()
		if sealed {
			return nil, io.EOF
		}

		wait := time.Until(v.deadline)
		if wait <= 0 {
			// replies queued before the deadline still count
			select {
			case m := <-s.recvq:
				if v.accept(m) {
					return m, nil
				}
			default:
				v.seal()
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case m := <-s.recvq:
			timer.Stop()
			if v.accept(m) {
				return m, nil
			}
		case <-timer.C:
		case <-v.done:
			timer.Stop()
		case <-s.closed:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return nil, ctxErr("survey", ctx)
		}
	}
}

func (v *Survey) accept(m *Message) bool {
	s := v.sock
	if !v.add(m) {
		s.metrics.SurveyLate()
		return false
	}
	s.metrics.SurveyReply()
	s.metrics.MessageReceived(s.pattern.String())
	m.Header = nil
	return true
}

// add keeps m if it answers this survey and arrived before the deadline.
func (v *Survey) add(m *Message) bool {
	if len(m.Header) < sp.WordLen || sp.Word(m.Header) != v.id {
		return false
	}
	at := m.arrived
	if at.IsZero() {
		at = time.Now()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sealed || !at.Before(v.deadline) {
		return false
	}
	v.replies = append(v.replies, m.Body)
	return true
}

// Collect waits for the deadline and returns every reply. A survey nobody
// answered yields an empty slice.
func (v *Survey) Collect(ctx context.Context) ([][]byte, error) {
	for {
		_, err := v.Next(ctx)
		if err == io.EOF {
			return v.Replies(), nil
		}
		if err != nil {
			return v.Replies(), err
		}
	}
}

// Replies returns the replies gathered so far.
func (v *Survey) Replies() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.replies))
	copy(out, v.replies)
	return out
}

// Close seals the survey before its deadline. Later replies are dropped and
// a new survey may start.
func (v *Survey) Close() error {
	v.seal()
	return nil
}

// recvSurvey serves Recv on a cooked SURVEYOR.
func (s *Socket) recvSurvey(ctx context.Context) (*Message, error) {
	s.mu.Lock()
	v := s.survey
	s.mu.Unlock()
	if v == nil {
		return nil, errs.New("recv", "", errs.BadState, nil)
	}

	v.mu.Lock()
	reported := v.reported
	v.mu.Unlock()
	if reported {
		return nil, errs.New("recv", "", errs.BadState, nil)
	}

	m, err := v.next(ctx)
	if err == io.EOF {
		v.mu.Lock()
		v.reported = true
		v.mu.Unlock()
		return nil, errs.New("recv", "", errs.TimedOut, nil)
	}
	return m, err
}
