package gosp_test

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workspace-9/gosp"
	"github.com/workspace-9/gosp/errs"
)

// answer replies to every survey with name after delay until the socket
// closes.
func answer(s *gosp.Socket, name string, delay time.Duration) {
	for {
		if _, err := s.Recv(); err != nil {
			return
		}
		time.Sleep(delay)
		if err := s.Send([]byte(name)); err != nil {
			return
		}
	}
}

func surveyGroup(t *testing.T, c *gosp.Context, addr string, n int) *gosp.Socket {
	t.Helper()
	return staggeredSurveyGroup(t, c, addr, n, 0)
}

// staggeredSurveyGroup makes respondent i answer after i*step.
func staggeredSurveyGroup(t *testing.T, c *gosp.Context, addr string, n int, step time.Duration) *gosp.Socket {
	t.Helper()
	surveyor := newSocket(t, c, gosp.Surveyor)
	bind(t, surveyor, addr)
	for i := range n {
		r := newSocket(t, c, gosp.Respondent)
		connect(t, r, addr)
		go answer(r, fmt.Sprintf("respondent-%d", i), time.Duration(i)*step)
	}
	waitPeers(t, surveyor, n)
	return surveyor
}

func bodies(replies [][]byte) []string {
	out := make([]string, 0, len(replies))
	for _, r := range replies {
		out = append(out, string(r))
	}
	return out
}

func TestSurveyCollectsEveryReply(t *testing.T) {
	c := newContext(t)
	surveyor := staggeredSurveyGroup(t, c, "inproc://survey", 3, 50*time.Millisecond)

	v, err := surveyor.Survey(context.Background(), []byte("status?"), time.Second)
	require.NoError(t, err)

	replies, err := v.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"respondent-0", "respondent-1", "respondent-2"}, bodies(replies))

	_, err = v.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSurveyKeepsRepliesQueuedBeforeDeadline(t *testing.T) {
	c := newContext(t)
	surveyor := staggeredSurveyGroup(t, c, "inproc://survey-queued", 3, 20*time.Millisecond)

	v, err := surveyor.Survey(context.Background(), []byte("status?"), 300*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(500 * time.Millisecond)
	replies, err := v.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"respondent-0", "respondent-1", "respondent-2"}, bodies(replies))
}

func TestSurveyWithoutRespondentsIsEmpty(t *testing.T) {
	c := newContext(t)
	surveyor := newSocket(t, c, gosp.Surveyor)
	bind(t, surveyor, "inproc://lonely")

	v, err := surveyor.Survey(context.Background(), []byte("anyone?"), 20*time.Millisecond)
	require.NoError(t, err)
	replies, err := v.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, replies)
}

func TestSurveyInProgress(t *testing.T) {
	c := newContext(t)
	surveyor := newSocket(t, c, gosp.Surveyor)

	first, err := surveyor.Survey(context.Background(), []byte("one"), time.Minute)
	require.NoError(t, err)

	_, err = surveyor.Survey(context.Background(), []byte("two"), time.Minute)
	require.ErrorIs(t, err, errs.SurveyInProgress)
	assert.Equal(t, errs.SurveyInProgress, surveyor.LastError().Kind)
	assert.False(t, time.Now().After(first.Deadline()))

	require.NoError(t, first.Close())
	_, err = first.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	second, err := surveyor.Survey(context.Background(), []byte("two"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestSurveyEndsOnClose(t *testing.T) {
	c := newContext(t)
	surveyor := newSocket(t, c, gosp.Surveyor)

	v, err := surveyor.Survey(context.Background(), []byte("q"), time.Minute)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := v.Next(context.Background())
		errc <- err
	}()
	require.NoError(t, surveyor.Close())
	assert.ErrorIs(t, <-errc, errs.SocketClosed)
}

func TestSurveyNeedsCookedSurveyor(t *testing.T) {
	c := newContext(t)
	raw := newSocket(t, c, gosp.Surveyor, gosp.WithRaw())
	_, err := raw.Survey(context.Background(), nil, 0)
	assert.ErrorIs(t, err, errs.NotSupported)

	pub := newSocket(t, c, gosp.Pub)
	_, err = pub.Survey(context.Background(), nil, 0)
	assert.ErrorIs(t, err, errs.NotSupported)
}

func TestSurveyThroughSendRecv(t *testing.T) {
	c := newContext(t)
	surveyor := surveyGroup(t, c, "inproc://survey-send", 2)
	surveyor.Config().SetSurveyTime(200 * time.Millisecond)

	require.NoError(t, surveyor.Send([]byte("ping")))
	var got []string
	for range 2 {
		body, err := surveyor.Recv()
		require.NoError(t, err)
		got = append(got, string(body))
	}
	assert.ElementsMatch(t, []string{"respondent-0", "respondent-1"}, got)

	_, err := surveyor.Recv()
	assert.ErrorIs(t, err, errs.TimedOut)
	_, err = surveyor.Recv()
	assert.ErrorIs(t, err, errs.BadState)

	// a sealed survey makes room for the next one
	require.NoError(t, surveyor.Send([]byte("ping")))
	_, err = surveyor.Recv()
	require.NoError(t, err)
}

func TestLateRepliesAreDropped(t *testing.T) {
	c := newContext(t)
	surveyor := newSocket(t, c, gosp.Surveyor)
	slow := newSocket(t, c, gosp.Respondent)
	bind(t, surveyor, "inproc://late")
	connect(t, slow, "inproc://late")
	waitPeers(t, surveyor, 1)

	v, err := surveyor.Survey(context.Background(), []byte("q"), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "q", string(recv(t, slow)))

	time.Sleep(100 * time.Millisecond)
	send(t, slow, "too late")

	replies, err := v.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, replies)
}
