package socketutil_test

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/workspace-9/gosp/socketutil"
	"github.com/workspace-9/gosp/transport"
	"github.com/workspace-9/gosp/transport/inproc"
)

type stages struct {
	sync.Mutex
	seen []socketutil.Stage
}

func (s *stages) observe(stage socketutil.Stage, _, _ string, _ error) {
	s.Lock()
	defer s.Unlock()
	s.seen = append(s.seen, stage)
}

func (s *stages) count(stage socketutil.Stage) int {
	s.Lock()
	defer s.Unlock()
	n := 0
	for _, seen := range s.seen {
		if seen == stage {
			n++
		}
	}
	return n
}

func echo(_ context.Context, conn net.Conn) error {
	_, err := io.Copy(conn, conn)
	return err
}

var fastDial = socketutil.DialConfig{
	ConnectTimeout:    time.Second,
	ReconnectInterval: 5 * time.Millisecond,
	ReconnectMax:      20 * time.Millisecond,
}

func TestWaitCloser(t *testing.T) {
	wc := socketutil.NewWaitCloser[int](context.Background())
	go func() {
		<-wc.Done()
		wc.Finish(7)
	}()
	assert.Equal(t, 7, wc.Close())
	assert.Equal(t, 7, wc.Close())
	assert.Equal(t, 7, wc.Wait())
}

func TestBindAndConnectDrivers(t *testing.T) {
	defer goleak.VerifyNone(t)

	tp := inproc.New()
	addr, err := transport.Parse("inproc://drivers")
	require.NoError(t, err)

	var bindStages, dialStages stages
	ln, err := tp.Listen(context.Background(), addr)
	require.NoError(t, err)
	binder := socketutil.NewBindDriver(context.Background(), tp, ln, echo, bindStages.observe)
	go binder.Run()

	got := make(chan string, 1)
	dialer := socketutil.NewConnectionDriver(context.Background(), tp, addr, fastDial,
		func(ctx context.Context, conn net.Conn) error {
			if _, err := conn.Write([]byte("ping")); err != nil {
				return err
			}
			buf := make([]byte, 4)
			if _, err := io.ReadFull(conn, buf); err != nil {
				return err
			}
			got <- string(buf)
			<-ctx.Done()
			return ctx.Err()
		},
		dialStages.observe,
	)
	fatal, err := dialer.TryConnect(context.Background())
	require.NoError(t, err)
	require.False(t, fatal)
	go dialer.Run()

	select {
	case msg := <-got:
		assert.Equal(t, "ping", msg)
	case <-time.After(time.Second):
		t.Fatal("no echo")
	}

	require.NoError(t, dialer.Close())
	require.NoError(t, binder.Close())
	assert.Equal(t, 1, dialStages.count(socketutil.StageConnected))
	assert.Equal(t, 1, bindStages.count(socketutil.StageAccepted))
	assert.Equal(t, 1, bindStages.count(socketutil.StageDisconnected))
}

func TestConnectionDriverRedials(t *testing.T) {
	defer goleak.VerifyNone(t)

	tp := inproc.New()
	addr, err := transport.Parse("inproc://late")
	require.NoError(t, err)

	var dialStages stages
	dialer := socketutil.NewConnectionDriver(context.Background(), tp, addr, fastDial,
		func(ctx context.Context, _ net.Conn) error {
			<-ctx.Done()
			return nil
		},
		dialStages.observe,
	)
	fatal, err := dialer.TryConnect(context.Background())
	require.Error(t, err)
	require.False(t, fatal)
	go dialer.Run()

	// Bind only after the first attempt failed.
	ln, err := tp.Listen(context.Background(), addr)
	require.NoError(t, err)
	binder := socketutil.NewBindDriver(context.Background(), tp, ln, echo, func(socketutil.Stage, string, string, error) {})
	go binder.Run()

	require.Eventually(t, func() bool {
		return dialStages.count(socketutil.StageConnected) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, dialer.Close())
	require.NoError(t, binder.Close())
	assert.GreaterOrEqual(t, dialStages.count(socketutil.StageConnectFailed), 1)
}

type fatalTransport struct {
	*inproc.Transport
}

func (fatalTransport) Dial(context.Context, transport.Address) (net.Conn, bool, error) {
	return nil, true, errors.New("no such interface")
}

func TestConnectionDriverStopsOnFatal(t *testing.T) {
	defer goleak.VerifyNone(t)

	addr, err := transport.Parse("inproc://fatal")
	require.NoError(t, err)
	dialer := socketutil.NewConnectionDriver(context.Background(), fatalTransport{inproc.New()}, addr, fastDial,
		echo, func(socketutil.Stage, string, string, error) {})

	fatal, err := dialer.TryConnect(context.Background())
	require.Error(t, err)
	assert.True(t, fatal)
	dialer.Abandon()
}
