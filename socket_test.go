package gosp_test

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workspace-9/gosp"
	"github.com/workspace-9/gosp/errs"
	"github.com/workspace-9/gosp/transport"
	"github.com/workspace-9/gosp/transport/tcp"
)

func TestBindRejectsBadAddresses(t *testing.T) {
	c := newContext(t)
	s := newSocket(t, c, gosp.Pull)

	cases := []struct {
		addr string
		kind errs.Kind
	}{
		{"inproc:/missing_first_slash", errs.InvalidAddress},
		{"ipc:/missing_first_slash", errs.InvalidAddress},
		{"tcp://127.0.0.1", errs.InvalidAddress},
		{"zmq://127.0.0.1:6000", errs.ProtocolNotSupported},
		{"inproc://" + strings.Repeat("n", 129), errs.NameTooLong},
		{"tcp://eth99:5555", errs.NoSuchDevice},
	}
	for _, tc := range cases {
		_, err := s.Bind(tc.addr)
		assert.ErrorIs(t, err, tc.kind, tc.addr)
		assert.Equal(t, tc.kind, s.LastError().Kind, tc.addr)
		assert.Equal(t, tc.kind, c.LastError().Kind, tc.addr)
	}
	assert.Empty(t, s.Endpoints())
}

func TestConnectRejectsBadAddresses(t *testing.T) {
	c := newContext(t)
	s := newSocket(t, c, gosp.Push)

	for _, addr := range []string{"inproc:/missing_first_slash", "ipc:/missing_first_slash", "tcp://", "tcp://*:5555"} {
		_, err := s.Connect(addr)
		assert.ErrorIs(t, err, errs.InvalidAddress, addr)
	}
	_, err := s.Connect("tcp://127.0.0.1:65536")
	assert.ErrorIs(t, err, errs.InvalidAddress)
	_, err = s.Connect("zmq://127.0.0.1:6000")
	assert.ErrorIs(t, err, errs.ProtocolNotSupported)
	_, err = s.Connect("tcp://eth99;127.0.0.1:5555")
	assert.Error(t, err)
	assert.Empty(t, s.Endpoints())
}

func TestEndpointIDsAreSequential(t *testing.T) {
	c := newContext(t)
	s := newSocket(t, c, gosp.Push)

	assert.Equal(t, 1, connect(t, s, "inproc://nobody"))
	assert.Equal(t, 2, connect(t, s, "inproc://nobody"))

	_, err := s.Bind("zmq://x")
	require.Error(t, err)
	assert.Equal(t, 3, bind(t, s, "inproc://mine"))

	eps := s.Endpoints()
	require.Len(t, eps, 3)
	assert.Equal(t, gosp.RoleConnected, eps[0].Role)
	assert.Equal(t, gosp.RoleBound, eps[2].Role)
	assert.Equal(t, "inproc://mine", eps[2].Address.Raw)
}

func TestAddressInUseKeepsHolder(t *testing.T) {
	c := newContext(t)
	holder := newSocket(t, c, gosp.Pull)
	loser := newSocket(t, c, gosp.Pull)
	push := newSocket(t, c, gosp.Push)

	bind(t, holder, "inproc://taken")
	_, err := loser.Bind("inproc://taken")
	require.ErrorIs(t, err, errs.AddressInUse)
	assert.Equal(t, errs.AddressInUse, loser.LastError().Kind)
	assert.True(t, holder.LastError().IsZero())

	connect(t, push, "inproc://taken")
	send(t, push, "still here")
	assert.Equal(t, "still here", string(recv(t, holder)))
}

func TestAddressInUseOnTCP(t *testing.T) {
	c := newContext(t)
	a := newSocket(t, c, gosp.Pull)
	b := newSocket(t, c, gosp.Pull)

	bind(t, a, "tcp://127.0.0.1:0")
	local := a.Endpoints()[0].LocalAddr
	require.NotEmpty(t, local)

	_, err := b.Bind(local)
	assert.ErrorIs(t, err, errs.AddressInUse)
}

func TestConcurrentBindsHaveOneWinner(t *testing.T) {
	c := newContext(t)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range n {
		s := newSocket(t, c, gosp.Pull)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Bind("inproc://contended"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, errs.AddressInUse)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestShutdownReleasesAddress(t *testing.T) {
	c := newContext(t)
	s := newSocket(t, c, gosp.Pull)
	other := newSocket(t, c, gosp.Pull)

	id := bind(t, s, "inproc://again")
	require.NoError(t, s.Shutdown(id))
	assert.Empty(t, s.Endpoints())

	assert.Equal(t, 1, bind(t, other, "inproc://again"))
	err := s.Shutdown(id)
	assert.ErrorIs(t, err, errs.EndpointNotFound)
	assert.Equal(t, errs.EndpointNotFound, s.LastError().Kind)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := newContext(t)
	s := newSocket(t, c, gosp.Pull)
	bind(t, s, "inproc://closing")

	errc := make(chan error, 1)
	go func() {
		_, err := s.Recv()
		errc <- err
	}()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, errs.SocketClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("recv did not return after close")
	}

	_, err := s.Bind("inproc://closing")
	assert.ErrorIs(t, err, errs.SocketClosed)
	assert.NotContains(t, c.Sockets(), s)

	// the address is free again
	other := newSocket(t, c, gosp.Pull)
	bind(t, other, "inproc://closing")
}

func TestTermStopsEverything(t *testing.T) {
	c := gosp.NewContext(context.Background())
	s, err := c.NewSocket(gosp.Pull)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Recv()
		errc <- err
	}()

	require.NoError(t, c.Term())
	assert.ErrorIs(t, <-errc, errs.Terminated)

	_, err = c.NewSocket(gosp.Push)
	assert.ErrorIs(t, err, errs.Terminated)
	assert.Empty(t, c.Sockets())
	require.NoError(t, c.Term())
}

func TestNewSocketRejectsUnknownPattern(t *testing.T) {
	c := newContext(t)
	_, err := c.NewSocket(gosp.Pattern(7))
	assert.ErrorIs(t, err, errs.ProtocolNotSupported)
	assert.Equal(t, errs.ProtocolNotSupported, c.LastError().Kind)
}

func TestAsyncResultsAndEvents(t *testing.T) {
	rec := &recorder{}
	c := newContext(t, gosp.WithEventBus(rec))
	s := newSocket(t, c, gosp.Pull)

	res := <-s.BindAsync(context.Background(), "inproc://async")
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.ID)

	res = <-s.BindAsync(context.Background(), "inproc:/bad")
	assert.ErrorIs(t, res.Err, errs.InvalidAddress)

	res = <-s.ConnectAsync(context.Background(), "inproc://async-peer")
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.ID)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	res = <-s.ConnectAsync(cancelled, "inproc://async-peer")
	assert.ErrorIs(t, res.Err, errs.TimedOut)
	assert.Len(t, s.Endpoints(), 2)

	bound := rec.of(gosp.EventTypeBound)
	require.Len(t, bound, 1)
	assert.Equal(t, s.ID(), bound[0].Socket)
	assert.Equal(t, 1, bound[0].Endpoint)
	assert.Len(t, rec.of(gosp.EventTypeBindFailed), 1)
	assert.Len(t, rec.of(gosp.EventTypeConnected), 1)
}

func TestSubscribeOnlyOnSub(t *testing.T) {
	c := newContext(t)
	pub := newSocket(t, c, gosp.Pub)
	assert.ErrorIs(t, pub.Subscribe([]byte("a")), errs.NotSupported)

	sub := newSocket(t, c, gosp.Sub)
	require.NoError(t, sub.Subscribe([]byte("a")))
	require.NoError(t, sub.Unsubscribe([]byte("a")))
	assert.ErrorIs(t, sub.Unsubscribe([]byte("a")), errs.InvalidAddress)
}

func TestPatternMisuse(t *testing.T) {
	c := newContext(t)

	pull := newSocket(t, c, gosp.Pull)
	assert.ErrorIs(t, pull.Send([]byte("x")), errs.NotSupported)

	push := newSocket(t, c, gosp.Push)
	_, err := push.Recv()
	assert.ErrorIs(t, err, errs.NotSupported)

	req := newSocket(t, c, gosp.Req)
	_, err = req.Recv()
	assert.ErrorIs(t, err, errs.BadState)

	rep := newSocket(t, c, gosp.Rep)
	assert.ErrorIs(t, rep.Send([]byte("x")), errs.BadState)

	surveyor := newSocket(t, c, gosp.Surveyor)
	_, err = surveyor.Recv()
	assert.ErrorIs(t, err, errs.BadState)
}

func TestRecvTimeout(t *testing.T) {
	c := newContext(t)
	s := newSocket(t, c, gosp.Pull)
	s.Config().SetRecvTimeout(20 * time.Millisecond)

	_, err := s.Recv()
	assert.ErrorIs(t, err, errs.TimedOut)
}

// stalledTCP is a tcp transport whose dials hang until cancelled.
type stalledTCP struct {
	tcp.Transport
	dialing chan struct{}
}

func (s stalledTCP) Dial(ctx context.Context, _ transport.Address) (net.Conn, bool, error) {
	select {
	case s.dialing <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func TestCloseInterruptsPendingConnect(t *testing.T) {
	dialing := make(chan struct{}, 1)
	c := newContext(t, gosp.WithTransport(stalledTCP{dialing: dialing}))
	s := newSocket(t, c, gosp.Push)
	s.Config().SetConnectTimeout(time.Minute)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Connect("tcp://127.0.0.1:5555")
		errc <- err
	}()
	<-dialing

	// the socket stays usable while the dial is pending
	assert.Equal(t, 0, s.Peers())
	assert.Empty(t, s.Endpoints())

	require.NoError(t, s.Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, errs.SocketClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("connect still pending after close")
	}
	assert.Empty(t, s.Endpoints())
}

func TestConnectAsyncCancelStopsDial(t *testing.T) {
	dialing := make(chan struct{}, 1)
	c := newContext(t, gosp.WithTransport(stalledTCP{dialing: dialing}))
	s := newSocket(t, c, gosp.Push)
	s.Config().SetConnectTimeout(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	res := s.ConnectAsync(ctx, "tcp://127.0.0.1:5555")
	<-dialing
	cancel()

	select {
	case r := <-res:
		assert.ErrorIs(t, r.Err, errs.TimedOut)
	case <-time.After(5 * time.Second):
		t.Fatal("connect ignored cancellation")
	}
	assert.Empty(t, s.Endpoints())
}
