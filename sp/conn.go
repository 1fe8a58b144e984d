package sp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Conn is a connection that completed the header exchange.
type Conn struct {
	conn    net.Conn
	r       *bufio.Reader
	wmu     sync.Mutex
	maxRecv int64

	// Peer is the protocol announced by the remote side.
	Peer uint16
}

// Handshake exchanges headers over conn. The dialing side writes first so
// that synchronous pipes do not deadlock. The peer must announce want.
func Handshake(ctx context.Context, conn net.Conn, local, want uint16, dialer bool, maxRecv int64) (*Conn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	r := bufio.NewReader(conn)
	var peer Header
	if dialer {
		if _, err := (Header{Protocol: local}).WriteTo(conn); err != nil {
			return nil, err
		}
		if _, err := peer.ReadFrom(r); err != nil {
			return nil, err
		}
	} else {
		if _, err := peer.ReadFrom(r); err != nil {
			return nil, err
		}
		if _, err := (Header{Protocol: local}).WriteTo(conn); err != nil {
			return nil, err
		}
	}

	if peer.Protocol != want {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrProtocolMismatch, want, peer.Protocol)
	}

	return &Conn{conn: conn, r: r, maxRecv: maxRecv, Peer: peer.Protocol}, nil
}

// Send writes one message. It is safe to call from several goroutines.
func (c *Conn) Send(m Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := m.WriteTo(c.conn)
	return err
}

// Recv reads the next message. It must not be called concurrently.
func (c *Conn) Recv() (Message, error) {
	var m Message
	_, err := m.readLimited(c.r, c.maxRecv)
	return m, err
}

// Net gives access to the underlying conn.
func (c *Conn) Net() net.Conn {
	return c.conn
}

// Close the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
