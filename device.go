package gosp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/workspace-9/gosp/errs"
)

// DeviceMode tells which directions a device forwards.
type DeviceMode int

const (
	// Bidirectional forwards a to b and b to a.
	Bidirectional = DeviceMode(iota + 1)
	// Unidirectional forwards from the side that receives to the side that
	// sends.
	Unidirectional
	// Loopback sends every message back out of the socket it came from.
	Loopback
)

func (m DeviceMode) String() string {
	switch m {
	case Bidirectional:
		return "bidirectional"
	case Unidirectional:
		return "unidirectional"
	case Loopback:
		return "loopback"
	}
	return ""
}

// DeviceError is returned by Run when one of the sockets failed.
type DeviceError struct {
	// Peer is the socket that failed.
	Peer uuid.UUID
	// Record is the peer's last error at the time of the failure.
	Record errs.Record
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device peer %s failed: %v", e.Peer, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Device forwards messages between two raw sockets without looking at them.
// It never closes its sockets.
type Device struct {
	id      uuid.UUID
	name    string
	a, b    *Socket
	mode    DeviceMode
	routes  [][2]*Socket

	stopCtx context.Context
	stop    context.CancelFunc
	running atomic.Bool
}

// DeviceOption configures a device.
type DeviceOption func(*Device)

// WithDeviceName labels the device in metrics. The id is used otherwise.
func WithDeviceName(name string) DeviceOption {
	return func(d *Device) {
		d.name = name
	}
}

// NewDevice joins a and b. Both must be raw and open, and their patterns must
// be peers of each other. A nil b makes a loopback device on a.
func NewDevice(a, b *Socket, opts ...DeviceOption) (*Device, error) {
	if a == nil {
		return nil, errs.New("device", "", errs.NotSupported, nil)
	}

	d := &Device{id: uuid.New(), a: a, b: b}
	d.name = d.id.String()
	for _, opt := range opts {
		opt(d)
	}

	if err := d.plan(); err != nil {
		return nil, err
	}
	d.stopCtx, d.stop = context.WithCancel(context.Background())
	return d, nil
}

// plan checks the sockets and picks the forwarding routes.
func (d *Device) plan() error {
	a, b := d.a, d.b
	unsupported := func() error {
		return a.fail(errs.New("device", "", errs.NotSupported, nil))
	}

	if !a.raw {
		return unsupported()
	}
	if err := a.checkOpen("device"); err != nil {
		return err
	}

	if b == nil {
		if !a.pattern.CanSend() || !a.pattern.CanRecv() {
			return unsupported()
		}
		d.mode = Loopback
		d.routes = [][2]*Socket{{a, a}}
		return nil
	}

	if !b.raw || a == b || a.pattern.Peer() != b.pattern {
		return unsupported()
	}
	if err := b.checkOpen("device"); err != nil {
		return err
	}

	if a.pattern.CanRecv() && b.pattern.CanSend() {
		d.routes = append(d.routes, [2]*Socket{a, b})
	}
	if b.pattern.CanRecv() && a.pattern.CanSend() {
		d.routes = append(d.routes, [2]*Socket{b, a})
	}
	switch len(d.routes) {
	case 0:
		return unsupported()
	case 1:
		d.mode = Unidirectional
	default:
		d.mode = Bidirectional
	}
	return nil
}

func (d *Device) ID() uuid.UUID {
	return d.id
}

func (d *Device) Mode() DeviceMode {
	return d.mode
}

// Run forwards until ctx is done, Stop is called or a socket fails. Only the
// failure of a socket is reported, as a *DeviceError. Messages keep their
// order within each direction.
func (d *Device) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errs.New("device", "", errs.BadState, nil)
	}
	defer d.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	unhook := context.AfterFunc(d.stopCtx, cancel)
	defer unhook()

	var (
		once   sync.Once
		result error
		wg     conc.WaitGroup
	)
	for _, route := range d.routes {
		wg.Go(func() {
			peer, err := d.forward(runCtx, route[0], route[1])
			if err == nil {
				return
			}
			once.Do(func() {
				result = d.failed(peer, err)
				cancel()
			})
		})
	}
	wg.Wait()
	return result
}

// forward moves messages from src to dst. It returns the socket that failed
// and its error, or nil once ctx is done.
func (d *Device) forward(ctx context.Context, src, dst *Socket) (*Socket, error) {
	for {
		m, err := src.RecvMsgContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return src, err
		}

		if err := dst.SendMsgContext(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return dst, err
		}
		dst.metrics.Forwarded(d.name)
	}
}

func (d *Device) failed(peer *Socket, err error) error {
	derr := &DeviceError{Peer: peer.id, Record: peer.LastError(), Err: err}
	peer.metrics.DeviceFailed(d.name)
	peer.post(Event{EventType: EventTypeDeviceFailed, Err: derr})
	return derr
}

// Start runs the device in the background. The channel delivers the result
// of Run.
func (d *Device) Start(ctx context.Context) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- d.Run(ctx)
	}()
	return out
}

// Stop ends Run. A stopped device cannot be run again.
func (d *Device) Stop() {
	d.stop()
}
