package gosp

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	wk8 "github.com/wk8/go-ordered-map/v2"

	"github.com/workspace-9/gosp/errs"
	"github.com/workspace-9/gosp/internal/prefix"
	"github.com/workspace-9/gosp/metric"
	"github.com/workspace-9/gosp/socketutil"
	"github.com/workspace-9/gosp/transport"
)

type state int

const (
	stateOpen = state(iota)
	stateClosing
	stateClosed
)

// Socket is an endpoint of a messaging pattern. All methods are safe for
// concurrent use.
type Socket struct {
	id      uuid.UUID
	ctx     *Context
	pattern Pattern
	raw     bool
	conf    *Config
	bus     EventBus
	metrics *metric.Metrics
	errs    errs.Registry

	life   context.Context
	cancel context.CancelFunc
	closed chan struct{}
	recvq  chan *Message

	mu        sync.Mutex
	state     state
	closeKind errs.Kind
	lastID    int
	endpoints *wk8.OrderedMap[int, *endpoint]
	pipes     *wk8.OrderedMap[uint32, *pipe]
	lastPipe  uint32
	cursor    *pipeEntry
	wake      chan struct{}

	// cooked protocol state, guarded by mu
	reqID     uint32
	pending   uint32
	backtrace []byte
	survey    *Survey

	subMu sync.RWMutex
	subs  prefix.Tree
}

// SocketOption configures a socket at creation.
type SocketOption func(*Socket)

// WithRaw creates a raw socket. Raw sockets expose routing headers and keep
// no request or survey state; devices require them.
func WithRaw() SocketOption {
	return func(s *Socket) {
		s.raw = true
	}
}

// WithConfig replaces the default configuration.
func WithConfig(conf *Config) SocketOption {
	return func(s *Socket) {
		s.conf = conf
	}
}

// WithSocketEventBus sends this socket's events to bus instead of the
// context's.
func WithSocketEventBus(bus EventBus) SocketOption {
	return func(s *Socket) {
		s.bus = bus
	}
}

func newSocket(c *Context, p Pattern, opts ...SocketOption) *Socket {
	conf := &Config{}
	conf.Default()

	life, cancel := context.WithCancel(c.ctx)
	s := &Socket{
		id:        uuid.New(),
		ctx:       c,
		pattern:   p,
		conf:      conf,
		bus:       c.bus,
		metrics:   c.metrics,
		life:      life,
		cancel:    cancel,
		closed:    make(chan struct{}),
		endpoints: wk8.New[int, *endpoint](),
		pipes:     wk8.New[uint32, *pipe](),
		wake:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recvq = make(chan *Message, max(s.conf.QueueLen(), 0))
	return s
}

func (s *Socket) ID() uuid.UUID {
	return s.id
}

func (s *Socket) Pattern() Pattern {
	return s.pattern
}

func (s *Socket) Raw() bool {
	return s.raw
}

// Config gives access to the socket's tunables.
func (s *Socket) Config() *Config {
	return s.conf
}

// LastError is the most recent failure of this socket.
func (s *Socket) LastError() errs.Record {
	return s.errs.Last()
}

func (s *Socket) post(ev Event) {
	ev.Socket = s.id
	s.bus.Post(ev)
}

// fail records err before it is returned to the caller.
func (s *Socket) fail(err error) error {
	s.errs.RecordError(err)
	s.ctx.errs.RecordError(err)
	if kind, ok := errs.KindOf(err); ok {
		s.metrics.Failure(kind.String())
	}
	return err
}

func (s *Socket) closedErr(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closedErrLocked(op)
}

func (s *Socket) closedErrLocked(op string) error {
	kind := s.closeKind
	if kind == 0 {
		kind = errs.SocketClosed
	}
	return errs.New(op, "", kind, nil)
}

// checkOpen fails unless the socket is open.
func (s *Socket) checkOpen(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return s.fail(s.closedErrLocked(op))
	}
	return nil
}

// Bind listens on addr and returns the new endpoint id.
func (s *Socket) Bind(addr string) (int, error) {
	return s.bind(s.life, addr)
}

// BindAsync binds in the background. The channel delivers exactly one
// result. Cancelling ctx abandons the bind; a bind that completes anyway is
// shut down again.
func (s *Socket) BindAsync(ctx context.Context, addr string) <-chan EndpointResult {
	return s.async(ctx, "bind", addr, s.bind)
}

func (s *Socket) bind(ctx context.Context, raw string) (int, error) {
	id, err := s.doBind(ctx, raw)
	if err != nil {
		s.post(Event{EventType: EventTypeBindFailed, LocalAddr: raw, Err: err})
		return 0, s.fail(err)
	}
	s.post(Event{EventType: EventTypeBound, Endpoint: id, LocalAddr: raw})
	return id, nil
}

func (s *Socket) doBind(ctx context.Context, raw string) (int, error) {
	addr, err := transport.Parse(raw)
	if err != nil {
		return 0, errs.Wrap("bind", raw, err, errs.InvalidAddress)
	}

	tp, ok := s.ctx.getTransport(addr.Scheme())
	if !ok {
		return 0, errs.New("bind", raw, errs.ProtocolNotSupported, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return 0, s.closedErrLocked("bind")
	}

	identity, err := tp.Identity(addr)
	if err != nil {
		return 0, errs.Wrap("bind", raw, err, errs.NoSuchDevice)
	}

	id := s.lastID + 1
	if err := s.ctx.claims.claim(identity, raw, s.id, id); err != nil {
		return 0, err
	}

	ln, err := tp.Listen(ctx, addr)
	if err != nil {
		s.ctx.claims.release(identity, s.id, id)
		return 0, errs.Wrap("bind", raw, err, errs.TransportFault)
	}

	ep := &endpoint{id: id, role: RoleBound, addr: addr, identity: identity}
	driver := socketutil.NewBindDriver(s.life, tp, ln, s.serveConn(ep, false), s.observer(ep))
	ep.driver = driver
	ep.local = driver.URL
	s.lastID = id
	s.endpoints.Set(id, ep)
	s.metrics.EndpointAdded(RoleBound.String(), 1)
	go driver.Run()
	return id, nil
}

// Connect dials addr and returns the new endpoint id. Only failures that
// can never succeed are reported; otherwise the connection is retried in
// the background until the endpoint is shut down.
func (s *Socket) Connect(addr string) (int, error) {
	return s.connect(s.life, addr)
}

// ConnectAsync connects in the background. See BindAsync.
func (s *Socket) ConnectAsync(ctx context.Context, addr string) <-chan EndpointResult {
	return s.async(ctx, "connect", addr, s.connect)
}

func (s *Socket) connect(ctx context.Context, raw string) (int, error) {
	id, err := s.doConnect(ctx, raw)
	if err != nil {
		s.post(Event{EventType: EventTypeConnectFailed, RemoteAddr: raw, Err: err})
		return 0, s.fail(err)
	}
	s.post(Event{EventType: EventTypeConnected, Endpoint: id, RemoteAddr: raw})
	return id, nil
}

// doConnect reserves the endpoint id under the lock and dials without it, so
// Close can interrupt a slow dial.
func (s *Socket) doConnect(ctx context.Context, raw string) (int, error) {
	addr, err := transport.Parse(raw)
	if err != nil {
		return 0, errs.Wrap("connect", raw, err, errs.InvalidAddress)
	}
	if err := transport.ValidateConnect(addr); err != nil {
		return 0, errs.Wrap("connect", raw, err, errs.InvalidAddress)
	}

	tp, ok := s.ctx.getTransport(addr.Scheme())
	if !ok {
		return 0, errs.New("connect", raw, errs.ProtocolNotSupported, nil)
	}

	s.mu.Lock()
	if s.state != stateOpen {
		err := s.closedErrLocked("connect")
		s.mu.Unlock()
		return 0, err
	}
	s.lastID++
	id := s.lastID
	s.mu.Unlock()

	ep := &endpoint{id: id, role: RoleConnected, addr: addr}
	driver := socketutil.NewConnectionDriver(s.life, tp, addr, socketutil.DialConfig{
		ConnectTimeout:    s.conf.ConnectTimeout(),
		ReconnectInterval: s.conf.ReconnectInterval(),
		ReconnectMax:      s.conf.ReconnectMax(),
	}, s.serveConn(ep, true), s.observer(ep))

	fatal, err := driver.TryConnect(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		driver.Abandon()
		return 0, s.closedErrLocked("connect")
	}
	if fatal {
		driver.Abandon()
		if s.lastID == id {
			s.lastID--
		}
		return 0, errs.Wrap("connect", raw, err, errs.TransportFault)
	}

	ep.driver = driver
	s.endpoints.Set(id, ep)
	s.metrics.EndpointAdded(RoleConnected.String(), 1)
	go driver.Run()
	return id, nil
}

func (s *Socket) async(
	ctx context.Context,
	op, addr string,
	fn func(context.Context, string) (int, error),
) <-chan EndpointResult {
	out := make(chan EndpointResult, 1)
	go func() {
		if err := ctx.Err(); err != nil {
			out <- EndpointResult{Err: s.fail(errs.Wrap(op, addr, err, errs.TimedOut))}
			return
		}

		id, err := fn(ctx, addr)
		if err == nil && ctx.Err() != nil {
			s.Shutdown(id)
			id, err = 0, s.fail(errs.Wrap(op, addr, ctx.Err(), errs.TimedOut))
		}
		out <- EndpointResult{ID: id, Err: err}
	}()
	return out
}

// Shutdown removes one endpoint. Its connections are closed and a bound
// address becomes available again.
func (s *Socket) Shutdown(id int) error {
	s.mu.Lock()
	if s.state != stateOpen {
		err := s.closedErrLocked("shutdown")
		s.mu.Unlock()
		return s.fail(err)
	}
	ep, ok := s.endpoints.Get(id)
	if !ok {
		s.mu.Unlock()
		return s.fail(errs.New("shutdown", strconv.Itoa(id), errs.EndpointNotFound, nil))
	}
	s.endpoints.Delete(id)
	s.mu.Unlock()

	s.closeEndpoint(ep)
	s.post(Event{EventType: EventTypeShutdown, Endpoint: id, LocalAddr: ep.addr.Raw})
	return nil
}

func (s *Socket) closeEndpoint(ep *endpoint) {
	ep.driver.Close()
	s.ctx.claims.release(ep.identity, s.id, ep.id)
	s.metrics.EndpointAdded(ep.role.String(), -1)
}

// Endpoints lists the live endpoints in id order.
func (s *Socket) Endpoints() []EndpointInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EndpointInfo, 0, s.endpoints.Len())
	for pair := s.endpoints.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.info())
	}
	return out
}

// Close releases every endpoint, connection and bound address. Operations
// blocked on the socket fail with SocketClosed. Closing twice is a no-op.
func (s *Socket) Close() error {
	s.close(errs.SocketClosed)
	return nil
}

func (s *Socket) close(kind errs.Kind) {
	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		return
	}
	s.state = stateClosing
	s.closeKind = kind
	close(s.closed)

	eps := make([]*endpoint, 0, s.endpoints.Len())
	for pair := s.endpoints.Oldest(); pair != nil; pair = pair.Next() {
		eps = append(eps, pair.Value)
	}
	s.endpoints = wk8.New[int, *endpoint]()
	survey := s.survey
	s.mu.Unlock()

	s.cancel()
	for _, ep := range eps {
		s.closeEndpoint(ep)
	}
	if survey != nil {
		survey.seal()
	}

	s.mu.Lock()
	s.state = stateClosed
	s.mu.Unlock()

	s.ctx.forget(s)
	s.post(Event{EventType: EventTypeClosed})
}

// Subscribe adds a topic prefix on a SUB socket. The empty topic matches
// every message.
func (s *Socket) Subscribe(topic []byte) error {
	if s.pattern != Sub {
		return s.fail(errs.New("subscribe", "", errs.NotSupported, nil))
	}
	if err := s.checkOpen("subscribe"); err != nil {
		return err
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs.Add(topic)
	return nil
}

// Unsubscribe removes one reference to topic.
func (s *Socket) Unsubscribe(topic []byte) error {
	if s.pattern != Sub {
		return s.fail(errs.New("unsubscribe", "", errs.NotSupported, nil))
	}
	if err := s.checkOpen("unsubscribe"); err != nil {
		return err
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if !s.subs.Remove(topic) {
		return s.fail(errs.New("unsubscribe", "", errs.InvalidAddress, nil))
	}
	return nil
}

func (s *Socket) subscribed(body []byte) bool {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return s.subs.Match(body)
}

func (s *Socket) observer(ep *endpoint) socketutil.Observer {
	return func(stage socketutil.Stage, local, remote string, err error) {
		var typ EventType
		switch stage {
		case socketutil.StageAccepted:
			typ = EventTypeAccepted
		case socketutil.StageAcceptFailed:
			typ = EventTypeAcceptFailed
		case socketutil.StageConnected:
			typ = EventTypeDialed
		case socketutil.StageConnectFailed:
			typ = EventTypeDialFailed
		case socketutil.StageDisconnected:
			typ = EventTypeDisconnected
		}
		s.post(Event{EventType: typ, Endpoint: ep.id, LocalAddr: local, RemoteAddr: remote, Err: err})
	}
}
