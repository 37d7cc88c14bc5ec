package realtime

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// State is the observable connection state of a Subscriber
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateDisconnected State = "disconnected"
)

// Stream is an open server-push channel
type Stream interface {
	// Next blocks until the next data frame and returns its payload
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens streams
type Dialer interface {
	Dial(ctx context.Context, url string) (Stream, error)
}

// Subscriber keeps one stream open for the current token and dispatches its frames
type Subscriber struct {
	dialer   Dialer
	endpoint string
	logger   *zap.Logger
	metrics  Recorder
	onState  func(State)

	handlers atomic.Pointer[Handlers]
	inflight inflight

	// mu serializes lifecycle changes
	mu     sync.Mutex
	token  string
	closed bool

	// stateMu guards current and state; read loops only take this lock
	stateMu sync.Mutex
	current *connection
	state   State
}

// New creates an idle Subscriber
func New(dialer Dialer, opts ...Option) *Subscriber {
	s := &Subscriber{
		dialer:   dialer,
		endpoint: DefaultEndpoint,
		logger:   zap.NewNop(),
		metrics:  nopRecorder{},
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers.Store(&Handlers{})
	s.inflight.idle.L = &s.inflight.mu
	return s
}

// SetHandlers replaces the handler registry. The open stream is left alone;
// the next frame is routed to the new handlers.
func (s *Subscriber) SetHandlers(h Handlers) {
	s.handlers.Store(&h)
}

// SetToken switches the subscription to token. An empty token tears down
// any open stream. Setting the current token again is a no-op.
func (s *Subscriber) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || token == s.token {
		return
	}
	s.token = token

	s.teardown()
	if token == "" {
		return
	}
	s.open(token)
}

// Reconnect redials the current token after a transport drop. It does
// nothing unless the Subscriber is disconnected.
func (s *Subscriber) Reconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.token == "" || s.State() != StateDisconnected {
		return
	}
	s.teardown()
	s.open(s.token)
}

// open starts a connection for token. Caller holds s.mu.
func (s *Subscriber) open(token string) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		token:  token,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.stateMu.Lock()
	s.current = c
	s.setStateLocked(StateConnecting)
	s.stateMu.Unlock()

	go s.run(c)
}

// Close tears down the stream and disables the Subscriber. It is safe to
// call more than once. In-flight handlers are not cancelled; see Wait.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.token = ""
	s.teardown()
}

// Wait blocks until no dispatched handler is running. It may be called at
// any time; handlers dispatched while it blocks extend the wait. After Close
// it returns once the last handler has finished.
func (s *Subscriber) Wait() {
	s.inflight.wait()
}

// State returns the current connection state
func (s *Subscriber) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Token returns the token of the active subscription
func (s *Subscriber) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Endpoint returns the stream URL for token
func (s *Subscriber) Endpoint(token string) string {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return s.endpoint + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// teardown stops the current connection. Caller holds s.mu.
func (s *Subscriber) teardown() {
	s.stateMu.Lock()
	c := s.current
	s.current = nil
	s.setStateLocked(StateIdle)
	s.stateMu.Unlock()

	if c != nil {
		c.stop()
		s.logger.Debug("realtime stream closed")
	}
}

// run owns one connection for its whole life
func (s *Subscriber) run(c *connection) {
	defer close(c.done)

	endpoint := s.Endpoint(c.token)
	stream, err := s.dialer.Dial(c.ctx, endpoint)
	if err != nil {
		if c.ctx.Err() == nil {
			s.logger.Warn("failed to open realtime stream", zap.Error(err))
			s.transition(c, StateDisconnected)
		}
		return
	}
	if !c.attach(stream) {
		return
	}

	s.logger.Info("realtime stream open")
	s.transition(c, StateOpen)

	for {
		payload, err := stream.Next(c.ctx)
		if c.ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Warn("realtime stream dropped", zap.Error(err))
			s.transition(c, StateDisconnected)
			c.closeStream()
			return
		}
		if !c.deliver(func() { s.Dispatch(c.ctx, payload) }) {
			return
		}
	}
}

// transition applies st only while c is still the current connection
func (s *Subscriber) transition(c *connection, st State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.current != c {
		return
	}
	s.setStateLocked(st)
}

func (s *Subscriber) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	s.metrics.RecordStreamState(string(st))
	if s.onState != nil {
		s.onState(st)
	}
}

// connection is a single dial attempt and its stream
type connection struct {
	token  string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	stream  Stream
	stopped bool
	once    sync.Once
}

// attach records the dialed stream, closing it if stop already ran
func (c *connection) attach(stream Stream) bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		_ = stream.Close()
		return false
	}
	c.stream = stream
	c.mu.Unlock()
	return true
}

// closeStream closes the stream at most once
func (c *connection) closeStream() {
	c.mu.Lock()
	c.stopped = true
	stream := c.stream
	c.mu.Unlock()

	if stream == nil {
		return
	}
	c.once.Do(func() {
		_ = stream.Close()
	})
}

// deliver runs fn unless stop has begun. stop marks the connection under
// the same lock, so no frame is dispatched once teardown starts.
func (c *connection) deliver(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.ctx.Err() != nil {
		return false
	}
	fn()
	return true
}

// stop cancels the connection and waits for its read loop to exit
func (c *connection) stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.cancel()
	c.closeStream()
	<-c.done
}
