package realtime

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errStreamClosed = errors.New("stream closed")

type fakeStream struct {
	url    string
	frames chan []byte

	closes    atomic.Int32
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeStream(url string) *fakeStream {
	return &fakeStream{
		url:    url,
		frames: make(chan []byte),
		closed: make(chan struct{}),
	}
}

func (f *fakeStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case p, ok := <-f.frames:
		if !ok {
			return nil, io.EOF
		}
		return p, nil
	case <-f.closed:
		return nil, errStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeStream) Close() error {
	f.closes.Add(1)
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// send delivers a frame, failing the test if the read loop never takes it
func (f *fakeStream) send(t *testing.T, payload string) {
	t.Helper()
	select {
	case f.frames <- []byte(payload):
	case <-time.After(2 * time.Second):
		t.Fatalf("read loop did not consume frame %q", payload)
	}
}

type fakeDialer struct {
	mu      sync.Mutex
	streams []*fakeStream
	dialed  chan *fakeStream
	err     error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeStream, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeStream(url)
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	d.dialed <- s
	return s, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

func (d *fakeDialer) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-d.dialed:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no stream dialed")
		return nil
	}
}

// counter is a Handler that counts its invocations
type counter struct {
	n     atomic.Int32
	calls chan struct{}
}

func newCounter() *counter {
	return &counter{calls: make(chan struct{}, 64)}
}

func (c *counter) handle(ctx context.Context) error {
	c.n.Add(1)
	c.calls <- struct{}{}
	return nil
}

func (c *counter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func (c *counter) count() int {
	return int(c.n.Load())
}
