package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mardens/potracker/pkg/domain"
	"go.uber.org/zap"
)

// Handler refreshes one collection. It must be safe to run concurrently with itself.
type Handler func(ctx context.Context) error

// Handlers is the registry consulted on every dispatch. Nil entries are no-ops.
type Handlers struct {
	Vendors        Handler
	PurchaseOrders Handler
	Users          Handler
}

// lookup returns the handler registered for kind
func (h *Handlers) lookup(kind domain.Kind) (Handler, bool) {
	switch kind {
	case domain.KindVendors:
		return h.Vendors, true
	case domain.KindPurchaseOrders:
		return h.PurchaseOrders, true
	case domain.KindUsers:
		return h.Users, true
	}
	return nil, false
}

// Dispatch parses one frame payload and starts the matching handler.
// It never blocks on the handler and never returns an error.
func (s *Subscriber) Dispatch(ctx context.Context, payload []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		s.logger.Debug("discarding non-JSON frame", zap.Int("size", len(payload)))
		s.metrics.RecordFrameDiscarded("malformed")
		return
	}

	handlers := s.handlers.Load()
	handler, known := handlers.lookup(env.Type)
	if !known {
		s.logger.Debug("ignoring frame with unknown type", zap.String("type", string(env.Type)))
		s.metrics.RecordFrameDiscarded("unknown_type")
		return
	}

	s.metrics.RecordFrameDispatched(string(env.Type))
	if handler == nil {
		return
	}

	// Handlers outlive the stream that triggered them
	s.spawn(context.WithoutCancel(ctx), env.Type, handler)
}

// spawn runs handler in its own goroutine, isolating errors and panics
func (s *Subscriber) spawn(ctx context.Context, kind domain.Kind, handler Handler) {
	s.inflight.add()
	go func() {
		defer s.inflight.done()

		start := time.Now()
		err := safeCall(ctx, handler)
		s.metrics.RecordHandlerDuration(string(kind), time.Since(start))

		if err != nil {
			s.metrics.RecordHandlerFailure(string(kind))
			s.logger.Warn("realtime handler failed",
				zap.String("type", string(kind)),
				zap.Error(err))
		}
	}()
}

// inflight counts running handlers. Unlike a WaitGroup, waiting may overlap
// with new handlers starting.
type inflight struct {
	mu   sync.Mutex
	idle sync.Cond
	n    int
}

func (f *inflight) add() {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *inflight) done() {
	f.mu.Lock()
	f.n--
	if f.n == 0 {
		f.idle.Broadcast()
	}
	f.mu.Unlock()
}

func (f *inflight) wait() {
	f.mu.Lock()
	for f.n > 0 {
		f.idle.Wait()
	}
	f.mu.Unlock()
}

func safeCall(ctx context.Context, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx)
}
