package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingMetrics struct {
	nopRecorder
	dispatched []string
	discarded  []string
}

func (r *recordingMetrics) RecordFrameDispatched(kind string) {
	r.dispatched = append(r.dispatched, kind)
}

func (r *recordingMetrics) RecordFrameDiscarded(reason string) {
	r.discarded = append(r.discarded, reason)
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		dispatched []string
		discarded  []string
	}{
		{name: "vendors", payload: `{"type":"vendors"}`, dispatched: []string{"vendors"}},
		{name: "purchase orders with payload", payload: `{"type":"purchase_orders","ids":[1,2]}`, dispatched: []string{"purchase_orders"}},
		{name: "users", payload: `{"type":"users"}`, dispatched: []string{"users"}},
		{name: "invalid json", payload: `{oops`, discarded: []string{"malformed"}},
		{name: "heartbeat comment", payload: `: heartbeat`, discarded: []string{"malformed"}},
		{name: "empty", payload: ``, discarded: []string{"malformed"}},
		{name: "unknown tag", payload: `{"type":"unknown_tag"}`, discarded: []string{"unknown_type"}},
		{name: "missing tag", payload: `{"id":"1"}`, discarded: []string{"unknown_type"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &recordingMetrics{}
			sub := New(nil, WithMetrics(m))
			calls := make(chan string, 3)
			record := func(kind string) Handler {
				return func(ctx context.Context) error {
					calls <- kind
					return nil
				}
			}
			sub.SetHandlers(Handlers{
				Vendors:        record("vendors"),
				PurchaseOrders: record("purchase_orders"),
				Users:          record("users"),
			})

			sub.Dispatch(context.Background(), []byte(tt.payload))
			sub.Wait()
			close(calls)

			var got []string
			for c := range calls {
				got = append(got, c)
			}
			assert.Equal(t, tt.dispatched, got)
			assert.Equal(t, tt.dispatched, m.dispatched)
			assert.Equal(t, tt.discarded, m.discarded)
		})
	}
}

func TestDispatch_NilHandlerIsNoop(t *testing.T) {
	sub := New(nil)
	assert.NotPanics(t, func() {
		sub.Dispatch(context.Background(), []byte(`{"type":"vendors"}`))
		sub.Wait()
	})
}

func TestDispatch_DoesNotWaitForHandler(t *testing.T) {
	sub := New(nil)
	release := make(chan struct{})
	sub.SetHandlers(Handlers{Users: func(ctx context.Context) error {
		<-release
		return nil
	}})

	done := make(chan struct{})
	go func() {
		sub.Dispatch(context.Background(), []byte(`{"type":"users"}`))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on handler")
	}
	close(release)
	sub.Wait()
}
