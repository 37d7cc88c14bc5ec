package sse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventServer(t *testing.T, body ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "secret", r.URL.Query().Get("token"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, chunk := range body {
			_, _ = fmt.Fprint(w, chunk)
			flusher.Flush()
		}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialer_StreamsMessages(t *testing.T) {
	srv := eventServer(t,
		": heartbeat\n\n",
		"event: connected\ndata: {}\n\n",
		"data: {\"type\":\"vendors\"}\n\n",
		"id: 2\ndata: {\"type\":\"users\"}\n\n",
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := NewDialer(nil, nil).Dial(ctx, srv.URL+"/api/events?token=secret")
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"vendors"}`, string(got))

	got, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"users"}`, string(got))
}

func TestDialer_CloseUnblocksNext(t *testing.T) {
	srv := eventServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewDialer(nil, nil).Dial(ctx, srv.URL+"?token=secret")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestDialer_RejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Invalid or expired token"}`)
	}))
	defer srv.Close()

	_, err := NewDialer(nil, nil).Dial(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "401")
}

func TestDialer_SendsCustomHeaders(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-Client")
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	d := NewDialer(nil, nil)
	d.SetHeader("X-Client", "powatch")
	s, err := d.Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "powatch", <-got)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
