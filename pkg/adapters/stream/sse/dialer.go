// Package sse implements a text/event-stream client for realtime.Subscriber.
package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mardens/potracker/pkg/realtime"
	"go.uber.org/zap"
)

// ErrUnexpectedStatus is returned when the server refuses the stream
var ErrUnexpectedStatus = errors.New("unexpected stream response status")

// Dialer opens event streams with an http.Client
type Dialer struct {
	client *http.Client
	header http.Header
	logger *zap.Logger
}

// NewDialer creates a Dialer. A nil client uses a client without timeout,
// since streams stay open indefinitely.
func NewDialer(client *http.Client, logger *zap.Logger) *Dialer {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{
		client: client,
		header: make(http.Header),
		logger: logger,
	}
}

// SetHeader adds a header sent with every stream request
func (d *Dialer) SetHeader(key, value string) {
	d.header.Set(key, value)
}

// Dial opens the stream at url. The stream lives until ctx is cancelled or Close is called.
func (d *Dialer) Dial(ctx context.Context, url string) (realtime.Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	for k, v := range d.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: %s", ErrUnexpectedStatus, resp.Status, strings.TrimSpace(string(body)))
	}

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		d.logger.Warn("stream response has unexpected content type", zap.String("content_type", ct))
	}

	return &stream{
		body:   resp.Body,
		reader: NewReader(resp.Body),
	}, nil
}

type stream struct {
	body   io.ReadCloser
	reader *Reader
}

// Next returns the data of the next message frame. Named events other
// than "message" are skipped, matching EventSource.onmessage.
func (s *stream) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := s.reader.ReadFrame()
		if err != nil {
			return nil, err
		}
		if !frame.IsMessage() {
			continue
		}
		return []byte(frame.Data), nil
	}
}

func (s *stream) Close() error {
	return s.body.Close()
}
