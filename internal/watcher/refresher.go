package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mardens/potracker/pkg/domain"
	"github.com/mardens/potracker/pkg/realtime"
	"go.uber.org/zap"
)

// Collection paths on the dashboard API
var collectionPaths = map[domain.Kind]string{
	domain.KindVendors:        "/api/vendors",
	domain.KindPurchaseOrders: "/api/purchase-orders",
	domain.KindUsers:          "/api/auth/users",
}

// ErrUnauthorized is returned when the API rejects the token
var ErrUnauthorized = errors.New("token rejected by server")

// Snapshot is the outcome of the latest refetch of one collection
type Snapshot struct {
	Kind      domain.Kind
	Items     int
	FetchedAt time.Time
	Err       error
}

// Refresher refetches collections with a bearer token
type Refresher struct {
	client  *http.Client
	baseURL func(path string) string
	logger  *zap.Logger

	mu        sync.Mutex
	token     string
	snapshots map[domain.Kind]Snapshot
}

// NewRefresher creates a Refresher. resolve maps an API path to an absolute URL.
func NewRefresher(client *http.Client, resolve func(path string) string, logger *zap.Logger) *Refresher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		client:    client,
		baseURL:   resolve,
		logger:    logger,
		snapshots: make(map[domain.Kind]Snapshot),
	}
}

// SetToken sets the bearer token used for refetches
func (r *Refresher) SetToken(token string) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

// Handlers returns subscriber handlers that refetch each collection
func (r *Refresher) Handlers() realtime.Handlers {
	return realtime.Handlers{
		Vendors:        r.handler(domain.KindVendors),
		PurchaseOrders: r.handler(domain.KindPurchaseOrders),
		Users:          r.handler(domain.KindUsers),
	}
}

func (r *Refresher) handler(kind domain.Kind) realtime.Handler {
	return func(ctx context.Context) error {
		_, err := r.Refresh(ctx, kind)
		return err
	}
}

// Refresh fetches one collection and records the number of items returned
func (r *Refresher) Refresh(ctx context.Context, kind domain.Kind) (int, error) {
	path, ok := collectionPaths[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidKind, kind)
	}

	items, err := r.fetch(ctx, path)
	r.record(Snapshot{Kind: kind, Items: items, FetchedAt: time.Now(), Err: err})
	if err != nil {
		return 0, fmt.Errorf("failed to refresh %s: %w", kind, err)
	}

	r.logger.Info("collection refreshed",
		zap.String("kind", string(kind)),
		zap.Int("items", items))

	return items, nil
}

// Snapshot returns the latest refetch outcome for kind
func (r *Refresher) Snapshot(kind domain.Kind) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[kind]
	return s, ok
}

func (r *Refresher) record(s Snapshot) {
	r.mu.Lock()
	r.snapshots[s.Kind] = s
	r.mu.Unlock()
}

func (r *Refresher) fetch(ctx context.Context, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL(path), nil)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	token := r.token
	r.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return 0, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return 0, fmt.Errorf("failed to decode collection: %w", err)
	}

	return len(items), nil
}
