package watcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mardens/potracker/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/api/vendors", auth(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1},{"id":2}]`))
	}))
	mux.HandleFunc("/api/purchase-orders", auth(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	mux.HandleFunc("/api/auth/users", auth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRefresher(t *testing.T, token string) *Refresher {
	srv := apiServer(t)
	r := NewRefresher(srv.Client(), func(path string) string { return srv.URL + path }, zap.NewNop())
	r.SetToken(token)
	return r
}

func TestRefresher_Refresh(t *testing.T) {
	r := newTestRefresher(t, "good")

	n, err := r.Refresh(context.Background(), domain.KindVendors)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.Refresh(context.Background(), domain.KindPurchaseOrders)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	snap, ok := r.Snapshot(domain.KindVendors)
	require.True(t, ok)
	assert.Equal(t, 2, snap.Items)
	assert.NoError(t, snap.Err)
}

func TestRefresher_Errors(t *testing.T) {
	r := newTestRefresher(t, "good")

	_, err := r.Refresh(context.Background(), domain.KindUsers)
	assert.ErrorContains(t, err, "unexpected status")

	snap, ok := r.Snapshot(domain.KindUsers)
	require.True(t, ok)
	assert.Error(t, snap.Err)

	_, err = r.Refresh(context.Background(), "invoices")
	assert.ErrorIs(t, err, domain.ErrInvalidKind)
}

func TestRefresher_Unauthorized(t *testing.T) {
	r := newTestRefresher(t, "stale")

	_, err := r.Refresh(context.Background(), domain.KindVendors)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefresher_Handlers(t *testing.T) {
	r := newTestRefresher(t, "good")
	h := r.Handlers()

	require.NotNil(t, h.Vendors)
	require.NotNil(t, h.PurchaseOrders)
	require.NotNil(t, h.Users)

	assert.NoError(t, h.Vendors(context.Background()))
	assert.Error(t, h.Users(context.Background()))
}
