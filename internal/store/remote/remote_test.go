package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posdemo/backend/internal/domain"
	"posdemo/backend/internal/order"
	"posdemo/backend/internal/store"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestStore(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/v1", "secret-token", time.Second, quietLogger())
}

func TestListProductsSendsTokenAndDecodes(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"products": []domain.Product{{ID: "prod-1", Name: "Espresso", Price: 3.5, Stock: 4}},
		})
	})

	products, err := s.ListProducts(context.Background())

	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Espresso", products[0].Name)
}

func TestStatusCodesMapToStoreErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, store.ErrNotFound},
		{http.StatusConflict, store.ErrInsufficientStock},
		{http.StatusBadRequest, store.ErrInvalidInput},
		{http.StatusUnprocessableEntity, order.ErrInsufficientPayment},
		{http.StatusInternalServerError, store.ErrStoreUnavailable},
		{http.StatusServiceUnavailable, store.ErrStoreUnavailable},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
			})

			_, err := s.GetProduct(context.Background(), "prod-1")

			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	s := New(srv.URL, "", 50*time.Millisecond, quietLogger())

	_, err := s.ListProducts(context.Background())

	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
}

func TestUnreachableHostIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, "", time.Second, quietLogger()).ListReceipts(context.Background(), store.ReceiptFilter{})

	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
}

func TestListReceiptsPassesDateRange(t *testing.T) {
	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 28, 23, 59, 59, 0, time.UTC)
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-02-01T00:00:00Z", r.URL.Query().Get("dateFrom"))
		assert.Equal(t, "2025-02-28T23:59:59Z", r.URL.Query().Get("dateTo"))
		assert.Equal(t, "asc", r.URL.Query().Get("sort"))
		_ = json.NewEncoder(w).Encode(map[string]any{"receipts": []domain.Receipt{{ID: "r1", Total: 3.85}}})
	})

	receipts, err := s.ListReceipts(context.Background(), store.ReceiptFilter{From: &from, To: &to})

	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, "r1", receipts[0].ID)
}

func TestCreateReceiptPostsBody(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var got domain.Receipt
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "idem-9", got.IdempotencyKey)
		got.ID = "rcpt-9"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"receipt": got})
	})

	created, err := s.CreateReceipt(context.Background(), domain.Receipt{IdempotencyKey: "idem-9", Total: 1})

	require.NoError(t, err)
	assert.Equal(t, "rcpt-9", created.ID)
}

func TestDeleteProductMissingIsFalse(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ok, err := s.DeleteProduct(context.Background(), "prod-1")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidIDNeverLeavesProcess(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	})

	_, err := s.GetProduct(context.Background(), "../admin")

	assert.ErrorIs(t, err, store.ErrInvalidInput)
}
