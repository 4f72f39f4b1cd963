package fallback

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"posdemo/backend/internal/domain"
	"posdemo/backend/internal/store"
)

// Store routes every call to the primary store with a deadline and repeats it
// against the local store when the primary is unavailable. Writes that land
// locally are not copied back to the primary.
type Store struct {
	primary   store.Store
	local     store.Store
	timeout   time.Duration
	log       *logrus.Logger
	fallbacks atomic.Int64
}

var _ store.Store = (*Store)(nil)

func New(primary store.Store, local store.Store, timeout time.Duration, logger *logrus.Logger) *Store {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{primary: primary, local: local, timeout: timeout, log: logger}
}

// Fallbacks counts how many calls were served by the local store.
func (s *Store) Fallbacks() int64 {
	return s.fallbacks.Load()
}

func call[T any](s *Store, ctx context.Context, op string, fn func(context.Context, store.Store) (T, error)) (T, error) {
	primaryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := fn(primaryCtx, s.primary)
	cancel()
	if err == nil || !s.shouldFallback(ctx, err) {
		return result, err
	}

	s.fallbacks.Add(1)
	s.log.WithField("op", op).WithError(err).Warn("primary store unavailable, using local fallback")
	return fn(ctx, s.local)
}

// shouldFallback reports whether err means the primary could not answer. A
// cancelled caller context is never retried.
func (s *Store) shouldFallback(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return errors.Is(err, store.ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return call(s, ctx, "list_products", func(ctx context.Context, st store.Store) ([]domain.Product, error) {
		return st.ListProducts(ctx)
	})
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return call(s, ctx, "get_product", func(ctx context.Context, st store.Store) (*domain.Product, error) {
		return st.GetProduct(ctx, id)
	})
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	return call(s, ctx, "create_product", func(ctx context.Context, st store.Store) (*domain.Product, error) {
		return st.CreateProduct(ctx, product)
	})
}

func (s *Store) UpdateProduct(ctx context.Context, id string, patch domain.ProductUpdateRequest) (*domain.Product, error) {
	return call(s, ctx, "update_product", func(ctx context.Context, st store.Store) (*domain.Product, error) {
		return st.UpdateProduct(ctx, id, patch)
	})
}

func (s *Store) DeleteProduct(ctx context.Context, id string) (bool, error) {
	return call(s, ctx, "delete_product", func(ctx context.Context, st store.Store) (bool, error) {
		return st.DeleteProduct(ctx, id)
	})
}

func (s *Store) DecrementStock(ctx context.Context, adjustments []domain.StockAdjustment) error {
	_, err := call(s, ctx, "decrement_stock", func(ctx context.Context, st store.Store) (struct{}, error) {
		return struct{}{}, st.DecrementStock(ctx, adjustments)
	})
	return err
}

func (s *Store) ListReceipts(ctx context.Context, filter store.ReceiptFilter) ([]domain.Receipt, error) {
	return call(s, ctx, "list_receipts", func(ctx context.Context, st store.Store) ([]domain.Receipt, error) {
		return st.ListReceipts(ctx, filter)
	})
}

func (s *Store) GetReceipt(ctx context.Context, id string) (*domain.Receipt, error) {
	return call(s, ctx, "get_receipt", func(ctx context.Context, st store.Store) (*domain.Receipt, error) {
		return st.GetReceipt(ctx, id)
	})
}

func (s *Store) CreateReceipt(ctx context.Context, receipt domain.Receipt) (*domain.Receipt, error) {
	return call(s, ctx, "create_receipt", func(ctx context.Context, st store.Store) (*domain.Receipt, error) {
		return st.CreateReceipt(ctx, receipt)
	})
}

func (s *Store) Close() error {
	return errors.Join(s.primary.Close(), s.local.Close())
}
