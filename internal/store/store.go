package store

import (
	"context"
	"errors"
	"time"

	"posdemo/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	// ErrStoreUnavailable is returned when the backing store cannot be reached
	// or did not answer in time. Callers may retry against a local store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ReceiptFilter bounds ListReceipts by creation time. Both ends are inclusive
// and either may be nil.
type ReceiptFilter struct {
	From *time.Time
	To   *time.Time
}

func (f ReceiptFilter) Match(createdAt time.Time) bool {
	if f.From != nil && createdAt.Before(*f.From) {
		return false
	}
	if f.To != nil && createdAt.After(*f.To) {
		return false
	}
	return true
}

// Store is the catalog and receipt persistence contract shared by every
// backend.
type Store interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, patch domain.ProductUpdateRequest) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) (bool, error)
	// DecrementStock applies every adjustment or none of them. It fails with
	// ErrInsufficientStock when any product has less stock than requested.
	DecrementStock(ctx context.Context, adjustments []domain.StockAdjustment) error
	ListReceipts(ctx context.Context, filter ReceiptFilter) ([]domain.Receipt, error)
	GetReceipt(ctx context.Context, id string) (*domain.Receipt, error)
	// CreateReceipt persists the receipt and decrements stock for its items in
	// one atomic step. A receipt whose idempotency key was already committed
	// is returned as-is without touching stock again.
	CreateReceipt(ctx context.Context, receipt domain.Receipt) (*domain.Receipt, error)
	Close() error
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// ValidateProduct checks the fields every backend requires before a write.
func ValidateProduct(p domain.Product) error {
	if p.Name == "" || p.Category == "" {
		return ErrInvalidInput
	}
	if p.Price < 0 || p.Stock < 0 {
		return ErrInvalidInput
	}
	return nil
}

// MergeAdjustments folds repeated product ids together so each product is
// checked against its combined quantity.
func MergeAdjustments(adjustments []domain.StockAdjustment) ([]domain.StockAdjustment, error) {
	merged := make([]domain.StockAdjustment, 0, len(adjustments))
	index := make(map[string]int, len(adjustments))
	for _, adj := range adjustments {
		if adj.ProductID == "" || adj.Quantity < 1 {
			return nil, ErrInvalidInput
		}
		if i, ok := index[adj.ProductID]; ok {
			merged[i].Quantity += adj.Quantity
			continue
		}
		index[adj.ProductID] = len(merged)
		merged = append(merged, adj)
	}
	return merged, nil
}

func CloneReceipt(src *domain.Receipt) *domain.Receipt {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = make([]domain.CartItem, len(src.Items))
	copy(dup.Items, src.Items)
	return &dup
}
