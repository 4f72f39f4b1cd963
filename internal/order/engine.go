package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"posdemo/backend/internal/domain"
	"posdemo/backend/internal/store"
	"posdemo/backend/internal/xid"
)

// ReceiptWriter commits a receipt and its stock decrement atomically.
type ReceiptWriter interface {
	CreateReceipt(ctx context.Context, receipt domain.Receipt) (*domain.Receipt, error)
}

type Engine struct {
	store ReceiptWriter
	now   func() time.Time
}

func NewEngine(writer ReceiptWriter) *Engine {
	return &Engine{store: writer, now: time.Now}
}

func NormalizePaymentMethod(method string) (string, error) {
	switch m := strings.ToLower(strings.TrimSpace(method)); m {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentMobile:
		return m, nil
	case "":
		return domain.PaymentCash, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidPayment, method)
	}
}

// Checkout turns the cart into a committed receipt. Nothing is written when
// validation fails. When the store rejects the commit the cart is left as it
// was and the caller decides whether to retry.
func (e *Engine) Checkout(ctx context.Context, cart []domain.CartItem, payment domain.PaymentRequest) (*domain.Receipt, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}
	for _, item := range cart {
		if item.ID == "" || item.Quantity < 1 {
			return nil, fmt.Errorf("%w: cart line for %q", store.ErrInvalidInput, item.Name)
		}
	}

	method, err := NormalizePaymentMethod(payment.PaymentMethod)
	if err != nil {
		return nil, err
	}

	totals := ComputeTotals(cart)
	amountPaid := payment.AmountPaid
	change := 0.0
	if method == domain.PaymentCash {
		if !Covers(amountPaid, totals.Total) {
			return nil, fmt.Errorf("%w: paid %.2f, total %.2f", ErrInsufficientPayment, amountPaid, totals.Total)
		}
		change = max(Change(amountPaid, totals.Total), 0)
	} else {
		amountPaid = totals.Total
	}

	key := strings.TrimSpace(payment.IdempotencyKey)
	if key == "" {
		key = xid.New("ck")
	}

	items := make([]domain.CartItem, len(cart))
	copy(items, cart)

	receipt := domain.Receipt{
		IdempotencyKey: key,
		Items:          items,
		Subtotal:       totals.Subtotal,
		Tax:            totals.Tax,
		Total:          totals.Total,
		PaymentMethod:  method,
		AmountPaid:     amountPaid,
		Change:         change,
		CustomerName:   strings.TrimSpace(payment.CustomerName),
		CustomerEmail:  strings.TrimSpace(payment.CustomerEmail),
		CreatedAt:      e.now().UTC(),
	}

	committed, err := e.store.CreateReceipt(ctx, receipt)
	if err != nil {
		return nil, fmt.Errorf("commit receipt: %w", err)
	}
	return committed, nil
}
