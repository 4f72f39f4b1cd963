package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"posdemo/backend/internal/domain"
	"posdemo/backend/internal/order"
	"posdemo/backend/internal/store"
	"posdemo/backend/internal/xid"
)

func (s *Service) OpenCart(ctx context.Context) (domain.CartView, error) {
	actor, _ := ActorFromContext(ctx)
	session := &domain.CartSession{
		ID:        xid.New("cart"),
		Items:     []domain.CartItem{},
		CreatedBy: actor.Username,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.carts.Set(ctx, session, s.cartTTL); err != nil {
		return domain.CartView{}, fmt.Errorf("save cart: %w", err)
	}
	return cartView(session, nil), nil
}

// GetCart returns the cart refreshed against live stock. Lines that changed
// are saved back and reported as warnings.
func (s *Service) GetCart(ctx context.Context, cartID string) (domain.CartView, error) {
	session, err := s.loadCart(ctx, cartID)
	if err != nil {
		return domain.CartView{}, err
	}
	warnings, err := s.revalidate(ctx, session)
	if err != nil {
		return domain.CartView{}, err
	}
	if len(warnings) > 0 {
		if err := s.saveCart(ctx, session); err != nil {
			return domain.CartView{}, err
		}
	}
	return cartView(session, warnings), nil
}

func (s *Service) AddToCart(ctx context.Context, cartID string, productID string) (domain.CartView, error) {
	session, err := s.loadCart(ctx, cartID)
	if err != nil {
		return domain.CartView{}, err
	}
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return domain.CartView{}, err
	}

	items, err := order.AddToCart(session.Items, product)
	if errors.Is(err, order.ErrOutOfStock) {
		session.Items = items
		if saveErr := s.saveCart(ctx, session); saveErr != nil {
			return domain.CartView{}, saveErr
		}
		return domain.CartView{}, err
	}
	warnings, err := splitWarning(err)
	if err != nil {
		return domain.CartView{}, err
	}
	session.Items = items
	if err := s.saveCart(ctx, session); err != nil {
		return domain.CartView{}, err
	}
	return cartView(session, warnings), nil
}

// SetCartQuantity replaces the quantity of a line. Zero or less removes it.
func (s *Service) SetCartQuantity(ctx context.Context, cartID string, productID string, quantity int) (domain.CartView, error) {
	if quantity <= 0 {
		return s.RemoveFromCart(ctx, cartID, productID)
	}

	session, err := s.loadCart(ctx, cartID)
	if err != nil {
		return domain.CartView{}, err
	}
	product, err := s.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		session.Items = order.RemoveFromCart(session.Items, productID)
		if saveErr := s.saveCart(ctx, session); saveErr != nil {
			return domain.CartView{}, saveErr
		}
		return domain.CartView{}, err
	}
	if err != nil {
		return domain.CartView{}, err
	}

	items, err := order.SetQuantity(session.Items, product, quantity)
	if errors.Is(err, order.ErrOutOfStock) {
		session.Items = items
		if saveErr := s.saveCart(ctx, session); saveErr != nil {
			return domain.CartView{}, saveErr
		}
		return domain.CartView{}, err
	}
	warnings, err := splitWarning(err)
	if err != nil {
		return domain.CartView{}, err
	}
	session.Items = items
	if err := s.saveCart(ctx, session); err != nil {
		return domain.CartView{}, err
	}
	return cartView(session, warnings), nil
}

func (s *Service) RemoveFromCart(ctx context.Context, cartID string, productID string) (domain.CartView, error) {
	session, err := s.loadCart(ctx, cartID)
	if err != nil {
		return domain.CartView{}, err
	}
	session.Items = order.RemoveFromCart(session.Items, strings.TrimSpace(productID))
	if err := s.saveCart(ctx, session); err != nil {
		return domain.CartView{}, err
	}
	return cartView(session, nil), nil
}

func (s *Service) DiscardCart(ctx context.Context, cartID string) error {
	if _, err := s.loadCart(ctx, cartID); err != nil {
		return err
	}
	return s.carts.Delete(ctx, cartID)
}

// CheckoutCart commits the cart after refreshing it against live stock. The
// session is removed only once the receipt is committed, so a failed
// checkout can be retried with the same idempotency key.
func (s *Service) CheckoutCart(ctx context.Context, cartID string, payment domain.PaymentRequest) (domain.CheckoutResponse, error) {
	session, err := s.loadCart(ctx, cartID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	warnings, err := s.revalidate(ctx, session)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if len(warnings) > 0 {
		if err := s.saveCart(ctx, session); err != nil {
			return domain.CheckoutResponse{}, err
		}
	}

	if strings.TrimSpace(payment.IdempotencyKey) == "" {
		payment.IdempotencyKey = session.ID
	}
	receipt, err := s.engine.Checkout(ctx, session.Items, payment)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	if err := s.carts.Delete(ctx, session.ID); err != nil {
		s.log.WithError(err).WithField("cart_id", session.ID).Warn("checkout committed but cart session was not removed")
	}
	s.logCheckout(ctx, receipt)
	return domain.CheckoutResponse{Receipt: *receipt, Warnings: warnings}, nil
}

func (s *Service) loadCart(ctx context.Context, cartID string) (*domain.CartSession, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, store.ErrInvalidInput
	}
	session, ok, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: cart %s", store.ErrNotFound, cartID)
	}
	return session, nil
}

func (s *Service) saveCart(ctx context.Context, session *domain.CartSession) error {
	session.UpdatedAt = s.now().UTC()
	if err := s.carts.Set(ctx, session, s.cartTTL); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *Service) revalidate(ctx context.Context, session *domain.CartSession) ([]string, error) {
	if len(session.Items) == 0 {
		return nil, nil
	}
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]domain.Product, len(products))
	for _, p := range products {
		live[p.ID] = p
	}
	items, warnings := order.Revalidate(session.Items, live)
	session.Items = items
	return warnings, nil
}

// splitWarning separates the non-fatal stock clamp from real failures.
func splitWarning(err error) ([]string, error) {
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, order.ErrStockLimitExceeded) {
		return []string{err.Error()}, nil
	}
	return nil, err
}

func cartView(session *domain.CartSession, warnings []string) domain.CartView {
	totals := order.ComputeTotals(session.Items)
	items := session.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return domain.CartView{
		ID:        session.ID,
		Items:     items,
		Subtotal:  totals.Subtotal,
		Tax:       totals.Tax,
		Total:     totals.Total,
		Warnings:  warnings,
		UpdatedAt: session.UpdatedAt,
	}
}
