package order

import (
	"errors"
	"fmt"

	"posdemo/backend/internal/domain"
)

var (
	ErrOutOfStock = errors.New("product is out of stock")
	// ErrStockLimitExceeded is a warning: the cart was still updated, with the
	// quantity clamped to the available stock.
	ErrStockLimitExceeded  = errors.New("stock limit reached")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInsufficientPayment = errors.New("amount paid is less than total")
	ErrInvalidPayment      = errors.New("unsupported payment method")
	ErrItemNotInCart       = errors.New("product is not in cart")
)

// AddToCart adds one unit of product. The returned cart is always usable; a
// non-nil error of ErrStockLimitExceeded means the quantity was capped.
func AddToCart(cart []domain.CartItem, product domain.Product) ([]domain.CartItem, error) {
	next := cloneItems(cart)
	for i := range next {
		if next[i].ID != product.ID {
			continue
		}
		if product.Stock < 1 {
			return removeAt(next, i), ErrOutOfStock
		}
		next[i].Product = product
		if next[i].Quantity >= product.Stock {
			next[i].Quantity = product.Stock
			return next, fmt.Errorf("%w: only %d of %s available", ErrStockLimitExceeded, product.Stock, product.Name)
		}
		next[i].Quantity++
		return next, nil
	}

	if product.Stock < 1 {
		return next, fmt.Errorf("%w: %s", ErrOutOfStock, product.Name)
	}
	return append(next, domain.CartItem{Product: product, Quantity: 1}), nil
}

// SetQuantity replaces the quantity of product in the cart, checked against
// the live product passed in. A quantity of zero or less removes the line.
func SetQuantity(cart []domain.CartItem, product domain.Product, quantity int) ([]domain.CartItem, error) {
	next := cloneItems(cart)
	idx := indexOf(next, product.ID)
	if idx < 0 {
		return next, ErrItemNotInCart
	}
	if quantity <= 0 {
		return removeAt(next, idx), nil
	}
	if product.Stock < 1 {
		return removeAt(next, idx), fmt.Errorf("%w: %s", ErrOutOfStock, product.Name)
	}

	next[idx].Product = product
	if quantity > product.Stock {
		next[idx].Quantity = product.Stock
		return next, fmt.Errorf("%w: only %d of %s available", ErrStockLimitExceeded, product.Stock, product.Name)
	}
	next[idx].Quantity = quantity
	return next, nil
}

func RemoveFromCart(cart []domain.CartItem, productID string) []domain.CartItem {
	next := cloneItems(cart)
	if idx := indexOf(next, productID); idx >= 0 {
		return removeAt(next, idx)
	}
	return next
}

// Revalidate refreshes every line against live products. Lines for deleted or
// sold-out products are dropped and over-stock quantities are clamped; each
// change is reported as a warning.
func Revalidate(cart []domain.CartItem, live map[string]domain.Product) ([]domain.CartItem, []string) {
	next := make([]domain.CartItem, 0, len(cart))
	var warnings []string
	for _, item := range cart {
		product, ok := live[item.ID]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s is no longer available", item.Name))
			continue
		}
		if product.Stock < 1 {
			warnings = append(warnings, fmt.Sprintf("%s is out of stock", product.Name))
			continue
		}
		qty := item.Quantity
		if qty > product.Stock {
			qty = product.Stock
			warnings = append(warnings, fmt.Sprintf("only %d of %s available", product.Stock, product.Name))
		}
		next = append(next, domain.CartItem{Product: product, Quantity: qty})
	}
	return next, warnings
}

func indexOf(cart []domain.CartItem, productID string) int {
	for i := range cart {
		if cart[i].ID == productID {
			return i
		}
	}
	return -1
}

func removeAt(cart []domain.CartItem, idx int) []domain.CartItem {
	return append(cart[:idx], cart[idx+1:]...)
}

func cloneItems(cart []domain.CartItem) []domain.CartItem {
	dup := make([]domain.CartItem, len(cart), len(cart)+1)
	copy(dup, cart)
	return dup
}
