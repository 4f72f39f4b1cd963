package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"posdemo/backend/internal/domain"
	"posdemo/backend/internal/money"
	"posdemo/backend/internal/order"
	"posdemo/backend/internal/sales"
	"posdemo/backend/internal/store"
	"posdemo/backend/internal/xid"
)

const (
	SortNewest = "desc"
	SortOldest = "asc"
)

// Checkout builds the cart from live products, ignoring any client prices,
// and commits it. Quantities above the current stock are rejected.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	if len(req.Items) == 0 {
		return domain.CheckoutResponse{}, order.ErrEmptyCart
	}

	adjustments := make([]domain.StockAdjustment, 0, len(req.Items))
	for _, line := range req.Items {
		adjustments = append(adjustments, domain.StockAdjustment{ProductID: strings.TrimSpace(line.ProductID), Quantity: line.Quantity})
	}
	merged, err := store.MergeAdjustments(adjustments)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	cart := make([]domain.CartItem, 0, len(merged))
	for _, adj := range merged {
		product, err := s.GetProduct(ctx, adj.ProductID)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		if product.Stock < adj.Quantity {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: only %d of %s available", store.ErrInsufficientStock, product.Stock, product.Name)
		}
		cart = append(cart, domain.CartItem{Product: product, Quantity: adj.Quantity})
	}

	receipt, err := s.engine.Checkout(ctx, cart, domain.PaymentRequest{
		IdempotencyKey: req.IdempotencyKey,
		PaymentMethod:  req.PaymentMethod,
		AmountPaid:     req.AmountPaid,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	s.logCheckout(ctx, receipt)
	return domain.CheckoutResponse{Receipt: *receipt}, nil
}

// RecordReceipt stores a receipt produced elsewhere, such as a terminal
// using this instance as its remote store. Totals are recomputed from the
// item snapshots so a caller cannot commit inconsistent amounts.
func (s *Service) RecordReceipt(ctx context.Context, receipt domain.Receipt) (domain.Receipt, error) {
	if len(receipt.Items) == 0 {
		return domain.Receipt{}, order.ErrEmptyCart
	}
	for _, item := range receipt.Items {
		if strings.TrimSpace(item.ID) == "" || item.Quantity < 1 || item.Price < 0 {
			return domain.Receipt{}, fmt.Errorf("%w: receipt line %q", store.ErrInvalidInput, item.Name)
		}
	}
	if receipt.ID != "" && !xid.Valid(receipt.ID) {
		return domain.Receipt{}, fmt.Errorf("%w: receipt id %q", store.ErrInvalidInput, receipt.ID)
	}

	method, err := order.NormalizePaymentMethod(receipt.PaymentMethod)
	if err != nil {
		return domain.Receipt{}, err
	}
	totals := order.ComputeTotals(receipt.Items)
	receipt.PaymentMethod = method
	receipt.Subtotal = totals.Subtotal
	receipt.Tax = totals.Tax
	receipt.Total = totals.Total
	if method == domain.PaymentCash {
		if !order.Covers(receipt.AmountPaid, totals.Total) {
			return domain.Receipt{}, fmt.Errorf("%w: paid %.2f, total %.2f", order.ErrInsufficientPayment, receipt.AmountPaid, totals.Total)
		}
		receipt.Change = max(order.Change(receipt.AmountPaid, totals.Total), 0)
	} else {
		receipt.AmountPaid = totals.Total
		receipt.Change = 0
	}
	receipt.IdempotencyKey = strings.TrimSpace(receipt.IdempotencyKey)
	receipt.CustomerName = strings.TrimSpace(receipt.CustomerName)
	receipt.CustomerEmail = strings.TrimSpace(receipt.CustomerEmail)

	saved, err := s.store.CreateReceipt(ctx, receipt)
	if err != nil {
		return domain.Receipt{}, err
	}
	s.logCheckout(ctx, saved)
	return *saved, nil
}

// ListReceipts filters by date range in the store, then by search text on
// receipt id or item name, and orders by creation time.
func (s *Service) ListReceipts(ctx context.Context, query domain.ReceiptQuery) ([]domain.Receipt, error) {
	if query.From != nil && query.To != nil && query.From.After(*query.To) {
		return nil, fmt.Errorf("%w: date range is reversed", store.ErrInvalidInput)
	}
	sortOrder := strings.ToLower(strings.TrimSpace(query.Sort))
	switch sortOrder {
	case "":
		sortOrder = SortNewest
	case SortNewest, SortOldest:
	default:
		return nil, fmt.Errorf("%w: sort %q", store.ErrInvalidInput, query.Sort)
	}

	receipts, err := s.store.ListReceipts(ctx, store.ReceiptFilter{From: query.From, To: query.To})
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(query.Search))
	if search != "" {
		filtered := receipts[:0]
		for _, r := range receipts {
			if receiptMatches(r, search) {
				filtered = append(filtered, r)
			}
		}
		receipts = filtered
	}

	sort.SliceStable(receipts, func(i, j int) bool {
		if sortOrder == SortOldest {
			return receipts[i].CreatedAt.Before(receipts[j].CreatedAt)
		}
		return receipts[i].CreatedAt.After(receipts[j].CreatedAt)
	})
	return receipts, nil
}

func receiptMatches(r domain.Receipt, search string) bool {
	if strings.Contains(strings.ToLower(r.ID), search) {
		return true
	}
	for _, item := range r.Items {
		if strings.Contains(strings.ToLower(item.Name), search) {
			return true
		}
	}
	return false
}

func (s *Service) GetReceipt(ctx context.Context, id string) (domain.Receipt, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Receipt{}, store.ErrInvalidInput
	}
	receipt, err := s.store.GetReceipt(ctx, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	return *receipt, nil
}

// RenderReceipt formats a receipt as a plain-text slip.
func (s *Service) RenderReceipt(ctx context.Context, id string) (string, error) {
	receipt, err := s.GetReceipt(ctx, id)
	if err != nil {
		return "", err
	}

	lines := []string{
		"POS Demo",
		"========================",
		"Receipt: " + receipt.ID,
		"Date: " + receipt.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
	if receipt.CustomerName != "" {
		lines = append(lines, "Customer: "+receipt.CustomerName)
	}
	lines = append(lines, "------------------------")
	for _, item := range receipt.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.Name, item.Quantity))
		lines = append(lines, fmt.Sprintf("  %s @ %s", money.Format(item.Price*float64(item.Quantity)), money.Format(item.Price)))
	}
	lines = append(lines,
		"------------------------",
		"Subtotal : "+money.Format(receipt.Subtotal),
		fmt.Sprintf("Tax %.0f%% : %s", order.TaxRate*100, money.Format(receipt.Tax)),
		"Total    : "+money.Format(receipt.Total),
		"Payment  : "+receipt.PaymentMethod,
		"Paid     : "+money.Format(receipt.AmountPaid),
		"Change   : "+money.Format(receipt.Change),
		"========================",
		"Thank you",
		"",
	)
	return strings.Join(lines, "\n"), nil
}

// Dashboard aggregates the full receipt history as of now and lists products
// at or below the low-stock threshold, lowest first.
func (s *Service) Dashboard(ctx context.Context) (domain.DashboardResponse, error) {
	receipts, err := s.store.ListReceipts(ctx, store.ReceiptFilter{})
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	// Top product ties keep first-seen order, so feed history oldest first.
	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].CreatedAt.Before(receipts[j].CreatedAt)
	})
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return domain.DashboardResponse{}, err
	}

	now := s.now().UTC()
	lowStock := make([]domain.Product, 0)
	for _, p := range products {
		if p.LowStock() {
			lowStock = append(lowStock, p)
		}
	}
	sort.SliceStable(lowStock, func(i, j int) bool {
		return lowStock[i].Stock < lowStock[j].Stock
	})

	return domain.DashboardResponse{
		SalesData:   sales.Aggregate(receipts, now),
		LowStock:    lowStock,
		GeneratedAt: now,
	}, nil
}

func (s *Service) logCheckout(ctx context.Context, receipt *domain.Receipt) {
	s.audit(ctx, "checkout", receipt.ID, logrus.Fields{
		"total":          money.Format(receipt.Total),
		"payment_method": receipt.PaymentMethod,
		"items":          len(receipt.Items),
	})
}
