package order

import "posdemo/backend/internal/domain"

// TaxRate is applied to the subtotal of every sale.
const TaxRate = 0.10

// paymentTolerance absorbs float noise when comparing a tendered amount to a
// total computed from the same prices.
const paymentTolerance = 1e-9

type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

func Subtotal(items []domain.CartItem) float64 {
	sum := 0.0
	for _, item := range items {
		sum += item.Price * float64(item.Quantity)
	}
	return sum
}

func Tax(subtotal float64) float64 {
	return subtotal * TaxRate
}

func Total(subtotal float64, tax float64) float64 {
	return subtotal + tax
}

// Change is what the cashier hands back. It can be negative; callers check
// sufficiency before committing.
func Change(amountPaid float64, total float64) float64 {
	return amountPaid - total
}

func ComputeTotals(items []domain.CartItem) Totals {
	subtotal := Subtotal(items)
	tax := Tax(subtotal)
	return Totals{Subtotal: subtotal, Tax: tax, Total: Total(subtotal, tax)}
}

// Covers reports whether amountPaid settles total.
func Covers(amountPaid float64, total float64) bool {
	return amountPaid+paymentTolerance >= total
}
