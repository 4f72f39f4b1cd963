package sales

import (
	"sort"
	"time"

	"posdemo/backend/internal/domain"
)

const (
	DailyWindow   = 24 * time.Hour
	WeeklyWindow  = 7 * 24 * time.Hour
	MonthlyWindow = 30 * 24 * time.Hour

	TopProductLimit = 5
)

// Aggregate computes rolling revenue windows and best sellers from the full
// receipt history as of now. It keeps no state between calls. A receipt
// stamped slightly after now, such as one written by a host with a skewed
// clock, has a negative age and counts in every window.
func Aggregate(receipts []domain.Receipt, now time.Time) domain.SalesData {
	data := domain.SalesData{}
	for _, receipt := range receipts {
		age := now.Sub(receipt.CreatedAt)
		if age < DailyWindow {
			data.Daily += receipt.Total
		}
		if age < WeeklyWindow {
			data.Weekly += receipt.Total
		}
		if age < MonthlyWindow {
			data.Monthly += receipt.Total
		}
	}
	data.TopProducts = TopProducts(receipts, TopProductLimit)
	return data
}

// TopProducts sums sold quantity per product name over every receipt and
// returns the n largest. Names that tie keep the order they were first seen.
func TopProducts(receipts []domain.Receipt, n int) []domain.TopProduct {
	totals := make([]domain.TopProduct, 0, 16)
	index := make(map[string]int)
	for _, receipt := range receipts {
		for _, item := range receipt.Items {
			if i, ok := index[item.Name]; ok {
				totals[i].Sales += item.Quantity
				continue
			}
			index[item.Name] = len(totals)
			totals = append(totals, domain.TopProduct{Name: item.Name, Sales: item.Quantity})
		}
	}

	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].Sales > totals[j].Sales
	})
	if n >= 0 && len(totals) > n {
		totals = totals[:n]
	}
	return totals
}
