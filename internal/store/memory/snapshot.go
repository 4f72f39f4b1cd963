package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"posdemo/backend/internal/domain"
	"posdemo/backend/internal/store"
)

type snapshot struct {
	Products []domain.Product `json:"products"`
	Receipts []domain.Receipt `json:"receipts"`
}

func readSnapshot(path string) (snapshot, error) {
	var snap snapshot
	raw, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = make(map[string]domain.Product, len(snap.Products))
	for _, p := range snap.Products {
		s.products[p.ID] = p
	}
	s.receiptsByID = make(map[string]*domain.Receipt, len(snap.Receipts))
	s.receiptsByIdem = make(map[string]*domain.Receipt, len(snap.Receipts))
	s.receiptOrder = make([]string, 0, len(snap.Receipts))
	for i := range snap.Receipts {
		receipt := store.CloneReceipt(&snap.Receipts[i])
		s.receiptsByID[receipt.ID] = receipt
		s.receiptOrder = append(s.receiptOrder, receipt.ID)
		if receipt.IdempotencyKey != "" {
			s.receiptsByIdem[receipt.IdempotencyKey] = receipt
		}
	}
}

// persistLocked writes the snapshot through a temp file so a crash never
// leaves a half-written file behind. Callers hold s.mu.
func (s *Store) persistLocked() error {
	if s.snapshotPath == "" {
		return nil
	}

	snap := snapshot{
		Products: make([]domain.Product, 0, len(s.products)),
		Receipts: make([]domain.Receipt, 0, len(s.receiptOrder)),
	}
	for _, p := range s.products {
		snap.Products = append(snap.Products, p)
	}
	for _, id := range s.receiptOrder {
		snap.Receipts = append(snap.Receipts, *s.receiptsByID[id])
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.snapshotPath), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), s.snapshotPath)
}
