package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"posdemo/backend/internal/domain"
	"posdemo/backend/internal/store"
	"posdemo/backend/internal/xid"
)

// Store keeps the catalog and receipt history in process memory. When a
// snapshot path is set, every write is also flushed to that file.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	receiptsByID    map[string]*domain.Receipt
	receiptsByIdem  map[string]*domain.Receipt
	receiptOrder    []string
	usersByUsername map[string]domain.UserAccount
	snapshotPath    string
	now             func() time.Time
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.UserStore = (*Store)(nil)
)

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD with
// dev defaults when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logrus.Warn("memory store: using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.Fatalf("memory store: failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty catalog with the seed user accounts.
func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		receiptsByID:    make(map[string]*domain.Receipt),
		receiptsByIdem:  make(map[string]*domain.Receipt),
		receiptOrder:    make([]string, 0, 64),
		usersByUsername: seedUsers(),
		now:             time.Now,
	}
}

// NewSeeded returns a store preloaded with the demo catalog.
func NewSeeded() *Store {
	s := New()
	for _, p := range domain.DemoProducts() {
		s.insertProductLocked(p)
	}
	return s
}

// Open returns a store backed by the snapshot file at path. An existing file
// is loaded; otherwise the demo catalog is used and written out on the first
// change.
func Open(path string) (*Store, error) {
	s := NewSeeded()
	s.snapshotPath = path
	if path == "" {
		return s, nil
	}

	snap, err := readSnapshot(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	s.restore(snap)
	return s, nil
}

func (s *Store) Close() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistLocked()
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID != "" {
		if _, exists := s.products[product.ID]; exists {
			return nil, fmt.Errorf("%w: product %s already exists", store.ErrInvalidInput, product.ID)
		}
	}
	created := s.insertProductLocked(product)
	if err := s.persistLocked(); err != nil {
		delete(s.products, created.ID)
		return nil, err
	}
	return &created, nil
}

func (s *Store) insertProductLocked(product domain.Product) domain.Product {
	now := s.now().UTC()
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product
	return product
}

func (s *Store) UpdateProduct(_ context.Context, id string, patch domain.ProductUpdateRequest) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	updated := patch.Apply(current)
	if err := store.ValidateProduct(updated); err != nil {
		return nil, err
	}
	updated.ID = id
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = s.now().UTC()
	s.products[id] = updated
	if err := s.persistLocked(); err != nil {
		s.products[id] = current
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, exists := s.products[id]
	if !exists {
		return false, nil
	}
	delete(s.products, id)
	if err := s.persistLocked(); err != nil {
		s.products[id] = removed
		return false, err
	}
	return true, nil
}

func (s *Store) DecrementStock(_ context.Context, adjustments []domain.StockAdjustment) error {
	merged, err := store.MergeAdjustments(adjustments)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.productsLocked(merged)
	if err := s.decrementLocked(merged); err != nil {
		return err
	}
	if err := s.persistLocked(); err != nil {
		s.putProductsLocked(before)
		return err
	}
	return nil
}

// productsLocked copies the products an adjustment set touches so a failed
// write can put them back.
func (s *Store) productsLocked(merged []domain.StockAdjustment) []domain.Product {
	products := make([]domain.Product, 0, len(merged))
	for _, adj := range merged {
		if product, ok := s.products[adj.ProductID]; ok {
			products = append(products, product)
		}
	}
	return products
}

func (s *Store) putProductsLocked(products []domain.Product) {
	for _, product := range products {
		s.products[product.ID] = product
	}
}

// decrementLocked checks every adjustment before applying any of them.
func (s *Store) decrementLocked(merged []domain.StockAdjustment) error {
	for _, adj := range merged {
		product, exists := s.products[adj.ProductID]
		if !exists {
			return fmt.Errorf("product %s: %w", adj.ProductID, store.ErrNotFound)
		}
		if product.Stock < adj.Quantity {
			return fmt.Errorf("product %s: %w", product.Name, store.ErrInsufficientStock)
		}
	}

	now := s.now().UTC()
	for _, adj := range merged {
		product := s.products[adj.ProductID]
		product.Stock -= adj.Quantity
		product.UpdatedAt = now
		s.products[adj.ProductID] = product
	}
	return nil
}

func (s *Store) ListReceipts(_ context.Context, filter store.ReceiptFilter) ([]domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipts := make([]domain.Receipt, 0, len(s.receiptOrder))
	for _, id := range s.receiptOrder {
		receipt := s.receiptsByID[id]
		if !filter.Match(receipt.CreatedAt) {
			continue
		}
		receipts = append(receipts, *store.CloneReceipt(receipt))
	}
	return receipts, nil
}

func (s *Store) GetReceipt(_ context.Context, id string) (*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipt, ok := s.receiptsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.CloneReceipt(receipt), nil
}

func (s *Store) CreateReceipt(_ context.Context, receipt domain.Receipt) (*domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if receipt.IdempotencyKey != "" {
		if existing, ok := s.receiptsByIdem[receipt.IdempotencyKey]; ok {
			return store.CloneReceipt(existing), nil
		}
	}
	if len(receipt.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	merged, err := store.MergeAdjustments(receipt.StockAdjustments())
	if err != nil {
		return nil, err
	}
	before := s.productsLocked(merged)
	if err := s.decrementLocked(merged); err != nil {
		return nil, err
	}

	if receipt.ID == "" {
		receipt.ID = xid.New("rcpt")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = s.now().UTC()
	}

	saved := store.CloneReceipt(&receipt)
	s.receiptsByID[saved.ID] = saved
	s.receiptOrder = append(s.receiptOrder, saved.ID)
	if saved.IdempotencyKey != "" {
		s.receiptsByIdem[saved.IdempotencyKey] = saved
	}
	if err := s.persistLocked(); err != nil {
		s.putProductsLocked(before)
		delete(s.receiptsByID, saved.ID)
		delete(s.receiptsByIdem, saved.IdempotencyKey)
		s.receiptOrder = s.receiptOrder[:len(s.receiptOrder)-1]
		return nil, err
	}

	return store.CloneReceipt(saved), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
