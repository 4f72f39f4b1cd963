package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"posdemo/backend/internal/domain"
	"posdemo/backend/internal/store"
	"posdemo/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

const productColumns = `id, name, description, price, category, stock, image, barcode, created_at, updated_at`

const receiptColumns = `id, COALESCE(idempotency_key, ''), subtotal, tax, total, payment_method,
	amount_paid, change_due, customer_name, customer_email, created_at`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.UserStore = (*Store)(nil)
)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates any missing tables. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) (err error) {
	defer func() { err = wrapConnErr(err) }()

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Stock, &p.Image, &p.Barcode, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) (_ []domain.Product, err error) {
	defer func() { err = wrapConnErr(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (_ *domain.Product, err error) {
	defer func() { err = wrapConnErr(err) }()

	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (_ *domain.Product, err error) {
	defer func() { err = wrapConnErr(err) }()

	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, category, stock, image, barcode, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, product.Name, product.Description, product.Price, product.Category, product.Stock,
		product.Image, product.Barcode, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product %s already exists", store.ErrInvalidInput, product.ID)
		}
		return nil, err
	}

	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, patch domain.ProductUpdateRequest) (_ *domain.Product, err error) {
	defer func() { err = wrapConnErr(err) }()

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	current, err := scanProduct(pgTx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	updated := patch.Apply(current)
	if err := store.ValidateProduct(updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.now().UTC()

	_, err = pgTx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, category = $5, stock = $6, image = $7, barcode = $8, updated_at = $9
		WHERE id = $1
	`, id, updated.Name, updated.Description, updated.Price, updated.Category, updated.Stock,
		updated.Image, updated.Barcode, updated.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) (_ bool, err error) {
	defer func() { err = wrapConnErr(err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) DecrementStock(ctx context.Context, adjustments []domain.StockAdjustment) (err error) {
	defer func() { err = wrapConnErr(err) }()

	merged, err := store.MergeAdjustments(adjustments)
	if err != nil {
		return err
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := s.decrementTx(ctx, pgTx, merged); err != nil {
		return err
	}
	return pgTx.Commit()
}

// decrementTx applies each adjustment as a conditional update so concurrent
// sales can never take stock below zero. Rows are touched in id order to
// keep lock acquisition consistent between transactions.
func (s *Store) decrementTx(ctx context.Context, pgTx *sql.Tx, merged []domain.StockAdjustment) error {
	ordered := make([]domain.StockAdjustment, len(merged))
	copy(ordered, merged)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	now := s.now().UTC()
	for _, adj := range ordered {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = $2
			WHERE id = $3 AND stock >= $1
		`, adj.Quantity, now, adj.ProductID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected > 0 {
			continue
		}

		var exists bool
		if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, adj.ProductID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("product %s: %w", adj.ProductID, store.ErrNotFound)
		}
		return fmt.Errorf("product %s: %w", adj.ProductID, store.ErrInsufficientStock)
	}
	return nil
}

func receiptWhere(filter store.ReceiptFilter, alias string) (string, []any) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.From != nil {
		args = append(args, filter.From.UTC())
		clauses = append(clauses, fmt.Sprintf("%screated_at >= $%d", alias, len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.UTC())
		clauses = append(clauses, fmt.Sprintf("%screated_at <= $%d", alias, len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanReceipt(row rowScanner) (domain.Receipt, error) {
	var r domain.Receipt
	err := row.Scan(&r.ID, &r.IdempotencyKey, &r.Subtotal, &r.Tax, &r.Total, &r.PaymentMethod,
		&r.AmountPaid, &r.Change, &r.CustomerName, &r.CustomerEmail, &r.CreatedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	return r, err
}

func (s *Store) ListReceipts(ctx context.Context, filter store.ReceiptFilter) (_ []domain.Receipt, err error) {
	defer func() { err = wrapConnErr(err) }()

	where, args := receiptWhere(filter, "")
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts
		`+where+`
		ORDER BY created_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]domain.Receipt, 0, 64)
	index := make(map[string]int)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		r.Items = make([]domain.CartItem, 0, 4)
		index[r.ID] = len(receipts)
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return receipts, nil
	}

	itemWhere, itemArgs := receiptWhere(filter, "r.")
	itemRows, err := s.db.QueryContext(ctx, `
		SELECT ri.receipt_id, ri.product_id, ri.name, ri.description, ri.price, ri.category, ri.barcode, ri.quantity
		FROM receipt_items ri
		JOIN receipts r ON r.id = ri.receipt_id
		`+itemWhere+`
		ORDER BY ri.id ASC
	`, itemArgs...)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var receiptID string
		item, err := scanItem(itemRows, &receiptID)
		if err != nil {
			return nil, err
		}
		if i, ok := index[receiptID]; ok {
			receipts[i].Items = append(receipts[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	return receipts, nil
}

func scanItem(row rowScanner, receiptID *string) (domain.CartItem, error) {
	var item domain.CartItem
	err := row.Scan(receiptID, &item.ID, &item.Name, &item.Description, &item.Price, &item.Category, &item.Barcode, &item.Quantity)
	return item, err
}

func (s *Store) GetReceipt(ctx context.Context, id string) (_ *domain.Receipt, err error) {
	defer func() { err = wrapConnErr(err) }()

	return s.findReceipt(ctx, "id", id)
}

func (s *Store) findReceipt(ctx context.Context, column string, value string) (*domain.Receipt, error) {
	if column != "id" && column != "idempotency_key" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	receipt, err := scanReceipt(s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM receipts
		WHERE %s = $1
	`, receiptColumns, column), value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT receipt_id, product_id, name, description, price, category, barcode, quantity
		FROM receipt_items
		WHERE receipt_id = $1
		ORDER BY id ASC
	`, receipt.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipt.Items = make([]domain.CartItem, 0, 4)
	for rows.Next() {
		var receiptID string
		item, err := scanItem(rows, &receiptID)
		if err != nil {
			return nil, err
		}
		receipt.Items = append(receipt.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &receipt, nil
}

func (s *Store) CreateReceipt(ctx context.Context, receipt domain.Receipt) (_ *domain.Receipt, err error) {
	defer func() { err = wrapConnErr(err) }()

	if receipt.IdempotencyKey != "" {
		existing, err := s.findReceipt(ctx, "idempotency_key", receipt.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if len(receipt.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	merged, err := store.MergeAdjustments(receipt.StockAdjustments())
	if err != nil {
		return nil, err
	}

	if receipt.ID == "" {
		receipt.ID = xid.New("rcpt")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = s.now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	// The receipt row goes first so a concurrent commit with the same key
	// blocks on the unique index before any stock is touched.
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO receipts (
			id, idempotency_key, subtotal, tax, total, payment_method,
			amount_paid, change_due, customer_name, customer_email, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, receipt.ID, nullIfEmpty(receipt.IdempotencyKey), receipt.Subtotal, receipt.Tax, receipt.Total,
		receipt.PaymentMethod, receipt.AmountPaid, receipt.Change, receipt.CustomerName, receipt.CustomerEmail,
		receipt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) && receipt.IdempotencyKey != "" {
			_ = pgTx.Rollback()
			existing, lookupErr := s.findReceipt(ctx, "idempotency_key", receipt.IdempotencyKey)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	for _, item := range receipt.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO receipt_items (receipt_id, product_id, name, description, price, category, barcode, quantity)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, receipt.ID, item.ID, item.Name, item.Description, item.Price, item.Category, item.Barcode, item.Quantity)
		if err != nil {
			return nil, err
		}
	}

	if err := s.decrementTx(ctx, pgTx, merged); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return store.CloneReceipt(&receipt), nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (err error) {
	defer func() { err = wrapConnErr(err) }()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) (_ []domain.UserAccount, err error) {
	defer func() { err = wrapConnErr(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) (err error) {
	defer func() { err = wrapConnErr(err) }()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// wrapConnErr marks failures to reach the database as store.ErrStoreUnavailable
// so callers can tell an outage from a rejected query.
func wrapConnErr(err error) error {
	if err == nil || errors.Is(err, store.ErrStoreUnavailable) {
		return err
	}
	var (
		connectErr *pgconn.ConnectError
		netErr     net.Error
	)
	if errors.As(err, &connectErr) ||
		errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
