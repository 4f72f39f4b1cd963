package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"posdemo/backend/internal/domain"
	"posdemo/backend/internal/order"
	"posdemo/backend/internal/store"
	"posdemo/backend/internal/xid"
)

// Store talks to another instance of this service over its JSON API.
// Transport failures, timeouts and 5xx answers surface as
// store.ErrStoreUnavailable.
type Store struct {
	baseURL string
	token   string
	client  *http.Client
	log     *logrus.Logger
}

var _ store.Store = (*Store)(nil)

func New(baseURL string, token string, timeout time.Duration, logger *logrus.Logger) *Store {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: timeout,
		},
		log: logger,
	}
}

func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Store) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	startedAt := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.WithFields(logrus.Fields{"method": method, "path": path}).WithError(err).Warn("remote store: request failed")
		return fmt.Errorf("%w: %s %s: %v", store.ErrStoreUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	s.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(startedAt).String(),
	}).Debug("remote store: response")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode %s %s: %v", store.ErrStoreUnavailable, method, path, err)
		}
		return nil
	}

	var apiErr errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", store.ErrNotFound, msg)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", store.ErrInsufficientStock, msg)
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", store.ErrInvalidInput, msg)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", order.ErrInsufficientPayment, msg)
	default:
		s.log.WithFields(logrus.Fields{"method": method, "path": path, "status": resp.StatusCode}).Error("remote store: unexpected status")
		return fmt.Errorf("%w: %s %s returned %d: %s", store.ErrStoreUnavailable, method, path, resp.StatusCode, msg)
	}
}

func productPath(id string) (string, error) {
	if !xid.Valid(id) {
		return "", fmt.Errorf("%w: product id %q", store.ErrInvalidInput, id)
	}
	return "/products/" + url.PathEscape(id), nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var resp struct {
		Products []domain.Product `json:"products"`
	}
	if err := s.do(ctx, http.MethodGet, "/products", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	path, err := productPath(id)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Product domain.Product `json:"product"`
	}
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	req := domain.ProductCreateRequest{
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Category:    product.Category,
		Stock:       product.Stock,
		Image:       product.Image,
		Barcode:     product.Barcode,
	}
	var resp struct {
		Product domain.Product `json:"product"`
	}
	if err := s.do(ctx, http.MethodPost, "/products", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, patch domain.ProductUpdateRequest) (*domain.Product, error) {
	path, err := productPath(id)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Product domain.Product `json:"product"`
	}
	if err := s.do(ctx, http.MethodPatch, path, patch, &resp); err != nil {
		return nil, err
	}
	return &resp.Product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) (bool, error) {
	path, err := productPath(id)
	if err != nil {
		return false, err
	}
	var resp struct {
		Deleted bool `json:"deleted"`
	}
	if err := s.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return resp.Deleted, nil
}

func (s *Store) DecrementStock(ctx context.Context, adjustments []domain.StockAdjustment) error {
	return s.do(ctx, http.MethodPost, "/products/stock/decrement", domain.StockDecrementRequest{Items: adjustments}, nil)
}

func (s *Store) ListReceipts(ctx context.Context, filter store.ReceiptFilter) ([]domain.Receipt, error) {
	// Oldest first, the order the local backends return.
	params := url.Values{"sort": {"asc"}}
	if filter.From != nil {
		params.Set("dateFrom", filter.From.UTC().Format(time.RFC3339Nano))
	}
	if filter.To != nil {
		params.Set("dateTo", filter.To.UTC().Format(time.RFC3339Nano))
	}
	path := "/receipts?" + params.Encode()

	var resp struct {
		Receipts []domain.Receipt `json:"receipts"`
	}
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Receipts, nil
}

func (s *Store) GetReceipt(ctx context.Context, id string) (*domain.Receipt, error) {
	if !xid.Valid(id) {
		return nil, fmt.Errorf("%w: receipt id %q", store.ErrInvalidInput, id)
	}
	var resp struct {
		Receipt domain.Receipt `json:"receipt"`
	}
	if err := s.do(ctx, http.MethodGet, "/receipts/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Receipt, nil
}

func (s *Store) CreateReceipt(ctx context.Context, receipt domain.Receipt) (*domain.Receipt, error) {
	var resp struct {
		Receipt domain.Receipt `json:"receipt"`
	}
	if err := s.do(ctx, http.MethodPost, "/receipts", receipt, &resp); err != nil {
		return nil, err
	}
	return &resp.Receipt, nil
}
