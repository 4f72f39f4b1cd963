package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"posdemo/backend/internal/cache"
	"posdemo/backend/internal/domain"
	"posdemo/backend/internal/order"
	"posdemo/backend/internal/store"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	store   store.Store
	engine  *order.Engine
	carts   cache.CartCache
	cartTTL time.Duration
	log     *logrus.Logger
	now     func() time.Time
}

func New(st store.Store, carts cache.CartCache, cartTTL time.Duration, logger *logrus.Logger) *Service {
	if carts == nil {
		carts = cache.NewMemoryCartCache()
	}
	if cartTTL <= 0 {
		cartTTL = 2 * time.Hour
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Service{
		store:   st,
		engine:  order.NewEngine(st),
		carts:   carts,
		cartTTL: cartTTL,
		log:     logger,
		now:     time.Now,
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(products, func(i, j int) bool {
		return strings.ToLower(products[i].Name) < strings.ToLower(products[j].Name)
	})
	return products, nil
}

// SearchProducts matches query case-insensitively against name, description,
// category and barcode. An empty query returns the whole catalog.
func (s *Service) SearchProducts(ctx context.Context, query string, category string) ([]domain.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	category = strings.TrimSpace(category)
	if query == "" && category == "" {
		return products, nil
	}

	matched := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		if query != "" && !productMatches(p, query) {
			continue
		}
		matched = append(matched, p)
	}
	return matched, nil
}

func productMatches(p domain.Product, query string) bool {
	for _, field := range []string{p.Name, p.Description, p.Category, p.Barcode} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) Categories() []string {
	return append([]string(nil), domain.Categories...)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Category:    strings.TrimSpace(req.Category),
		Stock:       req.Stock,
		Image:       strings.TrimSpace(req.Image),
		Barcode:     strings.TrimSpace(req.Barcode),
	}
	if err := store.ValidateProduct(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.store.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.audit(ctx, "product_create", created.ID, logrus.Fields{"name": created.Name, "stock": created.Stock})
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	req = trimPatch(req)
	existing, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if err := store.ValidateProduct(req.Apply(*existing)); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.store.UpdateProduct(ctx, id, req)
	if err != nil {
		return domain.Product{}, err
	}
	s.audit(ctx, "product_update", updated.ID, logrus.Fields{"price": updated.Price, "stock": updated.Stock})
	return *updated, nil
}

func trimPatch(req domain.ProductUpdateRequest) domain.ProductUpdateRequest {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	req.Name = trim(req.Name)
	req.Description = trim(req.Description)
	req.Category = trim(req.Category)
	req.Image = trim(req.Image)
	req.Barcode = trim(req.Barcode)
	return req
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}

	deleted, err := s.store.DeleteProduct(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	s.audit(ctx, "product_delete", id, nil)
	return nil
}

// DecrementStock applies a bare stock adjustment without writing a receipt.
func (s *Service) DecrementStock(ctx context.Context, req domain.StockDecrementRequest) error {
	if len(req.Items) == 0 {
		return store.ErrInvalidInput
	}
	if err := s.store.DecrementStock(ctx, req.Items); err != nil {
		return err
	}
	s.audit(ctx, "stock_decrement", "", logrus.Fields{"lines": len(req.Items)})
	return nil
}

func (s *Service) SeedDemoData(ctx context.Context) (domain.SeedResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.SeedResult{}, err
	}

	existing, err := s.store.ListProducts(ctx)
	if err != nil {
		return domain.SeedResult{}, err
	}
	if len(existing) > 0 {
		return domain.SeedResult{Skipped: true}, nil
	}

	result := domain.SeedResult{}
	for _, product := range domain.DemoProducts() {
		if _, err := s.store.CreateProduct(ctx, product); err != nil {
			return result, fmt.Errorf("seed %s: %w", product.Name, err)
		}
		result.Inserted++
	}
	s.audit(ctx, "seed", "", logrus.Fields{"inserted": result.Inserted})
	return result, nil
}

func (s *Service) audit(ctx context.Context, action string, entityID string, fields logrus.Fields) {
	actor, _ := ActorFromContext(ctx)
	entry := s.log.WithFields(logrus.Fields{
		"action": action,
		"actor":  actor.Username,
	})
	if entityID != "" {
		entry = entry.WithField("entity_id", entityID)
	}
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Info("audit")
}
