package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/techstore/storefront/internal/domain"
	"github.com/techstore/storefront/internal/metrics"
)

// ProductInput — данные нового товара.
type ProductInput struct {
	Name        string
	Description string
	Brand       string
	Category    domain.Category
	SKU         string
	Price       decimal.Decimal
	Stock       int
	Featured    bool
	Images      []domain.ProductImage
}

// ProductPatch — частичное обновление товара; nil-поля не меняются.
type ProductPatch struct {
	Name        *string
	Description *string
	Brand       *string
	Category    *domain.Category
	SKU         *string
	Price       *decimal.Decimal
	Stock       *int
	Featured    *bool
	Active      *bool
	Images      *[]domain.ProductImage
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics подключает метрики просмотров.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет часы.
func WithClock(clock domain.Clock) Option {
	return func(s *Service) {
		s.now = clock
	}
}

// Service управляет каталогом вне транзакции покупки.
type Service struct {
	products domain.ProductRepository
	logger   *log.Entry
	metrics  *metrics.StorefrontMetrics
	now      domain.Clock
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, opts ...Option) *Service {
	s := &Service{products: products}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "catalog")
	}
	return s
}

// List возвращает страницу активных товаров.
func (s *Service) List(ctx context.Context, filter domain.ProductFilter) (domain.Page[domain.Product], error) {
	filter.OnlyActive = true
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Category != "" && !filter.Category.Valid() {
		return domain.Page[domain.Product]{}, fmt.Errorf("unknown category %q: %w", filter.Category, domain.ErrValidation)
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return domain.Page[domain.Product]{}, fmt.Errorf("min price exceeds max price: %w", domain.ErrValidation)
	}

	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("list products: %w", err)
	}
	return page, nil
}

// CategoryStats возвращает число активных товаров по категориям.
func (s *Service) CategoryStats(ctx context.Context) ([]domain.CategoryCount, error) {
	stats, err := s.products.CategoryStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	return stats, nil
}

// Get возвращает активный товар и учитывает просмотр.
func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return s.view(ctx, product)
}

// GetBySlug возвращает активный товар по slug и учитывает просмотр.
func (s *Service) GetBySlug(ctx context.Context, slug string) (domain.Product, error) {
	product, err := s.products.GetBySlug(ctx, slug)
	if err != nil {
		return domain.Product{}, err
	}
	return s.view(ctx, product)
}

func (s *Service) view(ctx context.Context, product domain.Product) (domain.Product, error) {
	if !product.Active {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if s.IncrementViews(ctx, product.ID) {
		product.Views++
	}
	return product, nil
}

// IncrementViews увеличивает счётчик просмотров. Ошибки только логируются;
// возвращает true, если счётчик изменён.
func (s *Service) IncrementViews(ctx context.Context, id string) bool {
	if err := s.products.IncrementViews(ctx, id); err != nil {
		s.logger.WithError(err).WithField("product_id", id).Debug("failed to increment product views")
		return false
	}
	s.metrics.RecordProductView()
	return true
}

// Create добавляет товар в каталог.
func (s *Service) Create(ctx context.Context, in ProductInput) (domain.Product, error) {
	now := s.now.Now()
	id := uuid.NewString()
	product := domain.Product{
		ID:          id,
		Name:        strings.TrimSpace(in.Name),
		Slug:        domain.Slugify(in.Name, id),
		Description: strings.TrimSpace(in.Description),
		Brand:       strings.TrimSpace(in.Brand),
		Category:    in.Category,
		SKU:         strings.ToUpper(strings.TrimSpace(in.SKU)),
		Price:       in.Price.Round(2),
		Stock:       in.Stock,
		Active:      true,
		Featured:    in.Featured,
		Images:      append([]domain.ProductImage(nil), in.Images...),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"sku":        product.SKU,
	}).Info("product created")
	return product, nil
}

// Update применяет patch; при смене названия slug строится заново.
func (s *Service) Update(ctx context.Context, id string, patch ProductPatch) (domain.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name != product.Name {
			product.Name = name
			product.Slug = domain.Slugify(name, product.ID)
		}
	}
	if patch.Description != nil {
		product.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Brand != nil {
		product.Brand = strings.TrimSpace(*patch.Brand)
	}
	if patch.Category != nil {
		product.Category = *patch.Category
	}
	if patch.SKU != nil {
		product.SKU = strings.ToUpper(strings.TrimSpace(*patch.SKU))
	}
	if patch.Price != nil {
		product.Price = patch.Price.Round(2)
	}
	if patch.Stock != nil {
		product.Stock = *patch.Stock
	}
	if patch.Featured != nil {
		product.Featured = *patch.Featured
	}
	if patch.Active != nil {
		product.Active = *patch.Active
	}
	if patch.Images != nil {
		product.Images = append([]domain.ProductImage(nil), (*patch.Images)...)
	}

	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}
	return s.save(ctx, product)
}

// Deactivate снимает товар с продажи без удаления.
func (s *Service) Deactivate(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if !product.Active {
		return product, nil
	}
	product.Active = false
	return s.save(ctx, product)
}

func (s *Service) save(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.UpdatedAt = s.now.Now()
	if err := s.products.Save(ctx, product); err != nil {
		return domain.Product{}, err
	}
	product.Version++

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"active":     product.Active,
	}).Info("product updated")
	return product, nil
}
