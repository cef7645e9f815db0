package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/techstore/storefront/internal/domain"
)

const defaultProductLimit = 12

type productRepository struct {
	store *Store
}

// Create сохраняет новый товар, если SKU ещё свободен.
func (r *productRepository) Create(_ context.Context, product domain.Product) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.skus[product.SKU]; exists {
		return domain.ErrSKUTaken
	}
	if _, exists := s.products[product.ID]; exists {
		return domain.ErrProductVersionConflict
	}
	if product.Version == 0 {
		product.Version = 1
	}
	s.products[product.ID] = cloneProduct(product)
	s.skus[product.SKU] = product.ID
	return nil
}

func (r *productRepository) Get(_ context.Context, id string) (domain.Product, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return cloneProduct(product), nil
}

func (r *productRepository) GetBySlug(_ context.Context, slug string) (domain.Product, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, product := range s.products {
		if product.Slug == slug {
			return cloneProduct(product), nil
		}
	}
	return domain.Product{}, domain.ErrProductNotFound
}

func (r *productRepository) List(_ context.Context, filter domain.ProductFilter) (domain.Page[domain.Product], error) {
	req := filter.Page.Normalize(defaultProductLimit)

	s := r.store
	s.mu.RLock()
	matched := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		if matchProduct(product, filter) {
			matched = append(matched, cloneProduct(product))
		}
	}
	s.mu.RUnlock()

	sortProducts(matched, filter.Sort, filter.Ascending)

	return domain.Page[domain.Product]{
		Items:       domain.Window(matched, req),
		Total:       len(matched),
		PageRequest: req,
	}, nil
}

// Save перезаписывает товар, проверяя версию (optimistic locking).
func (r *productRepository) Save(_ context.Context, product domain.Product) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if current.Version != product.Version {
		return domain.ErrProductVersionConflict
	}
	if owner, taken := s.skus[product.SKU]; taken && owner != product.ID {
		return domain.ErrSKUTaken
	}

	delete(s.skus, current.SKU)
	product.Version++
	s.products[product.ID] = cloneProduct(product)
	s.skus[product.SKU] = product.ID
	return nil
}

func (r *productRepository) IncrementViews(_ context.Context, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Views++
	s.products[id] = product
	return nil
}

// CategoryStats считает активные товары по категориям в алфавитном порядке.
func (r *productRepository) CategoryStats(_ context.Context) ([]domain.CategoryCount, error) {
	s := r.store
	s.mu.RLock()
	counts := make(map[domain.Category]int)
	for _, product := range s.products {
		if product.Active {
			counts[product.Category]++
		}
	}
	s.mu.RUnlock()

	stats := make([]domain.CategoryCount, 0, len(counts))
	for category, total := range counts {
		stats = append(stats, domain.CategoryCount{Category: category, Total: total})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Category < stats[j].Category })
	return stats, nil
}

func matchProduct(p domain.Product, f domain.ProductFilter) bool {
	if f.OnlyActive && !p.Active {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Brand != "" && !strings.EqualFold(p.Brand, f.Brand) {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.Featured != nil && p.Featured != *f.Featured {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		haystack := strings.ToLower(p.Name + " " + p.Description + " " + p.Brand)
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}

func sortProducts(items []domain.Product, by domain.ProductSort, asc bool) {
	less := func(a, b domain.Product) bool {
		switch by {
		case domain.ProductSortPrice:
			return a.Price.LessThan(b.Price)
		case domain.ProductSortName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case domain.ProductSortSold:
			return a.Sold < b.Sold
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if asc {
			return less(items[i], items[j])
		}
		return less(items[j], items[i])
	})
}

var _ domain.ProductRepository = (*productRepository)(nil)
