package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/techstore/storefront/internal/domain"
)

const (
	defaultProductLimit = 12

	productColumns = `id, name, slug, description, brand, category, sku, price, stock, sold,
		views, active, featured, images, version, created_at, updated_at`
)

var productSortColumns = map[domain.ProductSort]string{
	domain.ProductSortCreatedAt: "created_at",
	domain.ProductSortPrice:     "price",
	domain.ProductSortName:      "lower(name)",
	domain.ProductSortSold:      "sold",
}

type productRepository struct {
	db *sql.DB
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	images, err := json.Marshal(nonNilImages(product.Images))
	if err != nil {
		return fmt.Errorf("encode product images: %w", err)
	}
	if product.Version == 0 {
		product.Version = 1
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		product.ID, product.Name, product.Slug, product.Description, product.Brand,
		string(product.Category), product.SKU, product.Price, product.Stock, product.Sold,
		product.Views, product.Active, product.Featured, images, product.Version,
		product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if violatedConstraint(err) == "products_sku_key" {
				return domain.ErrSKUTaken
			}
			return domain.ErrProductVersionConflict
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return getProduct(ctx, r.db, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (r *productRepository) GetBySlug(ctx context.Context, slug string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return getProduct(ctx, r.db, `SELECT `+productColumns+` FROM products WHERE slug = $1`, slug)
}

func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) (domain.Page[domain.Product], error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	req := filter.Page.Normalize(defaultProductLimit)
	where, args := productWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("count products: %w", err)
	}

	column, ok := productSortColumns[filter.Sort]
	if !ok {
		column = productSortColumns[domain.ProductSortCreatedAt]
	}
	direction := "DESC"
	if filter.Ascending {
		direction = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		productColumns, where, column, direction, direction, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, req.Limit, req.Offset())...)
	if err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Product, 0, req.Limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return domain.Page[domain.Product]{}, err
		}
		items = append(items, product)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("iterate product rows: %w", err)
	}

	return domain.Page[domain.Product]{Items: items, Total: total, PageRequest: req}, nil
}

// Save применяет изменения каталога с проверкой версии.
// Счётчики продаж и просмотров здесь не меняются.
func (r *productRepository) Save(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	images, err := json.Marshal(nonNilImages(product.Images))
	if err != nil {
		return fmt.Errorf("encode product images: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1,
		    slug = $2,
		    description = $3,
		    brand = $4,
		    category = $5,
		    sku = $6,
		    price = $7,
		    stock = $8,
		    active = $9,
		    featured = $10,
		    images = $11,
		    version = version + 1,
		    updated_at = $12
		WHERE id = $13
		  AND version = $14
	`,
		product.Name, product.Slug, product.Description, product.Brand, string(product.Category),
		product.SKU, product.Price, product.Stock, product.Active, product.Featured, images,
		product.UpdatedAt, product.ID, product.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSKUTaken
		}
		return fmt.Errorf("update product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := rowExists(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, product.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrProductVersionConflict
	}
	return nil
}

func (r *productRepository) IncrementViews(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE products SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment product views: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// CategoryStats считает активные товары по категориям.
func (r *productRepository) CategoryStats(ctx context.Context) ([]domain.CategoryCount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT category, COUNT(*)
		FROM products
		WHERE active
		GROUP BY category
		ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("query category stats: %w", err)
	}
	defer rows.Close()

	stats := make([]domain.CategoryCount, 0)
	for rows.Next() {
		var (
			category string
			stat     domain.CategoryCount
		)
		if err := rows.Scan(&category, &stat.Total); err != nil {
			return nil, fmt.Errorf("scan category stats: %w", err)
		}
		stat.Category = domain.Category(category)
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category stats: %w", err)
	}
	return stats, nil
}

func productWhere(f domain.ProductFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.OnlyActive {
		conds = append(conds, "active")
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.Brand != "" {
		add("lower(brand) = lower($%d)", f.Brand)
	}
	if f.MinPrice != nil {
		add("price >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price <= $%d", *f.MaxPrice)
	}
	if f.Featured != nil {
		add("featured = $%d", *f.Featured)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		add("(name || ' ' || description || ' ' || brand) ILIKE $%d", "%"+escapeLike(q)+"%")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func getProduct(ctx context.Context, q queryer, query string, arg any) (domain.Product, error) {
	product, err := scanProduct(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, err
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		product  domain.Product
		category string
		images   []byte
	)
	err := row.Scan(
		&product.ID, &product.Name, &product.Slug, &product.Description, &product.Brand,
		&category, &product.SKU, &product.Price, &product.Stock, &product.Sold,
		&product.Views, &product.Active, &product.Featured, &images, &product.Version,
		&product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, err
		}
		return domain.Product{}, fmt.Errorf("scan product: %w", err)
	}
	product.Category = domain.Category(category)
	if len(images) > 0 {
		if err := json.Unmarshal(images, &product.Images); err != nil {
			return domain.Product{}, fmt.Errorf("decode product images: %w", err)
		}
	}
	return product, nil
}

func nonNilImages(images []domain.ProductImage) []domain.ProductImage {
	if images == nil {
		return []domain.ProductImage{}
	}
	return images
}

func rowExists(ctx context.Context, q queryer, query string, arg any) (bool, error) {
	var exists bool
	if err := q.QueryRowContext(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("check row exists: %w", err)
	}
	return exists, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
