package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// Category — раздел каталога.
type Category string

const (
	CategorySmartphones Category = "smartphones"
	CategoryLaptops     Category = "laptops"
	CategoryTablets     Category = "tablets"
	CategoryAudio       Category = "audio"
	CategoryWearables   Category = "wearables"
	CategoryCameras     Category = "camaras"
	CategoryAccessories Category = "accesorios"
	CategoryHome        Category = "hogar"
	CategoryGaming      Category = "gaming"
)

// Valid проверяет, что категория входит в перечисление.
func (c Category) Valid() bool {
	switch c {
	case CategorySmartphones, CategoryLaptops, CategoryTablets, CategoryAudio,
		CategoryWearables, CategoryCameras, CategoryAccessories, CategoryHome, CategoryGaming:
		return true
	default:
		return false
	}
}

// ProductImage описывает изображение товара.
type ProductImage struct {
	URL     string `json:"url"`
	Alt     string `json:"alt,omitempty"`
	Primary bool   `json:"esPrincipal"`
}

// Product — позиция каталога. Stock и Sold меняются только через резервирование.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"nombre"`
	Slug        string          `json:"slug"`
	Description string          `json:"descripcion"`
	Brand       string          `json:"marca"`
	Category    Category        `json:"categoria"`
	SKU         string          `json:"sku"`
	Price       decimal.Decimal `json:"precio"`
	Stock       int             `json:"stock"`
	Sold        int             `json:"vendidos"`
	Views       int64           `json:"vistas"`
	Active      bool            `json:"activo"`
	Featured    bool            `json:"destacado"`
	Images      []ProductImage  `json:"imagenes"`
	Version     int64           `json:"-"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// HasStock сообщает, покрывает ли остаток запрошенное количество.
func (p Product) HasStock(qty int) bool {
	return p.Stock >= qty
}

// ImageRef возвращает ссылку на первое изображение товара для снимка позиции.
func (p Product) ImageRef() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// ValidateInvariants проверяет базовые инварианты товара.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, fmt.Errorf("product name is required: %w", ErrValidation))
	}
	if strings.TrimSpace(p.SKU) == "" {
		errs = append(errs, fmt.Errorf("product sku is required: %w", ErrValidation))
	}
	if p.Category != "" && !p.Category.Valid() {
		errs = append(errs, fmt.Errorf("unknown category %q: %w", p.Category, ErrValidation))
	}
	if p.Price.IsNegative() {
		errs = append(errs, ErrPriceNegative)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrStockNegative)
	}

	return errs
}

// Slugify строит slug из названия и короткого суффикса идентификатора.
func Slugify(name, id string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		r = foldAccent(r)
		switch {
		case unicode.IsLetter(r) && r < unicode.MaxASCII, unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")

	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	if suffix == "" {
		return slug
	}
	if slug == "" {
		return suffix
	}
	return slug + "-" + suffix
}

func foldAccent(r rune) rune {
	switch r {
	case 'á', 'à', 'ä', 'â':
		return 'a'
	case 'é', 'è', 'ë', 'ê':
		return 'e'
	case 'í', 'ì', 'ï', 'î':
		return 'i'
	case 'ó', 'ò', 'ö', 'ô':
		return 'o'
	case 'ú', 'ù', 'ü', 'û':
		return 'u'
	case 'ñ':
		return 'n'
	default:
		return r
	}
}

// ProductSort — поле сортировки каталога.
type ProductSort string

const (
	ProductSortCreatedAt ProductSort = "createdAt"
	ProductSortPrice     ProductSort = "precio"
	ProductSortName      ProductSort = "nombre"
	ProductSortSold      ProductSort = "vendidos"
)

// ProductFilter задаёт выборку каталога.
type ProductFilter struct {
	Search     string
	Category   Category
	Brand      string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Featured   *bool
	OnlyActive bool
	Sort       ProductSort
	Ascending  bool
	Page       PageRequest
}

// CategoryCount — количество активных товаров в категории.
type CategoryCount struct {
	Category Category `json:"categoria"`
	Total    int      `json:"total"`
}
