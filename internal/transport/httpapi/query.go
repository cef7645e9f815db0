package httpapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/techstore/storefront/internal/domain"
)

// pageQuery читает page и limit; нечисловые значения считаются отсутствующими,
// окончательные значения по умолчанию подставляет сервис.
func pageQuery(c *gin.Context) domain.PageRequest {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return domain.PageRequest{Page: page, Limit: limit}
}

func productFilterQuery(c *gin.Context) (domain.ProductFilter, error) {
	filter := domain.ProductFilter{
		Search:    c.Query("search"),
		Category:  domain.Category(c.Query("categoria")),
		Brand:     strings.TrimSpace(c.Query("marca")),
		Sort:      productSort(c.Query("ordenar")),
		Ascending: strings.EqualFold(c.Query("dir"), "asc"),
		Page:      pageQuery(c),
	}

	var err error
	if filter.MinPrice, err = decimalQuery(c, "precioMin"); err != nil {
		return domain.ProductFilter{}, err
	}
	if filter.MaxPrice, err = decimalQuery(c, "precioMax"); err != nil {
		return domain.ProductFilter{}, err
	}
	if raw, ok := c.GetQuery("destacado"); ok {
		featured := raw == "true"
		filter.Featured = &featured
	}
	return filter, nil
}

func productSort(raw string) domain.ProductSort {
	switch sort := domain.ProductSort(raw); sort {
	case domain.ProductSortPrice, domain.ProductSortName, domain.ProductSortSold:
		return sort
	default:
		return domain.ProductSortCreatedAt
	}
}

func decimalQuery(c *gin.Context, name string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number: %w", name, domain.ErrValidation)
	}
	return &value, nil
}
