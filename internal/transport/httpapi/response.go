package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techstore/storefront/internal/domain"
)

// Meta — данные пагинации в ответах списков.
type Meta struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Response — единый конверт ответа API.
type Response struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    any      `json:"data,omitempty"`
	Meta    *Meta    `json:"meta,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Stack   string   `json:"stack,omitempty"`
}

// PageMeta собирает Meta из страницы результатов.
func PageMeta[T any](page domain.Page[T]) *Meta {
	return &Meta{
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages(),
		HasNext:    page.HasNext(),
		HasPrev:    page.HasPrev(),
	}
}

func success(c *gin.Context, status int, message string, data any) {
	if message == "" {
		message = "OK"
	}
	c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func paginated[T any](c *gin.Context, page domain.Page[T]) {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "OK", Data: items, Meta: PageMeta(page)})
}

func failure(c *gin.Context, status int, message string, errs []string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Message: message, Errors: errs})
}
