package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) listProducts(c *gin.Context) {
	filter, err := productFilterQuery(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	page, err := s.services.Catalog.List(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	paginated(c, page)
}

func (s *Server) categoryStats(c *gin.Context) {
	stats, err := s.services.Catalog.CategoryStats(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "", stats)
}

func (s *Server) getProduct(c *gin.Context) {
	product, err := s.services.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "", product)
}

func (s *Server) getProductBySlug(c *gin.Context) {
	product, err := s.services.Catalog.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "", product)
}

func (s *Server) createProduct(c *gin.Context) {
	var req productRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := s.services.Catalog.Create(c.Request.Context(), req.input())
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusCreated, "Producto creado exitosamente", product)
}

func (s *Server) updateProduct(c *gin.Context) {
	var req productUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := s.services.Catalog.Update(c.Request.Context(), c.Param("id"), req.patch())
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "Producto actualizado", product)
}

// deleteProduct снимает товар с продажи; запись и история заказов остаются.
func (s *Server) deleteProduct(c *gin.Context) {
	if _, err := s.services.Catalog.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "Producto eliminado correctamente", nil)
}
