package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techstore/storefront/internal/domain"
	"github.com/techstore/storefront/internal/service/lifecycle"
)

func (s *Server) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	principal, _ := principalFrom(c)

	// Отпечаток строится из разобранного запроса, поэтому порядок ключей
	// и пробелы в исходном JSON на него не влияют.
	fingerprint, err := json.Marshal(req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.idempotent(c, fingerprint, func() (int, Response) {
		order, err := s.services.Checkout.PlaceOrder(c.Request.Context(), req.input(principal.UserID))
		if err != nil {
			return s.errorResponse(c, err)
		}
		return http.StatusCreated, Response{Success: true, Message: "Pedido creado exitosamente", Data: order}
	})
}

func (s *Server) myOrders(c *gin.Context) {
	principal, _ := principalFrom(c)
	page, err := s.services.Lifecycle.ListMine(c.Request.Context(), principal, pageQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	paginated(c, page)
}

func (s *Server) allOrders(c *gin.Context) {
	principal, _ := principalFrom(c)
	page, err := s.services.Lifecycle.ListAll(c.Request.Context(), principal, c.Query("estado"), pageQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	views, err := s.withOwners(c, page.Items)
	if err != nil {
		s.writeError(c, err)
		return
	}
	paginated(c, domain.Page[orderView]{Items: views, Total: page.Total, PageRequest: page.PageRequest})
}

func (s *Server) getOrder(c *gin.Context) {
	principal, _ := principalFrom(c)
	order, err := s.services.Lifecycle.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	views, err := s.withOwners(c, []domain.Order{order})
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "", views[0])
}

// orderView — заказ с данными владельца (usuario).
type orderView struct {
	domain.Order
	Owner *domain.OrderOwner `json:"usuario,omitempty"`
}

func (s *Server) withOwners(c *gin.Context, orders []domain.Order) ([]orderView, error) {
	views := make([]orderView, len(orders))
	if s.services.Users == nil {
		for i, order := range orders {
			views[i] = orderView{Order: order}
		}
		return views, nil
	}

	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.UserID)
	}
	owners, err := s.services.Users.Owners(c.Request.Context(), ids)
	if err != nil {
		return nil, err
	}
	for i, order := range orders {
		views[i] = orderView{Order: order}
		if owner, ok := owners[order.UserID]; ok {
			views[i].Owner = &owner
		}
	}
	return views, nil
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}

	update := lifecycle.StatusUpdate{Status: req.Status, Note: req.Note}
	if req.Tracking != nil {
		update.Tracking = &domain.Tracking{
			Number:  req.Tracking.Number,
			Carrier: req.Tracking.Carrier,
			URL:     req.Tracking.URL,
		}
	}

	order, err := s.services.Lifecycle.AppendStatus(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "Estado actualizado", order)
}

func (s *Server) payOrder(c *gin.Context) {
	var req payRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	order, err := s.services.Lifecycle.MarkPaid(c.Request.Context(), c.Param("id"), req.TransactionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "Pago registrado", order)
}
