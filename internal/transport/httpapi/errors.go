package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/techstore/storefront/internal/domain"
)

const internalMessage = "Error interno del servidor"

// statusFor сопоставляет доменную ошибку HTTP-коду. Порядок проверок важен:
// конкретные ошибки покупки проверяются раньше базовых видов.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrProductInactive),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict), domain.IsIdempotencyConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse строит конверт ошибки. В production сообщение внутренних
// ошибок скрывается, stack не добавляется.
func (s *Server) errorResponse(c *gin.Context, err error) (int, Response) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		if s.production {
			message = internalMessage
		}
	}

	body := Response{Success: false, Message: message}
	if !s.production {
		body.Stack = fmt.Sprintf("%v\n%s", err, debug.Stack())
	}
	return status, body
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, body := s.errorResponse(c, err)
	c.AbortWithStatusJSON(status, body)
}
