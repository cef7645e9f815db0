package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/techstore/storefront/internal/domain"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	jsonContentType      = "application/json; charset=utf-8"
)

// outcome — результат обработчика, который можно сохранить и воспроизвести.
type outcome func() (int, Response)

// idempotent выполняет run не больше одного раза на Idempotency-Key.
// Тот же ключ и тот же отпечаток запроса воспроизводят сохранённый ответ;
// другой отпечаток или незавершённая обработка дают 409.
func (s *Server) idempotent(c *gin.Context, fingerprint []byte, run outcome) {
	key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
	if key == "" || s.idempotency == nil {
		status, body := run()
		c.JSON(status, body)
		return
	}

	principal, _ := principalFrom(c)
	hash := domain.HashRequest([]byte(c.Request.Method), []byte(c.FullPath()), []byte(principal.UserID), fingerprint)
	logger := s.logger.WithField("idempotency_key", key)

	record, err := s.idempotency.CreateProcessing(key, hash, s.now.Now().Add(s.idempotencyTTL))
	if err != nil {
		s.replay(c, record, err)
		return
	}

	status, body := s.runGuarded(c, key, run)
	encoded, err := json.Marshal(body)
	if err != nil {
		logger.WithError(err).Warn("failed to encode idempotent response")
		c.JSON(status, body)
		return
	}

	if status < http.StatusBadRequest {
		err = s.idempotency.MarkDone(key, encoded, status)
	} else {
		err = s.idempotency.MarkFailed(key, encoded, status)
	}
	if err != nil {
		logger.WithError(err).Warn("failed to store idempotent response")
	}

	c.Data(status, jsonContentType, encoded)
}

// runGuarded выполняет run; при панике ключ помечается failed с ответом 500,
// после чего паника уходит дальше в recovery.
func (s *Server) runGuarded(c *gin.Context, key string, run outcome) (int, Response) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		status, body := s.errorResponse(c, fmt.Errorf("panic: %v", recovered))
		encoded, err := json.Marshal(body)
		if err == nil {
			err = s.idempotency.MarkFailed(key, encoded, status)
		}
		if err != nil {
			s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to release idempotency key after panic")
		}
		panic(recovered)
	}()
	return run()
}

func (s *Server) replay(c *gin.Context, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		failure(c, http.StatusConflict, "Idempotency-Key ya fue usada con otra petición", nil)
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusProcessing:
			failure(c, http.StatusConflict, "La petición con esta Idempotency-Key aún se está procesando", nil)
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if len(record.ResponseBody) == 0 || record.HTTPStatus == 0 {
				s.writeError(c, fmt.Errorf("idempotency record %s has no stored response", record.Key))
				return
			}
			c.Header(headerReplayed, "true")
			c.Data(record.HTTPStatus, jsonContentType, record.ResponseBody)
		default:
			s.writeError(c, fmt.Errorf("idempotency record %s: unknown status %q", record.Key, record.Status))
		}
	case errors.Is(createErr, domain.ErrIdempotencyKeyRequired):
		failure(c, http.StatusBadRequest, createErr.Error(), nil)
	default:
		s.writeError(c, fmt.Errorf("create idempotency record: %w", createErr))
	}
}
