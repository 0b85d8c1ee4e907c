package handlers

import (
	"errors"
	"net/http"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/pkg/res"

	"github.com/gin-gonic/gin"
)

// statusFor сопоставляет ошибку домена с HTTP статусом и сообщением для клиента.
// Текст ошибок Stripe и драйверов наружу не уходит.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "amount must be at least 100 minor units"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusInternalServerError, "payment provider unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeError(c *gin.Context, err error) {
	status, message := statusFor(err)
	_ = c.Error(err)
	res.JsonResponse(c.Writer, res.ErrorResponse{Error: message, ErrorCode: status}, status)
	c.Abort()
}
