package handler

import (
	"errors"
	"net/http"

	"momopay/internal/domain"
	"momopay/internal/ledger"
	"momopay/pkg/payment"

	"github.com/gin-gonic/gin"
)

// statusFor maps the domain error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnsupportedRegion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotCancellable),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, ledger.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInfrastructure):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}
