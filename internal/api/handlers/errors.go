package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/acme/outbound-batch-dialer/pkg/errors"
)

// statusByKind maps error kinds to HTTP status codes. Repository sentinels
// alias the same values.
var statusByKind = map[error]int{
	apperrors.ErrValidation:    http.StatusBadRequest,
	apperrors.ErrNotFound:      http.StatusNotFound,
	apperrors.ErrConflict:      http.StatusConflict,
	apperrors.ErrQuotaExceeded: http.StatusTooManyRequests,
	apperrors.ErrUnavailable:   http.StatusServiceUnavailable,
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if status, ok := statusByKind[apperrors.Kind(err)]; ok {
		return fiber.NewError(status, err.Error())
	}
	return err
}
