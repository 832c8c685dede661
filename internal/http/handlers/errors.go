package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/yungbote/upcycleai/internal/platform/apierr"
	"github.com/yungbote/upcycleai/internal/services"
)

// toAPIError maps service failures onto HTTP statuses and stable error codes.
func toAPIError(err error) *apierr.Error {
	var ae *apierr.Error
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, services.ErrValidation):
		return apierr.BadRequest("invalid_request", err)
	case errors.Is(err, services.ErrStepOutOfRange):
		return apierr.BadRequest("step_out_of_range", err)
	case errors.Is(err, services.ErrPremiumRequired):
		return apierr.New(http.StatusPaymentRequired, "premium_required", err)
	case errors.Is(err, services.ErrProjectNotFound):
		return apierr.NotFound("project_not_found", err)
	case errors.Is(err, services.ErrHistoryNotFound):
		return apierr.NotFound("history_not_found", err)
	case errors.Is(err, services.ErrSessionClosed):
		return apierr.New(http.StatusGone, "session_closed", err)
	case services.IsGenerationError(err):
		return apierr.New(http.StatusBadGateway, "generation_failed", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apierr.New(http.StatusRequestTimeout, "request_cancelled", err)
	default:
		return apierr.From(err, "internal_error")
	}
}
