package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/keyshop/internal/command"
	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"github.com/gin-gonic/gin"
)

const (
	errorCodeBanned              = "banned"
	errorCodePlanNotFound        = "plan_not_found"
	errorCodeInsufficientBalance = "insufficient_balance"
	errorCodeOutOfStock          = "out_of_stock"
	errorCodeInvalidState        = "invalid_state"
	errorCodeHasDependentOrders  = "has_dependent_orders"
	errorCodeNotFound            = "not_found"
	errorCodeInvalidInput        = "invalid_input"
	errorCodeInvalidPayload      = "invalid_payload"
	errorCodeInvalidCommand      = "invalid_command"
	errorCodeUnauthorized        = "unauthorized"
	errorCodeForbidden           = "forbidden"
	errorCodeUnavailable         = "storage_unavailable"
	errorCodeInternal            = "internal_error"
)

type httpError struct {
	status  int
	code    string
	message string
}

func mapToHTTPError(source error) httpError {
	switch {
	case errors.Is(source, shop.ErrStorageFailure):
		return httpError{status: http.StatusServiceUnavailable, code: errorCodeUnavailable, message: shop.Reason(source)}
	case errors.Is(source, shop.ErrBanned):
		return httpError{status: http.StatusForbidden, code: errorCodeBanned, message: shop.Reason(source)}
	case errors.Is(source, command.ErrForbidden):
		return httpError{status: http.StatusForbidden, code: errorCodeForbidden, message: source.Error()}
	case errors.Is(source, command.ErrUnknownCommand), errors.Is(source, command.ErrMalformedCommand):
		return httpError{status: http.StatusBadRequest, code: errorCodeInvalidCommand, message: source.Error()}
	case errors.Is(source, shop.ErrPlanNotFound):
		return httpError{status: http.StatusNotFound, code: errorCodePlanNotFound, message: shop.Reason(source)}
	case errors.Is(source, shop.ErrInsufficientBalance):
		return httpError{status: http.StatusConflict, code: errorCodeInsufficientBalance, message: shop.Reason(source)}
	case errors.Is(source, shop.ErrOutOfStock):
		return httpError{status: http.StatusConflict, code: errorCodeOutOfStock, message: shop.Reason(source)}
	case errors.Is(source, shop.ErrInvalidState):
		return httpError{status: http.StatusConflict, code: errorCodeInvalidState, message: shop.Reason(source)}
	case errors.Is(source, shop.ErrHasDependentOrders):
		return httpError{status: http.StatusConflict, code: errorCodeHasDependentOrders, message: shop.Reason(source)}
	case errors.Is(source, shop.ErrNotFound):
		return httpError{status: http.StatusNotFound, code: errorCodeNotFound, message: source.Error()}
	case shop.IsValidationError(source):
		return httpError{status: http.StatusBadRequest, code: errorCodeInvalidInput, message: source.Error()}
	default:
		return httpError{status: http.StatusInternalServerError, code: errorCodeInternal, message: shop.Reason(source)}
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
