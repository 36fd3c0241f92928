package shop

import (
	"errors"
	"fmt"
)

// Business rejections. Callers render them with Reason.
var (
	ErrBanned              = errors.New("account banned")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOutOfStock          = errors.New("out of stock")
	ErrInvalidState        = errors.New("invalid state")
	ErrHasDependentOrders  = errors.New("has dependent orders")
	ErrNotFound            = errors.New("not found")
	ErrStorageFailure      = errors.New("storage failure")
)

// Lookup misses for specific entities; all of them match ErrNotFound.
var (
	ErrAccountNotFound       = fmt.Errorf("account %w", ErrNotFound)
	ErrProductNotFound       = fmt.Errorf("product %w", ErrNotFound)
	ErrKeyNotFound           = fmt.Errorf("key %w", ErrNotFound)
	ErrEntryNotFound         = fmt.Errorf("ledger entry %w", ErrNotFound)
	ErrResellerPriceNotFound = fmt.Errorf("reseller price %w", ErrNotFound)
)

// Input validation errors.
var (
	ErrInvalidAccountID     = errors.New("invalid account id")
	ErrInvalidProductID     = errors.New("invalid product id")
	ErrInvalidPlanID        = errors.New("invalid plan id")
	ErrInvalidKeyID         = errors.New("invalid key id")
	ErrInvalidOrderID       = errors.New("invalid order id")
	ErrInvalidEntryID       = errors.New("invalid entry id")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidKeyValue      = errors.New("invalid key value")
	ErrInvalidProductName   = errors.New("invalid product name")
	ErrInvalidValidityDays  = errors.New("invalid validity days")
	ErrInvalidRole          = errors.New("invalid role")
	ErrInvalidEntryKind     = errors.New("invalid entry kind")
	ErrInvalidMetadataJSON  = errors.New("invalid metadata json")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

const (
	reasonBanned              = "Your account has been banned. Contact admin."
	reasonPlanNotFound        = "Plan not found"
	reasonInsufficientBalance = "Insufficient balance"
	reasonOutOfStock          = "Product out of stock"
	reasonInvalidState        = "This action is not allowed in the current state"
	reasonHasDependentOrders  = "Cannot delete: orders reference it. Deactivate it instead."
	reasonNotFound            = "Not found"
	reasonInvalidInput        = "Invalid input"
	reasonTryAgain            = "Something went wrong, please try again."
)

var validationErrors = []error{
	ErrInvalidAccountID,
	ErrInvalidProductID,
	ErrInvalidPlanID,
	ErrInvalidKeyID,
	ErrInvalidOrderID,
	ErrInvalidEntryID,
	ErrInvalidAmount,
	ErrInvalidQuantity,
	ErrInvalidKeyValue,
	ErrInvalidProductName,
	ErrInvalidValidityDays,
	ErrInvalidRole,
	ErrInvalidEntryKind,
	ErrInvalidMetadataJSON,
}

// Reason returns a message suitable for showing to the end user.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBanned):
		return reasonBanned
	case errors.Is(err, ErrPlanNotFound):
		return reasonPlanNotFound
	case errors.Is(err, ErrInsufficientBalance):
		return reasonInsufficientBalance
	case errors.Is(err, ErrOutOfStock):
		return reasonOutOfStock
	case errors.Is(err, ErrInvalidState):
		return reasonInvalidState
	case errors.Is(err, ErrHasDependentOrders):
		return reasonHasDependentOrders
	case errors.Is(err, ErrNotFound):
		return reasonNotFound
	case IsValidationError(err):
		return reasonInvalidInput
	default:
		return reasonTryAgain
	}
}

// IsRejection reports whether err is a business-rule or validation outcome rather than a
// storage failure.
func IsRejection(err error) bool {
	if err == nil || errors.Is(err, ErrStorageFailure) {
		return false
	}
	for _, rejection := range []error{ErrBanned, ErrPlanNotFound, ErrInsufficientBalance, ErrOutOfStock, ErrInvalidState, ErrHasDependentOrders, ErrNotFound} {
		if errors.Is(err, rejection) {
			return true
		}
	}
	return IsValidationError(err)
}

// IsValidationError reports whether err came from input validation.
func IsValidationError(err error) bool {
	for _, validationError := range validationErrors {
		if errors.Is(err, validationError) {
			return true
		}
	}
	return false
}

// StorageFailure marks an unexpected persistence error.
func StorageFailure(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
