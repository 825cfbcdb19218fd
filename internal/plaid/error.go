package plaid

import (
	"errors"
	"fmt"
)

// Error codes the services react to.
const (
	ErrCodeMutationDuringPagination = "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION"
	ErrCodeItemLoginRequired        = "ITEM_LOGIN_REQUIRED"
)

// Error is the error object Plaid returns with any non-200 response.
type Error struct {
	StatusCode     int    `json:"-"`
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("plaid %s/%s: %s", e.ErrorType, e.ErrorCode, e.ErrorMessage)
}

// ErrorCode extracts the Plaid error code from err, or "" when err does not
// wrap a *Error.
func ErrorCode(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.ErrorCode
	}
	return ""
}

// ErrorMessage returns the provider's message when err wraps a *Error, and
// err.Error() otherwise.
func ErrorMessage(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.ErrorMessage != "" {
		return pe.ErrorMessage
	}
	return err.Error()
}
