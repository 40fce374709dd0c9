package payonce

import (
	"errors"
	"fmt"
)

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	// ErrCodeAccountNotFound is a caller error: the account id is unknown.
	ErrCodeAccountNotFound = "account_not_found"
	// ErrCodeInvalidArgument is a caller error: malformed id, non-positive
	// amount, or an empty counterparty/currency field.
	ErrCodeInvalidArgument = "invalid_argument"
	// ErrCodeInsufficientFunds is a business rejection: the debit would take
	// the balance negative. The idempotency token is NOT marked processed.
	ErrCodeInsufficientFunds = "insufficient_funds"
	// ErrCodeMissingIdempotencyToken is a caller error raised by the
	// protected variant when the request metadata carries no token.
	ErrCodeMissingIdempotencyToken = "missing_idempotency_token"
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// AsPaymentError unwraps err into a *PaymentError if one is in its chain.
func AsPaymentError(err error) (*PaymentError, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsCode reports whether err carries the given payment error code.
func IsCode(err error, code string) bool {
	pe, ok := AsPaymentError(err)
	return ok && pe.Code == code
}
