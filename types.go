// Package payonce implements a small in-memory payments core used to
// demonstrate idempotent versus non-idempotent mutating operations under
// client timeout/retry behavior.
//
// The root package holds the ledger, the unprotected payment processor and
// the simulated-latency pacer. The idempotency subpackage wraps a Processor
// with token deduplication; the mcp subpackage exposes everything as MCP
// tools.
package payonce

import (
	"context"

	"github.com/google/uuid"
)

// Variant names for the two server flavors. The idempotent variant
// deduplicates retried payments by token; the non-idempotent one applies
// every accepted call.
const (
	VariantIdempotent    = "idempotent"
	VariantNonIdempotent = "non-idempotent"
)

// PaymentStatus reports how a payment request was resolved.
type PaymentStatus string

const (
	// StatusProcessed means this call applied the payment to the ledger.
	StatusProcessed PaymentStatus = "processed"
	// StatusAlreadyProcessed means a previous call with the same idempotency
	// token already applied the payment; this call mutated nothing.
	StatusAlreadyProcessed PaymentStatus = "already_processed"
)

// Transaction is a single append-only ledger entry. Counterparty fields are
// opaque strings; identity is positional within the owning account's log.
type Transaction struct {
	IBAN             string `json:"iban"`
	BIC              string `json:"bic"`
	AmountMinorUnits int64  `json:"amountMinorUnits"`
	Currency         string `json:"currency"`
}

// PaymentRequest carries the business arguments of a payment plus the
// idempotency token extracted from request metadata. The token is empty when
// the transport carried none; only the protected processor looks at it.
type PaymentRequest struct {
	AccountID        uuid.UUID
	IBAN             string
	BIC              string
	AmountMinorUnits int64
	Currency         string
	IdempotencyToken string
}

// PaymentResult is the response of a payment operation.
type PaymentResult struct {
	Status  PaymentStatus `json:"status"`
	Message string        `json:"message"`
}

// Processor applies payments. Service implements the unprotected variant;
// idempotency.Service wraps any Processor with token deduplication.
type Processor interface {
	// Validate checks the business arguments without mutating anything.
	Validate(req PaymentRequest) error

	// MakePayment applies the payment. Implementations must commit the
	// ledger mutation even when ctx is cancelled mid-call: client
	// abandonment never rolls back a dispatched unit of work.
	MakePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
}
