package mcp

import (
	"github.com/payonce/payonce"
)

// IdempotencyKeyMetaKey is the MCP _meta key carrying the client-supplied
// idempotency token (client → server).
const IdempotencyKeyMetaKey = "io.modelcontextprotocol/idempotency-key"

// Tool names exposed by the payment server.
const (
	ToolGetBalance      = "get_balance"
	ToolGetTransactions = "get_transactions"
	ToolMakePayment     = "make_payment"
)

// AccountArgs are the wire arguments of get_balance and get_transactions.
type AccountArgs struct {
	AccountUID string `json:"account_uid"`
}

// PaymentArgs are the wire arguments of make_payment. The idempotency token
// is not part of the body; it travels in the request _meta under
// IdempotencyKeyMetaKey.
type PaymentArgs struct {
	AccountUID       string `json:"account_uid"`
	IBAN             string `json:"iban"`
	BIC              string `json:"bic"`
	AmountMinorUnits int64  `json:"amountInMinorUnits"`
	Currency         string `json:"currency"`
}

// BalanceResult is the get_balance response payload.
type BalanceResult struct {
	BalanceMinorUnits int64 `json:"balanceMinorUnits"`
}

// TransactionsResult is the get_transactions response payload.
type TransactionsResult struct {
	Transactions []payonce.Transaction `json:"transactions"`
}

// ErrorPayload is the structured payload of a failed tool call. It mirrors
// payonce.PaymentError on the wire so clients can reconstruct the error.
type ErrorPayload struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
