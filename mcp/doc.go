// Package mcp provides MCP (Model Context Protocol) transport integration
// for the payment service.
//
// The package exposes a ledger and a payment processor as three MCP tools
// (get_balance, get_transactions, make_payment) over the streamable HTTP
// transport, and a typed client for calling them.
//
// # Server Usage
//
// Build a server around a ledger and processor, then mount its handler:
//
//	import (
//	    "net/http"
//	    "github.com/payonce/payonce"
//	    "github.com/payonce/payonce/mcp"
//	)
//
//	ledger := payonce.NewLedger()
//	svc := payonce.NewService(ledger)
//
//	server := mcp.NewServer("payment-server", ledger, svc)
//	http.Handle("/mcp", server.Handler())
//
// Wrap the service with idempotency protection to get the deduplicating
// variant; the Server does not care which processor it is handed:
//
//	protected := idempotency.Wrap(svc)
//	server := mcp.NewServer("payment-server-idempotent", ledger, protected,
//	    mcp.WithVariant(payonce.VariantIdempotent))
//
// # Client Usage
//
// Dial a server and call the typed methods:
//
//	client, err := mcp.Dial(ctx, "http://localhost:8001/mcp")
//	if err != nil { ... }
//	defer client.Close()
//
//	balance, err := client.GetBalance(ctx, accountID)
//
//	result, err := client.MakePayment(ctx, payonce.PaymentRequest{
//	    AccountID:        accountID,
//	    IBAN:             "DE89370400440532013000",
//	    BIC:              "COBADEFFXXX",
//	    AmountMinorUnits: 2500,
//	    Currency:         "EUR",
//	    IdempotencyToken: uuid.NewString(),
//	})
//
// When IdempotencyToken is set the client attaches it to the request _meta
// under the "io.modelcontextprotocol/idempotency-key" key; servers running
// the idempotent variant use it to deduplicate retries.
//
// # Error Handling
//
// Business rejections (unknown account, insufficient funds, missing token)
// come back as tool results with IsError set. The client converts those
// into *payonce.PaymentError so callers can branch on the code:
//
//	result, err := client.MakePayment(ctx, req)
//	if payonce.IsCode(err, payonce.ErrCodeInsufficientFunds) { ... }
//
// Infrastructure failures (an unreachable idempotency store, transport
// trouble) surface as ordinary protocol errors instead.
package mcp
