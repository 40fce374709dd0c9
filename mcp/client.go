package mcp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/payonce/payonce"
)

const clientVersion = "1.0.0"

// Client is a typed MCP client for the payment tools. It wraps an SDK
// session so callers work with ledger types instead of raw tool results.
type Client struct {
	mcpClient *mcpsdk.Client
	session   *mcpsdk.ClientSession
	log       *logrus.Logger
}

// ClientOption configures a Client before it connects.
type ClientOption func(*clientConfig)

type clientConfig struct {
	httpClient *http.Client
	log        *logrus.Logger
	name       string
}

// WithHTTPClient sets the HTTP client used by the streamable transport.
// Leave Timeout zero and bound individual calls with context deadlines
// instead; a client-wide timeout would also cut the standing GET stream.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = hc
	}
}

// WithClientLogger sets the structured logger. The default discards
// everything.
func WithClientLogger(log *logrus.Logger) ClientOption {
	return func(c *clientConfig) {
		c.log = log
	}
}

// WithClientName overrides the implementation name sent during the MCP
// handshake.
func WithClientName(name string) ClientOption {
	return func(c *clientConfig) {
		c.name = name
	}
}

// Dial connects to an MCP payment server over the streamable HTTP
// transport and performs the initialize handshake.
func Dial(ctx context.Context, endpoint string, opts ...ClientOption) (*Client, error) {
	cfg := clientConfig{
		name: "payonce-client",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logrus.New()
		cfg.log.SetOutput(io.Discard)
	}

	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    cfg.name,
		Version: clientVersion,
	}, nil)

	transport := &mcpsdk.StreamableClientTransport{
		Endpoint:   endpoint,
		HTTPClient: cfg.httpClient,
	}

	session, err := mcpClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	cfg.log.WithField("endpoint", endpoint).Debug("connected to payment server")

	return &Client{
		mcpClient: mcpClient,
		session:   session,
		log:       cfg.log,
	}, nil
}

// Close terminates the session.
func (c *Client) Close() error {
	return c.session.Close()
}

// Session returns the underlying SDK session for calls the typed surface
// does not cover.
func (c *Client) Session() *mcpsdk.ClientSession {
	return c.session
}

// GetBalance returns the account balance in minor units.
func (c *Client) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	result, err := c.callTool(ctx, ToolGetBalance, AccountArgs{AccountUID: accountID.String()}, nil)
	if err != nil {
		return 0, err
	}

	var payload BalanceResult
	if err := decodeResult(result, &payload); err != nil {
		return 0, fmt.Errorf("failed to decode balance result: %w", err)
	}
	return payload.BalanceMinorUnits, nil
}

// GetTransactions returns the processed transactions for the account,
// oldest first.
func (c *Client) GetTransactions(ctx context.Context, accountID uuid.UUID) ([]payonce.Transaction, error) {
	result, err := c.callTool(ctx, ToolGetTransactions, AccountArgs{AccountUID: accountID.String()}, nil)
	if err != nil {
		return nil, err
	}

	var payload TransactionsResult
	if err := decodeResult(result, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode transactions result: %w", err)
	}
	return payload.Transactions, nil
}

// MakePayment submits a payment. When req.IdempotencyToken is set it is
// attached to request metadata so a protected server can deduplicate
// retries; when empty no metadata is sent, which is what trips up the
// unprotected server.
func (c *Client) MakePayment(ctx context.Context, req payonce.PaymentRequest) (*payonce.PaymentResult, error) {
	args := PaymentArgs{
		AccountUID:       req.AccountID.String(),
		IBAN:             req.IBAN,
		BIC:              req.BIC,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         req.Currency,
	}

	var meta mcpsdk.Meta
	if req.IdempotencyToken != "" {
		meta = mcpsdk.Meta{IdempotencyKeyMetaKey: req.IdempotencyToken}
	}

	started := time.Now()
	result, err := c.callTool(ctx, ToolMakePayment, args, meta)
	if err != nil {
		c.log.WithError(err).WithField("elapsed", time.Since(started)).Warn("payment call failed")
		return nil, err
	}

	var payload payonce.PaymentResult
	if err := decodeResult(result, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode payment result: %w", err)
	}
	return &payload, nil
}

// callTool invokes a tool and converts error results into *PaymentError.
func (c *Client) callTool(ctx context.Context, name string, args any, meta mcpsdk.Meta) (*mcpsdk.CallToolResult, error) {
	params := &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	}
	if meta != nil {
		params.Meta = meta
	}

	result, err := c.session.CallTool(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", name, err)
	}

	if result.IsError {
		if pe := ParseToolError(result); pe != nil {
			return nil, pe
		}
		return nil, fmt.Errorf("%s failed: %s", name, firstText(result))
	}

	return result, nil
}
