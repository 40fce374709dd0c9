package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/payonce/payonce"
	"github.com/payonce/payonce/metrics"
)

const serverVersion = "1.0.0"

// Input schemas for the exposed tools. Validation happens before decoding
// because the SDK's low-level AddTool registers tools without checking
// arguments against the schema.
const (
	accountArgsSchema = `{
		"type": "object",
		"properties": {
			"account_uid": {"type": "string", "format": "uuid"}
		},
		"required": ["account_uid"],
		"additionalProperties": false
	}`

	paymentArgsSchema = `{
		"type": "object",
		"properties": {
			"account_uid": {"type": "string", "format": "uuid"},
			"iban": {"type": "string"},
			"bic": {"type": "string"},
			"amountInMinorUnits": {"type": "integer"},
			"currency": {"type": "string"}
		},
		"required": ["account_uid", "iban", "bic", "amountInMinorUnits", "currency"],
		"additionalProperties": false
	}`
)

// Server exposes a ledger and a payment processor as MCP tools over the
// streamable HTTP transport.
//
// The same Server serves both flavors of the demo: hand it the bare
// payonce.Service for the non-idempotent variant or an idempotency.Service
// for the protected one.
type Server struct {
	name      string
	variant   string
	ledger    *payonce.Ledger
	processor payonce.Processor
	log       *logrus.Logger
	metrics   *metrics.Metrics
	mcpServer *mcpsdk.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log *logrus.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics attaches a metrics bundle. Without one, nothing is recorded.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithVariant names the server flavor for tool annotations and metrics
// labels. Defaults to payonce.VariantNonIdempotent.
func WithVariant(variant string) ServerOption {
	return func(s *Server) {
		s.variant = variant
	}
}

// NewServer creates an MCP server around the given ledger and processor.
func NewServer(name string, ledger *payonce.Ledger, processor payonce.Processor, opts ...ServerOption) *Server {
	s := &Server{
		name:      name,
		variant:   payonce.VariantNonIdempotent,
		ledger:    ledger,
		processor: processor,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.New()
		s.log.SetOutput(io.Discard)
	}

	s.mcpServer = mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    name,
		Version: serverVersion,
	}, nil)
	s.registerTools()

	return s
}

// Handler returns an http.Handler serving the MCP streamable transport.
// Mount it on the /mcp route; the transport multiplexes POST, GET and
// DELETE on that path.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.mcpServer
	}, nil)
}

// MCPServer returns the underlying SDK server, mainly for in-process
// transports in tests.
func (s *Server) MCPServer() *mcpsdk.Server {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(&mcpsdk.Tool{
		Name:        ToolGetBalance,
		Description: "Return the current balance in minor units for the specified account.",
		InputSchema: json.RawMessage(accountArgsSchema),
	}, s.handleGetBalance)

	s.mcpServer.AddTool(&mcpsdk.Tool{
		Name:        ToolGetTransactions,
		Description: "Return the list of processed transactions for the specified account.",
		InputSchema: json.RawMessage(accountArgsSchema),
	}, s.handleGetTransactions)

	paymentTool := &mcpsdk.Tool{
		Name:        ToolMakePayment,
		Description: "Apply a payment. Deliberately non-idempotent: every accepted call debits the account, so a retry charges twice.",
		InputSchema: json.RawMessage(paymentArgsSchema),
	}
	if s.variant == payonce.VariantIdempotent {
		paymentTool.Description = "Apply a payment exactly once, deduplicated by the idempotency key in request metadata."
		paymentTool.Annotations = &mcpsdk.ToolAnnotations{IdempotentHint: true}
	}
	s.mcpServer.AddTool(paymentTool, s.handleMakePayment)
}

func (s *Server) handleGetBalance(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveToolCall(ToolGetBalance, time.Since(started))
	}()

	accountID, errResult := s.decodeAccountArgs(req)
	if errResult != nil {
		return errResult, nil
	}

	balance, err := s.ledger.GetBalance(accountID)
	if err != nil {
		return s.toolError(ToolGetBalance, err)
	}

	return jsonResult(BalanceResult{BalanceMinorUnits: balance})
}

func (s *Server) handleGetTransactions(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveToolCall(ToolGetTransactions, time.Since(started))
	}()

	accountID, errResult := s.decodeAccountArgs(req)
	if errResult != nil {
		return errResult, nil
	}

	txs, err := s.ledger.GetTransactions(accountID)
	if err != nil {
		return s.toolError(ToolGetTransactions, err)
	}
	if txs == nil {
		txs = []payonce.Transaction{}
	}

	return jsonResult(TransactionsResult{Transactions: txs})
}

func (s *Server) handleMakePayment(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveToolCall(ToolMakePayment, time.Since(started))
	}()

	if errResult := validateArgs(paymentArgsSchema, req.Params.Arguments); errResult != nil {
		s.metrics.RecordPayment(s.variant, payonce.ErrCodeInvalidArgument)
		return errResult, nil
	}

	var args PaymentArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		s.metrics.RecordPayment(s.variant, payonce.ErrCodeInvalidArgument)
		return invalidArgsResult(fmt.Sprintf("failed to decode arguments: %v", err)), nil
	}

	accountID, err := uuid.Parse(args.AccountUID)
	if err != nil {
		s.metrics.RecordPayment(s.variant, payonce.ErrCodeInvalidArgument)
		return invalidArgsResult(fmt.Sprintf("account_uid is not a valid UUID: %v", err)), nil
	}

	preq := payonce.PaymentRequest{
		AccountID:        accountID,
		IBAN:             args.IBAN,
		BIC:              args.BIC,
		AmountMinorUnits: args.AmountMinorUnits,
		Currency:         args.Currency,
		IdempotencyToken: ExtractIdempotencyKey(requestMeta(req)),
	}

	result, err := s.processor.MakePayment(ctx, preq)
	if err != nil {
		pe, ok := payonce.AsPaymentError(err)
		if !ok {
			// Infrastructure failure, not a business rejection: surface it
			// as a protocol-level error so clients can tell the two apart.
			s.metrics.RecordPayment(s.variant, "error")
			s.log.WithError(err).WithField("tool", ToolMakePayment).Error("payment failed")
			return nil, err
		}

		s.metrics.RecordPayment(s.variant, pe.Code)
		s.log.WithFields(logrus.Fields{
			"tool":      ToolMakePayment,
			"accountId": args.AccountUID,
			"code":      pe.Code,
		}).Warn("payment rejected")
		return errorResult(pe), nil
	}

	s.metrics.RecordPayment(s.variant, string(result.Status))
	s.log.WithFields(logrus.Fields{
		"tool":      ToolMakePayment,
		"accountId": args.AccountUID,
		"status":    result.Status,
	}).Info("payment handled")

	return jsonResult(result)
}

// decodeAccountArgs validates and decodes the shared account_uid argument.
// The second return value is a ready error result when decoding failed.
func (s *Server) decodeAccountArgs(req *mcpsdk.CallToolRequest) (uuid.UUID, *mcpsdk.CallToolResult) {
	if errResult := validateArgs(accountArgsSchema, req.Params.Arguments); errResult != nil {
		return uuid.Nil, errResult
	}

	var args AccountArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return uuid.Nil, invalidArgsResult(fmt.Sprintf("failed to decode arguments: %v", err))
	}

	accountID, err := uuid.Parse(args.AccountUID)
	if err != nil {
		return uuid.Nil, invalidArgsResult(fmt.Sprintf("account_uid is not a valid UUID: %v", err))
	}

	return accountID, nil
}

// toolError converts a ledger error into a tool result; non-payment errors
// propagate as protocol errors.
func (s *Server) toolError(tool string, err error) (*mcpsdk.CallToolResult, error) {
	pe, ok := payonce.AsPaymentError(err)
	if !ok {
		s.log.WithError(err).WithField("tool", tool).Error("tool failed")
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"tool": tool,
		"code": pe.Code,
	}).Warn("tool rejected request")
	return errorResult(pe), nil
}

// validateArgs checks raw arguments against a tool's input schema. Returns
// nil when the arguments are valid, otherwise a ready error result naming
// every violation.
func validateArgs(schema string, args json.RawMessage) *mcpsdk.CallToolResult {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return invalidArgsResult(fmt.Sprintf("schema validation failed: %v", err))
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return invalidArgsResult(strings.Join(violations, "; "))
}
