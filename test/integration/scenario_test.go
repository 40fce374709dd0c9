//go:build integration

// Package integration_test runs the full demo scenario over the real MCP
// streamable HTTP transport with the genuine demo timings: a 5s simulated
// processing delay, a 2s first-attempt timeout and a 10s retry timeout.
// The short-timeout attempt is abandoned client-side while the server
// finishes the work, and the identical retry shows the difference between
// the two server variants.
//
// Run with the integration build tag (each scenario takes several seconds):
//
//	go test -tags=integration ./test/integration
package integration_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/payonce/payonce"
	"github.com/payonce/payonce/idempotency"
	"github.com/payonce/payonce/logging"
	"github.com/payonce/payonce/mcp"
	"github.com/payonce/payonce/metrics"
	"github.com/payonce/payonce/pkg/ginmw"
)

const (
	openingBalance = int64(10000)
	paymentAmount  = int64(2500)

	simulatedDelay = 5 * time.Second
	shortTimeout   = 2 * time.Second
	retryTimeout   = 10 * time.Second
)

// startServer assembles the same stack as cmd/payonce-server: ledger, pacer,
// processor, MCP server and the gin routes around it.
func startServer(t *testing.T, idempotent bool) (string, uuid.UUID) {
	t.Helper()

	ledger := payonce.NewLedger()
	accountID := uuid.New()
	if err := ledger.CreateAccount(accountID, openingBalance); err != nil {
		t.Fatalf("Failed to seed account: %v", err)
	}

	log := logging.Discard()
	svc := payonce.NewService(ledger,
		payonce.WithPacer(payonce.NewPacer(simulatedDelay)),
		payonce.WithLogger(log),
	)

	var processor payonce.Processor = svc
	variant := payonce.VariantNonIdempotent
	name := "payment-server"
	if idempotent {
		processor = idempotency.Wrap(svc, idempotency.WithLogger(log))
		variant = payonce.VariantIdempotent
		name = "payment-server-idempotent"
	}

	m := metrics.New()
	server := mcp.NewServer(name, ledger, processor,
		mcp.WithVariant(variant),
		mcp.WithLogger(log),
		mcp.WithMetrics(m),
	)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ginmw.RequestLogger(log), ginmw.Recovery(log))

	mcpHandler := gin.WrapH(server.Handler())
	router.POST("/mcp", mcpHandler)
	router.GET("/mcp", mcpHandler)
	router.DELETE("/mcp", mcpHandler)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "variant": variant})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	httpServer := httptest.NewServer(router)
	t.Cleanup(httpServer.Close)

	return httpServer.URL, accountID
}

func dial(t *testing.T, ctx context.Context, baseURL string) *mcp.Client {
	t.Helper()
	client, err := mcp.Dial(ctx, baseURL+"/mcp")
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// abandonedThenRetried performs the demo's two payment attempts and returns
// the retry's result.
func abandonedThenRetried(t *testing.T, ctx context.Context, baseURL string, req payonce.PaymentRequest) *payonce.PaymentResult {
	t.Helper()

	first := dial(t, ctx, baseURL)
	shortCtx, cancel := context.WithTimeout(ctx, shortTimeout)
	defer cancel()

	t.Logf("⏱️  First make_payment with a %s timeout...", shortTimeout)
	started := time.Now()
	_, err := first.MakePayment(shortCtx, req)
	if err == nil {
		t.Fatal("Expected the first attempt to outlive its deadline")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Logf("First attempt failed with %v (not a deadline error); continuing, the retry decides the test", err)
	}
	t.Logf("⏳ Abandoned after %s", time.Since(started).Round(time.Millisecond))

	retry := dial(t, ctx, baseURL)
	retryCtx, cancelRetry := context.WithTimeout(ctx, retryTimeout)
	defer cancelRetry()

	t.Logf("🔁 Retrying with identical arguments...")
	result, err := retry.MakePayment(retryCtx, req)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	return result
}

func finalState(t *testing.T, ctx context.Context, baseURL string, accountID uuid.UUID) (int64, []payonce.Transaction) {
	t.Helper()
	client := dial(t, ctx, baseURL)

	balance, err := client.GetBalance(ctx, accountID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	txs, err := client.GetTransactions(ctx, accountID)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	return balance, txs
}

func TestScenario_UnprotectedChargesTwice(t *testing.T) {
	ctx := context.Background()
	baseURL, accountID := startServer(t, false)

	req := payonce.PaymentRequest{
		AccountID:        accountID,
		IBAN:             "DE89370400440532013000",
		BIC:              "COBADEFFXXX",
		AmountMinorUnits: paymentAmount,
		Currency:         "EUR",
	}

	result := abandonedThenRetried(t, ctx, baseURL, req)
	if result.Status != payonce.StatusProcessed {
		t.Errorf("Expected the retry to report processed, got %s", result.Status)
	}

	balance, txs := finalState(t, ctx, baseURL, accountID)
	if balance != openingBalance-2*paymentAmount {
		t.Errorf("Expected balance %d after the double charge, got %d", openingBalance-2*paymentAmount, balance)
	}
	if len(txs) != 2 {
		t.Errorf("Expected 2 transactions, got %d", len(txs))
	}
	t.Logf("💰 Final balance %d with %d transactions: the server charged twice", balance, len(txs))
}

func TestScenario_ProtectedChargesOnce(t *testing.T) {
	ctx := context.Background()
	baseURL, accountID := startServer(t, true)

	req := payonce.PaymentRequest{
		AccountID:        accountID,
		IBAN:             "DE89370400440532013000",
		BIC:              "COBADEFFXXX",
		AmountMinorUnits: paymentAmount,
		Currency:         "EUR",
		IdempotencyToken: uuid.NewString(),
	}

	result := abandonedThenRetried(t, ctx, baseURL, req)
	if result.Status != payonce.StatusAlreadyProcessed {
		t.Errorf("Expected the retry to report already_processed, got %s", result.Status)
	}

	balance, txs := finalState(t, ctx, baseURL, accountID)
	if balance != openingBalance-paymentAmount {
		t.Errorf("Expected balance %d after exactly one charge, got %d", openingBalance-paymentAmount, balance)
	}
	if len(txs) != 1 {
		t.Errorf("Expected 1 transaction, got %d", len(txs))
	}
	t.Logf("💰 Final balance %d with %d transaction: the retry was deduplicated", balance, len(txs))
}

func TestScenario_HealthAndMetrics(t *testing.T) {
	ctx := context.Background()
	baseURL, accountID := startServer(t, true)

	resp, err := http.Get(baseURL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from healthz, got %d", resp.StatusCode)
	}

	client := dial(t, ctx, baseURL)
	payCtx, cancel := context.WithTimeout(ctx, retryTimeout)
	defer cancel()
	if _, err := client.MakePayment(payCtx, payonce.PaymentRequest{
		AccountID:        accountID,
		IBAN:             "DE89370400440532013000",
		BIC:              "COBADEFFXXX",
		AmountMinorUnits: paymentAmount,
		Currency:         "EUR",
		IdempotencyToken: uuid.NewString(),
	}); err != nil {
		t.Fatalf("MakePayment failed: %v", err)
	}

	metricsResp, err := http.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	if err != nil {
		t.Fatalf("failed to read metrics body: %v", err)
	}
	if !strings.Contains(string(body), "payonce_payments_total") {
		t.Error("Expected payonce_payments_total in the metrics exposition")
	}
}
