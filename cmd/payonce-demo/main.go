// Command payonce-demo drives the timeout-and-retry scenario against both
// payment servers: a first make_payment that outlives a short client
// timeout, then an identical retry. Against the non-idempotent server the
// account is charged twice; against the idempotent one the retry is
// answered from the dedup record and the charge happens exactly once.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/payonce/payonce"
	"github.com/payonce/payonce/mcp"
)

func main() {
	unprotectedURL := flag.String("unprotected-url", "http://127.0.0.1:8000/mcp", "endpoint of the non-idempotent server")
	protectedURL := flag.String("protected-url", "http://127.0.0.1:8001/mcp", "endpoint of the idempotent server")
	account := flag.String("account", "b4d8ada9-74a1-4c64-9ba3-a1af8c8307eb", "account to pay from")
	amount := flag.Int64("amount", 2500, "payment amount in minor units")
	shortTimeout := flag.Duration("short-timeout", 2*time.Second, "first-attempt timeout, expected to expire")
	retryTimeout := flag.Duration("retry-timeout", 10*time.Second, "retry timeout, expected to suffice")
	flag.Parse()

	accountID, err := uuid.Parse(*account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid account id: %v\n", err)
		os.Exit(1)
	}

	request := payonce.PaymentRequest{
		AccountID:        accountID,
		IBAN:             "DE89370400440532013000",
		BIC:              "COBADEFFXXX",
		AmountMinorUnits: *amount,
		Currency:         "EUR",
	}

	scenarios := []scenario{
		{
			label:   "non-idempotent ⚠️",
			url:     *unprotectedURL,
			request: request,
		},
		{
			label:   "idempotent 🔐",
			url:     *protectedURL,
			request: withToken(request, uuid.NewString()),
		},
	}

	ctx := context.Background()
	for _, sc := range scenarios {
		if err := runScenario(ctx, sc, *shortTimeout, *retryTimeout); err != nil {
			fmt.Fprintf(os.Stderr, "❌ scenario against %s failed: %v\n", sc.url, err)
			os.Exit(1)
		}
	}
}

type scenario struct {
	label   string
	url     string
	request payonce.PaymentRequest
}

func withToken(req payonce.PaymentRequest, token string) payonce.PaymentRequest {
	req.IdempotencyToken = token
	return req
}

// runScenario mirrors the original demo flow: snapshot, abandoned first
// attempt, identical retry, final snapshot. Each phase uses a fresh session
// so an abandoned call cannot poison the next one.
func runScenario(ctx context.Context, sc scenario, shortTimeout, retryTimeout time.Duration) error {
	rule := strings.Repeat("=", 80)
	fmt.Printf("\n%s\n", rule)
	fmt.Printf("🚀 Demo against %s (%s)\n", sc.url, sc.label)
	fmt.Printf("%s\n\n", rule)

	// Initial snapshot
	if err := withSession(ctx, sc.url, func(client *mcp.Client) error {
		balance, err := client.GetBalance(ctx, sc.request.AccountID)
		if err != nil {
			return err
		}
		printResult("💰", "Initial balance", mcp.BalanceResult{BalanceMinorUnits: balance})
		return nil
	}); err != nil {
		return err
	}

	// First attempt, expected to outlive its deadline while the server
	// finishes the work
	fmt.Println("⏱️  Calling make_payment (first attempt, expect timeout)...")
	if err := withSession(ctx, sc.url, func(client *mcp.Client) error {
		callCtx, cancel := context.WithTimeout(ctx, shortTimeout)
		defer cancel()

		result, err := client.MakePayment(callCtx, sc.request)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				fmt.Println("⏳ First make_payment timed out client-side; the server keeps working.")
				return nil
			}
			var pe *payonce.PaymentError
			if errors.As(err, &pe) {
				return fmt.Errorf("first attempt rejected: %w", pe)
			}
			fmt.Printf("⏳ First make_payment had a transport issue: %v\n", err)
			return nil
		}

		fmt.Println("⚠️  First call returned before timeout.")
		printResult("🧾", "First make_payment result", result)
		return nil
	}); err != nil {
		return err
	}

	// Identical retry
	fmt.Println("🔁 Retrying make_payment with same arguments...")
	if err := withSession(ctx, sc.url, func(client *mcp.Client) error {
		callCtx, cancel := context.WithTimeout(ctx, retryTimeout)
		defer cancel()

		result, err := client.MakePayment(callCtx, sc.request)
		if err != nil {
			return fmt.Errorf("retry failed: %w", err)
		}
		printResult("🧾", "Second make_payment result", result)
		return nil
	}); err != nil {
		return err
	}

	// Final snapshot
	fmt.Println("📊 Getting final state...")
	return withSession(ctx, sc.url, func(client *mcp.Client) error {
		balance, err := client.GetBalance(ctx, sc.request.AccountID)
		if err != nil {
			return err
		}
		txs, err := client.GetTransactions(ctx, sc.request.AccountID)
		if err != nil {
			return err
		}

		printResult("💰", "Final balance", mcp.BalanceResult{BalanceMinorUnits: balance})
		printResult("📜", "Final transactions", mcp.TransactionsResult{Transactions: txs})
		return nil
	})
}

// withSession dials, runs fn and closes the session.
func withSession(ctx context.Context, url string, fn func(*mcp.Client) error) error {
	client, err := mcp.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer client.Close()
	return fn(client)
}

func printResult(emoji, label string, payload interface{}) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Printf("%s %s: ✅ %v\n", emoji, label, payload)
		return
	}
	fmt.Printf("%s %s: ✅\n%s\n", emoji, label, data)
}
