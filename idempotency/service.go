package idempotency

import (
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/payonce/payonce"
)

// Service wraps a payment processor with idempotency-token deduplication.
//
// It intercepts MakePayment calls to check the token store before letting
// the wrapped processor debit the account. This prevents duplicate charges
// when clients retry after a timeout: the first request with a token applies
// the payment exactly once, and every later request with the same token
// returns an already-processed response without touching the ledger.
type Service struct {
	inner payonce.Processor
	store Store
	log   *logrus.Logger
}

// Wrap creates an idempotent Service around the given processor.
//
// Default configuration:
//   - InMemoryStore keeping processed tokens for the process lifetime
//   - Discarding logger
//
// Use functional options to customize:
//
//	protected := idempotency.Wrap(svc,
//	    idempotency.WithTTL(24 * time.Hour),
//	)
//
//	// Or with a shared backend
//	protected := idempotency.Wrap(svc,
//	    idempotency.WithStore(idempotency.NewRedisStore(client, 0)),
//	)
func Wrap(inner payonce.Processor, opts ...Option) *Service {
	cfg := &config{}

	for _, opt := range opts {
		opt(cfg)
	}

	store := cfg.store
	if store == nil {
		store = NewInMemoryStore(cfg.ttl)
	}

	log := cfg.log
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	return &Service{
		inner: inner,
		store: store,
		log:   log,
	}
}

// Validate runs the wrapped processor's validation first, then requires a
// non-empty idempotency token. Account and argument complaints therefore win
// over a missing token.
func (s *Service) Validate(req payonce.PaymentRequest) error {
	if err := s.inner.Validate(req); err != nil {
		return err
	}
	if strings.TrimSpace(req.IdempotencyToken) == "" {
		return payonce.NewPaymentError(
			payonce.ErrCodeMissingIdempotencyToken,
			"Missing required _meta.io.modelcontextprotocol/idempotency-key for idempotent operation.",
			nil,
		)
	}
	return nil
}

// MakePayment applies a payment with idempotency protection.
//
// Before delegating to the wrapped processor, it:
//  1. Atomically checks the token store and claims the token if unknown
//  2. Returns an already-processed response if a completed payment holds it
//  3. Waits if another request is currently applying the same token
//  4. Marks the token processed once the payment commits
//
// Failed payments release the claim without marking the token, so a
// legitimate retry after an error (say, insufficient funds that were since
// topped up) can succeed.
func (s *Service) MakePayment(ctx context.Context, req payonce.PaymentRequest) (*payonce.PaymentResult, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	token := req.IdempotencyToken

	for {
		status, done, err := s.store.CheckAndMark(ctx, token)
		if err != nil {
			return nil, err
		}

		if status == StatusProcessed {
			s.log.WithFields(logrus.Fields{
				"accountId":        req.AccountID.String(),
				"idempotencyToken": token,
			}).Info("duplicate payment suppressed")
			return &payonce.PaymentResult{
				Status:  payonce.StatusAlreadyProcessed,
				Message: "Request with this idempotency key has already been processed.",
			}, nil
		}

		if status == StatusInFlight {
			// Wait for the claim owner to resolve the token, respecting
			// context cancellation, then check again: the owner may have
			// completed or failed.
			if err := s.store.Wait(ctx, token, done); err != nil {
				return nil, err
			}
			continue
		}

		// This request owns the claim, proceed with the payment
		break
	}

	_, err := s.inner.MakePayment(ctx, req)

	// The claim must be resolved even when the client has abandoned the
	// request, so releases run on a context that survives cancellation.
	releaseCtx := context.WithoutCancel(ctx)

	if err != nil {
		if failErr := s.store.Fail(releaseCtx, token); failErr != nil {
			s.log.WithError(failErr).WithField("idempotencyToken", token).
				Warn("failed to release idempotency claim")
		}
		return nil, err
	}

	if completeErr := s.store.Complete(releaseCtx, token); completeErr != nil {
		// The debit is already on the books; surfacing an error now would
		// invite a retry and a double charge. Log it and return the result.
		s.log.WithError(completeErr).WithField("idempotencyToken", token).
			Error("failed to record processed idempotency token")
	}

	s.log.WithFields(logrus.Fields{
		"accountId":        req.AccountID.String(),
		"idempotencyToken": token,
	}).Debug("idempotency token recorded")

	return &payonce.PaymentResult{
		Status:  payonce.StatusProcessed,
		Message: "Payment applied once with idempotency protection.",
	}, nil
}

// Inner returns the wrapped processor for direct access.
func (s *Service) Inner() payonce.Processor {
	return s.inner
}

// Ensure Service implements Processor
var _ payonce.Processor = (*Service)(nil)
