package payonce

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Service is the unprotected payment processor: every accepted call debits
// the account and appends a transaction, with no deduplication. A client
// that times out and retries an identical request will be charged twice.
// Wrap it with idempotency.Wrap for the protected variant.
type Service struct {
	ledger *Ledger
	pacer  *Pacer
	log    *logrus.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPacer sets the simulated-latency pacer. Defaults to a 5s alternating
// pacer.
func WithPacer(p *Pacer) ServiceOption {
	return func(s *Service) {
		s.pacer = p
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log *logrus.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// NewService creates a payment processor over the given ledger.
func NewService(ledger *Ledger, opts ...ServiceOption) *Service {
	s := &Service{
		ledger: ledger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pacer == nil {
		s.pacer = NewPacer(DefaultSimulatedDelay)
	}
	if s.log == nil {
		s.log = logrus.New()
		s.log.SetOutput(io.Discard)
	}
	return s
}

// Validate checks the business arguments: the account must exist, the amount
// must be positive and the counterparty/currency fields non-empty. The
// account check runs first so an unknown account wins over any other
// complaint.
func (s *Service) Validate(req PaymentRequest) error {
	if req.AccountID == uuid.Nil {
		return NewPaymentError(ErrCodeInvalidArgument, "accountId is required", nil)
	}
	if !s.ledger.Exists(req.AccountID) {
		return notFoundError(req.AccountID)
	}
	if req.AmountMinorUnits <= 0 {
		return NewPaymentError(ErrCodeInvalidArgument, "amountMinorUnits must be positive", nil)
	}
	if strings.TrimSpace(req.IBAN) == "" {
		return NewPaymentError(ErrCodeInvalidArgument, "iban is required", nil)
	}
	if strings.TrimSpace(req.BIC) == "" {
		return NewPaymentError(ErrCodeInvalidArgument, "bic is required", nil)
	}
	if strings.TrimSpace(req.Currency) == "" {
		return NewPaymentError(ErrCodeInvalidArgument, "currency is required", nil)
	}
	return nil
}

// MakePayment validates, debits and appends in one atomic posting, then
// paces. The mutation commits before any wait, so a client that abandons the
// call mid-delay has still been charged; ctx is accepted for interface
// compatibility and deliberately not consulted.
func (s *Service) MakePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	tx := Transaction{
		IBAN:             req.IBAN,
		BIC:              req.BIC,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         req.Currency,
	}

	newBalance, err := s.ledger.Post(req.AccountID, tx)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"accountId":         req.AccountID.String(),
		"amountMinorUnits":  req.AmountMinorUnits,
		"currency":          req.Currency,
		"balanceMinorUnits": newBalance,
	}).Info("payment applied")

	if waited := s.pacer.Pace(); waited > 0 {
		s.log.WithField("delay", waited.String()).Debug("simulated processing delay injected")
	}

	return &PaymentResult{
		Status:  StatusProcessed,
		Message: "Payment applied. This server is intentionally non-idempotent and will charge twice on retry.",
	}, nil
}

// Ensure Service implements Processor
var _ Processor = (*Service)(nil)
