package payonce

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Ledger is the in-memory account store: balances plus append-only
// transaction logs, keyed by account id. State is process-wide and lost on
// restart.
//
// Locking is two-level: an RWMutex guards the account map, and each account
// carries its own mutex so operations on unrelated accounts never serialize.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*account
}

type account struct {
	mu      sync.Mutex
	balance int64
	log     []Transaction
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[uuid.UUID]*account),
	}
}

// CreateAccount registers an account with an opening balance. It fails if
// the id is already taken or the opening balance is negative.
func (l *Ledger) CreateAccount(id uuid.UUID, openingBalanceMinorUnits int64) error {
	if openingBalanceMinorUnits < 0 {
		return NewPaymentError(ErrCodeInvalidArgument,
			fmt.Sprintf("opening balance must be non-negative, got %d", openingBalanceMinorUnits), nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.accounts[id]; exists {
		return NewPaymentError(ErrCodeInvalidArgument,
			fmt.Sprintf("account %s already exists", id), nil)
	}
	l.accounts[id] = &account{balance: openingBalanceMinorUnits}
	return nil
}

// Exists reports whether an account is known to the ledger.
func (l *Ledger) Exists(id uuid.UUID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.accounts[id]
	return ok
}

// lookup returns the live account entry, or an account_not_found error.
func (l *Ledger) lookup(id uuid.UUID) (*account, error) {
	l.mu.RLock()
	acc, ok := l.accounts[id]
	l.mu.RUnlock()
	if !ok {
		return nil, notFoundError(id)
	}
	return acc, nil
}

// GetBalance returns the current balance in minor units. No side effects.
func (l *Ledger) GetBalance(id uuid.UUID) (int64, error) {
	acc, err := l.lookup(id)
	if err != nil {
		return 0, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance, nil
}

// GetTransactions returns a copy of the account's transaction log in
// application order. The copy is taken under the account lock, so callers
// never observe a debit without its paired append.
func (l *Ledger) GetTransactions(id uuid.UUID) ([]Transaction, error) {
	acc, err := l.lookup(id)
	if err != nil {
		return nil, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	out := make([]Transaction, len(acc.log))
	copy(out, acc.log)
	return out, nil
}

// Debit atomically decrements the balance. It fails with insufficient_funds
// if the debit would take the balance negative; the balance invariant
// (never negative) holds at all times.
func (l *Ledger) Debit(id uuid.UUID, amountMinorUnits int64) error {
	if amountMinorUnits <= 0 {
		return NewPaymentError(ErrCodeInvalidArgument,
			fmt.Sprintf("debit amount must be positive, got %d", amountMinorUnits), nil)
	}

	acc, err := l.lookup(id)
	if err != nil {
		return err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.debitLocked(amountMinorUnits)
}

// RecordTransaction appends an entry to the account's log. It is meant to be
// paired with a preceding successful Debit; use Post when the pair must be
// atomic to concurrent readers.
func (l *Ledger) RecordTransaction(id uuid.UUID, tx Transaction) error {
	acc, err := l.lookup(id)
	if err != nil {
		return err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.log = append(acc.log, tx)
	return nil
}

// Post debits tx.AmountMinorUnits and appends tx in a single critical
// section, so no reader can observe one without the other. Returns the new
// balance.
func (l *Ledger) Post(id uuid.UUID, tx Transaction) (int64, error) {
	acc, err := l.lookup(id)
	if err != nil {
		return 0, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if err := acc.debitLocked(tx.AmountMinorUnits); err != nil {
		return 0, err
	}
	acc.log = append(acc.log, tx)
	return acc.balance, nil
}

// debitLocked decrements the balance. Must be called with the account lock
// held.
func (a *account) debitLocked(amountMinorUnits int64) error {
	if a.balance-amountMinorUnits < 0 {
		return NewPaymentError(ErrCodeInsufficientFunds,
			fmt.Sprintf("insufficient funds: balance %d cannot cover payment of %d", a.balance, amountMinorUnits),
			map[string]interface{}{
				"balanceMinorUnits": a.balance,
				"amountMinorUnits":  amountMinorUnits,
			})
	}
	a.balance -= amountMinorUnits
	return nil
}

func notFoundError(id uuid.UUID) *PaymentError {
	return NewPaymentError(ErrCodeAccountNotFound,
		fmt.Sprintf("account %s not found", id), nil)
}
