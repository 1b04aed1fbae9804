package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is an in-process Ledger used by tests and dev mode. One lock
// serializes every account; good enough for the scale it is meant for.
type MemoryLedger struct {
	mu           sync.Mutex
	balances     map[uuid.UUID]int64
	reservations map[uuid.UUID]Reservation
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:     map[uuid.UUID]int64{},
		reservations: map[uuid.UUID]Reservation{},
	}
}

// SetBalance seeds an account balance.
func (m *MemoryLedger) SetBalance(accountID uuid.UUID, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] = balance
}

func (m *MemoryLedger) Reserve(ctx context.Context, accountID uuid.UUID, amount int64) (Reservation, error) {
	if amount <= 0 {
		return Reservation{}, fmt.Errorf("reserve amount must be positive, got %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[accountID]
	if !ok {
		return Reservation{}, ErrNotFound
	}
	if balance < amount {
		return Reservation{}, ErrInsufficientFunds
	}
	m.balances[accountID] = balance - amount
	r := Reservation{
		ID:        uuid.New(),
		AccountID: accountID,
		Amount:    amount,
		State:     StateReserved,
		CreatedAt: time.Now().UTC(),
	}
	m.reservations[r.ID] = r
	return r, nil
}

func (m *MemoryLedger) Commit(ctx context.Context, id uuid.UUID) error {
	return m.resolve(id, StateCommitted, false)
}

func (m *MemoryLedger) Refund(ctx context.Context, id uuid.UUID) error {
	return m.resolve(id, StateRefunded, true)
}

func (m *MemoryLedger) resolve(id uuid.UUID, terminal State, credit bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return ErrNotFound
	}
	if r.State != StateReserved {
		return ErrAlreadyResolved
	}
	r.State = terminal
	m.reservations[id] = r
	if credit {
		m.balances[r.AccountID] += r.Amount
	}
	return nil
}

func (m *MemoryLedger) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[accountID]
	if !ok {
		return 0, ErrNotFound
	}
	return balance, nil
}
