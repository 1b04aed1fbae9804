package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PGLedger keeps balances and reservations in Postgres. The conditional
// UPDATE is the account's serialization point: concurrent reservations for
// the same account cannot double-spend.
type PGLedger struct {
	db *sql.DB
}

func NewPGLedger(db *sql.DB) *PGLedger {
	return &PGLedger{db: db}
}

func (l *PGLedger) Reserve(ctx context.Context, accountID uuid.UUID, amount int64) (Reservation, error) {
	if amount <= 0 {
		return Reservation{}, fmt.Errorf("reserve amount must be positive, got %d", amount)
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Reservation{}, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance - $2 WHERE id = $1 AND balance >= $2`,
		accountID, amount)
	if err != nil {
		return Reservation{}, fmt.Errorf("debit account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Reservation{}, err
	}
	if affected == 0 {
		return Reservation{}, ErrInsufficientFunds
	}

	r := Reservation{
		ID:        uuid.New(),
		AccountID: accountID,
		Amount:    amount,
		State:     StateReserved,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO budget_reservations (id, account_id, amount, state, created_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.AccountID, r.Amount, string(r.State), r.CreatedAt)
	if err != nil {
		return Reservation{}, fmt.Errorf("insert reservation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Reservation{}, fmt.Errorf("commit reserve tx: %w", err)
	}
	return r, nil
}

func (l *PGLedger) Commit(ctx context.Context, id uuid.UUID) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE budget_reservations SET state = $2, resolved_at = now() WHERE id = $1 AND state = $3`,
		id, string(StateCommitted), string(StateReserved))
	if err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	return l.requireResolved(ctx, id, res)
}

func (l *PGLedger) Refund(ctx context.Context, id uuid.UUID) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refund tx: %w", err)
	}
	defer tx.Rollback()

	var accountID uuid.UUID
	var amount int64
	err = tx.QueryRowContext(ctx,
		`UPDATE budget_reservations SET state = $2, resolved_at = now() WHERE id = $1 AND state = $3 RETURNING account_id, amount`,
		id, string(StateRefunded), string(StateReserved)).Scan(&accountID, &amount)
	if err == sql.ErrNoRows {
		return l.resolveConflict(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("refund reservation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $2 WHERE id = $1`,
		accountID, amount); err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refund tx: %w", err)
	}
	return nil
}

func (l *PGLedger) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("fetch balance: %w", err)
	}
	return balance, nil
}

func (l *PGLedger) requireResolved(ctx context.Context, id uuid.UUID, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return l.resolveConflict(ctx, id)
	}
	return nil
}

// resolveConflict distinguishes an unknown reservation from one that already
// reached a terminal state.
func (l *PGLedger) resolveConflict(ctx context.Context, id uuid.UUID) error {
	var state string
	err := l.db.QueryRowContext(ctx, `SELECT state FROM budget_reservations WHERE id = $1`, id).Scan(&state)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("fetch reservation state: %w", err)
	}
	return fmt.Errorf("%w: state=%s", ErrAlreadyResolved, state)
}
