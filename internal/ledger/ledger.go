// Package ledger meters a per-account compute budget. A reservation is opened
// before any external call and resolved to exactly one of Committed or
// Refunded; the balance is never charged without a usable outcome.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyResolved   = errors.New("reservation already resolved")
)

type State string

const (
	StateReserved  State = "reserved"
	StateCommitted State = "committed"
	StateRefunded  State = "refunded"
)

// Reservation is a held claim against an account's balance.
type Reservation struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"accountId"`
	Amount    int64     `json:"amount"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

type Ledger interface {
	// Reserve conditionally decrements the account balance. It returns
	// ErrInsufficientFunds without any debit when the balance is short.
	Reserve(ctx context.Context, accountID uuid.UUID, amount int64) (Reservation, error)

	// Commit finalizes a reservation. The debit stands.
	Commit(ctx context.Context, id uuid.UUID) error

	// Refund restores exactly the reserved amount to the account.
	Refund(ctx context.Context, id uuid.UUID) error

	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// Cost computes the fixed charge for a run: text is billed per started block
// of 100 words with a floor of 10 credits, images at 30 credits each with one
// extra for the mandatory cover. Negative counts are treated as zero so a
// malformed style can never price a run below the minimum charge.
func Cost(wordCount, imageCount int) int64 {
	if wordCount < 0 {
		wordCount = 0
	}
	if imageCount < 0 {
		imageCount = 0
	}
	textCost := int64(wordCount/100) * 10
	if textCost < 10 {
		textCost = 10
	}
	imageCost := int64(imageCount+1) * 30
	return textCost + imageCost
}
