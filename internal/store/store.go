// Package store persists account/category settings and the per-category
// review pool.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/postsmith/postsmith/internal/models"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	// CategoryContext loads the business context one article is generated
	// from, reviews excluded (those are drawn separately, pool-aware).
	CategoryContext(ctx context.Context, accountID uuid.UUID, category string) (models.CategoryContext, error)

	// DrawReviews previews up to max unused reviews, oldest first. Drawing
	// does not consume: removal happens only after a confirmed publish.
	DrawReviews(ctx context.Context, accountID uuid.UUID, category string, max int) ([]models.Review, error)

	// ConsumeReviews permanently removes drawn reviews from the pool.
	ConsumeReviews(ctx context.Context, ids []int64) error

	Ping(ctx context.Context) error
}
