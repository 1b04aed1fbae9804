package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/postsmith/postsmith/internal/models"
)

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PGStore) CategoryContext(ctx context.Context, accountID uuid.UUID, category string) (models.CategoryContext, error) {
	var out models.CategoryContext
	var keywords pq.StringArray
	err := s.db.QueryRowContext(ctx, `
		SELECT c.name, c.description, c.keywords, a.city, a.company
		FROM categories c
		JOIN accounts a ON a.id = c.account_id
		WHERE c.account_id = $1 AND c.name = $2`,
		accountID, category).Scan(&out.Name, &out.Description, &keywords, &out.City, &out.Company)
	if err == sql.ErrNoRows {
		return models.CategoryContext{}, ErrNotFound
	}
	if err != nil {
		return models.CategoryContext{}, fmt.Errorf("fetch category: %w", err)
	}
	out.Keywords = []string(keywords)

	if out.PriceRows, err = s.priceRows(ctx, accountID, category); err != nil {
		return models.CategoryContext{}, err
	}
	if out.Links, err = s.links(ctx, accountID, category); err != nil {
		return models.CategoryContext{}, err
	}
	return out, nil
}

func (s *PGStore) priceRows(ctx context.Context, accountID uuid.UUID, category string) ([]models.PriceRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item, price, COALESCE(unit, '')
		FROM price_rows
		WHERE account_id = $1 AND category = $2
		ORDER BY position`,
		accountID, category)
	if err != nil {
		return nil, fmt.Errorf("fetch price rows: %w", err)
	}
	defer rows.Close()
	var out []models.PriceRow
	for rows.Next() {
		var r models.PriceRow
		if err := rows.Scan(&r.Item, &r.Price, &r.Unit); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) links(ctx context.Context, accountID uuid.UUID, category string) (models.LinkSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tier, title, url
		FROM links
		WHERE account_id = $1 AND (category = $2 OR category IS NULL)
		ORDER BY id`,
		accountID, category)
	if err != nil {
		return models.LinkSet{}, fmt.Errorf("fetch links: %w", err)
	}
	defer rows.Close()
	var out models.LinkSet
	for rows.Next() {
		var tier string
		var l models.Link
		if err := rows.Scan(&tier, &l.Title, &l.URL); err != nil {
			return models.LinkSet{}, err
		}
		switch tier {
		case "high":
			out.High = append(out.High, l)
		case "social":
			out.Social = append(out.Social, l)
		default:
			out.Low = append(out.Low, l)
		}
	}
	return out, rows.Err()
}

func (s *PGStore) DrawReviews(ctx context.Context, accountID uuid.UUID, category string, max int) ([]models.Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author, body
		FROM reviews
		WHERE account_id = $1 AND category = $2 AND NOT used
		ORDER BY id
		LIMIT $3`,
		accountID, category, max)
	if err != nil {
		return nil, fmt.Errorf("draw reviews: %w", err)
	}
	defer rows.Close()
	var out []models.Review
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.Author, &r.Body); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) ConsumeReviews(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE reviews SET used = true WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("consume reviews: %w", err)
	}
	return nil
}
