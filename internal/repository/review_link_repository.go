package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/instrolab/lims-portal-api/internal/models"
)

// ReviewLinkRepository persists issued customer review links.
type ReviewLinkRepository struct {
	db *sqlx.DB
}

// NewReviewLinkRepository constructs the repository.
func NewReviewLinkRepository(db *sqlx.DB) *ReviewLinkRepository {
	return &ReviewLinkRepository{db: db}
}

// Insert stores a freshly issued link.
func (r *ReviewLinkRepository) Insert(ctx context.Context, link *models.ReviewLink) error {
	const query = `INSERT INTO review_links (id, record_id, customer_id, access_code_hash, issued_by, expires_at, created_at, first_used_at, revoked)
VALUES (:id, :record_id, :customer_id, :access_code_hash, :issued_by, :expires_at, :created_at, :first_used_at, :revoked)`
	if _, err := r.db.NamedExecContext(ctx, query, link); err != nil {
		return fmt.Errorf("insert review link: %w", err)
	}
	return nil
}

// Get fetches a link by id. The raw error is returned so callers can
// map sql.ErrNoRows themselves.
func (r *ReviewLinkRepository) Get(ctx context.Context, id string) (*models.ReviewLink, error) {
	const query = `SELECT id, record_id, customer_id, access_code_hash, issued_by, expires_at, created_at, first_used_at, revoked
FROM review_links WHERE id = $1`
	var link models.ReviewLink
	if err := r.db.GetContext(ctx, &link, query, id); err != nil {
		return nil, err
	}
	return &link, nil
}

// MarkFirstUsed stamps the first successful unlock; later unlocks keep
// the original timestamp.
func (r *ReviewLinkRepository) MarkFirstUsed(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE review_links SET first_used_at = $2 WHERE id = $1 AND first_used_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark review link used: %w", err)
	}
	return nil
}

// RevokeByRecord invalidates every link issued for a record, used when a
// newer link supersedes the old ones.
func (r *ReviewLinkRepository) RevokeByRecord(ctx context.Context, recordID string) error {
	const query = `UPDATE review_links SET revoked = TRUE WHERE record_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, recordID); err != nil {
		return fmt.Errorf("revoke review links: %w", err)
	}
	return nil
}

// ListByRecord returns the links issued for a record, newest first.
func (r *ReviewLinkRepository) ListByRecord(ctx context.Context, recordID string) ([]models.ReviewLink, error) {
	const query = `SELECT id, record_id, customer_id, access_code_hash, issued_by, expires_at, created_at, first_used_at, revoked
FROM review_links WHERE record_id = $1 ORDER BY created_at DESC`
	var links []models.ReviewLink
	if err := r.db.SelectContext(ctx, &links, query, recordID); err != nil {
		return nil, fmt.Errorf("list review links: %w", err)
	}
	return links, nil
}
