package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// RecipientRepositoryInterface claims and releases campaign recipients.
type RecipientRepositoryInterface interface {
	// ClaimNext marks one claimable recipient as contacted and returns it,
	// or returns nil when none is left.
	ClaimNext(ctx context.Context) (*model.Recipient, error)
	// Release clears the contacted marker. Releasing an unclaimed recipient is a no-op.
	Release(ctx context.Context, id int64) error
}

type RecipientRepository struct {
	DB       *sql.DB
	Audience string
	Now      func() time.Time
}

func (r *RecipientRepository) ClaimNext(ctx context.Context) (*model.Recipient, error) {
	// SKIP LOCKED keeps concurrent runs from waiting on (or picking) the same row.
	query := `
        UPDATE recipients
        SET last_contacted_at = $1
        WHERE id = (
            SELECT id FROM recipients
            WHERE verified AND notifications_enabled AND NOT blacklisted
              AND audience = $2 AND last_contacted_at IS NULL
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        AND last_contacted_at IS NULL
        RETURNING id, email, first_name, verified, notifications_enabled, blacklisted, audience, last_contacted_at
    `
	var (
		rec       model.Recipient
		email     sql.NullString
		contacted sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, r.now(), r.Audience).Scan(
		&rec.ID, &email, &rec.FirstName, &rec.Verified, &rec.NotificationsEnabled,
		&rec.Blacklisted, &rec.Audience, &contacted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim recipient: %w", err)
	}
	rec.Email = email.String
	if contacted.Valid {
		t := contacted.Time
		rec.LastContactedAt = &t
	}
	return &rec, nil
}

func (r *RecipientRepository) Release(ctx context.Context, id int64) error {
	query := `UPDATE recipients SET last_contacted_at = NULL WHERE id = $1`
	if _, err := r.DB.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("release recipient %d: %w", id, err)
	}
	return nil
}

func (r *RecipientRepository) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
