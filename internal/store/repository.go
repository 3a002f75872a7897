/**
 * @description
 * This file implements the credit ledger data access layer for the credits-service.
 * It contains the SQL for reading, lazily creating and mutating the per-period
 * `usage` rows. Every mutation is a single statement so that concurrent debits
 * and webhook-driven limit overwrites never lose each other's updates.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildbuddy/credits-service/internal/domain"
)

var (
	ErrUsageNotFound       = errors.New("usage record not found")
	ErrCreditLimitExceeded = errors.New("debit would exceed credit limit")
)

// Repository handles database operations for the credit ledger and projects.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const usageColumns = `id, user_id, credits_used, credits_limit, period_start, period_end, created_at, updated_at`

func scanUsage(row pgx.Row) (*domain.UsageRecord, error) {
	var u domain.UsageRecord
	err := row.Scan(
		&u.ID,
		&u.UserID,
		&u.CreditsUsed,
		&u.CreditsLimit,
		&u.PeriodStart,
		&u.PeriodEnd,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUsageForPeriod retrieves the usage record of a user for the period starting at periodStart.
func (r *Repository) FindUsageForPeriod(ctx context.Context, userID string, periodStart time.Time) (*domain.UsageRecord, error) {
	query := `
        SELECT ` + usageColumns + `
        FROM usage
        WHERE user_id = $1 AND period_start = $2
    `
	u, err := scanUsage(r.db.QueryRow(ctx, query, userID, periodStart))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUsageNotFound
		}
		return nil, err
	}
	return u, nil
}

// CreateUsage inserts the period record for a user, creating the user row first if needed.
// When another request created the same period concurrently, the existing row is returned.
func (r *Repository) CreateUsage(ctx context.Context, usage *domain.UsageRecord) (*domain.UsageRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create usage: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensureUser(ctx, tx, usage.UserID); err != nil {
		return nil, err
	}

	id := usage.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
        INSERT INTO usage (id, user_id, credits_used, credits_limit, period_start, period_end)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id, period_start) DO UPDATE SET
            user_id = EXCLUDED.user_id
        RETURNING ` + usageColumns
	created, err := scanUsage(tx.QueryRow(ctx, query,
		id,
		usage.UserID,
		usage.CreditsUsed,
		usage.CreditsLimit,
		usage.PeriodStart,
		usage.PeriodEnd,
	))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create usage: %w", err)
	}
	return created, nil
}

// IncrementCreditsUsed atomically adds cost to credits_used, but only while the result stays
// within credits_limit. ErrCreditLimitExceeded is returned when the guard rejects the debit.
func (r *Repository) IncrementCreditsUsed(ctx context.Context, usageID string, cost int) (*domain.UsageRecord, error) {
	query := `
        UPDATE usage
        SET credits_used = credits_used + $2, updated_at = NOW()
        WHERE id = $1 AND credits_used + $2 <= credits_limit
        RETURNING ` + usageColumns
	u, err := scanUsage(r.db.QueryRow(ctx, query, usageID, cost))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCreditLimitExceeded
		}
		return nil, err
	}
	return u, nil
}

// UpdateCreditsLimit overwrites the credit limit of a usage record.
func (r *Repository) UpdateCreditsLimit(ctx context.Context, usageID string, limit int) (*domain.UsageRecord, error) {
	query := `
        UPDATE usage
        SET credits_limit = $2, updated_at = NOW()
        WHERE id = $1
        RETURNING ` + usageColumns
	u, err := scanUsage(r.db.QueryRow(ctx, query, usageID, limit))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUsageNotFound
		}
		return nil, err
	}
	return u, nil
}

func ensureUser(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO users (id)
        VALUES ($1)
        ON CONFLICT (id) DO NOTHING
    `, userID)
	if err != nil {
		return fmt.Errorf("ensure user %s: %w", userID, err)
	}
	return nil
}
