// AngelaMos | 2026
// repository.go

package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carterperez-dev/templates/imagegate/internal/core"
)

type Repository interface {
	Insert(ctx context.Context, attempt *Attempt) error
	GetByReferenceHash(ctx context.Context, hash string) (*Attempt, error)
	GetPending(ctx context.Context, accountID string) (*Attempt, error)
	Transition(ctx context.Context, id, to string, now time.Time) (bool, error)
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]Attempt, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const attemptColumns = `id, account_id, reference_hash, provider_session_id, status,
		       redirect_url, amount_cents, currency, created_at, updated_at, completed_at`

func (r *repository) Insert(ctx context.Context, attempt *Attempt) error {
	query := r.db.Rebind(`
		INSERT INTO checkout_attempts (
			id, account_id, reference_hash, provider_session_id, status,
			redirect_url, amount_cents, currency, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.AccountID,
		attempt.ReferenceHash,
		attempt.ProviderSessionID,
		attempt.Status,
		attempt.RedirectURL,
		attempt.AmountCents,
		attempt.Currency,
		attempt.CreatedAt,
		attempt.UpdatedAt,
	)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert checkout attempt: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("insert checkout attempt: %w", err)
	}

	return nil
}

func (r *repository) GetByReferenceHash(
	ctx context.Context,
	hash string,
) (*Attempt, error) {
	query := r.db.Rebind(`
		SELECT ` + attemptColumns + `
		FROM checkout_attempts
		WHERE reference_hash = ?`)

	var attempt Attempt
	err := r.db.GetContext(ctx, &attempt, query, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get checkout attempt: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get checkout attempt: %w", err)
	}

	return &attempt, nil
}

func (r *repository) GetPending(
	ctx context.Context,
	accountID string,
) (*Attempt, error) {
	query := r.db.Rebind(`
		SELECT ` + attemptColumns + `
		FROM checkout_attempts
		WHERE account_id = ? AND status = ?`)

	var attempt Attempt
	err := r.db.GetContext(ctx, &attempt, query, accountID, StatusCreated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get pending checkout: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pending checkout: %w", err)
	}

	return &attempt, nil
}

// Transition moves a created attempt to a terminal status. It reports
// false when the attempt was no longer created.
func (r *repository) Transition(
	ctx context.Context,
	id, to string,
	now time.Time,
) (bool, error) {
	query := r.db.Rebind(`
		UPDATE checkout_attempts
		SET status = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status = ?`)

	result, err := r.db.ExecContext(ctx, query, to, now, now, id, StatusCreated)
	if err != nil {
		return false, fmt.Errorf("transition checkout attempt: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition checkout attempt: %w", err)
	}

	return rows == 1, nil
}

func (r *repository) ListCreatedBefore(
	ctx context.Context,
	cutoff time.Time,
) ([]Attempt, error) {
	query := r.db.Rebind(`
		SELECT ` + attemptColumns + `
		FROM checkout_attempts
		WHERE status = ? AND created_at < ?
		ORDER BY created_at`)

	attempts := []Attempt{}
	if err := r.db.SelectContext(ctx, &attempts, query, StatusCreated, cutoff); err != nil {
		return nil, fmt.Errorf("list stale checkout attempts: %w", err)
	}

	return attempts, nil
}

func (r *repository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	query := `
		SELECT status, COUNT(*) AS count
		FROM checkout_attempts
		GROUP BY status
		ORDER BY status`

	counts := []StatusCount{}
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count checkout attempts: %w", err)
	}

	return counts, nil
}
