// AngelaMos | 2026
// repository.go

package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carterperez-dev/templates/imagegate/internal/core"
)

type Repository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error
	MarkPaid(ctx context.Context, id string, now time.Time) error
	IsPaid(ctx context.Context, id string) (bool, error)
	ListCredentials(ctx context.Context) ([]Account, error)
	RepairApplied(ctx context.Context, name string) (bool, error)
	RecordRepair(ctx context.Context, name string, now time.Time) error
	Stats(ctx context.Context) (Stats, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, account *Account) error {
	query := r.db.Rebind(`
		INSERT INTO accounts (id, username, password_hash, paid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Username,
		account.PasswordHash,
		account.Paid,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("create account: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create account: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Account, error) {
	query := r.db.Rebind(`
		SELECT id, username, password_hash, paid, created_at, updated_at
		FROM accounts
		WHERE id = ?`)

	var account Account
	err := r.db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get account: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	return &account, nil
}

func (r *repository) GetByUsername(
	ctx context.Context,
	username string,
) (*Account, error) {
	query := r.db.Rebind(`
		SELECT id, username, password_hash, paid, created_at, updated_at
		FROM accounts
		WHERE username = ?`)

	var account Account
	err := r.db.GetContext(ctx, &account, query, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get account by username: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account by username: %w", err)
	}

	return &account, nil
}

func (r *repository) UpdatePassword(
	ctx context.Context,
	id, passwordHash string,
	now time.Time,
) error {
	query := r.db.Rebind(`
		UPDATE accounts
		SET password_hash = ?, updated_at = ?
		WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query, passwordHash, now, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("update password: %w", core.ErrNotFound)
	}

	return nil
}

// MarkPaid only touches rows that are not yet paid, so repeating it leaves
// the account unchanged.
func (r *repository) MarkPaid(ctx context.Context, id string, now time.Time) error {
	query := r.db.Rebind(`
		UPDATE accounts
		SET paid = ?, updated_at = ?
		WHERE id = ? AND paid = ?`)

	result, err := r.db.ExecContext(ctx, query, true, now, id, false)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}

	if rows == 0 {
		if _, err := r.IsPaid(ctx, id); err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
	}

	return nil
}

func (r *repository) IsPaid(ctx context.Context, id string) (bool, error) {
	query := r.db.Rebind(`SELECT paid FROM accounts WHERE id = ?`)

	var paid bool
	err := r.db.GetContext(ctx, &paid, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("is paid: %w", core.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("is paid: %w", err)
	}

	return paid, nil
}

func (r *repository) ListCredentials(ctx context.Context) ([]Account, error) {
	query := `SELECT id, username, password_hash, paid, created_at, updated_at FROM accounts`

	var accounts []Account
	if err := r.db.SelectContext(ctx, &accounts, query); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	return accounts, nil
}

func (r *repository) RepairApplied(ctx context.Context, name string) (bool, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM store_repairs WHERE name = ?`)

	var n int
	if err := r.db.GetContext(ctx, &n, query, name); err != nil {
		return false, fmt.Errorf("check repair: %w", err)
	}

	return n > 0, nil
}

func (r *repository) RecordRepair(ctx context.Context, name string, now time.Time) error {
	query := r.db.Rebind(`INSERT INTO store_repairs (name, applied_at) VALUES (?, ?)`)

	if _, err := r.db.ExecContext(ctx, query, name, now); err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("record repair: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("record repair: %w", err)
	}

	return nil
}

func (r *repository) Stats(ctx context.Context) (Stats, error) {
	query := r.db.Rebind(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN paid = ? THEN 1 ELSE 0 END), 0) AS paid
		FROM accounts`)

	var stats Stats
	if err := r.db.GetContext(ctx, &stats, query, true); err != nil {
		return Stats{}, fmt.Errorf("account stats: %w", err)
	}

	return stats, nil
}
