// AngelaMos | 2026
// repository.go

package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carterperez-dev/templates/imagegate/internal/core"
)

type Repository interface {
	Insert(ctx context.Context, record *Record) error
	LastCreatedAt(ctx context.Context, accountID string) (time.Time, error)
	Count(ctx context.Context, accountID string) (int, error)
	LockAccount(ctx context.Context, accountID string) (bool, error)
	List(ctx context.Context, accountID string) ([]Record, error)
	Get(ctx context.Context, accountID string, id int64) (*Record, error)
	Delete(ctx context.Context, accountID string, id int64) error
	Total(ctx context.Context) (int, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, record *Record) error {
	query := r.db.Rebind(`
		INSERT INTO usage_records (account_id, query, artifact_ref, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`)

	err := r.db.GetContext(ctx, &record.ID, query,
		record.AccountID,
		record.Query,
		record.ArtifactRef,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}

	return nil
}

// LastCreatedAt returns the newest timestamp for the account, or the zero
// time when it has no records.
func (r *repository) LastCreatedAt(
	ctx context.Context,
	accountID string,
) (time.Time, error) {
	query := r.db.Rebind(`
		SELECT created_at FROM usage_records
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`)

	var last time.Time
	err := r.db.GetContext(ctx, &last, query, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last usage timestamp: %w", err)
	}

	return last, nil
}

func (r *repository) Count(ctx context.Context, accountID string) (int, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM usage_records WHERE account_id = ?`)

	var n int
	if err := r.db.GetContext(ctx, &n, query, accountID); err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}

	return n, nil
}

// LockAccount reads the account's paid flag. On Postgres the row stays
// locked until the surrounding transaction ends; SQLite has a single
// writer and needs no row lock.
func (r *repository) LockAccount(ctx context.Context, accountID string) (bool, error) {
	query := `SELECT paid FROM accounts WHERE id = ?`
	if r.db.DriverName() == core.DriverPostgres {
		query += ` FOR UPDATE`
	}

	var paid bool
	err := r.db.GetContext(ctx, &paid, r.db.Rebind(query), accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("lock account: %w", core.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("lock account: %w", err)
	}

	return paid, nil
}

func (r *repository) List(ctx context.Context, accountID string) ([]Record, error) {
	query := r.db.Rebind(`
		SELECT id, account_id, query, artifact_ref, created_at
		FROM usage_records
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC`)

	records := []Record{}
	if err := r.db.SelectContext(ctx, &records, query, accountID); err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}

	return records, nil
}

func (r *repository) Get(
	ctx context.Context,
	accountID string,
	id int64,
) (*Record, error) {
	query := r.db.Rebind(`
		SELECT id, account_id, query, artifact_ref, created_at
		FROM usage_records
		WHERE id = ? AND account_id = ?`)

	var record Record
	err := r.db.GetContext(ctx, &record, query, id, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get usage record: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get usage record: %w", err)
	}

	return &record, nil
}

func (r *repository) Delete(ctx context.Context, accountID string, id int64) error {
	query := r.db.Rebind(`DELETE FROM usage_records WHERE id = ? AND account_id = ?`)

	result, err := r.db.ExecContext(ctx, query, id, accountID)
	if err != nil {
		return fmt.Errorf("delete usage record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete usage record: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("delete usage record: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) Total(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM usage_records`); err != nil {
		return 0, fmt.Errorf("total usage: %w", err)
	}

	return n, nil
}
