// AngelaMos | 2026
// service.go

package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/templates/imagegate/internal/core"
)

type Service struct {
	db   *sqlx.DB
	repo Repository
	now  func() time.Time
}

func NewService(db *sqlx.DB) *Service {
	return &Service{
		db:   db,
		repo: NewRepository(db),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Admit decides whether an account with the given paid flag and usage
// count may record one more use.
type Admit func(paid bool, used int) error

// Append records one feature use. Timestamps never go backwards for an
// account even if the wall clock does.
func (s *Service) Append(
	ctx context.Context,
	accountID, query, artifactRef string,
) (*Record, error) {
	return s.AppendAdmitted(ctx, accountID, query, artifactRef, nil)
}

// AppendAdmitted is Append guarded by admit. The account row is locked
// and its state re-read in the inserting transaction, so appends for one
// account are serialised across processes sharing the database.
func (s *Service) AppendAdmitted(
	ctx context.Context,
	accountID, query, artifactRef string,
	admit Admit,
) (*Record, error) {
	if accountID == "" {
		return nil, fmt.Errorf("append usage: %w", core.ErrInvalidInput)
	}

	record := &Record{
		AccountID:   accountID,
		Query:       query,
		ArtifactRef: artifactRef,
	}

	err := core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)

		if admit != nil {
			paid, err := repo.LockAccount(ctx, accountID)
			if err != nil {
				return err
			}
			used, err := repo.Count(ctx, accountID)
			if err != nil {
				return err
			}
			if err := admit(paid, used); err != nil {
				return err
			}
		}

		last, err := repo.LastCreatedAt(ctx, accountID)
		if err != nil {
			return err
		}

		record.CreatedAt = s.now()
		if record.CreatedAt.Before(last) {
			record.CreatedAt = last
		}

		return repo.Insert(ctx, record)
	})
	if err != nil {
		return nil, fmt.Errorf("append usage: %w", err)
	}

	return record, nil
}

func (s *Service) CountFor(ctx context.Context, accountID string) (int, error) {
	return s.repo.Count(ctx, accountID)
}

// ListFor returns the account's records, most recent first.
func (s *Service) ListFor(ctx context.Context, accountID string) ([]Record, error) {
	return s.repo.List(ctx, accountID)
}

// Delete removes one record owned by accountID and returns it. Records
// owned by another account report core.ErrNotFound.
func (s *Service) Delete(
	ctx context.Context,
	accountID string,
	recordID int64,
) (*Record, error) {
	var record *Record

	err := core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)

		var err error
		record, err = repo.Get(ctx, accountID, recordID)
		if err != nil {
			return err
		}

		return repo.Delete(ctx, accountID, recordID)
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (s *Service) Total(ctx context.Context) (int, error) {
	return s.repo.Total(ctx)
}
