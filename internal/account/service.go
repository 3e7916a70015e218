// AngelaMos | 2026
// service.go

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/templates/imagegate/internal/core"
)

type Service struct {
	db     *sqlx.DB
	repo   Repository
	logger *slog.Logger
	now    func() time.Time

	// guards password_hash values while the legacy repair pass rewrites them
	credMu sync.RWMutex
}

func NewService(db *sqlx.DB, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		repo:   NewRepository(db),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

func (s *Service) Signup(
	ctx context.Context,
	username, password string,
) (*Account, error) {
	username = NormalizeUsername(username)

	if username == "" || password == "" {
		return nil, fmt.Errorf(
			"signup: username and password are required: %w",
			core.ErrInvalidInput,
		)
	}
	if utf8.RuneCountInString(username) > maxUsernameLength ||
		len(password) > maxPasswordLength {
		return nil, fmt.Errorf("signup: field too long: %w", core.ErrInvalidInput)
	}

	passwordHash, err := core.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	account := &Account{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	return account, nil
}

func (s *Service) Verify(
	ctx context.Context,
	username, password string,
) (*Account, error) {
	s.credMu.RLock()
	defer s.credMu.RUnlock()

	account, err := s.repo.GetByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // timing attack prevention - always verify to prevent enumeration
			_, _, _ = core.VerifyPasswordTimingSafe(password, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	valid, newHash, err := core.VerifyPasswordTimingSafe(
		password,
		&account.PasswordHash,
	)
	if err != nil {
		s.logger.Warn("stored password has unknown format",
			"account_id", account.ID,
			"error", err,
		)
		return nil, ErrInvalidCredentials
	}

	if !valid {
		return nil, ErrInvalidCredentials
	}

	if newHash != "" {
		if err := s.repo.UpdatePassword(ctx, account.ID, newHash, s.now()); err != nil {
			s.logger.Warn("password rehash failed",
				"account_id", account.ID,
				"error", err,
			)
		} else {
			account.PasswordHash = newHash
		}
	}

	return account, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) IsPaid(ctx context.Context, id string) (bool, error) {
	return s.repo.IsPaid(ctx, id)
}

func (s *Service) MarkPaid(ctx context.Context, id string) error {
	return s.repo.MarkPaid(ctx, id, s.now())
}

// MarkPaidTx sets the paid flag as part of a caller owned transaction.
func (s *Service) MarkPaidTx(ctx context.Context, tx core.DBTX, id string) error {
	return NewRepository(tx).MarkPaid(ctx, id, s.now())
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

// RepairLegacyPasswords rehashes stored values that are neither argon2id
// encodings nor legacy sha256 digests. Those are plaintext left over from
// the old credential file. The pass runs once per database.
func (s *Service) RepairLegacyPasswords(ctx context.Context) (int, error) {
	s.credMu.Lock()
	defer s.credMu.Unlock()

	repaired := 0

	err := core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)

		applied, err := repo.RepairApplied(ctx, legacyPasswordRepair)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}

		accounts, err := repo.ListCredentials(ctx)
		if err != nil {
			return err
		}

		now := s.now()
		for _, a := range accounts {
			if core.IsArgonHash(a.PasswordHash) || core.IsLegacyDigest(a.PasswordHash) {
				continue
			}

			hash, err := core.HashPassword(a.PasswordHash)
			if err != nil {
				return fmt.Errorf("hash legacy password: %w", err)
			}
			if err := repo.UpdatePassword(ctx, a.ID, hash, now); err != nil {
				return err
			}
			repaired++
		}

		return repo.RecordRepair(ctx, legacyPasswordRepair, now)
	})
	if errors.Is(err, core.ErrDuplicateKey) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("repair legacy passwords: %w", err)
	}

	if repaired > 0 {
		s.logger.Info("legacy passwords repaired", "count", repaired)
	}

	return repaired, nil
}
