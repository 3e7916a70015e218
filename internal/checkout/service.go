// AngelaMos | 2026
// service.go

package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/templates/imagegate/internal/config"
	"github.com/carterperez-dev/templates/imagegate/internal/core"
)

// AccountLedger is the slice of the credential store the state machine
// needs. MarkPaidTx must join the caller's transaction.
type AccountLedger interface {
	IsPaid(ctx context.Context, accountID string) (bool, error)
	MarkPaidTx(ctx context.Context, tx core.DBTX, accountID string) error
}

type Settings struct {
	AmountCents   int64
	Currency      string
	ProductName   string
	PublicBaseURL string
	Timeout       time.Duration
}

func SettingsFromConfig(cfg config.PaymentConfig) Settings {
	return Settings{
		AmountCents:   cfg.AmountCents,
		Currency:      cfg.Currency,
		ProductName:   cfg.ProductName,
		PublicBaseURL: cfg.PublicBaseURL,
		Timeout:       cfg.Timeout,
	}
}

type Service struct {
	db       *sqlx.DB
	repo     Repository
	accounts AccountLedger
	provider Provider
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(
	db *sqlx.DB,
	accounts AccountLedger,
	provider Provider,
	settings Settings,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:       db,
		repo:     NewRepository(db),
		accounts: accounts,
		provider: provider,
		settings: settings,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func NewReference() (string, error) {
	token, err := core.GenerateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("generate reference: %w", err)
	}
	return referencePrefix + token, nil
}

// Start opens a new attempt for accountID. Any unpaid account may upgrade,
// whether or not it has used up its free quota. Callers serialise Start
// per account; the partial unique index on pending attempts backs that up.
func (s *Service) Start(ctx context.Context, accountID string) (*Started, error) {
	paid, err := s.accounts.IsPaid(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("start checkout: %w", err)
	}
	if paid {
		return nil, ErrAlreadyPaid
	}

	if _, err := s.repo.GetPending(ctx, accountID); err == nil {
		return nil, ErrAttemptAlreadyPending
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("start checkout: %w", err)
	}

	reference, err := NewReference()
	if err != nil {
		return nil, err
	}

	session, err := s.createProviderSession(ctx, reference)
	if err != nil {
		return nil, err
	}

	now := s.now()
	attempt := &Attempt{
		ID:                uuid.New().String(),
		AccountID:         accountID,
		ReferenceHash:     core.HashToken(reference),
		ProviderSessionID: session.ID,
		Status:            StatusCreated,
		RedirectURL:       session.URL,
		AmountCents:       s.settings.AmountCents,
		Currency:          s.settings.Currency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Insert(ctx, attempt); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, ErrAttemptAlreadyPending
		}
		return nil, fmt.Errorf("start checkout: %w", err)
	}

	core.CheckoutTransitionsTotal.WithLabelValues(StatusCreated).Inc()

	return &Started{
		AttemptID:   attempt.ID,
		Reference:   reference,
		RedirectURL: session.URL,
	}, nil
}

func (s *Service) createProviderSession(
	ctx context.Context,
	reference string,
) (*ProviderSession, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()

	base := strings.TrimRight(s.settings.PublicBaseURL, "/")
	ref := url.QueryEscape(reference)

	session, err := s.provider.CreateSession(callCtx, SessionRequest{
		Reference:   reference,
		AmountCents: s.settings.AmountCents,
		Currency:    s.settings.Currency,
		ProductName: s.settings.ProductName,
		SuccessURL:  base + "/v1/billing/success?ref=" + ref,
		CancelURL:   base + "/v1/billing/cancel?ref=" + ref,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment session: %w: %w", core.ErrUpstream, err)
	}
	if session == nil || session.URL == "" {
		return nil, fmt.Errorf("create payment session: empty redirect: %w", core.ErrUpstream)
	}

	return session, nil
}

// Confirm moves the attempt behind reference to confirmed and marks its
// account paid in the same transaction.
func (s *Service) Confirm(ctx context.Context, reference string) (string, error) {
	attempt, err := s.lookup(ctx, s.repo, reference)
	if err == nil {
		err = s.transition(ctx, attempt, StatusConfirmed)
	}
	if err != nil {
		s.logMisuse("confirm", err)
		return "", err
	}

	return attempt.AccountID, nil
}

// Cancel expires the processor session behind reference and then moves the
// attempt to canceled. If the customer paid before the session closed the
// attempt is confirmed instead; the returned attempt carries the outcome.
func (s *Service) Cancel(ctx context.Context, reference string) (*Attempt, error) {
	attempt, err := s.lookup(ctx, s.repo, reference)
	if err != nil {
		s.logMisuse("cancel", err)
		return nil, err
	}

	return s.settle(ctx, attempt, "cancel")
}

// CancelPending cancels whatever attempt accountID has in created, with the
// same processor handling as Cancel.
func (s *Service) CancelPending(ctx context.Context, accountID string) (*Attempt, error) {
	attempt, err := s.repo.GetPending(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return s.settle(ctx, attempt, "cancel_pending")
}

// CancelClosed cancels an attempt whose processor session the processor
// itself reported expired or failed. Nothing is asked of the processor.
func (s *Service) CancelClosed(ctx context.Context, reference string) error {
	attempt, err := s.lookup(ctx, s.repo, reference)
	if err == nil {
		err = s.transition(ctx, attempt, StatusCanceled)
	}
	if err != nil {
		s.logMisuse("cancel_closed", err)
		return err
	}

	return nil
}

// AcceptLatePayment grants access for a verified payment that arrived
// after its attempt was canceled. The attempt itself stays canceled.
func (s *Service) AcceptLatePayment(ctx context.Context, reference string) (string, error) {
	attempt, err := s.lookup(ctx, s.repo, reference)
	if err != nil {
		return "", err
	}
	if attempt.Status != StatusCanceled {
		return "", ErrAlreadyTerminal
	}

	if err := core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return s.accounts.MarkPaidTx(ctx, tx, attempt.AccountID)
	}); err != nil {
		return "", fmt.Errorf("accept late payment: %w", err)
	}

	s.logger.Error("payment captured after checkout was canceled, access granted",
		"account_id", attempt.AccountID,
		"attempt_id", attempt.ID,
	)

	return attempt.AccountID, nil
}

func (s *Service) settle(ctx context.Context, attempt *Attempt, op string) (*Attempt, error) {
	if attempt.IsTerminal() {
		s.logMisuse(op, ErrAlreadyTerminal)
		return nil, ErrAlreadyTerminal
	}

	paid, err := s.closeProviderSession(ctx, attempt)
	if err != nil {
		return nil, err
	}

	to := StatusCanceled
	if paid {
		to = StatusConfirmed
	}

	if err := s.transition(ctx, attempt, to); err != nil {
		s.logMisuse(op, err)
		return nil, err
	}

	return attempt, nil
}

// closeProviderSession expires the processor session so it can no longer
// be paid. It reports true when the customer paid before it closed.
func (s *Service) closeProviderSession(ctx context.Context, attempt *Attempt) (bool, error) {
	if attempt.ProviderSessionID == "" {
		return false, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()

	err := s.provider.Expire(callCtx, attempt.ProviderSessionID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrSessionCompleted) {
		return false, fmt.Errorf("expire payment session: %w: %w", core.ErrUpstream, err)
	}

	paid, err := s.provider.IsPaid(callCtx, attempt.ProviderSessionID)
	if err != nil {
		return false, fmt.Errorf("check payment status: %w: %w", core.ErrUpstream, err)
	}
	if !paid {
		return false, ErrPaymentProcessing
	}

	return true, nil
}

// transition moves a created attempt to to. Confirmation marks the account
// paid in the same transaction.
func (s *Service) transition(ctx context.Context, attempt *Attempt, to string) error {
	now := s.now()

	err := core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		moved, err := NewRepository(tx).Transition(ctx, attempt.ID, to, now)
		if err != nil {
			return err
		}
		if !moved {
			return ErrAlreadyTerminal
		}

		if to == StatusConfirmed {
			return s.accounts.MarkPaidTx(ctx, tx, attempt.AccountID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	attempt.Status = to
	attempt.UpdatedAt = now
	attempt.CompletedAt = &now

	core.CheckoutTransitionsTotal.WithLabelValues(to).Inc()
	if to == StatusConfirmed {
		s.logger.Info("checkout confirmed", "account_id", attempt.AccountID)
	}

	return nil
}

func (s *Service) Status(ctx context.Context, reference string) (*Attempt, error) {
	return s.lookup(ctx, s.repo, reference)
}

func (s *Service) Pending(ctx context.Context, accountID string) (*Attempt, error) {
	return s.repo.GetPending(ctx, accountID)
}

// ProviderReportsPaid asks the processor whether the attempt behind
// reference has actually been paid.
func (s *Service) ProviderReportsPaid(ctx context.Context, attempt *Attempt) (bool, error) {
	if attempt.ProviderSessionID == "" {
		return false, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()

	paid, err := s.provider.IsPaid(callCtx, attempt.ProviderSessionID)
	if err != nil {
		return false, fmt.Errorf("check payment status: %w: %w", core.ErrUpstream, err)
	}

	return paid, nil
}

// ExpireStale settles attempts left in created for longer than olderThan,
// closing each processor session first. Attempts whose session cannot be
// closed stay pending for the next sweep.
func (s *Service) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.repo.ListCreatedBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	canceled := 0
	for i := range stale {
		attempt, err := s.settle(ctx, &stale[i], "expire")
		if err != nil {
			if !errors.Is(err, ErrAlreadyTerminal) {
				s.logger.Warn("stale checkout left pending",
					"attempt_id", stale[i].ID,
					"error", err,
				)
			}
			continue
		}
		if attempt.Status == StatusCanceled {
			canceled++
		}
	}

	if canceled > 0 {
		s.logger.Info("stale checkout attempts expired", "count", canceled)
	}

	return canceled, nil
}

func (s *Service) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	return s.repo.CountByStatus(ctx)
}

func (s *Service) lookup(
	ctx context.Context,
	repo Repository,
	reference string,
) (*Attempt, error) {
	if !strings.HasPrefix(reference, referencePrefix) {
		return nil, ErrUnknownReference
	}

	attempt, err := repo.GetByReferenceHash(ctx, core.HashToken(reference))
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrUnknownReference
	}
	if err != nil {
		return nil, err
	}

	return attempt, nil
}

func (s *Service) logMisuse(op string, err error) {
	if errors.Is(err, ErrUnknownReference) || errors.Is(err, ErrAlreadyTerminal) {
		s.logger.Warn("checkout reference rejected", "op", op, "error", err)
	}
}
