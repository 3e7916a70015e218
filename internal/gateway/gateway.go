// AngelaMos | 2026
// gateway.go

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/templates/imagegate/internal/account"
	"github.com/carterperez-dev/templates/imagegate/internal/artifact"
	"github.com/carterperez-dev/templates/imagegate/internal/checkout"
	"github.com/carterperez-dev/templates/imagegate/internal/core"
	"github.com/carterperez-dev/templates/imagegate/internal/entitlement"
	"github.com/carterperez-dev/templates/imagegate/internal/imagesearch"
	"github.com/carterperez-dev/templates/imagegate/internal/session"
	"github.com/carterperez-dev/templates/imagegate/internal/usage"
)

const maxQueryLength = 200

var ErrPaymentIncomplete = errors.New("payment not completed")

type Settings struct {
	SearchTimeout time.Duration
	MaxImageWidth int
}

type Deps struct {
	Accounts     *account.Service
	Usage        *usage.Service
	Entitlements *entitlement.Engine
	Checkouts    *checkout.Service
	Webhooks     checkout.WebhookParser
	Sessions     *session.Store
	Tokens       *session.JWTManager
	Search       imagesearch.Searcher
	Artifacts    artifact.Store
	Logger       *slog.Logger
}

// Gateway is the single entry point for account, feature and upgrade
// operations. Every operation that reads then writes per-account state
// holds that account's lock for its whole duration.
type Gateway struct {
	accounts     *account.Service
	usage        *usage.Service
	entitlements *entitlement.Engine
	checkouts    *checkout.Service
	webhooks     checkout.WebhookParser
	sessions     *session.Store
	tokens       *session.JWTManager
	search       imagesearch.Searcher
	artifacts    artifact.Store
	settings     Settings
	locks        *core.KeyedMutex
	logger       *slog.Logger
	now          func() time.Time
}

func New(deps Deps, settings Settings) *Gateway {
	return &Gateway{
		accounts:     deps.Accounts,
		usage:        deps.Usage,
		entitlements: deps.Entitlements,
		checkouts:    deps.Checkouts,
		webhooks:     deps.Webhooks,
		sessions:     deps.Sessions,
		tokens:       deps.Tokens,
		search:       deps.Search,
		artifacts:    deps.Artifacts,
		settings:     settings,
		locks:        core.NewKeyedMutex(),
		logger:       deps.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type LoginResult struct {
	Account   *account.Account
	SessionID string
	Token     string
	ExpiresAt time.Time
}

type FeatureResult struct {
	Record    *usage.Record
	Paid      bool
	Used      int
	Quota     int
	Remaining int
}

type UpgradeResult struct {
	AccountID        string
	AlreadyConfirmed bool
}

// CancelResult reports how a cancel request settled. Paid is set when the
// customer had already paid and the upgrade was confirmed instead.
type CancelResult struct {
	AccountID string
	Paid      bool
}

func (g *Gateway) Signup(
	ctx context.Context,
	username, password string,
) (*account.Account, error) {
	ctx, span := core.StartSpan(ctx, "gateway.Signup")
	a, err := g.accounts.Signup(ctx, username, password)
	core.EndSpan(span, err)

	result := "ok"
	if err != nil {
		result = "rejected"
	}
	core.AuthAttemptsTotal.WithLabelValues("signup", result).Inc()

	return a, err
}

// Login verifies credentials and opens a server side session bound to a
// fresh access token.
func (g *Gateway) Login(
	ctx context.Context,
	username, password string,
) (*LoginResult, error) {
	ctx, span := core.StartSpan(ctx, "gateway.Login")
	result, err := g.login(ctx, username, password)
	core.EndSpan(span, err)

	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	core.AuthAttemptsTotal.WithLabelValues("login", outcome).Inc()

	return result, err
}

func (g *Gateway) login(
	ctx context.Context,
	username, password string,
) (*LoginResult, error) {
	a, err := g.accounts.Verify(ctx, username, password)
	if err != nil {
		return nil, err
	}

	sess, err := g.sessions.Create(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	token, expiresAt, err := g.tokens.CreateAccessToken(a.ID, sess.ID)
	if err != nil {
		//nolint:errcheck // best-effort cleanup of an unusable session
		_, _ = g.sessions.Delete(ctx, sess.ID)
		return nil, fmt.Errorf("login: %w", err)
	}

	return &LoginResult{
		Account:   a,
		SessionID: sess.ID,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Logout ends the session and settles the checkout it started. A checkout
// the customer already paid is confirmed rather than canceled.
func (g *Gateway) Logout(ctx context.Context, sessionID string) error {
	sess, err := g.sessions.Delete(ctx, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if sess.CheckoutRef == "" {
		return nil
	}

	unlock := g.locks.Lock(sess.AccountID)
	defer unlock()

	_, err = g.checkouts.Cancel(ctx, sess.CheckoutRef)
	switch {
	case err == nil,
		errors.Is(err, checkout.ErrUnknownReference),
		errors.Is(err, checkout.ErrAlreadyTerminal):
		return nil
	case errors.Is(err, core.ErrUpstream), errors.Is(err, checkout.ErrPaymentProcessing):
		g.logger.Warn("checkout left pending on logout",
			"account_id", sess.AccountID,
			"error", err,
		)
		return nil
	}

	return err
}

// UseFeature runs one metered image generation for accountID. The quota
// check, the search and the ledger append happen under the account lock,
// so concurrent calls can never exceed the free quota.
func (g *Gateway) UseFeature(
	ctx context.Context,
	accountID, query string,
) (*FeatureResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || utf8.RuneCountInString(query) > maxQueryLength {
		return nil, fmt.Errorf("use feature: query: %w", core.ErrInvalidInput)
	}

	ctx, span := core.StartSpan(ctx, "gateway.UseFeature",
		attribute.String("account.id", accountID),
	)

	unlock := g.locks.Lock(accountID)
	result, err := g.useFeature(ctx, accountID, query)
	unlock()

	core.EndSpan(span, err)
	core.FeatureUsesTotal.WithLabelValues(featureOutcome(err)).Inc()

	return result, err
}

func (g *Gateway) useFeature(
	ctx context.Context,
	accountID, query string,
) (*FeatureResult, error) {
	decision, err := g.entitlements.Check(ctx, accountID)
	if err != nil {
		return nil, err
	}

	searchCtx, cancel := context.WithTimeout(ctx, g.settings.SearchTimeout)
	raw, err := g.search.Search(searchCtx, query)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("search image: %w", err)
	}
	core.AddSpanEvent(ctx, "image.found", attribute.Int("bytes", len(raw)))

	normalized, err := artifact.Normalize(raw, g.settings.MaxImageWidth)
	if err != nil {
		return nil, fmt.Errorf("normalize image: %w: %w", core.ErrUpstream, err)
	}

	key := artifact.Key(accountID, artifact.FileName(query, g.now()))
	ref, err := g.artifacts.Put(ctx, key, normalized)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	// another process may have recorded a use since the check above
	record, err := g.usage.AppendAdmitted(ctx, accountID, query, ref,
		func(paid bool, used int) error {
			admitted, err := g.entitlements.Admit(paid, used)
			decision = admitted
			return err
		},
	)
	if err != nil {
		g.discardArtifact(ctx, ref)
		return nil, err
	}

	used := decision.Used + 1
	return &FeatureResult{
		Record:    record,
		Paid:      decision.Paid,
		Used:      used,
		Quota:     decision.Quota,
		Remaining: max(decision.Quota-used, 0),
	}, nil
}

func featureOutcome(err error) string {
	switch {
	case err == nil:
		return "granted"
	case errors.Is(err, entitlement.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, imagesearch.ErrNoResults):
		return "no_results"
	case errors.Is(err, core.ErrUpstream):
		return "upstream_error"
	case errors.Is(err, core.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

func (g *Gateway) UsageSummary(
	ctx context.Context,
	accountID string,
) (entitlement.Summary, error) {
	return g.entitlements.Summary(ctx, accountID)
}

// StartUpgrade opens a checkout for accountID and remembers its reference
// on the calling session.
func (g *Gateway) StartUpgrade(
	ctx context.Context,
	accountID, sessionID string,
) (*checkout.Started, error) {
	ctx, span := core.StartSpan(ctx, "gateway.StartUpgrade",
		attribute.String("account.id", accountID),
	)

	unlock := g.locks.Lock(accountID)
	started, err := g.checkouts.Start(ctx, accountID)
	unlock()

	core.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	if sessionID != "" {
		if err := g.sessions.SetCheckoutRef(ctx, sessionID, started.Reference); err != nil {
			g.logger.Warn("checkout reference not bound to session",
				"account_id", accountID,
				"error", err,
			)
		}
	}

	return started, nil
}

// ConfirmUpgrade handles the processor's success redirect. The reference
// alone proves nothing; the processor must report the session paid.
func (g *Gateway) ConfirmUpgrade(
	ctx context.Context,
	reference string,
) (*UpgradeResult, error) {
	ctx, span := core.StartSpan(ctx, "gateway.ConfirmUpgrade")
	result, err := g.confirmUpgrade(ctx, reference)
	core.EndSpan(span, err)
	return result, err
}

func (g *Gateway) confirmUpgrade(
	ctx context.Context,
	reference string,
) (*UpgradeResult, error) {
	attempt, err := g.checkouts.Status(ctx, reference)
	if err != nil {
		if errors.Is(err, checkout.ErrUnknownReference) {
			g.logger.Warn("checkout reference rejected", "op", "success", "error", err)
		}
		return nil, err
	}

	unlock := g.locks.Lock(attempt.AccountID)
	defer unlock()

	switch attempt.Status {
	case checkout.StatusConfirmed:
		return &UpgradeResult{AccountID: attempt.AccountID, AlreadyConfirmed: true}, nil
	case checkout.StatusCanceled:
		return nil, checkout.ErrAlreadyTerminal
	}

	paid, err := g.checkouts.ProviderReportsPaid(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if !paid {
		return nil, ErrPaymentIncomplete
	}

	return g.confirm(ctx, reference)
}

// confirm applies a verified payment. A redelivery that finds the attempt
// already confirmed counts as success.
func (g *Gateway) confirm(ctx context.Context, reference string) (*UpgradeResult, error) {
	accountID, err := g.checkouts.Confirm(ctx, reference)
	if err == nil {
		return &UpgradeResult{AccountID: accountID}, nil
	}
	if !errors.Is(err, checkout.ErrAlreadyTerminal) {
		return nil, err
	}

	attempt, statusErr := g.checkouts.Status(ctx, reference)
	if statusErr == nil && attempt.Status == checkout.StatusConfirmed {
		return &UpgradeResult{AccountID: attempt.AccountID, AlreadyConfirmed: true}, nil
	}
	return nil, err
}

// CancelUpgrade cancels the account's pending checkout, whichever session
// started it.
func (g *Gateway) CancelUpgrade(
	ctx context.Context,
	accountID, sessionID string,
) (*CancelResult, error) {
	unlock := g.locks.Lock(accountID)
	attempt, err := g.checkouts.CancelPending(ctx, accountID)
	unlock()

	if err != nil {
		return nil, err
	}

	if sessionID != "" {
		if err := g.sessions.ClearCheckoutRef(ctx, sessionID); err != nil {
			g.logger.Warn("session checkout reference not cleared", "error", err)
		}
	}

	return toCancelResult(attempt), nil
}

// AbandonUpgrade handles the processor's cancel redirect for reference.
func (g *Gateway) AbandonUpgrade(ctx context.Context, reference string) (*CancelResult, error) {
	attempt, err := g.checkouts.Status(ctx, reference)
	if err != nil {
		return nil, err
	}

	unlock := g.locks.Lock(attempt.AccountID)
	defer unlock()

	attempt, err = g.checkouts.Cancel(ctx, reference)
	if err != nil {
		return nil, err
	}

	return toCancelResult(attempt), nil
}

func toCancelResult(attempt *checkout.Attempt) *CancelResult {
	return &CancelResult{
		AccountID: attempt.AccountID,
		Paid:      attempt.Status == checkout.StatusConfirmed,
	}
}

// HandlePaymentEvent applies a signed processor callback. Replays and
// events for unknown or settled references are acknowledged without
// effect so the processor stops redelivering them.
func (g *Gateway) HandlePaymentEvent(
	ctx context.Context,
	payload []byte,
	signature string,
) error {
	event, err := g.webhooks.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}

	if event.Kind == checkout.EventIgnored || event.Reference == "" {
		return nil
	}

	ctx, span := core.StartSpan(ctx, "gateway.HandlePaymentEvent",
		attribute.String("event.type", event.Type),
	)
	err = g.applyEvent(ctx, event)
	core.EndSpan(span, err)

	return err
}

func (g *Gateway) applyEvent(ctx context.Context, event *checkout.Event) error {
	attempt, err := g.checkouts.Status(ctx, event.Reference)
	if errors.Is(err, checkout.ErrUnknownReference) {
		g.logger.Warn("payment event for unknown reference", "event_id", event.ID)
		return nil
	}
	if err != nil {
		return err
	}

	unlock := g.locks.Lock(attempt.AccountID)
	defer unlock()

	switch event.Kind {
	case checkout.EventPaid:
		result, err := g.confirm(ctx, event.Reference)
		if errors.Is(err, checkout.ErrAlreadyTerminal) {
			_, err = g.checkouts.AcceptLatePayment(ctx, event.Reference)
			if err != nil {
				return err
			}
			g.logger.Warn("late payment applied", "event_id", event.ID)
			return nil
		}
		if err != nil {
			return err
		}
		if !result.AlreadyConfirmed {
			g.logger.Info("upgrade confirmed by webhook",
				"event_id", event.ID,
				"account_id", result.AccountID,
			)
		}
		return nil

	case checkout.EventCanceled:
		err := g.checkouts.CancelClosed(ctx, event.Reference)
		if errors.Is(err, checkout.ErrAlreadyTerminal) {
			return nil
		}
		return err
	}

	return nil
}

func (g *Gateway) ListHistory(ctx context.Context, accountID string) ([]usage.Record, error) {
	return g.usage.ListFor(ctx, accountID)
}

// DeleteHistory removes one ledger entry and its stored image. The usage
// count drops by one with it.
func (g *Gateway) DeleteHistory(ctx context.Context, accountID string, recordID int64) error {
	unlock := g.locks.Lock(accountID)
	defer unlock()

	record, err := g.usage.Delete(ctx, accountID, recordID)
	if err != nil {
		return err
	}

	g.discardArtifact(ctx, record.ArtifactRef)
	return nil
}

func (g *Gateway) discardArtifact(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := g.artifacts.Delete(ctx, ref); err != nil {
		g.logger.Warn("artifact not removed", "ref", ref, "error", err)
	}
}
