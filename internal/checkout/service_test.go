// AngelaMos | 2026
// service_test.go

package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/imagegate/internal/account"
	"github.com/carterperez-dev/templates/imagegate/internal/core"
	"github.com/carterperez-dev/templates/imagegate/internal/testutil"
)

type fakeProvider struct {
	mu        sync.Mutex
	sessions  map[string]string
	paid      map[string]bool
	completed map[string]bool
	expired   map[string]bool
	err       error
	expireErr error
	calls     int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		sessions:  make(map[string]string),
		paid:      make(map[string]bool),
		completed: make(map[string]bool),
		expired:   make(map[string]bool),
	}
}

func (f *fakeProvider) CreateSession(
	_ context.Context,
	req SessionRequest,
) (*ProviderSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	id := fmt.Sprintf("cs_test_%d", f.calls)
	f.sessions[id] = req.Reference
	return &ProviderSession{ID: id, URL: "https://pay.example/" + id}, nil
}

func (f *fakeProvider) IsPaid(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paid[sessionID], f.err
}

func (f *fakeProvider) Expire(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.expireErr != nil {
		return f.expireErr
	}
	if f.paid[sessionID] || f.completed[sessionID] {
		return ErrSessionCompleted
	}
	f.expired[sessionID] = true
	return nil
}

type fixture struct {
	svc      *Service
	accounts *account.Service
	provider *fakeProvider
	account  *account.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	logger := slog.New(slog.DiscardHandler)
	accounts := account.NewService(db.DB, logger)

	a, err := accounts.Signup(context.Background(), "alice", "pw")
	require.NoError(t, err)

	provider := newFakeProvider()
	svc := NewService(db.DB, accounts, provider, Settings{
		AmountCents:   200,
		Currency:      "usd",
		ProductName:   "Premium Access",
		PublicBaseURL: "http://localhost:8080/",
		Timeout:       time.Second,
	}, logger)

	return &fixture{svc: svc, accounts: accounts, provider: provider, account: a}
}

func TestStartCreatesPendingAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, f.account.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(started.Reference, referencePrefix))
	assert.Equal(t, "https://pay.example/cs_test_1", started.RedirectURL)

	attempt, err := f.svc.Status(ctx, started.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, attempt.Status)
	assert.Equal(t, int64(200), attempt.AmountCents)
	assert.Equal(t, "usd", attempt.Currency)
	assert.NotEqual(t, started.Reference, attempt.ReferenceHash)
	assert.Equal(t, started.Reference, f.provider.sessions["cs_test_1"])

	_, err = f.svc.Start(ctx, f.account.ID)
	assert.ErrorIs(t, err, ErrAttemptAlreadyPending)
}

func TestStartReferencesAreUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for range 3 {
		started, err := f.svc.Start(ctx, f.account.ID)
		require.NoError(t, err)
		assert.False(t, seen[started.Reference])
		seen[started.Reference] = true
		_, err = f.svc.Cancel(ctx, started.Reference)
		require.NoError(t, err)
	}
}

func TestStartUpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("connection reset")

	_, err := f.svc.Start(context.Background(), f.account.ID)
	assert.ErrorIs(t, err, core.ErrUpstream)

	_, err = f.svc.Pending(context.Background(), f.account.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestConfirmMarksPaidOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, f.account.ID)
	require.NoError(t, err)

	accountID, err := f.svc.Confirm(ctx, started.Reference)
	require.NoError(t, err)
	assert.Equal(t, f.account.ID, accountID)

	paid, err := f.accounts.IsPaid(ctx, f.account.ID)
	require.NoError(t, err)
	assert.True(t, paid)

	_, err = f.svc.Confirm(ctx, started.Reference)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	attempt, err := f.svc.Status(ctx, started.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, attempt.Status)
	assert.NotNil(t, attempt.CompletedAt)

	_, err = f.svc.Start(ctx, f.account.ID)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestConcurrentConfirmAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, f.account.ID)
	require.NoError(t, err)

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Confirm(ctx, started.Reference)
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyTerminal)
	}
	assert.Equal(t, 1, ok)
}

func TestConfirmUnknownReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, ref := range []string{"", "success=true", "chk_forged", referencePrefix + strings.Repeat("A", 43)} {
		_, err := f.svc.Confirm(ctx, ref)
		assert.ErrorIs(t, err, ErrUnknownReference, ref)
	}

	paid, err := f.accounts.IsPaid(ctx, f.account.ID)
	require.NoError(t, err)
	assert.False(t, paid)
}

func TestCancelIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, f.account.ID)
	require.NoError(t, err)

	attempt, err := f.svc.Cancel(ctx, started.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, attempt.Status)
	assert.True(t, f.provider.expired[attempt.ProviderSessionID])

	_, err = f.svc.Cancel(ctx, started.Reference)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	_, err = f.svc.Confirm(ctx, started.Reference)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	paid, err := f.accounts.IsPaid(ctx, f.account.ID)
	require.NoError(t, err)
	assert.False(t, paid)

	_, err = f.svc.Cancel(ctx, "chk_nope")
	assert.ErrorIs(t, err, ErrUnknownReference)
}

func TestCancelSettlesAgainstProvider(t *testing.T) {
	t.Run("paid session confirms", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		started, err := f.svc.Start(ctx, f.account.ID)
		require.NoError(t, err)
		pending, err := f.svc.Status(ctx, started.Reference)
		require.NoError(t, err)
		f.provider.paid[pending.ProviderSessionID] = true

		attempt, err := f.svc.Cancel(ctx, started.Reference)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, attempt.Status)

		paid, err := f.accounts.IsPaid(ctx, f.account.ID)
		require.NoError(t, err)
		assert.True(t, paid)
	})

	t.Run("completed but unpaid stays pending", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		started, err := f.svc.Start(ctx, f.account.ID)
		require.NoError(t, err)
		pending, err := f.svc.Status(ctx, started.Reference)
		require.NoError(t, err)
		f.provider.completed[pending.ProviderSessionID] = true

		_, err = f.svc.Cancel(ctx, started.Reference)
		assert.ErrorIs(t, err, ErrPaymentProcessing)

		attempt, err := f.svc.Status(ctx, started.Reference)
		require.NoError(t, err)
		assert.Equal(t, StatusCreated, attempt.Status)
	})

	t.Run("provider failure stays pending", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		started, err := f.svc.Start(ctx, f.account.ID)
		require.NoError(t, err)
		f.provider.expireErr = errors.New("timeout")

		_, err = f.svc.Cancel(ctx, started.Reference)
		assert.ErrorIs(t, err, core.ErrUpstream)

		attempt, err := f.svc.Status(ctx, started.Reference)
		require.NoError(t, err)
		assert.Equal(t, StatusCreated, attempt.Status)
	})
}

func TestCancelClosedSkipsProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, f.account.ID)
	require.NoError(t, err)
	f.provider.expireErr = errors.New("must not be called")

	require.NoError(t, f.svc.CancelClosed(ctx, started.Reference))
	assert.ErrorIs(t, f.svc.CancelClosed(ctx, started.Reference), ErrAlreadyTerminal)
}

func TestAcceptLatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, f.account.ID)
	require.NoError(t, err)

	_, err = f.svc.AcceptLatePayment(ctx, started.Reference)
	assert.ErrorIs(t, err, ErrAlreadyTerminal, "pending attempts are confirmed, not patched")

	_, err = f.svc.Cancel(ctx, started.Reference)
	require.NoError(t, err)

	accountID, err := f.svc.AcceptLatePayment(ctx, started.Reference)
	require.NoError(t, err)
	assert.Equal(t, f.account.ID, accountID)

	paid, err := f.accounts.IsPaid(ctx, f.account.ID)
	require.NoError(t, err)
	assert.True(t, paid)

	attempt, err := f.svc.Status(ctx, started.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, attempt.Status)
}

func TestCancelPendingByAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CancelPending(ctx, f.account.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	started, err := f.svc.Start(ctx, f.account.ID)
	require.NoError(t, err)

	_, err = f.svc.CancelPending(ctx, f.account.ID)
	require.NoError(t, err)

	attempt, err := f.svc.Status(ctx, started.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, attempt.Status)

	_, err = f.svc.Start(ctx, f.account.ID)
	assert.NoError(t, err, "a canceled attempt frees the account for a new one")
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }

	started, err := f.svc.Start(ctx, f.account.ID)
	require.NoError(t, err)

	n, err := f.svc.ExpireStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.svc.now = func() time.Time { return base.Add(25 * time.Hour) }
	sweeper := NewSweeper(f.svc, time.Minute, 24*time.Hour, slog.New(slog.DiscardHandler))

	f.provider.expireErr = errors.New("timeout")
	assert.Zero(t, sweeper.SweepOnce(ctx), "unreachable processor defers the sweep")

	f.provider.expireErr = nil
	assert.Equal(t, 1, sweeper.SweepOnce(ctx))

	attempt, err := f.svc.Status(ctx, started.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, attempt.Status)
	assert.True(t, f.provider.expired[attempt.ProviderSessionID])

	counts, err := f.svc.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []StatusCount{{Status: StatusCanceled, Count: 1}}, counts)
}

func TestProviderReportsPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, f.account.ID)
	require.NoError(t, err)
	attempt, err := f.svc.Status(ctx, started.Reference)
	require.NoError(t, err)

	paid, err := f.svc.ProviderReportsPaid(ctx, attempt)
	require.NoError(t, err)
	assert.False(t, paid)

	f.provider.paid[attempt.ProviderSessionID] = true
	paid, err = f.svc.ProviderReportsPaid(ctx, attempt)
	require.NoError(t, err)
	assert.True(t, paid)

	f.provider.err = errors.New("timeout")
	_, err = f.svc.ProviderReportsPaid(ctx, attempt)
	assert.ErrorIs(t, err, core.ErrUpstream)
}
