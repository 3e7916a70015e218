// AngelaMos | 2026
// service_test.go

package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/imagegate/internal/account"
	"github.com/carterperez-dev/templates/imagegate/internal/core"
	"github.com/carterperez-dev/templates/imagegate/internal/testutil"
)

func setup(t *testing.T) (*Service, string) {
	t.Helper()
	db := testutil.NewDB(t)

	accounts := account.NewService(db.DB, slog.New(slog.DiscardHandler))
	a, err := accounts.Signup(context.Background(), "alice", "pw")
	require.NoError(t, err)

	return NewService(db.DB), a.ID
}

func TestAppendCountList(t *testing.T) {
	svc, accountID := setup(t)
	ctx := context.Background()

	for _, q := range []string{"cats", "dogs", "owls"} {
		_, err := svc.Append(ctx, accountID, q, q+".jpg")
		require.NoError(t, err)
	}

	n, err := svc.CountFor(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records, err := svc.ListFor(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "owls", records[0].Query)
	assert.Equal(t, "cats", records[2].Query)
	assert.Equal(t, "owls.jpg", records[0].ArtifactRef)
}

func TestAppendClampsClockSkew(t *testing.T) {
	svc, accountID := setup(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return base }
	first, err := svc.Append(ctx, accountID, "first", "")
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(-time.Hour) }
	second, err := svc.Append(ctx, accountID, "second", "")
	require.NoError(t, err)

	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))

	records, err := svc.ListFor(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "second", records[0].Query)
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	svc, accountID := setup(t)
	ctx := context.Background()

	var ids []int64
	for _, q := range []string{"a", "b", "c"} {
		r, err := svc.Append(ctx, accountID, q, "")
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	deleted, err := svc.Delete(ctx, accountID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "b", deleted.Query)

	n, err := svc.CountFor(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := svc.ListFor(ctx, accountID)
	require.NoError(t, err)
	for _, r := range records {
		assert.NotEqual(t, ids[1], r.ID)
	}

	_, err = svc.Delete(ctx, accountID, ids[1])
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = svc.Delete(ctx, "someone-else", ids[0])
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListForEmptyAccount(t *testing.T) {
	svc, _ := setup(t)

	records, err := svc.ListFor(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)
}

var errFull = errors.New("full")

func TestAppendAdmittedAcrossServices(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	accounts := account.NewService(db.DB, slog.New(slog.DiscardHandler))
	a, err := accounts.Signup(ctx, "alice", "pw")
	require.NoError(t, err)

	limit := func(paid bool, used int) error {
		if !paid && used >= 3 {
			return errFull
		}
		return nil
	}

	// two services over one database stand in for two API processes
	services := []*Service{NewService(db.DB), NewService(db.DB)}

	var wg sync.WaitGroup
	for i := range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc := services[i%len(services)]
			_, err := svc.AppendAdmitted(ctx, a.ID, fmt.Sprintf("q%d", i), "", limit)
			if err != nil {
				assert.ErrorIs(t, err, errFull)
			}
		}()
	}
	wg.Wait()

	n, err := services[0].CountFor(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, accounts.MarkPaid(ctx, a.ID))
	_, err = services[1].AppendAdmitted(ctx, a.ID, "after upgrade", "", limit)
	assert.NoError(t, err)

	_, err = services[0].AppendAdmitted(ctx, "missing", "q", "", limit)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
