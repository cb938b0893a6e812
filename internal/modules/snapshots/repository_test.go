package snapshots

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brokerwatch/internal/domain"
	testutil "github.com/aristath/brokerwatch/internal/testing"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	db := testutil.NewTestDB(t, "brokerwatch")
	testutil.InsertAccount(t, db.Conn(), testutil.NewAccountFixture("acc", domain.BrokerKIS))
	return NewRepository(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled))
}

func snapshotAt(id string, kind domain.SnapshotKind, at time.Time, assets float64) *domain.BalanceSnapshot {
	return &domain.BalanceSnapshot{
		ID: id, AccountID: "acc", Kind: kind, RecordedAt: at, TotalAssets: assets,
		Holdings: []domain.Holding{{StockCode: "005930", Quantity: 1}},
	}
}

func TestInsertAndRange(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, snapshotAt("1", domain.SnapshotPeriodic, base, 100)))
	require.NoError(t, repo.Insert(ctx, snapshotAt("2", domain.SnapshotIntraday, base.Add(time.Minute), 101)))
	require.NoError(t, repo.Insert(ctx, snapshotAt("3", domain.SnapshotPeriodic, base.Add(2*time.Minute), 102)))
	require.NoError(t, repo.Insert(ctx, snapshotAt("4", domain.SnapshotPeriodic, base.Add(time.Hour), 103)))

	all, err := repo.Range(ctx, "acc", "", base, base.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, "005930", all[0].Holdings[0].StockCode)
	assert.True(t, all[0].RecordedAt.Equal(base))

	periodic, err := repo.Range(ctx, "acc", domain.SnapshotPeriodic, base, base.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, periodic, 2)
	assert.Equal(t, "3", periodic[1].ID)
}

func TestInsert_IdenticalValuesStillAppend(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Insert(ctx, snapshotAt("a", domain.SnapshotPeriodic, now, 100)))
	require.NoError(t, repo.Insert(ctx, snapshotAt("b", domain.SnapshotPeriodic, now.Add(time.Millisecond), 100)))

	assert.Equal(t, 2, testutil.CountRows(t, repo.db, "balance_snapshots", "account_id = ?", "acc"))
}

func TestLatest(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	latest, err := repo.Latest(ctx, "acc", "")
	require.NoError(t, err)
	assert.Nil(t, latest)

	now := time.Now()
	require.NoError(t, repo.Insert(ctx, snapshotAt("old", domain.SnapshotPeriodic, now.Add(-time.Hour), 1)))
	require.NoError(t, repo.Insert(ctx, snapshotAt("new", domain.SnapshotIntraday, now, 2)))

	latest, err = repo.Latest(ctx, "acc", "")
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)

	latest, err = repo.Latest(ctx, "acc", domain.SnapshotPeriodic)
	require.NoError(t, err)
	assert.Equal(t, "old", latest.ID)
}
