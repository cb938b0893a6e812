package accounts

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brokerwatch/internal/database"
	"github.com/aristath/brokerwatch/internal/domain"
	"github.com/aristath/brokerwatch/internal/security"
	testutil "github.com/aristath/brokerwatch/internal/testing"
)

func newTestRepository(t *testing.T, passphrase string) (*Repository, *sql.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, "brokerwatch")
	sealer, err := security.NewSealer(passphrase)
	require.NoError(t, err)
	return NewRepository(db.Conn(), sealer, zerolog.New(nil).Level(zerolog.Disabled)), db.Conn()
}

func newAccount() *domain.Account {
	a := testutil.NewAccountFixture("", domain.BrokerKIS)
	a.AccountNo = "50012345"
	return &a
}

func TestCreateAndGet(t *testing.T) {
	repo, _ := newTestRepository(t, "")
	ctx := context.Background()

	a := newAccount()
	require.NoError(t, repo.Create(ctx, a))
	assert.NotEmpty(t, a.ID)

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.BrokerKIS, got.Broker)
	assert.Equal(t, domain.ModePaper, got.Mode)
	assert.Equal(t, a.AppSecret, got.AppSecret)
	assert.True(t, got.Active)
	assert.Nil(t, got.TokenExpiresAt)
	assert.False(t, got.HasToken())
}

func TestGet_NotFoundReturnsNil(t *testing.T) {
	repo, _ := newTestRepository(t, "")

	got, err := repo.Get(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreate_ValidatesRequiredFields(t *testing.T) {
	repo, _ := newTestRepository(t, "")

	a := newAccount()
	a.AppKey = ""
	a.Broker = "NH"
	err := repo.Create(context.Background(), a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app_key")
}

func TestSecretsAreSealedAtRest(t *testing.T) {
	repo, conn := newTestRepository(t, "passphrase")
	ctx := context.Background()

	a := newAccount()
	require.NoError(t, repo.Create(ctx, a))

	expiry := time.Now().Add(24 * time.Hour)
	require.NoError(t, database.WithTransaction(conn, func(tx *sql.Tx) error {
		return repo.UpdateToken(ctx, tx, a.ID, "bearer-token", expiry)
	}))

	var storedSecret, storedToken string
	require.NoError(t, conn.QueryRow("SELECT app_secret, access_token FROM accounts WHERE id = ?", a.ID).
		Scan(&storedSecret, &storedToken))
	assert.NotEqual(t, a.AppSecret, storedSecret)
	assert.NotEqual(t, "bearer-token", storedToken)

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.AppSecret, got.AppSecret)
	assert.Equal(t, "bearer-token", got.AccessToken)
	assert.Equal(t, expiry.Unix(), got.TokenExpiresAt.Unix())
}

func TestListActive_SkipsInactiveInStableOrder(t *testing.T) {
	repo, conn := newTestRepository(t, "")
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"c", "a", "b"} {
		a := testutil.NewAccountFixture(id, domain.BrokerKIS)
		a.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		a.Active = id != "a"
		testutil.InsertAccount(t, conn, a)
	}

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "c", active[0].ID)
	assert.Equal(t, "b", active[1].ID)
}

func TestListByOwner(t *testing.T) {
	repo, conn := newTestRepository(t, "")

	mine := testutil.NewAccountFixture("mine", domain.BrokerLS)
	theirs := testutil.NewAccountFixture("theirs", domain.BrokerLS)
	theirs.OwnerID = "owner-2"
	testutil.InsertAccount(t, conn, mine)
	testutil.InsertAccount(t, conn, theirs)

	got, err := repo.ListByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].ID)
}

func TestUpdate_CredentialChangeClearsToken(t *testing.T) {
	repo, conn := newTestRepository(t, "")
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour)
	a := testutil.NewAccountFixture("acc", domain.BrokerKIS)
	a.AccessToken = "old"
	a.TokenExpiresAt = &expiry
	testutil.InsertAccount(t, conn, a)

	// rename only: token survives
	a.Name = "renamed"
	require.NoError(t, repo.Update(ctx, &a))
	got, _ := repo.Get(ctx, "acc")
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "old", got.AccessToken)

	// switching to live must not reuse a paper token
	a.Mode = domain.ModeLive
	require.NoError(t, repo.Update(ctx, &a))
	got, _ = repo.Get(ctx, "acc")
	assert.Equal(t, domain.ModeLive, got.Mode)
	assert.Empty(t, got.AccessToken)
	assert.Nil(t, got.TokenExpiresAt)
}

func TestUpdate_MissingAccount(t *testing.T) {
	repo, _ := newTestRepository(t, "")

	a := testutil.NewAccountFixture("ghost", domain.BrokerKIS)
	err := repo.Update(context.Background(), &a)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestUpdateToken_RollbackKeepsPreviousToken(t *testing.T) {
	repo, conn := newTestRepository(t, "")
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour)
	a := testutil.NewAccountFixture("acc", domain.BrokerKIS)
	a.AccessToken = "stale"
	a.TokenExpiresAt = &expiry
	testutil.InsertAccount(t, conn, a)

	err := database.WithTransaction(conn, func(tx *sql.Tx) error {
		if err := repo.UpdateToken(ctx, tx, "acc", "fresh", expiry.Add(time.Hour)); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	got, _ := repo.Get(ctx, "acc")
	assert.Equal(t, "stale", got.AccessToken)
	assert.Equal(t, expiry.Unix(), got.TokenExpiresAt.Unix())
}

func TestDelete_CascadesHistory(t *testing.T) {
	repo, conn := newTestRepository(t, "")
	ctx := context.Background()

	testutil.InsertAccount(t, conn, testutil.NewAccountFixture("acc", domain.BrokerKIS))
	_, err := conn.Exec(`INSERT INTO balance_snapshots (id, account_id, kind, recorded_at) VALUES ('s1', 'acc', 'periodic', 1)`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO trade_records (id, account_id, order_date, order_no, created_at, updated_at) VALUES ('t1', 'acc', '20260302', '1', 1, 1)`)
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 0, testutil.CountRows(t, conn, "balance_snapshots", ""))
	assert.Equal(t, 0, testutil.CountRows(t, conn, "trade_records", ""))

	deleted, err = repo.Delete(ctx, "acc")
	require.NoError(t, err)
	assert.False(t, deleted)
}
