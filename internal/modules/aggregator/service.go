// Package aggregator is the core of brokerwatch: it keeps access tokens valid
// and moves balance and trade data from the brokers into local storage.
package aggregator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/clients/broker"
	"github.com/aristath/brokerwatch/internal/database"
	"github.com/aristath/brokerwatch/internal/domain"
	"github.com/aristath/brokerwatch/internal/modules/accounts"
	"github.com/aristath/brokerwatch/internal/modules/snapshots"
	"github.com/aristath/brokerwatch/internal/modules/trades"
	"github.com/aristath/brokerwatch/internal/tokens"
)

var errCredentialsChanged = errors.New("account credentials changed during refresh")

// SyncFailure is one failed item of a trade sync
type SyncFailure struct {
	AccountName string `json:"account_name"`
	Message     string `json:"message"`
}

// RefreshObserver is told about every authentication attempt
type RefreshObserver interface {
	ObserveTokenRefresh(b domain.Broker, err error)
}

type nopRefreshObserver struct{}

func (nopRefreshObserver) ObserveTokenRefresh(domain.Broker, error) {}

// Service coordinates token refresh and data collection for single accounts.
// It is safe for concurrent use by the background loops and request handlers.
type Service struct {
	accounts  *accounts.Repository
	trades    *trades.Repository
	snapshots *snapshots.Repository
	brokers   *broker.Registry
	locks     *accounts.KeyedMutex
	threshold time.Duration
	observer  RefreshObserver
	now       func() time.Time
	log       zerolog.Logger
}

// NewService creates the aggregator. A zero threshold uses tokens.DefaultThreshold.
func NewService(
	accountRepo *accounts.Repository,
	tradeRepo *trades.Repository,
	snapshotRepo *snapshots.Repository,
	brokers *broker.Registry,
	threshold time.Duration,
	log zerolog.Logger,
) *Service {
	if threshold <= 0 {
		threshold = tokens.DefaultThreshold
	}
	return &Service{
		accounts:  accountRepo,
		trades:    tradeRepo,
		snapshots: snapshotRepo,
		brokers:   brokers,
		locks:     accounts.NewKeyedMutex(),
		threshold: threshold,
		observer:  nopRefreshObserver{},
		now:       time.Now,
		log:       log.With().Str("service", "aggregator").Logger(),
	}
}

// SetObserver installs a refresh observer
func (s *Service) SetObserver(o RefreshObserver) {
	if o == nil {
		o = nopRefreshObserver{}
	}
	s.observer = o
}

// Threshold is the refresh lead time in use
func (s *Service) Threshold() time.Duration {
	return s.threshold
}

// RefreshTokenIfNeeded authenticates the account when its token is missing or
// about to expire. On success account carries the current token. On failure
// the stored token is left untouched so a later attempt can retry.
func (s *Service) RefreshTokenIfNeeded(ctx context.Context, account *domain.Account) error {
	return s.refresh(ctx, account, false)
}

// ForceRefreshToken authenticates regardless of the current expiry
func (s *Service) ForceRefreshToken(ctx context.Context, account *domain.Account) error {
	if !account.Active {
		return domain.ErrAccountInactive
	}
	return s.refresh(ctx, account, true)
}

func (s *Service) refresh(ctx context.Context, account *domain.Account, force bool) error {
	client, err := s.brokers.For(account)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(account.ID)
	defer unlock()

	// Another caller may have refreshed while we waited for the lock
	current, err := s.accounts.Get(ctx, account.ID)
	if err != nil {
		return &domain.PersistenceError{Op: "load account", Err: err}
	}
	if current == nil {
		return domain.ErrAccountNotFound
	}
	if !force && !tokens.ShouldRefresh(current.TokenExpiresAt, s.now(), s.threshold) {
		account.AccessToken = current.AccessToken
		account.TokenExpiresAt = current.TokenExpiresAt
		return nil
	}

	token, expiry, err := client.Authenticate(ctx, current.AppKey, current.AppSecret, current.Mode)
	s.observer.ObserveTokenRefresh(current.Broker, err)
	if err != nil {
		s.log.Warn().Err(err).Str("account", current.Label()).Msg("Token refresh failed")
		return err
	}

	// The write goes first so SQLite takes the write lock before any read;
	// the re-read then confirms the token belongs to the stored credentials.
	err = database.WithTransactionContext(ctx, s.accounts.DB(), func(tx *sql.Tx) error {
		if err := s.accounts.UpdateToken(ctx, tx, current.ID, token, expiry); err != nil {
			return err
		}
		latest, err := s.accounts.GetTx(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		if latest == nil {
			return domain.ErrAccountNotFound
		}
		if latest.AppKey != current.AppKey || latest.AppSecret != current.AppSecret ||
			latest.Mode != current.Mode || latest.Broker != current.Broker {
			return errCredentialsChanged
		}
		return nil
	})
	if err != nil {
		return &domain.PersistenceError{Op: "store access token", Err: err}
	}

	account.AccessToken = token
	account.TokenExpiresAt = &expiry
	s.log.Info().
		Str("account", current.Label()).
		Str("broker", string(current.Broker)).
		Time("expires_at", expiry).
		Msg("Access token refreshed")
	return nil
}

// FetchAndStoreBalance refreshes the token if needed, fetches the balance and
// appends a snapshot of the given kind
func (s *Service) FetchAndStoreBalance(ctx context.Context, account *domain.Account, kind domain.SnapshotKind) (*domain.BalanceSnapshot, error) {
	client, err := s.brokers.For(account)
	if err != nil {
		return nil, err
	}
	if err := s.RefreshTokenIfNeeded(ctx, account); err != nil {
		return nil, err
	}

	payload, err := client.FetchBalance(ctx, account)
	if err != nil {
		return nil, err
	}

	snap, err := snapshots.Record(payload, account, kind, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.snapshots.Insert(ctx, snap); err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("account", account.Label()).
		Str("kind", string(kind)).
		Float64("total_assets", snap.TotalAssets).
		Msg("Balance snapshot stored")
	return snap, nil
}

// SyncDailyTrades fetches executions between start and end (inclusive) and
// upserts them. It returns the number of records stored and a failure per
// entry that could not be mapped or stored. A failure before any entry is
// processed is returned as the only failure.
func (s *Service) SyncDailyTrades(ctx context.Context, account *domain.Account, start, end time.Time) (int, []SyncFailure) {
	fail := func(err error) []SyncFailure {
		return []SyncFailure{{AccountName: account.Label(), Message: err.Error()}}
	}

	if end.Before(start) {
		return 0, fail(fmt.Errorf("end date %s is before start date %s", broker.FormatDate(end), broker.FormatDate(start)))
	}
	client, err := s.brokers.For(account)
	if err != nil {
		return 0, fail(err)
	}
	if err := s.RefreshTokenIfNeeded(ctx, account); err != nil {
		return 0, fail(err)
	}

	payload, err := client.FetchDailyTrades(ctx, account, start, end)
	if err != nil {
		return 0, fail(err)
	}
	if payload == nil || len(payload.Entries) == 0 {
		return 0, nil
	}

	records, normFailures := trades.Normalize(payload, account)
	stored, storeFailures := s.trades.UpsertAll(ctx, records)

	var failures []SyncFailure
	for _, err := range append(normFailures, storeFailures...) {
		failures = append(failures, SyncFailure{AccountName: account.Label(), Message: err.Error()})
	}

	s.log.Info().
		Str("account", account.Label()).
		Str("start", broker.FormatDate(start)).
		Str("end", broker.FormatDate(end)).
		Int("stored", stored).
		Int("failed", len(failures)).
		Msg("Daily trades synced")
	return stored, failures
}
