package snapshots

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/domain"
)

const snapshotColumns = `id, account_id, kind, recorded_at, cash_balance, available_balance, total_assets,
	purchase_amount, eval_amount, profit_loss, profit_loss_rate, asset_change_amount, asset_change_rate, holdings`

// Repository stores balance snapshots. Rows are never updated.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Insert appends snap
func (r *Repository) Insert(ctx context.Context, snap *domain.BalanceSnapshot) error {
	holdings := snap.Holdings
	if holdings == nil {
		holdings = []domain.Holding{}
	}
	encoded, err := json.Marshal(holdings)
	if err != nil {
		return &domain.PersistenceError{Op: "encode holdings", Err: err}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO balance_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.AccountID, string(snap.Kind), snap.RecordedAt.UnixMilli(), snap.CashBalance,
		snap.AvailableBalance, snap.TotalAssets, snap.PurchaseAmount, snap.EvalAmount, snap.ProfitLoss,
		snap.ProfitLossRate, snap.AssetChangeAmount, snap.AssetChangeRate, string(encoded))
	if err != nil {
		return &domain.PersistenceError{Op: "insert balance snapshot", Err: err}
	}
	return nil
}

// Range returns snapshots of accountID recorded in [start, end], oldest first.
// An empty kind matches every kind.
func (r *Repository) Range(ctx context.Context, accountID string, kind domain.SnapshotKind, start, end time.Time) ([]domain.BalanceSnapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM balance_snapshots WHERE account_id = ? AND recorded_at BETWEEN ? AND ?"
	args := []interface{}{accountID, start.UnixMilli(), end.UnixMilli()}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY recorded_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.BalanceSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return out, nil
}

// Latest returns the newest snapshot of accountID, or nil when there is none
func (r *Repository) Latest(ctx context.Context, accountID string, kind domain.SnapshotKind) (*domain.BalanceSnapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM balance_snapshots WHERE account_id = ?"
	args := []interface{}{accountID}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY recorded_at DESC LIMIT 1"

	snap, err := scanSnapshot(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return snap, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(s scanner) (*domain.BalanceSnapshot, error) {
	var (
		snap       domain.BalanceSnapshot
		kind       string
		recordedAt int64
		holdings   string
	)
	err := s.Scan(&snap.ID, &snap.AccountID, &kind, &recordedAt, &snap.CashBalance, &snap.AvailableBalance,
		&snap.TotalAssets, &snap.PurchaseAmount, &snap.EvalAmount, &snap.ProfitLoss, &snap.ProfitLossRate,
		&snap.AssetChangeAmount, &snap.AssetChangeRate, &holdings)
	if err != nil {
		return nil, err
	}
	snap.Kind = domain.SnapshotKind(kind)
	snap.RecordedAt = time.UnixMilli(recordedAt)
	if err := json.Unmarshal([]byte(holdings), &snap.Holdings); err != nil {
		return nil, fmt.Errorf("failed to decode holdings: %w", err)
	}
	return &snap, nil
}
