package trades

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/database"
	"github.com/aristath/brokerwatch/internal/domain"
)

const tradeColumns = `id, account_id, order_date, order_no, order_time, stock_code, stock_name, side,
	order_price, order_qty, executed_price, executed_qty, executed_amount, remaining_qty, cancelled_qty,
	total_order_qty, total_executed_qty, total_executed_amount, estimated_cost, average_price,
	extra, created_at, updated_at`

// Filter narrows a trade query. Dates are YYYYMMDD and inclusive; empty means unbounded.
type Filter struct {
	AccountID string
	StartDate string
	EndDate   string
	StockCode string
}

// Repository handles trade record persistence
type Repository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewRepository creates a new trade repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "trades").Logger(),
	}
}

// Upsert inserts rec or, when (account, order date, order number) already
// exists, overwrites its measurement fields. Runs in its own transaction.
func (r *Repository) Upsert(ctx context.Context, rec *domain.TradeRecord) error {
	extra, err := json.Marshal(rec.Extra)
	if err != nil {
		return &domain.PersistenceError{Op: "encode trade extras", Err: err}
	}
	if rec.Extra == nil {
		extra = []byte("{}")
	}

	now := r.now().Unix()
	id := uuid.New().String()

	err = database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trade_records (`+tradeColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (account_id, order_date, order_no) DO UPDATE SET
				order_time = excluded.order_time,
				stock_code = excluded.stock_code,
				stock_name = excluded.stock_name,
				side = excluded.side,
				order_price = excluded.order_price,
				order_qty = excluded.order_qty,
				executed_price = excluded.executed_price,
				executed_qty = excluded.executed_qty,
				executed_amount = excluded.executed_amount,
				remaining_qty = excluded.remaining_qty,
				cancelled_qty = excluded.cancelled_qty,
				total_order_qty = excluded.total_order_qty,
				total_executed_qty = excluded.total_executed_qty,
				total_executed_amount = excluded.total_executed_amount,
				estimated_cost = excluded.estimated_cost,
				average_price = excluded.average_price,
				extra = excluded.extra,
				updated_at = excluded.updated_at
		`, id, rec.AccountID, rec.OrderDate, rec.OrderNo, rec.OrderTime, rec.StockCode, rec.StockName,
			string(rec.Side), rec.OrderPrice, rec.OrderQty, rec.ExecutedPrice, rec.ExecutedQty,
			rec.ExecutedAmount, rec.RemainingQty, rec.CancelledQty,
			rec.Summary.TotalOrderQty, rec.Summary.TotalExecutedQty, rec.Summary.TotalExecutedAmount,
			rec.Summary.EstimatedCost, rec.Summary.AveragePrice, string(extra), now, now)
		return err
	})
	if err != nil {
		return &domain.PersistenceError{Op: fmt.Sprintf("upsert trade %s/%s", rec.OrderDate, rec.OrderNo), Err: err}
	}
	return nil
}

// UpsertAll upserts each record independently. It returns how many were
// stored and the failures of the rest.
func (r *Repository) UpsertAll(ctx context.Context, records []domain.TradeRecord) (int, []error) {
	stored := 0
	var failures []error
	for i := range records {
		if err := r.Upsert(ctx, &records[i]); err != nil {
			r.log.Warn().Err(err).
				Str("account_id", records[i].AccountID).
				Str("order_no", records[i].OrderNo).
				Msg("Failed to store trade record")
			failures = append(failures, err)
			continue
		}
		stored++
	}
	return stored, failures
}

// Get returns one trade by natural key, or nil
func (r *Repository) Get(ctx context.Context, accountID, orderDate, orderNo string) (*domain.TradeRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+tradeColumns+`
		FROM trade_records WHERE account_id = ? AND order_date = ? AND order_no = ?`,
		accountID, orderDate, orderNo)
	rec, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return rec, nil
}

// Query returns the trades matching f, newest first
func (r *Repository) Query(ctx context.Context, f Filter) ([]domain.TradeRecord, error) {
	query := "SELECT " + tradeColumns + " FROM trade_records WHERE account_id = ?"
	args := []interface{}{f.AccountID}
	if f.StartDate != "" {
		query += " AND order_date >= ?"
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		query += " AND order_date <= ?"
		args = append(args, f.EndDate)
	}
	if f.StockCode != "" {
		query += " AND stock_code = ?"
		args = append(args, f.StockCode)
	}
	query += " ORDER BY order_date DESC, order_time DESC, order_no DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.TradeRecord, error) {
	var (
		rec                  domain.TradeRecord
		side, extra          string
		createdAt, updatedAt int64
	)
	err := s.Scan(&rec.ID, &rec.AccountID, &rec.OrderDate, &rec.OrderNo, &rec.OrderTime, &rec.StockCode,
		&rec.StockName, &side, &rec.OrderPrice, &rec.OrderQty, &rec.ExecutedPrice, &rec.ExecutedQty,
		&rec.ExecutedAmount, &rec.RemainingQty, &rec.CancelledQty,
		&rec.Summary.TotalOrderQty, &rec.Summary.TotalExecutedQty, &rec.Summary.TotalExecutedAmount,
		&rec.Summary.EstimatedCost, &rec.Summary.AveragePrice, &extra, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.Side = domain.OrderSide(side)
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	if extra != "" && extra != "{}" {
		if err := json.Unmarshal([]byte(extra), &rec.Extra); err != nil {
			return nil, fmt.Errorf("failed to decode extras: %w", err)
		}
	}
	return &rec, nil
}
