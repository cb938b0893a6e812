// Package snapshots turns broker balance payloads into append-only balance
// snapshots and serves their history.
package snapshots

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aristath/brokerwatch/internal/clients/broker"
	"github.com/aristath/brokerwatch/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// balanceMapping lists, per canonical field, the broker keys to try in order
type balanceMapping struct {
	summary   map[string][]string
	holding   map[string][]string
	stockCode func(string) string
}

var balanceMappings = map[domain.Broker]balanceMapping{
	domain.BrokerKIS: {
		summary: map[string][]string{
			"cash_balance":        {"dnca_tot_amt"},
			"available_balance":   {"prvs_rcdl_excc_amt"},
			"total_assets":        {"tot_evlu_amt"},
			"purchase_amount":     {"pchs_amt_smtl_amt", "pchs_amt_smtl"},
			"eval_amount":         {"evlu_amt_smtl_amt", "evlu_amt_smtl"},
			"profit_loss":         {"evlu_pfls_smtl_amt", "evlu_pfls_smtl"},
			"asset_change_amount": {"asst_icdc_amt"},
			"asset_change_rate":   {"asst_icdc_rt"},
		},
		holding: map[string][]string{
			"stock_code":       {"pdno"},
			"stock_name":       {"prdt_name"},
			"quantity":         {"hldg_qty"},
			"purchase_price":   {"pchs_avg_pric"},
			"current_price":    {"prpr"},
			"eval_amount":      {"evlu_amt"},
			"profit_loss":      {"evlu_pfls_amt"},
			"profit_loss_rate": {"evlu_pfls_rt"},
		},
		stockCode: func(s string) string { return s },
	},
	domain.BrokerLS: {
		summary: map[string][]string{
			"cash_balance":      {"sunamt"},
			"available_balance": {"sunamt1"},
			"total_assets":      {"tappamt"},
			"purchase_amount":   {"mamt"},
			"eval_amount":       {"tappamt"},
			"profit_loss":       {"tdtsunik"},
		},
		holding: map[string][]string{
			"stock_code":       {"expcode"},
			"stock_name":       {"hname"},
			"quantity":         {"janqty"},
			"purchase_price":   {"pamt"},
			"current_price":    {"price"},
			"eval_amount":      {"appamt"},
			"profit_loss":      {"dtsunik"},
			"profit_loss_rate": {"sunikrt"},
		},
		stockCode: func(s string) string {
			if len(s) == 7 && s[0] == 'A' {
				return s[1:]
			}
			return s
		},
	},
}

// Record builds an unsaved snapshot from a balance payload
func Record(payload *broker.BalancePayload, account *domain.Account, kind domain.SnapshotKind, at time.Time) (*domain.BalanceSnapshot, error) {
	if payload == nil {
		return nil, &domain.NormalizationError{Field: "balance", Err: fmt.Errorf("empty payload")}
	}
	m, ok := balanceMappings[account.Broker]
	if !ok {
		return nil, &domain.NormalizationError{Field: "broker", Value: string(account.Broker), Err: fmt.Errorf("no balance mapping")}
	}

	s := reader{fields: payload.Summary, keys: m.summary}
	purchase := s.number("purchase_amount")
	profitLoss := s.number("profit_loss")

	snap := &domain.BalanceSnapshot{
		ID:                uuid.New().String(),
		AccountID:         account.ID,
		Kind:              kind,
		RecordedAt:        at.Truncate(time.Millisecond),
		CashBalance:       s.float("cash_balance"),
		AvailableBalance:  s.float("available_balance"),
		TotalAssets:       s.float("total_assets"),
		PurchaseAmount:    purchase.InexactFloat64(),
		EvalAmount:        s.float("eval_amount"),
		ProfitLoss:        profitLoss.InexactFloat64(),
		ProfitLossRate:    ProfitLossRate(profitLoss, purchase),
		AssetChangeAmount: s.float("asset_change_amount"),
		AssetChangeRate:   s.float("asset_change_rate"),
		Holdings:          make([]domain.Holding, 0, len(payload.Holdings)),
	}
	if s.err != nil {
		return nil, s.err
	}

	for _, raw := range payload.Holdings {
		h := reader{fields: raw, keys: m.holding}
		holding := domain.Holding{
			StockCode:      m.stockCode(h.text("stock_code")),
			StockName:      h.text("stock_name"),
			Quantity:       h.number("quantity").IntPart(),
			PurchasePrice:  h.float("purchase_price"),
			CurrentPrice:   h.float("current_price"),
			EvalAmount:     h.float("eval_amount"),
			ProfitLoss:     h.float("profit_loss"),
			ProfitLossRate: h.float("profit_loss_rate"),
		}
		if h.err != nil {
			return nil, h.err
		}
		// KIS pads the list with empty rows on accounts without positions
		if holding.StockCode == "" {
			continue
		}
		snap.Holdings = append(snap.Holdings, holding)
	}

	return snap, nil
}

// ProfitLossRate is profitLoss / purchase * 100, or 0 when nothing was purchased
func ProfitLossRate(profitLoss, purchase decimal.Decimal) float64 {
	if !purchase.IsPositive() {
		return 0
	}
	return profitLoss.Div(purchase).Mul(hundred).Round(4).InexactFloat64()
}

type reader struct {
	fields broker.Fields
	keys   map[string][]string
	err    error
}

func (r *reader) text(field string) string {
	for _, key := range r.keys[field] {
		if v := r.fields.Get(key); v != "" {
			return v
		}
	}
	return ""
}

func (r *reader) number(field string) decimal.Decimal {
	raw := r.text(field)
	d, err := broker.ParseDecimal(raw)
	if err != nil && r.err == nil {
		r.err = &domain.NormalizationError{Field: field, Value: raw, Err: err}
	}
	return d
}

func (r *reader) float(field string) float64 {
	return r.number(field).InexactFloat64()
}
