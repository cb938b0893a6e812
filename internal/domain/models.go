package domain

import "time"

// Account is a broker credential and identity record.
// Token fields are only mutated by the refresh path.
type Account struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	Broker         Broker     `json:"broker"`
	Name           string     `json:"name"`
	AccountNo      string     `json:"account_no"`
	ProductCode    string     `json:"product_code"`
	Mode           Mode       `json:"mode"`
	HTSID          string     `json:"hts_id,omitempty"`
	AppKey         string     `json:"app_key"`
	AppSecret      string     `json:"-"`
	MACAddress     string     `json:"mac_address,omitempty"`
	AccessToken    string     `json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	Active         bool       `json:"active"`
	WebhookURL     string     `json:"webhook_url,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Label is the human-facing identifier used in logs and failure reports
func (a *Account) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.AccountNo
}

// HasToken reports whether the account carries any access token
func (a *Account) HasToken() bool {
	return a.AccessToken != ""
}

// TradeSummary holds per-query aggregates the broker returns alongside the
// trade list. They are copied onto every record of that query.
type TradeSummary struct {
	TotalOrderQty       int64   `json:"total_order_qty"`
	TotalExecutedQty    int64   `json:"total_executed_qty"`
	TotalExecutedAmount float64 `json:"total_executed_amount"`
	EstimatedCost       float64 `json:"estimated_cost"`
	AveragePrice        float64 `json:"average_price"`
}

// TradeRecord is one executed or partially executed order.
// (AccountID, OrderDate, OrderNo) is the natural key.
type TradeRecord struct {
	ID             string            `json:"id"`
	AccountID      string            `json:"account_id"`
	OrderDate      string            `json:"order_date"` // YYYYMMDD
	OrderNo        string            `json:"order_no"`
	OrderTime      string            `json:"order_time"` // HHMMSS
	StockCode      string            `json:"stock_code"`
	StockName      string            `json:"stock_name"`
	Side           OrderSide         `json:"side"`
	OrderPrice     float64           `json:"order_price"`
	OrderQty       int64             `json:"order_qty"`
	ExecutedPrice  float64           `json:"executed_price"`
	ExecutedQty    int64             `json:"executed_qty"`
	ExecutedAmount float64           `json:"executed_amount"`
	RemainingQty   int64             `json:"remaining_qty"`
	CancelledQty   int64             `json:"cancelled_qty"`
	Summary        TradeSummary      `json:"summary"`
	Extra          map[string]string `json:"extra,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Holding is one position embedded in a balance snapshot
type Holding struct {
	StockCode      string  `json:"stock_code"`
	StockName      string  `json:"stock_name"`
	Quantity       int64   `json:"quantity"`
	PurchasePrice  float64 `json:"purchase_price"`
	CurrentPrice   float64 `json:"current_price"`
	EvalAmount     float64 `json:"eval_amount"`
	ProfitLoss     float64 `json:"profit_loss"`
	ProfitLossRate float64 `json:"profit_loss_rate"`
}

// BalanceSnapshot is an immutable per-poll record of an account balance
type BalanceSnapshot struct {
	ID                string       `json:"id"`
	AccountID         string       `json:"account_id"`
	Kind              SnapshotKind `json:"kind"`
	RecordedAt        time.Time    `json:"recorded_at"`
	CashBalance       float64      `json:"cash_balance"`
	AvailableBalance  float64      `json:"available_balance"`
	TotalAssets       float64      `json:"total_assets"`
	PurchaseAmount    float64      `json:"purchase_amount"`
	EvalAmount        float64      `json:"eval_amount"`
	ProfitLoss        float64      `json:"profit_loss"`
	ProfitLossRate    float64      `json:"profit_loss_rate"`
	AssetChangeAmount float64      `json:"asset_change_amount"`
	AssetChangeRate   float64      `json:"asset_change_rate"`
	Holdings          []Holding    `json:"holdings"`
}
