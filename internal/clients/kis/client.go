// Package kis is the Korea Investment & Securities adapter.
package kis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/brokerwatch/internal/clients/broker"
	"github.com/aristath/brokerwatch/internal/domain"
	"github.com/aristath/brokerwatch/internal/tokens"
)

const (
	DefaultPaperURL = "https://openapivts.koreainvestment.com:29443"
	DefaultLiveURL  = "https://openapi.koreainvestment.com:9443"

	tokenPath       = "/oauth2/tokenP"
	balancePath     = "/uapi/domestic-stock/v1/trading/inquire-balance"
	dailyTradesPath = "/uapi/domestic-stock/v1/trading/inquire-daily-ccld"
)

// Transaction ids are mode specific; sending a live id to the paper host is rejected
var trIDs = map[string]map[domain.Mode]string{
	"balance":      {domain.ModePaper: "VTTC8434R", domain.ModeLive: "TTTC8434R"},
	"daily_trades": {domain.ModePaper: "VTTC8001R", domain.ModeLive: "TTTC8001R"},
}

// TrID returns the transaction id for an operation in a mode
func TrID(operation string, mode domain.Mode) (string, error) {
	ids, ok := trIDs[operation]
	if !ok {
		return "", fmt.Errorf("unknown KIS operation %q", operation)
	}
	id, ok := ids[mode]
	if !ok {
		return "", fmt.Errorf("unknown account mode %q", mode)
	}
	return id, nil
}

// Config holds KIS client configuration
type Config struct {
	PaperURL string
	LiveURL  string
	Timeout  time.Duration
	Limiter  *rate.Limiter
	Observer broker.Observer
}

// Client talks to the KIS open API
type Client struct {
	http     *resty.Client
	urls     map[domain.Mode]string
	limiter  *rate.Limiter
	observer broker.Observer
	now      func() time.Time
	log      zerolog.Logger
}

// NewClient creates a KIS client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.PaperURL == "" {
		cfg.PaperURL = DefaultPaperURL
	}
	if cfg.LiveURL == "" {
		cfg.LiveURL = DefaultLiveURL
	}
	if cfg.Observer == nil {
		cfg.Observer = broker.NopObserver
	}

	return &Client{
		http:     broker.NewHTTPClient(broker.TransportConfig{Timeout: cfg.Timeout}),
		urls:     map[domain.Mode]string{domain.ModePaper: cfg.PaperURL, domain.ModeLive: cfg.LiveURL},
		limiter:  cfg.Limiter,
		observer: cfg.Observer,
		now:      time.Now,
		log:      log.With().Str("client", "kis").Logger(),
	}
}

// Broker implements broker.Client
func (c *Client) Broker() domain.Broker { return domain.BrokerKIS }

func (c *Client) baseURL(mode domain.Mode) (string, error) {
	u, ok := c.urls[mode]
	if !ok {
		return "", fmt.Errorf("unknown account mode %q", mode)
	}
	return u, nil
}

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	AppSecret string `json:"appsecret"`
}

type tokenResponse struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int64  `json:"expires_in"`
	AccessTokenExpired string `json:"access_token_token_expired"`
}

// Authenticate implements broker.Client
func (c *Client) Authenticate(ctx context.Context, appKey, appSecret string, mode domain.Mode) (token string, expiry time.Time, err error) {
	start := time.Now()
	defer func() { c.observer.ObserveRequest(domain.BrokerKIS, "authenticate", time.Since(start), err) }()

	base, err := c.baseURL(mode)
	if err != nil {
		return "", time.Time{}, &domain.AuthError{Broker: domain.BrokerKIS, Err: err}
	}
	if err := broker.Wait(ctx, c.limiter); err != nil {
		return "", time.Time{}, &domain.AuthError{Broker: domain.BrokerKIS, Err: err}
	}

	var body tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(tokenRequest{GrantType: "client_credentials", AppKey: appKey, AppSecret: appSecret}).
		SetResult(&body).
		Post(base + tokenPath)
	if err != nil {
		return "", time.Time{}, &domain.AuthError{Broker: domain.BrokerKIS, Err: err}
	}
	if resp.IsError() {
		return "", time.Time{}, &domain.AuthError{
			Broker:     domain.BrokerKIS,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("token endpoint returned %s: %s", resp.Status(), broker.Truncate(resp.String())),
		}
	}
	if body.AccessToken == "" {
		return "", time.Time{}, &domain.AuthError{Broker: domain.BrokerKIS, Err: fmt.Errorf("response has no access_token")}
	}

	switch {
	case body.AccessTokenExpired != "":
		expiry, err = tokens.ParseKSTDateTime(body.AccessTokenExpired)
		if err != nil {
			return "", time.Time{}, &domain.AuthError{Broker: domain.BrokerKIS, Err: err}
		}
	case body.ExpiresIn > 0:
		expiry = tokens.ExpiryFromSeconds(c.now(), body.ExpiresIn)
	default:
		return "", time.Time{}, &domain.AuthError{Broker: domain.BrokerKIS, Err: fmt.Errorf("response has no expiry")}
	}

	c.log.Debug().Str("mode", string(mode)).Time("expires_at", expiry).Msg("Issued access token")
	return body.AccessToken, expiry, nil
}

// envelope is the common KIS inquiry response shape
type envelope struct {
	RtCd    string          `json:"rt_cd"`
	MsgCd   string          `json:"msg_cd"`
	Msg1    string          `json:"msg1"`
	Output1 json.RawMessage `json:"output1"`
	Output2 json.RawMessage `json:"output2"`
}

func (c *Client) inquire(ctx context.Context, account *domain.Account, operation, path string, params map[string]string) (*envelope, error) {
	base, err := c.baseURL(account.Mode)
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerKIS, Operation: operation, Err: err}
	}
	trID, err := TrID(operation, account.Mode)
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerKIS, Operation: operation, Err: err}
	}
	if err := broker.Wait(ctx, c.limiter); err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerKIS, Operation: operation, Err: err}
	}

	var body envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"Content-Type":  "application/json",
			"authorization": "Bearer " + account.AccessToken,
			"appkey":        account.AppKey,
			"appsecret":     account.AppSecret,
			"tr_id":         trID,
			"custtype":      "P",
		}).
		SetQueryParams(params).
		SetResult(&body).
		Get(base + path)
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerKIS, Operation: operation, Err: err}
	}
	if resp.IsError() {
		return nil, &domain.FetchError{
			Broker:     domain.BrokerKIS,
			Operation:  operation,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("%s: %s", http.StatusText(resp.StatusCode()), broker.Truncate(resp.String())),
		}
	}

	status := broker.KISStatus(body.RtCd, body.MsgCd, body.Msg1)
	if !status.OK {
		return nil, &domain.FetchError{Broker: domain.BrokerKIS, Operation: operation, Code: status.Code, Message: status.Message}
	}
	return &body, nil
}

// FetchBalance implements broker.Client
func (c *Client) FetchBalance(ctx context.Context, account *domain.Account) (payload *broker.BalancePayload, err error) {
	start := time.Now()
	defer func() { c.observer.ObserveRequest(domain.BrokerKIS, "balance", time.Since(start), err) }()

	body, err := c.inquire(ctx, account, "balance", balancePath, map[string]string{
		"CANO":                  account.AccountNo,
		"ACNT_PRDT_CD":          account.ProductCode,
		"AFHR_FLPR_YN":          "N",
		"OFL_YN":                "",
		"INQR_DVSN":             "02",
		"UNPR_DVSN":             "01",
		"FUND_STTL_ICLD_YN":     "N",
		"FNCG_AMT_AUTO_RDPT_YN": "N",
		"PRCS_DVSN":             "00",
		"CTX_AREA_FK100":        "",
		"CTX_AREA_NK100":        "",
	})
	if err != nil {
		return nil, err
	}

	holdings, err := broker.FlattenList(body.Output1)
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerKIS, Operation: "balance", Err: fmt.Errorf("output1: %w", err)}
	}
	summary, err := broker.FlattenObject(body.Output2)
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerKIS, Operation: "balance", Err: fmt.Errorf("output2: %w", err)}
	}

	return &broker.BalancePayload{Holdings: holdings, Summary: summary}, nil
}

// FetchDailyTrades implements broker.Client
func (c *Client) FetchDailyTrades(ctx context.Context, account *domain.Account, from, to time.Time) (payload *broker.TradePayload, err error) {
	start := time.Now()
	defer func() { c.observer.ObserveRequest(domain.BrokerKIS, "daily_trades", time.Since(start), err) }()

	body, err := c.inquire(ctx, account, "daily_trades", dailyTradesPath, map[string]string{
		"CANO":            account.AccountNo,
		"ACNT_PRDT_CD":    account.ProductCode,
		"INQR_STRT_DT":    broker.FormatDate(from),
		"INQR_END_DT":     broker.FormatDate(to),
		"SLL_BUY_DVSN_CD": "00",
		"INQR_DVSN":       "00",
		"PDNO":            "",
		"CCLD_DVSN":       "00",
		"ORD_GNO_BRNO":    "",
		"ODNO":            "",
		"INQR_DVSN_3":     "00",
		"INQR_DVSN_1":     "",
		"INQR_DVSN_2":     "",
		"CTX_AREA_FK100":  "",
		"CTX_AREA_NK100":  "",
	})
	if err != nil {
		return nil, err
	}

	entries, err := broker.FlattenList(body.Output1)
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerKIS, Operation: "daily_trades", Err: fmt.Errorf("output1: %w", err)}
	}
	summary, err := broker.FlattenObject(body.Output2)
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerKIS, Operation: "daily_trades", Err: fmt.Errorf("output2: %w", err)}
	}

	return &broker.TradePayload{Entries: entries, Summary: summary}, nil
}
