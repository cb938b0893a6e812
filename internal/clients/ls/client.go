// Package ls is the LS Securities adapter.
package ls

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/brokerwatch/internal/clients/broker"
	"github.com/aristath/brokerwatch/internal/domain"
	"github.com/aristath/brokerwatch/internal/tokens"
)

const (
	DefaultPaperURL = "https://openapi.ls-sec.co.kr:29443"
	DefaultLiveURL  = "https://openapi.ls-sec.co.kr:8080"

	tokenPath   = "/oauth2/token"
	accountPath = "/stock/accno"

	// LS uses the same tr_cd in both modes; only the host differs
	trBalance     = "t0424"
	trDailyTrades = "CDPCQ04700"

	defaultExpiresIn = 86400
)

// Config holds LS client configuration
type Config struct {
	PaperURL string
	LiveURL  string
	Timeout  time.Duration
	Limiter  *rate.Limiter
	Observer broker.Observer
}

// Client talks to the LS open API
type Client struct {
	http     *resty.Client
	urls     map[domain.Mode]string
	limiter  *rate.Limiter
	observer broker.Observer
	now      func() time.Time
	log      zerolog.Logger
}

// NewClient creates an LS client
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
		log:      log.With().Str("client", "ls").Logger(),
	}
}

// Broker implements broker.Client
func (c *Client) Broker() domain.Broker { return domain.BrokerLS }

func (c *Client) baseURL(mode domain.Mode) (string, error) {
	u, ok := c.urls[mode]
	if !ok {
		return "", fmt.Errorf("unknown account mode %q", mode)
	}
	return u, nil
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   json.RawMessage `json:"expires_in"`
}

// Authenticate implements broker.Client
func (c *Client) Authenticate(ctx context.Context, appKey, appSecret string, mode domain.Mode) (token string, expiry time.Time, err error) {
	start := time.Now()
	defer func() { c.observer.ObserveRequest(domain.BrokerLS, "authenticate", time.Since(start), err) }()

	base, err := c.baseURL(mode)
	if err != nil {
		return "", time.Time{}, &domain.AuthError{Broker: domain.BrokerLS, Err: err}
	}
	if err := broker.Wait(ctx, c.limiter); err != nil {
		return "", time.Time{}, &domain.AuthError{Broker: domain.BrokerLS, Err: err}
	}

	var body tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":   "client_credentials",
			"appkey":       appKey,
			"appsecretkey": appSecret,
			"scope":        "oob",
		}).
		SetResult(&body).
		Post(base + tokenPath)
	if err != nil {
		return "", time.Time{}, &domain.AuthError{Broker: domain.BrokerLS, Err: err}
	}
	if resp.IsError() {
		return "", time.Time{}, &domain.AuthError{
			Broker:     domain.BrokerLS,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("token endpoint returned %s: %s", resp.Status(), broker.Truncate(resp.String())),
		}
	}
	if body.AccessToken == "" {
		return "", time.Time{}, &domain.AuthError{Broker: domain.BrokerLS, Err: fmt.Errorf("response has no access_token")}
	}

	seconds, err := parseExpiresIn(body.ExpiresIn)
	if err != nil {
		return "", time.Time{}, &domain.AuthError{Broker: domain.BrokerLS, Err: err}
	}

	expiry = tokens.ExpiryFromSeconds(c.now(), seconds)
	c.log.Debug().Str("mode", string(mode)).Time("expires_at", expiry).Msg("Issued access token")
	return body.AccessToken, expiry, nil
}

// parseExpiresIn accepts a number or a numeric string; absent means one day
func parseExpiresIn(raw json.RawMessage) (int64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return defaultExpiresIn, nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("failed to parse expires_in %q", s)
	}
	return int64(n), nil
}

func (c *Client) post(ctx context.Context, account *domain.Account, operation, trCD string, body interface{}) (map[string]json.RawMessage, error) {
	base, err := c.baseURL(account.Mode)
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerLS, Operation: operation, Err: err}
	}
	if err := broker.Wait(ctx, c.limiter); err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerLS, Operation: operation, Err: err}
	}

	var out map[string]json.RawMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"Content-Type":  "application/json; charset=utf-8",
			"authorization": "Bearer " + account.AccessToken,
			"tr_cd":         trCD,
			"tr_cont":       "N",
			"tr_cont_key":   "",
			"mac_address":   account.MACAddress,
		}).
		SetBody(body).
		SetResult(&out).
		Post(base + accountPath)
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerLS, Operation: operation, Err: err}
	}
	if resp.IsError() {
		return nil, &domain.FetchError{
			Broker:     domain.BrokerLS,
			Operation:  operation,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("%s: %s", resp.Status(), broker.Truncate(resp.String())),
		}
	}

	status := broker.LSStatus(rawString(out["rsp_cd"]), rawString(out["rsp_msg"]))
	if !status.OK {
		return nil, &domain.FetchError{Broker: domain.BrokerLS, Operation: operation, Code: status.Code, Message: status.Message}
	}
	return out, nil
}

// FetchBalance implements broker.Client using t0424
func (c *Client) FetchBalance(ctx context.Context, account *domain.Account) (payload *broker.BalancePayload, err error) {
	start := time.Now()
	defer func() { c.observer.ObserveRequest(domain.BrokerLS, "balance", time.Since(start), err) }()

	out, err := c.post(ctx, account, "balance", trBalance, map[string]interface{}{
		"t0424InBlock": map[string]string{
			"prcgb":       "1",
			"chegb":       "1",
			"dangb":       "1",
			"charge":      "1",
			"cts_expcode": "",
		},
	})
	if err != nil {
		return nil, err
	}

	holdings, err := broker.FlattenList(out["t0424OutBlock1"])
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerLS, Operation: "balance", Err: fmt.Errorf("t0424OutBlock1: %w", err)}
	}
	summary, err := broker.FlattenObject(out["t0424OutBlock"])
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerLS, Operation: "balance", Err: fmt.Errorf("t0424OutBlock: %w", err)}
	}

	return &broker.BalancePayload{Holdings: holdings, Summary: summary}, nil
}

// FetchDailyTrades implements broker.Client using CDPCQ04700
func (c *Client) FetchDailyTrades(ctx context.Context, account *domain.Account, from, to time.Time) (payload *broker.TradePayload, err error) {
	start := time.Now()
	defer func() { c.observer.ObserveRequest(domain.BrokerLS, "daily_trades", time.Since(start), err) }()

	out, err := c.post(ctx, account, "daily_trades", trDailyTrades, map[string]interface{}{
		"CDPCQ04700InBlock1": map[string]string{
			"QryTp":         "0",
			"QrySrtDt":      broker.FormatDate(from),
			"QryEndDt":      broker.FormatDate(to),
			"SrtNo":         "0",
			"PdptnCode":     "01",
			"IsuLgclssCode": "01",
			"IsuNo":         "",
		},
	})
	if err != nil {
		return nil, err
	}

	entries, err := broker.FlattenList(out["CDPCQ04700OutBlock3"])
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerLS, Operation: "daily_trades", Err: fmt.Errorf("CDPCQ04700OutBlock3: %w", err)}
	}

	// Trade totals live in OutBlock5, the profit/loss totals in OutBlock4
	summary, err := broker.FlattenObject(out["CDPCQ04700OutBlock5"])
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerLS, Operation: "daily_trades", Err: fmt.Errorf("CDPCQ04700OutBlock5: %w", err)}
	}
	pnl, err := broker.FlattenObject(out["CDPCQ04700OutBlock4"])
	if err != nil {
		return nil, &domain.FetchError{Broker: domain.BrokerLS, Operation: "daily_trades", Err: fmt.Errorf("CDPCQ04700OutBlock4: %w", err)}
	}
	for k, v := range pnl {
		if _, exists := summary[k]; !exists {
			summary[k] = v
		}
	}

	return &broker.TradePayload{Entries: entries, Summary: summary}, nil
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
