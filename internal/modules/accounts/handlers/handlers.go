// Package handlers provides HTTP handlers for account management.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/domain"
	"github.com/aristath/brokerwatch/internal/httpapi"
	"github.com/aristath/brokerwatch/internal/modules/accounts"
	"github.com/aristath/brokerwatch/internal/tokens"
)

// TokenService refreshes account tokens
type TokenService interface {
	RefreshTokenIfNeeded(ctx context.Context, account *domain.Account) error
	ForceRefreshToken(ctx context.Context, account *domain.Account) error
	Threshold() time.Duration
}

// Handler handles account HTTP requests
type Handler struct {
	repo   *accounts.Repository
	tokens TokenService
	loader *httpapi.AccountLoader
	now    func() time.Time
	log    zerolog.Logger
}

// NewHandler creates a new account handler
func NewHandler(repo *accounts.Repository, tokens TokenService, log zerolog.Logger) *Handler {
	log = log.With().Str("handler", "accounts").Logger()
	return &Handler{
		repo:   repo,
		tokens: tokens,
		loader: httpapi.NewAccountLoader(repo, log),
		now:    time.Now,
		log:    log,
	}
}

// accountRequest is the create/update body. Empty strings on update keep
// the current value.
type accountRequest struct {
	Broker      string `json:"broker"`
	Name        string `json:"name"`
	AccountNo   string `json:"account_no"`
	ProductCode string `json:"product_code"`
	Mode        string `json:"mode"`
	HTSID       string `json:"hts_id"`
	AppKey      string `json:"app_key"`
	AppSecret   string `json:"app_secret"`
	MACAddress  string `json:"mac_address"`
	Active      *bool  `json:"active"`
	WebhookURL  string `json:"webhook_url"`
}

func (req accountRequest) apply(a *domain.Account) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	if req.Broker != "" {
		a.Broker = domain.Broker(req.Broker)
	}
	if req.Mode != "" {
		a.Mode = domain.Mode(req.Mode)
	}
	set(&a.Name, req.Name)
	set(&a.AccountNo, req.AccountNo)
	set(&a.ProductCode, req.ProductCode)
	set(&a.HTSID, req.HTSID)
	set(&a.AppKey, req.AppKey)
	set(&a.AppSecret, req.AppSecret)
	set(&a.MACAddress, req.MACAddress)
	set(&a.WebhookURL, req.WebhookURL)
	if req.Active != nil {
		a.Active = *req.Active
	}
}

// accountView is an account as returned by the API; secrets never appear
type accountView struct {
	*domain.Account
	TokenValid bool   `json:"token_valid"`
	TokenError string `json:"token_error,omitempty"`
}

func (h *Handler) view(a *domain.Account, tokenErr error) accountView {
	v := accountView{
		Account:    a,
		TokenValid: a.HasToken() && tokens.Valid(a.TokenExpiresAt, h.now(), h.tokens.Threshold()),
	}
	if tokenErr != nil {
		v.TokenError = tokenErr.Error()
	}
	return v
}

// refreshOnRead keeps the token of an active account fresh when it is looked
// at. A failure is reported alongside the account, not as a request error.
func (h *Handler) refreshOnRead(r *http.Request, a *domain.Account) error {
	if !a.Active {
		return nil
	}
	if err := h.tokens.RefreshTokenIfNeeded(r.Context(), a); err != nil {
		h.log.Warn().Err(err).Str("account_id", a.ID).Msg("On-demand token refresh failed")
		return err
	}
	return nil
}

// HandleList handles GET /api/accounts
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(httpapi.OwnerHeader)
	if owner == "" {
		httpapi.WriteMessage(w, h.log, http.StatusUnauthorized, "missing "+httpapi.OwnerHeader+" header")
		return
	}

	list, err := h.repo.ListByOwner(r.Context(), owner)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	views := make([]accountView, 0, len(list))
	for i := range list {
		views = append(views, h.view(&list[i], nil))
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"data": views})
}

// HandleCreate handles POST /api/accounts
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(httpapi.OwnerHeader)
	if owner == "" {
		httpapi.WriteMessage(w, h.log, http.StatusUnauthorized, "missing "+httpapi.OwnerHeader+" header")
		return
	}

	var req accountRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteMessage(w, h.log, http.StatusBadRequest, "invalid request body")
		return
	}

	account := &domain.Account{OwnerID: owner, Active: true}
	req.apply(account)
	if err := accounts.Validate(account); err != nil {
		httpapi.WriteMessage(w, h.log, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.Create(r.Context(), account); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusCreated, map[string]interface{}{"data": h.view(account, nil)})
}

// HandleGet handles GET /api/accounts/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	account := h.loader.Load(w, r)
	if account == nil {
		return
	}
	tokenErr := h.refreshOnRead(r, account)
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"data": h.view(account, tokenErr)})
}

// HandleUpdate handles PUT /api/accounts/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	account := h.loader.Load(w, r)
	if account == nil {
		return
	}

	var req accountRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteMessage(w, h.log, http.StatusBadRequest, "invalid request body")
		return
	}
	req.apply(account)
	if err := accounts.Validate(account); err != nil {
		httpapi.WriteMessage(w, h.log, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.Update(r.Context(), account); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	tokenErr := h.refreshOnRead(r, account)
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"data": h.view(account, tokenErr)})
}

// HandleDelete handles DELETE /api/accounts/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	account := h.loader.Load(w, r)
	if account == nil {
		return
	}
	if _, err := h.repo.Delete(r.Context(), account.ID); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRefreshToken handles POST /api/accounts/{id}/token
func (h *Handler) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	account := h.loader.Load(w, r)
	if account == nil {
		return
	}
	if err := h.tokens.ForceRefreshToken(r.Context(), account); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"account_id":       account.ID,
			"token_expires_at": account.TokenExpiresAt,
		},
	})
}
