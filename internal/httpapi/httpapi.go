// Package httpapi holds the response helpers and account resolution shared
// by the module handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/domain"
	"github.com/aristath/brokerwatch/internal/modules/accounts"
	"github.com/aristath/brokerwatch/internal/tokens"
)

// OwnerHeader carries the caller's owner id; authentication happens upstream
const OwnerHeader = "X-Owner-ID"

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteMessage writes {"error": message} with status
func WriteMessage(w http.ResponseWriter, log zerolog.Logger, status int, message string) {
	WriteJSON(w, log, status, map[string]string{"error": message})
}

// WriteError maps err to a status code and writes it. Server-side failures
// are logged and their details withheld.
func WriteError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		log.Error().Err(err).Msg("Request failed")
		WriteMessage(w, log, status, "internal error")
		return
	}
	WriteMessage(w, log, status, err.Error())
}

// StatusFor returns the HTTP status for an error from the core
func StatusFor(err error) int {
	var (
		authErr  *domain.AuthError
		fetchErr *domain.FetchError
		normErr  *domain.NormalizationError
	)
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccountInactive):
		return http.StatusBadRequest
	case errors.As(err, &authErr), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.As(err, &normErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes the request body into v
func DecodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// AccountLoader resolves the {id} route parameter to an account owned by the caller
type AccountLoader struct {
	repo *accounts.Repository
	log  zerolog.Logger
}

// NewAccountLoader creates a loader backed by repo
func NewAccountLoader(repo *accounts.Repository, log zerolog.Logger) *AccountLoader {
	return &AccountLoader{repo: repo, log: log}
}

// Load returns the account or writes the error response and returns nil.
// Accounts owned by someone else look missing.
func (l *AccountLoader) Load(w http.ResponseWriter, r *http.Request) *domain.Account {
	owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if owner == "" {
		WriteMessage(w, l.log, http.StatusUnauthorized, "missing "+OwnerHeader+" header")
		return nil
	}

	account, err := l.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, l.log, err)
		return nil
	}
	if account == nil || account.OwnerID != owner {
		WriteError(w, l.log, domain.ErrAccountNotFound)
		return nil
	}
	return account
}

// ParseDate accepts YYYY-MM-DD or YYYYMMDD and returns midnight KST of that day
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layout := "20060102"
	if strings.Contains(s, "-") {
		layout = "2006-01-02"
	}
	return time.ParseInLocation(layout, s, tokens.KST)
}

// ParseInstant accepts RFC3339 or a plain date (midnight KST)
func ParseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(s)); err == nil {
		return t, nil
	}
	return ParseDate(s)
}
