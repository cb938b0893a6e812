package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brokerwatch/internal/domain"
	"github.com/aristath/brokerwatch/internal/tokens"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrAccountNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", domain.ErrAccountNotFound), http.StatusNotFound},
		{domain.ErrAccountInactive, http.StatusBadRequest},
		{&domain.AuthError{Broker: domain.BrokerKIS, Err: errors.New("x")}, http.StatusBadGateway},
		{fmt.Errorf("refresh: %w", &domain.FetchError{Broker: domain.BrokerLS, Code: "IGW"}), http.StatusBadGateway},
		{&domain.NormalizationError{Field: "order_no", Err: errors.New("missing")}, http.StatusUnprocessableEntity},
		{&domain.PersistenceError{Op: "insert", Err: errors.New("disk I/O")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, zerolog.Nop(), errors.New("database is locked at /data/brokerwatch.db"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "/data")

	w = httptest.NewRecorder()
	WriteError(w, zerolog.Nop(), &domain.FetchError{Broker: domain.BrokerKIS, Operation: "balance", StatusCode: 500, Err: errors.New("upstream")})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "status 500")
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, tokens.KST)
	for _, s := range []string{"2026-03-02", "20260302", " 2026-03-02 "} {
		got, err := ParseDate(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}
	_, err := ParseDate("03/02/2026")
	assert.Error(t, err)
}

func TestParseInstant(t *testing.T) {
	got, err := ParseInstant("2026-03-02T01:00:00Z")
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 2, 10, 0, 0, 0, tokens.KST).Equal(got))

	got, err = ParseInstant("2026-03-02")
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 2, 0, 0, 0, 0, tokens.KST).Equal(got))
}
