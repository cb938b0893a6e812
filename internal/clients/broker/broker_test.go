package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brokerwatch/internal/domain"
)

type stubClient struct {
	broker domain.Broker
}

func (s stubClient) Broker() domain.Broker { return s.broker }

func (s stubClient) Authenticate(context.Context, string, string, domain.Mode) (string, time.Time, error) {
	return "", time.Time{}, nil
}

func (s stubClient) FetchBalance(context.Context, *domain.Account) (*BalancePayload, error) {
	return &BalancePayload{}, nil
}

func (s stubClient) FetchDailyTrades(context.Context, *domain.Account, time.Time, time.Time) (*TradePayload, error) {
	return &TradePayload{}, nil
}

func TestRegistry_ResolvesByAccountBroker(t *testing.T) {
	registry := NewRegistry(stubClient{broker: domain.BrokerKIS}, stubClient{broker: domain.BrokerLS})

	c, err := registry.For(&domain.Account{Broker: domain.BrokerLS})
	require.NoError(t, err)
	assert.Equal(t, domain.BrokerLS, c.Broker())

	c, err = registry.Get(domain.BrokerKIS)
	require.NoError(t, err)
	assert.Equal(t, domain.BrokerKIS, c.Broker())
}

func TestRegistry_UnknownBroker(t *testing.T) {
	registry := NewRegistry(stubClient{broker: domain.BrokerKIS})

	_, err := registry.Get(domain.BrokerLS)
	assert.Error(t, err)

	_, err = registry.For(&domain.Account{Broker: domain.BrokerLS})
	assert.Error(t, err)
}

func TestStatus_SentinelsAreNotConflated(t *testing.T) {
	assert.True(t, KISStatus("0", "MCA00000", "ok").OK)
	assert.False(t, KISStatus("00000", "", "").OK)
	assert.False(t, KISStatus("1", "EGW00123", "expired token").OK)
	assert.Equal(t, "1/EGW00123", KISStatus("1", "EGW00123", "expired token").Code)

	assert.True(t, LSStatus("00000", "조회완료").OK)
	assert.False(t, LSStatus("0", "").OK)
	assert.False(t, LSStatus("IGW00121", "invalid token").OK)
}

func TestFlattenObject_StringifiesScalars(t *testing.T) {
	fields, err := FlattenObject(json.RawMessage(`{"pdno":"005930","hldg_qty":"10","janqty":7,"price":71500.5,"flag":true,"gone":null}`))
	require.NoError(t, err)

	assert.Equal(t, "005930", fields.Get("pdno"))
	assert.Equal(t, "10", fields.Get("hldg_qty"))
	assert.Equal(t, "7", fields.Get("janqty"))
	assert.Equal(t, "71500.5", fields.Get("price"))
	assert.Equal(t, "true", fields.Get("flag"))
	assert.Equal(t, "", fields.Get("gone"))
	assert.Equal(t, "", fields.Get("missing"))
}

func TestFlattenObject_UnwrapsSingleElementArray(t *testing.T) {
	fields, err := FlattenObject(json.RawMessage(`[{"dnca_tot_amt":"1000"}]`))
	require.NoError(t, err)
	assert.Equal(t, "1000", fields.Get("dnca_tot_amt"))

	fields, err = FlattenObject(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestFlattenList(t *testing.T) {
	list, err := FlattenList(json.RawMessage(`[{"odno":"1"},{"odno":"2"}]`))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2", list[1].Get("odno"))

	list, err = FlattenList(json.RawMessage(`{"odno":"9"}`))
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = FlattenList(nil)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = FlattenList(json.RawMessage(`"oops"`))
	assert.Error(t, err)
}

func TestDates(t *testing.T) {
	// 16:00 UTC is already the next day in Seoul
	assert.Equal(t, "20260303", FormatDate(time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)))
	assert.Equal(t, "20260302", NormalizeDate("2026-03-02"))
	assert.Equal(t, "20260302", NormalizeDate("2026/03/02"))
	assert.Equal(t, "20260302", NormalizeDate("20260302"))
}

func TestNewLimiter(t *testing.T) {
	unlimited := NewLimiter(0)
	assert.True(t, unlimited.Allow())

	limited := NewLimiter(2)
	assert.Equal(t, 2, limited.Burst())
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "0"},
		{"   ", "0"},
		{"1,000,000", "1000000"},
		{"+12.50", "12.5"},
		{"-3", "-3"},
		{"00000000070000", "70000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDecimal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}

	_, err := ParseDecimal("N/A")
	assert.Error(t, err)

	f := Fields{"qty": " 15 "}
	d, err := f.Decimal("qty")
	require.NoError(t, err)
	assert.Equal(t, int64(15), d.IntPart())
	d, err = f.Decimal("missing")
	require.NoError(t, err)
	assert.True(t, d.IsZero())
}
