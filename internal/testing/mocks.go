package testing

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aristath/brokerwatch/internal/clients/broker"
	"github.com/aristath/brokerwatch/internal/domain"
)

// MockBrokerClient is a testify mock of broker.Client
type MockBrokerClient struct {
	mock.Mock
	BrokerID domain.Broker
}

// NewMockBrokerClient creates a mock client for b
func NewMockBrokerClient(b domain.Broker) *MockBrokerClient {
	return &MockBrokerClient{BrokerID: b}
}

func (m *MockBrokerClient) Broker() domain.Broker { return m.BrokerID }

func (m *MockBrokerClient) Authenticate(ctx context.Context, appKey, appSecret string, mode domain.Mode) (string, time.Time, error) {
	args := m.Called(ctx, appKey, appSecret, mode)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockBrokerClient) FetchBalance(ctx context.Context, account *domain.Account) (*broker.BalancePayload, error) {
	args := m.Called(ctx, account)
	if p, ok := args.Get(0).(*broker.BalancePayload); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBrokerClient) FetchDailyTrades(ctx context.Context, account *domain.Account, start, end time.Time) (*broker.TradePayload, error) {
	args := m.Called(ctx, account, start, end)
	if p, ok := args.Get(0).(*broker.TradePayload); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
