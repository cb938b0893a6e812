// Package broker defines the broker-agnostic client contract and the registry
// used to resolve a concrete KIS or LS adapter for an account.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/brokerwatch/internal/domain"
)

// Client is implemented once per broker
type Client interface {
	// Broker returns the broker this client talks to
	Broker() domain.Broker

	// Authenticate exchanges app credentials for an access token and its expiry.
	// Fails with *domain.AuthError.
	Authenticate(ctx context.Context, appKey, appSecret string, mode domain.Mode) (string, time.Time, error)

	// FetchBalance returns the holdings list and summary block for an account.
	// Fails with *domain.FetchError.
	FetchBalance(ctx context.Context, account *domain.Account) (*BalancePayload, error)

	// FetchDailyTrades returns executions between start and end, both inclusive.
	// Fails with *domain.FetchError.
	FetchDailyTrades(ctx context.Context, account *domain.Account, start, end time.Time) (*TradePayload, error)
}

// Observer receives timing for every broker request
type Observer interface {
	ObserveRequest(broker domain.Broker, operation string, duration time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(domain.Broker, string, time.Duration, error) {}

// NopObserver discards request observations
var NopObserver Observer = nopObserver{}

// Registry maps broker identifiers to clients
type Registry struct {
	mu      sync.RWMutex
	clients map[domain.Broker]Client
}

// NewRegistry creates a registry with the given clients registered
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[domain.Broker]Client, len(clients))}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the client for its broker
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Broker()] = c
}

// Get returns the client registered for b
func (r *Registry) Get(b domain.Broker) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[b]
	if !ok {
		return nil, fmt.Errorf("unsupported broker %q", b)
	}
	return c, nil
}

// For resolves the client for an account
func (r *Registry) For(account *domain.Account) (Client, error) {
	return r.Get(account.Broker)
}
