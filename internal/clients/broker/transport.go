package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// TransportConfig configures the HTTP plumbing shared by broker adapters
type TransportConfig struct {
	Timeout time.Duration
}

// NewLimiter builds a limiter allowing rps requests per second with a small burst
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// NewHTTPClient returns a resty client with the configured timeout
func NewHTTPClient(cfg TransportConfig) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}

// Wait blocks until the limiter admits one request or ctx ends
func Wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// Truncate shortens a response body for inclusion in an error message
func Truncate(body string) string {
	const max = 256
	if len(body) <= max {
		return body
	}
	return body[:max] + "... (" + strconv.Itoa(len(body)) + " bytes)"
}
