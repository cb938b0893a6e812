// Package notify posts background-loop failures to per-account webhooks.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/domain"
)

// DefaultCooldown suppresses repeats of the same account/loop failure
const DefaultCooldown = 30 * time.Minute

// maxContent is Discord's message length limit, in characters
const maxContent = 2000

// Notifier sends Discord-compatible webhook messages
type Notifier struct {
	http     *resty.Client
	cooldown time.Duration
	now      func() time.Time
	log      zerolog.Logger

	mu   sync.Mutex
	sent map[string]time.Time
}

// New creates a notifier. A zero cooldown uses DefaultCooldown.
func New(timeout, cooldown time.Duration, log zerolog.Logger) *Notifier {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		http:     resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
		cooldown: cooldown,
		now:      time.Now,
		log:      log.With().Str("component", "notifier").Logger(),
		sent:     make(map[string]time.Time),
	}
}

// NotifyFailure reports a failed account in loop. Accounts without a webhook
// are skipped. Errors are logged and never returned.
func (n *Notifier) NotifyFailure(ctx context.Context, account *domain.Account, loop, message string) {
	if n == nil || account.WebhookURL == "" {
		return
	}

	key := account.ID + "|" + loop
	now := n.now()
	n.mu.Lock()
	if last, ok := n.sent[key]; ok && now.Sub(last) < n.cooldown {
		n.mu.Unlock()
		return
	}
	n.sent[key] = now
	n.mu.Unlock()

	content := fmt.Sprintf("**%s** (%s %s) %s failed: %s", account.Label(), account.Broker, account.Mode, loop, message)
	content = truncateRunes(content, maxContent)

	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"content": content}).
		Post(account.WebhookURL)
	if err != nil {
		n.log.Warn().Err(err).Str("account_id", account.ID).Msg("Failed to send failure notification")
		return
	}
	if resp.IsError() {
		n.log.Warn().
			Int("status", resp.StatusCode()).
			Str("account_id", account.ID).
			Msg("Webhook rejected failure notification")
	}
}

// Reset forgets the cooldown for an account, e.g. after it recovers
func (n *Notifier) Reset(accountID, loop string) {
	if n == nil {
		return
	}
	n.mu.Lock()
	delete(n.sent, accountID+"|"+loop)
	n.mu.Unlock()
}

// truncateRunes cuts s to at most n characters without splitting a rune
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
