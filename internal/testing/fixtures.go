package testing

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/aristath/brokerwatch/internal/domain"
)

// NewAccountFixture returns an active paper account with sensible defaults
func NewAccountFixture(id string, broker domain.Broker) domain.Account {
	return domain.Account{
		ID:          id,
		OwnerID:     "owner-1",
		Broker:      broker,
		Name:        "acct-" + id,
		AccountNo:   "5001" + id,
		ProductCode: "01",
		Mode:        domain.ModePaper,
		AppKey:      "key-" + id,
		AppSecret:   "secret-" + id,
		Active:      true,
	}
}

// InsertAccount writes an account row directly, bypassing the repository.
// Secrets are stored in plaintext.
func InsertAccount(t *testing.T, db *sql.DB, a domain.Account) domain.Account {
	t.Helper()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	var expiresAt interface{}
	if a.TokenExpiresAt != nil {
		expiresAt = a.TokenExpiresAt.Unix()
	}
	var token interface{}
	if a.AccessToken != "" {
		token = a.AccessToken
	}
	active := 0
	if a.Active {
		active = 1
	}

	_, err := db.Exec(`
		INSERT INTO accounts (id, owner_id, broker, name, account_no, product_code, mode, hts_id,
			app_key, app_secret, mac_address, access_token, token_expires_at, active, webhook_url,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.OwnerID, string(a.Broker), a.Name, a.AccountNo, a.ProductCode, string(a.Mode), a.HTSID,
		a.AppKey, a.AppSecret, a.MACAddress, token, expiresAt, active, a.WebhookURL,
		a.CreatedAt.Unix(), a.CreatedAt.Unix())
	if err != nil {
		t.Fatalf("Failed to insert account fixture %s: %v", a.ID, err)
	}
	return a
}

// CountRows returns the number of rows in table matching an optional where clause
func CountRows(t *testing.T, db *sql.DB, table, where string, args ...interface{}) int {
	t.Helper()

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("Failed to count rows in %s: %v", table, err)
	}
	return n
}
