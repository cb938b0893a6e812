// Package accounts is the credential store: broker accounts, their secrets
// and their current access tokens.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/database"
	"github.com/aristath/brokerwatch/internal/domain"
	"github.com/aristath/brokerwatch/internal/security"
)

// accountColumns is shared by every SELECT so scanAccount stays in sync
const accountColumns = `id, owner_id, broker, name, account_no, product_code, mode, hts_id,
	app_key, app_secret, mac_address, access_token, token_expires_at, active, webhook_url,
	created_at, updated_at`

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository handles account persistence
type Repository struct {
	db     *sql.DB
	sealer *security.Sealer
	now    func() time.Time
	log    zerolog.Logger
}

// NewRepository creates a new account repository. A nil sealer stores secrets in plaintext.
func NewRepository(db *sql.DB, sealer *security.Sealer, log zerolog.Logger) *Repository {
	if sealer == nil {
		sealer = &security.Sealer{}
	}
	return &Repository{
		db:     db,
		sealer: sealer,
		now:    time.Now,
		log:    log.With().Str("repo", "accounts").Logger(),
	}
}

// DB exposes the connection for callers that need a transaction spanning the token write
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Get returns an account by id, or nil when it does not exist
func (r *Repository) Get(ctx context.Context, id string) (*domain.Account, error) {
	return r.get(ctx, r.db, id)
}

// GetTx reads an account inside tx
func (r *Repository) GetTx(ctx context.Context, tx *sql.Tx, id string) (*domain.Account, error) {
	return r.get(ctx, tx, id)
}

func (r *Repository) get(ctx context.Context, q rowQuerier, id string) (*domain.Account, error) {
	row := q.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	account, err := r.scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return account, nil
}

// ListActive returns every active account in a stable order
func (r *Repository) ListActive(ctx context.Context) ([]domain.Account, error) {
	return r.list(ctx, "SELECT "+accountColumns+" FROM accounts WHERE active = 1 ORDER BY created_at, id")
}

// ListByOwner returns every account owned by ownerID
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error) {
	return r.list(ctx, "SELECT "+accountColumns+" FROM accounts WHERE owner_id = ? ORDER BY created_at, id", ownerID)
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		account, err := r.scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanAccount(s scanner) (*domain.Account, error) {
	var (
		a                    domain.Account
		broker, mode         string
		appSecret            string
		accessToken          sql.NullString
		expiresAt            sql.NullInt64
		active               int
		createdAt, updatedAt int64
	)

	err := s.Scan(&a.ID, &a.OwnerID, &broker, &a.Name, &a.AccountNo, &a.ProductCode, &mode, &a.HTSID,
		&a.AppKey, &appSecret, &a.MACAddress, &accessToken, &expiresAt, &active, &a.WebhookURL,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.Broker = domain.Broker(broker)
	a.Mode = domain.Mode(mode)
	a.Active = active != 0
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)

	if a.AppSecret, err = r.sealer.Open(appSecret); err != nil {
		return nil, fmt.Errorf("failed to open app secret for %s: %w", a.ID, err)
	}
	if accessToken.Valid {
		if a.AccessToken, err = r.sealer.Open(accessToken.String); err != nil {
			return nil, fmt.Errorf("failed to open access token for %s: %w", a.ID, err)
		}
	}
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0)
		a.TokenExpiresAt = &t
	}

	return &a, nil
}

// Validate checks the fields every account needs
func Validate(a *domain.Account) error {
	var missing []string
	if a.OwnerID == "" {
		missing = append(missing, "owner_id")
	}
	if a.AccountNo == "" {
		missing = append(missing, "account_no")
	}
	if a.ProductCode == "" {
		missing = append(missing, "product_code")
	}
	if a.AppKey == "" {
		missing = append(missing, "app_key")
	}
	if a.AppSecret == "" {
		missing = append(missing, "app_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if _, err := domain.ParseBroker(string(a.Broker)); err != nil {
		return err
	}
	if _, err := domain.ParseMode(string(a.Mode)); err != nil {
		return err
	}
	return nil
}

// Create inserts a new account, assigning its id and timestamps
func (r *Repository) Create(ctx context.Context, a *domain.Account) error {
	if err := Validate(a); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	appSecret, err := r.sealer.Seal(a.AppSecret)
	if err != nil {
		return fmt.Errorf("failed to seal app secret: %w", err)
	}

	now := r.now()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Unix(now.Unix(), 0)
	a.UpdatedAt = a.CreatedAt

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, owner_id, broker, name, account_no, product_code, mode, hts_id,
			app_key, app_secret, mac_address, access_token, token_expires_at, active, webhook_url,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?, ?)
	`, a.ID, a.OwnerID, string(a.Broker), a.Name, a.AccountNo, a.ProductCode, string(a.Mode), a.HTSID,
		a.AppKey, appSecret, a.MACAddress, boolToInt(a.Active), a.WebhookURL, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	r.log.Info().Str("account_id", a.ID).Str("broker", string(a.Broker)).Msg("Account created")
	return nil
}

// Update overwrites the user-editable fields of an account. Token fields are
// left alone; changing credentials or mode clears them so the next use re-authenticates.
func (r *Repository) Update(ctx context.Context, a *domain.Account) error {
	if err := Validate(a); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	return database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		current, err := r.GetTx(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrAccountNotFound
		}

		appSecret, err := r.sealer.Seal(a.AppSecret)
		if err != nil {
			return fmt.Errorf("failed to seal app secret: %w", err)
		}

		credentialsChanged := current.AppKey != a.AppKey ||
			current.AppSecret != a.AppSecret ||
			current.Mode != a.Mode ||
			current.Broker != a.Broker

		now := r.now().Unix()
		_, err = tx.ExecContext(ctx, `
			UPDATE accounts SET broker = ?, name = ?, account_no = ?, product_code = ?, mode = ?,
				hts_id = ?, app_key = ?, app_secret = ?, mac_address = ?, active = ?, webhook_url = ?,
				updated_at = ?
			WHERE id = ?
		`, string(a.Broker), a.Name, a.AccountNo, a.ProductCode, string(a.Mode), a.HTSID,
			a.AppKey, appSecret, a.MACAddress, boolToInt(a.Active), a.WebhookURL, now, a.ID)
		if err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}

		if credentialsChanged {
			if _, err := tx.ExecContext(ctx,
				"UPDATE accounts SET access_token = NULL, token_expires_at = NULL WHERE id = ?", a.ID); err != nil {
				return fmt.Errorf("failed to clear token: %w", err)
			}
			a.AccessToken = ""
			a.TokenExpiresAt = nil
			r.log.Info().Str("account_id", a.ID).Msg("Credentials changed, token cleared")
		} else {
			a.AccessToken = current.AccessToken
			a.TokenExpiresAt = current.TokenExpiresAt
		}

		a.OwnerID = current.OwnerID
		a.CreatedAt = current.CreatedAt
		a.UpdatedAt = time.Unix(now, 0)
		return nil
	})
}

// UpdateToken writes a new access token and expiry inside tx
func (r *Repository) UpdateToken(ctx context.Context, tx *sql.Tx, id, token string, expiry time.Time) error {
	sealed, err := r.sealer.Seal(token)
	if err != nil {
		return fmt.Errorf("failed to seal access token: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE accounts SET access_token = ?, token_expires_at = ?, updated_at = ? WHERE id = ?",
		sealed, expiry.Unix(), r.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Delete removes an account; trade and balance history cascade
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		r.log.Info().Str("account_id", id).Msg("Account deleted")
	}
	return n > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
