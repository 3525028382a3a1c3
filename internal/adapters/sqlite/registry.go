// Package sqlite is the SQLite-backed implementation of the service-account
// registry port.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/crediflow/bankbridge/internal/app/ports"
)

// Registry resolves service accounts from the local SQLite database.
type Registry struct {
	db *sql.DB
}

var _ ports.ServiceAccountRegistry = (*Registry)(nil)

// NewRegistry constructs a registry over an open database.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// GetServiceAccountBySubscriptionID loads the service account owning the
// subscription, with all of the account's subscriptions attached.
func (r *Registry) GetServiceAccountBySubscriptionID(ctx context.Context, subscriptionID string) (ports.ServiceAccount, error) {
	const accountQuery = `
		SELECT sa.id, sa.name, sa.client_id, sa.client_secret,
		       sa.nb_of_months, sa.sync_timeout_seconds, sa.sync_wait_seconds,
		       sa.aggregator_client_id, sa.aggregator_client_secret
		FROM service_accounts sa
		JOIN subscriptions s ON s.service_account_id = sa.id
		WHERE s.id = ?`

	var account ports.ServiceAccount
	var nbOfMonths, timeoutSeconds, waitSeconds sql.NullInt64
	var aggClientID, aggClientSecret sql.NullString
	err := r.db.QueryRowContext(ctx, accountQuery, subscriptionID).Scan(
		&account.ID, &account.Name, &account.ClientID, &account.ClientSecret,
		&nbOfMonths, &timeoutSeconds, &waitSeconds,
		&aggClientID, &aggClientSecret,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.ServiceAccount{}, ports.ErrServiceAccountNotFound
	}
	if err != nil {
		return ports.ServiceAccount{}, err
	}

	account.Config = ports.AggregatorConfig{
		NbOfMonths:                 int(nbOfMonths.Int64),
		SynchronizationTimeout:     time.Duration(timeoutSeconds.Int64) * time.Second,
		SynchronizationWaitingTime: time.Duration(waitSeconds.Int64) * time.Second,
		ClientID:                   aggClientID.String,
		ClientSecret:               aggClientSecret.String,
	}

	const subscriptionsQuery = `SELECT id, signing_secret FROM subscriptions WHERE service_account_id = ? ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, subscriptionsQuery, account.ID)
	if err != nil {
		return ports.ServiceAccount{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var subscription ports.Subscription
		if err := rows.Scan(&subscription.ID, &subscription.SigningSecret); err != nil {
			return ports.ServiceAccount{}, err
		}
		account.Subscriptions = append(account.Subscriptions, subscription)
	}
	if err := rows.Err(); err != nil {
		return ports.ServiceAccount{}, err
	}
	return account, nil
}

// CreateServiceAccount inserts a tenant and returns its generated id.
func (r *Registry) CreateServiceAccount(ctx context.Context, name, clientID, clientSecret string, cfg ports.AggregatorConfig) (string, error) {
	id := uuid.NewString()
	const query = `
		INSERT INTO service_accounts
			(id, name, client_id, client_secret, nb_of_months, sync_timeout_seconds, sync_wait_seconds, aggregator_client_id, aggregator_client_secret)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, id, name, clientID, clientSecret,
		nullPositiveInt(int64(cfg.NbOfMonths)),
		nullPositiveInt(int64(cfg.SynchronizationTimeout/time.Second)),
		nullPositiveInt(int64(cfg.SynchronizationWaitingTime/time.Second)),
		nullString(cfg.ClientID), nullString(cfg.ClientSecret),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CreateSubscription registers a webhook channel under a service account and
// returns its generated id.
func (r *Registry) CreateSubscription(ctx context.Context, serviceAccountID, signingSecret string) (string, error) {
	id := uuid.NewString()
	const query = `INSERT INTO subscriptions (id, service_account_id, signing_secret) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, id, serviceAccountID, signingSecret); err != nil {
		return "", err
	}
	return id, nil
}

func nullPositiveInt(value int64) sql.NullInt64 {
	if value <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: value, Valid: true}
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
