// accountctl registers service accounts and their webhook subscriptions in
// the local registry database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/crediflow/bankbridge/internal/adapters/sqlite"
	"github.com/crediflow/bankbridge/internal/app/ports"
	"github.com/crediflow/bankbridge/internal/db"
)

func Run() error {
	_ = godotenv.Load()
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("bankbridge_db_path", "data/bankbridge")
	v.SetDefault("account_name", "")
	v.SetDefault("account_client_id", "")
	v.SetDefault("account_client_secret", "")
	v.SetDefault("account_signing_secret", "")
	v.SetDefault("account_nb_of_months", 0)
	v.SetDefault("account_sync_timeout_s", 0)
	v.SetDefault("account_sync_wait_s", 0)

	name := v.GetString("account_name")
	clientID := v.GetString("account_client_id")
	clientSecret := v.GetString("account_client_secret")
	signingSecret := v.GetString("account_signing_secret")
	if name == "" || clientID == "" || clientSecret == "" || signingSecret == "" {
		return fmt.Errorf("ACCOUNT_NAME, ACCOUNT_CLIENT_ID, ACCOUNT_CLIENT_SECRET and ACCOUNT_SIGNING_SECRET are required")
	}

	database, err := db.Open(v.GetString("bankbridge_db_path"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()

	registry := sqlite.NewRegistry(database)
	ctx := context.Background()

	accountID, err := registry.CreateServiceAccount(ctx, name, clientID, clientSecret, ports.AggregatorConfig{
		NbOfMonths:                 v.GetInt("account_nb_of_months"),
		SynchronizationTimeout:     time.Duration(v.GetInt("account_sync_timeout_s")) * time.Second,
		SynchronizationWaitingTime: time.Duration(v.GetInt("account_sync_wait_s")) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create service account: %w", err)
	}
	subscriptionID, err := registry.CreateSubscription(ctx, accountID, signingSecret)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}

	fmt.Printf("service_account_id=%s\nsubscription_id=%s\n", accountID, subscriptionID)
	return nil
}

func main() {
	if err := Run(); err != nil {
		slog.Error("accountctl failed", "error", err)
		os.Exit(1)
	}
}
