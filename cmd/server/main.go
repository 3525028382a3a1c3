package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/crediflow/bankbridge/internal/adapters/sqlite"
	"github.com/crediflow/bankbridge/internal/app/services"
	"github.com/crediflow/bankbridge/internal/clients/bridgeapi"
	"github.com/crediflow/bankbridge/internal/clients/crediflow"
	"github.com/crediflow/bankbridge/internal/config"
	"github.com/crediflow/bankbridge/internal/db"
	"github.com/crediflow/bankbridge/internal/server"
	"github.com/crediflow/bankbridge/internal/server/routes"
	"github.com/crediflow/bankbridge/internal/webhooks"
)

func Run() error {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.IsLocalDevelopment() && cfg.Aggregator.ClientID == "" {
		slog.Warn("BRIDGE_CLIENT_ID not set, aggregator calls will be rejected upstream")
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	registry := sqlite.NewRegistry(database)
	lending := crediflow.New(cfg.Lending.BaseURL, cfg.Lending.HTTPTimeout)
	aggregator := bridgeapi.New(cfg.Aggregator.BaseURL, cfg.Aggregator.ClientID, cfg.Aggregator.ClientSecret, cfg.Aggregator.HTTPTimeout)

	link := services.NewLinkWorkflow(lending, aggregator)
	syncWorkflow := services.NewSyncWorkflow(lending, aggregator, services.SyncDefaults{
		NbOfMonths:  cfg.Sync.NbOfMonths,
		Timeout:     cfg.Sync.Timeout,
		WaitingTime: cfg.Sync.WaitingTime,
	}, log)
	dispatcher := services.NewDispatcher(lending, link, syncWorkflow, log)
	auth := services.NewAuthenticator(registry)

	srv := server.New(log)
	srv.RegisterRouter(routes.NewWebhookRoutes(webhooks.NewHandler(auth, dispatcher)))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("Starting server", "port", cfg.Server.Port)
	if err := srv.Start(addr); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func main() {
	if err := Run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
