// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Aggregator  AggregatorConfig
	Lending     LendingConfig
	Sync        SyncConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Path string
}

type AggregatorConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPTimeout  time.Duration
}

type LendingConfig struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

type SyncConfig struct {
	NbOfMonths  int
	Timeout     time.Duration
	WaitingTime time.Duration
}

// Load reads configuration from the environment, applying defaults and
// clamping out-of-range values.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("bankbridge_env", "")
	v.SetDefault("app_env", "")
	v.SetDefault("go_env", "")
	v.SetDefault("bankbridge_port", 8081)
	v.SetDefault("bankbridge_db_path", "data/bankbridge")
	v.SetDefault("bridge_api_url", "https://api.bridgeapi.io")
	v.SetDefault("bridge_client_id", "")
	v.SetDefault("bridge_client_secret", "")
	v.SetDefault("crediflow_api_url", "http://localhost:8080")
	v.SetDefault("bankbridge_http_timeout_s", 30)
	v.SetDefault("bankbridge_sync_timeout_s", 300)
	v.SetDefault("bankbridge_sync_wait_s", 4)
	v.SetDefault("bankbridge_nb_of_months", 3)

	env := resolveEnvironment(v)
	port := v.GetInt("bankbridge_port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid BANKBRIDGE_PORT: %d", port)
	}

	clientID := strings.TrimSpace(v.GetString("bridge_client_id"))
	clientSecret := strings.TrimSpace(v.GetString("bridge_client_secret"))
	if !isLocalEnvironment(env) && (clientID == "" || clientSecret == "") {
		return Config{}, fmt.Errorf("BRIDGE_CLIENT_ID and BRIDGE_CLIENT_SECRET are required outside local/dev environments")
	}

	httpTimeout := clampSeconds(v.GetInt("bankbridge_http_timeout_s"), 30, 300)
	syncTimeout := clampSeconds(v.GetInt("bankbridge_sync_timeout_s"), 300, 3600)
	syncWait := clampSeconds(v.GetInt("bankbridge_sync_wait_s"), 4, 60)

	nbOfMonths := v.GetInt("bankbridge_nb_of_months")
	if nbOfMonths <= 0 {
		nbOfMonths = 3
	}
	if nbOfMonths > 24 {
		nbOfMonths = 24
	}

	return Config{
		Environment: env,
		Server:      ServerConfig{Port: port},
		Database:    DatabaseConfig{Path: strings.TrimSpace(v.GetString("bankbridge_db_path"))},
		Aggregator: AggregatorConfig{
			BaseURL:      strings.TrimSpace(v.GetString("bridge_api_url")),
			ClientID:     clientID,
			ClientSecret: clientSecret,
			HTTPTimeout:  httpTimeout,
		},
		Lending: LendingConfig{
			BaseURL:     strings.TrimSpace(v.GetString("crediflow_api_url")),
			HTTPTimeout: httpTimeout,
		},
		Sync: SyncConfig{
			NbOfMonths:  nbOfMonths,
			Timeout:     syncTimeout,
			WaitingTime: syncWait,
		},
	}, nil
}

// IsLocalDevelopment reports whether the service runs in a local or dev
// environment.
func (c Config) IsLocalDevelopment() bool {
	return isLocalEnvironment(c.Environment)
}

func resolveEnvironment(v *viper.Viper) string {
	for _, key := range []string{"bankbridge_env", "app_env", "go_env"} {
		if env := strings.ToLower(strings.TrimSpace(v.GetString(key))); env != "" {
			return env
		}
	}
	return ""
}

func isLocalEnvironment(env string) bool {
	switch env {
	case "", "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

func clampSeconds(value, fallback, max int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	if value > max {
		value = max
	}
	return time.Duration(value) * time.Second
}
