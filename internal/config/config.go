// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load() layers file and env.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"fmt"
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the ops HTTP listen address, e.g. ":9090".
	Addr string `koanf:"addr"`

	// BotToken is the chat transport credential. Required.
	BotToken string `koanf:"bot_token"`

	// BotAPIBase is the chat transport API host.
	BotAPIBase string `koanf:"bot_api_base"`

	// BotPollTimeoutSec is the long-poll hold time in seconds.
	BotPollTimeoutSec int `koanf:"bot_poll_timeout_sec"`

	// GatewayURL is the contract gateway base URL. Required.
	GatewayURL string `koanf:"gateway_url"`

	// ContractAddress is the meetup contract the gateway targets. Required.
	ContractAddress string `koanf:"contract_address"`

	// OperatorAddress is the pre-funded service account that signs finalize
	// and attendance transactions. Required.
	OperatorAddress string `koanf:"operator_address"`

	// DatabaseURL is the Postgres connection string for the record store.
	// Empty selects the in-memory store, for local development only.
	DatabaseURL string `koanf:"database_url"`

	// BlobPublisherURL and BlobAggregatorURL address the blob store.
	BlobPublisherURL  string `koanf:"blob_publisher_url"`
	BlobAggregatorURL string `koanf:"blob_aggregator_url"`

	// BlobEpochs sets how many storage epochs uploads are kept for.
	BlobEpochs int `koanf:"blob_epochs"`

	// CurrencySymbol is the ticker shown after stake amounts.
	CurrencySymbol string `koanf:"currency_symbol"`

	// NetworkLabel is the human network name shown with tx hashes.
	NetworkLabel string `koanf:"network_label"`

	// GeofenceRadiusKM is the attendance presence radius in kilometers.
	GeofenceRadiusKM float64 `koanf:"geofence_radius_km"`

	// ConfirmTimeoutSec bounds how long a transaction confirmation is awaited.
	ConfirmTimeoutSec int `koanf:"confirm_timeout_sec"`

	// ReconcileIntervalSec is the time between reconciliation sweeps.
	ReconcileIntervalSec int `koanf:"reconcile_interval_sec"`

	// QueueSize bounds the in-memory turn queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of dispatcher lanes.
	WorkerCount int `koanf:"worker_count"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9090",
		BotAPIBase:           "https://api.telegram.org",
		BotPollTimeoutSec:    30,
		BlobPublisherURL:     "https://publisher.walrus-testnet.walrus.space",
		BlobAggregatorURL:    "https://aggregator.walrus-testnet.walrus.space",
		BlobEpochs:           5,
		CurrencySymbol:       "ETH",
		NetworkLabel:         "Base Sepolia",
		GeofenceRadiusKM:     0.2,
		ConfirmTimeoutSec:    60,
		ReconcileIntervalSec: 300,
		QueueSize:            1024,
		WorkerCount:          runtime.NumCPU() * 4,
	}
}

// Validate checks the credentials the service cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.BotToken == "":
		return fmt.Errorf("%w: bot_token is required", ErrInvalidConfig)
	case c.GatewayURL == "":
		return fmt.Errorf("%w: gateway_url is required", ErrInvalidConfig)
	case c.ContractAddress == "":
		return fmt.Errorf("%w: contract_address is required", ErrInvalidConfig)
	case c.OperatorAddress == "":
		return fmt.Errorf("%w: operator_address is required", ErrInvalidConfig)
	}
	return nil
}
