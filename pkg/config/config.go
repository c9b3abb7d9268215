// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the admix daemons. Values are
// loaded from environment variables (ADMIX_ prefix) with an optional
// config file.
type Config struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`

	DatabasePath string `mapstructure:"database_path"`

	// Provider credentials. An adapter with no credentials configured
	// is left out of the waterfall.
	Spotify   ProviderConfig `mapstructure:"spotify"`
	GoogleAds ProviderConfig `mapstructure:"google_ads"`
	SiriusXM  ProviderConfig `mapstructure:"siriusxm"`
	Networks  NetworksConfig `mapstructure:"networks"`

	// UseMockProviders swaps every configured adapter for the
	// deterministic test double. Selected here, never by an env check
	// inside adapter code.
	UseMockProviders bool    `mapstructure:"use_mock_providers"`
	MockFillRate     float64 `mapstructure:"mock_fill_rate"`
	MockSeed         int64   `mapstructure:"mock_seed"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Payout runner settings (cmd/admix-payouts).
	PayoutSchedule string  `mapstructure:"payout_schedule"`
	PayoutMinimum  float64 `mapstructure:"payout_minimum"`

	// FX rate endpoint; empty means fallback rates only.
	ExchangeRateURL string `mapstructure:"exchange_rate_url"`
}

// ProviderConfig holds credentials and tuning for a single adapter.
type ProviderConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Endpoint     string        `mapstructure:"endpoint"`
	TokenURL     string        `mapstructure:"token_url"`
	Priority     int           `mapstructure:"priority"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// NetworksConfig configures the aggregate provider and its sub-networks.
type NetworksConfig struct {
	Priority    int                `mapstructure:"priority"`
	Timeout     time.Duration      `mapstructure:"timeout"`
	SubNetworks []SubNetworkConfig `mapstructure:"sub_networks"`
}

// SubNetworkConfig is one named endpoint inside the Networks adapter.
type SubNetworkConfig struct {
	Name     string `mapstructure:"name"`
	Endpoint string `mapstructure:"endpoint"`
	TokenURL string `mapstructure:"token_url"`
	APIKey   string `mapstructure:"api_key"`
	Priority int    `mapstructure:"priority"`
	// OpenRTB sub-networks get bid requests; the rest get the plain
	// JSON ad call.
	OpenRTB bool `mapstructure:"openrtb"`
}

// Load reads configuration from the environment and an optional YAML
// file at path (ignored when missing).
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetEnvPrefix("ADMIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8480")
	v.SetDefault("metrics_addr", ":9480")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_path", "admix.db")
	v.SetDefault("request_timeout", 5*time.Second)
	v.SetDefault("use_mock_providers", false)
	v.SetDefault("mock_fill_rate", 0.8)
	v.SetDefault("mock_seed", 1)
	v.SetDefault("payout_schedule", "0 3 * * *")
	v.SetDefault("payout_minimum", 25.0)
	v.SetDefault("spotify.priority", 1)
	v.SetDefault("google_ads.priority", 2)
	v.SetDefault("siriusxm.priority", 3)
	v.SetDefault("networks.priority", 4)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
