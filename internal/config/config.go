// Package config содержит логику чтения конфигурации сервиса краудсейла.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры запуска сервиса краудсейла.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	SaleConfig  string `env:"SALE_CONFIG"`
	LogLevel    string `env:"LOG_LEVEL"`
	LogFile     string `env:"LOG_FILE"`

	// Параметры ERC-20 реестра. Без TOKEN_RPC_URL используется реестр в памяти.
	TokenRPCURL    string `env:"TOKEN_RPC_URL"`
	TokenAddress   string `env:"TOKEN_ADDRESS"`
	TokenChainID   int64  `env:"TOKEN_CHAIN_ID" envDefault:"1"`
	TokenSignerKey string `env:"TOKEN_SIGNER_KEY"`

	PhaseWatchInterval time.Duration `env:"PHASE_WATCH_INTERVAL" envDefault:"30s"`
	AuthMaxSkew        time.Duration `env:"AUTH_MAX_SKEW" envDefault:"5m"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envSaleConfig := cfg.SaleConfig
	envLogLevel := cfg.LogLevel

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.SaleConfig, "c", "sale.yaml", "path to sale configuration file")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log level")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envSaleConfig != "" {
		cfg.SaleConfig = envSaleConfig
	}
	if envLogLevel != "" {
		cfg.LogLevel = envLogLevel
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.TokenRPCURL != "" && (cfg.TokenAddress == "" || cfg.TokenSignerKey == "") {
		return nil, fmt.Errorf("TOKEN_RPC_URL requires TOKEN_ADDRESS and TOKEN_SIGNER_KEY")
	}

	return cfg, nil
}
