// Package config loads application configuration and the read-only catalogs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Catalog  CatalogConfig
	Dedup    DedupConfig
	Anomaly  AnomalyConfig
	AI       AIConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// CatalogConfig points at the YAML catalog files.
type CatalogConfig struct {
	Rules      string
	Categories string
	Accounts   string
}

// DedupConfig holds duplicate-detection thresholds.
type DedupConfig struct {
	DateToleranceDays   int     `mapstructure:"date_tolerance_days"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	SameDayThreshold    float64 `mapstructure:"same_day_threshold"`
}

// AnomalyConfig holds review thresholds.
type AnomalyConfig struct {
	LargeTransactionThreshold string   `mapstructure:"large_transaction_threshold"`
	DateGapDays               int      `mapstructure:"date_gap_days"`
	Patterns                  []string `mapstructure:"patterns"`
}

// AIConfig holds suggestion-pass settings.
type AIConfig struct {
	Model              string
	BudgetTransactions int    `mapstructure:"budget_transactions"`
	CachePath          string `mapstructure:"cache_path"`
}

// Load reads configuration from file and env. Env var overrides use prefix
// TILLBOOK_.
func Load() (Config, error) {
	v := viper.New()

	dataDir := filepath.Join(os.Getenv("HOME"), ".local", "share", "tillbook")
	configDir := filepath.Join(os.Getenv("HOME"), ".config", "tillbook")

	v.SetDefault("database.path", filepath.Join(dataDir, "tillbook.db"))
	v.SetDefault("catalog.rules", filepath.Join(configDir, "rules.yaml"))
	v.SetDefault("catalog.categories", filepath.Join(configDir, "categories.yaml"))
	v.SetDefault("catalog.accounts", filepath.Join(configDir, "accounts.yaml"))
	v.SetDefault("dedup.date_tolerance_days", 1)
	v.SetDefault("dedup.similarity_threshold", 0.90)
	v.SetDefault("dedup.same_day_threshold", 0.95)
	v.SetDefault("anomaly.large_transaction_threshold", "10000")
	v.SetDefault("anomaly.date_gap_days", 30)
	v.SetDefault("anomaly.patterns", []string{})
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.budget_transactions", 200)
	v.SetDefault("ai.cache_path", filepath.Join(dataDir, "suggestions.json"))

	v.SetConfigType("toml")

	cfgPath := os.Getenv("TILLBOOK_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("TILLBOOK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
