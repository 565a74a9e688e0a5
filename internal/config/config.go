package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/pendergraft/holdergate/internal/validation"
)

// Config holds all configuration for the server
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Limits    LimitsConfig
	Metrics   MetricsConfig
	Auth      AuthConfig
	Holdings  HoldingsConfig
	Roles     RolesConfig
	Networks  []NetworkConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite", "postgres", "jsonfile" or "memory"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	JSONFile JSONFileConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// JSONFileConfig holds JSON file store settings
type JSONFileConfig struct {
	Path string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// RateLimitConfig holds per-IP HTTP rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// LimitsConfig holds per-user action rate limit settings
type LimitsConfig struct {
	VerifyPerMinute  int
	SubmitPer5Min    int
	StatusPerMinute  int
	ScanPerMinute    int // global chain RPC scan budget
	LookupPerMinute  int // global holdings API budget
	PenaltyMinutes   int
	MaxFailedSubmits int
	SweepMinutes     int
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool
}

// AuthConfig holds operator authentication settings
type AuthConfig struct {
	Type string // "none" or "api-key"
}

// HoldingsConfig holds holdings lookup API settings
type HoldingsConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// RolesConfig holds role grantor settings. An empty bot token selects the
// no-op grantor.
type RolesConfig struct {
	BotToken string
	GuildID  string
	APIBase  string
}

// NetworkConfig describes one supported chain. Exactly one network must be
// marked primary; the primary network is where challenge transactions are
// scanned for.
type NetworkConfig struct {
	Name             string   `toml:"name"`
	Primary          bool     `toml:"primary"`
	RPCURL           string   `toml:"rpc_url"`
	ChainID          int64    `toml:"chain_id"`
	ScanWindow       uint64   `toml:"scan_window"`
	BotWallet        string   `toml:"bot_wallet"`
	Collection       string   `toml:"collection"`
	CollectionName   string   `toml:"collection_name"`
	MinRequired      int      `toml:"min_required"`
	StakingContracts []string `toml:"staking_contracts"`
	RoleID           string   `toml:"role_id"`
}

// networksFile is the TOML shape of the optional networks config file.
type networksFile struct {
	Networks []NetworkConfig `toml:"networks"`
}

// Load loads configuration from environment variables. When NETWORKS_FILE is
// set, network definitions come from that TOML file instead of the built-in
// env-var trio.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8080),
			Host:         getEnv("HOST", "0.0.0.0"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 120),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/holdergate.db"),
			},
			JSONFile: JSONFileConfig{
				Path: getEnv("JSONFILE_PATH", "./data/holdergate.json"),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Limits: LimitsConfig{
			VerifyPerMinute:  getEnvInt("LIMIT_VERIFY_PER_MINUTE", 5),
			SubmitPer5Min:    getEnvInt("LIMIT_SUBMIT_PER_5MIN", 3),
			StatusPerMinute:  getEnvInt("LIMIT_STATUS_PER_MINUTE", 10),
			ScanPerMinute:    getEnvInt("LIMIT_SCAN_PER_MINUTE", 10),
			LookupPerMinute:  getEnvInt("LIMIT_LOOKUP_PER_MINUTE", 30),
			PenaltyMinutes:   getEnvInt("LIMIT_PENALTY_MINUTES", 10),
			MaxFailedSubmits: getEnvInt("LIMIT_MAX_FAILED_SUBMITS", 3),
			SweepMinutes:     getEnvInt("LIMIT_SWEEP_MINUTES", 5),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
		Auth: AuthConfig{
			Type: getEnv("AUTH_TYPE", "none"),
		},
		Holdings: HoldingsConfig{
			BaseURL:        getEnv("HOLDINGS_API_URL", ""),
			APIKey:         getEnv("HOLDINGS_API_KEY", ""),
			TimeoutSeconds: getEnvInt("HOLDINGS_API_TIMEOUT", 15),
		},
		Roles: RolesConfig{
			BotToken: getEnv("DISCORD_BOT_TOKEN", ""),
			GuildID:  getEnv("DISCORD_GUILD_ID", ""),
			APIBase:  getEnv("DISCORD_API_BASE", "https://discord.com/api/v10"),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	networks, err := loadNetworks()
	if err != nil {
		return nil, err
	}
	cfg.Networks = networks

	return cfg, nil
}

// Primary returns the primary network configuration.
func (c *Config) Primary() (*NetworkConfig, error) {
	for i := range c.Networks {
		if c.Networks[i].Primary {
			return &c.Networks[i], nil
		}
	}
	return nil, fmt.Errorf("no primary network configured")
}

// loadNetworks builds the network list either from NETWORKS_FILE or from the
// built-in env-var scheme (PRIMARY_*, SECONDARY_A_*, SECONDARY_B_*).
func loadNetworks() ([]NetworkConfig, error) {
	if path := os.Getenv("NETWORKS_FILE"); path != "" {
		var file networksFile
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return nil, fmt.Errorf("parsing networks file %s: %w", path, err)
		}
		if err := checkNetworks(file.Networks); err != nil {
			return nil, err
		}
		return file.Networks, nil
	}

	networks := []NetworkConfig{
		{
			Name:             getEnv("PRIMARY_NETWORK", "ethereum"),
			Primary:          true,
			RPCURL:           getEnv("PRIMARY_RPC_URL", ""),
			ChainID:          int64(getEnvInt("PRIMARY_CHAIN_ID", 1)),
			ScanWindow:       uint64(getEnvInt("PRIMARY_SCAN_WINDOW", 1000)),
			BotWallet:        getEnv("PRIMARY_BOT_WALLET", ""),
			Collection:       getEnv("PRIMARY_COLLECTION", ""),
			CollectionName:   getEnv("PRIMARY_COLLECTION_NAME", ""),
			MinRequired:      getEnvInt("PRIMARY_MIN_REQUIRED", 1),
			StakingContracts: getEnvStringSlice("PRIMARY_STAKING_CONTRACTS", nil),
			RoleID:           getEnv("PRIMARY_ROLE_ID", ""),
		},
		{
			Name:           getEnv("SECONDARY_A_NETWORK", "polygon"),
			RPCURL:         getEnv("SECONDARY_A_RPC_URL", ""),
			ChainID:        int64(getEnvInt("SECONDARY_A_CHAIN_ID", 137)),
			Collection:     getEnv("SECONDARY_A_COLLECTION", ""),
			CollectionName: getEnv("SECONDARY_A_COLLECTION_NAME", ""),
			MinRequired:    getEnvInt("SECONDARY_A_MIN_REQUIRED", 1),
			RoleID:         getEnv("SECONDARY_A_ROLE_ID", ""),
		},
		{
			Name:           getEnv("SECONDARY_B_NETWORK", "arbitrum"),
			RPCURL:         getEnv("SECONDARY_B_RPC_URL", ""),
			ChainID:        int64(getEnvInt("SECONDARY_B_CHAIN_ID", 42161)),
			Collection:     getEnv("SECONDARY_B_COLLECTION", ""),
			CollectionName: getEnv("SECONDARY_B_COLLECTION_NAME", ""),
			MinRequired:    getEnvInt("SECONDARY_B_MIN_REQUIRED", 1),
			RoleID:         getEnv("SECONDARY_B_ROLE_ID", ""),
		},
	}
	if err := checkNetworks(networks); err != nil {
		return nil, err
	}
	return networks, nil
}

func checkNetworks(networks []NetworkConfig) error {
	if len(networks) == 0 {
		return fmt.Errorf("no networks configured")
	}
	primaries := 0
	seen := make(map[string]bool)
	for _, n := range networks {
		if n.Name == "" {
			return fmt.Errorf("network with empty name")
		}
		if err := validation.ValidateNetworkName(n.Name); err != nil {
			return fmt.Errorf("network %q: %w", n.Name, err)
		}
		if seen[n.Name] {
			return fmt.Errorf("duplicate network name: %s", n.Name)
		}
		seen[n.Name] = true
		if n.Primary {
			primaries++
		}
	}
	if primaries != 1 {
		return fmt.Errorf("exactly one primary network required, got %d", primaries)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
