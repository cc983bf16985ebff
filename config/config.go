// Package config loads the game server configuration.
//
// Configuration comes from an optional YAML file followed by environment
// overrides. The resulting Config is built once at process start and passed
// explicitly to every constructor; nothing reads it through a global.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends
const (
	StoreDynamo = "dynamodb"
	StoreRedis  = "redis"
	StoreSQL    = "sql"
	StoreMemory = "memory"
)

// NetworkLocal selects the in-process ledger instead of a Solana cluster.
const NetworkLocal = "local"

// Config is the top-level configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Solana  SolanaConfig  `yaml:"solana"`
	Store   StoreConfig   `yaml:"store"`
	Archive ArchiveConfig `yaml:"archive"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Port the HTTP server listens on. Env: PORT.
	Port string `yaml:"port"`

	// AllowedOrigins for CORS. Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowCredentials lets browsers send cookies cross-origin. Requires explicit origins.
	AllowCredentials bool `yaml:"allow_credentials"`

	// EnableSocket mounts the socket.io event server at /socket.io/.
	EnableSocket bool `yaml:"enable_socket"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// SolanaConfig identifies the settlement program and how to reach it.
type SolanaConfig struct {
	// WalletPath is a Solana CLI keypair file (JSON array of 64 bytes).
	// The wallet pays fees and signs every settlement transaction. Env: SOLANA_WALLET.
	WalletPath string `yaml:"wallet_path"`

	// Network is devnet, testnet, mainnet-beta, local, or an explicit RPC URL.
	// Env: SOLANA_NETWORK.
	Network string `yaml:"network"`

	// ProgramID is the deployed settlement program address (base58).
	ProgramID string `yaml:"program_id"`

	// MintKey is the token mint escrowed by matches (base58).
	MintKey string `yaml:"mint_key"`

	// Commitment used for reads and preflight. Default: processed
	Commitment string `yaml:"commitment"`

	// RequestsPerSecond throttles RPC calls. Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// RequestTimeout bounds a single RPC call. Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	// Backend is dynamodb, redis, sql or memory.
	Backend string `yaml:"backend"`

	// AWSRegion for DynamoDB. Env: AWS_REGION.
	AWSRegion string `yaml:"aws_region"`

	// MatchesTable and UsersTable override the DynamoDB table names.
	MatchesTable string `yaml:"matches_table"`
	UsersTable   string `yaml:"users_table"`

	// RedisURL is redis://[:password@]host:port[/db]. Env: REDIS_URL.
	RedisURL string `yaml:"redis_url"`

	// SQLDriver and SQLDSN for the relational backend. Default driver: sqlite
	SQLDriver string `yaml:"sql_driver"`
	SQLDSN    string `yaml:"sql_dsn"`
}

// ArchiveConfig configures the S3 outcome archive. Empty bucket disables it.
type ArchiveConfig struct {
	// Bucket env: S3_BUCKET_NAME.
	Bucket string `yaml:"bucket"`

	// Prefix for archived objects. Default: match-outcomes/
	Prefix string `yaml:"prefix"`

	// PresignExpiry is the lifetime of read URLs. Default: 5m
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

// Default returns the base configuration used before the file and environment are applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
			EnableSocket:   true,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Solana: SolanaConfig{
			Network:        "devnet",
			Commitment:     "processed",
			RequestTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend:      StoreMemory,
			MatchesTable: "SolanaMatches",
			UsersTable:   "SolanaMatchUsers",
			SQLDriver:    "sqlite",
		},
		Archive: ArchiveConfig{
			Prefix:        "match-outcomes/",
			PresignExpiry: 5 * time.Minute,
		},
	}
}

// Load reads path (if non-empty) over the defaults and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("PORT", &c.Server.Port)
	set("AWS_REGION", &c.Store.AWSRegion)
	set("REDIS_URL", &c.Store.RedisURL)
	set("S3_BUCKET_NAME", &c.Archive.Bucket)
	set("SOLANA_WALLET", &c.Solana.WalletPath)
	set("SOLANA_NETWORK", &c.Solana.Network)
	set("LOG_LEVEL", &c.Log.Level)
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.AllowCredentials && slices.Contains(c.Server.AllowedOrigins, "*") {
		errs = append(errs, errors.New("server.allow_credentials requires explicit allowed_origins"))
	}
	if c.Solana.Network == "" {
		errs = append(errs, errors.New("solana.network is required"))
	}
	if c.Solana.Network != NetworkLocal {
		if c.Solana.WalletPath == "" {
			errs = append(errs, errors.New("solana.wallet_path is required"))
		}
		if c.Solana.ProgramID == "" {
			errs = append(errs, errors.New("solana.program_id is required"))
		}
		if c.Solana.MintKey == "" {
			errs = append(errs, errors.New("solana.mint_key is required"))
		}
	}
	switch c.Store.Backend {
	case StoreDynamo, StoreMemory:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required for the redis backend"))
		}
	case StoreSQL:
		if c.Store.SQLDSN == "" {
			errs = append(errs, errors.New("store.sql_dsn is required for the sql backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	return errors.Join(errs...)
}
