package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration.
type Config struct {
	RPCAddress   string `toml:"RPCAddress"`
	DataDir      string `toml:"DataDir"`
	GenesisFile  string `toml:"GenesisFile"`
	Environment  string `toml:"Environment"`
	AllowMigrate bool   `toml:"AllowMigrate"`
	// SnapshotIntervalSecs controls how often the ledger is committed to disk.
	SnapshotIntervalSecs uint64 `toml:"SnapshotIntervalSecs"`

	Log       Log       `toml:"log"`
	Telemetry Telemetry `toml:"telemetry"`
	Indexer   Indexer   `toml:"indexer"`
	Auth      Auth      `toml:"auth"`
	RateLimit RateLimit `toml:"rate_limit"`
	Protocol  Protocol  `toml:"protocol"`
}

// Log configures structured logging and optional file rotation.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures the OTLP exporters. An empty endpoint disables export.
type Telemetry struct {
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Headers  map[string]string `toml:"Headers"`
	Metrics  bool              `toml:"Metrics"`
	Traces   bool              `toml:"Traces"`
}

// Indexer configures the SQL event sink. An empty DSN disables it.
type Indexer struct {
	DSN string `toml:"DSN"`
	// ArchiveDir receives Parquet exports from cdp_archiveEvents.
	ArchiveDir string `toml:"ArchiveDir"`
}

// Auth configures JWT verification for the RPC server.
type Auth struct {
	JWTSecret    string `toml:"JWTSecret"`
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	Issuer       string `toml:"Issuer"`
	Audience     string `toml:"Audience"`
	// AdminSubjects may pause modules.
	AdminSubjects []string `toml:"AdminSubjects"`
}

// RateLimit bounds requests per authenticated actor.
type RateLimit struct {
	PerSecond float64 `toml:"PerSecond"`
	Burst     int     `toml:"Burst"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown key %s", path, undecoded[0])
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		RPCAddress:           ":8080",
		DataDir:              "./cdp-data",
		Environment:          "dev",
		SnapshotIntervalSecs: 30,
		Log:                  Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
		Indexer:              Indexer{ArchiveDir: "./cdp-data/archive"},
		Auth:                 Auth{JWTSecretEnv: "CDP_JWT_SECRET", Issuer: "cdpledger"},
		RateLimit:            RateLimit{PerSecond: 20, Burst: 40},
		Protocol:             DefaultProtocol(),
	}
}

func (cfg *Config) normalize() {
	cfg.RPCAddress = strings.TrimSpace(cfg.RPCAddress)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.GenesisFile = strings.TrimSpace(cfg.GenesisFile)
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Auth.JWTSecretEnv = strings.TrimSpace(cfg.Auth.JWTSecretEnv)
	cfg.Indexer.DSN = strings.TrimSpace(cfg.Indexer.DSN)
	cfg.Indexer.ArchiveDir = strings.TrimSpace(cfg.Indexer.ArchiveDir)
	cfg.Protocol.normalize()
}

// Validate checks the configuration for internal consistency.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.RPCAddress == "" {
		return fmt.Errorf("RPCAddress must be set")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if cfg.SnapshotIntervalSecs == 0 {
		return fmt.Errorf("SnapshotIntervalSecs must be positive")
	}
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}
	if cfg.RateLimit.PerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if cfg.RateLimit.PerSecond > 0 && cfg.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit: Burst must be positive when PerSecond is set")
	}
	if _, _, err := cfg.Protocol.Params(); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	return nil
}

// JWTSecretValue resolves the signing secret, preferring the environment.
func (a Auth) JWTSecretValue() string {
	if a.JWTSecretEnv != "" {
		if v := strings.TrimSpace(os.Getenv(a.JWTSecretEnv)); v != "" {
			return v
		}
	}
	return a.JWTSecret
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
