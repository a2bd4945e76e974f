package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// CLIOverrides holds values explicitly set via CLI flags, the
// highest-priority layer. Mirrors the teacher's CLIOverrides.
type CLIOverrides struct {
	ConfigPath string
	DataDir    string
	SecretKey  string
}

// Load resolves the effective Config from defaults, an optional TOML file,
// environment variables, and CLI overrides, in that priority order
// (lowest to highest), mirroring the teacher's four-layer ResolveDrive.
func Load(configPath string, cli CLIOverrides, logger *slog.Logger) (*Config, error) {
	cfg := Defaults()

	path := configPath
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := loadTOMLIfExists(path, cfg); err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}

	ReadEnvOverrides().Apply(cfg)

	if cli.DataDir != "" {
		cfg.DataDir = cli.DataDir
	}

	if cli.SecretKey != "" {
		cfg.SecretKey = cli.SecretKey
	}

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	logger.Debug("config resolved",
		slog.String("data_dir", cfg.DataDir),
		slog.Bool("db_encryption", cfg.DBEncrypt),
		slog.Int("scan_workers", cfg.Scan.Workers),
	)

	return cfg, nil
}

func loadTOMLIfExists(path string, cfg *Config) error {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return err
	}

	_, err = toml.DecodeFile(path, cfg)

	return err
}

func validate(cfg *Config) error {
	if cfg.DBEncrypt && cfg.SecretKey == "" {
		return errors.New("config: db_encryption is enabled but secret_key is empty")
	}

	if cfg.Scan.Workers < 2 || cfg.Scan.Workers > 32 {
		return fmt.Errorf("config: scan_workers must be in [2,32], got %d", cfg.Scan.Workers)
	}

	if cfg.Scan.BatchLimit <= 0 {
		return fmt.Errorf("config: batch_limit must be positive, got %d", cfg.Scan.BatchLimit)
	}

	return nil
}
