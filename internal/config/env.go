package config

import (
	"os"
	"strconv"
)

// EnvOverrides holds values read from the process environment. Empty
// fields mean "not set" and are left for the next layer (CLI flags) or the
// existing value to win. Mirrors the teacher's ReadEnvOverrides.
type EnvOverrides struct {
	DataDir   string
	SecretKey string
	APIToken  string
	BindHost  string
	Port      int
	LogLevel  string
}

const (
	envDataDir   = "KEEPLY_DATA_DIR"
	envSecretKey = "KEEPLY_SECRET_KEY"
	envAPIToken  = "KEEPLY_API_TOKEN"
	envBindHost  = "KEEPLY_BIND_HOST"
	envPort      = "KEEPLY_PORT"
	envLogLevel  = "KEEPLY_LOG_LEVEL"
)

// ReadEnvOverrides reads recognized KEEPLY_* environment variables.
func ReadEnvOverrides() EnvOverrides {
	var e EnvOverrides

	e.DataDir = os.Getenv(envDataDir)
	e.SecretKey = os.Getenv(envSecretKey)
	e.APIToken = os.Getenv(envAPIToken)
	e.BindHost = os.Getenv(envBindHost)
	e.LogLevel = os.Getenv(envLogLevel)

	if v := os.Getenv(envPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			e.Port = p
		}
	}

	return e
}

// Apply overlays non-empty env values onto cfg, in place.
func (e EnvOverrides) Apply(cfg *Config) {
	if e.DataDir != "" {
		cfg.DataDir = e.DataDir
	}

	if e.SecretKey != "" {
		cfg.SecretKey = e.SecretKey
	}

	if e.APIToken != "" {
		cfg.APIToken = e.APIToken
	}

	if e.BindHost != "" {
		cfg.BindHost = e.BindHost
	}

	if e.Port != 0 {
		cfg.Port = e.Port
	}

	if e.LogLevel != "" {
		cfg.Logging.Level = e.LogLevel
	}
}
