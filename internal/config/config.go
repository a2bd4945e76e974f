// Package config implements TOML configuration loading, environment
// overrides, and platform-specific path resolution for the backup agent
// (spec §6.5).
package config

// Config is the top-level configuration structure, loaded from a TOML file
// and then overridden by environment variables and CLI flags (see
// Load). Field names mirror spec.md §6.5 exactly.
type Config struct {
	DataDir     string `toml:"data_dir"`
	DBName      string `toml:"db_name"`
	DBEncrypt   bool   `toml:"db_encryption"`
	SecretKey   string `toml:"secret_key"`
	APIToken    string `toml:"api_token"`
	BindHost    string `toml:"bind_host"`
	Port        int    `toml:"port"`
	WSPort      int    `toml:"ws_port"`
	Scan        ScanConfig
	Logging     LoggingConfig
}

// ScanConfig controls scan tuning (spec.md §6.5 last row).
type ScanConfig struct {
	Workers             int   `toml:"scan_workers"`
	BatchLimit          int   `toml:"batch_limit"`
	HashMaxBytes        int64 `toml:"hash_max_bytes"`
	PreloadIndexMaxRows int   `toml:"preload_index_max_rows"`
	LRUCacheSize        int   `toml:"lru_cache_size"`
	DBPoolSize          int   `toml:"db_pool_size"`
	QueueCapacity       int   `toml:"queue_capacity"`
	FollowSymlinks      bool  `toml:"follow_symlinks"`
	ExcludeGlobs        []string `toml:"exclude_globs"`
	HashingEnabled      bool  `toml:"hashing_enabled"`
}

// LoggingConfig controls log output (ambient stack, not in spec.md §6.5 but
// carried regardless per the teacher's logging.LogLevel/LogFormat split).
type LoggingConfig struct {
	Level  string `toml:"log_level"`
	Format string `toml:"log_format"`
}
