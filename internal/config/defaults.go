package config

import "runtime"

// Default values applied before the TOML file, environment, and CLI layers
// are considered. Mirrors the teacher's internal/config/defaults.go role.
const (
	DefaultDBName              = "data.keeply"
	DefaultBatchLimit          = 2000
	DefaultHashMaxBytes        = 200 * 1024 * 1024 // 200 MiB, spec §4.4
	DefaultPreloadIndexMaxRows = 500000
	DefaultLRUCacheSize        = 10000
	DefaultDBPoolSize          = 4
	DefaultQueueCapacity       = 4096
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultBindHost            = "127.0.0.1"
	DefaultPort                = 8787
	DefaultWSPort              = 8788
)

// DefaultScanWorkers returns CPU count, bounded to [2, 32] per spec §5.
func DefaultScanWorkers() int {
	n := runtime.NumCPU()

	switch {
	case n < 2:
		return 2
	case n > 32:
		return 32
	default:
		return n
	}
}

// Defaults returns a Config populated with built-in defaults. Callers layer
// a TOML file, then environment variables, then CLI flags on top.
func Defaults() *Config {
	return &Config{
		DBName:   DefaultDBName,
		BindHost: DefaultBindHost,
		Port:     DefaultPort,
		WSPort:   DefaultWSPort,
		Scan: ScanConfig{
			Workers:             DefaultScanWorkers(),
			BatchLimit:          DefaultBatchLimit,
			HashMaxBytes:        DefaultHashMaxBytes,
			PreloadIndexMaxRows: DefaultPreloadIndexMaxRows,
			LRUCacheSize:        DefaultLRUCacheSize,
			DBPoolSize:          DefaultDBPoolSize,
			QueueCapacity:       DefaultQueueCapacity,
			HashingEnabled:      true,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
