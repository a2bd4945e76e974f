package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir returns the per-OS default application data directory,
// mirroring the teacher's internal/config/paths.go. Overridable by the
// data_dir config key or KEEPLY_DATA_DIR environment variable.
func DefaultDataDir() string {
	if dir := os.Getenv("KEEPLY_DATA_DIR"); dir != "" {
		return dir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "keeply")
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Keeply")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Keeply")
		}

		return filepath.Join(home, "AppData", "Roaming", "Keeply")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "keeply")
		}

		return filepath.Join(home, ".local", "share", "keeply")
	}
}

// DefaultConfigPath returns the default config file path under DataDir.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.toml")
}

// LegacyLinkStatePath returns the well-known location of the pre-database
// JSON file for agent.link_state, consulted by C9's migration-on-first-read
// (spec §4.9).
func LegacyLinkStatePath(dataDir string) string {
	return filepath.Join(dataDir, "link_state.json")
}
