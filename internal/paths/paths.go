// Package paths lays out the ~/.smartcart directory tree.
package paths

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory, mostly for tests and containers.
const HomeEnv = "SMARTCART_HOME"

// BaseDir returns ~/.smartcart or $SMARTCART_HOME.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".smartcart")
}

// ProfileDir returns the profile-specific client directory.
func ProfileDir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// CachePath returns the SQLite cache for a profile.
func CachePath(name string) string {
	return filepath.Join(ProfileDir(name), "cache.db")
}

// LockDir returns the directory a client process locks for a profile.
func LockDir(name string) string {
	return ProfileDir(name)
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(ProfileDir(name), "logs")
}

// LogPath returns the client log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "smartcart.log")
}

// MetricsPath returns the Prometheus textfile the client writes after a sync.
func MetricsPath(name string) string {
	return filepath.Join(ProfileDir(name), "metrics.prom")
}

// ServerDir returns the daemon's state directory.
func ServerDir() string {
	return filepath.Join(BaseDir(), "server")
}

// ServerLogPath returns the daemon log file path.
func ServerLogPath() string {
	return filepath.Join(ServerDir(), "logs", "smartcartd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnvPath returns the optional .env file next to the config.
func EnvPath() string {
	return filepath.Join(BaseDir(), ".env")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{ProfileDir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
