package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.imsgd.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".imsgd")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// AppDBPath returns the daemon-owned imsgd.db path (send log, poll
// checkpoints). The Messages chat.db lives outside the session dir and is
// configured, not derived.
func AppDBPath(name string) string {
	return filepath.Join(Dir(name), "imsgd.db")
}

// DaemonConfigPath returns the per-session daemon.toml path.
func DaemonConfigPath(name string) string {
	return filepath.Join(Dir(name), "daemon.toml")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "imsgd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
