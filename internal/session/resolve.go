package session

import "github.com/pvieira/imsgd/internal/config"

// DefaultName is used when neither a flag nor the global config names a
// session.
const DefaultName = "default"

// Resolve determines the session name: an explicit flag value wins, then
// the global config's default_session, then DefaultName.
func Resolve(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultName
}
