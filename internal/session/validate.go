package session

import "fmt"

// ValidateName checks that a session name is safe to use as a directory
// component: 1-64 characters from [a-z0-9-_].
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("session name is empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("session name %q exceeds 64 characters", name)
	}
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return fmt.Errorf("session name %q contains invalid character %q", name, r)
	}
	return nil
}
