package outgoing

import (
	"path/filepath"
	"strings"
	"unicode"
)

// Normalize reduces text to lowercase alphanumerics. Matching happens on
// this form because the automation layer and the database disagree about
// whitespace, punctuation and smart-quote substitution in transit.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BaseName normalizes a filename with its extension stripped.
func BaseName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return Normalize(base)
}

// chatGUIDsMatch reports whether two chat GUIDs address the same
// conversation. GUIDs look like "iMessage;-;+15551234567"; the same chat
// can be written with or without a country-code prefix depending on which
// subsystem produced the string.
func chatGUIDsMatch(a, b string) bool {
	if a == b {
		return true
	}
	addrA, okA := guidAddress(a)
	addrB, okB := guidAddress(b)
	if !okA || !okB {
		return false
	}
	return addressesMatch(addrA, addrB)
}

func guidAddress(guid string) (string, bool) {
	parts := strings.SplitN(guid, ";", 3)
	if len(parts) != 3 || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

func addressesMatch(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	da, db := digitsOnly(a), digitsOnly(b)
	if da == "" || db == "" {
		return false
	}
	return da == db || da == "1"+db || db == "1"+da
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
