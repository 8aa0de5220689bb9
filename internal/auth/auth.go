package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

// Auth checks bearer API keys. An Auth with no keys admits every request.
type Auth struct {
	keys [][]byte
}

// New builds an Auth from the configured keys.
func New(keys []string) (*Auth, error) {
	seen := make(map[string]struct{}, len(keys))
	a := &Auth{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, errors.New("empty api key in config")
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		a.keys = append(a.keys, []byte(k))
	}
	return a, nil
}

// Enabled reports whether any key is configured.
func (a *Auth) Enabled() bool {
	return a != nil && len(a.keys) > 0
}

// Allow reports whether the Authorization header carries a known key.
func (a *Auth) Allow(header string) bool {
	if !a.Enabled() {
		return true
	}
	token, ok := ParseBearerToken(header)
	if !ok {
		return false
	}
	return a.Lookup(token)
}

// Lookup reports whether apiKey is configured.
func (a *Auth) Lookup(apiKey string) bool {
	if a == nil || apiKey == "" {
		return false
	}
	found := 0
	for _, k := range a.keys {
		found |= subtle.ConstantTimeCompare(k, []byte(apiKey))
	}
	return found == 1
}

// ParseBearerToken extracts the token from an Authorization: Bearer header.
func ParseBearerToken(h string) (string, bool) {
	parts := strings.Fields(h)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
