// Package auth provides the bearer-token gate cmd/server puts in front
// of its mutating endpoints. It plays the role the teacher's
// application/auth and application/systemkey packages play together,
// trimmed to what this domain actually needs: a static allowlist of
// operator-issued API keys, not a user/session/OAuth subsystem.
package auth

import "errors"

// ErrNoToken is returned when a request carries no bearer token at all.
var ErrNoToken = errors.New("auth: no bearer token provided")

// ErrInvalidToken is returned when a bearer token doesn't match any
// configured key.
var ErrInvalidToken = errors.New("auth: invalid bearer token")

// Gate validates a bearer token against a fixed set of API keys loaded
// from config.ServerConfig.APIKeys. An empty key set means the gate
// accepts every request, matching the teacher's "auth optional in dev"
// posture for a freshly unboxed deployment.
type Gate struct {
	keys map[string]struct{}
}

// NewGate builds a Gate over the given allowlist.
func NewGate(apiKeys []string) *Gate {
	keys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	return &Gate{keys: keys}
}

// Enabled reports whether the gate has any keys configured. A server
// with no configured keys runs open, which a caller should only do in
// local/dev mode.
func (g *Gate) Enabled() bool { return len(g.keys) > 0 }

// Authenticate checks token against the configured allowlist.
func (g *Gate) Authenticate(token string) error {
	if !g.Enabled() {
		return nil
	}
	if token == "" {
		return ErrNoToken
	}
	if _, ok := g.keys[token]; !ok {
		return ErrInvalidToken
	}
	return nil
}
