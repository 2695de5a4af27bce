// Package trace turns a run's engine.EventRecord log into a redacted,
// replayable trace and supports resuming a run from a saved checkpoint
// (spec §4.H).
package trace

import (
	"strings"

	"github.com/smilemakc/ais-go/pkg/value"
)

// Mode controls how aggressively Redact scrubs a value tree before it
// is written to a trace sink.
type Mode int

const (
	// Default redacts secret-shaped keys/values only.
	Default Mode = iota
	// Audit additionally redacts secret-shaped strings (http/https/wss
	// URLs with embedded userinfo, 0x-prefixed strings of 64 or more
	// characters) even under a non-secret-looking key.
	Audit
	// Off disables redaction entirely — used only for local debugging.
	Off
)

var secretKeywords = []string{"secret", "password", "private_key", "privatekey", "token", "api_key", "apikey", "seed", "mnemonic"}

const redactedPlaceholder = "[redacted]"

// allowPath is a glob-like dotted path matcher: "*" matches exactly one
// segment, "**" matches any number of remaining segments.
type allowPath struct {
	segments []string
}

func parseAllowPath(pattern string) allowPath {
	return allowPath{segments: strings.Split(pattern, ".")}
}

func (p allowPath) matches(path []string) bool {
	return matchSegments(p.segments, path)
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	head := pattern[0]
	if head == "**" {
		if len(pattern) == 1 {
			return true
		}
		for i := 0; i <= len(path); i++ {
			if matchSegments(pattern[1:], path[i:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	if head != "*" && head != path[0] {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}

// Redactor scrubs a value tree for a given Mode, sparing any path
// matching an entry in AllowPaths.
type Redactor struct {
	Mode       Mode
	AllowPaths []string
}

func (r Redactor) allowed(path []string) bool {
	for _, p := range r.AllowPaths {
		if parseAllowPath(p).matches(path) {
			return true
		}
	}
	return false
}

func looksLikeSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range secretKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// looksLikeSecretString flags a value shaped like an embedded
// credential: an RPC URL with userinfo, or a 0x-prefixed string of 64 or
// more characters, which resembles a private key rather than a 42-character
// address. Other encodings (base58 and the like) are not detected.
func looksLikeSecretString(s string) bool {
	if strings.Contains(s, "@") && (strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "wss://")) {
		return true
	}
	if strings.HasPrefix(s, "0x") && len(s) >= 64 {
		return true
	}
	return false
}

// Redact walks v, replacing any secret-shaped key or value with a
// placeholder according to r.Mode, unless its path is in AllowPaths.
func (r Redactor) Redact(v value.Value) value.Value {
	return r.redactAt(v, nil)
}

func (r Redactor) redactAt(v value.Value, path []string) value.Value {
	if r.Mode == Off {
		return v
	}
	switch v.Kind() {
	case value.KindMap:
		out := make(map[string]value.Value, len(v.AsMap()))
		for k, child := range v.AsMap() {
			childPath := append(append([]string{}, path...), k)
			if r.allowed(childPath) {
				out[k] = child
				continue
			}
			if looksLikeSecretKey(k) {
				out[k] = value.Str(redactedPlaceholder)
				continue
			}
			out[k] = r.redactAt(child, childPath)
		}
		return value.Map(out)
	case value.KindList:
		items := v.AsList()
		out := make([]value.Value, len(items))
		for i, child := range items {
			out[i] = r.redactAt(child, path)
		}
		return value.List(out)
	case value.KindString:
		if r.Mode == Audit && looksLikeSecretString(v.AsString()) && !r.allowed(path) {
			return value.Str(redactedPlaceholder)
		}
		return v
	default:
		return v
	}
}
