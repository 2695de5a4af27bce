package rest

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/ais-go/internal/application/auth"
)

// AuthMiddleware gates mutating endpoints behind a bearer token,
// grounded on the teacher's system-key extraction (bearer or a
// dedicated header) but checked against a flat operator-issued
// allowlist instead of a DB-backed key service.
type AuthMiddleware struct {
	gate *auth.Gate
}

func NewAuthMiddleware(gate *auth.Gate) *AuthMiddleware {
	return &AuthMiddleware{gate: gate}
}

// RequireAPIKey rejects the request unless it carries a valid token,
// via either "Authorization: Bearer <key>" or "X-API-Key: <key>". A
// gate with no configured keys runs open.
func (m *AuthMiddleware) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.gate.Enabled() {
			c.Next()
			return
		}

		token := extractToken(c)
		if err := m.gate.Authenticate(token); err != nil {
			respondAPIError(c, err)
			c.Abort()
			return
		}

		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
