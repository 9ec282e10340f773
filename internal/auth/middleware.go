package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// NonceHeader carries the nonce on scan submissions.
const NonceHeader = "X-Attendance-Nonce"

const claimsKey = "claims"

// TokenFrom returns the raw nonce from the nonce header, or from a bearer
// Authorization header for non-browser clients. It is not verified.
func TokenFrom(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader(NonceHeader)); token != "" {
		return token
	}
	authz := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}

// RequireNonce rejects requests without a valid nonce.
func RequireNonce(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFrom(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing nonce."})
			return
		}
		claims, err := Parse(token, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired nonce."})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireAdmin must run after RequireNonce.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok || !claims.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Administrator nonce required."})
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by RequireNonce.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}
