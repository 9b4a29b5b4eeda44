package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mental-health-navigator/high-tea/internals/common"
	"github.com/mental-health-navigator/high-tea/internals/utils"
)

// ClaimsKey is the gin context key holding *utils.VerifiedClaims.
const ClaimsKey = "verified"

// TokenParser validates verified-session tokens.
type TokenParser interface {
	Parse(tokenString string) (*utils.VerifiedClaims, error)
}

type RequireVerifiedMiddleware struct {
	Tokens     TokenParser
	CookieName string
}

func NewRequireVerifiedMiddleware(tokens TokenParser, cookieName string) *RequireVerifiedMiddleware {
	return &RequireVerifiedMiddleware{
		Tokens:     tokens,
		CookieName: cookieName,
	}
}

// RequireVerified lets the request through only with a valid verified-session
// token, taken from the session cookie or an Authorization bearer header.
func (m *RequireVerifiedMiddleware) RequireVerified(c *gin.Context) {
	tokenString := bearerToken(c.GetHeader("Authorization"))
	if tokenString == "" {
		if cookie, err := c.Cookie(m.CookieName); err == nil {
			tokenString = cookie
		}
	}
	if tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized - Authentication required"})
		return
	}

	claims, err := m.Tokens.Parse(tokenString)
	switch {
	case errors.Is(err, common.ErrTokenRevoked):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is invalid (logged out)"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized - Authentication required"})
		return
	}

	c.Set(ClaimsKey, claims)
	c.Next()
}

// Claims returns the claims stored by RequireVerified.
func Claims(c *gin.Context) (*utils.VerifiedClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*utils.VerifiedClaims)
	return claims, ok
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
