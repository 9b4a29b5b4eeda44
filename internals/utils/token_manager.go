package utils

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mental-health-navigator/high-tea/internals/common"
	"github.com/mental-health-navigator/high-tea/internals/config"
	"github.com/mental-health-navigator/high-tea/internals/models"
)

// VerifiedClaims are carried by a verified-session token. Subject is the
// verified email address.
type VerifiedClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager issues, parses and revokes verified-session tokens and manages
// their cookie.
type TokenManager struct {
	// DB holds the revoked token ids
	DB *gorm.DB
	// CookieConfig holds the shared security baseline for all cookies issued by the server
	CookieConfig *config.CookieConfig
	// JWTSecret signs tokens (HS256)
	JWTSecret string
	// Session describes the verified-session cookie
	Session config.CookieSetting
	// Issuer is the iss claim
	Issuer string

	now func() time.Time
}

// NewTokenManager initializes and returns a new TokenManager instance
func NewTokenManager(db *gorm.DB, cookieConfig *config.CookieConfig, jwtSecret string, session config.CookieSetting) *TokenManager {
	return &TokenManager{
		DB:           db,
		CookieConfig: cookieConfig,
		JWTSecret:    jwtSecret,
		Session:      session,
		Issuer:       "high-tea",
		now:          time.Now,
	}
}

// TokenMetadata holds the results of token generation
type TokenMetadata struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Issue signs a verified-session token for email.
func (tm *TokenManager) Issue(email string) (*TokenMetadata, error) {
	now := tm.now()
	expAt := now.Add(time.Duration(tm.Session.MaxAge) * time.Second)

	claims := VerifiedClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   email,
			Issuer:    tm.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tm.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign verified session: %w", err)
	}
	return &TokenMetadata{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expAt}, nil
}

// IssueAndSetCookie issues a token for email and sets it as the session cookie.
func (tm *TokenManager) IssueAndSetCookie(c *gin.Context, email string) (*TokenMetadata, error) {
	meta, err := tm.Issue(email)
	if err != nil {
		tm.ClearSessionCookie(c)
		return nil, err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(tm.Session.Name, meta.AccessToken, tm.Session.MaxAge, tm.Session.Path, tm.CookieConfig.Domain, tm.CookieConfig.IsSecure, tm.CookieConfig.HttpOnly)
	return meta, nil
}

// ClearSessionCookie removes the session cookie from the client.
func (tm *TokenManager) ClearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(tm.Session.Name, "", -1, tm.Session.Path, tm.CookieConfig.Domain, tm.CookieConfig.IsSecure, tm.CookieConfig.HttpOnly)
}

// Parse validates signature, expiry and revocation of a token.
func (tm *TokenManager) Parse(tokenString string) (*VerifiedClaims, error) {
	claims := &VerifiedClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(tm.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.Email == "" {
		return nil, common.ErrInvalidToken
	}

	// Check if this JTI exists in the Blacklist table
	var blacklisted models.Blacklist
	err = tm.DB.Where("jti = ?", claims.ID).First(&blacklisted).Error
	switch {
	case err == nil:
		return nil, common.ErrTokenRevoked
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("check revoked token: %w", err)
	}
	return claims, nil
}

// Revoke blacklists the token until its natural expiry.
func (tm *TokenManager) Revoke(claims *VerifiedClaims) error {
	expireAt := tm.now().Add(time.Duration(tm.Session.MaxAge) * time.Second)
	if claims.ExpiresAt != nil {
		expireAt = claims.ExpiresAt.Time
	}
	return tm.DB.Create(&models.Blacklist{
		Jti:       claims.ID,
		Email:     claims.Email,
		ExpiresAt: expireAt,
	}).Error
}

// PurgeRevoked drops blacklist rows for tokens that have expired anyway.
func (tm *TokenManager) PurgeRevoked() (int64, error) {
	res := tm.DB.Unscoped().Where("expires_at < ?", tm.now()).Delete(&models.Blacklist{})
	return res.RowsAffected, res.Error
}
