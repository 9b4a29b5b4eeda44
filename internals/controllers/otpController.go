package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/mental-health-navigator/high-tea/internals/identity"
	"github.com/mental-health-navigator/high-tea/internals/logging"
	"github.com/mental-health-navigator/high-tea/internals/middleware"
	"github.com/mental-health-navigator/high-tea/internals/utils"
)

// OTPController exposes the identity provider over HTTP and turns a verified
// code into a verified-session token.
type OTPController struct {
	Provider     identity.SessionClient
	TokenManager *utils.TokenManager
	Log          logging.Logger
}

func NewOTPController(provider identity.SessionClient, tokenManager *utils.TokenManager, log logging.Logger) *OTPController {
	return &OTPController{
		Provider:     provider,
		TokenManager: tokenManager,
		Log:          log,
	}
}

func (o *OTPController) Send(c *gin.Context) {
	var body struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		rejectBody(c, err, func(validator.FieldError) string { return identity.MsgInvalidEmail })
		return
	}

	res := o.Provider.SendOTP(c.Request.Context(), identity.NormalizeEmail(body.Email))
	if !res.OK() && res.Message == "" {
		res.Message = identity.MsgSendFailed
	}
	c.JSON(statusFor(res, http.StatusBadGateway), res)
}

func (o *OTPController) Verify(c *gin.Context) {
	var body struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		rejectBody(c, err, func(fe validator.FieldError) string {
			if fe.Field() == "Email" && fe.Tag() == "email" {
				return identity.MsgInvalidEmail
			}
			return identity.MsgCodeRequired
		})
		return
	}

	email := identity.NormalizeEmail(body.Email)
	res := o.Provider.VerifyOTP(c.Request.Context(), email, body.Code)
	if !res.OK() {
		if res.Message == "" {
			res.Message = identity.MsgVerifyFailed
		}
		c.JSON(statusFor(res, http.StatusUnauthorized), res)
		return
	}

	if res.Session != nil && res.Session.Email != "" {
		email = res.Session.Email
	}

	// The provider's own session stays with the provider; callers of this API
	// hold a token minted here.
	tokenMetadata, err := o.TokenManager.IssueAndSetCookie(c, email)
	if err != nil {
		o.Log.Error(c.Request.Context(), "Failed to issue verified session", "error", err)
		c.JSON(http.StatusInternalServerError, identity.Failure(identity.StatusFailed, identity.MsgUnexpected))
		return
	}

	c.JSON(http.StatusOK, identity.Success(identity.MsgVerified, &identity.Session{
		AccessToken: tokenMetadata.AccessToken,
		TokenType:   tokenMetadata.TokenType,
		ExpiresAt:   tokenMetadata.ExpiresAt,
		Email:       email,
	}))
}

// Session reports who the verified session belongs to.
func (o *OTPController) Session(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized - Authentication required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email":      claims.Email,
		"expires_at": claims.ExpiresAt.Time,
	})
}

func (o *OTPController) Logout(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized - Authentication required"})
		return
	}

	if err := o.TokenManager.Revoke(claims); err != nil {
		o.Log.Error(c.Request.Context(), "Failed to revoke token", "jti", claims.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log out"})
		return
	}

	o.TokenManager.ClearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func statusFor(res identity.Result, failed int) int {
	switch res.Status {
	case identity.StatusSuccess:
		return http.StatusOK
	case identity.StatusInvalidData:
		return http.StatusBadRequest
	case identity.StatusRateLimited:
		return http.StatusTooManyRequests
	default:
		return failed
	}
}

// rejectBody answers a body that failed to bind. Validation failures become an
// invalid_data Result carrying the message for the first failing field.
func rejectBody(c *gin.Context, err error, message func(validator.FieldError) string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, identity.Failure(identity.StatusInvalidData, message(verrs[0])))
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
}
