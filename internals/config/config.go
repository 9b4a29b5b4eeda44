package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	ProviderEmail    = "email"
	ProviderSupabase = "supabase"

	UpstreamAuthNone              = ""
	UpstreamAuthClientCredentials = "client_credentials"
	UpstreamAuthGoogle            = "google"

	DefaultIngestionBaseURL = "https://hh-service-ingestion-api-30236141423.australia-southeast1.run.app"
	DefaultDBURL            = "file:hightea?mode=memory&cache=shared"
	VerifiedSessionCookie   = "Verified-Session"
)

// SMTP holds the outgoing mail server settings for the email provider.
type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Upstream holds how the server reaches the navigator and ingestion APIs.
type Upstream struct {
	NavigatorBaseURL string
	IngestionBaseURL string
	Timeout          time.Duration

	AuthMode     string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Config is the server configuration, read from the environment.
type Config struct {
	Port    string
	Env     string
	AppName string

	JWTSecret     string
	EncryptionKey string

	OTPProvider     string
	SupabaseURL     string
	SupabaseAnonKey string
	SMTP            SMTP
	OTPLogCodes     bool

	CodeTTL            time.Duration
	ResendCooldown     time.Duration
	MaxAttempts        int
	VerifiedSessionTTL time.Duration

	Cookie CookieConfig

	DBURL           string
	CleanupInterval time.Duration

	Upstream Upstream

	OTLPEndpoint string
	LogLevel     string
	LogJSON      bool
}

// Load builds Config from the environment (after LoadEnvVariables) and
// validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:    GetEnvAsStr("PORT", "8080"),
		Env:     GetEnvAsStr("APP_ENV", "development"),
		AppName: GetEnvAsStr("APP_NAME", "High Tea"),

		JWTSecret:     GetEnv("JWT_SECRET_KEY"),
		EncryptionKey: GetEnvAsStr("ENCRYPTION_KEY", ""),

		OTPProvider:     strings.ToLower(GetEnvAsStr("OTP_PROVIDER", ProviderEmail)),
		SupabaseURL:     GetEnvAsStr("SUPABASE_URL", ""),
		SupabaseAnonKey: GetEnvAsStr("SUPABASE_ANON_KEY", ""),
		SMTP: SMTP{
			Host:     GetEnvAsStr("SMTP_HOST", "smtp.gmail.com"),
			Port:     GetEnvAsInt("SMTP_PORT", 587, true),
			User:     GetEnvAsStr("SMTP_USER", ""),
			Password: GetEnvAsStr("SMTP_PASSWORD", ""),
		},
		OTPLogCodes: GetEnvAsBool("OTP_LOG_CODES", false),

		CodeTTL:            time.Duration(GetEnvAsInt("VERIFICATION_EXPIRATION_MINUTES", 10, true)) * time.Minute,
		ResendCooldown:     time.Duration(GetEnvAsInt("OTP_RESEND_COOLDOWN_SECONDS", 60, false)) * time.Second,
		MaxAttempts:        GetEnvAsInt("OTP_MAX_ATTEMPTS", 3, true),
		VerifiedSessionTTL: time.Duration(GetEnvAsInt("VERIFIED_SESSION_EXPIRATION_SECONDS", 1800, true)) * time.Second,

		Cookie: CookieConfig{
			Domain:   GetEnvAsStr("DOMAIN", ""),
			IsSecure: GetEnvAsBool("SECURE_COOKIE", true),
			HttpOnly: true, // Always HttpOnly
		},

		DBURL:           GetEnvAsStr("DB_URL", DefaultDBURL),
		CleanupInterval: time.Duration(GetEnvAsInt("CLEANUP_INTERVAL_MINUTES", 5, true)) * time.Minute,

		Upstream: Upstream{
			NavigatorBaseURL: strings.TrimRight(GetEnv("NAVIGATOR_API_BASE_URL"), "/"),
			IngestionBaseURL: strings.TrimRight(GetEnvAsStr("INGESTION_API_BASE_URL", DefaultIngestionBaseURL), "/"),
			Timeout:          time.Duration(GetEnvAsInt("UPSTREAM_TIMEOUT_SECONDS", 60, true)) * time.Second,
			AuthMode:         strings.ToLower(GetEnvAsStr("UPSTREAM_AUTH_MODE", UpstreamAuthNone)),
			TokenURL:         GetEnvAsStr("UPSTREAM_TOKEN_URL", ""),
			ClientID:         GetEnvAsStr("UPSTREAM_CLIENT_ID", ""),
			ClientSecret:     GetEnvAsStr("UPSTREAM_CLIENT_SECRET", ""),
			Scopes:           GetEnvAsList("UPSTREAM_SCOPES"),
		},

		OTLPEndpoint: GetEnvAsStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:     GetEnvAsStr("LOG_LEVEL", "info"),
		LogJSON:      GetEnvAsBool("LOG_JSON", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: PORT must be set")
	}
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET_KEY must be set")
	}
	if err := checkURL("NAVIGATOR_API_BASE_URL", c.Upstream.NavigatorBaseURL); err != nil {
		return err
	}
	if err := checkURL("INGESTION_API_BASE_URL", c.Upstream.IngestionBaseURL); err != nil {
		return err
	}

	switch c.OTPProvider {
	case ProviderEmail:
		switch len(c.EncryptionKey) {
		case 16, 24, 32:
		default:
			return errors.New("config: ENCRYPTION_KEY must be 16, 24 or 32 bytes when OTP_PROVIDER=email")
		}
		if !c.OTPLogCodes && c.SMTP.User == "" {
			return errors.New("config: SMTP_USER must be set when OTP_PROVIDER=email (or enable OTP_LOG_CODES in development)")
		}
	case ProviderSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return errors.New("config: SUPABASE_URL and SUPABASE_ANON_KEY must be set when OTP_PROVIDER=supabase")
		}
	default:
		return fmt.Errorf("config: unknown OTP_PROVIDER %q", c.OTPProvider)
	}

	if c.OTPLogCodes && c.IsProduction() {
		return errors.New("config: OTP_LOG_CODES must not be true when APP_ENV=production")
	}

	switch c.Upstream.AuthMode {
	case UpstreamAuthNone, UpstreamAuthGoogle:
	case UpstreamAuthClientCredentials:
		if c.Upstream.TokenURL == "" || c.Upstream.ClientID == "" || c.Upstream.ClientSecret == "" {
			return errors.New("config: UPSTREAM_TOKEN_URL, UPSTREAM_CLIENT_ID and UPSTREAM_CLIENT_SECRET must be set for client_credentials")
		}
	default:
		return fmt.Errorf("config: unknown UPSTREAM_AUTH_MODE %q", c.Upstream.AuthMode)
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// SessionCookie is the cookie carrying the verified-session token.
func (c *Config) SessionCookie() CookieSetting {
	return CookieSetting{
		Name:   VerifiedSessionCookie,
		Path:   "/",
		MaxAge: int(c.VerifiedSessionTTL / time.Second),
	}
}

func checkURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("config: %s must be set", key)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: %s must be an absolute URL", key)
	}
	return nil
}
