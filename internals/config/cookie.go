package config

// CookieConfig defines the shared security baseline for all cookies issued by the server
type CookieConfig struct {
	// Domain for the cookies
	Domain string
	// IsSecure marks cookies Secure (HTTPS only)
	IsSecure bool
	// HttpOnly hides cookies from scripts
	HttpOnly bool
}

// CookieSetting is the per-cookie part of the configuration
type CookieSetting struct {
	Name   string
	Path   string
	MaxAge int // seconds
}
