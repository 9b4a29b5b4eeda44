package utils

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/google"

	"github.com/mental-health-navigator/high-tea/internals/config"
)

const defaultGoogleScope = "https://www.googleapis.com/auth/cloud-platform"

// NewUpstreamClient returns the HTTP client used for the navigator and
// ingestion APIs. Depending on cfg.AuthMode requests carry no credentials, an
// OAuth2 client-credentials token, or Google application default credentials.
func NewUpstreamClient(ctx context.Context, cfg config.Upstream) (*http.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	base := &http.Client{Timeout: timeout}

	// oauth2 uses this client for token requests
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	var client *http.Client
	switch cfg.AuthMode {
	case config.UpstreamAuthNone:
		return base, nil
	case config.UpstreamAuthClientCredentials:
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		client = cc.Client(ctx)
	case config.UpstreamAuthGoogle:
		scopes := cfg.Scopes
		if len(scopes) == 0 {
			scopes = []string{defaultGoogleScope}
		}
		var err error
		client, err = google.DefaultClient(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("google default credentials: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown upstream auth mode %q", cfg.AuthMode)
	}

	client.Timeout = timeout
	return client, nil
}
