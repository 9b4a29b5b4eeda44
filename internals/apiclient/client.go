// Package apiclient is the terminal client's view of the High Tea server API.
// It also implements identity.SessionClient, so the OTP flow can run against
// the server's /api/otp endpoints.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/mental-health-navigator/high-tea/internals/common"
	"github.com/mental-health-navigator/high-tea/internals/identity"
	"github.com/mental-health-navigator/high-tea/internals/upstream"
)

const defaultTimeout = 60 * time.Second

// Message is one transcript entry as returned by POST /api/chat.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the body of POST /api/chat.
type ChatResponse struct {
	Message              Message              `json:"message"`
	Services             []upstream.SearchHit `json:"services"`
	Top1Similarity       float64              `json:"top1_similarity"`
	DisambiguationNeeded bool                 `json:"disambiguation_needed"`
	RequestServiceChange bool                 `json:"request_service_change"`
	SessionID            string               `json:"sessionId"`
	ConversationLength   int                  `json:"conversationLength"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return common.ErrUnauthorized
	}
	return common.ErrUpstream
}

// Client talks to the High Tea server. The verified session obtained through
// VerifyOTP is kept in memory and attached to protected calls.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu      sync.Mutex
	session *identity.Session
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: httpClient,
	}
}

// Session returns the verified session, or nil.
func (c *Client) Session() *identity.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ClearSession forgets the verified session locally.
func (c *Client) ClearSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// Chat sends one user turn. An empty sessionID starts a new conversation.
func (c *Client) Chat(ctx context.Context, message, sessionID string) (*ChatResponse, error) {
	body := map[string]any{"message": message}
	if sessionID != "" {
		body["sessionId"] = sessionID
	}
	var res ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat", body, false, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health reports whether the server's navigator backend is ready.
func (c *Client) Health(ctx context.Context) bool {
	return c.doJSON(ctx, http.MethodGet, "/api/health", nil, false, nil) == nil
}

// SendOTP asks the server to email a verification code.
func (c *Client) SendOTP(ctx context.Context, email string) identity.Result {
	email = identity.NormalizeEmail(email)
	if res, ok := identity.CheckSend(email); !ok {
		return res
	}
	return c.otpCall(ctx, "/api/otp/send", map[string]string{"email": email}, identity.MsgSendFailed)
}

// VerifyOTP checks code and, on success, keeps the returned session.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) identity.Result {
	email = identity.NormalizeEmail(email)
	if res, ok := identity.CheckVerify(email, code); !ok {
		return res
	}
	res := c.otpCall(ctx, "/api/otp/verify", map[string]string{"email": email, "code": code}, identity.MsgVerifyFailed)
	if res.OK() {
		if res.Session == nil || res.Session.AccessToken == "" {
			return identity.Failure(identity.StatusFailed, identity.MsgUnexpected)
		}
		c.mu.Lock()
		c.session = res.Session
		c.mu.Unlock()
	}
	return res
}

// Logout revokes the verified session on the server and forgets it.
func (c *Client) Logout(ctx context.Context) error {
	if c.Session() == nil {
		return nil
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/otp/logout", nil, true, nil)
	c.ClearSession()
	return err
}

// Ingest submits a service form on behalf of the verified user. An upstream
// rejection that still carries an ingestion answer is returned as a result
// with status "error", not as an error.
func (c *Client) Ingest(ctx context.Context, form upstream.ServiceForm) (*upstream.IngestResult, error) {
	status, raw, err := c.do(ctx, http.MethodPost, "/api/protected/ingest", form.Payload(), true)
	if err != nil {
		return nil, err
	}

	var res upstream.IngestResult
	if json.Unmarshal(raw, &res) == nil && res.Status != "" {
		return &res, nil
	}
	if status >= 300 {
		return nil, &APIError{Status: status, Message: errorMessage(raw, status)}
	}
	return nil, fmt.Errorf("%w: unexpected ingestion answer", common.ErrUpstream)
}

// IngestText asks the server for a structured preview of a free-text
// service description.
func (c *Client) IngestText(ctx context.Context, text string) (*upstream.TextExtraction, error) {
	var res upstream.TextExtraction
	if err := c.doJSON(ctx, http.MethodPost, "/api/protected/ingest/text", map[string]string{"text_input": text}, true, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) otpCall(ctx context.Context, path string, body any, fallback string) identity.Result {
	status, raw, err := c.do(ctx, http.MethodPost, path, body, false)
	if err != nil {
		// An empty message lets the flow controller report the timeout itself.
		if ctx.Err() != nil {
			return identity.Failure(identity.StatusFailed, "")
		}
		return identity.Failure(identity.StatusFailed, identity.MsgUnexpected)
	}

	var res identity.Result
	if json.Unmarshal(raw, &res) != nil || res.Status == "" {
		msg := errorMessage(raw, status)
		if status < 300 {
			msg = fallback
		}
		return identity.Failure(identity.StatusFailed, msg)
	}
	if !res.OK() && res.Message == "" {
		res.Message = fallback
	}
	return res
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, auth bool, out any) error {
	status, raw, err := c.do(ctx, method, path, body, auth)
	if err != nil {
		return err
	}
	if status >= 300 {
		return &APIError{Status: status, Message: errorMessage(raw, status)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, auth bool) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		s := c.Session()
		if s == nil {
			return 0, nil, common.ErrUnauthorized
		}
		req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return resp.StatusCode, raw, nil
}

// errorMessage picks the most useful text out of an error body.
func errorMessage(raw []byte, status int) string {
	var body struct {
		Error   string `json:"error"`
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if d, ok := body.Detail.(string); ok && d != "" {
			if body.Error != "" {
				return body.Error + ": " + d
			}
			return d
		}
		for _, s := range []string{body.Error, body.Message} {
			if s != "" {
				return s
			}
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) < 200 {
		return text
	}
	return http.StatusText(status)
}

// IsUnauthorized reports whether err means the verified session is missing
// or no longer accepted.
func IsUnauthorized(err error) bool {
	return errors.Is(err, common.ErrUnauthorized)
}
