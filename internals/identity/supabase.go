package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/mental-health-navigator/high-tea/internals/logging"
)

const (
	supabaseTimeout     = 15 * time.Second
	instrumentationName = "github.com/mental-health-navigator/high-tea/internals/identity"
)

// SupabaseClient implements SessionClient against Supabase Auth (GoTrue)
// using its passwordless email OTP endpoints.
type SupabaseClient struct {
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client

	log      logging.Logger
	now      func() time.Time
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// NewSupabaseClient returns a client for the project at baseURL
// (e.g. https://xyz.supabase.co). A nil httpClient gets a 15s timeout client.
func NewSupabaseClient(baseURL, anonKey string, httpClient *http.Client, log logging.Logger) *SupabaseClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: supabaseTimeout}
	}
	if log == nil {
		log = logging.Discard()
	}
	duration, _ := otel.Meter(instrumentationName).Float64Histogram("upstream.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of upstream API calls"),
	)
	return &SupabaseClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AnonKey:    anonKey,
		HTTPClient: httpClient,
		log:        log.With("provider", "supabase"),
		now:        time.Now,
		tracer:     otel.Tracer(instrumentationName),
		duration:   duration,
	}
}

type supabaseOTPRequest struct {
	Email      string `json:"email"`
	CreateUser bool   `json:"create_user"`
}

type supabaseVerifyRequest struct {
	Type  string `json:"type"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type supabaseSession struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiresAt   int64  `json:"expires_at"`
	User        struct {
		Email string `json:"email"`
	} `json:"user"`
}

// supabaseError covers the error shapes GoTrue has used across versions.
type supabaseError struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e supabaseError) text() string {
	for _, s := range []string{e.Msg, e.ErrorDescription, e.Message, e.Error} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// SendOTP asks Supabase to email a one-time code, creating the user if needed.
func (s *SupabaseClient) SendOTP(ctx context.Context, email string) Result {
	email = NormalizeEmail(email)
	if res, ok := CheckSend(email); !ok {
		return res
	}

	status, body, err := s.post(ctx, "/auth/v1/otp", supabaseOTPRequest{Email: email, CreateUser: true})
	if err != nil {
		s.log.Error(ctx, "supabase otp request failed", "err", err)
		return Failure(StatusFailed, MsgUnexpected)
	}
	if status >= 300 {
		return s.failure(ctx, status, body, MsgSendFailed)
	}
	return Success(MsgCodeSent, nil)
}

// VerifyOTP exchanges an emailed code for a Supabase session.
func (s *SupabaseClient) VerifyOTP(ctx context.Context, email, code string) Result {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if res, ok := CheckVerify(email, code); !ok {
		return res
	}

	status, body, err := s.post(ctx, "/auth/v1/verify", supabaseVerifyRequest{Type: "email", Email: email, Token: code})
	if err != nil {
		s.log.Error(ctx, "supabase verify request failed", "err", err)
		return Failure(StatusFailed, MsgUnexpected)
	}
	if status >= 300 {
		return s.failure(ctx, status, body, MsgVerifyFailed)
	}

	var sess supabaseSession
	if err := json.Unmarshal(body, &sess); err != nil {
		s.log.Error(ctx, "supabase verify response undecodable", "err", err)
		return Failure(StatusFailed, MsgUnexpected)
	}

	expiresAt := s.now().Add(time.Duration(sess.ExpiresIn) * time.Second)
	if sess.ExpiresAt > 0 {
		expiresAt = time.Unix(sess.ExpiresAt, 0)
	}
	verifiedEmail := sess.User.Email
	if verifiedEmail == "" {
		verifiedEmail = email
	}
	return Success(MsgVerified, &Session{
		AccessToken: sess.AccessToken,
		TokenType:   sess.TokenType,
		ExpiresAt:   expiresAt,
		Email:       verifiedEmail,
	})
}

func (s *SupabaseClient) failure(ctx context.Context, status int, body []byte, fallback string) Result {
	var e supabaseError
	_ = json.Unmarshal(body, &e)
	msg := e.text()
	if msg == "" {
		msg = fallback
	}
	s.log.Warn(ctx, "supabase rejected request", "status", status, "message", msg)

	switch {
	case status == http.StatusTooManyRequests:
		return Failure(StatusRateLimited, msg)
	case status == http.StatusUnprocessableEntity && fallback == MsgSendFailed:
		return Failure(StatusInvalidData, msg)
	default:
		return Failure(StatusFailed, msg)
	}
}

func (s *SupabaseClient) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	if s.BaseURL == "" || s.AnonKey == "" {
		return 0, nil, fmt.Errorf("supabase: url or anon key not configured")
	}

	ctx, span := s.tracer.Start(ctx, "supabase POST "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	start := time.Now()

	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.AnonKey)
	req.Header.Set("Authorization", "Bearer "+s.AnonKey)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		s.record(ctx, start, path, 0)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	s.record(ctx, start, path, resp.StatusCode)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		return 0, nil, err
	}
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp.StatusCode, body, nil
}

func (s *SupabaseClient) record(ctx context.Context, start time.Time, path string, status int) {
	if s.duration == nil {
		return
	}
	s.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("upstream.api", "supabase"),
		attribute.String("upstream.path", path),
		attribute.Int("http.response.status_code", status),
	))
}
