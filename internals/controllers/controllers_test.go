package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mental-health-navigator/high-tea/internals/config"
	"github.com/mental-health-navigator/high-tea/internals/identity"
	"github.com/mental-health-navigator/high-tea/internals/logging"
	"github.com/mental-health-navigator/high-tea/internals/middleware"
	"github.com/mental-health-navigator/high-tea/internals/models"
	"github.com/mental-health-navigator/high-tea/internals/upstream"
	"github.com/mental-health-navigator/high-tea/internals/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeNavigator struct {
	reply     *upstream.ChatReply
	result    *upstream.SearchResult
	err       error
	ready     bool
	gotMsg    string
	gotSessID string
	gotSearch upstream.SearchRequest
}

func (f *fakeNavigator) SendChatMessage(_ context.Context, message, sessionID string) (*upstream.ChatReply, error) {
	f.gotMsg, f.gotSessID = message, sessionID
	return f.reply, f.err
}

func (f *fakeNavigator) SearchServices(_ context.Context, req upstream.SearchRequest) (*upstream.SearchResult, error) {
	f.gotSearch = req
	return f.result, f.err
}

func (f *fakeNavigator) CheckHealth(context.Context) bool { return f.ready }

type fakeIngestion struct {
	fwd      *upstream.Forwarded
	text     *upstream.TextExtraction
	err      error
	gotBody  map[string]any
	gotEmail string
}

func (f *fakeIngestion) ForwardJSON(_ context.Context, payload map[string]any, email string) (*upstream.Forwarded, error) {
	f.gotBody, f.gotEmail = payload, email
	return f.fwd, f.err
}

func (f *fakeIngestion) IngestText(context.Context, string) (*upstream.TextExtraction, error) {
	return f.text, f.err
}

type fakeProvider struct {
	send   identity.Result
	verify identity.Result
}

func (f *fakeProvider) SendOTP(context.Context, string) identity.Result { return f.send }

func (f *fakeProvider) VerifyOTP(context.Context, string, string) identity.Result { return f.verify }

func newTokenManager(t *testing.T) *utils.TokenManager {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Blacklist{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return utils.NewTokenManager(db, &config.CookieConfig{HttpOnly: true}, "test-secret",
		config.CookieSetting{Name: config.VerifiedSessionCookie, Path: "/", MaxAge: 1800})
}

func doJSON(r http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func navigatorRouter(nav Navigator) *gin.Engine {
	ctrl := NewNavigatorController(nav, logging.Discard())
	r := gin.New()
	r.POST("/api/chat", ctrl.Chat)
	r.POST("/api/search", ctrl.Search)
	r.GET("/api/health", ctrl.Health)
	return r
}

func TestChat_ShapesReply(t *testing.T) {
	name := "Headspace"
	nav := &fakeNavigator{reply: &upstream.ChatReply{
		SessionID:            "s-1",
		Reply:                "  Here are some services.\n",
		Services:             []upstream.SearchHit{{ServiceCampusKey: "k1", ServiceName: &name}},
		Top1Similarity:       0.82,
		ConversationLength:   2,
		RequestServiceChange: true,
	}}
	r := navigatorRouter(nav)

	w := doJSON(r, http.MethodPost, "/api/chat", `{"message":"I need help","sessionId":"s-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "assistant", res.Message.Role)
	assert.Equal(t, "Here are some services.", res.Message.Content)
	assert.Len(t, res.Message.ID, 36)
	assert.Equal(t, "s-1", res.SessionID)
	assert.Equal(t, 2, res.ConversationLength)
	assert.True(t, res.RequestServiceChange)
	require.Len(t, res.Services, 1)
	assert.Equal(t, "Headspace", *res.Services[0].ServiceName)

	assert.Equal(t, "I need help", nav.gotMsg)
	assert.Equal(t, "s-1", nav.gotSessID)
}

func TestChat_BadRequests(t *testing.T) {
	r := navigatorRouter(&fakeNavigator{})

	w := doJSON(r, http.MethodPost, "/api/chat", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON payload", decode(t, w)["error"])

	w = doJSON(r, http.MethodPost, "/api/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Message is required", decode(t, w)["error"])
}

func TestChat_UpstreamError(t *testing.T) {
	r := navigatorRouter(&fakeNavigator{err: &upstream.Error{API: "Mental Health", Status: 500, Body: []byte(`{"detail":"index offline"}`)}})

	w := doJSON(r, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Mental Health API error", body["error"])
	assert.Equal(t, "index offline", body["detail"])

	r = navigatorRouter(&fakeNavigator{err: errors.New("dial tcp: refused")})
	w = doJSON(r, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Mental Health API is unavailable", decode(t, w)["error"])
}

func TestSearch(t *testing.T) {
	nav := &fakeNavigator{result: &upstream.SearchResult{Items: []upstream.SearchHit{}, Top1Similarity: 0.5}}
	r := navigatorRouter(nav)

	w := doJSON(r, http.MethodPost, "/api/search", `{"query":"anxiety","max_results":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anxiety", nav.gotSearch.Query)
	require.NotNil(t, nav.gotSearch.MaxResults)
	assert.Equal(t, 3, *nav.gotSearch.MaxResults)
	assert.Nil(t, nav.gotSearch.SimilarityThreshold)

	w = doJSON(r, http.MethodPost, "/api/search", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	w := doJSON(navigatorRouter(&fakeNavigator{ready: true}), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ready"])

	w = doJSON(navigatorRouter(&fakeNavigator{}), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, decode(t, w)["ready"])
}

func otpRouter(t *testing.T, p identity.SessionClient) (*gin.Engine, *utils.TokenManager) {
	tm := newTokenManager(t)
	ctrl := NewOTPController(p, tm, logging.Discard())
	mw := middleware.NewRequireVerifiedMiddleware(tm, config.VerifiedSessionCookie)

	r := gin.New()
	r.POST("/api/otp/send", ctrl.Send)
	r.POST("/api/otp/verify", ctrl.Verify)
	r.GET("/api/otp/session", mw.RequireVerified, ctrl.Session)
	r.POST("/api/otp/logout", mw.RequireVerified, ctrl.Logout)
	return r, tm
}

func TestOTPSend_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		result identity.Result
		want   int
		msg    string
	}{
		{"success", identity.Success(identity.MsgCodeSent, nil), http.StatusOK, identity.MsgCodeSent},
		{"invalid", identity.Failure(identity.StatusInvalidData, identity.MsgInvalidEmail), http.StatusBadRequest, identity.MsgInvalidEmail},
		{"rate limited", identity.Failure(identity.StatusRateLimited, "Please wait 10 seconds before requesting a new code"), http.StatusTooManyRequests, "Please wait 10 seconds before requesting a new code"},
		{"failed without message", identity.Failure(identity.StatusFailed, ""), http.StatusBadGateway, identity.MsgSendFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := otpRouter(t, &fakeProvider{send: tc.result})

			w := doJSON(r, http.MethodPost, "/api/otp/send", `{"email":"user@example.com"}`)
			assert.Equal(t, tc.want, w.Code)
			assert.Equal(t, tc.msg, decode(t, w)["message"])
		})
	}
}

func TestOTPVerify_MintsSessionThenLogout(t *testing.T) {
	r, tm := otpRouter(t, &fakeProvider{verify: identity.Success(identity.MsgVerified, &identity.Session{Email: "user@example.com"})})

	w := doJSON(r, http.MethodPost, "/api/otp/verify", `{"email":"User@Example.com","code":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res identity.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, identity.StatusSuccess, res.Status)
	require.NotNil(t, res.Session)
	assert.Equal(t, "Bearer", res.Session.TokenType)
	assert.Equal(t, "user@example.com", res.Session.Email)
	assert.Contains(t, w.Header().Get("Set-Cookie"), config.VerifiedSessionCookie+"=")

	claims, err := tm.Parse(res.Session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims.Email)

	bearer := "Bearer " + res.Session.AccessToken
	w = doJSON(r, http.MethodGet, "/api/otp/session", "", "Authorization", bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user@example.com", decode(t, w)["email"])

	w = doJSON(r, http.MethodPost, "/api/otp/logout", "", "Authorization", bearer)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/otp/session", "", "Authorization", bearer)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token is invalid (logged out)", decode(t, w)["error"])
}

func TestOTPVerify_Failures(t *testing.T) {
	r, _ := otpRouter(t, &fakeProvider{verify: identity.Failure(identity.StatusFailed, "")})
	w := doJSON(r, http.MethodPost, "/api/otp/verify", `{"email":"user@example.com","code":"000000"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, identity.MsgVerifyFailed, decode(t, w)["message"])
	assert.Empty(t, w.Header().Get("Set-Cookie"))

	r, _ = otpRouter(t, &fakeProvider{verify: identity.Failure(identity.StatusInvalidData, identity.MsgCodeFormat)})
	w = doJSON(r, http.MethodPost, "/api/otp/verify", `{"email":"user@example.com","code":"12"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/otp/verify", `[`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON payload", decode(t, w)["error"])
}

func TestOTPRequestValidation(t *testing.T) {
	p := &fakeProvider{
		send:   identity.Success(identity.MsgCodeSent, nil),
		verify: identity.Success(identity.MsgVerified, nil),
	}
	r, _ := otpRouter(t, p)

	tests := []struct {
		name string
		path string
		body string
		msg  string
	}{
		{"send without email", "/api/otp/send", `{}`, identity.MsgInvalidEmail},
		{"send malformed email", "/api/otp/send", `{"email":"not-an-email"}`, identity.MsgInvalidEmail},
		{"verify without code", "/api/otp/verify", `{"email":"user@example.com"}`, identity.MsgCodeRequired},
		{"verify without email", "/api/otp/verify", `{"code":"123456"}`, identity.MsgCodeRequired},
		{"verify malformed email", "/api/otp/verify", `{"email":"nope","code":"123456"}`, identity.MsgInvalidEmail},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var res identity.Result
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.Equal(t, identity.StatusInvalidData, res.Status)
			assert.Equal(t, tc.msg, res.Message)
			assert.Empty(t, w.Header().Get("Set-Cookie"))
		})
	}

	w := doJSON(r, http.MethodPost, "/api/otp/send", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON payload", decode(t, w)["error"])
}

func ingestRouter(t *testing.T, ing Ingestion) (*gin.Engine, string) {
	tm := newTokenManager(t)
	meta, err := tm.Issue("user@example.com")
	require.NoError(t, err)

	ctrl := NewIngestController(ing, logging.Discard())
	mw := middleware.NewRequireVerifiedMiddleware(tm, config.VerifiedSessionCookie)
	r := gin.New()
	protected := r.Group("/api/protected", mw.RequireVerified)
	protected.POST("/ingest", ctrl.Ingest)
	protected.POST("/ingest/text", ctrl.IngestText)
	return r, "Bearer " + meta.AccessToken
}

func TestIngest_ForwardsUpstreamAnswer(t *testing.T) {
	ing := &fakeIngestion{fwd: &upstream.Forwarded{Status: http.StatusCreated, Body: []byte(`{"status":"created","reference_id":"r-1"}`)}}
	r, bearer := ingestRouter(t, ing)

	w := doJSON(r, http.MethodPost, "/api/protected/ingest", `{"service_name":"Headspace","phone":""}`, "Authorization", bearer)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"status":"created","reference_id":"r-1"}`, w.Body.String())
	assert.Equal(t, "user@example.com", ing.gotEmail)
	assert.Equal(t, "Headspace", ing.gotBody["service_name"])
}

func TestIngest_Errors(t *testing.T) {
	r, bearer := ingestRouter(t, &fakeIngestion{err: errors.New("connection reset")})

	w := doJSON(r, http.MethodPost, "/api/protected/ingest", `{"service_name":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/protected/ingest", `nope`, "Authorization", bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON payload", decode(t, w)["error"])

	w = doJSON(r, http.MethodPost, "/api/protected/ingest", `{"service_name":"x"}`, "Authorization", bearer)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Internal server error", body["error"])
	assert.Equal(t, "connection reset", body["detail"])
}

func TestIngestText(t *testing.T) {
	ing := &fakeIngestion{text: &upstream.TextExtraction{
		ExtractedPayload: map[string]any{"service_name": "Headspace"},
		MissingFields:    []string{"phone"},
	}}
	r, bearer := ingestRouter(t, ing)

	w := doJSON(r, http.MethodPost, "/api/protected/ingest/text", `{"text_input":"Headspace in Melbourne"}`, "Authorization", bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"phone"}, decode(t, w)["missing_fields"])

	w = doJSON(r, http.MethodPost, "/api/protected/ingest/text", `{"text_input":" "}`, "Authorization", bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ing.err = &upstream.Error{API: "Ingestion", Status: http.StatusUnprocessableEntity, Body: []byte(`{"detail":"text too short"}`)}
	w = doJSON(r, http.MethodPost, "/api/protected/ingest/text", `{"text_input":"hi"}`, "Authorization", bearer)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "text too short", decode(t, w)["error"])
}
