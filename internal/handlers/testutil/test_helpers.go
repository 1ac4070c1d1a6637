package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gridwatch/healthindexer/internal/api"
	iauth "github.com/gridwatch/healthindexer/internal/auth"
	"github.com/gridwatch/healthindexer/internal/cache"
	sharedtestutil "github.com/gridwatch/healthindexer/internal/database/testutil"
	"github.com/gridwatch/healthindexer/internal/inference"
	"github.com/gridwatch/healthindexer/internal/models"
	"github.com/gridwatch/healthindexer/internal/services"
	"github.com/gridwatch/healthindexer/pkg/crypto"
	"github.com/gridwatch/healthindexer/pkg/mail"
	"github.com/gridwatch/healthindexer/pkg/response"
)

// CaptureMailer records outbound messages instead of delivering them.
type CaptureMailer struct {
	mu       sync.Mutex
	Messages []mail.Message
}

func (m *CaptureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
	return nil
}

// Sent returns a copy of the captured messages.
func (m *CaptureMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.Messages...)
}

// StubInference returns a canned prediction without any network traffic.
type StubInference struct {
	Result *inference.Result
	Err    error
}

func (s *StubInference) Predict(_ context.Context, _ string, body io.Reader) (*inference.Result, error) {
	_, _ = io.Copy(io.Discard, body)
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Result != nil {
		return s.Result, nil
	}
	return &inference.Result{
		HealthIndex: 85,
		AllParameters: []inference.ParameterScore{
			{Name: "Winding Condition", Score: 85},
		},
		ProvidedImages: json.RawMessage(`{}`),
		GradcamImages:  json.RawMessage(`{}`),
	}, nil
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T         *testing.T
	DB        *gorm.DB
	Router    *gin.Engine
	JWT       *iauth.JWTService
	Mailer    *CaptureMailer
	Inference *StubInference
}

// EnvOption tweaks the environment before the router is built.
type EnvOption func(*envSettings)

type envSettings struct {
	adminOverrideEmail string
}

// WithAdminOverrideEmail configures the break-glass admin identity.
func WithAdminOverrideEmail(email string) EnvOption {
	return func(s *envSettings) { s.adminOverrideEmail = email }
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var settings envSettings
	for _, opt := range opts {
		opt(&settings)
	}

	db := sharedtestutil.MustOpenTestDB(t)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret: "test-suite-super-secret-key-32-bytes!!",
		Issuer: "test-suite",
	})
	require.NoError(t, err)

	mailer := &CaptureMailer{}
	stub := &StubInference{}

	accounts := services.NewAccountService(db, jwtSvc, mailer, "https://app.example.com", nil)
	users := services.NewUserService(db, nil)
	analyses := services.NewAnalysisService(db, stub, nil)

	router, err := api.NewRouter(api.Dependencies{
		DB:        db,
		JWT:       jwtSvc,
		Policy:    iauth.NewPolicy(settings.adminOverrideEmail),
		Accounts:  accounts,
		Users:     users,
		Analyses:  analyses,
		RateStore: cache.NewMemoryStore(),
		RateLimit: 10000,
	})
	require.NoError(t, err)

	return &Env{
		T:         t,
		DB:        db,
		Router:    router,
		JWT:       jwtSvc,
		Mailer:    mailer,
		Inference: stub,
	}
}

// CreateUser inserts a verified user with a random email and returns the record.
func (e *Env) CreateUser(password string, role models.Role) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		FirstName:     "Test",
		LastName:      "User",
		Email:         "user-" + uuid.NewString() + "@example.com",
		Password:      hashed,
		Role:          role,
		EmailVerified: true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// Login authenticates and returns the issued session token.
func (e *Env) Login(email, password string) string {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result struct {
		Token string `json:"token"`
	}
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Token)
	return result.Token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// RawRequest executes a request with a caller-supplied body and content type.
func (e *Env) RawRequest(method, path string, body io.Reader, contentType, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	req, err := http.NewRequest(method, path, body)
	require.NoError(e.T, err)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
