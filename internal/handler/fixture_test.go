package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/clkk/internal/auth"
	"github.com/hitoshi/clkk/internal/middleware"
	"github.com/hitoshi/clkk/internal/model"
	"github.com/hitoshi/clkk/internal/registration"
	"github.com/hitoshi/clkk/internal/repository"
	"github.com/hitoshi/clkk/internal/verification"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのテスト用モック。
type mockAuthService struct {
	signUpFn func(ctx context.Context, in auth.SignUpInput) (*model.Session, error)
	loginFn  func(ctx context.Context, email, password string) (*model.Session, error)
}

func (m *mockAuthService) SignUp(ctx context.Context, in auth.SignUpInput) (*model.Session, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, in)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, errors.New("not implemented")
}

// mockProvider はverification.SessionProviderのテスト用モック。
type mockProvider struct {
	mu        sync.Mutex
	verified  bool
	reloadErr error
	sendErr   error
	sent      int
}

func (m *mockProvider) Reload(ctx context.Context, session *model.Session) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reloadErr != nil {
		return nil, m.reloadErr
	}
	fresh := *session
	fresh.EmailVerified = m.verified
	return &fresh, nil
}

func (m *mockProvider) SendVerificationEmail(ctx context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent++
	return nil
}

func (m *mockProvider) setVerified(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified = v
}

func (m *mockProvider) setReloadErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadErr = err
}

func (m *mockProvider) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

// idleScheduler はティックを発火させないScheduler。テストはReconciler.Tickを直接呼ぶ。
type idleScheduler struct{}

type idleTimer struct{}

func (idleTimer) Stop() {}

func (idleScheduler) Every(time.Duration, func()) verification.Timer { return idleTimer{} }

// --- テストフィクスチャ ---

type fixture struct {
	t        *testing.T
	auth     *mockAuthService
	provider *mockProvider
	store    *repository.MemoryDocumentStore
	profiles *registration.Service
	issuer   *auth.TokenIssuer
	manager  *verification.Manager
	limiter  *middleware.RateLimiter
	router   http.Handler
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var logBuf bytes.Buffer
	logger := newTestLogger(&logBuf)

	f := &fixture{
		t:        t,
		auth:     &mockAuthService{},
		provider: &mockProvider{},
		store:    repository.NewMemoryDocumentStore(time.Now),
		issuer:   auth.NewTokenIssuer("test-secret", time.Hour),
	}
	f.profiles = registration.NewService(f.store, registration.Config{})
	f.manager = verification.NewManager(f.provider, f.profiles, idleScheduler{}, nil, logger, verification.Config{}, 0)
	f.limiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(func() {
		f.limiter.Stop()
		f.manager.Shutdown()
	})

	f.router = NewRouter(&RouterDeps{
		Logger:             logger,
		SessionParser:      f.issuer,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		RateLimiter:        f.limiter,
		SessionCookie:      middleware.SessionCookieConfig{MaxAge: time.Hour},
		AuthService:        f.auth,
		SessionIssuer:      f.issuer,
		Manager:            f.manager,
		Profiles:           f.profiles,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "# metrics\n")
		}),
	})
	return f
}

// sessionCookie は指定セッションの署名済みCookieを返す。
func (f *fixture) sessionCookie(session *model.Session) *http.Cookie {
	f.t.Helper()
	token, err := f.issuer.Issue(session)
	if err != nil {
		f.t.Fatalf("Issue: %v", err)
	}
	return &http.Cookie{Name: middleware.SessionCookieName, Value: token}
}

// do はCSRFトークンを付与してリクエストを実行する。
func (f *fixture) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "csrf"})
	req.Header.Set("X-CSRF-Token", "csrf")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func pendingSession() *model.Session {
	return &model.Session{
		UserID:    "u1",
		Email:     "ada@example.com",
		IDToken:   "id-token",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode body: %v\nraw: %s", err, w.Body.String())
	}
	return v
}

// responseCookie はレスポンスで設定された指定名のCookieを返す。
func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// serveRaw はCSRFトークンを付与せずにリクエストを実行する。
func serveRaw(f *fixture, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}
