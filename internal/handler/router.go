package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/clkk/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionParser      middleware.SessionParser
	CORSAllowedOrigins []string
	CSRFConfig         middleware.CSRFConfig
	RateLimiter        *middleware.RateLimiter
	StatusRecorder     middleware.StatusRecorder
	SessionCookie      middleware.SessionCookieConfig

	// 認証
	AuthService   AuthServiceInterface
	SessionIssuer SessionIssuer

	// 確認待ち
	Manager  ReconcilerManager
	Profiles ProfileReader

	// 運用エンドポイント
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → CSRF → Session → RateLimit
//
// CORSはプリフライトに応答するため全ルートに適用する。CSRF以降は/healthと/metricsには適用しない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SessionCookie.Secure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins...))

	r.Get("/health", healthHandler)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionIssuer, deps.Manager, deps.Profiles, deps.SessionCookie)
	verificationHandler := NewVerificationHandler(deps.Manager, deps.Profiles, deps.SessionIssuer, deps.SessionCookie)
	userHandler := NewUserHandler(deps.Profiles)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		// --- セッション不要のルート ---
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionParser))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Post("/signup", authHandler.SignUp)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
		})

		// --- 確認待ちセッションが必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionParser))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Route("/api/verification", func(r chi.Router) {
				r.Get("/", verificationHandler.GetStatus)
				r.Delete("/", verificationHandler.Close)
				// 再送は一般レート制限に加えて再送専用の制限をかける
				r.With(deps.RateLimiter.ResendMiddleware()).Post("/resend", verificationHandler.Resend)
			})

			r.Get("/api/users/me", userHandler.Me)
		})
	})

	return r
}

// healthHandler はロードバランサー向けのヘルスチェックに応答する。
// GET /health
func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
