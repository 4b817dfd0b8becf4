// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/clkk/internal/analytics"
	"github.com/hitoshi/clkk/internal/auth"
	"github.com/hitoshi/clkk/internal/config"
	"github.com/hitoshi/clkk/internal/database"
	"github.com/hitoshi/clkk/internal/handler"
	"github.com/hitoshi/clkk/internal/identity"
	"github.com/hitoshi/clkk/internal/logger"
	"github.com/hitoshi/clkk/internal/mailer"
	"github.com/hitoshi/clkk/internal/metrics"
	"github.com/hitoshi/clkk/internal/middleware"
	"github.com/hitoshi/clkk/internal/registration"
	"github.com/hitoshi/clkk/internal/security"
	"github.com/hitoshi/clkk/internal/verification"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	switch cmd {
	case CommandHealthcheck:
		// 軽量サブコマンドのため、フル初期化をスキップする
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandMigrate:
		logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))
		cfg, err := config.LoadMigration()
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		return runMigrate(cfg)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("store_driver", cfg.StoreDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServe(ctx, cfg)
}

// server はserveサブコマンドで組み立てた依存関係をまとめる。
type server struct {
	cfg      *config.Config
	handler  http.Handler
	manager  *verification.Manager
	notifier *verification.Notifier
	closers  []closeFunc
}

// newServer はストア、認証プロバイダー、リコンサイラ管理、リスナー、ルーターを組み立てる。
func newServer(ctx context.Context, cfg *config.Config) (_ *server, err error) {
	s := &server{cfg: cfg}
	defer func() {
		if err != nil {
			err = multierr.Append(err, s.close(context.Background()))
		}
	}()

	// 1. ストア
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeStore)

	// 2. 認証プロバイダー
	provider, err := identity.NewFirebaseProvider(ctx, identity.FirebaseConfig{
		APIKey:   cfg.FirebaseAPIKey,
		Endpoint: cfg.IdentityEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create identity provider: %w", err)
	}

	// 3. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 4. 分析
	analyticsClient := analytics.NewNoop()
	if cfg.PostHogAPIKey != "" {
		analyticsClient, err = analytics.NewPostHog(cfg.PostHogAPIKey, cfg.PostHogEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create analytics client: %w", err)
		}
	}
	s.closers = append(s.closers, func(context.Context) error {
		return analyticsClient.Close()
	})
	tracker := analytics.NewTracker(analyticsClient, slog.Default())

	// 5. イベントリスナー
	listeners := []verification.Listener{collector, tracker}
	if cfg.MailEnabled() {
		listeners = append(listeners, mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			BaseURL:  cfg.BaseURL,
		}, slog.Default()))
	}
	s.notifier = verification.NewNotifier(slog.Default(), listeners...)

	// 6. リコンサイラ管理
	registrar := registration.NewService(store, registration.Config{
		MarkProfileVerified: cfg.ProfileMarkVerified,
	})
	s.manager = verification.NewManager(
		provider,
		registrar,
		verification.NewTickerScheduler(),
		s.notifier,
		slog.Default(),
		verification.Config{
			PollInterval:     cfg.PollInterval,
			OperationTimeout: cfg.OperationTimeout,
		},
		cfg.ViewIdleTimeout,
	)
	metrics.RegisterActiveGauge(reg, s.manager.Len)

	// 7. 認証サービスとセッション
	issuer := auth.NewTokenIssuer(cfg.SessionSecret, time.Duration(cfg.SessionMaxAge)*time.Second)
	authService := auth.NewService(provider, security.NewTextSanitizer(0), tracker)

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitResend),
	)
	s.closers = append(s.closers, func(context.Context) error {
		return rateLimiter.Close()
	})

	// 8. ルーター
	s.handler = handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		SessionParser:      issuer,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		StatusRecorder: collector,
		SessionCookie: middleware.SessionCookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
			MaxAge: issuer.MaxAge(),
		},
		AuthService:    authService,
		SessionIssuer:  issuer,
		Manager:        s.manager,
		Profiles:       registrar,
		MetricsHandler: metrics.Handler(reg),
	})

	return s, nil
}

// run はHTTPサーバーと掃除ループを起動し、ctxがキャンセルされるまでブロックする。
// 終了時はHTTPサーバーを停止し、リコンサイラを破棄してから配信中のイベントを待つ。
func (s *server) run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         ":" + s.cfg.ServerPort,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.manager.Start(gctx, s.cfg.SweepInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.notifier.Wait()
	return err
}

// close は確保したリソースを逆順に解放する。
func (s *server) close(ctx context.Context) error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i](ctx))
	}
	s.closers = nil
	return err
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	s, err := newServer(ctx, cfg)
	if err != nil {
		return err
	}

	runErr := s.run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := multierr.Append(runErr, s.close(closeCtx)); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.MigrationConfig) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
