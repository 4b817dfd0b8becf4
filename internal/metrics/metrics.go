// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/clkk/internal/model"
	"github.com/hitoshi/clkk/internal/verification"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// リコンサイラのリスナーとHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordTransition(from, to verification.State)
	RecordRegistration()
	RecordFailure(err error)
	RecordVerificationEmailSent()
	RecordReloadLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	transitions   *prometheus.CounterVec
	registrations prometheus.Counter
	failures      *prometheus.CounterVec
	emailsSent    prometheus.Counter
	reloadLatency prometheus.Histogram
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clkk_verification_transitions_total",
			Help: "リコンサイラの状態遷移数",
		}, []string{"from", "to"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clkk_registrations_total",
			Help: "登録完了の合計数",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clkk_verification_failures_total",
			Help: "確認サイクル失敗の種別ごとの合計数",
		}, []string{"kind"}),
		emailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clkk_verification_emails_sent_total",
			Help: "確認メール送信の合計数",
		}),
		reloadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clkk_session_reload_latency_seconds",
			Help:    "セッション再取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clkk_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.transitions,
		c.registrations,
		c.failures,
		c.emailsSent,
		c.reloadLatency,
		c.httpStatus,
	)

	return c
}

// RegisterActiveGauge は管理中のリコンサイラ数を返すゲージを登録する。
func RegisterActiveGauge(reg prometheus.Registerer, active func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "clkk_active_reconcilers",
		Help: "確認待ちセッションのリコンサイラ数",
	}, func() float64 {
		return float64(active())
	}))
}

// RecordTransition は状態遷移を記録する。
func (c *Collector) RecordTransition(from, to verification.State) {
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordRegistration は登録完了を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordFailure は失敗を種別ごとに記録する。
func (c *Collector) RecordFailure(err error) {
	c.failures.WithLabelValues(FailureKind(err)).Inc()
}

// RecordVerificationEmailSent は確認メール送信を記録する。
func (c *Collector) RecordVerificationEmailSent() {
	c.emailsSent.Inc()
}

// RecordReloadLatency はセッション再取得のレイテンシを記録する。
func (c *Collector) RecordReloadLatency(duration time.Duration) {
	c.reloadLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// HandleEvent はverification.Listenerを実装する。
func (c *Collector) HandleEvent(e verification.Event) {
	switch e.Type {
	case verification.EventStateChanged:
		c.RecordTransition(e.From, e.To)
	case verification.EventReloaded:
		c.RecordReloadLatency(e.Duration)
	case verification.EventCompleted:
		c.RecordRegistration()
	case verification.EventFailed:
		c.RecordFailure(e.Err)
	case verification.EventVerificationEmailSent:
		c.RecordVerificationEmailSent()
	}
}

// FailureKind はエラー分類をメトリクスのラベル値に変換する。
func FailureKind(err error) string {
	switch {
	case errors.Is(err, model.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, model.ErrNetwork):
		return "network"
	case errors.Is(err, model.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, model.ErrRateLimited):
		return "rate_limited"
	}
	return "other"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 収集に失敗したメトリクスがあっても取得できた分は返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}
