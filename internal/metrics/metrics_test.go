package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/clkk/internal/model"
	"github.com/hitoshi/clkk/internal/verification"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily はレジストリから指定名のメトリクスファミリーを取得する。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labelValue はラベル値が一致するメトリクスのカウンタ値を返す。
func counterWithLabels(t *testing.T, mf *dto.MetricFamily, labels map[string]string) float64 {
	t.Helper()
	for _, m := range mf.GetMetric() {
		match := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
			}
		}
		if match {
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("no %s metric with labels %v", mf.GetName(), labels)
	return 0
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordTransition_IncrementsCounterWithLabels は状態遷移がfrom/toラベル付きで記録されることを検証する。
func TestRecordTransition_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTransition(verification.StatePending, verification.StateVerifying)
	c.RecordTransition(verification.StatePending, verification.StateVerifying)
	c.RecordTransition(verification.StateVerifying, verification.StatePending)

	mf := findMetricFamily(t, reg, "clkk_verification_transitions_total")
	if got := counterWithLabels(t, mf, map[string]string{"from": "pending", "to": "verifying"}); got != 2 {
		t.Errorf("pending->verifying = %v, want 2", got)
	}
	if got := counterWithLabels(t, mf, map[string]string{"from": "verifying", "to": "pending"}); got != 1 {
		t.Errorf("verifying->pending = %v, want 1", got)
	}
}

// TestRecordFailure_LabelsByKind は失敗がエラー分類ごとに記録されることを検証する。
func TestRecordFailure_LabelsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFailure(fmt.Errorf("failed to reload account: %w", model.ErrNetwork))
	c.RecordFailure(model.ErrNetwork)
	c.RecordFailure(model.ErrPermissionDenied)

	mf := findMetricFamily(t, reg, "clkk_verification_failures_total")
	if got := counterWithLabels(t, mf, map[string]string{"kind": "network"}); got != 2 {
		t.Errorf("network = %v, want 2", got)
	}
	if got := counterWithLabels(t, mf, map[string]string{"kind": "permission_denied"}); got != 1 {
		t.Errorf("permission_denied = %v, want 1", got)
	}
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{model.ErrSessionExpired, "session_expired"},
		{model.ErrNetwork, "network"},
		{model.ErrPermissionDenied, "permission_denied"},
		{model.ErrRateLimited, "rate_limited"},
		{errors.New("boom"), "other"},
		{nil, "other"},
	}

	for _, tt := range tests {
		if got := FailureKind(tt.err); got != tt.want {
			t.Errorf("FailureKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

// TestRecordReloadLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordReloadLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReloadLatency(250 * time.Millisecond)
	c.RecordReloadLatency(750 * time.Millisecond)

	mf := findMetricFamily(t, reg, "clkk_session_reload_latency_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
	if h.GetSampleSum() != 1.0 {
		t.Errorf("sample sum = %v, want 1.0", h.GetSampleSum())
	}
}

// TestHandleEvent_DispatchesByType はリコンサイライベントが対応するメトリクスに反映されることを検証する。
func TestHandleEvent_DispatchesByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.HandleEvent(verification.Event{Type: verification.EventStateChanged, From: verification.StateRegistering, To: verification.StateDone})
	c.HandleEvent(verification.Event{Type: verification.EventCompleted, UserID: "u1"})
	c.HandleEvent(verification.Event{Type: verification.EventFailed, Err: model.ErrSessionExpired})
	c.HandleEvent(verification.Event{Type: verification.EventVerificationEmailSent})
	c.HandleEvent(verification.Event{Type: verification.EventVerificationEmailSent})
	c.HandleEvent(verification.Event{Type: verification.EventReloaded, Duration: time.Second})

	if got := findMetricFamily(t, reg, "clkk_registrations_total").GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("registrations = %v, want 1", got)
	}
	if got := findMetricFamily(t, reg, "clkk_verification_emails_sent_total").GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("emails sent = %v, want 2", got)
	}
	failures := findMetricFamily(t, reg, "clkk_verification_failures_total")
	if got := counterWithLabels(t, failures, map[string]string{"kind": "session_expired"}); got != 1 {
		t.Errorf("session_expired failures = %v, want 1", got)
	}
	transitions := findMetricFamily(t, reg, "clkk_verification_transitions_total")
	if got := counterWithLabels(t, transitions, map[string]string{"from": "registering", "to": "done"}); got != 1 {
		t.Errorf("registering->done = %v, want 1", got)
	}
	if got := findMetricFamily(t, reg, "clkk_session_reload_latency_seconds").GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("reload samples = %d, want 1", got)
	}
}

// TestRegisterActiveGauge_ReadsCurrentValue はゲージが取得時点の値を返すことを検証する。
func TestRegisterActiveGauge_ReadsCurrentValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	active := 3
	RegisterActiveGauge(reg, func() int { return active })

	if got := findMetricFamily(t, reg, "clkk_active_reconcilers").GetMetric()[0].GetGauge().GetValue(); got != 3 {
		t.Errorf("gauge = %v, want 3", got)
	}
	active = 1
	if got := findMetricFamily(t, reg, "clkk_active_reconcilers").GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("gauge = %v, want 1", got)
	}
}

// TestCollector_ImplementsInterfaces はCollectorがインターフェースを満たすことを検証する。
func TestCollector_ImplementsInterfaces(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
	var _ verification.Listener = (*Collector)(nil)
}

// TestMultipleCollectors_IndependentRegistries は別レジストリのCollectorが干渉しないことを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	_ = NewCollector(reg2)

	c1.RecordRegistration()

	if got := findMetricFamily(t, reg1, "clkk_registrations_total").GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("reg1 registrations = %v, want 1", got)
	}
	if got := findMetricFamily(t, reg2, "clkk_registrations_total").GetMetric()[0].GetCounter().GetValue(); got != 0 {
		t.Errorf("reg2 registrations = %v, want 0", got)
	}
}
