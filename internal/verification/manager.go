package verification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/clkk/internal/model"
)

// DefaultViewIdleTimeout は確認待ち画面からのアクセスが途絶えたとみなすまでの時間。
const DefaultViewIdleTimeout = 2 * time.Minute

// Manager はユーザーごとに1つのリコンサイラを管理する。
type Manager struct {
	provider    SessionProvider
	registrar   Registrar
	scheduler   Scheduler
	notifier    *Notifier
	logger      *slog.Logger
	config      Config
	idleTimeout time.Duration
	now         func() time.Time

	mu          sync.Mutex
	reconcilers map[string]*Reconciler
}

// NewManager はManagerを生成する。idleTimeoutが0以下の場合はDefaultViewIdleTimeoutを使用する。
func NewManager(
	provider SessionProvider,
	registrar Registrar,
	scheduler Scheduler,
	notifier *Notifier,
	logger *slog.Logger,
	config Config,
	idleTimeout time.Duration,
) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultViewIdleTimeout
	}
	return &Manager{
		provider:    provider,
		registrar:   registrar,
		scheduler:   scheduler,
		notifier:    notifier,
		logger:      logger,
		config:      config,
		idleTimeout: idleTimeout,
		now:         time.Now,
		reconcilers: make(map[string]*Reconciler),
	}
}

// Open はセッションのリコンサイラを返す。
// 進行中のものがあればそれを返し、なければ（終端状態のものは破棄して）新しく生成して開始する。
func (m *Manager) Open(session *model.Session) *Reconciler {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.reconcilers[session.UserID]; ok {
		snap := existing.Snapshot()
		if !snap.TornDown && !snap.State.IsTerminal() {
			existing.Touch()
			return existing
		}
		existing.Teardown()
	}

	r := New(session, m.provider, m.registrar, m.scheduler, m.notifier, m.logger, m.config, WithClock(m.now))
	m.reconcilers[session.UserID] = r
	r.Start()
	return r
}

// Get はユーザーのリコンサイラを返す。存在しない場合はnil。
func (m *Manager) Get(userID string) *Reconciler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconcilers[userID]
}

// Close はユーザーのリコンサイラを破棄して登録を解除する。存在した場合trueを返す。
func (m *Manager) Close(userID string) bool {
	m.mu.Lock()
	r, ok := m.reconcilers[userID]
	delete(m.reconcilers, userID)
	m.mu.Unlock()

	if ok {
		r.Teardown()
	}
	return ok
}

// Len は管理中のリコンサイラ数を返す。
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reconcilers)
}

// Sweep は画面からのアクセスがidleTimeoutを超えて途絶えたリコンサイラを破棄する。
// 破棄した件数を返す。
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	var stale []*Reconciler
	for uid, r := range m.reconcilers {
		if r.LastSeen().Before(cutoff) {
			stale = append(stale, r)
			delete(m.reconcilers, uid)
		}
	}
	m.mu.Unlock()

	for _, r := range stale {
		r.Teardown()
	}
	return len(stale)
}

// Start はintervalごとにSweepを実行する。コンテキストがキャンセルされるまで実行を継続し、
// 終了時に全リコンサイラを破棄する。
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("リコンサイラの掃除ループを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("idle_timeout", m.idleTimeout),
	)

	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			m.logger.Info("リコンサイラの掃除ループを停止しました")
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Info("放置されたリコンサイラを破棄しました",
					slog.Int("count", n),
				)
			}
		}
	}
}

// Shutdown は全リコンサイラを破棄する。
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := m.reconcilers
	m.reconcilers = make(map[string]*Reconciler)
	m.mu.Unlock()

	for _, r := range all {
		r.Teardown()
	}
}
