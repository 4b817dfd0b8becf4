// Package verification はメールアドレス確認待ちセッションのリコンサイラを提供する。
// 確認待ちのセッションを一定間隔で再取得し、確認済みになった最初の時点で
// プロフィールとウェイトリストの2つのドキュメントを書き込み、完了を通知する。
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/clkk/internal/model"
)

const (
	// DefaultPollInterval は確認状態のポーリング間隔。
	DefaultPollInterval = 3 * time.Second
	// DefaultOperationTimeout は1サイクル（再取得と2回の書き込み）のタイムアウト。
	DefaultOperationTimeout = 15 * time.Second
)

// SessionProvider は認証セッションの再取得と確認メール送信を行う。
type SessionProvider interface {
	// Reload はプロバイダーから最新の確認状態を取得した新しいセッションを返す。
	Reload(ctx context.Context, session *model.Session) (*model.Session, error)
	// SendVerificationEmail は確認メールを送信させる。
	SendVerificationEmail(ctx context.Context, session *model.Session) error
}

// Registrar は登録ドキュメントを書き込む。どちらの書き込みもキー単位の全体上書き。
type Registrar interface {
	CreateUserProfile(ctx context.Context, userID, email, firstName, lastName string) error
	AddToWaitlist(ctx context.Context, userID, email string) error
}

// Config はリコンサイラの設定。
type Config struct {
	PollInterval     time.Duration
	OperationTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	return c
}

// Snapshot はリコンサイラのある時点の状態。
type Snapshot struct {
	UserID      string
	Email       string
	State       State
	Message     string // 直近の失敗の利用者向けメッセージ
	Redirect    string // 遷移先（完了時は/dashboard、期限切れ時は/login）
	UpdatedAt   time.Time
	CompletedAt time.Time
	TornDown    bool
}

// Reconciler は1つの確認待ちセッションを登録完了まで進める。
// 同時に進行するサイクルは常に1つまでで、進行中に届いたティックは破棄される。
type Reconciler struct {
	provider  SessionProvider
	registrar Registrar
	scheduler Scheduler
	notifier  *Notifier
	logger    *slog.Logger
	config    Config
	now       func() time.Time

	mu          sync.Mutex
	session     *model.Session
	state       State
	timer       Timer
	tornDown    bool
	completed   bool
	message     string
	redirect    string
	updatedAt   time.Time
	completedAt time.Time
	lastSeen    time.Time
}

// Option はReconcilerの任意設定。
type Option func(*Reconciler)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// New はReconcilerを生成する。
// sessionがnilの場合はidle状態となり、遷移先としてサインアップ画面を返す。
func New(
	session *model.Session,
	provider SessionProvider,
	registrar Registrar,
	scheduler Scheduler,
	notifier *Notifier,
	logger *slog.Logger,
	config Config,
	opts ...Option,
) *Reconciler {
	r := &Reconciler{
		provider:  provider,
		registrar: registrar,
		scheduler: scheduler,
		notifier:  notifier,
		logger:    logger,
		config:    config.withDefaults(),
		now:       time.Now,
		session:   session,
		state:     StatePending,
	}
	for _, opt := range opts {
		opt(r)
	}

	if session == nil {
		r.state = StateIdle
		r.redirect = model.RedirectSignup
	}
	r.updatedAt = r.now()
	r.lastSeen = r.updatedAt
	return r
}

// Start はpending状態であればポーリングを開始する。開始済みの場合は何もしない。
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tornDown || r.state != StatePending || r.timer != nil {
		return
	}
	r.timer = r.scheduler.Every(r.config.PollInterval, r.Tick)

	r.logger.Info("確認状態のポーリングを開始しました",
		slog.String("user_id", r.session.UserID),
		slog.Duration("interval", r.config.PollInterval),
	)
}

// Tick は1回のポーリングサイクルを実行する。
// pending以外の状態で呼ばれた場合は何もしない。
func (r *Reconciler) Tick() {
	r.mu.Lock()
	if r.tornDown || r.state != StatePending {
		r.mu.Unlock()
		return
	}
	r.transition(StateVerifying)
	session := r.session
	r.mu.Unlock()

	// 書き込みは途中で中断しない。破棄後に完了した結果は捨てる
	ctx, cancel := context.WithTimeout(context.Background(), r.config.OperationTimeout)
	defer cancel()

	start := r.now()
	fresh, err := r.provider.Reload(ctx, session)
	elapsed := r.now().Sub(start)

	r.mu.Lock()
	if r.tornDown {
		r.mu.Unlock()
		r.logger.Info("破棄済みのため再取得結果を破棄しました",
			slog.String("user_id", session.UserID),
		)
		return
	}
	r.notifier.Notify(Event{
		Type:     EventReloaded,
		UserID:   session.UserID,
		Email:    session.Email,
		Err:      err,
		Duration: elapsed,
		At:       r.now(),
	})
	if err != nil {
		if errors.Is(err, model.ErrSessionExpired) {
			r.expire(err)
		} else {
			r.fail(err)
		}
		r.mu.Unlock()
		return
	}

	r.session = fresh
	if !fresh.EmailVerified {
		r.message = ""
		r.transition(StatePending)
		r.mu.Unlock()
		return
	}
	r.transition(StateRegistering)
	r.mu.Unlock()

	if err := r.register(ctx, fresh); err != nil {
		r.mu.Lock()
		if !r.tornDown {
			r.fail(err)
		}
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tornDown {
		r.logger.Info("破棄済みのため登録結果を破棄しました",
			slog.String("user_id", fresh.UserID),
		)
		return
	}
	r.complete()
}

// register はプロフィール、ウェイトリストの順に書き込む。
// 各書き込みの直前に破棄されていないことを確認する。
func (r *Reconciler) register(ctx context.Context, session *model.Session) error {
	if r.isTornDown() {
		return nil
	}
	if err := r.registrar.CreateUserProfile(ctx, session.UserID, session.Email, session.FirstName, session.LastName); err != nil {
		return err
	}

	if r.isTornDown() {
		return nil
	}
	return r.registrar.AddToWaitlist(ctx, session.UserID, session.Email)
}

// ResendVerificationEmail は確認メールを再送させる。状態は変更しない。
// 完了済み・期限切れ・破棄済みの場合はErrNotPendingを返す。
func (r *Reconciler) ResendVerificationEmail(ctx context.Context) error {
	r.mu.Lock()
	if r.tornDown || r.state.IsTerminal() {
		r.mu.Unlock()
		return model.ErrNotPending
	}
	session := r.session
	r.mu.Unlock()

	if err := r.provider.SendVerificationEmail(ctx, session); err != nil {
		r.logger.Warn("確認メールの再送に失敗しました",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to resend verification email: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tornDown {
		return nil
	}
	r.notifier.Notify(Event{
		Type:   EventVerificationEmailSent,
		UserID: session.UserID,
		Email:  session.Email,
		At:     r.now(),
	})
	return nil
}

// Teardown はタイマーを解放し、以降の書き込みを止める。複数回呼んでも安全。
// 進行中の書き込みは完了まで待たず、その結果は破棄される。
func (r *Reconciler) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tornDown {
		return
	}
	r.tornDown = true
	r.stopTimer()

	r.logger.Info("リコンサイラを破棄しました",
		slog.String("user_id", r.userID()),
		slog.String("state", string(r.state)),
	)
}

// Touch は画面からの最終アクセス時刻を更新する。
func (r *Reconciler) Touch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen = r.now()
}

// LastSeen は画面からの最終アクセス時刻を返す。
func (r *Reconciler) LastSeen() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeen
}

// State は現在の状態を返す。
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot は現在の状態を返す。
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		State:       r.state,
		Message:     r.message,
		Redirect:    r.redirect,
		UpdatedAt:   r.updatedAt,
		CompletedAt: r.completedAt,
		TornDown:    r.tornDown,
	}
	if r.session != nil {
		s.UserID = r.session.UserID
		s.Email = r.session.Email
	}
	return s
}

// Session は現在保持しているセッションを返す。
func (r *Reconciler) Session() *model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *Reconciler) isTornDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tornDown
}

// 以下はr.muを保持した状態で呼ぶ。

func (r *Reconciler) transition(to State) {
	from := r.state
	if from == to {
		return
	}
	r.state = to
	r.updatedAt = r.now()

	r.logger.Debug("状態が遷移しました",
		slog.String("user_id", r.userID()),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	r.notifier.Notify(Event{
		Type:   EventStateChanged,
		UserID: r.userID(),
		Email:  r.email(),
		From:   from,
		To:     to,
		At:     r.updatedAt,
	})
}

// fail はerrorを経由してpendingへ戻す。ポーリングは継続する。
func (r *Reconciler) fail(err error) {
	r.message = model.UserMessage(err, model.MessageRegistrationFailed)
	r.transition(StateError)

	r.logger.Error("確認サイクルに失敗しました",
		slog.String("user_id", r.userID()),
		slog.String("error", err.Error()),
	)
	r.notifier.Notify(Event{
		Type:    EventFailed,
		UserID:  r.userID(),
		Email:   r.email(),
		Err:     err,
		Message: r.message,
		At:      r.now(),
	})

	r.transition(StatePending)
}

// expire はセッション期限切れでidleへ遷移し、ポーリングを止める。
func (r *Reconciler) expire(err error) {
	r.message = model.UserMessage(err, model.MessageRegistrationFailed)
	r.redirect = model.RedirectLogin
	r.stopTimer()
	r.transition(StateIdle)

	r.logger.Warn("セッションが期限切れのためポーリングを停止しました",
		slog.String("user_id", r.userID()),
		slog.String("error", err.Error()),
	)
	r.notifier.Notify(Event{
		Type:     EventFailed,
		UserID:   r.userID(),
		Email:    r.email(),
		Err:      err,
		Message:  r.message,
		Redirect: r.redirect,
		At:       r.now(),
	})
}

// complete はdoneへ遷移し、完了を一度だけ通知する。
func (r *Reconciler) complete() {
	r.message = ""
	r.redirect = model.RedirectDashboard
	r.stopTimer()
	r.transition(StateDone)

	if r.completed {
		return
	}
	r.completed = true
	r.completedAt = r.now()

	r.logger.Info("登録が完了しました",
		slog.String("user_id", r.userID()),
	)
	r.notifier.Notify(Event{
		Type:     EventCompleted,
		UserID:   r.userID(),
		Email:    r.email(),
		Redirect: r.redirect,
		At:       r.completedAt,
	})
}

func (r *Reconciler) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reconciler) userID() string {
	if r.session == nil {
		return ""
	}
	return r.session.UserID
}

func (r *Reconciler) email() string {
	if r.session == nil {
		return ""
	}
	return r.session.Email
}
