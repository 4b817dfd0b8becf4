package verification

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EventType はリコンサイラが発行する通知の種別。
type EventType string

const (
	EventStateChanged          EventType = "state_changed"
	EventReloaded              EventType = "reloaded"
	EventCompleted             EventType = "completed"
	EventFailed                EventType = "failed"
	EventVerificationEmailSent EventType = "verification_email_sent"
)

// Event はリコンサイラの状態遷移や副作用の通知。
type Event struct {
	Type   EventType
	UserID string
	Email  string

	// state_changed
	From State
	To   State

	// failed: Errは分類済みエラー、Messageは利用者向けの1文
	Err     error
	Message string

	// completed / failed(session expired)
	Redirect string

	// reloaded: セッション再取得にかかった時間
	Duration time.Duration

	At time.Time
}

// Listener はイベントを受け取る。
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc は関数をListenerとして使うためのアダプタ。
type ListenerFunc func(Event)

// HandleEvent はListenerを実装する。
func (f ListenerFunc) HandleEvent(e Event) {
	f(e)
}

// Notifier は登録されたリスナーへイベントを非同期に配信する。
// リスナーの遅延やpanicは発行元に影響しない。
type Notifier struct {
	logger    *slog.Logger
	listeners []Listener
	wg        sync.WaitGroup
}

// NewNotifier はNotifierを生成する。
func NewNotifier(logger *slog.Logger, listeners ...Listener) *Notifier {
	return &Notifier{
		logger:    logger,
		listeners: listeners,
	}
}

// Notify はイベントを全リスナーに配信する。リスナーの完了は待たない。
func (n *Notifier) Notify(e Event) {
	if n == nil {
		return
	}
	for _, l := range n.listeners {
		n.wg.Add(1)
		go n.deliver(l, e)
	}
}

func (n *Notifier) deliver(l Listener, e Event) {
	defer n.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			n.logger.Error("イベントリスナーでpanicが発生しました",
				slog.String("event", string(e.Type)),
				slog.String("user_id", e.UserID),
				slog.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	l.HandleEvent(e)
}

// Wait は配信中のイベントがすべて処理されるまで待つ。
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
