package verification

// State はリコンサイラの状態。
type State string

// リコンサイラの状態一覧。
//
//	idle → pending → verifying → registering → done
//	                    ↓             ↓
//	                  error  →  pending
const (
	StateIdle        State = "idle"        // セッションなし、または期限切れ
	StatePending     State = "pending"     // 確認待ち（ポーリング中）
	StateVerifying   State = "verifying"   // セッション再取得中
	StateRegistering State = "registering" // 登録ドキュメント書き込み中
	StateDone        State = "done"        // 登録完了
	StateError       State = "error"       // 失敗（次のティックでpendingから再試行）
)

// String はStringerを実装する。
func (s State) String() string {
	return string(s)
}

// IsTerminal はポーリングを再開しない状態かどうかを返す。
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateIdle
}

// InFlight は再取得または書き込みが進行中の状態かどうかを返す。
func (s State) InFlight() bool {
	return s == StateVerifying || s == StateRegistering
}
