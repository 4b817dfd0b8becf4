package verification

import (
	"sync"
	"time"
)

// Timer は繰り返しタイマーのハンドル。
type Timer interface {
	// Stop はタイマーを解放する。複数回呼んでも安全。
	Stop()
}

// Scheduler は繰り返しタイマーを生成する。
type Scheduler interface {
	// Every はintervalごとにfnを呼び出すタイマーを開始する。
	Every(interval time.Duration, fn func()) Timer
}

// TickerScheduler はtime.Tickerを使うScheduler。
// 各ティックのfnは別のgoroutineで実行されるため、
// 前回の処理が終わっていなくても次のティックは遅延しない（重複の抑止は呼び出し側の責務）。
type TickerScheduler struct{}

// NewTickerScheduler はTickerSchedulerを生成する。
func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{}
}

// Every はScheduler.Everyを実装する。
func (s *TickerScheduler) Every(interval time.Duration, fn func()) Timer {
	t := &tickerTimer{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go t.run(fn)
	return t
}

type tickerTimer struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTimer) run(fn func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			go fn()
		}
	}
}

func (t *tickerTimer) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}
