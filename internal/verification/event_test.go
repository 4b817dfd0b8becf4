package verification

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNotifier_DeliversToAllListeners(t *testing.T) {
	var buf bytes.Buffer
	a, b := &recorder{}, &recorder{}
	n := NewNotifier(newTestLogger(&buf), a, b)

	n.Notify(Event{Type: EventCompleted, UserID: "u1"})
	n.Wait()

	if len(a.byType(EventCompleted)) != 1 || len(b.byType(EventCompleted)) != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", len(a.events), len(b.events))
	}
}

func TestNotifier_SlowListenerDoesNotBlock(t *testing.T) {
	var buf bytes.Buffer
	release := make(chan struct{})
	slow := ListenerFunc(func(Event) { <-release })
	n := NewNotifier(newTestLogger(&buf), slow)

	returned := make(chan struct{})
	go func() {
		n.Notify(Event{Type: EventStateChanged})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow listener")
	}
	close(release)
	n.Wait()
}

func TestNotifier_RecoversListenerPanic(t *testing.T) {
	var buf bytes.Buffer
	after := &recorder{}
	panicky := ListenerFunc(func(Event) { panic("boom") })
	n := NewNotifier(newTestLogger(&buf), panicky, after)

	n.Notify(Event{Type: EventFailed, UserID: "u1"})
	n.Wait()

	if len(after.byType(EventFailed)) != 1 {
		t.Error("other listeners should still receive the event")
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("panic should be logged, got: %s", buf.String())
	}
}

func TestNotifier_NilIsNoop(t *testing.T) {
	var n *Notifier
	n.Notify(Event{Type: EventCompleted})
	n.Wait()
}
