package notify

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type recordingSink struct {
	mu    sync.Mutex
	calls []Event
}

func (s *recordingSink) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatchRecordsHistory(t *testing.T) {
	e := New(discardLogger())
	id := uuid.New()
	e.Dispatch(EventCompleted, id, "build", "done", "")

	hist := e.History()
	if len(hist) != 1 || hist[0].SessionName != "build" {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestDispatchFansOutToRoutedSinks(t *testing.T) {
	desktop := &recordingSink{}
	audio := &recordingSink{}
	e := New(discardLogger(), WithDesktopSink(desktop), WithAudioSink(audio))

	e.Dispatch(EventError, uuid.New(), "s", "boom", "")
	waitFor(t, func() bool { return desktop.count() == 1 && audio.count() == 1 })
}

func TestDispatchSkipsUnroutedSidebarFlash(t *testing.T) {
	var flashed []Event
	var mu sync.Mutex
	e := New(discardLogger(), WithSidebarFlash(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		flashed = append(flashed, ev)
	}))

	e.Dispatch(EventCompleted, uuid.New(), "s", "done", "")
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(flashed) != 0 {
		t.Fatalf("completed should not sidebar-flash, got %d", len(flashed))
	}
}

func TestDispatchMirrorsToSlackAndWebhookRegardlessOfRouting(t *testing.T) {
	slack := &recordingSink{}
	webhook := &recordingSink{}
	e := New(discardLogger(), WithSlackSink(slack), WithWebhookSink(webhook))

	// session_idle routes only to toast by default (no desktop/audio),
	// but a configured Slack/webhook transport should still see it.
	e.Dispatch(EventSessionIdle, uuid.New(), "s", "idle", "")
	waitFor(t, func() bool { return slack.count() == 1 && webhook.count() == 1 })
}

func TestDNDWindowSuppressesDispatch(t *testing.T) {
	desktop := &recordingSink{}
	fixed := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	e := New(discardLogger(),
		WithDesktopSink(desktop),
		WithDND(DND{Enabled: true, Start: "22:00", End: "07:00"}),
		WithClock(func() time.Time { return fixed }),
	)

	e.Dispatch(EventError, uuid.New(), "s", "boom", "")
	time.Sleep(20 * time.Millisecond)
	if desktop.count() != 0 {
		t.Fatalf("expected DND to suppress dispatch, got %d calls", desktop.count())
	}
	if len(e.History()) != 1 {
		t.Fatal("expected event still recorded in history despite DND")
	}
}

func TestCooldownSuppressesRepeat(t *testing.T) {
	desktop := &recordingSink{}
	cur := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := New(discardLogger(),
		WithDesktopSink(desktop),
		WithClock(func() time.Time { return cur }),
	)
	id := uuid.New()

	e.Dispatch(EventError, id, "s", "first", "")
	waitFor(t, func() bool { return desktop.count() == 1 })

	cur = cur.Add(10 * time.Second)
	e.Dispatch(EventError, id, "s", "second", "")
	time.Sleep(20 * time.Millisecond)
	if desktop.count() != 1 {
		t.Fatalf("expected cooldown to suppress second dispatch, got %d", desktop.count())
	}

	cur = cur.Add(60 * time.Second)
	e.Dispatch(EventError, id, "s", "third", "")
	waitFor(t, func() bool { return desktop.count() == 2 })
}

func TestCompletedHasNoCooldown(t *testing.T) {
	desktop := &recordingSink{}
	cur := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := New(discardLogger(), WithDesktopSink(desktop), WithClock(func() time.Time { return cur }))
	id := uuid.New()

	e.Dispatch(EventCompleted, id, "s", "one", "")
	e.Dispatch(EventCompleted, id, "s", "two", "")
	waitFor(t, func() bool { return desktop.count() == 2 })
}
