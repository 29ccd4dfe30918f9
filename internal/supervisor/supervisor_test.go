package supervisor

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"tame/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestSupervisor(t *testing.T, patterns map[string][]string) *Supervisor {
	t.Helper()
	sup, err := New(Config{
		MaxBufferLines:    1000,
		IdleThreshold:     50 * time.Millisecond,
		IdlePromptTimeout: 50 * time.Millisecond,
		StateDebounce:     time.Nanosecond,
		BasePatterns:      patterns,
	}, nil, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sup
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestCreateDeleteLifecycle(t *testing.T) {
	sup := newTestSupervisor(t, nil)
	id, err := sup.Create(CreateOptions{Name: "a", Command: "/bin/sh", Args: []string{"-c", "sleep 5"}, Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s, ok := sup.Get(id)
	if !ok || s.State.Process != state.Running {
		t.Fatalf("expected running session, got %+v", s)
	}

	if err := sup.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := sup.Get(id); ok {
		t.Fatal("expected session to be removed after delete")
	}
}

func TestSendInputClearsNeedsInput(t *testing.T) {
	sup := newTestSupervisor(t, nil)
	id, err := sup.Create(CreateOptions{Name: "a", Command: "/bin/cat", Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer sup.Delete(id)

	s, _ := sup.Get(id)
	sup.transitionAttention(s, state.NeedsInput)

	if err := sup.SendInput(id, "hi\n"); err != nil {
		t.Fatalf("SendInput: %v", err)
	}
	if s.State.Attention != state.None {
		t.Fatalf("expected attention cleared, got %v", s.State.Attention)
	}
}

func TestHandleChunkErrorPattern(t *testing.T) {
	sup := newTestSupervisor(t, map[string][]string{"error": {`error:`}})
	id, err := sup.Create(CreateOptions{Name: "a", Command: "/bin/cat", Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer sup.Delete(id)

	sup.handleChunk(id, []byte("boom error: disk full\n"))

	s, _ := sup.Get(id)
	if s.State.Attention != state.ErrorSeen {
		t.Fatalf("expected ErrorSeen, got %v", s.State.Attention)
	}
}

func TestHandleChunkLastMatchWinsWithinChunk(t *testing.T) {
	sup := newTestSupervisor(t, map[string][]string{
		"error":  {`error:`},
		"prompt": {`\$\s*$`},
	})
	id, err := sup.Create(CreateOptions{Name: "a", Command: "/bin/cat", Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer sup.Delete(id)

	sup.handleChunk(id, []byte("error: oops\n$ \n"))

	s, _ := sup.Get(id)
	if s.State.Attention != state.NeedsInput {
		t.Fatalf("expected the later prompt match to win, got %v", s.State.Attention)
	}
}

func TestWeakPromptTimerPromotesToNeedsInput(t *testing.T) {
	sup := newTestSupervisor(t, map[string][]string{"weak_prompt": {`continue\?`}})
	// Keep the idle timer out of the way: with the same 50ms threshold it
	// would fire first and set IDLE, and the weak-prompt timer only acts
	// while attention is NONE.
	sup.cfg.IdleThreshold = time.Hour
	id, err := sup.Create(CreateOptions{Name: "a", Command: "/bin/cat", Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer sup.Delete(id)

	sup.handleChunk(id, []byte("continue?\n"))

	s, _ := sup.Get(id)
	waitForCondition(t, func() bool { return s.State.Attention == state.NeedsInput })
}

func TestIdleTimerSetsIdle(t *testing.T) {
	sup := newTestSupervisor(t, nil)
	id, err := sup.Create(CreateOptions{Name: "a", Command: "/bin/cat", Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer sup.Delete(id)

	s, _ := sup.Get(id)
	waitForCondition(t, func() bool { return s.State.Attention == state.Idle })
}

func TestEOFTransitionsToDone(t *testing.T) {
	sup := newTestSupervisor(t, nil)
	id, err := sup.Create(CreateOptions{Name: "a", Command: "/bin/sh", Args: []string{"-c", "exit 0"}, Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer sup.Delete(id)

	s, _ := sup.Get(id)
	waitForCondition(t, func() bool { return s.State.Process == state.Exited })
	if s.ExitCode == nil || *s.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %v", s.ExitCode)
	}
	if s.Status() != state.DisplayDone {
		t.Fatalf("expected DisplayDone, got %v", s.Status())
	}
}

func TestMarkExternallyDeadTransitionsToDone(t *testing.T) {
	sup := newTestSupervisor(t, nil)
	id, err := sup.Create(CreateOptions{Name: "a", Command: "/bin/cat", Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer sup.Delete(id)

	s, _ := sup.Get(id)
	waitForCondition(t, func() bool { return s.State.Process == state.Running })

	if err := sup.MarkExternallyDead(id); err != nil {
		t.Fatalf("MarkExternallyDead: %v", err)
	}
	if s.State.Process != state.Exited {
		t.Fatalf("expected Exited, got %v", s.State.Process)
	}
	if s.Status() != state.DisplayDone {
		t.Fatalf("expected DisplayDone, got %v", s.Status())
	}

	if err := sup.MarkExternallyDead(uuid.New()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestEOFWithNonZeroExitSetsError(t *testing.T) {
	sup := newTestSupervisor(t, nil)
	id, err := sup.Create(CreateOptions{Name: "a", Command: "/bin/sh", Args: []string{"-c", "exit 7"}, Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer sup.Delete(id)

	s, _ := sup.Get(id)
	waitForCondition(t, func() bool { return s.State.Process == state.Exited })
	if s.ExitCode == nil || *s.ExitCode != 7 {
		t.Fatalf("expected exit code 7, got %v", s.ExitCode)
	}
	if s.Status() != state.DisplayError {
		t.Fatalf("expected DisplayError, got %v", s.Status())
	}
}
