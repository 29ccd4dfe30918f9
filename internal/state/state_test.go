package state

import (
	"testing"
	"time"
)

func TestComputeDerivedState(t *testing.T) {
	cases := []struct {
		process   ProcessState
		attention AttentionState
		want      DisplayState
	}{
		{Starting, None, DisplayStarting},
		{Paused, NeedsInput, DisplayPaused},
		{Exited, ErrorSeen, DisplayError},
		{Exited, None, DisplayDone},
		{Running, NeedsInput, DisplayWaiting},
		{Running, ErrorSeen, DisplayError},
		{Running, Idle, DisplayIdle},
		{Running, None, DisplayActive},
	}
	for _, c := range cases {
		if got := Compute(c.process, c.attention); got != c.want {
			t.Errorf("Compute(%v, %v) = %v, want %v", c.process, c.attention, got, c.want)
		}
	}
}

func TestProcessTransitionValidation(t *testing.T) {
	if !IsValidProcessTransition(Starting, Running) {
		t.Error("Starting -> Running should be valid")
	}
	if IsValidProcessTransition(Starting, Starting) {
		t.Error("self-edge should be rejected")
	}
	if IsValidProcessTransition(Exited, Running) {
		t.Error("Exited should be terminal")
	}
	if !IsValidProcessTransition(Running, Paused) {
		t.Error("Running -> Paused should be valid")
	}
	if !IsValidProcessTransition(Paused, Running) {
		t.Error("Paused -> Running should be valid")
	}
}

func TestAttentionTransitionValidation(t *testing.T) {
	if !IsValidAttentionTransition(None, NeedsInput) {
		t.Error("None -> NeedsInput should be valid")
	}
	if IsValidAttentionTransition(NeedsInput, Idle) {
		t.Error("NeedsInput -> Idle should be rejected")
	}
	if !IsValidAttentionTransition(ErrorSeen, NeedsInput) {
		t.Error("ErrorSeen -> NeedsInput should be valid")
	}
}

func TestDebounceSuppressesNonPriority(t *testing.T) {
	m := New(500 * time.Millisecond)
	now := &fixedClock{t: time.Unix(1000, 0)}
	m.SetClock(now.Now)

	if !m.TransitionAttention(Idle) {
		t.Fatal("first transition should succeed")
	}
	// Still within debounce window.
	if m.TransitionAttention(None) {
		t.Fatal("non-priority transition should be suppressed within debounce window")
	}
}

func TestDebounceDoesNotSuppressPriority(t *testing.T) {
	m := New(500 * time.Millisecond)
	now := &fixedClock{t: time.Unix(1000, 0)}
	m.SetClock(now.Now)

	if !m.TransitionAttention(Idle) {
		t.Fatal("first transition should succeed")
	}
	if !m.TransitionAttention(NeedsInput) {
		t.Fatal("priority transition should bypass debounce")
	}
}

func TestDebounceExpires(t *testing.T) {
	m := New(500 * time.Millisecond)
	now := &fixedClock{t: time.Unix(1000, 0)}
	m.SetClock(now.Now)

	m.TransitionAttention(Idle)
	now.t = now.t.Add(DefaultDebounce + time.Millisecond)
	if !m.TransitionAttention(None) {
		t.Fatal("transition after debounce window should succeed")
	}
}

func TestExitedProcessIsTerminal(t *testing.T) {
	m := New(0)
	if !m.TransitionProcess(Running) {
		t.Fatal("Starting -> Running should succeed")
	}
	if !m.TransitionProcess(Exited) {
		t.Fatal("Running -> Exited should succeed")
	}
	if m.TransitionProcess(Running) {
		t.Fatal("Exited should reject further transitions")
	}
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time {
	return c.t
}
