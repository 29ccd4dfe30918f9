package session

import (
	"testing"
	"time"

	"tame/internal/state"
)

// testDebounce is a near-zero debounce window so tests can exercise two
// transitions back to back without tripping the flicker-damping logic
// that state.Model applies after any successful transition.
const testDebounce = time.Nanosecond

func TestAppendOutputClearsIdle(t *testing.T) {
	s := New("test", "/tmp", 100, nil, testDebounce)
	s.State.TransitionProcess(state.Running)
	s.State.TransitionAttention(state.Idle)

	s.AppendOutput("hello\n")

	if s.State.Attention != state.None {
		t.Fatalf("expected attention cleared to None, got %v", s.State.Attention)
	}
	if s.Buffer.Len() != 1 {
		t.Fatalf("expected 1 buffered line, got %d", s.Buffer.Len())
	}
}

func TestClearAttentionOnInput(t *testing.T) {
	cases := []state.AttentionState{state.NeedsInput, state.ErrorSeen, state.Idle}
	for _, start := range cases {
		s := New("test", "/tmp", 100, nil, testDebounce)
		s.State.TransitionProcess(state.Running)
		s.State.TransitionAttention(start)

		s.ClearAttentionOnInput()
		if s.State.Attention != state.None {
			t.Errorf("from %v: expected None after input, got %v", start, s.State.Attention)
		}
	}
}

func TestClearAttentionOnInputNoOpWhenNone(t *testing.T) {
	s := New("test", "/tmp", 100, nil, testDebounce)
	s.ClearAttentionOnInput()
	if s.State.Attention != state.None {
		t.Fatalf("expected None, got %v", s.State.Attention)
	}
}

func TestRecordInputDedupesAtHead(t *testing.T) {
	s := New("test", "/tmp", 100, nil, testDebounce)
	s.RecordInput("ls")
	s.RecordInput("ls")
	s.RecordInput("pwd")

	if len(s.InputHistory) != 2 {
		t.Fatalf("expected 2 entries, got %v", s.InputHistory)
	}
}

func TestRecordInputBounded(t *testing.T) {
	s := New("test", "/tmp", 100, nil, testDebounce)
	for i := 0; i < MaxInputHistory+10; i++ {
		s.RecordInput(string(rune('a' + i%26)))
	}
	if len(s.InputHistory) != MaxInputHistory {
		t.Fatalf("expected history capped at %d, got %d", MaxInputHistory, len(s.InputHistory))
	}
}
