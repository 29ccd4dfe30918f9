// Package session defines the per-session aggregate: output buffer,
// pattern matcher, PTY child, dual-axis state, usage record, and input
// history. It owns no timers and runs no goroutines of its own — timer
// orchestration and PTY fan-in belong to internal/supervisor, which is
// the sole mutator of a Session's fields and does so under its own lock.
package session

import (
	"time"

	"github.com/google/uuid"

	"tame/internal/outputbuffer"
	"tame/internal/pattern"
	"tame/internal/pty"
	"tame/internal/state"
)

// MaxInputHistory bounds the per-session remembered input lines.
const MaxInputHistory = 500

// Usage records the most recently parsed resource-usage snapshot for a
// session, built from the supervisor's built-in usage regex set.
type Usage struct {
	ModelName      string
	MessagesUsed   *int
	TokensUsed     *int
	QuotaRemaining *string
	RefreshTime    *string
	RawText        string
}

// Session is one supervised interactive child process and everything
// observed about it.
type Session struct {
	ID   uuid.UUID
	Name string
	Cwd  string
	Group string

	CreatedAt    time.Time
	LastActivity time.Time

	State *state.Model

	ExitCode *int

	PTY     *pty.Child
	Buffer  *outputbuffer.Buffer
	Matcher *pattern.Matcher

	Usage Usage

	InputHistory []string
	Metadata     map[string]string

	// ScanPartial is the tail of output not yet scanned by the pattern
	// matcher, tracked separately from Buffer's own partial line so a
	// partial that hasn't changed since the last scan can be skipped
	// (SPEC_FULL.md / spec.md §4.F step 5).
	ScanPartial string

	// DecodeBuf holds bytes of an incomplete UTF-8 sequence carried over
	// between chunks, consumed by the supervisor's incremental decoder.
	DecodeBuf []byte
}

// New creates a freshly constructed Session in the STARTING/NONE state.
// debounce configures the state model's flicker-damping window
// (state.DefaultDebounce if zero).
func New(name, cwd string, maxBufferLines int, matcher *pattern.Matcher, debounce time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New(),
		Name:         name,
		Cwd:          cwd,
		CreatedAt:    now,
		LastActivity: now,
		State:        state.New(debounce),
		Buffer:       outputbuffer.New(maxBufferLines),
		Matcher:      matcher,
		Metadata:     make(map[string]string),
	}
}

// Status returns the derived display state.
func (s *Session) Status() state.DisplayState {
	return s.State.Display()
}

// AppendOutput drives the output buffer, bumps last-activity, and clears
// an IDLE attention state back to NONE (new output means the user's
// absence is no longer the relevant fact). It does not touch timers or
// run the pattern matcher — that orchestration lives in the supervisor,
// which calls this before scanning.
func (s *Session) AppendOutput(text string) {
	s.Buffer.Append(text)
	s.LastActivity = time.Now()
	if s.State.Attention == state.Idle {
		s.State.TransitionAttention(state.None)
	}
}

// RecordInput appends a submitted line to the bounded input history,
// deduplicated at the head (a line identical to the most recent entry is
// not appended again).
func (s *Session) RecordInput(line string) {
	if len(s.InputHistory) > 0 && s.InputHistory[len(s.InputHistory)-1] == line {
		return
	}
	s.InputHistory = append(s.InputHistory, line)
	if over := len(s.InputHistory) - MaxInputHistory; over > 0 {
		s.InputHistory = s.InputHistory[over:]
	}
}

// ClearAttentionOnInput implements spec.md §4.F's send_input rule: input
// while attention is in {NEEDS_INPUT, ERROR_SEEN, IDLE} clears it to
// NONE; any other attention state is left alone.
func (s *Session) ClearAttentionOnInput() {
	switch s.State.Attention {
	case state.NeedsInput, state.ErrorSeen, state.Idle:
		s.State.TransitionAttention(state.None)
	}
}
