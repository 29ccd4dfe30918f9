// Package supervisor is the central orchestrator: it owns the session
// registry, spawns and tears down PtyChild processes, runs the output
// classification pipeline, arms and fires the idle/weak-prompt timers,
// and drives the dual-axis state machine and notification engine in
// response. All mutation of a Session's fields happens under the
// Supervisor's lock, which is taken in short sections around each
// pipeline step rather than held for a whole chunk. A session's chunks
// come from that session's single PTY reader goroutine, one at a time,
// so append, scan, and transition for one chunk finish before the next
// chunk starts; timer callbacks and input from other goroutines can
// still run between those steps.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tame/internal/notify"
	"tame/internal/pattern"
	"tame/internal/pty"
	"tame/internal/session"
	"tame/internal/state"
)

// ErrNotFound is returned by operations addressing an unknown session id.
var ErrNotFound = errors.New("supervisor: session not found")

// OutputSink receives every chunk read from a session's PTY, for
// delivery to the terminal emulator cache and viewport.
type OutputSink func(id uuid.UUID, chunk []byte)

// StateChangeFunc is notified whenever a session's derived display
// state changes.
type StateChangeFunc func(id uuid.UUID, from, to state.DisplayState)

// Supervisor implements spec.md §4.F.
type Supervisor struct {
	mu sync.Mutex

	cfg     Config
	matcher *pattern.Matcher

	sessions map[uuid.UUID]*session.Session
	order    []uuid.UUID

	idleTimers       map[uuid.UUID]*time.Timer
	weakPromptTimers map[uuid.UUID]*time.Timer

	onOutput      OutputSink
	onStateChange StateChangeFunc

	notifier *notify.Engine
	logger   *slog.Logger
}

// CreateOptions describes a new session.
type CreateOptions struct {
	Name    string
	Cwd     string
	Shell   string
	Command string
	Args    []string
	Rows    uint16
	Cols    uint16
	Group   string
	// Patterns, if set, overrides the base pattern set for this session
	// only (a named profile's pattern overrides, per §6).
	Patterns map[string][]string
	// Metadata seeds the session's opaque tag map (e.g. the external
	// multiplexer session name under the "tmux_name" key, per §3/§6).
	Metadata map[string]string
}

// New builds a Supervisor. notifier and onOutput may be nil (useful in
// tests that only exercise state transitions).
func New(cfg Config, notifier *notify.Engine, onOutput OutputSink, onStateChange StateChangeFunc, logger *slog.Logger) (*Supervisor, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	matcher, err := pattern.Compile(cfg.BasePatterns)
	if err != nil {
		return nil, fmt.Errorf("supervisor: compile base patterns: %w", err)
	}
	return &Supervisor{
		cfg:              cfg,
		matcher:          matcher,
		sessions:         make(map[uuid.UUID]*session.Session),
		idleTimers:       make(map[uuid.UUID]*time.Timer),
		weakPromptTimers: make(map[uuid.UUID]*time.Timer),
		onOutput:         onOutput,
		onStateChange:    onStateChange,
		notifier:         notifier,
		logger:           logger,
	}, nil
}

// Create spawns a new session and starts its PTY child. Spawn failures
// propagate to the caller rather than being recorded as session state,
// per spec.md §4.F's failure semantics.
func (sup *Supervisor) Create(opts CreateOptions) (uuid.UUID, error) {
	matcher := sup.matcher
	if len(opts.Patterns) > 0 {
		merged, err := pattern.Merge(sup.cfg.BasePatterns, opts.Patterns)
		if err != nil {
			return uuid.Nil, fmt.Errorf("supervisor: compile session patterns: %w", err)
		}
		matcher = merged
	}

	s := session.New(opts.Name, opts.Cwd, sup.cfg.MaxBufferLines, matcher, sup.cfg.StateDebounce)
	s.Group = opts.Group
	for k, v := range opts.Metadata {
		s.Metadata[k] = v
	}

	id := s.ID
	child := pty.New(func(chunk []byte) {
		sup.handleChunk(id, chunk)
	})

	command := opts.Command
	args := opts.Args
	if command == "" {
		command = opts.Shell
	}
	if command == "" {
		command = defaultShell()
	}

	if err := child.Spawn(pty.SpawnConfig{
		Command: command,
		Args:    args,
		Dir:     opts.Cwd,
		Rows:    opts.Rows,
		Cols:    opts.Cols,
	}); err != nil {
		return uuid.Nil, fmt.Errorf("supervisor: spawn session %q: %w", opts.Name, err)
	}
	s.PTY = child

	sup.mu.Lock()
	sup.sessions[id] = s
	sup.order = append(sup.order, id)
	sup.mu.Unlock()

	sup.transitionProcess(s, state.Running)
	sup.armIdleTimer(id)

	return id, nil
}

func defaultShell() string {
	return "/bin/sh"
}

// Delete terminates and discards a session.
func (sup *Supervisor) Delete(id uuid.UUID) error {
	sup.mu.Lock()
	s, ok := sup.sessions[id]
	if !ok {
		sup.mu.Unlock()
		return ErrNotFound
	}
	delete(sup.sessions, id)
	sup.order = removeID(sup.order, id)
	sup.mu.Unlock()

	sup.cancelTimers(id)
	if s.PTY != nil {
		_ = s.PTY.Terminate(pty.DefaultTerminateTimeout)
	}
	return nil
}

// Get returns the session by id.
func (sup *Supervisor) Get(id uuid.UUID) (*session.Session, bool) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	s, ok := sup.sessions[id]
	return s, ok
}

// List returns sessions in creation order.
func (sup *Supervisor) List() []*session.Session {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	out := make([]*session.Session, 0, len(sup.order))
	for _, id := range sup.order {
		if s, ok := sup.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Rename changes a session's display name.
func (sup *Supervisor) Rename(id uuid.UUID, name string) error {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	s, ok := sup.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Name = name
	return nil
}

// SetGroup changes a session's group label.
func (sup *Supervisor) SetGroup(id uuid.UUID, group string) error {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	s, ok := sup.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Group = group
	return nil
}

// Pause suspends a running session's process group.
func (sup *Supervisor) Pause(id uuid.UUID) error {
	sup.mu.Lock()
	s, ok := sup.sessions[id]
	sup.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if !sup.transitionProcess(s, state.Paused) {
		return nil
	}
	sup.cancelTimers(id)
	if s.PTY != nil {
		return s.PTY.Pause()
	}
	return nil
}

// Resume resumes a paused session's process group.
func (sup *Supervisor) Resume(id uuid.UUID) error {
	sup.mu.Lock()
	s, ok := sup.sessions[id]
	sup.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if !sup.transitionProcess(s, state.Running) {
		return nil
	}
	sup.armIdleTimer(id)
	if s.PTY != nil {
		return s.PTY.Resume()
	}
	return nil
}

// PauseAll pauses every running session.
func (sup *Supervisor) PauseAll() {
	for _, s := range sup.List() {
		if s.State.Process == state.Running {
			_ = sup.Pause(s.ID)
		}
	}
}

// ResumeAll resumes every paused session.
func (sup *Supervisor) ResumeAll() {
	for _, s := range sup.List() {
		if s.State.Process == state.Paused {
			_ = sup.Resume(s.ID)
		}
	}
}

// StopAll terminates every session.
func (sup *Supervisor) StopAll() {
	for _, s := range sup.List() {
		_ = sup.Delete(s.ID)
	}
}

// CloseAll terminates every session and clears the registry, for
// shutdown.
func (sup *Supervisor) CloseAll() error {
	sup.StopAll()
	return nil
}

// SendInput writes text to a session's PTY and applies the input
// semantics from spec.md §4.F: bumps activity, resets the idle timer,
// and clears an attention state that's waiting on the user.
func (sup *Supervisor) SendInput(id uuid.UUID, text string) error {
	sup.mu.Lock()
	s, ok := sup.sessions[id]
	sup.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if s.PTY == nil {
		return nil
	}
	if _, err := s.PTY.Write([]byte(text)); err != nil {
		sup.logger.Warn("supervisor: write to dead session ignored", "session", id, "error", err)
		return nil
	}

	sup.mu.Lock()
	s.LastActivity = time.Now()
	s.ClearAttentionOnInput()
	sup.mu.Unlock()

	sup.armIdleTimer(id)
	return nil
}

// MarkExternallyDead transitions a session straight to EXITED without a
// PTY EOF, for external liveness detection (spec.md §6's tmux health
// check: a non-zero `has-session` return means the multiplexer session
// is gone even though this process never saw its child exit).
func (sup *Supervisor) MarkExternallyDead(id uuid.UUID) error {
	sup.mu.Lock()
	s, ok := sup.sessions[id]
	sup.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	sup.transitionProcess(s, state.Exited)
	sup.cancelTimers(id)
	sup.dispatch(notify.EventCompleted, s, "")
	return nil
}

// Resize updates a session's PTY window size.
func (sup *Supervisor) Resize(id uuid.UUID, rows, cols uint16) error {
	sup.mu.Lock()
	s, ok := sup.sessions[id]
	sup.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if s.PTY == nil {
		return nil
	}
	return s.PTY.Resize(rows, cols)
}

func removeID(list []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// transitionProcess applies a process transition and fires the
// state-change callback if it took effect. Invalid transitions are
// logged and dropped, matching spec.md §4.F's failure semantics.
func (sup *Supervisor) transitionProcess(s *session.Session, target state.ProcessState) bool {
	sup.mu.Lock()
	before := s.Status()
	ok := s.State.TransitionProcess(target)
	after := s.Status()
	sup.mu.Unlock()

	if !ok {
		sup.logger.Debug("supervisor: rejected process transition", "session", s.ID, "target", target)
		return false
	}
	sup.notifyStateChange(s.ID, before, after)
	return true
}

func (sup *Supervisor) transitionAttention(s *session.Session, target state.AttentionState) bool {
	sup.mu.Lock()
	before := s.Status()
	ok := s.State.TransitionAttention(target)
	after := s.Status()
	sup.mu.Unlock()

	if !ok {
		sup.logger.Debug("supervisor: rejected attention transition", "session", s.ID, "target", target)
		return false
	}
	sup.notifyStateChange(s.ID, before, after)
	return true
}

func (sup *Supervisor) notifyStateChange(id uuid.UUID, before, after state.DisplayState) {
	if before == after {
		return
	}
	if sup.onStateChange != nil {
		sup.onStateChange(id, before, after)
	}
}
