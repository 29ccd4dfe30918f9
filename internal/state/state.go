// Package state implements the dual-axis (ProcessState x AttentionState)
// session state machine: validated transitions, derived display state,
// and a debounce window that priority transitions bypass.
package state

import "time"

// ProcessState is the lifecycle state of the underlying child process.
type ProcessState int

const (
	Starting ProcessState = iota
	Running
	Paused
	Exited
)

func (p ProcessState) String() string {
	switch p {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// AttentionState expresses what, if anything, the user needs to do.
type AttentionState int

const (
	None AttentionState = iota
	NeedsInput
	ErrorSeen
	Idle
)

func (a AttentionState) String() string {
	switch a {
	case None:
		return "none"
	case NeedsInput:
		return "needs_input"
	case ErrorSeen:
		return "error_seen"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

// DisplayState is the pure function of (ProcessState, AttentionState)
// shown to the user.
type DisplayState int

const (
	DisplayCreated DisplayState = iota
	DisplayStarting
	DisplayActive
	DisplayIdle
	DisplayWaiting
	DisplayPaused
	DisplayDone
	DisplayError
)

func (d DisplayState) String() string {
	switch d {
	case DisplayCreated:
		return "created"
	case DisplayStarting:
		return "starting"
	case DisplayActive:
		return "active"
	case DisplayIdle:
		return "idle"
	case DisplayWaiting:
		return "waiting"
	case DisplayPaused:
		return "paused"
	case DisplayDone:
		return "done"
	case DisplayError:
		return "error"
	default:
		return "unknown"
	}
}

var validProcessTransitions = map[ProcessState]map[ProcessState]bool{
	Starting: {Running: true, Exited: true},
	Running:  {Paused: true, Exited: true},
	Paused:   {Running: true, Exited: true},
	Exited:   {},
}

var validAttentionTransitions = map[AttentionState]map[AttentionState]bool{
	None:       {NeedsInput: true, ErrorSeen: true, Idle: true},
	NeedsInput: {None: true, ErrorSeen: true},
	ErrorSeen:  {None: true, NeedsInput: true},
	Idle:       {None: true, NeedsInput: true, ErrorSeen: true},
}

// priorityAttentionStates bypass the debounce window.
var priorityAttentionStates = map[AttentionState]bool{
	ErrorSeen:  true,
	NeedsInput: true,
}

var priorityProcessStates = map[ProcessState]bool{
	Exited: true,
}

// IsValidProcessTransition reports whether target is reachable from
// current. Self-edges are rejected; Exited is terminal.
func IsValidProcessTransition(current, target ProcessState) bool {
	return validProcessTransitions[current][target]
}

// IsValidAttentionTransition reports whether target is reachable from
// current. Self-edges are rejected.
func IsValidAttentionTransition(current, target AttentionState) bool {
	return validAttentionTransitions[current][target]
}

// Compute derives the display state for a (process, attention) pair, as
// specified: STARTING and PAUSED process states are shown as-is; EXITED
// shows ERROR if attention is ERROR_SEEN, else DONE; while RUNNING, the
// attention axis decides WAITING/ERROR/IDLE/ACTIVE in that priority order.
func Compute(process ProcessState, attention AttentionState) DisplayState {
	switch process {
	case Starting:
		return DisplayStarting
	case Paused:
		return DisplayPaused
	case Exited:
		if attention == ErrorSeen {
			return DisplayError
		}
		return DisplayDone
	}
	switch attention {
	case NeedsInput:
		return DisplayWaiting
	case ErrorSeen:
		return DisplayError
	case Idle:
		return DisplayIdle
	default:
		return DisplayActive
	}
}

// DefaultDebounce is the window, after a successful non-priority
// transition, during which further non-priority transitions are
// suppressed.
const DefaultDebounce = 500 * time.Millisecond

// Model holds the mutable state for one session's dual-axis machine plus
// its debounce bookkeeping. It is not safe for concurrent use; the
// reactor goroutine owns it exclusively.
type Model struct {
	Process        ProcessState
	Attention      AttentionState
	debounceWindow time.Duration
	lastChangeAt   time.Time
	now            func() time.Time
}

// New creates a Model starting in (Starting, None), using the supplied
// debounce window (DefaultDebounce if zero).
func New(debounce time.Duration) *Model {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Model{
		Process:        Starting,
		Attention:      None,
		debounceWindow: debounce,
		now:            time.Now,
	}
}

// Display returns the current derived display state.
func (m *Model) Display() DisplayState {
	return Compute(m.Process, m.Attention)
}

// TransitionProcess attempts to move to target. Invalid transitions are
// rejected (returns false); debounce suppresses non-priority transitions
// within the window following the last successful transition on either
// axis, unless target is a priority state (Exited).
func (m *Model) TransitionProcess(target ProcessState) bool {
	if !IsValidProcessTransition(m.Process, target) {
		return false
	}
	if !priorityProcessStates[target] && m.debounced() {
		return false
	}
	m.Process = target
	m.lastChangeAt = m.now()
	return true
}

// TransitionAttention attempts to move to target, subject to the same
// validation and debounce rules as TransitionProcess.
func (m *Model) TransitionAttention(target AttentionState) bool {
	if !IsValidAttentionTransition(m.Attention, target) {
		return false
	}
	if !priorityAttentionStates[target] && m.debounced() {
		return false
	}
	m.Attention = target
	m.lastChangeAt = m.now()
	return true
}

func (m *Model) debounced() bool {
	if m.lastChangeAt.IsZero() {
		return false
	}
	return m.now().Sub(m.lastChangeAt) < m.debounceWindow
}

// SetClock overrides the time source, for deterministic debounce tests.
func (m *Model) SetClock(now func() time.Time) {
	m.now = now
}
