package supervisor

import (
	"strings"

	"github.com/google/uuid"

	"tame/internal/ansi"
	"tame/internal/notify"
	"tame/internal/pattern"
	"tame/internal/session"
	"tame/internal/state"
)

// withSession runs fn with the session looked up and the supervisor
// lock held for the duration of fn, returning false if the id is
// unknown (already deleted — a no-op per spec.md §4.F's failure
// semantics for post-delete timer/chunk misfires).
func (sup *Supervisor) withSession(id uuid.UUID, fn func(*session.Session)) bool {
	sup.mu.Lock()
	s, ok := sup.sessions[id]
	if ok {
		fn(s)
	}
	sup.mu.Unlock()
	return ok
}

// handleChunk is the PtyChild reader callback, invoked with a non-nil
// payload for data and nil exactly once on EOF. It implements the
// seven-step pipeline from spec.md §4.F.
func (sup *Supervisor) handleChunk(id uuid.UUID, chunk []byte) {
	s, ok := sup.Get(id)
	if !ok {
		return
	}

	if chunk == nil {
		sup.handleEOF(id, s)
		return
	}

	// Step 2: incremental UTF-8 decode, append, bump activity, clear IDLE,
	// cancel weak-prompt timer (fresh output invalidates it).
	var text string
	sup.withSession(id, func(s *session.Session) {
		text, s.DecodeBuf = decodeIncremental(s.DecodeBuf, chunk, false)
		s.AppendOutput(text)
	})
	sup.cancelWeakPromptTimer(id)
	sup.armIdleTimer(id)
	if sup.onOutput != nil {
		sup.onOutput(id, chunk)
	}

	// A session can signal completion explicitly via an OSC 9/777
	// notification rather than leaving it to pattern inference; this
	// only fans out a notification, it never drives the state machine.
	for _, n := range ansi.DetectOSC(chunk) {
		msg := n.Message
		if msg == "" {
			msg = strings.TrimSpace(n.Title + " " + n.Body)
		}
		sup.dispatch(notify.EventCompleted, s, msg)
	}

	// Step 3: strip ANSI, concatenate with the per-session scan partial,
	// split on newline, keep the last piece as the new partial.
	var completeLines []string
	var newPartial, prevPartial string
	var matcher *pattern.Matcher
	sup.withSession(id, func(s *session.Session) {
		prevPartial = s.ScanPartial
		combined := s.ScanPartial + ansi.Strip(text)
		parts := strings.Split(combined, "\n")
		completeLines = parts[:len(parts)-1]
		newPartial = parts[len(parts)-1]
		s.ScanPartial = newPartial
		matcher = s.Matcher
	})
	if matcher == nil {
		matcher = sup.matcher
	}

	// Step 4: scan each complete line, last match in each class wins.
	var lastAttention, lastProcess *pattern.Match
	for _, line := range completeLines {
		if m := matcher.Scan(line); m != nil {
			switch m.Category {
			case "error", "prompt", "weak_prompt":
				lastAttention = m
			case "completion":
				lastProcess = m
			}
		}
		sup.withSession(id, func(s *session.Session) { scanUsage(s, line) })
	}

	// Step 5: scan the new partial tail only if it changed since the last
	// scan, and only a prompt/weak_prompt match there can win.
	if newPartial != prevPartial {
		if m := matcher.Scan(newPartial); m != nil && (m.Category == "prompt" || m.Category == "weak_prompt") {
			lastAttention = m
		}
	}

	// Step 6: apply the winning matches.
	sup.applyProcessMatch(id, s, lastProcess)
	sup.applyAttentionMatch(id, s, lastAttention)
}

func (sup *Supervisor) applyAttentionMatch(id uuid.UUID, s *session.Session, m *pattern.Match) {
	if m == nil {
		return
	}
	switch m.Category {
	case "error":
		if sup.transitionAttention(s, state.ErrorSeen) {
			sup.dispatch(notify.EventError, s, m.MatchedText)
		}
	case "prompt":
		if sup.transitionAttention(s, state.NeedsInput) {
			sup.dispatch(notify.EventInputNeeded, s, m.MatchedText)
		}
	case "weak_prompt":
		sup.armWeakPromptTimer(id, m.MatchedText)
	}
}

func (sup *Supervisor) applyProcessMatch(id uuid.UUID, s *session.Session, m *pattern.Match) {
	if m == nil {
		return
	}
	if m.Category == "completion" {
		if sup.transitionProcess(s, state.Exited) {
			sup.cancelTimers(id)
			sup.dispatch(notify.EventCompleted, s, m.MatchedText)
		}
	}
}

// handleEOF implements step 1: flush the decoder, record the exit code,
// move to EXITED (ERROR_SEEN first if the exit was non-zero), and cancel
// all timers and the scan partial.
func (sup *Supervisor) handleEOF(id uuid.UUID, s *session.Session) {
	sup.withSession(id, func(s *session.Session) {
		if len(s.DecodeBuf) > 0 {
			tail, _ := decodeIncremental(s.DecodeBuf, nil, true)
			s.AppendOutput(tail)
			s.DecodeBuf = nil
		}
		s.ScanPartial = ""
	})

	var exitCode int
	if s.PTY != nil {
		_ = s.PTY.Wait()
		if c := s.PTY.ExitCode(); c != nil {
			exitCode = *c
		}
	}
	sup.withSession(id, func(s *session.Session) {
		code := exitCode
		s.ExitCode = &code
	})

	if exitCode != 0 {
		sup.transitionAttention(s, state.ErrorSeen)
	}
	sup.transitionProcess(s, state.Exited)
	sup.cancelTimers(id)

	eventType := notify.EventCompleted
	if exitCode != 0 {
		eventType = notify.EventError
	}
	sup.dispatch(eventType, s, "")
}

func (sup *Supervisor) dispatch(eventType notify.EventType, s *session.Session, matchedText string) {
	if sup.notifier == nil {
		return
	}
	sup.notifier.Dispatch(eventType, s.ID, s.Name, defaultMessage(eventType, s.Name), matchedText)
}

func defaultMessage(eventType notify.EventType, name string) string {
	switch eventType {
	case notify.EventError:
		return name + " reported an error"
	case notify.EventInputNeeded:
		return name + " is waiting for input"
	case notify.EventCompleted:
		return name + " finished"
	case notify.EventSessionIdle:
		return name + " has been idle"
	default:
		return name
	}
}

// ScanSnapshot applies an external pane capture (spec.md §4.F) without
// touching the output buffer or delivering chunk-level output: it
// evaluates last-match-wins across every line plus a final-line partial
// prompt check, and applies the resulting single transition.
func (sup *Supervisor) ScanSnapshot(id uuid.UUID, text string) error {
	s, ok := sup.Get(id)
	if !ok {
		return ErrNotFound
	}

	var matcher *pattern.Matcher
	sup.withSession(id, func(s *session.Session) { matcher = s.Matcher })
	if matcher == nil {
		matcher = sup.matcher
	}

	// The final line of a pane capture is almost always an unterminated
	// prompt rather than a newline-completed line, but it is still
	// scanned like any other — last-match-wins applies uniformly.
	lines := strings.Split(ansi.Strip(text), "\n")
	var lastAttention, lastProcess *pattern.Match
	for _, line := range lines {
		m := matcher.Scan(line)
		if m == nil {
			continue
		}
		switch m.Category {
		case "error", "prompt", "weak_prompt":
			lastAttention = m
		case "completion":
			lastProcess = m
		}
	}

	sup.applyProcessMatch(id, s, lastProcess)
	sup.applyAttentionMatch(id, s, lastAttention)
	return nil
}
