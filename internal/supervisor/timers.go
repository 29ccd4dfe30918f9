package supervisor

import (
	"time"

	"github.com/google/uuid"

	"tame/internal/notify"
	"tame/internal/state"
)

// armIdleTimer (re)schedules the per-session idle timer, canceling any
// timer already pending. Fired only while the session is still tracked.
func (sup *Supervisor) armIdleTimer(id uuid.UUID) {
	sup.mu.Lock()
	if t, ok := sup.idleTimers[id]; ok {
		t.Stop()
	}
	sup.idleTimers[id] = time.AfterFunc(sup.cfg.IdleThreshold, func() { sup.fireIdle(id) })
	sup.mu.Unlock()
}

func (sup *Supervisor) cancelIdleTimer(id uuid.UUID) {
	sup.mu.Lock()
	if t, ok := sup.idleTimers[id]; ok {
		t.Stop()
		delete(sup.idleTimers, id)
	}
	sup.mu.Unlock()
}

func (sup *Supervisor) fireIdle(id uuid.UUID) {
	s, ok := sup.Get(id)
	if !ok {
		return
	}
	if s.State.Process != state.Running || s.State.Attention != state.None {
		return
	}
	if sup.transitionAttention(s, state.Idle) {
		sup.dispatch(notify.EventSessionIdle, s, "")
	}
}

// armWeakPromptTimer (re)schedules the one-shot weak-prompt timer,
// canceling any timer already pending, and captures the matched line so
// it can be attached to the NEEDS_INPUT notification on fire.
func (sup *Supervisor) armWeakPromptTimer(id uuid.UUID, matchedLine string) {
	sup.mu.Lock()
	if t, ok := sup.weakPromptTimers[id]; ok {
		t.Stop()
	}
	sup.weakPromptTimers[id] = time.AfterFunc(sup.cfg.IdlePromptTimeout, func() {
		sup.fireWeakPrompt(id, matchedLine)
	})
	sup.mu.Unlock()
}

func (sup *Supervisor) cancelWeakPromptTimer(id uuid.UUID) {
	sup.mu.Lock()
	if t, ok := sup.weakPromptTimers[id]; ok {
		t.Stop()
		delete(sup.weakPromptTimers, id)
	}
	sup.mu.Unlock()
}

func (sup *Supervisor) fireWeakPrompt(id uuid.UUID, matchedLine string) {
	s, ok := sup.Get(id)
	if !ok {
		return
	}
	if s.State.Process != state.Running || s.State.Attention != state.None {
		return
	}
	if sup.transitionAttention(s, state.NeedsInput) {
		sup.dispatch(notify.EventInputNeeded, s, matchedLine)
	}
}

// cancelTimers stops both timers for a session, used on EOF, pause, and
// delete.
func (sup *Supervisor) cancelTimers(id uuid.UUID) {
	sup.cancelIdleTimer(id)
	sup.cancelWeakPromptTimer(id)
}
