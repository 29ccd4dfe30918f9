// Package notify implements the notification engine: event routing
// through a do-not-disturb window and per-(session, event type)
// cooldowns, bounded history, and fan-out to pluggable sinks.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType is one of the fixed notification categories.
type EventType string

const (
	EventInputNeeded EventType = "input_needed"
	EventError       EventType = "error"
	EventCompleted   EventType = "completed"
	EventSessionIdle EventType = "session_idle"
)

// Routing says which sinks an event type fans out to.
type Routing struct {
	Desktop      bool
	Audio        bool
	Toast        bool
	SidebarFlash bool
}

// DefaultRouting is taken from the original engine's routing table:
// input_needed/error/completed go to desktop+audio+toast; error and
// input_needed also flash the sidebar; completed does not;
// session_idle is toast-only.
var DefaultRouting = map[EventType]Routing{
	EventInputNeeded: {Desktop: true, Audio: true, Toast: true, SidebarFlash: true},
	EventError:       {Desktop: true, Audio: true, Toast: true, SidebarFlash: true},
	EventCompleted:   {Desktop: true, Audio: true, Toast: true, SidebarFlash: false},
	EventSessionIdle: {Desktop: false, Audio: false, Toast: true, SidebarFlash: false},
}

// DefaultCooldown is keyed only on the two event types the original
// gives a default cooldown: input_needed and completed fire every time.
var DefaultCooldown = map[EventType]time.Duration{
	EventError:       60 * time.Second,
	EventSessionIdle: 120 * time.Second,
}

// DefaultHistoryCap bounds the in-memory event history ring.
const DefaultHistoryCap = 500

// Event is one notification occurrence.
type Event struct {
	Type        EventType
	SessionID   uuid.UUID
	SessionName string
	Message     string
	MatchedText string
	Time        time.Time
}

// Sink delivers a rendered notification somewhere outside the process.
// Send errors are logged and never propagate to the dispatcher.
type Sink interface {
	Send(Event) error
}

// DND describes the do-not-disturb window. Start/End are "HH:MM" in
// local time; Start > End means the window wraps past midnight.
type DND struct {
	Enabled bool
	Start   string
	End     string
}

// Engine is the notification dispatcher described in spec.md §4.G.
type Engine struct {
	mu sync.Mutex

	routing  map[EventType]Routing
	cooldown map[EventType]time.Duration

	historyCap int
	history    []Event

	lastFired map[string]time.Time

	dnd DND

	desktop      Sink
	audio        Sink
	slack        Sink
	webhook      Sink
	toast        func(Event)
	sidebarFlash func(Event)

	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine at construction.
type Option func(*Engine)

func WithDesktopSink(s Sink) Option  { return func(e *Engine) { e.desktop = s } }
func WithAudioSink(s Sink) Option    { return func(e *Engine) { e.audio = s } }
func WithSlackSink(s Sink) Option    { return func(e *Engine) { e.slack = s } }
func WithWebhookSink(s Sink) Option  { return func(e *Engine) { e.webhook = s } }
func WithToast(f func(Event)) Option { return func(e *Engine) { e.toast = f } }
func WithSidebarFlash(f func(Event)) Option {
	return func(e *Engine) { e.sidebarFlash = f }
}
func WithDND(d DND) Option { return func(e *Engine) { e.dnd = d } }
func WithRouting(r map[EventType]Routing) Option {
	return func(e *Engine) { e.routing = r }
}
func WithCooldown(c map[EventType]time.Duration) Option {
	return func(e *Engine) { e.cooldown = c }
}
func WithHistoryCap(n int) Option { return func(e *Engine) { e.historyCap = n } }
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine with default routing, cooldown, and history cap,
// overridden by opts.
func New(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		routing:    DefaultRouting,
		cooldown:   DefaultCooldown,
		historyCap: DefaultHistoryCap,
		lastFired:  make(map[string]time.Time),
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dispatch builds an event, records it in history, and — unless
// suppressed by the DND window or an active cooldown — fans it out to
// the sinks named by that event type's routing.
func (e *Engine) Dispatch(eventType EventType, sessionID uuid.UUID, sessionName, message, matchedText string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev := Event{
		Type:        eventType,
		SessionID:   sessionID,
		SessionName: sessionName,
		Message:     message,
		MatchedText: matchedText,
		Time:        e.now(),
	}
	e.appendHistory(ev)

	if e.dndActive(ev.Time) {
		return
	}

	key := sessionID.String() + "|" + string(eventType)
	if cd, ok := e.cooldown[eventType]; ok {
		if last, fired := e.lastFired[key]; fired && ev.Time.Sub(last) < cd {
			return
		}
	}
	e.lastFired[key] = ev.Time

	routing := e.routing[eventType]
	e.fanout(ev, routing)
}

func (e *Engine) appendHistory(ev Event) {
	cap := e.historyCap
	if cap <= 0 {
		cap = DefaultHistoryCap
	}
	e.history = append(e.history, ev)
	if over := len(e.history) - cap; over > 0 {
		e.history = e.history[over:]
	}
}

// History returns the retained events, oldest first.
func (e *Engine) History() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) dndActive(at time.Time) bool {
	if !e.dnd.Enabled {
		return false
	}
	start, ok1 := parseClock(e.dnd.Start)
	end, ok2 := parseClock(e.dnd.End)
	if !ok1 || !ok2 {
		return false
	}
	cur := at.Hour()*60 + at.Minute()
	if start <= end {
		return cur >= start && cur <= end
	}
	// Overnight window, e.g. 22:00-07:00.
	return cur >= start || cur <= end
}

func parseClock(s string) (minutes int, ok bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// fanout invokes every sink named by routing, fire-and-forget: sink
// failures are logged and never returned to the caller.
func (e *Engine) fanout(ev Event, r Routing) {
	if r.Toast && e.toast != nil {
		e.safeCallback(ev, e.toast)
	}
	if r.SidebarFlash && e.sidebarFlash != nil {
		e.safeCallback(ev, e.sidebarFlash)
	}
	if r.Desktop && e.desktop != nil {
		e.safeSend(ev, e.desktop, "desktop")
	}
	if r.Audio && e.audio != nil {
		e.safeSend(ev, e.audio, "audio")
	}
	// Slack and the generic webhook aren't gated by the per-type Routing
	// table (spec.md §6: they're configured transports, not individually
	// routed channels) — every event that survives DND/cooldown mirrors
	// to them when configured.
	if e.slack != nil {
		e.safeSend(ev, e.slack, "slack")
	}
	if e.webhook != nil {
		e.safeSend(ev, e.webhook, "webhook")
	}
}

func (e *Engine) safeCallback(ev Event, f func(Event)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("notify: callback panicked", "recover", r)
			}
		}()
		f(ev)
	}()
}

func (e *Engine) safeSend(ev Event, s Sink, name string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("notify: sink panicked", "sink", name, "recover", r)
			}
		}()
		if err := s.Send(ev); err != nil {
			e.logger.Warn("notify: sink send failed", "sink", name, "error", err)
		}
	}()
}
