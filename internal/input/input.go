// Package input translates tcell key events into PTY byte sequences
// and maintains each session's typed-but-uncommitted input line for
// the bounded input history, grounded on
// internal/tui/tcell_tui.go's handleNormalKey.
package input

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"

	"tame/internal/session"
)

// Router translates key events for the active session's PTY and tracks
// per-session input-history line assembly.
type Router struct {
	// GlobalShortcuts holds key specs (as produced by KeySpec) that are
	// bound to application-level actions and therefore must not be
	// forwarded to the PTY.
	GlobalShortcuts map[string]bool

	lines map[uuid.UUID]string
}

// NewRouter builds a Router. globalShortcuts is the set of configured
// keybinding values (config.Config.Keybindings) to withhold from the
// PTY.
func NewRouter(globalShortcuts map[string]string) *Router {
	set := make(map[string]bool, len(globalShortcuts))
	for _, spec := range globalShortcuts {
		set[spec] = true
	}
	return &Router{GlobalShortcuts: set, lines: make(map[uuid.UUID]string)}
}

// KeySpec renders a tcell key event into the same "ctrl+n"-shaped
// string used by config keybindings, so a configured shortcut can be
// matched against an incoming event.
func KeySpec(ev *tcell.EventKey) string {
	var spec string
	if ev.Modifiers()&tcell.ModCtrl != 0 {
		spec += "ctrl+"
	}
	if ev.Modifiers()&tcell.ModAlt != 0 {
		spec += "alt+"
	}
	if ev.Modifiers()&tcell.ModShift != 0 {
		spec += "shift+"
	}
	switch ev.Key() {
	case tcell.KeyRune:
		spec += string(ev.Rune())
	case tcell.KeyTab:
		spec += "tab"
	case tcell.KeyPgUp:
		spec += "pgup"
	case tcell.KeyPgDn:
		spec += "pgdn"
	default:
		if k := ev.Key(); k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ && ev.Modifiers()&tcell.ModCtrl != 0 {
			// tcell reports Ctrl+<letter> as its own key code; render the
			// bare letter so the spec reads "ctrl+n", not "ctrl+ctrl-n".
			spec += string(rune('a' + (k - tcell.KeyCtrlA)))
		} else {
			spec += strings.ToLower(tcell.KeyNames[ev.Key()])
		}
	}
	return spec
}

// IsGlobalShortcut reports whether ev matches a configured global
// shortcut and should therefore be withheld from the PTY.
func (r *Router) IsGlobalShortcut(ev *tcell.EventKey) bool {
	return r.GlobalShortcuts[KeySpec(ev)]
}

// Translate converts a key event into the byte sequence the active
// PTY expects, per spec.md §4.J. The second return value is false for
// keys that have no PTY translation (the caller should not write
// anything in that case).
func Translate(ev *tcell.EventKey) ([]byte, bool) {
	if ev.Modifiers()&tcell.ModCtrl != 0 {
		if b, ok := translateCtrl(ev); ok {
			return b, true
		}
	}
	if ev.Modifiers()&tcell.ModAlt != 0 {
		if ev.Key() == tcell.KeyRune {
			return []byte{0x1b, byte(ev.Rune())}, true
		}
	}

	switch ev.Key() {
	case tcell.KeyEnter:
		return []byte{'\r'}, true
	case tcell.KeyTab:
		return []byte{'\t'}, true
	case tcell.KeyBacktab:
		return []byte{0x1b, '[', 'Z'}, true
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return []byte{0x7f}, true
	case tcell.KeyEscape:
		return []byte{0x1b}, true
	case tcell.KeyUp:
		return []byte{0x1b, '[', 'A'}, true
	case tcell.KeyDown:
		return []byte{0x1b, '[', 'B'}, true
	case tcell.KeyRight:
		return []byte{0x1b, '[', 'C'}, true
	case tcell.KeyLeft:
		return []byte{0x1b, '[', 'D'}, true
	case tcell.KeyHome:
		return []byte{0x1b, '[', 'H'}, true
	case tcell.KeyEnd:
		return []byte{0x1b, '[', 'F'}, true
	case tcell.KeyPgUp:
		return []byte{0x1b, '[', '5', '~'}, true
	case tcell.KeyPgDn:
		return []byte{0x1b, '[', '6', '~'}, true
	case tcell.KeyDelete:
		return []byte{0x1b, '[', '3', '~'}, true
	case tcell.KeyInsert:
		return []byte{0x1b, '[', '2', '~'}, true
	case tcell.KeyRune:
		return []byte(string(ev.Rune())), true
	}
	return nil, false
}

// translateCtrl handles Ctrl+<letter> and the punctuation control
// codes spec.md §4.J calls out by name.
func translateCtrl(ev *tcell.EventKey) ([]byte, bool) {
	if k := ev.Key(); k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ {
		return []byte{byte(k)}, true
	}
	if ev.Key() == tcell.KeyRune {
		switch ev.Rune() {
		case ' ', '@':
			return []byte{0x00}, true
		case '[':
			return []byte{0x1b}, true
		case '\\':
			return []byte{0x1c}, true
		case ']':
			return []byte{0x1d}, true
		case '^':
			return []byte{0x1e}, true
		case '_':
			return []byte{0x1f}, true
		}
	}
	return nil, false
}

// FeedHistory updates sess's in-progress input line from a key event
// that was forwarded to the PTY, committing to the bounded input
// history on Enter and discarding the line on Ctrl+C, per spec.md
// §4.J's input-history contract. It keys the in-progress buffer by the
// session's identity, not its PTY state, so it works independent of
// the supervisor's own locking.
func (r *Router) FeedHistory(sess *session.Session, ev *tcell.EventKey) {
	line := r.lines[sess.ID]

	switch {
	case ev.Modifiers()&tcell.ModCtrl != 0 && ev.Key() == tcell.KeyCtrlC:
		line = ""
	case ev.Key() == tcell.KeyEnter:
		if line != "" {
			sess.RecordInput(line)
		}
		line = ""
	case ev.Key() == tcell.KeyBackspace || ev.Key() == tcell.KeyBackspace2:
		if line != "" {
			runes := []rune(line)
			line = string(runes[:len(runes)-1])
		}
	case ev.Key() == tcell.KeyRune:
		line += string(ev.Rune())
	}

	r.lines[sess.ID] = line
}

// DropSession forgets a session's in-progress input line, called when
// a session is deleted.
func (r *Router) DropSession(id uuid.UUID) {
	delete(r.lines, id)
}
