// Package emulator maintains a per-session virtual terminal (screen
// plus scrollback) fed by raw PTY output, with the alternate-screen
// contract spec.md §4.H requires: modes 47/1047 swap only, 1048 saves or
// restores the cursor only, and 1049 does both plus a clear. Generic TUI
// programs inside a session (vim, htop, an agent CLI's full-screen mode)
// rely on this to redraw correctly after they exit.
package emulator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/vt"
)

// modeSeq matches a private-mode CSI set/reset sequence, e.g.
// "\x1b[?1049h" or combined "\x1b[?1047;1048l".
var modeSeq = regexp.MustCompile(`\x1b\[\?([0-9;]+)([hl])`)

// altModes is the set of private modes AltScreenController intercepts;
// any other mode in a combined sequence passes through untouched.
var altModes = map[int]bool{47: true, 1047: true, 1048: true, 1049: true}

// AltScreenController owns two independent terminal emulators — main
// and alt — and a single "active" pointer that Feed routes content
// through. Swapping active never reallocates either terminal, so a
// buffer identity captured before a swap is still valid after: the
// saved main buffer really is the same object when restored.
type AltScreenController struct {
	main vt.Terminal
	alt  vt.Terminal
	inAlt bool

	savedRow, savedCol int
	haveSavedCursor     bool

	rows, cols int

	scrollback    []string
	maxScrollback int
	lastTopLine   string

	dirty []bool
}

// DefaultMaxScrollback matches the ~10,000 line cap named in spec.md §4.H.
const DefaultMaxScrollback = 10000

// NewAltScreenController builds a controller sized rows x cols.
func NewAltScreenController(rows, cols int) *AltScreenController {
	return &AltScreenController{
		main:          vt.NewSafeEmulator(cols, rows),
		alt:           vt.NewSafeEmulator(cols, rows),
		rows:          rows,
		cols:          cols,
		maxScrollback: DefaultMaxScrollback,
		dirty:         make([]bool, rows),
	}
}

// MainTerminal returns the main-buffer emulator. Stable across the
// controller's lifetime (swap never reassigns it).
func (c *AltScreenController) MainTerminal() vt.Terminal { return c.main }

// AltTerminal returns the alt-buffer emulator. Stable across the
// controller's lifetime.
func (c *AltScreenController) AltTerminal() vt.Terminal { return c.alt }

// Active returns whichever terminal is currently receiving content.
func (c *AltScreenController) Active() vt.Terminal { return c.active() }

func (c *AltScreenController) active() vt.Terminal {
	if c.inAlt {
		return c.alt
	}
	return c.main
}

// InAltScreen reports whether the alt buffer is currently active.
func (c *AltScreenController) InAltScreen() bool { return c.inAlt }

// Feed writes data to the currently active terminal, intercepting any
// 47/1047/1048/1049 mode sequences found along the way rather than
// forwarding them — this controller owns alt-screen semantics itself
// instead of delegating to whatever the underlying emulator does with
// those codes.
func (c *AltScreenController) Feed(data []byte) {
	pos := 0
	for {
		loc := modeSeq.FindSubmatchIndex(data[pos:])
		if loc == nil {
			break
		}
		matchStart, matchEnd := pos+loc[0], pos+loc[1]
		paramsStart, paramsEnd := pos+loc[2], pos+loc[3]
		finalStart, finalEnd := pos+loc[4], pos+loc[5]

		if matchStart > pos {
			c.write(data[pos:matchStart])
		}

		params := string(data[paramsStart:paramsEnd])
		set := string(data[finalStart:finalEnd]) == "h"
		c.applyParams(params, set)

		pos = matchEnd
	}
	if pos < len(data) {
		c.write(data[pos:])
	}

	if !c.inAlt {
		c.captureScrollback()
	}
}

func (c *AltScreenController) write(b []byte) {
	if len(b) == 0 {
		return
	}
	c.active().Write(b)
	c.markAllDirty()
}

func (c *AltScreenController) applyParams(params string, set bool) {
	for _, raw := range strings.Split(params, ";") {
		n, err := strconv.Atoi(raw)
		if err != nil || !altModes[n] {
			continue
		}
		c.applyMode(n, set)
	}
}

func (c *AltScreenController) applyMode(mode int, set bool) {
	switch mode {
	case 47, 1047:
		if set {
			c.enterAlt(false)
		} else {
			c.exitAlt(false)
		}
	case 1048:
		if set {
			c.saveCursor()
		} else {
			c.restoreCursor()
		}
	case 1049:
		if set {
			c.saveCursor()
			c.enterAlt(true)
		} else {
			c.exitAlt(true)
			c.restoreCursor()
		}
	}
}

// enterAlt is idempotent: entering while already in the alt screen does
// nothing.
func (c *AltScreenController) enterAlt(clear bool) {
	if c.inAlt {
		return
	}
	c.inAlt = true
	if clear {
		c.alt.Write([]byte("\x1b[2J\x1b[H"))
	}
	c.markAllDirty()
}

// exitAlt is a no-op without a prior enter.
func (c *AltScreenController) exitAlt(clear bool) {
	if !c.inAlt {
		return
	}
	c.inAlt = false
	c.markAllDirty()
}

func (c *AltScreenController) saveCursor() {
	pos := c.active().CursorPosition()
	c.savedRow, c.savedCol = pos.Y, pos.X
	c.haveSavedCursor = true
}

func (c *AltScreenController) restoreCursor() {
	if !c.haveSavedCursor {
		return
	}
	seq := fmt.Sprintf("\x1b[%d;%dH", c.savedRow+1, c.savedCol+1)
	c.active().Write([]byte(seq))
}

func (c *AltScreenController) markAllDirty() {
	for i := range c.dirty {
		c.dirty[i] = true
	}
}

// DirtyRows returns, and clears, the set of rows changed since the last
// call.
func (c *AltScreenController) DirtyRows() []int {
	var out []int
	for i, d := range c.dirty {
		if d {
			out = append(out, i)
			c.dirty[i] = false
		}
	}
	return out
}

// Resize updates both terminals' dimensions. The underlying emulator
// clips rows when columns shrink and preserves content when widening;
// this controller doesn't re-implement that, it only keeps both buffers
// and the dirty set in sync with the new size.
func (c *AltScreenController) Resize(rows, cols int) {
	c.rows, c.cols = rows, cols
	c.main.Resize(cols, rows)
	c.alt.Resize(cols, rows)
	c.dirty = make([]bool, rows)
	c.markAllDirty()
}

// captureScrollback pushes the previous top row into the scrollback
// ring when it has scrolled away, approximating line-at-a-time
// scrolloff detection by diffing the visible top row across Feed calls.
// Only tracked while the main buffer is active — the alt buffer has no
// scrollback per spec.md §4.H.
func (c *AltScreenController) captureScrollback() {
	top := cellRowText(c.main, 0, c.cols)
	if c.lastTopLine != "" && top != c.lastTopLine {
		c.scrollback = append(c.scrollback, c.lastTopLine)
		if over := len(c.scrollback) - c.maxScrollback; over > 0 {
			c.scrollback = c.scrollback[over:]
		}
	}
	c.lastTopLine = top
}

func cellRowText(term vt.Terminal, row, cols int) string {
	var b strings.Builder
	for x := 0; x < cols; x++ {
		cell := term.CellAt(x, row)
		if cell == nil || cell.Content == "" {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(cell.Content)
	}
	return b.String()
}

// Scrollback returns a copy of the retained scrollback lines, oldest first.
func (c *AltScreenController) Scrollback() []string {
	out := make([]string, len(c.scrollback))
	copy(out, c.scrollback)
	return out
}
