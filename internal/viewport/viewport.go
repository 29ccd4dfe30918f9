// Package viewport renders exactly one session's screen to a tcell
// terminal, grounded on internal/tui/tcell_tui.go's renderVT100Content
// (direct cell copy from the emulator) and renderLoop (ticker-driven
// coalesced refresh), generalized to spec.md §4.I's contract.
package viewport

import (
	"image/color"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/vt"
	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"

	"tame/internal/emulator"
)

// RefreshInterval is the coalescing window spec.md §4.I mandates: at
// most one refresh emitted per 1/60 s.
const RefreshInterval = time.Second / 60

// TextMirrorCap bounds the fallback text mirror used when the emulator
// is unavailable.
const TextMirrorCap = 64 * 1024

// ResizeFunc is invoked when the terminal is resized, so the caller
// (internal/app, ultimately internal/supervisor) can resize the active
// PtyChild and emulator cache to match.
type ResizeFunc func(rows, cols int)

// Viewport renders one active session at a time onto a tcell.Screen.
type Viewport struct {
	mu sync.Mutex

	screen tcell.Screen
	cache  *emulator.Cache
	onResize ResizeFunc

	activeID  uuid.UUID
	hasActive bool
	focused   bool

	scrollOffset map[uuid.UUID]int
	snapshot     map[uuid.UUID][][]emulator.CellInfo
	textMirror   map[uuid.UUID]*strings.Builder

	dirty bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// New builds a Viewport bound to screen and cache. onResize may be nil.
func New(screen tcell.Screen, cache *emulator.Cache, onResize ResizeFunc) *Viewport {
	return &Viewport{
		screen:       screen,
		cache:        cache,
		onResize:     onResize,
		scrollOffset: make(map[uuid.UUID]int),
		snapshot:     make(map[uuid.UUID][][]emulator.CellInfo),
		textMirror:   make(map[uuid.UUID]*strings.Builder),
		focused:      true,
		quit:         make(chan struct{}),
	}
}

// Start launches the coalesced refresh loop.
func (v *Viewport) Start() {
	v.wg.Add(1)
	go v.refreshLoop()
}

// Stop halts the refresh loop.
func (v *Viewport) Stop() {
	close(v.quit)
	v.wg.Wait()
}

func (v *Viewport) refreshLoop() {
	defer v.wg.Done()
	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-v.quit:
			return
		case <-ticker.C:
			v.mu.Lock()
			paint := v.dirty && v.focused
			if paint {
				v.dirty = false
			}
			v.mu.Unlock()
			if paint {
				v.render()
			}
		}
	}
}

// SetActive switches which session is displayed.
func (v *Viewport) SetActive(id uuid.UUID) {
	v.mu.Lock()
	v.activeID = id
	v.hasActive = true
	delete(v.snapshot, id)
	v.mu.Unlock()
	v.markDirty()
}

// ClearActive shows the welcome state instead of any session.
func (v *Viewport) ClearActive() {
	v.mu.Lock()
	v.hasActive = false
	v.mu.Unlock()
	v.markDirty()
}

// AppendOutput feeds id's emulator and text-mirror fallback, whether or
// not id is the active session. Scroll offset is left untouched here: auto_scroll is
// derived as offset == 0, so a session already following live output
// stays at 0 and one the user has scrolled back on stays put until
// ScrollDown brings it back per spec.md §4.I.
func (v *Viewport) AppendOutput(id uuid.UUID, text []byte) {
	v.cache.Feed(id, text)
	v.appendMirror(id, string(text))
	v.markDirty()
}

// hasFullScreenClear reports whether text contains a clear-the-whole-
// screen control sequence (ED 2/3 or RIS), per spec.md §4.I's fallback
// mirror contract.
func hasFullScreenClear(text string) (idx int, found bool) {
	for _, seq := range []string{"\x1b[2J", "\x1b[3J", "\x1bc"} {
		if i := strings.LastIndex(text, seq); i >= 0 {
			if i > idx || !found {
				idx, found = i, true
			}
		}
	}
	return idx, found
}

func (v *Viewport) appendMirror(id uuid.UUID, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	b, ok := v.textMirror[id]
	if !ok {
		b = &strings.Builder{}
		v.textMirror[id] = b
	}
	if idx, found := hasFullScreenClear(text); found {
		b.Reset()
		text = text[idx:]
	}
	b.WriteString(text)
	if b.Len() > TextMirrorCap {
		trimmed := b.String()[b.Len()-TextMirrorCap:]
		b.Reset()
		b.WriteString(trimmed)
	}
}

// TextMirror returns the fallback mirror content for id.
func (v *Viewport) TextMirror(id uuid.UUID) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if b, ok := v.textMirror[id]; ok {
		return b.String()
	}
	return ""
}

// ShowSnapshot bypasses the live emulator and renders a literal ANSI
// snapshot by feeding it into a throwaway terminal the same size as
// the viewport, used on session activation when an external pane
// capture is available.
func (v *Viewport) ShowSnapshot(id uuid.UUID, text string) {
	rows, cols := v.Size()
	term := vt.NewSafeEmulator(cols, rows)
	term.Write([]byte(text))
	grid := emulator.CellsFromTerminal(term, rows, cols)

	v.mu.Lock()
	v.snapshot[id] = grid
	v.mu.Unlock()
	v.markDirty()
}

// Size returns the rows, cols available for session content (the full
// screen; the caller reserves chrome rows itself).
func (v *Viewport) Size() (rows, cols int) {
	cols, rows = v.screen.Size()
	return rows, cols
}

// SetFocused toggles coalescing pause/resume. Losing focus pauses
// refreshes; regaining focus flushes any pending dirty state in one
// refresh.
func (v *Viewport) SetFocused(focused bool) {
	v.mu.Lock()
	wasFocused := v.focused
	v.focused = focused
	flush := focused && !wasFocused && v.dirty
	if flush {
		v.dirty = false
	}
	v.mu.Unlock()
	if flush {
		v.render()
	}
}

func (v *Viewport) markDirty() {
	v.mu.Lock()
	v.dirty = true
	v.mu.Unlock()
}

// ScrollUp increases the active session's scroll offset into history,
// up to the available scrollback depth.
func (v *Viewport) ScrollUp(id uuid.UUID, n, historyDepth int) {
	v.mu.Lock()
	off := v.scrollOffset[id] + n
	if off > historyDepth {
		off = historyDepth
	}
	v.scrollOffset[id] = off
	v.mu.Unlock()
	v.markDirty()
}

// ScrollDown decreases the active session's scroll offset, floored
// at 0 (auto_scroll resumes at 0).
func (v *Viewport) ScrollDown(id uuid.UUID, n int) {
	v.mu.Lock()
	off := v.scrollOffset[id] - n
	if off < 0 {
		off = 0
	}
	v.scrollOffset[id] = off
	v.mu.Unlock()
	v.markDirty()
}

// AutoScroll reports whether id's scroll offset is 0.
func (v *Viewport) AutoScroll(id uuid.UUID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrollOffset[id] == 0
}

// HandleResize updates the screen geometry and invokes onResize.
func (v *Viewport) HandleResize() {
	v.screen.Sync()
	rows, cols := v.Size()
	if v.onResize != nil {
		v.onResize(rows, cols)
	}
	v.markDirty()
}

// DropSession forgets per-session viewport state, called when a
// session is deleted.
func (v *Viewport) DropSession(id uuid.UUID) {
	v.mu.Lock()
	delete(v.scrollOffset, id)
	delete(v.snapshot, id)
	delete(v.textMirror, id)
	v.mu.Unlock()
}

func (v *Viewport) render() {
	v.mu.Lock()
	hasActive := v.hasActive
	id := v.activeID
	snap, hasSnap := v.snapshot[id]
	offset := v.scrollOffset[id]
	v.mu.Unlock()

	v.screen.Clear()

	if !hasActive {
		v.renderWelcome()
		v.screen.Show()
		return
	}

	rows, cols := v.Size()
	var grid [][]emulator.CellInfo
	switch {
	case hasSnap:
		grid = snap
	case offset > 0:
		grid = v.scrolledGrid(id, rows, cols, offset)
	default:
		grid = v.cache.Cells(id, rows, cols)
	}
	if grid == nil {
		v.screen.Show()
		return
	}

	var cursorX, cursorY int
	var hasCursor bool
	if v.focused && !hasSnap && offset == 0 {
		cursorX, cursorY, hasCursor = v.cache.CursorPosition(id)
	}

	for y, row := range grid {
		x := 0
		for x < len(row) {
			start := x
			style := styleFor(row[x])
			for x < len(row) && styleFor(row[x]) == style {
				x++
			}
			for col := start; col < x; col++ {
				cellStyle := style
				if hasCursor && col == cursorX && y == cursorY {
					cellStyle = cellStyle.Reverse(true)
				}
				v.screen.SetContent(col, y, row[col].Char, nil, cellStyle)
			}
		}
	}

	v.screen.Show()
}

// scrolledGrid composes a rows x cols grid for a scrolled-back view:
// offset lines of the live grid's bottom are pushed off-screen and
// replaced by that many lines pulled from the session's scrollback
// history (oldest-first), per spec.md §4.I's "mouse-scroll up increases
// offset into history" / "Viewport renders ... plus optional scrollback
// slice" contract. Scrollback lines carry no cell-style information (see
// DESIGN.md's scrollback approximation note), so they render in the
// terminal's default style.
func (v *Viewport) scrolledGrid(id uuid.UUID, rows, cols, offset int) [][]emulator.CellInfo {
	live := v.cache.Cells(id, rows, cols)
	if live == nil {
		return nil
	}
	history := v.cache.Scrollback(id)
	if offset > len(history) {
		offset = len(history)
	}

	total := len(history) + rows
	start := total - rows - offset
	if start < 0 {
		start = 0
	}

	grid := make([][]emulator.CellInfo, rows)
	for i := 0; i < rows; i++ {
		lineIdx := start + i
		switch {
		case lineIdx < len(history):
			grid[i] = cellRowFromText(history[lineIdx], cols)
		case lineIdx-len(history) < len(live):
			grid[i] = live[lineIdx-len(history)]
		default:
			grid[i] = cellRowFromText("", cols)
		}
	}
	return grid
}

// cellRowFromText pads/truncates text to cols plain CellInfo cells.
func cellRowFromText(text string, cols int) []emulator.CellInfo {
	runes := []rune(text)
	row := make([]emulator.CellInfo, cols)
	for x := 0; x < cols; x++ {
		if x < len(runes) {
			row[x] = emulator.CellInfo{Char: runes[x]}
		} else {
			row[x] = emulator.CellInfo{Char: ' '}
		}
	}
	return row
}

func styleFor(c emulator.CellInfo) tcell.Style {
	style := tcell.StyleDefault
	if c.FG != nil {
		style = style.Foreground(colorToTcell(c.FG))
	}
	if c.BG != nil {
		style = style.Background(colorToTcell(c.BG))
	}
	if c.Bold {
		style = style.Bold(true)
	}
	if c.Faint {
		style = style.Dim(true)
	}
	if c.Reverse {
		style = style.Reverse(true)
	}
	return style
}

func colorToTcell(c color.Color) tcell.Color {
	if c == nil {
		return tcell.ColorDefault
	}
	r, g, b, _ := c.RGBA()
	return tcell.NewRGBColor(int32(r>>8), int32(g>>8), int32(b>>8))
}

func (v *Viewport) renderWelcome() {
	rows, cols := v.Size()
	lines := []string{
		"tame",
		"",
		"no session selected",
		"",
		"ctrl+n  new session",
		"ctrl+w  close session",
		"ctrl+tab / ctrl+shift+tab  switch session",
	}
	startY := rows/2 - len(lines)/2
	style := tcell.StyleDefault.Bold(true)
	for i, line := range lines {
		x := cols/2 - len(line)/2
		for j, r := range line {
			v.screen.SetContent(x+j, startY+i, r, nil, style)
		}
	}
}
