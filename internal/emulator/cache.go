package emulator

import (
	"image/color"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"
	"github.com/google/uuid"
)

// CellInfo holds the rendered character and style for a single cell,
// shaped for a cell-by-cell renderer like internal/viewport.
type CellInfo struct {
	Char      rune
	FG, BG    color.Color
	Bold      bool
	Faint     bool
	Reverse   bool
}

// entry is one session's emulator plus bookkeeping for ensure/invalidate.
type entry struct {
	controller *AltScreenController
	active     bool
}

// Cache is the multi-session terminal emulator cache from spec.md §4.H.
type Cache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

// NewCache builds an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uuid.UUID]*entry)}
}

// Ensure creates a controller for id on first use, replaying
// replayBuffer (the session's accumulated output) so the emulator's
// screen state matches reality. A second Ensure call for an id that
// still has a live entry is a no-op other than marking it active.
func (c *Cache) Ensure(id uuid.UUID, rows, cols int, replayBuffer string) *AltScreenController {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		e.active = true
		return e.controller
	}

	ctrl := NewAltScreenController(rows, cols)
	if replayBuffer != "" {
		ctrl.Feed([]byte(replayBuffer))
	}
	c.entries[id] = &entry{controller: ctrl, active: true}
	return ctrl
}

// Feed parses text into id's screen. The caller must have Ensure'd id
// first; feeding an unknown id is a no-op.
func (c *Cache) Feed(id uuid.UUID, text []byte) {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	e.controller.Feed(text)
}

// ResizeAll resizes every cached controller, e.g. on a terminal resize
// affecting the whole viewport.
func (c *Cache) ResizeAll(rows, cols int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.controller.Resize(rows, cols)
	}
}

// Drop releases id's cached emulator entirely.
func (c *Cache) Drop(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Invalidate drops id's cache only if it is not the active session, so
// the next activation rebuilds it from OutputBuffer via Ensure.
func (c *Cache) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || e.active {
		return
	}
	delete(c.entries, id)
}

// MarkInactive clears id's active flag, allowing a future Invalidate to
// drop it.
func (c *Cache) MarkInactive(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.active = false
	}
}

// Cells returns the visible screen as a grid of CellInfo for id, or nil
// if id has no cached emulator.
func (c *Cache) Cells(id uuid.UUID, rows, cols int) [][]CellInfo {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return CellsFromTerminal(e.controller.Active(), rows, cols)
}

// Scrollback returns id's retained scrollback lines, oldest first, or
// nil if id has no cached emulator.
func (c *Cache) Scrollback(id uuid.UUID) []string {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return e.controller.Scrollback()
}

// CursorPosition returns id's active cursor cell, or ok=false if id has
// no cached emulator.
func (c *Cache) CursorPosition(id uuid.UUID) (x, y int, ok bool) {
	c.mu.Lock()
	e, present := c.entries[id]
	c.mu.Unlock()
	if !present {
		return 0, 0, false
	}
	pos := e.controller.Active().CursorPosition()
	return pos.X, pos.Y, true
}

// CellsFromTerminal extracts a rows x cols grid of CellInfo from any
// vt.Terminal, the same conversion Cache.Cells applies to a session's
// active emulator. Exported so one-off renders (a literal ANSI
// snapshot fed into a throwaway terminal) can share it.
func CellsFromTerminal(term vt.Terminal, rows, cols int) [][]CellInfo {
	grid := make([][]CellInfo, rows)
	for y := 0; y < rows; y++ {
		grid[y] = make([]CellInfo, cols)
		for x := 0; x < cols; x++ {
			cell := term.CellAt(x, y)
			info := CellInfo{Char: ' '}
			if cell != nil {
				if cell.Content != "" {
					runes := []rune(cell.Content)
					info.Char = runes[0]
				}
				info.FG = cell.Style.Fg
				info.BG = cell.Style.Bg
				info.Bold = cell.Style.Attrs&uv.AttrBold != 0
				info.Faint = cell.Style.Attrs&uv.AttrFaint != 0
				info.Reverse = cell.Style.Attrs&uv.AttrReverse != 0
			}
			grid[y][x] = info
		}
	}
	return grid
}
