// Package outputbuffer implements a bounded line-oriented ring buffer for
// session output, with a trailing partial-line tail for bytes that have
// not yet been terminated by a newline.
package outputbuffer

import "strings"

// DefaultMaxLines is the default per-session line cap when none is
// configured.
const DefaultMaxLines = 10000

// Buffer holds complete lines in a bounded FIFO plus the partial tail of
// the most recently appended text. It is not safe for concurrent use;
// callers (internal/session) serialize access on the reactor goroutine.
type Buffer struct {
	lines   []string
	max     int
	partial string

	TotalLinesReceived uint64
	TotalBytesReceived uint64
}

// New creates a Buffer capped at max complete lines. A non-positive max
// falls back to DefaultMaxLines.
func New(max int) *Buffer {
	if max <= 0 {
		max = DefaultMaxLines
	}
	return &Buffer{
		lines: make([]string, 0, max),
		max:   max,
	}
}

// Append splits text on '\n' into complete lines plus a new partial tail.
// The previous partial is prefixed onto the first resulting piece.
func (b *Buffer) Append(text string) {
	if text == "" {
		return
	}
	b.TotalBytesReceived += uint64(len(text))

	combined := b.partial + text
	parts := strings.Split(combined, "\n")

	for _, line := range parts[:len(parts)-1] {
		b.lines = append(b.lines, line)
		b.TotalLinesReceived++
	}
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = b.lines[over:]
	}

	b.partial = parts[len(parts)-1]
}

// Lines returns the complete lines currently retained, oldest first.
func (b *Buffer) Lines() []string {
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Partial returns the untermined tail of the most recent append.
func (b *Buffer) Partial() string {
	return b.partial
}

// AllText returns the complete lines joined by '\n', followed by the
// partial tail. A buffer holding only a partial (no complete lines yet)
// still returns that partial rather than an empty string.
func (b *Buffer) AllText() string {
	switch {
	case len(b.lines) == 0 && b.partial == "":
		return ""
	case len(b.lines) == 0:
		return b.partial
	case b.partial == "":
		return strings.Join(b.lines, "\n")
	default:
		return strings.Join(b.lines, "\n") + "\n" + b.partial
	}
}

// Clear drops all retained lines, the partial tail, and resets counters.
func (b *Buffer) Clear() {
	b.lines = b.lines[:0]
	b.partial = ""
	b.TotalLinesReceived = 0
	b.TotalBytesReceived = 0
}

// Len returns the number of complete lines currently retained.
func (b *Buffer) Len() int {
	return len(b.lines)
}

// MaxLines returns the configured line cap.
func (b *Buffer) MaxLines() int {
	return b.max
}
