package outputbuffer

import "testing"

func TestAppendSplitsCompleteLines(t *testing.T) {
	b := New(10)
	b.Append("hello\nworld\n")

	lines := b.Lines()
	if len(lines) != 2 || lines[0] != "hello" || lines[1] != "world" {
		t.Fatalf("unexpected lines: %v", lines)
	}
	if b.Partial() != "" {
		t.Fatalf("expected empty partial, got %q", b.Partial())
	}
}

func TestAppendAcrossChunks(t *testing.T) {
	b := New(10)
	b.Append("Do you want to pro")
	if b.Partial() != "Do you want to pro" {
		t.Fatalf("unexpected partial after first chunk: %q", b.Partial())
	}
	b.Append("ceed?\n")

	lines := b.Lines()
	if len(lines) != 1 || lines[0] != "Do you want to proceed?" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestEvictionIsFIFO(t *testing.T) {
	b := New(3)
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		b.Append(l + "\n")
	}
	lines := b.Lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	want := []string{"c", "d", "e"}
	for i, w := range want {
		if lines[i] != w {
			t.Fatalf("lines[%d] = %q, want %q", i, lines[i], w)
		}
	}
}

func TestAllTextPartialOnly(t *testing.T) {
	b := New(10)
	b.Append("no newline yet")
	if got := b.AllText(); got != "no newline yet" {
		t.Fatalf("AllText() = %q, want %q", got, "no newline yet")
	}
}

func TestAllTextLinesThenPartial(t *testing.T) {
	b := New(10)
	b.Append("one\ntwo\nthr")
	if got := b.AllText(); got != "one\ntwo\nthr" {
		t.Fatalf("AllText() = %q", got)
	}
}

func TestClearResetsCounters(t *testing.T) {
	b := New(10)
	b.Append("a\nb\n")
	b.Clear()
	if b.Len() != 0 || b.Partial() != "" || b.TotalLinesReceived != 0 || b.TotalBytesReceived != 0 {
		t.Fatalf("Clear did not reset buffer fully")
	}
}

func TestCountersAreMonotonic(t *testing.T) {
	b := New(10)
	b.Append("a\nb\n")
	b.Append("c\n")
	if b.TotalLinesReceived != 3 {
		t.Fatalf("TotalLinesReceived = %d, want 3", b.TotalLinesReceived)
	}
	if b.TotalBytesReceived != uint64(len("a\nb\n")+len("c\n")) {
		t.Fatalf("TotalBytesReceived = %d", b.TotalBytesReceived)
	}
}

func TestDefaultMaxLines(t *testing.T) {
	b := New(0)
	if b.MaxLines() != DefaultMaxLines {
		t.Fatalf("MaxLines() = %d, want %d", b.MaxLines(), DefaultMaxLines)
	}
}
