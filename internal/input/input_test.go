package input

import (
	"testing"

	"github.com/gdamore/tcell/v2"

	"tame/internal/session"
)

func keyEvent(key tcell.Key, r rune, mod tcell.ModMask) *tcell.EventKey {
	return tcell.NewEventKey(key, r, mod)
}

func TestTranslatePrintable(t *testing.T) {
	b, ok := Translate(keyEvent(tcell.KeyRune, 'x', tcell.ModNone))
	if !ok || string(b) != "x" {
		t.Fatalf("Translate rune = %q, %v, want \"x\", true", b, ok)
	}
}

func TestTranslateNamedKeys(t *testing.T) {
	tests := []struct {
		key  tcell.Key
		want []byte
	}{
		{tcell.KeyEnter, []byte{'\r'}},
		{tcell.KeyTab, []byte{'\t'}},
		{tcell.KeyBackspace2, []byte{0x7f}},
		{tcell.KeyEscape, []byte{0x1b}},
		{tcell.KeyUp, []byte{0x1b, '[', 'A'}},
		{tcell.KeyHome, []byte{0x1b, '[', 'H'}},
		{tcell.KeyPgUp, []byte{0x1b, '[', '5', '~'}},
		{tcell.KeyDelete, []byte{0x1b, '[', '3', '~'}},
		{tcell.KeyBacktab, []byte{0x1b, '[', 'Z'}},
	}
	for _, tt := range tests {
		b, ok := Translate(keyEvent(tt.key, 0, tcell.ModNone))
		if !ok {
			t.Errorf("Translate(%v) returned ok=false", tt.key)
			continue
		}
		if string(b) != string(tt.want) {
			t.Errorf("Translate(%v) = %v, want %v", tt.key, b, tt.want)
		}
	}
}

func TestTranslateCtrlLetter(t *testing.T) {
	b, ok := Translate(keyEvent(tcell.KeyCtrlA, 0, tcell.ModCtrl))
	if !ok || len(b) != 1 || b[0] != 1 {
		t.Fatalf("Translate(Ctrl+A) = %v, %v, want [1], true", b, ok)
	}
}

func TestTranslateCtrlPunctuation(t *testing.T) {
	tests := []struct {
		r    rune
		want byte
	}{
		{' ', 0x00},
		{'@', 0x00},
		{'\\', 0x1c},
		{']', 0x1d},
		{'^', 0x1e},
		{'_', 0x1f},
	}
	for _, tt := range tests {
		b, ok := Translate(keyEvent(tcell.KeyRune, tt.r, tcell.ModCtrl))
		if !ok || len(b) != 1 || b[0] != tt.want {
			t.Errorf("Translate(Ctrl+%q) = %v, %v, want [%#x], true", tt.r, b, ok, tt.want)
		}
	}
}

func TestTranslateAltChar(t *testing.T) {
	b, ok := Translate(keyEvent(tcell.KeyRune, 'd', tcell.ModAlt))
	if !ok || string(b) != "\x1bd" {
		t.Fatalf("Translate(Alt+d) = %q, %v, want \"\\x1bd\", true", b, ok)
	}
}

func TestIsGlobalShortcutWithholds(t *testing.T) {
	r := NewRouter(map[string]string{"new_session": "ctrl+n"})
	ev := keyEvent(tcell.KeyCtrlN, 0, tcell.ModCtrl)
	if !r.IsGlobalShortcut(ev) {
		t.Error("expected ctrl+n to be recognized as a global shortcut")
	}
}

func TestFeedHistoryCommitsOnEnter(t *testing.T) {
	r := NewRouter(nil)
	sess := session.New("test", "/tmp", 10, nil, 0)

	for _, ch := range "hello" {
		r.FeedHistory(sess, keyEvent(tcell.KeyRune, ch, tcell.ModNone))
	}
	r.FeedHistory(sess, keyEvent(tcell.KeyEnter, 0, tcell.ModNone))

	if len(sess.InputHistory) != 1 || sess.InputHistory[0] != "hello" {
		t.Fatalf("InputHistory = %v, want [hello]", sess.InputHistory)
	}
}

func TestFeedHistoryCtrlCDiscardsLine(t *testing.T) {
	r := NewRouter(nil)
	sess := session.New("test", "/tmp", 10, nil, 0)

	for _, ch := range "partial" {
		r.FeedHistory(sess, keyEvent(tcell.KeyRune, ch, tcell.ModNone))
	}
	r.FeedHistory(sess, keyEvent(tcell.KeyCtrlC, 0, tcell.ModCtrl))
	r.FeedHistory(sess, keyEvent(tcell.KeyEnter, 0, tcell.ModNone))

	if len(sess.InputHistory) != 0 {
		t.Fatalf("InputHistory = %v, want empty after Ctrl+C discard", sess.InputHistory)
	}
}

func TestFeedHistoryBackspacePops(t *testing.T) {
	r := NewRouter(nil)
	sess := session.New("test", "/tmp", 10, nil, 0)

	for _, ch := range "abc" {
		r.FeedHistory(sess, keyEvent(tcell.KeyRune, ch, tcell.ModNone))
	}
	r.FeedHistory(sess, keyEvent(tcell.KeyBackspace2, 0, tcell.ModNone))
	r.FeedHistory(sess, keyEvent(tcell.KeyEnter, 0, tcell.ModNone))

	if len(sess.InputHistory) != 1 || sess.InputHistory[0] != "ab" {
		t.Fatalf("InputHistory = %v, want [ab]", sess.InputHistory)
	}
}

func TestFeedHistoryBackspacePopsMultibyteRune(t *testing.T) {
	r := NewRouter(nil)
	sess := session.New("test", "/tmp", 10, nil, 0)

	for _, ch := range "café" {
		r.FeedHistory(sess, keyEvent(tcell.KeyRune, ch, tcell.ModNone))
	}
	r.FeedHistory(sess, keyEvent(tcell.KeyBackspace2, 0, tcell.ModNone))
	r.FeedHistory(sess, keyEvent(tcell.KeyEnter, 0, tcell.ModNone))

	if len(sess.InputHistory) != 1 || sess.InputHistory[0] != "caf" {
		t.Fatalf("InputHistory = %v, want [caf] (multibyte rune should pop whole, not corrupt trailing bytes)", sess.InputHistory)
	}
}
