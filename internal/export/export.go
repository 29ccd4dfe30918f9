// Package export writes ANSI-stripped session transcripts to disk
// (spec.md §6 "Persisted state").
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tame/internal/ansi"
	"tame/internal/tmux"
)

// timestampFormat matches spec.md's "<sanitized>_<YYYYmmdd_HHMMSS>.txt".
const timestampFormat = "20060102_150405"

// Dir returns the export directory, creating it if necessary.
func Dir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("export: determine home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}
	dir := filepath.Join(base, "tame", "exports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: create export dir: %w", err)
	}
	return dir, nil
}

// Transcript writes transcript (raw, possibly ANSI-laden output) to a
// new file under the export directory, stripping ANSI sequences first,
// and returns the path written.
func Transcript(sessionName, transcript string, at time.Time) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%s_%s.txt", tmux.SanitizeName(sessionName), at.Format(timestampFormat))
	path := filepath.Join(dir, filename)

	if err := os.WriteFile(path, []byte(ansi.Strip(transcript)), 0o644); err != nil {
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}
	return path, nil
}
