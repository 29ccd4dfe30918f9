package config

import (
	"os"
	"path/filepath"
	"testing"
)

// setupTestEnv points TAME_CONFIG_DIR at a fresh temp directory so Load
// and Save never touch the real user config.
func setupTestEnv(t *testing.T) {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("TAME_CONFIG_DIR", tmpDir)
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.General.LogLevel != "INFO" {
		t.Errorf("LogLevel = %q, want INFO", cfg.General.LogLevel)
	}
	if cfg.Sessions.IdleThresholdSeconds != 300 {
		t.Errorf("IdleThresholdSeconds = %v, want 300", cfg.Sessions.IdleThresholdSeconds)
	}
	if cfg.Patterns.IdlePromptTimeout != 3 {
		t.Errorf("IdlePromptTimeout = %v, want 3", cfg.Patterns.IdlePromptTimeout)
	}
	if cfg.Patterns.StateDebounceMs != 500 {
		t.Errorf("StateDebounceMs = %v, want 500", cfg.Patterns.StateDebounceMs)
	}
	if !cfg.Notifications.Enabled {
		t.Error("Notifications.Enabled should default to true")
	}
	if len(cfg.Patterns.Error.Regexes) == 0 {
		t.Error("expected built-in error patterns")
	}
}

func TestLoadWithNoFile(t *testing.T) {
	setupTestEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Sessions.TmuxSessionPrefix != "tame" {
		t.Errorf("TmuxSessionPrefix = %q, want tame", cfg.Sessions.TmuxSessionPrefix)
	}
}

func TestLoadMergesScalarsOverDefaults(t *testing.T) {
	setupTestEnv(t)

	path, err := Path()
	if err != nil {
		t.Fatalf("Path() failed: %v", err)
	}
	const body = `
[general]
log_level = "DEBUG"

[sessions]
idle_threshold_seconds = 60
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.General.LogLevel != "DEBUG" {
		t.Errorf("LogLevel = %q, want DEBUG", cfg.General.LogLevel)
	}
	if cfg.Sessions.IdleThresholdSeconds != 60 {
		t.Errorf("IdleThresholdSeconds = %v, want 60", cfg.Sessions.IdleThresholdSeconds)
	}
	// untouched defaults must survive the merge
	if cfg.Sessions.TmuxSessionPrefix != "tame" {
		t.Errorf("TmuxSessionPrefix = %q, want tame (untouched default)", cfg.Sessions.TmuxSessionPrefix)
	}
	if cfg.Patterns.StateDebounceMs != 500 {
		t.Errorf("StateDebounceMs = %v, want 500 (untouched default)", cfg.Patterns.StateDebounceMs)
	}
}

func TestLoadExplicitFalseOverridesDefaultTrue(t *testing.T) {
	setupTestEnv(t)

	path, err := Path()
	if err != nil {
		t.Fatalf("Path() failed: %v", err)
	}
	const body = `
[notifications]
enabled = false
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Notifications.Enabled {
		t.Error("explicit enabled = false in file must override the default true")
	}
}

func TestLoadRoutingMergesPerEventType(t *testing.T) {
	setupTestEnv(t)

	path, err := Path()
	if err != nil {
		t.Fatalf("Path() failed: %v", err)
	}
	const body = `
[notifications.routing.error]
desktop = false
audio = false
toast = false
sidebar_flash = false
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Notifications.Routing["error"].Desktop {
		t.Error("error routing should have been overridden to all-false")
	}
	if !cfg.Notifications.Routing["completed"].Desktop {
		t.Error("completed routing should still carry its default")
	}
}

func TestEnvOverridesLogLevel(t *testing.T) {
	setupTestEnv(t)
	t.Setenv("TAME_LOG_LEVEL", "WARN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.General.LogLevel != "WARN" {
		t.Errorf("LogLevel = %q, want WARN (env override)", cfg.General.LogLevel)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	setupTestEnv(t)

	cfg := Default()
	cfg.General.LogLevel = "DEBUG"
	cfg.Sessions.TmuxSessionPrefix = "custom"

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.General.LogLevel != "DEBUG" {
		t.Errorf("LogLevel = %q, want DEBUG", loaded.General.LogLevel)
	}
	if loaded.Sessions.TmuxSessionPrefix != "custom" {
		t.Errorf("TmuxSessionPrefix = %q, want custom", loaded.Sessions.TmuxSessionPrefix)
	}
}

func TestConfigDirOverride(t *testing.T) {
	tmpDir := t.TempDir()
	customDir := filepath.Join(tmpDir, "custom_config")
	t.Setenv("TAME_CONFIG_DIR", customDir)

	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() failed: %v", err)
	}
	if dir != customDir {
		t.Errorf("Dir() = %q, want %q", dir, customDir)
	}
	if _, err := os.Stat(customDir); os.IsNotExist(err) {
		t.Error("config directory was not created")
	}
}

func TestProfilesAndKeybindingsMerge(t *testing.T) {
	setupTestEnv(t)

	path, err := Path()
	if err != nil {
		t.Fatalf("Path() failed: %v", err)
	}
	const body = `
[keybindings]
new_session = "ctrl+shift+n"

[profiles.claude.prompt]
regexes = ["(?i)do you want to proceed\\?"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Keybindings["new_session"] != "ctrl+shift+n" {
		t.Errorf("new_session = %q, want ctrl+shift+n", cfg.Keybindings["new_session"])
	}
	if cfg.Keybindings["close_session"] != "ctrl+w" {
		t.Errorf("close_session = %q, want ctrl+w (untouched default)", cfg.Keybindings["close_session"])
	}
	profile, ok := cfg.Profiles["claude"]
	if !ok {
		t.Fatal("expected claude profile to be present")
	}
	if len(profile.Prompt.Regexes) != 1 {
		t.Errorf("expected 1 prompt regex in claude profile, got %d", len(profile.Prompt.Regexes))
	}
}
