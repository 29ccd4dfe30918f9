// Package config loads tame's TOML configuration, deep-merging a user
// file over compiled defaults (scalars and arrays replace, tables
// merge), and applies environment overrides for the handful of values
// that make sense to set ambiently.
//
// Environment variables:
//   - TAME_CONFIG_DIR: override the config directory (used by tests)
//   - TAME_LOG_LEVEL: override general.log_level
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// General holds process-wide settings.
type General struct {
	LogFile        string `toml:"log_file"`
	LogLevel       string `toml:"log_level"`
	MaxBufferLines int    `toml:"max_buffer_lines"`
}

// Sessions holds per-session defaults.
type Sessions struct {
	DefaultWorkingDirectory    string  `toml:"default_working_directory"`
	DefaultShell               string  `toml:"default_shell"`
	IdleThresholdSeconds       float64 `toml:"idle_threshold_seconds"`
	ResourcePollSeconds        float64 `toml:"resource_poll_seconds"`
	StartInTmux                bool    `toml:"start_in_tmux"`
	RestoreTmuxSessionsOnStart bool    `toml:"restore_tmux_sessions_on_startup"`
	TmuxSessionPrefix          string  `toml:"tmux_session_prefix"`
}

// PatternCategory is one configurable category's regex sources.
type PatternCategory struct {
	Regexes      []string `toml:"regexes"`
	ShellRegexes []string `toml:"shell_regexes"`
	WeakRegexes  []string `toml:"weak_regexes,omitempty"`
}

// Patterns holds the configurable regex categories plus the two
// timing knobs that ride along with them in the original schema.
type Patterns struct {
	Error             PatternCategory `toml:"error"`
	Prompt            PatternCategory `toml:"prompt"`
	Completion        PatternCategory `toml:"completion"`
	Progress          PatternCategory `toml:"progress"`
	IdlePromptTimeout float64         `toml:"idle_prompt_timeout"`
	StateDebounceMs   float64         `toml:"state_debounce_ms"`
}

// Routing mirrors notify.Routing in TOML form.
type Routing struct {
	Desktop      bool `toml:"desktop"`
	Audio        bool `toml:"audio"`
	Toast        bool `toml:"toast"`
	SidebarFlash bool `toml:"sidebar_flash"`
}

// DND mirrors notify.DND in TOML form.
type DND struct {
	Enabled bool   `toml:"enabled"`
	Start   string `toml:"start"`
	End     string `toml:"end"`
}

// History configures the notification engine's ring buffer.
type History struct {
	MaxSize int `toml:"max_size"`
}

// Desktop configures the desktop notification sink.
type Desktop struct {
	AppName  string `toml:"app_name"`
	IconPath string `toml:"icon_path"`
}

// Audio configures the audio notification sink.
type Audio struct {
	SoundPath string `toml:"sound_path"`
}

// Webhook configures a Slack-compatible or generic webhook sink.
type Webhook struct {
	URL string `toml:"url"`
}

// Notifications holds the full notifier configuration tree.
type Notifications struct {
	Enabled bool                `toml:"enabled"`
	DND     DND                 `toml:"dnd"`
	History History             `toml:"history"`
	Routing map[string]Routing  `toml:"routing"`
	Desktop Desktop             `toml:"desktop"`
	Audio   Audio               `toml:"audio"`
	Slack   Webhook             `toml:"slack"`
	Webhook Webhook             `toml:"webhook"`
}

// Profile is a named, optional extra pattern set selectable at session
// creation (spec.md §6 "profiles.<name>.<category>.regexes").
type Profile struct {
	Error      PatternCategory `toml:"error"`
	Prompt     PatternCategory `toml:"prompt"`
	Completion PatternCategory `toml:"completion"`
	Progress   PatternCategory `toml:"progress"`
}

// Config is the full TOML-backed configuration tree.
type Config struct {
	General       General            `toml:"general"`
	Sessions      Sessions           `toml:"sessions"`
	Patterns      Patterns           `toml:"patterns"`
	Notifications Notifications      `toml:"notifications"`
	Keybindings   map[string]string  `toml:"keybindings"`
	Profiles      map[string]Profile `toml:"profiles"`
}

// Default returns the compiled defaults every loaded config is merged
// over. Numeric defaults and the built-in pattern sets are grounded on
// original_source/tame/config/defaults.py's nesting and values.
func Default() *Config {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	return &Config{
		General: General{
			LogFile:        "",
			LogLevel:       "INFO",
			MaxBufferLines: 10000,
		},
		Sessions: Sessions{
			DefaultWorkingDirectory:    "",
			DefaultShell:               shell,
			IdleThresholdSeconds:       300,
			ResourcePollSeconds:        5,
			StartInTmux:                false,
			RestoreTmuxSessionsOnStart: false,
			TmuxSessionPrefix:          "tame",
		},
		Patterns: Patterns{
			Error: PatternCategory{
				Regexes: []string{`(?i)\berror\b`, `(?i)\bexception\b`, `(?i)\bfailed\b`, `(?i)\btraceback\b`},
			},
			Prompt: PatternCategory{
				Regexes:     []string{`\?\s*$`, `\(y/n\)`, `\[y/N\]`},
				WeakRegexes: []string{`:\s*$`, `>\s*$`},
			},
			Completion: PatternCategory{
				Regexes: []string{`(?i)\bdone\b\s*$`, `(?i)\ball tasks complete\b`},
			},
			Progress: PatternCategory{
				Regexes: []string{`\d+%`, `\[\d+/\d+\]`},
			},
			IdlePromptTimeout: 3,
			StateDebounceMs:   500,
		},
		Notifications: Notifications{
			Enabled: true,
			DND:     DND{Enabled: false, Start: "22:00", End: "07:00"},
			History: History{MaxSize: 500},
			Routing: map[string]Routing{
				"input_needed": {Desktop: true, Audio: true, Toast: true, SidebarFlash: true},
				"error":        {Desktop: true, Audio: true, Toast: true, SidebarFlash: true},
				"completed":    {Desktop: true, Audio: true, Toast: true, SidebarFlash: false},
				"session_idle": {Desktop: false, Audio: false, Toast: true, SidebarFlash: false},
			},
		},
		Keybindings: map[string]string{
			"new_session":    "ctrl+n",
			"close_session":  "ctrl+w",
			"next_session":   "ctrl+tab",
			"prev_session":   "ctrl+shift+tab",
			"command_mode":   "ctrl+k",
			"scroll_up":      "pgup",
			"scroll_down":    "pgdn",
		},
		Profiles: map[string]Profile{},
	}
}

// Dir returns the configuration directory, honoring TAME_CONFIG_DIR for
// tests, creating it if necessary.
func Dir() (string, error) {
	if d := os.Getenv("TAME_CONFIG_DIR"); d != "" {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return "", fmt.Errorf("config: create config dir: %w", err)
		}
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", "tame")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("config: create config dir: %w", err)
	}
	return dir, nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the TOML config file (if present) and deep-merges it over
// Default(), then applies environment overrides. A missing file is not
// an error — defaults are used as-is.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(path); err == nil {
		var file Config
		meta, err := toml.Decode(string(data), &file)
		if err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		mergeInto(cfg, &file, &meta)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if lvl := os.Getenv("TAME_LOG_LEVEL"); lvl != "" {
		cfg.General.LogLevel = lvl
	}
}

// Save writes cfg to the config file as TOML.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return nil
}
