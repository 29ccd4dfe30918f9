package config

import "github.com/BurntSushi/toml"

// mergeInto layers file over base in place: scalar fields and regex
// arrays from file replace base's wherever file's toml decode touched
// them (zero-value fields are treated as "unset" and left alone),
// while table-shaped fields like Routing and Profiles merge key by
// key rather than replacing the whole map. Booleans use meta.IsDefined
// since a plain zero-value check can't tell "unset" from "set false".
func mergeInto(base, file *Config, meta *toml.MetaData) {
	mergeGeneral(&base.General, &file.General)
	mergeSessions(&base.Sessions, &file.Sessions, meta)
	mergePatterns(&base.Patterns, &file.Patterns)
	mergeNotifications(&base.Notifications, &file.Notifications, meta)

	for k, v := range file.Keybindings {
		if base.Keybindings == nil {
			base.Keybindings = make(map[string]string)
		}
		base.Keybindings[k] = v
	}
	for name, p := range file.Profiles {
		if base.Profiles == nil {
			base.Profiles = make(map[string]Profile)
		}
		base.Profiles[name] = p
	}
}

func mergeGeneral(base, file *General) {
	if file.LogFile != "" {
		base.LogFile = file.LogFile
	}
	if file.LogLevel != "" {
		base.LogLevel = file.LogLevel
	}
	if file.MaxBufferLines != 0 {
		base.MaxBufferLines = file.MaxBufferLines
	}
}

func mergeSessions(base, file *Sessions, meta *toml.MetaData) {
	if file.DefaultWorkingDirectory != "" {
		base.DefaultWorkingDirectory = file.DefaultWorkingDirectory
	}
	if file.DefaultShell != "" {
		base.DefaultShell = file.DefaultShell
	}
	if file.IdleThresholdSeconds != 0 {
		base.IdleThresholdSeconds = file.IdleThresholdSeconds
	}
	if file.ResourcePollSeconds != 0 {
		base.ResourcePollSeconds = file.ResourcePollSeconds
	}
	if meta.IsDefined("sessions", "start_in_tmux") {
		base.StartInTmux = file.StartInTmux
	}
	if meta.IsDefined("sessions", "restore_tmux_sessions_on_startup") {
		base.RestoreTmuxSessionsOnStart = file.RestoreTmuxSessionsOnStart
	}
	if file.TmuxSessionPrefix != "" {
		base.TmuxSessionPrefix = file.TmuxSessionPrefix
	}
}

func mergePatternCategory(base, file *PatternCategory) {
	if len(file.Regexes) > 0 {
		base.Regexes = file.Regexes
	}
	if len(file.ShellRegexes) > 0 {
		base.ShellRegexes = file.ShellRegexes
	}
	if len(file.WeakRegexes) > 0 {
		base.WeakRegexes = file.WeakRegexes
	}
}

func mergePatterns(base, file *Patterns) {
	mergePatternCategory(&base.Error, &file.Error)
	mergePatternCategory(&base.Prompt, &file.Prompt)
	mergePatternCategory(&base.Completion, &file.Completion)
	mergePatternCategory(&base.Progress, &file.Progress)
	if file.IdlePromptTimeout != 0 {
		base.IdlePromptTimeout = file.IdlePromptTimeout
	}
	if file.StateDebounceMs != 0 {
		base.StateDebounceMs = file.StateDebounceMs
	}
}

func mergeNotifications(base, file *Notifications, meta *toml.MetaData) {
	if meta.IsDefined("notifications", "enabled") {
		base.Enabled = file.Enabled
	}
	if meta.IsDefined("notifications", "dnd", "enabled") {
		base.DND.Enabled = file.DND.Enabled
	}
	if file.DND.Start != "" {
		base.DND.Start = file.DND.Start
	}
	if file.DND.End != "" {
		base.DND.End = file.DND.End
	}
	if file.History.MaxSize != 0 {
		base.History.MaxSize = file.History.MaxSize
	}
	for eventType, r := range file.Routing {
		if base.Routing == nil {
			base.Routing = make(map[string]Routing)
		}
		base.Routing[eventType] = r
	}
	if file.Desktop.AppName != "" {
		base.Desktop.AppName = file.Desktop.AppName
	}
	if file.Desktop.IconPath != "" {
		base.Desktop.IconPath = file.Desktop.IconPath
	}
	if file.Audio.SoundPath != "" {
		base.Audio.SoundPath = file.Audio.SoundPath
	}
	if file.Slack.URL != "" {
		base.Slack.URL = file.Slack.URL
	}
	if file.Webhook.URL != "" {
		base.Webhook.URL = file.Webhook.URL
	}
}
