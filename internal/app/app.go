// Package app wires the session supervision engine to a tcell screen:
// supervisor, notification engine, emulator cache, viewport and input
// router, plus the top-level reactor loop, grounded on
// cmd/botster-hub/main.go's signal handling and internal/hub/hub.go's
// Run/tick shape.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"

	"tame/internal/config"
	"tame/internal/emulator"
	"tame/internal/input"
	"tame/internal/notify"
	"tame/internal/session"
	"tame/internal/state"
	"tame/internal/supervisor"
	"tame/internal/tmux"
	"tame/internal/viewport"
)

// App is the top-level wiring for the TUI.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	screen   tcell.Screen
	sup      *supervisor.Supervisor
	notifier *notify.Engine
	cache    *emulator.Cache
	view     *viewport.Viewport
	router   *input.Router

	order    []uuid.UUID
	selected int

	quit chan struct{}
}

// New constructs an App. screen must already be initialized
// (tcell.Screen.Init called).
func New(cfg *config.Config, logger *slog.Logger, screen tcell.Screen) (*App, error) {
	notifier := buildNotifier(cfg, logger)
	cache := emulator.NewCache()

	a := &App{
		cfg:      cfg,
		logger:   logger,
		screen:   screen,
		notifier: notifier,
		cache:    cache,
		quit:     make(chan struct{}),
	}

	a.view = viewport.New(screen, cache, a.handleViewportResize)

	sup, err := supervisor.New(supervisor.Config{
		MaxBufferLines:    cfg.General.MaxBufferLines,
		IdleThreshold:     time.Duration(cfg.Sessions.IdleThresholdSeconds * float64(time.Second)),
		IdlePromptTimeout: time.Duration(cfg.Patterns.IdlePromptTimeout * float64(time.Second)),
		StateDebounce:     time.Duration(cfg.Patterns.StateDebounceMs * float64(time.Millisecond)),
		BasePatterns:      patternsFromConfig(cfg),
	}, notifier, a.onOutput, a.onStateChange, logger)
	if err != nil {
		return nil, fmt.Errorf("app: build supervisor: %w", err)
	}
	a.sup = sup

	a.router = input.NewRouter(cfg.Keybindings)

	return a, nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) *notify.Engine {
	routing := make(map[notify.EventType]notify.Routing, len(cfg.Notifications.Routing))
	for k, r := range cfg.Notifications.Routing {
		routing[notify.EventType(k)] = notify.Routing{
			Desktop: r.Desktop, Audio: r.Audio, Toast: r.Toast, SidebarFlash: r.SidebarFlash,
		}
	}

	opts := []notify.Option{
		notify.WithHistoryCap(cfg.Notifications.History.MaxSize),
		notify.WithDND(notify.DND{
			Enabled: cfg.Notifications.DND.Enabled,
			Start:   cfg.Notifications.DND.Start,
			End:     cfg.Notifications.DND.End,
		}),
	}
	if len(routing) > 0 {
		opts = append(opts, notify.WithRouting(routing))
	}
	if cfg.Notifications.Enabled {
		opts = append(opts, notify.WithDesktopSink(&notify.DesktopSink{
			AppName:  cfg.Notifications.Desktop.AppName,
			IconPath: cfg.Notifications.Desktop.IconPath,
		}))
		opts = append(opts, notify.WithAudioSink(&notify.AudioSink{
			SoundPath: cfg.Notifications.Audio.SoundPath,
		}))
		if cfg.Notifications.Slack.URL != "" {
			opts = append(opts, notify.WithSlackSink(&notify.WebhookSink{
				URL: cfg.Notifications.Slack.URL, Slack: true, Timeout: 5 * time.Second,
			}))
		}
		if cfg.Notifications.Webhook.URL != "" {
			opts = append(opts, notify.WithWebhookSink(&notify.WebhookSink{
				URL: cfg.Notifications.Webhook.URL, Timeout: 5 * time.Second,
			}))
		}
	}

	return notify.New(logger, opts...)
}

// patternsFromConfig flattens each configured category's regexes plus
// its shell_regexes (additional patterns specific to shell-spawned
// sessions, per spec.md §6) into one ordered list, and carries the
// prompt category's weak_regexes into a separate "weak_prompt" category
// so pattern.Matcher scans it after the four priority categories.
func patternsFromConfig(cfg *config.Config) map[string][]string {
	patterns := map[string][]string{
		"error":      append(append([]string{}, cfg.Patterns.Error.Regexes...), cfg.Patterns.Error.ShellRegexes...),
		"prompt":     append(append([]string{}, cfg.Patterns.Prompt.Regexes...), cfg.Patterns.Prompt.ShellRegexes...),
		"completion": append(append([]string{}, cfg.Patterns.Completion.Regexes...), cfg.Patterns.Completion.ShellRegexes...),
		"progress":   append(append([]string{}, cfg.Patterns.Progress.Regexes...), cfg.Patterns.Progress.ShellRegexes...),
	}
	if len(cfg.Patterns.Prompt.WeakRegexes) > 0 {
		patterns["weak_prompt"] = cfg.Patterns.Prompt.WeakRegexes
	}
	return patterns
}

// profilePatterns flattens one named profile's categories the same way
// patternsFromConfig does for the base set, for per-session merge via
// supervisor.CreateOptions.Patterns.
func profilePatterns(p config.Profile) map[string][]string {
	patterns := map[string][]string{
		"error":      append(append([]string{}, p.Error.Regexes...), p.Error.ShellRegexes...),
		"prompt":     append(append([]string{}, p.Prompt.Regexes...), p.Prompt.ShellRegexes...),
		"completion": append(append([]string{}, p.Completion.Regexes...), p.Completion.ShellRegexes...),
		"progress":   append(append([]string{}, p.Progress.Regexes...), p.Progress.ShellRegexes...),
	}
	if len(p.Prompt.WeakRegexes) > 0 {
		patterns["weak_prompt"] = p.Prompt.WeakRegexes
	}
	for k, v := range patterns {
		if len(v) == 0 {
			delete(patterns, k)
		}
	}
	return patterns
}

// Run starts the render loop, the tmux health-check ticker (if
// configured) and blocks in the reactor's event-select loop until the
// user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.view.Start()
	defer a.view.Stop()

	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := a.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			select {
			case events <- ev:
			case <-a.quit:
				return
			}
		}
	}()

	healthTicker := time.NewTicker(tmux.HealthCheckInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-a.quit:
			return nil

		case <-healthTicker.C:
			if a.cfg.Sessions.StartInTmux {
				a.checkTmuxHealth(ctx)
			}

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if a.handleEvent(ev) {
				return nil
			}
		}
	}
}

func (a *App) handleEvent(ev tcell.Event) (quit bool) {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		a.view.HandleResize()
	case *tcell.EventKey:
		return a.handleKey(ev)
	}
	return false
}

func (a *App) handleKey(ev *tcell.EventKey) (quit bool) {
	if ev.Key() == tcell.KeyCtrlQ {
		return true
	}

	if a.router.IsGlobalShortcut(ev) {
		a.handleGlobalShortcut(input.KeySpec(ev))
		return false
	}

	sess := a.activeSession()
	if sess == nil {
		return false
	}

	b, ok := input.Translate(ev)
	if !ok {
		return false
	}
	a.router.FeedHistory(sess, ev)
	if err := a.sup.SendInput(sess.ID, string(b)); err != nil {
		a.logger.Warn("send input failed", "session", sess.ID, "error", err)
	}
	return false
}

func (a *App) handleGlobalShortcut(spec string) {
	switch spec {
	case a.cfg.Keybindings["next_session"]:
		a.selectDelta(1)
	case a.cfg.Keybindings["prev_session"]:
		a.selectDelta(-1)
	case a.cfg.Keybindings["close_session"]:
		if sess := a.activeSession(); sess != nil {
			a.CloseSession(sess.ID)
		}
	case a.cfg.Keybindings["new_session"]:
		if _, err := a.NewSession("", ""); err != nil {
			a.logger.Warn("new session failed", "error", err)
		}
	case a.cfg.Keybindings["scroll_up"]:
		if sess := a.activeSession(); sess != nil {
			rows, _ := a.view.Size()
			a.view.ScrollUp(sess.ID, rows/2, len(sess.Buffer.Lines()))
		}
	case a.cfg.Keybindings["scroll_down"]:
		if sess := a.activeSession(); sess != nil {
			rows, _ := a.view.Size()
			a.view.ScrollDown(sess.ID, rows/2)
		}
	}
}

// NewSession creates a session with the configured defaults, wires it
// into the viewport cache, and selects it. When sessions.start_in_tmux
// is set, the child command becomes a create-or-attach into an external
// tmux session named "<prefix>-<sanitized-name>" per spec.md §6.
func (a *App) NewSession(name, cwd string) (uuid.UUID, error) {
	return a.NewSessionWithProfile(name, cwd, "")
}

// NewSessionWithProfile is NewSession with an optional named profile
// (spec.md §6 "profiles.<name>.<category>.regexes") merged over the
// base pattern set for this session only. An unknown profile name is
// silently treated as none, matching the spec's profile?-is-optional
// phrasing in create()'s signature.
func (a *App) NewSessionWithProfile(name, cwd, profile string) (uuid.UUID, error) {
	if cwd == "" {
		cwd = a.cfg.Sessions.DefaultWorkingDirectory
	}
	rows, cols := a.view.Size()
	opts := supervisor.CreateOptions{
		Name:  name,
		Cwd:   cwd,
		Shell: a.cfg.Sessions.DefaultShell,
		Rows:  uint16(rows),
		Cols:  uint16(cols),
	}
	if p, ok := a.cfg.Profiles[profile]; ok {
		opts.Patterns = profilePatterns(p)
	}
	if a.cfg.Sessions.StartInTmux {
		label := name
		if label == "" {
			label = uuid.NewString()
		}
		tmuxName := tmux.TargetName(a.cfg.Sessions.TmuxSessionPrefix, label)
		opts.Command, opts.Args = tmux.AttachArgs(tmuxName)
		opts.Metadata = map[string]string{"tmux_name": tmuxName}
	}

	id, err := a.sup.Create(opts)
	if err != nil {
		return uuid.Nil, err
	}

	a.cache.Ensure(id, rows, cols, "")
	a.order = append(a.order, id)
	a.selected = len(a.order) - 1
	a.view.SetActive(id)
	return id, nil
}

// RestoreTmuxSessions enumerates externally-live tmux sessions under the
// configured prefix and reattaches a supervised session to each, per
// spec.md §6's restore_tmux_sessions_on_startup option. A missing tmux
// server is not an error and yields zero restored sessions.
func (a *App) RestoreTmuxSessions(ctx context.Context) error {
	if !a.cfg.Sessions.StartInTmux || !a.cfg.Sessions.RestoreTmuxSessionsOnStart {
		return nil
	}
	names, err := tmux.ListSessions(ctx, a.cfg.Sessions.TmuxSessionPrefix)
	if err != nil {
		return fmt.Errorf("app: list tmux sessions: %w", err)
	}
	prefix := a.cfg.Sessions.TmuxSessionPrefix + "-"
	rows, cols := a.view.Size()
	for _, tmuxName := range names {
		displayName := strings.TrimPrefix(tmuxName, prefix)
		command, args := tmux.AttachArgs(tmuxName)
		id, err := a.sup.Create(supervisor.CreateOptions{
			Name:     displayName,
			Cwd:      a.cfg.Sessions.DefaultWorkingDirectory,
			Command:  command,
			Args:     args,
			Rows:     uint16(rows),
			Cols:     uint16(cols),
			Metadata: map[string]string{"tmux_name": tmuxName},
		})
		if err != nil {
			a.logger.Warn("restore tmux session failed", "tmux_name", tmuxName, "error", err)
			continue
		}
		a.cache.Ensure(id, rows, cols, "")
		a.order = append(a.order, id)
	}
	if len(a.order) > 0 {
		a.selected = 0
		a.view.SetActive(a.order[0])
	}
	return nil
}

// SessionCount returns the number of sessions currently tracked.
func (a *App) SessionCount() int {
	return len(a.order)
}

// CloseSession terminates and removes a session, adjusting selection.
func (a *App) CloseSession(id uuid.UUID) {
	prev := a.activeIDOrNil()

	if err := a.sup.Delete(id); err != nil {
		a.logger.Warn("delete session failed", "session", id, "error", err)
	}
	a.cache.Drop(id)
	a.view.DropSession(id)
	a.router.DropSession(id)

	for i, existing := range a.order {
		if existing == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	if a.selected >= len(a.order) {
		a.selected = len(a.order) - 1
	}
	a.refreshActive(prev)
}

func (a *App) selectDelta(delta int) {
	if len(a.order) == 0 {
		return
	}
	prev := a.activeIDOrNil()
	a.selected = (a.selected + delta + len(a.order)) % len(a.order)
	a.refreshActive(prev)
}

// refreshActive points the viewport at the current selection and marks
// the previously active session (if different) inactive in the
// emulator cache, so a later Invalidate can drop its state.
func (a *App) refreshActive(prev uuid.UUID) {
	if len(a.order) == 0 {
		if prev != uuid.Nil {
			a.cache.MarkInactive(prev)
		}
		a.view.ClearActive()
		return
	}
	id := a.order[a.selected]
	if prev != uuid.Nil && prev != id {
		a.cache.MarkInactive(prev)
	}
	a.view.SetActive(id)
}

func (a *App) activeIDOrNil() uuid.UUID {
	if a.selected < 0 || a.selected >= len(a.order) {
		return uuid.Nil
	}
	return a.order[a.selected]
}

func (a *App) activeSession() *session.Session {
	id := a.activeIDOrNil()
	if id == uuid.Nil {
		return nil
	}
	sess, ok := a.sup.Get(id)
	if !ok {
		return nil
	}
	return sess
}

func (a *App) onOutput(id uuid.UUID, chunk []byte) {
	a.view.AppendOutput(id, chunk)
}

func (a *App) onStateChange(id uuid.UUID, _, _ state.DisplayState) {
	a.view.AppendOutput(id, nil)
}

func (a *App) handleViewportResize(rows, cols int) {
	a.cache.ResizeAll(rows, cols)
	for _, id := range a.order {
		if err := a.sup.Resize(id, uint16(rows), uint16(cols)); err != nil {
			a.logger.Warn("resize session failed", "session", id, "error", err)
		}
	}
}

func (a *App) checkTmuxHealth(ctx context.Context) {
	sessions := a.sup.List()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Name < sessions[j].Name })
	for _, sess := range sessions {
		name, ok := sess.Metadata["tmux_name"]
		if !ok {
			continue
		}
		if !tmux.HasSession(ctx, name) {
			a.logger.Info("tmux session gone", "session", sess.ID, "tmux_name", name)
			if err := a.sup.MarkExternallyDead(sess.ID); err != nil {
				a.logger.Warn("mark externally dead failed", "session", sess.ID, "error", err)
			}
		}
	}
}

// Quit requests the reactor loop to stop.
func (a *App) Quit() {
	close(a.quit)
}

// Close stops the supervisor and all child processes.
func (a *App) Close() error {
	return a.sup.CloseAll()
}
