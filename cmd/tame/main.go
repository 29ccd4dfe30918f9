// tame is a terminal multiplexer that supervises several interactive
// sessions at once, classifies their output and tells you which one
// needs you.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"tame/internal/app"
	"tame/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Print("\x1b[?1049l")
			fmt.Print("\x1b[?25h")
			fmt.Print("\x1b[0m")
			fmt.Fprintf(os.Stderr, "\n\nPANIC: %v\n", r)
			os.Exit(1)
		}
	}()

	var (
		configPath string
		theme      string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:     "tame",
		Short:   "Supervise and triage multiple interactive terminal sessions",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(configPath, theme, verbose)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (defaults to $TAME_CONFIG_DIR/config.toml)")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "", "override the color theme")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration path and a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSummary(configPath)
		},
	}
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config, verbose bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	if cfg.General.LogFile == "" {
		logger := slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: level}))
		return logger, func() {}, nil
	}

	f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("tame: open log file %s: %w", cfg.General.LogFile, err)
	}
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	return logger, func() { f.Close() }, nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func runTUI(configPath, theme string, verbose bool) error {
	if configPath != "" {
		os.Setenv("TAME_CONFIG_DIR", filepath.Dir(configPath))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("tame: load config: %w", err)
	}

	logger, closeLogger, err := setupLogger(cfg, verbose)
	if err != nil {
		return err
	}
	defer closeLogger()
	slog.SetDefault(logger)

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("tame: create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("tame: init screen: %w", err)
	}
	defer screen.Fini()
	screen.EnableMouse()

	a, err := app.New(cfg, logger, screen)
	if err != nil {
		return fmt.Errorf("tame: build app: %w", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.RestoreTmuxSessions(ctx); err != nil {
		logger.Warn("failed to restore tmux sessions", "error", err)
	}
	if a.SessionCount() == 0 {
		if _, err := a.NewSession("", cfg.Sessions.DefaultWorkingDirectory); err != nil {
			logger.Warn("failed to open initial session", "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
		a.Quit()
	}()

	logger.Info("starting tame", "version", Version)
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tame: reactor loop: %w", err)
	}
	return nil
}

func runConfigSummary(configPath string) error {
	if configPath != "" {
		os.Setenv("TAME_CONFIG_DIR", filepath.Dir(configPath))
	}

	path, err := config.Path()
	if err != nil {
		return fmt.Errorf("tame: resolve config path: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("tame: load config: %w", err)
	}

	fmt.Printf("Config path: %s\n", path)
	fmt.Printf("Log level: %s\n", cfg.General.LogLevel)
	fmt.Printf("Default shell: %s\n", cfg.Sessions.DefaultShell)
	fmt.Printf("Idle threshold: %.0fs\n", cfg.Sessions.IdleThresholdSeconds)
	fmt.Printf("Notifications enabled: %v\n", cfg.Notifications.Enabled)
	return nil
}
