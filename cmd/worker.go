package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tandem/internal/server"
	"github.com/desertthunder/tandem/internal/shared"
	"github.com/desertthunder/tandem/internal/tasks"
	"github.com/desertthunder/tandem/internal/ui"
	"github.com/urfave/cli/v3"
)

// Worker runs the sync loop until the process is interrupted.
//
// With --tui the live monitor is shown and logs are redirected to a file so they do not interfere with rendering.
func (r *Runner) Worker(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openValidStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, err := r.newService(r.config)
	if err != nil {
		return err
	}

	opts := tasks.EngineOpts{
		Remote:      svc,
		Credentials: st,
		Display:     st,
		LeaderID:    r.config.Sync.LeaderID,
		DeviceName:  r.config.Sync.DeviceName,
		Interval:    r.config.Sync.Interval.Duration,
		Logger:      shared.WithLogger(r.logger, "service", "worker"),
	}

	if !cmd.Bool("tui") {
		engine, err := tasks.NewSyncEngine(opts)
		if err != nil {
			return err
		}
		return ignoreCanceled(engine.Run(ctx))
	}

	fileLogger, f, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return err
	}
	defer f.Close()
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())

	events := make(chan tasks.Event, 16)
	opts.Logger = fileLogger
	opts.Events = events

	engine, err := tasks.NewSyncEngine(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	model := ui.NewModel(ctx, ui.Opts{
		Source:   st,
		Events:   events,
		LeaderID: r.config.Sync.LeaderID,
		Interval: r.config.Sync.Interval.Duration,
	})
	_, runErr := tea.NewProgram(model, tea.WithContext(ctx)).Run()

	cancel()
	if err := ignoreCanceled(<-done); err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("error running monitor: %w", runErr)
	}
	return nil
}

// Serve runs the sign-in web server until the process is interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openValidStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, err := r.newService(r.config)
	if err != nil {
		return err
	}

	app, err := server.NewApp(server.AppOpts{
		OAuth:      svc,
		Store:      st,
		LeaderID:   r.config.Sync.LeaderID,
		DeviceName: r.config.Sync.DeviceName,
		Logger:     shared.WithLogger(r.logger, "service", "web"),
	})
	if err != nil {
		return err
	}

	return app.Serve(ctx, r.config.Server.Addr())
}

// Register opens the leader registration page of the running web server.
func (r *Runner) Register(ctx context.Context, cmd *cli.Command) error {
	base := cmd.String("url")
	if base == "" {
		base = "http://" + r.config.Server.Addr()
	}
	url := strings.TrimSuffix(base, "/") + "/main/register"

	r.logger.Info("opening browser", "url", url)
	if err := r.openBrowser(url); err != nil {
		r.logger.Warn("failed to open browser", "err", err)
	}

	r.writePlain("Sign in with the leader account at:\n")
	return r.writePlain("  %s\n", url)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
