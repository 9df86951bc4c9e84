package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tandem/internal/models"
	"github.com/desertthunder/tandem/internal/shared"
	"github.com/desertthunder/tandem/internal/store"
	"github.com/desertthunder/tandem/internal/ui"
	"github.com/urfave/cli/v3"
)

type statusReport struct {
	Leader    bool              `json:"leader_registered"`
	Track     *models.TrackInfo `json:"track"`
	Followers []string          `json:"followers"`
}

// Status shows the published now-playing snapshot and the registered followers.
//
// Without --once it starts the live monitor, which polls the store.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openValidStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if !cmd.Bool("once") && !cmd.Bool("json") {
		model := ui.NewModel(ctx, ui.Opts{
			Source:   st,
			LeaderID: r.config.Sync.LeaderID,
			Interval: r.config.Sync.Interval.Duration,
		})
		if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("error running monitor: %w", err)
		}
		return nil
	}

	report, err := r.collectStatus(ctx, st)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	r.writePlainHeader("Now playing")
	if report.Track == nil {
		r.writePlain("Nothing playing\n")
	} else {
		r.writePlain("%s", report.Track.Name)
		if len(report.Track.Artists) > 0 {
			r.writePlain(" by %s", strings.Join(report.Track.Artists, ", "))
		}
		r.writePlain("\n")
	}
	if !report.Leader {
		r.writePlain("No leader registered\n")
	}
	return r.writePlainln("Followers (%d): %s", len(report.Followers), strings.Join(report.Followers, ", "))
}

func (r *Runner) collectStatus(ctx context.Context, st store.Store) (*statusReport, error) {
	ids, err := st.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	report := &statusReport{Followers: []string{}}
	for _, id := range ids {
		if id == r.config.Sync.LeaderID {
			report.Leader = true
			continue
		}
		report.Followers = append(report.Followers, id)
	}

	payload, err := st.Snapshot(ctx)
	if errors.Is(err, shared.ErrSnapshotNotFound) {
		return report, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := json.Unmarshal(payload, &report.Track); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return report, nil
}
