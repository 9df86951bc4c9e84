package tasks

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tandem/internal/models"
	"github.com/desertthunder/tandem/internal/store"
)

// Detector samples the leader's playback and reports meaningful transitions.
type Detector struct {
	display store.Display
	logger  *log.Logger
}

// NewDetector creates a [Detector] publishing to display.
func NewDetector(display store.Display, logger *log.Logger) *Detector {
	return &Detector{display: display, logger: logger}
}

// Sample queries the leader and compares the result with prev.
//
// A failed query is treated as "unchanged" and returns prev. On a change the new track (or null when nothing plays) is
// published to the display store; a failed publish is only logged.
func (d *Detector) Sample(ctx context.Context, leader *Session, prev models.Snapshot) (bool, models.Snapshot) {
	playback, err := leader.Player.CurrentlyPlaying(ctx)
	if err != nil {
		d.logger.Warn("failed to read leader playback", "user", leader.UserID, "err", err)
		return false, prev
	}

	snap := models.SnapshotOf(playback)
	if snap == prev {
		return false, prev
	}

	d.logger.Info("leader changed", "from", prev, "to", snap)
	d.publish(ctx, playback, snap)
	return true, snap
}

func (d *Detector) publish(ctx context.Context, playback *models.Playback, snap models.Snapshot) {
	payload := store.NullSnapshot
	if !snap.Empty() {
		data, err := json.Marshal(playback.Track)
		if err != nil {
			d.logger.Warn("failed to encode track", "track", snap.TrackID, "err", err)
			return
		}
		payload = data
	}

	if err := d.display.PublishSnapshot(ctx, payload); err != nil {
		d.logger.Warn("failed to publish snapshot", "track", snap.TrackID, "err", err)
	}
}
