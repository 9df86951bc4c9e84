package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tandem/internal/models"
)

// maxStartRetries bounds the retries of a follower start. Each retry rebuilds the follower's session first.
const maxStartRetries = 1

// Outcome is the result of dispatching a snapshot to one follower.
type Outcome int

const (
	OutcomePaused Outcome = iota
	OutcomeStarted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePaused:
		return "paused"
	case OutcomeStarted:
		return "started"
	case OutcomeFailed:
		return "failed"
	default:
		return ""
	}
}

// FollowerResult records what happened to one follower during a dispatch.
type FollowerResult struct {
	UserID   string
	Outcome  Outcome
	Attempts int
	Err      error
	Session  *Session // the session used last; a rebuilt one when Rebuilt is set
	Rebuilt  bool
}

// Report summarizes one dispatch. Results are ordered by user id.
type Report struct {
	TrackID       string
	Results       []FollowerResult
	LeaderResumed bool
}

// Count returns how many followers ended with outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Dispatcher fans a snapshot out to every follower.
type Dispatcher struct {
	registry *Registry
	logger   *log.Logger
}

// NewDispatcher creates a [Dispatcher]. registry rebuilds sessions for retries.
func NewDispatcher(registry *Registry, logger *log.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch mirrors snap onto every follower in roster and never fails as a whole.
//
// With no track or a paused leader every follower is paused. Otherwise the leader is paused and rewound, every
// follower starts the track from the beginning, and once all followers have been tried the leader resumes.
func (d *Dispatcher) Dispatch(ctx context.Context, leader *Session, roster Roster, snap models.Snapshot) Report {
	ids := roster.IDs()
	report := Report{TrackID: snap.TrackID, Results: make([]FollowerResult, len(ids))}

	if snap.Empty() || !snap.IsPlaying {
		d.fanOut(ids, func(i int, id string) {
			report.Results[i] = d.pause(ctx, id, roster[id])
		})
		d.logger.Info("followers paused", "followers", len(ids))
		return report
	}

	if leader != nil {
		if err := leader.Player.Pause(ctx); err != nil {
			d.logger.Debug("leader pause failed", "err", err)
		}
		if err := leader.Player.Seek(ctx, 0); err != nil {
			d.logger.Debug("leader seek failed", "err", err)
		}
	}

	d.fanOut(ids, func(i int, id string) {
		report.Results[i] = d.start(ctx, id, roster[id], snap.TrackID)
	})

	if leader != nil {
		if err := leader.Player.Resume(ctx); err != nil {
			d.logger.Warn("leader resume failed", "err", err)
		} else {
			report.LeaderResumed = true
		}
	}

	d.logger.Info("track dispatched",
		"track", snap.TrackID,
		"started", report.Count(OutcomeStarted),
		"failed", report.Count(OutcomeFailed),
	)
	return report
}

// fanOut runs fn for every id concurrently and waits for all of them. fn must only write its own index.
func (d *Dispatcher) fanOut(ids []string, fn func(i int, id string)) {
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			fn(i, id)
		}(i, id)
	}
	wg.Wait()
}

func (d *Dispatcher) pause(ctx context.Context, id string, s *Session) FollowerResult {
	err := s.Player.Pause(ctx)
	if err != nil {
		d.logger.Debug("follower pause failed", "user", id, "err", err)
	}
	return FollowerResult{UserID: id, Outcome: OutcomePaused, Attempts: 1, Err: err, Session: s}
}

func (d *Dispatcher) start(ctx context.Context, id string, s *Session, trackID string) FollowerResult {
	res := FollowerResult{UserID: id, Outcome: OutcomeFailed, Session: s}

	for attempt := 0; attempt <= maxStartRetries; attempt++ {
		if attempt > 0 {
			rebuilt, err := d.registry.Rebuild(ctx, id)
			if err != nil {
				res.Err = fmt.Errorf("rebuild after %w: %w", res.Err, err)
				break
			}
			res.Session, res.Rebuilt = rebuilt, true
		}

		res.Attempts++
		res.Err = res.Session.Player.Play(ctx, trackID, res.Session.DeviceID())
		if res.Err == nil {
			res.Outcome = OutcomeStarted
			return res
		}
		d.logger.Debug("follower start failed", "user", id, "attempt", res.Attempts, "err", res.Err)
	}

	d.logger.Warn("follower start abandoned", "user", id, "track", trackID, "err", res.Err)
	return res
}
