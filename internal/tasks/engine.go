package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tandem/internal/models"
	"github.com/desertthunder/tandem/internal/services"
	"github.com/desertthunder/tandem/internal/shared"
	"github.com/desertthunder/tandem/internal/store"
)

const (
	DefaultInterval   = 2 * time.Second
	DefaultDeviceName = "Game Night"
	DefaultLeaderID   = "main"
)

// LoopState is everything carried from one tick to the next. Each tick returns a new value.
type LoopState struct {
	Leader   *Session
	Roster   Roster
	Snapshot models.Snapshot
}

// EngineOpts contains the dependencies and settings of a [SyncEngine].
type EngineOpts struct {
	Remote      services.Remote
	Credentials store.Credentials
	Display     store.Display
	LeaderID    string        // default "main"
	DeviceName  string        // default "Game Night"
	Interval    time.Duration // default 2s
	Logger      *log.Logger   // default stderr logger
	Events      chan<- Event  // optional tick observer
	Now         func() time.Time
}

// SyncEngine mirrors the leader's playback onto the follower roster.
type SyncEngine struct {
	sessions   *SessionManager
	detector   *Detector
	registry   *Registry
	dispatcher *Dispatcher
	creds      store.Credentials
	leaderID   string
	interval   time.Duration
	logger     *log.Logger
	events     chan<- Event
}

// NewSyncEngine wires the session manager, detector, registry and dispatcher.
func NewSyncEngine(opts EngineOpts) (*SyncEngine, error) {
	switch {
	case opts.Remote == nil:
		return nil, fmt.Errorf("%w: remote client", shared.ErrMissingArgument)
	case opts.Credentials == nil:
		return nil, fmt.Errorf("%w: credential store", shared.ErrMissingArgument)
	case opts.Display == nil:
		return nil, fmt.Errorf("%w: display store", shared.ErrMissingArgument)
	}

	if opts.LeaderID == "" {
		opts.LeaderID = DefaultLeaderID
	}
	if opts.DeviceName == "" {
		opts.DeviceName = DefaultDeviceName
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	sessions := NewSessionManager(opts.Remote, opts.Now, shared.WithLogger(opts.Logger, "component", "sessions"))
	registry := NewRegistry(sessions, opts.Credentials, opts.LeaderID, opts.DeviceName, shared.WithLogger(opts.Logger, "component", "registry"))

	return &SyncEngine{
		sessions:   sessions,
		detector:   NewDetector(opts.Display, shared.WithLogger(opts.Logger, "component", "detector")),
		registry:   registry,
		dispatcher: NewDispatcher(registry, shared.WithLogger(opts.Logger, "component", "dispatcher")),
		creds:      opts.Credentials,
		leaderID:   opts.LeaderID,
		interval:   opts.Interval,
		logger:     opts.Logger,
		events:     opts.Events,
	}, nil
}

// Run ticks until ctx is cancelled and returns ctx's error.
//
// The loop starts idle: the first tick runs after one interval. The next wait starts only after a tick completes, so slow ticks stretch the cadence
// instead of overlapping.
func (e *SyncEngine) Run(ctx context.Context) error {
	e.logger.Info("sync loop started", "leader", e.leaderID, "interval", e.interval)

	timer := time.NewTimer(e.interval)
	defer timer.Stop()

	state := LoopState{}
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sync loop stopped")
			return ctx.Err()
		case <-timer.C:
		}

		state = e.Tick(ctx, state)
		timer.Reset(e.interval)
	}
}

// Tick performs one iteration: resolve the leader, sample it, and on a change reconcile and dispatch.
//
// Failures never escape a tick. Without a usable leader the engine stays dormant and keeps the previous snapshot and
// roster.
func (e *SyncEngine) Tick(ctx context.Context, prev LoopState) LoopState {
	next := LoopState{Roster: prev.Roster, Snapshot: prev.Snapshot}

	leader, err := e.resolveLeader(ctx, prev.Leader)
	if err != nil {
		if errors.Is(err, shared.ErrCredentialNotFound) {
			e.logger.Debug("no leader registered", "leader", e.leaderID)
		} else {
			e.logger.Warn("leader unavailable", "leader", e.leaderID, "err", err)
		}
		e.emit(dormantEvent(err))
		return next
	}
	next.Leader = leader

	changed, snap := e.detector.Sample(ctx, leader, prev.Snapshot)
	next.Snapshot = snap
	if !changed {
		e.emit(unchangedEvent(next))
		return next
	}

	roster := e.registry.Reconcile(ctx, prev.Roster)
	report := e.dispatcher.Dispatch(ctx, leader, roster, snap)
	next.Roster = roster.Merge(report)

	e.emit(dispatchedEvent(next, report))
	return next
}

func (e *SyncEngine) resolveLeader(ctx context.Context, existing *Session) (*Session, error) {
	credential, err := e.creds.Get(ctx, e.leaderID)
	if err != nil {
		return nil, err
	}
	return e.sessions.Resolve(ctx, e.leaderID, credential, existing)
}

// emit sends an event without blocking. Events are dropped when nobody keeps up.
func (e *SyncEngine) emit(ev Event) {
	if e.events == nil {
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}
