package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tandem/internal/shared"
	"github.com/desertthunder/tandem/internal/store"
)

// Roster is the set of follower sessions keyed by user id.
type Roster map[string]*Session

// IDs returns the roster's user ids in sorted order.
func (r Roster) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Merge returns a copy of the roster with the sessions a dispatch rebuilt swapped in.
func (r Roster) Merge(report Report) Roster {
	next := make(Roster, len(r))
	for id, s := range r {
		next[id] = s
	}
	for _, res := range report.Results {
		if res.Rebuilt && res.Session != nil {
			if _, ok := next[res.UserID]; ok {
				next[res.UserID] = res.Session
			}
		}
	}
	return next
}

// Registry reconciles the follower roster against the stored credentials.
type Registry struct {
	sessions   *SessionManager
	creds      store.Credentials
	leaderID   string
	deviceName string
	logger     *log.Logger
}

// NewRegistry creates a [Registry]. Followers are bound to the device named deviceName.
func NewRegistry(sessions *SessionManager, creds store.Credentials, leaderID, deviceName string, logger *log.Logger) *Registry {
	return &Registry{
		sessions:   sessions,
		creds:      creds,
		leaderID:   leaderID,
		deviceName: deviceName,
		logger:     logger,
	}
}

// Reconcile rebuilds the roster from the stored follower ids, reusing sessions from current where still fresh.
//
// Followers are admitted concurrently. A follower whose credential, session or device fails is left out without
// affecting the others. If the ids cannot be listed, current is returned unchanged.
func (r *Registry) Reconcile(ctx context.Context, current Roster) Roster {
	ids, err := r.creds.List(ctx)
	if err != nil {
		r.logger.Warn("failed to list credentials, keeping roster", "followers", len(current), "err", err)
		return current
	}

	followers := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != r.leaderID {
			followers = append(followers, id)
		}
	}

	admitted := make([]*Session, len(followers))
	var wg sync.WaitGroup
	for i, id := range followers {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()

			s, err := r.admit(ctx, id, current[id])
			if err != nil {
				r.logger.Warn("follower excluded", "user", id, "err", err)
				return
			}
			admitted[i] = s
		}(i, id)
	}
	wg.Wait()

	roster := make(Roster, len(followers))
	for i, s := range admitted {
		if s != nil {
			roster[followers[i]] = s
		}
	}

	r.logger.Debug("roster reconciled", "stored", len(followers), "admitted", len(roster))
	return roster
}

func (r *Registry) admit(ctx context.Context, id string, existing *Session) (*Session, error) {
	credential, err := r.creds.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s, err := r.sessions.Resolve(ctx, id, credential, existing)
	if err != nil {
		return nil, err
	}

	return r.Bind(ctx, s)
}

// Rebuild discards any cached session for id and builds a new, bound one from the stored credential.
func (r *Registry) Rebuild(ctx context.Context, id string) (*Session, error) {
	return r.admit(ctx, id, nil)
}

// Bind selects the first device whose name equals the configured name, in API order, and transfers playback to it
// unless it is already active.
//
// Zero matches yield [shared.ErrDeviceUnavailable].
func (r *Registry) Bind(ctx context.Context, s *Session) (*Session, error) {
	devices, err := s.Player.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list devices for %s: %w", shared.ErrDeviceUnavailable, s.UserID, err)
	}

	for _, d := range devices {
		if d.Name != r.deviceName {
			continue
		}

		if !d.IsActive {
			if err := s.Player.Transfer(ctx, d.ID); err != nil {
				return nil, fmt.Errorf("%w: transfer %s to %q: %w", shared.ErrDeviceUnavailable, s.UserID, d.Name, err)
			}
			d.IsActive = true
		}
		return s.WithDevice(d), nil
	}

	return nil, fmt.Errorf("%w: %s has no device named %q", shared.ErrDeviceUnavailable, s.UserID, r.deviceName)
}
