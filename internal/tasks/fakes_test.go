package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tandem/internal/models"
	"github.com/desertthunder/tandem/internal/services"
	"github.com/desertthunder/tandem/internal/shared"
	testutil "github.com/desertthunder/tandem/internal/testing"
	"golang.org/x/oauth2"
)

var (
	errBoom   = errors.New("boom")
	testNow   = time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	testClock = func() time.Time { return testNow }
	discard   = shared.NewLogger(io.Discard)
)

// callLog records every remote call in order, across all fake players.
type callLog struct {
	mu    sync.Mutex
	calls []string // "user op[:arg]"
}

func (l *callLog) add(user, op string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := user + " " + op
	if len(args) > 0 {
		entry += ":" + fmt.Sprint(args...)
	}
	l.calls = append(l.calls, entry)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// count returns how many calls match the "user op" prefix.
func (l *callLog) count(prefix string) int {
	n := 0
	for _, c := range l.all() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// index returns the position of the first call with the prefix, or -1.
func (l *callLog) index(prefix string) int {
	for i, c := range l.all() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func (l *callLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// fakePlayer is one account's player. Play errors are consumed in order; once drained Play succeeds.
type fakePlayer struct {
	user string
	log  *callLog

	mu          sync.Mutex
	playback    *models.Playback
	playbackErr error
	profileErr  error
	devices     []models.Device
	devicesErr  error
	transferErr error
	playErrs    []error
	playAlways  error
	pauseErr    error
	resumeErr   error

	// gate, when set, holds Play and Devices until it is closed. blocked receives once per held call.
	gate    chan struct{}
	blocked chan struct{}
}

func (p *fakePlayer) hold(ctx context.Context) {
	if p.gate == nil {
		return
	}
	if p.blocked != nil {
		p.blocked <- struct{}{}
	}
	select {
	case <-p.gate:
	case <-ctx.Done():
	}
}

func (p *fakePlayer) UserProfile(context.Context) (*services.SpotifyUser, error) {
	p.log.add(p.user, "profile")
	if p.profileErr != nil {
		return nil, p.profileErr
	}
	return &services.SpotifyUser{ID: p.user, DisplayName: strings.ToUpper(p.user)}, nil
}

func (p *fakePlayer) CurrentlyPlaying(context.Context) (*models.Playback, error) {
	p.log.add(p.user, "current")
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playback, p.playbackErr
}

func (p *fakePlayer) setPlayback(trackID string, playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if trackID == "" {
		p.playback = nil
		return
	}
	p.playback = &models.Playback{IsPlaying: playing, Track: &models.TrackInfo{ID: trackID, Name: "Song " + trackID}}
}

func (p *fakePlayer) Devices(ctx context.Context) ([]models.Device, error) {
	p.log.add(p.user, "devices")
	p.hold(ctx)
	return p.devices, p.devicesErr
}

func (p *fakePlayer) Transfer(_ context.Context, id string) error {
	p.log.add(p.user, "transfer", id)
	return p.transferErr
}

func (p *fakePlayer) Play(ctx context.Context, trackID, deviceID string) error {
	p.log.add(p.user, "play", trackID+"@"+deviceID)
	p.hold(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playAlways != nil {
		return p.playAlways
	}
	if len(p.playErrs) > 0 {
		err := p.playErrs[0]
		p.playErrs = p.playErrs[1:]
		return err
	}
	return nil
}

func (p *fakePlayer) Pause(context.Context) error {
	p.log.add(p.user, "pause")
	return p.pauseErr
}

func (p *fakePlayer) Resume(context.Context) error {
	p.log.add(p.user, "resume")
	return p.resumeErr
}

func (p *fakePlayer) Seek(_ context.Context, ms int) error {
	p.log.add(p.user, "seek", ms)
	return nil
}

// fakeRemote maps refresh tokens ("rt-<user>") to fake players.
type fakeRemote struct {
	log *callLog

	mu          sync.Mutex
	players     map[string]*fakePlayer
	refreshErrs map[string]error
	connectErr  error
	expiry      time.Duration
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		log:         &callLog{},
		players:     map[string]*fakePlayer{},
		refreshErrs: map[string]error{},
		expiry:      time.Hour,
	}
}

// account registers a player for user reachable through refresh token "rt-<user>", with a device named name.
func (r *fakeRemote) account(user string, devices ...models.Device) *fakePlayer {
	p := &fakePlayer{user: user, log: r.log, devices: devices}
	r.mu.Lock()
	r.players["rt-"+user] = p
	r.mu.Unlock()
	return p
}

func (r *fakeRemote) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	user := strings.TrimPrefix(refreshToken, "rt-")
	r.log.add(user, "refresh")

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refreshErrs[refreshToken]; err != nil {
		return nil, err
	}
	if _, ok := r.players[refreshToken]; !ok {
		return nil, fmt.Errorf("%w: unknown token", shared.ErrCredentialInvalid)
	}
	return &oauth2.Token{
		AccessToken:  "at-" + user,
		RefreshToken: refreshToken,
		Expiry:       testNow.Add(r.expiry),
	}, nil
}

func (r *fakeRemote) Connect(_ context.Context, token *oauth2.Token) (services.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connectErr != nil {
		return nil, r.connectErr
	}
	return r.players[token.RefreshToken], nil
}

func gameNight(id string, active bool) models.Device {
	return models.Device{ID: id, Name: DefaultDeviceName, IsActive: active}
}

// fixture is a leader plus followers wired into an engine over a memory store.
type fixture struct {
	remote *fakeRemote
	store  *testutil.MemoryStore
	engine *SyncEngine
	leader *fakePlayer
	events chan Event
}

func newFixture(followers ...string) *fixture {
	remote := newFakeRemote()
	leader := remote.account("main")

	tokens := map[string]string{"main": "rt-main"}
	for _, id := range followers {
		remote.account(id, gameNight("dev-"+id, true))
		tokens[id] = "rt-" + id
	}

	st := testutil.NewMemoryStore(tokens)
	events := make(chan Event, 32)
	engine, err := NewSyncEngine(EngineOpts{
		Remote:      remote,
		Credentials: st,
		Display:     st,
		Logger:      discard,
		Events:      events,
		Now:         testClock,
	})
	if err != nil {
		panic(err)
	}

	return &fixture{remote: remote, store: st, engine: engine, leader: leader, events: events}
}

func (r *fakeRemote) player(user string) *fakePlayer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.players["rt-"+user]
}

func (f *fixture) player(user string) *fakePlayer {
	return f.remote.player(user)
}

// gateCalls makes p hold Play and Devices until the returned release func is called.
func gateCalls(t *testing.T, p *fakePlayer) (blocked <-chan struct{}, release func()) {
	t.Helper()
	p.gate = make(chan struct{})
	p.blocked = make(chan struct{}, 4)

	var once sync.Once
	release = func() { once.Do(func() { close(p.gate) }) }
	t.Cleanup(release)
	return p.blocked, release
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func receive[T any](t *testing.T, what string, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}
