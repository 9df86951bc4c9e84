package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
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

var errBoom = errors.New("boom")

type fakePlayer struct {
	services.Player // unused methods panic
	user            *services.SpotifyUser
	profileErr      error
	playback        *models.Playback
}

func (p *fakePlayer) UserProfile(context.Context) (*services.SpotifyUser, error) {
	return p.user, p.profileErr
}

func (p *fakePlayer) CurrentlyPlaying(context.Context) (*models.Playback, error) {
	return p.playback, nil
}

// fakeOAuth hands out tokens whose refresh token names the account: code "c-alice" yields "rt-alice".
type fakeOAuth struct {
	mu          sync.Mutex
	exchangeErr error
	refreshErr  error
	rotate      bool
	connectErr  error
	players     map[string]*fakePlayer // by access token
}

func newFakeOAuth() *fakeOAuth {
	return &fakeOAuth{players: map[string]*fakePlayer{}}
}

func (f *fakeOAuth) account(name string) *fakePlayer {
	p := &fakePlayer{user: &services.SpotifyUser{ID: name, DisplayName: strings.ToUpper(name)}}
	f.mu.Lock()
	f.players["at-"+name] = p
	f.mu.Unlock()
	return p
}

func (f *fakeOAuth) AuthURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + state
}

func (f *fakeOAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	name := strings.TrimPrefix(code, "c-")
	return &oauth2.Token{AccessToken: "at-" + name, RefreshToken: "rt-" + name}, nil
}

func (f *fakeOAuth) Refresh(_ context.Context, rt string) (*oauth2.Token, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	name := strings.TrimPrefix(rt, "rt-")
	token := &oauth2.Token{AccessToken: "at-" + name}
	if f.rotate {
		token.RefreshToken = rt + "-rotated"
	}
	return token, nil
}

func (f *fakeOAuth) Connect(_ context.Context, token *oauth2.Token) (services.Player, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[token.AccessToken]
	if !ok {
		return nil, errBoom
	}
	return p, nil
}

func newTestApp(t *testing.T, tokens map[string]string) (*App, *fakeOAuth, *testutil.MemoryStore) {
	t.Helper()
	oauth := newFakeOAuth()
	st := testutil.NewMemoryStore(tokens)
	app, err := NewApp(AppOpts{OAuth: oauth, Store: st, DeviceName: "Game Night", Logger: shared.NewLogger(io.Discard)})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	return app, oauth, st
}

func get(app *App, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", SessionCookie)
	return nil
}

// authorize follows the redirect from path and completes the callback with code.
func authorize(t *testing.T, app *App, path, code string) *httptest.ResponseRecorder {
	t.Helper()
	w := get(app, path)
	if w.Code != http.StatusFound {
		t.Fatalf("GET %s status = %d, want 302", path, w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad redirect: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("redirect carries no state")
	}
	return get(app, "/callback?state="+state+"&code="+code)
}

func TestNewApp(t *testing.T) {
	st := testutil.NewMemoryStore(nil)
	if _, err := NewApp(AppOpts{Store: st}); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument without oauth, got %v", err)
	}
	if _, err := NewApp(AppOpts{OAuth: newFakeOAuth()}); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument without store, got %v", err)
	}
}

func TestFollowerFlow(t *testing.T) {
	ctx := context.Background()
	app, oauth, st := newTestApp(t, nil)
	oauth.account("alice")

	t.Run("index without session redirects to authorization", func(t *testing.T) {
		w := get(app, "/")
		if w.Code != http.StatusFound {
			t.Fatalf("status = %d, want 302", w.Code)
		}
		if !strings.HasPrefix(w.Header().Get("Location"), "https://accounts.example.com/authorize?state=") {
			t.Errorf("Location = %q", w.Header().Get("Location"))
		}
	})

	w := authorize(t, app, "/", "c-alice")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("callback status = %d location = %q", w.Code, w.Header().Get("Location"))
	}
	cookie := sessionCookie(t, w)

	if got, _ := st.Get(ctx, "alice"); got != "rt-alice" {
		t.Errorf("stored token = %q, want rt-alice", got)
	}

	t.Run("index with session renders the player", func(t *testing.T) {
		w := get(app, "/", cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if !strings.Contains(w.Body.String(), `data-device-name="Game Night"`) {
			t.Error("player page should carry the device name")
		}
	})

	t.Run("token returns a fresh access token", func(t *testing.T) {
		w := get(app, "/token", cookie)
		if w.Code != http.StatusOK || w.Body.String() != "at-alice" {
			t.Errorf("status = %d body = %q", w.Code, w.Body.String())
		}
		if w.Header().Get("Cache-Control") != "no-store" {
			t.Error("token responses must not be cached")
		}
	})

	t.Run("token stores a rotated refresh token", func(t *testing.T) {
		oauth.rotate = true
		defer func() { oauth.rotate = false }()

		if w := get(app, "/token", cookie); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if got, _ := st.Get(ctx, "alice"); got != "rt-alice-rotated" {
			t.Errorf("stored token = %q, want rt-alice-rotated", got)
		}
		_ = st.Put(ctx, "alice", "rt-alice")
	})

	t.Run("logout deletes the credential", func(t *testing.T) {
		w := get(app, "/logout", cookie)
		app.Wait()

		if w.Code != http.StatusOK || w.Body.String() != "Logged out." {
			t.Errorf("status = %d body = %q", w.Code, w.Body.String())
		}
		if has, _ := st.Has(ctx, "alice"); has {
			t.Error("credential should be deleted")
		}
		if cleared := sessionCookie(t, w); cleared.MaxAge >= 0 {
			t.Error("session cookie should be cleared")
		}
		if w := get(app, "/token", cookie); w.Code != http.StatusBadRequest {
			t.Errorf("token after logout status = %d, want 400", w.Code)
		}
	})
}

func TestLogoutWithoutSession(t *testing.T) {
	app, _, st := newTestApp(t, map[string]string{"alice": "rt-alice"})

	w := get(app, "/logout")
	app.Wait()

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if has, _ := st.Has(context.Background(), "alice"); !has {
		t.Error("no credential should be deleted without a session")
	}
}

func TestToken(t *testing.T) {
	t.Run("missing cookie", func(t *testing.T) {
		app, _, _ := newTestApp(t, nil)
		w := get(app, "/token")
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Missing cookie") {
			t.Errorf("status = %d body = %q", w.Code, w.Body.String())
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		app, _, _ := newTestApp(t, nil)
		w := get(app, "/token", &http.Cookie{Name: SessionCookie, Value: "forged"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("refresh rejected", func(t *testing.T) {
		app, oauth, _ := newTestApp(t, nil)
		oauth.account("alice")
		cookie := sessionCookie(t, authorize(t, app, "/", "c-alice"))

		oauth.refreshErr = shared.ErrCredentialInvalid
		w := get(app, "/token", cookie)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Bad token") {
			t.Errorf("status = %d body = %q", w.Code, w.Body.String())
		}
	})

	t.Run("credential removed elsewhere", func(t *testing.T) {
		app, oauth, st := newTestApp(t, nil)
		oauth.account("alice")
		cookie := sessionCookie(t, authorize(t, app, "/", "c-alice"))
		_ = st.Delete(context.Background(), "alice")

		if w := get(app, "/token", cookie); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if app.sessions.Len() != 0 {
			t.Error("the orphaned session should be revoked")
		}
	})
}

func TestCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown state", func(t *testing.T) {
		app, _, _ := newTestApp(t, nil)
		w := get(app, "/callback?state=forged&code=c-alice")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("state cannot be replayed", func(t *testing.T) {
		app, oauth, _ := newTestApp(t, nil)
		oauth.account("alice")

		loc, _ := url.Parse(get(app, "/").Header().Get("Location"))
		state := loc.Query().Get("state")

		if w := get(app, "/callback?state="+state+"&code=c-alice"); w.Code != http.StatusFound {
			t.Fatalf("first callback status = %d", w.Code)
		}
		if w := get(app, "/callback?state="+state+"&code=c-alice"); w.Code != http.StatusBadRequest {
			t.Errorf("replayed callback status = %d, want 400", w.Code)
		}
	})

	t.Run("authorization denied", func(t *testing.T) {
		app, _, _ := newTestApp(t, nil)
		loc, _ := url.Parse(get(app, "/").Header().Get("Location"))

		w := get(app, "/callback?state="+loc.Query().Get("state")+"&error=access_denied")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("exchange failure", func(t *testing.T) {
		app, oauth, st := newTestApp(t, nil)
		oauth.exchangeErr = errBoom

		if w := authorize(t, app, "/", "c-alice"); w.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", w.Code)
		}
		if ids, _ := st.List(ctx); len(ids) != 0 {
			t.Errorf("nothing should be stored, got %v", ids)
		}
	})

	t.Run("profile failure", func(t *testing.T) {
		app, oauth, _ := newTestApp(t, nil)
		oauth.account("alice").profileErr = errBoom

		if w := authorize(t, app, "/", "c-alice"); w.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", w.Code)
		}
	})

	t.Run("follower id colliding with the leader", func(t *testing.T) {
		app, oauth, st := newTestApp(t, nil)
		oauth.account("main")

		if w := authorize(t, app, "/", "c-main"); w.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", w.Code)
		}
		if has, _ := st.Has(ctx, "main"); has {
			t.Error("a follower must not be stored under the leader id")
		}
	})
}

func TestLeaderRoutes(t *testing.T) {
	ctx := context.Background()

	t.Run("status without leader", func(t *testing.T) {
		app, _, _ := newTestApp(t, nil)
		w := get(app, "/main")
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `href="/main/register"`) {
			t.Errorf("status = %d body = %q", w.Code, w.Body.String())
		}
	})

	t.Run("register stores the leader credential", func(t *testing.T) {
		app, _, st := newTestApp(t, nil)

		w := authorize(t, app, "/main/register", "c-dj")
		if w.Code != http.StatusFound || w.Header().Get("Location") != "/main" {
			t.Fatalf("status = %d location = %q", w.Code, w.Header().Get("Location"))
		}
		if got, _ := st.Get(ctx, "main"); got != "rt-dj" {
			t.Errorf("leader token = %q, want rt-dj", got)
		}
		if len(w.Result().Cookies()) != 0 {
			t.Error("leader registration should not start a browser session")
		}
	})

	t.Run("register refused while a leader exists", func(t *testing.T) {
		app, _, _ := newTestApp(t, map[string]string{"main": "rt-dj"})
		w := get(app, "/main/register")
		if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), `href="/main/reset"`) {
			t.Errorf("status = %d body = %q", w.Code, w.Body.String())
		}
	})

	t.Run("reset deletes the leader credential", func(t *testing.T) {
		app, _, st := newTestApp(t, map[string]string{"main": "rt-dj", "alice": "rt-alice"})

		if w := get(app, "/main/reset"); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if has, _ := st.Has(ctx, "main"); has {
			t.Error("leader credential should be deleted")
		}
		if has, _ := st.Has(ctx, "alice"); !has {
			t.Error("followers should be kept")
		}
		if w := get(app, "/main/reset"); w.Code != http.StatusOK {
			t.Errorf("second reset status = %d, want 200", w.Code)
		}
	})

	t.Run("status page", func(t *testing.T) {
		app, oauth, _ := newTestApp(t, map[string]string{"main": "rt-dj", "alice": "rt-alice", "bob": "rt-bob"})
		oauth.account("dj").playback = &models.Playback{
			IsPlaying: true,
			Track:     &models.TrackInfo{ID: "T1", Name: "Blue Monday", Artists: []string{"New Order"}},
			Device:    &models.Device{Name: "Kitchen"},
		}

		w := get(app, "/main")
		body := w.Body.String()
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		for _, want := range []string{"DJ", "Blue Monday", "New Order", "Playing on Kitchen", "<li>alice</li>", "<li>bob</li>"} {
			if !strings.Contains(body, want) {
				t.Errorf("body missing %q", want)
			}
		}
		if strings.Contains(body, "<li>main</li>") {
			t.Error("the leader should not be listed as a follower")
		}
	})

	t.Run("status with a bad leader token", func(t *testing.T) {
		app, oauth, _ := newTestApp(t, map[string]string{"main": "rt-dj"})
		oauth.refreshErr = shared.ErrCredentialInvalid

		w := get(app, "/main")
		if w.Code != http.StatusBadGateway || !strings.Contains(w.Body.String(), `href="/main/reset"`) {
			t.Errorf("status = %d body = %q", w.Code, w.Body.String())
		}
	})
}

func TestNowPlaying(t *testing.T) {
	app, _, st := newTestApp(t, nil)

	w := get(app, "/now-playing")
	if w.Code != http.StatusOK || w.Body.String() != "null" {
		t.Errorf("before publish: status = %d body = %q", w.Code, w.Body.String())
	}

	_ = st.PublishSnapshot(context.Background(), []byte(`{"id":"T1"}`))
	w = get(app, "/now-playing")
	if w.Body.String() != `{"id":"T1"}` || w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("after publish: body = %q content-type = %q", w.Body.String(), w.Header().Get("Content-Type"))
	}
}

func TestStaticAndRouting(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	if w := get(app, "/static/player.js"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "onSpotifyWebPlaybackSDKReady") {
		t.Errorf("player.js status = %d", w.Code)
	}
	if w := get(app, "/nope"); w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/main", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /main status = %d, want 405", w.Code)
	}
}

func TestServe(t *testing.T) {
	app, _, _ := newTestApp(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
