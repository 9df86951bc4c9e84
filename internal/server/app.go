package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tandem/internal/models"
	"github.com/desertthunder/tandem/internal/services"
	"github.com/desertthunder/tandem/internal/shared"
	"github.com/desertthunder/tandem/internal/store"
)

//go:embed templates/*.html static/*
var assets embed.FS

const (
	backgroundTimeout = 30 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// AppOpts contains the dependencies and settings of an [App].
type AppOpts struct {
	OAuth      services.OAuthService
	Store      store.Store
	LeaderID   string // default "main"
	DeviceName string // name of the browser player device followers host
	Logger     *log.Logger
	Now        func() time.Time
}

// App is the sign-in web service: followers authorize and host a browser player, the leader registers and checks
// status.
type App struct {
	oauth      services.OAuthService
	store      store.Store
	sessions   *SessionTable
	states     *StateTable
	tmpl       *template.Template
	router     *BasicRouter
	leaderID   string
	deviceName string
	logger     *log.Logger
	wg         sync.WaitGroup
}

// NewApp parses the page templates and registers every route.
func NewApp(opts AppOpts) (*App, error) {
	switch {
	case opts.OAuth == nil:
		return nil, fmt.Errorf("%w: oauth service", shared.ErrMissingArgument)
	case opts.Store == nil:
		return nil, fmt.Errorf("%w: store", shared.ErrMissingArgument)
	}
	if opts.LeaderID == "" {
		opts.LeaderID = string(RoleLeader)
	}
	if opts.DeviceName == "" {
		opts.DeviceName = "Game Night"
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	tmpl, err := template.ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	a := &App{
		oauth:      opts.OAuth,
		store:      opts.Store,
		sessions:   NewSessionTable(opts.Now),
		states:     NewStateTable(opts.Now),
		tmpl:       tmpl,
		router:     NewBasicRouter(),
		leaderID:   opts.LeaderID,
		deviceName: opts.DeviceName,
		logger:     opts.Logger,
	}
	a.routes()
	return a, nil
}

func (a *App) routes() {
	r := a.router
	r.Use(Recover(a.logger), Logging(a.logger))

	r.Handle(http.MethodGet, "/", http.HandlerFunc(a.index))
	r.Handle(http.MethodGet, "/main", http.HandlerFunc(a.leaderStatus))
	r.Handle(http.MethodGet, "/main/register", http.HandlerFunc(a.leaderRegister))
	r.Handle(http.MethodGet, "/main/reset", http.HandlerFunc(a.leaderReset))
	r.Handle(http.MethodGet, "/logout", http.HandlerFunc(a.logout))
	r.Handle(http.MethodGet, "/token", http.HandlerFunc(a.token))
	r.Handle(http.MethodGet, "/now-playing", http.HandlerFunc(a.nowPlaying))
	r.Handle(http.MethodGet, "/static/", http.FileServerFS(assets))
	r.Handler(&CallbackHandler{
		oauth:    a.oauth,
		store:    a.store,
		states:   a.states,
		sessions: a.sessions,
		leaderID: a.leaderID,
		logger:   a.logger,
	})
}

// ServeHTTP implements [http.Handler].
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Serve listens on addr until ctx is cancelled, then shuts down and waits for background work.
func (a *App) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: a, ReadHeaderTimeout: 10 * time.Second}

	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()
	a.logger.Info("web server listening", "addr", addr)

	select {
	case err := <-errs:
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	a.Wait()
	a.logger.Info("web server stopped")
	return nil
}

// Wait blocks until background work started by requests has finished.
func (a *App) Wait() {
	a.wg.Wait()
}

// background runs fn detached from the request so a closing browser cannot cut it short.
func (a *App) background(fn func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// index hosts the follower's browser player, or sends a browser without a session into authorization.
func (a *App) index(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := a.sessions.FromRequest(r); !ok {
		http.Redirect(w, r, a.oauth.AuthURL(a.states.Issue(RoleFollower)), http.StatusFound)
		return
	}
	a.render(w, http.StatusOK, "index.html", map[string]string{"DeviceName": a.deviceName})
}

// NowPlaying is the leader's playback as shown on the status page.
type NowPlaying struct {
	Title   string
	Artist  string
	Album   string
	Art     string
	Device  string
	Playing bool
}

func nowPlayingOf(p *models.Playback) NowPlaying {
	if p == nil || p.Track == nil {
		return NowPlaying{Title: "Not Playing", Device: "None"}
	}
	np := NowPlaying{
		Title:   p.Track.Name,
		Artist:  strings.Join(p.Track.Artists, ", "),
		Album:   p.Track.Album,
		Art:     p.Track.ArtURL,
		Device:  "None",
		Playing: p.IsPlaying,
	}
	if p.Device != nil {
		np.Device = p.Device.Name
	}
	return np
}

type leaderPage struct {
	Name      string
	Track     NowPlaying
	Followers []string
}

func (a *App) leaderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credential, err := a.store.Get(ctx, a.leaderID)
	if errors.Is(err, shared.ErrCredentialNotFound) {
		a.message(w, http.StatusOK, "No leader registered.", "/main/register", "Sign in to register as the leader")
		return
	} else if err != nil {
		a.logger.Error("failed to read leader credential", "err", err)
		http.Error(w, "Failed to read credential", http.StatusInternalServerError)
		return
	}

	token, err := a.oauth.Refresh(ctx, credential)
	if err != nil {
		a.logger.Warn("leader refresh failed", "err", err)
		a.message(w, http.StatusBadGateway, "Bad token for the leader.", "/main/reset", "Reset and register again")
		return
	}
	player, err := a.oauth.Connect(ctx, token)
	if err != nil {
		a.logger.Warn("leader connect failed", "err", err)
		a.message(w, http.StatusBadGateway, "Bad token for the leader.", "/main/reset", "Reset and register again")
		return
	}

	page := leaderPage{Name: a.leaderID}
	var (
		wg       sync.WaitGroup
		playback *models.Playback
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		if user, err := player.UserProfile(ctx); err != nil {
			a.logger.Warn("failed to read leader profile", "err", err)
		} else {
			page.Name = user.Name()
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		if playback, err = player.CurrentlyPlaying(ctx); err != nil {
			a.logger.Warn("failed to read leader playback", "err", err)
		}
	}()
	go func() {
		defer wg.Done()
		ids, err := a.store.List(ctx)
		if err != nil {
			a.logger.Warn("failed to list followers", "err", err)
			return
		}
		for _, id := range ids {
			if id != a.leaderID {
				page.Followers = append(page.Followers, id)
			}
		}
	}()
	wg.Wait()

	page.Track = nowPlayingOf(playback)
	a.render(w, http.StatusOK, "main.html", page)
}

func (a *App) leaderRegister(w http.ResponseWriter, r *http.Request) {
	has, err := a.store.Has(r.Context(), a.leaderID)
	if err != nil {
		a.logger.Error("failed to check leader credential", "err", err)
		http.Error(w, "Failed to read credential", http.StatusInternalServerError)
		return
	}
	if has {
		a.message(w, http.StatusConflict, "A leader is already registered.", "/main/reset", "Reset the leader")
		return
	}
	http.Redirect(w, r, a.oauth.AuthURL(a.states.Issue(RoleLeader)), http.StatusFound)
}

func (a *App) leaderReset(w http.ResponseWriter, r *http.Request) {
	err := a.store.Delete(r.Context(), a.leaderID)
	if err != nil && !errors.Is(err, shared.ErrCredentialNotFound) {
		a.logger.Error("failed to delete leader credential", "err", err)
		http.Error(w, "Failed to delete credential", http.StatusInternalServerError)
		return
	}
	a.logger.Info("leader reset", "leader", a.leaderID)
	a.message(w, http.StatusOK, "Leader reset.", "/main/register", "Register a new leader")
}

// logout removes the follower's credential in the background and ends the session.
func (a *App) logout(w http.ResponseWriter, r *http.Request) {
	sid, userID, ok := a.sessions.FromRequest(r)
	clearCookie(w)

	if ok {
		a.sessions.Revoke(sid)
		a.background(func(ctx context.Context) {
			if err := a.store.Delete(ctx, userID); err != nil {
				a.logger.Warn("failed to deregister follower", "user", userID, "err", err)
				return
			}
			a.logger.Info("follower deregistered", "user", userID)
		})
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "Logged out.")
}

// token hands the browser player a fresh access token for the session's account.
func (a *App) token(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(SessionCookie); err != nil {
		http.Error(w, "Missing cookie", http.StatusBadRequest)
		return
	}
	sid, userID, ok := a.sessions.FromRequest(r)
	if !ok {
		http.Error(w, "Unknown session", http.StatusBadRequest)
		return
	}

	credential, err := a.store.Get(r.Context(), userID)
	if err != nil {
		a.logger.Warn("session without credential", "user", userID, "err", err)
		a.sessions.Revoke(sid)
		http.Error(w, "Bad token", http.StatusBadRequest)
		return
	}

	token, err := a.oauth.Refresh(r.Context(), credential)
	if err != nil {
		a.logger.Warn("follower refresh failed", "user", userID, "err", err)
		http.Error(w, "Bad token", http.StatusBadRequest)
		return
	}

	if token.RefreshToken != "" && token.RefreshToken != credential {
		if err := a.store.Put(r.Context(), userID, token.RefreshToken); err != nil {
			a.logger.Warn("failed to store rotated credential", "user", userID, "err", err)
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	fmt.Fprint(w, token.AccessToken)
}

func (a *App) nowPlaying(w http.ResponseWriter, r *http.Request) {
	payload, err := a.store.Snapshot(r.Context())
	if errors.Is(err, shared.ErrSnapshotNotFound) {
		payload = store.NullSnapshot
	} else if err != nil {
		a.logger.Error("failed to read snapshot", "err", err)
		http.Error(w, "Failed to read snapshot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(payload)
}

type messagePage struct {
	Text     string
	Link     string
	LinkText string
}

func (a *App) message(w http.ResponseWriter, status int, text, link, linkText string) {
	a.render(w, status, "message.html", messagePage{Text: text, Link: link, LinkText: linkText})
}

// render executes a template into a buffer first so a failing template never leaves a half-written page.
func (a *App) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := a.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		a.logger.Error("failed to render template", "template", name, "err", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
