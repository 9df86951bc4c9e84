package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tandem/internal/models"
	"github.com/desertthunder/tandem/internal/shared"
	"github.com/desertthunder/tandem/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	FollowerListView ViewState = iota
	ConfirmView
)

// Source is the part of the store the monitor reads and manages.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Snapshot(ctx context.Context) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// Opts contains the dependencies of a [Model].
type Opts struct {
	Source   Source
	Events   <-chan tasks.Event // optional engine events when the monitor runs next to the sync loop
	LeaderID string
	Interval time.Duration // store poll interval, default 2s
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	source       Source
	events       <-chan tasks.Event
	leaderID     string
	interval     time.Duration
	width        int
	height       int
	followerList list.Model
	followers    []string
	track        *models.TrackInfo
	event        *tasks.Event
	pending      string
	status       string
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new monitor model with the provided dependencies.
func NewModel(ctx context.Context, opts Opts) *Model {
	if opts.LeaderID == "" {
		opts.LeaderID = tasks.DefaultLeaderID
	}
	if opts.Interval <= 0 {
		opts.Interval = tasks.DefaultInterval
	}

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Followers"
	l.SetShowHelp(false)

	return &Model{
		ctx:          ctx,
		view:         FollowerListView,
		source:       opts.Source,
		events:       opts.Events,
		leaderID:     opts.LeaderID,
		interval:     opts.Interval,
		followerList: l,
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init loads the followers and the published snapshot, and starts polling.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchFollowers(), m.fetchSnapshot(), m.waitForEvent(), m.poll())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.followerList.SetSize(msg.Width-4, msg.Height-10)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case FollowerListView:
			return m.handleListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.followerList, cmd = m.followerList.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgFollowersFetched:
		data := msg.data.(followersData)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.setFollowers(data.ids)
		return m, nil

	case MsgSnapshotFetched:
		data := msg.data.(snapshotData)
		track, err := decodeSnapshot(data.payload, data.err)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.track = track
		return m, nil

	case MsgEngineEvent:
		ev := msg.data.(tasks.Event)
		m.event = &ev
		m.setFollowers(m.followers)
		if ev.Phase == tasks.PhaseDispatched {
			return m, tea.Batch(m.fetchSnapshot(), m.waitForEvent())
		}
		return m, m.waitForEvent()

	case MsgEventsClosed:
		m.events = nil
		return m, nil

	case MsgFollowerRemoved:
		data := msg.data.(removedData)
		if data.err != nil {
			m.err = fmt.Errorf("remove %s: %w", data.id, data.err)
			return m, nil
		}
		m.status = fmt.Sprintf("Removed %s", data.id)
		return m, m.fetchFollowers()

	case MsgPoll:
		return m, tea.Batch(m.fetchFollowers(), m.fetchSnapshot(), m.poll())
	}
	return m, nil
}

// decodeSnapshot turns a published payload into a track. A missing or null payload means nothing is playing.
func decodeSnapshot(payload []byte, err error) (*models.TrackInfo, error) {
	if errors.Is(err, shared.ErrSnapshotNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var track *models.TrackInfo
	if err := json.Unmarshal(payload, &track); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return track, nil
}

// setFollowers rebuilds the list items, excluding the leader and marking followers in the engine's roster.
func (m *Model) setFollowers(ids []string) {
	inSync := map[string]bool{}
	if m.event != nil {
		for _, id := range m.event.Roster {
			inSync[id] = true
		}
	}
	known := m.event != nil && m.event.Phase != tasks.PhaseDormant

	followers := make([]string, 0, len(ids))
	items := make([]list.Item, 0, len(ids))
	for _, id := range ids {
		if id == m.leaderID {
			continue
		}
		followers = append(followers, id)
		items = append(items, followerItem{id: id, inSync: inSync[id], known: known})
	}
	m.followers = followers
	m.followerList.SetItems(items)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ConfirmView:
		return m.renderConfirm()
	default:
		return m.renderFollowers()
	}
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		m.status = ""
		return m, tea.Batch(m.fetchFollowers(), m.fetchSnapshot())
	case key.Matches(msg, m.keys.remove):
		if selected, ok := m.followerList.SelectedItem().(followerItem); ok {
			m.pending = selected.id
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.followerList, cmd = m.followerList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		id := m.pending
		m.pending = ""
		m.view = FollowerListView
		return m, m.removeFollower(id)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.pending = ""
		m.view = FollowerListView
	}
	return m, nil
}

func (m *Model) fetchFollowers() tea.Cmd {
	return func() tea.Msg {
		ids, err := m.source.List(m.ctx)
		return followersFetchedMsg(ids, err)
	}
}

func (m *Model) fetchSnapshot() tea.Cmd {
	return func() tea.Msg {
		payload, err := m.source.Snapshot(m.ctx)
		return snapshotFetchedMsg(payload, err)
	}
}

func (m *Model) removeFollower(id string) tea.Cmd {
	return func() tea.Msg {
		return followerRemovedMsg(id, m.source.Delete(m.ctx, id))
	}
}

func (m *Model) poll() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return Msg{kind: MsgPoll}
	})
}

func (m *Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return Msg{kind: MsgEventsClosed}
		}
		return engineEventMsg(ev)
	}
}

func (m *Model) renderNowPlaying() string {
	if m.track == nil {
		return styles.help.Render("Nothing playing")
	}

	line := styles.track.Render("♪ " + m.track.Name)
	if len(m.track.Artists) > 0 {
		line += " by " + strings.Join(m.track.Artists, ", ")
	}
	if m.track.Album != "" {
		line += styles.help.Render(" • " + m.track.Album)
	}
	return line
}

func (m *Model) renderEngine() string {
	if m.event == nil {
		return ""
	}

	switch m.event.Phase {
	case tasks.PhaseDormant:
		return styles.warn.Render(m.event.Message)
	case tasks.PhaseDispatched:
		msg := m.event.Message
		if r := m.event.Report; r != nil && r.Count(tasks.OutcomeFailed) > 0 {
			return styles.warn.Render(fmt.Sprintf("%s (%d failed)", msg, r.Count(tasks.OutcomeFailed)))
		}
		return styles.ok.Render(msg)
	default:
		return fmt.Sprintf("%s • %d in sync", m.event.Message, len(m.event.Roster))
	}
}

func (m *Model) renderFollowers() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("tandem"))
	b.WriteString("\n")
	b.WriteString(m.renderNowPlaying())
	b.WriteString("\n")
	if engine := m.renderEngine(); engine != "" {
		b.WriteString(engine)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(m.followers) == 0 {
		b.WriteString(styles.help.Render("No followers registered"))
	} else {
		b.WriteString(m.followerList.View())
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(styles.ok.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Remove follower '%s'?", m.pending))
	info := "\nTheir stored credential is deleted. They can sign in again from the web page.\n"

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.help.ShortHelpView(helpKeys))
}
