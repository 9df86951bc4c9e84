package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tandem/internal/shared"
	"github.com/desertthunder/tandem/internal/tasks"
	testutil "github.com/desertthunder/tandem/internal/testing"
)

func newTestModel(t *testing.T, tokens map[string]string, events <-chan tasks.Event) (*Model, *testutil.MemoryStore) {
	t.Helper()
	st := testutil.NewMemoryStore(tokens)
	m := NewModel(context.Background(), Opts{Source: st, Events: events})
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return m, st
}

// run executes cmd and feeds the resulting message back into the model.
func run(m *Model, cmd tea.Cmd) tea.Cmd {
	if cmd == nil {
		return nil
	}
	_, next := m.Update(cmd())
	return next
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelFollowers(t *testing.T) {
	m, _ := newTestModel(t, map[string]string{"main": "rt-main", "alice": "rt-a", "bob": "rt-b"}, nil)

	if m.Init() == nil {
		t.Fatal("Init() should return a command")
	}

	run(m, m.fetchFollowers())

	if got := strings.Join(m.followers, ","); got != "alice,bob" {
		t.Errorf("followers = %q, want alice,bob", got)
	}
	view := m.View()
	for _, want := range []string{"tandem", "Nothing playing", "alice", "bob"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	t.Run("list error is shown", func(t *testing.T) {
		m, st := newTestModel(t, nil, nil)
		st.ListErr = errors.New("store down")
		run(m, m.fetchFollowers())

		if !strings.Contains(m.View(), "store down") {
			t.Error("expected the error in the view")
		}
	})

	t.Run("empty store", func(t *testing.T) {
		m, _ := newTestModel(t, map[string]string{"main": "rt-main"}, nil)
		run(m, m.fetchFollowers())

		if !strings.Contains(m.View(), "No followers registered") {
			t.Error("expected the empty state")
		}
	})
}

func TestModelSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("published track", func(t *testing.T) {
		m, st := newTestModel(t, nil, nil)
		_ = st.PublishSnapshot(ctx, []byte(`{"id":"T1","name":"Blue Monday","artists":["New Order"],"album":"Substance"}`))
		run(m, m.fetchSnapshot())

		view := m.View()
		for _, want := range []string{"Blue Monday", "New Order", "Substance"} {
			if !strings.Contains(view, want) {
				t.Errorf("view missing %q", want)
			}
		}
	})

	t.Run("null snapshot", func(t *testing.T) {
		m, st := newTestModel(t, nil, nil)
		_ = st.PublishSnapshot(ctx, []byte("null"))
		run(m, m.fetchSnapshot())

		if m.track != nil || !strings.Contains(m.View(), "Nothing playing") {
			t.Error("expected nothing playing")
		}
	})

	t.Run("corrupt snapshot", func(t *testing.T) {
		m, st := newTestModel(t, nil, nil)
		_ = st.PublishSnapshot(ctx, []byte("{"))
		run(m, m.fetchSnapshot())

		if m.err == nil {
			t.Error("expected a decode error")
		}
	})
}

func TestDecodeSnapshot(t *testing.T) {
	track, err := decodeSnapshot(nil, shared.ErrSnapshotNotFound)
	if track != nil || err != nil {
		t.Errorf("not found: track = %v err = %v", track, err)
	}

	if _, err := decodeSnapshot(nil, errors.New("boom")); err == nil {
		t.Error("expected the read error back")
	}

	track, err = decodeSnapshot([]byte(`{"id":"T1"}`), nil)
	if err != nil || track.ID != "T1" {
		t.Errorf("track = %+v err = %v", track, err)
	}
}

func TestModelRemoveFollower(t *testing.T) {
	ctx := context.Background()
	m, st := newTestModel(t, map[string]string{"alice": "rt-a", "bob": "rt-b"}, nil)
	run(m, m.fetchFollowers())

	m.Update(keyPress("d"))
	if m.view != ConfirmView || m.pending != "alice" {
		t.Fatalf("view = %v pending = %q, want confirm for alice", m.view, m.pending)
	}
	if !strings.Contains(m.View(), "Remove follower 'alice'?") {
		t.Error("confirm view should name the follower")
	}

	t.Run("no keeps the follower", func(t *testing.T) {
		_, cmd := m.Update(keyPress("n"))
		if cmd != nil || m.view != FollowerListView {
			t.Error("expected to return to the list without a command")
		}
		if has, _ := st.Has(ctx, "alice"); !has {
			t.Error("alice should be kept")
		}
	})

	t.Run("yes removes the follower", func(t *testing.T) {
		m.Update(keyPress("d"))
		_, cmd := m.Update(keyPress("y"))
		run(m, run(m, cmd))

		if has, _ := st.Has(ctx, "alice"); has {
			t.Error("alice should be removed")
		}
		if got := strings.Join(m.followers, ","); got != "bob" {
			t.Errorf("followers = %q, want bob", got)
		}
		if !strings.Contains(m.View(), "Removed alice") {
			t.Error("expected a status line")
		}
	})

	t.Run("failed removal is shown", func(t *testing.T) {
		m.Update(followerRemovedMsg("ghost", shared.ErrCredentialNotFound))
		if !errors.Is(m.err, shared.ErrCredentialNotFound) {
			t.Errorf("err = %v", m.err)
		}
	})
}

func TestModelEngineEvents(t *testing.T) {
	events := make(chan tasks.Event, 2)
	m, _ := newTestModel(t, map[string]string{"alice": "rt-a", "bob": "rt-b"}, events)
	run(m, m.fetchFollowers())

	report := &tasks.Report{Results: []tasks.FollowerResult{
		{UserID: "alice", Outcome: tasks.OutcomeStarted},
		{UserID: "bob", Outcome: tasks.OutcomeFailed},
	}}
	events <- tasks.Event{Phase: tasks.PhaseDispatched, Roster: []string{"alice"}, Report: report, Message: "Started T1 on 1/2 followers"}

	next := run(m, m.waitForEvent())
	if next == nil {
		t.Fatal("expected follow-up commands after an event")
	}

	view := m.View()
	for _, want := range []string{"Started T1 on 1/2 followers", "1 failed", "in sync", "not in sync"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	close(events)
	run(m, m.waitForEvent())
	if m.events != nil {
		t.Error("closed events channel should be dropped")
	}
	if m.waitForEvent() != nil {
		t.Error("no wait command without an events channel")
	}
}

func TestModelQuit(t *testing.T) {
	m, _ := newTestModel(t, nil, nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestFollowerItem(t *testing.T) {
	tests := []struct {
		item followerItem
		want string
	}{
		{followerItem{id: "a"}, "registered"},
		{followerItem{id: "a", known: true, inSync: true}, "in sync"},
		{followerItem{id: "a", known: true}, "not in sync (no device or bad credential)"},
	}
	for _, tt := range tests {
		if got := tt.item.Description(); got != tt.want {
			t.Errorf("Description() = %q, want %q", got, tt.want)
		}
		if tt.item.Title() != "a" || tt.item.FilterValue() != "a" {
			t.Error("Title and FilterValue should be the id")
		}
	}
}
