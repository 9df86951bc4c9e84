package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tandem/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgFollowersFetched MsgKind = iota
	MsgSnapshotFetched
	MsgEngineEvent
	MsgEventsClosed
	MsgFollowerRemoved
	MsgPoll
)

type followersData struct {
	ids []string
	err error
}

type snapshotData struct {
	payload []byte
	err     error
}

type removedData struct {
	id  string
	err error
}

// followersFetchedMsg is the constructor for [MsgFollowersFetched]
func followersFetchedMsg(ids []string, err error) Msg {
	return Msg{kind: MsgFollowersFetched, data: followersData{ids, err}}
}

// snapshotFetchedMsg is the constructor for [MsgSnapshotFetched]
func snapshotFetchedMsg(payload []byte, err error) Msg {
	return Msg{kind: MsgSnapshotFetched, data: snapshotData{payload, err}}
}

// engineEventMsg is the constructor for [MsgEngineEvent]
func engineEventMsg(ev tasks.Event) Msg {
	return Msg{kind: MsgEngineEvent, data: ev}
}

// followerRemovedMsg is the constructor for [MsgFollowerRemoved]
func followerRemovedMsg(id string, err error) Msg {
	return Msg{kind: MsgFollowerRemoved, data: removedData{id, err}}
}
