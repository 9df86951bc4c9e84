package ui

import (
	"github.com/charmbracelet/bubbles/list"
)

var _ list.Item = followerItem{}

// followerItem wraps a follower id to implement [list.Item].
type followerItem struct {
	id     string
	inSync bool // admitted to the engine's roster on the last tick
	known  bool // whether an engine event has reported a roster yet
}

func (i followerItem) FilterValue() string { return i.id }
func (i followerItem) Title() string       { return i.id }
func (i followerItem) Description() string {
	switch {
	case !i.known:
		return "registered"
	case i.inSync:
		return "in sync"
	default:
		return "not in sync (no device or bad credential)"
	}
}
