package tasks

import (
	"fmt"

	"github.com/desertthunder/tandem/internal/models"
)

// Event reports the outcome of one engine tick.
//
// Events are sent to observers such as the terminal monitor without blocking the loop.
type Event struct {
	Phase    Phase
	Leader   string          // leader display name, empty while dormant
	Snapshot models.Snapshot // snapshot after the tick
	Roster   []string        // follower ids after the tick
	Report   *Report         // set for PhaseDispatched
	Err      error           // set for PhaseDormant
	Message  string
}

// Phase is the point a tick stopped at.
type Phase int

const (
	PhaseDormant Phase = iota
	PhaseUnchanged
	PhaseDispatched
)

func (p Phase) String() string {
	switch p {
	case PhaseDormant:
		return "dormant"
	case PhaseUnchanged:
		return "unchanged"
	case PhaseDispatched:
		return "dispatched"
	default:
		return ""
	}
}

func dormantEvent(err error) Event {
	return Event{Phase: PhaseDormant, Err: err, Message: fmt.Sprintf("Waiting for leader: %v", err)}
}

func unchangedEvent(state LoopState) Event {
	return Event{
		Phase:    PhaseUnchanged,
		Leader:   state.Leader.DisplayName,
		Snapshot: state.Snapshot,
		Roster:   state.Roster.IDs(),
		Message:  fmt.Sprintf("Leader on %s", state.Snapshot),
	}
}

func dispatchedEvent(state LoopState, report Report) Event {
	msg := fmt.Sprintf("Paused %d followers", report.Count(OutcomePaused))
	if state.Snapshot.IsPlaying {
		msg = fmt.Sprintf("Started %s on %d/%d followers", state.Snapshot.TrackID, report.Count(OutcomeStarted), len(report.Results))
	}
	return Event{
		Phase:    PhaseDispatched,
		Leader:   state.Leader.DisplayName,
		Snapshot: state.Snapshot,
		Roster:   state.Roster.IDs(),
		Report:   &report,
		Message:  msg,
	}
}
