package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/tandem/internal/models"
	testutil "github.com/desertthunder/tandem/internal/testing"
)

// dispatchSetup reconciles a roster of the given followers and returns a dispatcher over it.
func dispatchSetup(t *testing.T, followers ...string) (*fakeRemote, *Dispatcher, *Session, Roster) {
	t.Helper()
	ctx := context.Background()

	remote := newFakeRemote()
	tokens := map[string]string{}
	for _, id := range followers {
		remote.account(id, gameNight(id+"-dev", true))
		tokens[id] = "rt-" + id
	}
	leaderPlayer := remote.account("main")

	registry := newTestRegistry(remote, testutil.NewMemoryStore(tokens))
	roster := registry.Reconcile(ctx, nil)
	if len(roster) != len(followers) {
		t.Fatalf("roster has %d followers, want %d", len(roster), len(followers))
	}
	remote.log.reset()

	leader := &Session{UserID: "main", Player: leaderPlayer}
	return remote, NewDispatcher(registry, discard), leader, roster
}

func TestDispatchStart(t *testing.T) {
	ctx := context.Background()

	t.Run("starts every follower between leader pause and resume", func(t *testing.T) {
		remote, d, leader, roster := dispatchSetup(t, "alice", "bob", "carol")

		report := d.Dispatch(ctx, leader, roster, models.Snapshot{TrackID: "T1", IsPlaying: true})

		if report.Count(OutcomeStarted) != 3 || !report.LeaderResumed {
			t.Fatalf("unexpected report: %+v", report)
		}

		pause := remote.log.index("main pause")
		seek := remote.log.index("main seek:0")
		resume := remote.log.index("main resume")
		if pause < 0 || seek < 0 || resume < 0 {
			t.Fatalf("missing leader calls: %v", remote.log.all())
		}

		for _, id := range []string{"alice", "bob", "carol"} {
			play := remote.log.index(id + " play:T1@" + id + "-dev")
			if play < 0 {
				t.Errorf("%s was not started on its device, calls: %v", id, remote.log.all())
				continue
			}
			if play < pause || play < seek {
				t.Errorf("%s started before the leader was paused and rewound", id)
			}
			if play > resume {
				t.Errorf("%s started after the leader resumed", id)
			}
		}
	})

	t.Run("results are ordered by user id", func(t *testing.T) {
		_, d, leader, roster := dispatchSetup(t, "carol", "alice", "bob")

		report := d.Dispatch(ctx, leader, roster, models.Snapshot{TrackID: "T1", IsPlaying: true})
		for i, want := range []string{"alice", "bob", "carol"} {
			if report.Results[i].UserID != want {
				t.Errorf("Results[%d] = %s, want %s", i, report.Results[i].UserID, want)
			}
		}
		if report.TrackID != "T1" {
			t.Errorf("TrackID = %q, want T1", report.TrackID)
		}
	})

	t.Run("retries once with a rebuilt session", func(t *testing.T) {
		remote, d, leader, roster := dispatchSetup(t, "alice")
		remote.players["rt-alice"].playErrs = []error{errBoom}

		report := d.Dispatch(ctx, leader, roster, models.Snapshot{TrackID: "T1", IsPlaying: true})
		res := report.Results[0]

		if res.Outcome != OutcomeStarted || res.Attempts != 2 || res.Err != nil {
			t.Errorf("unexpected result: %+v", res)
		}
		if !res.Rebuilt || res.Session == roster["alice"] {
			t.Error("expected a rebuilt session")
		}
		if n := remote.log.count("alice refresh"); n != 1 {
			t.Errorf("refresh count = %d, want 1", n)
		}
		if n := remote.log.count("alice play"); n != 2 {
			t.Errorf("play count = %d, want 2", n)
		}
	})

	t.Run("gives up after one retry", func(t *testing.T) {
		remote, d, leader, roster := dispatchSetup(t, "alice")
		remote.players["rt-alice"].playAlways = errBoom

		report := d.Dispatch(ctx, leader, roster, models.Snapshot{TrackID: "T1", IsPlaying: true})
		res := report.Results[0]

		if res.Outcome != OutcomeFailed || res.Attempts != 2 || !errors.Is(res.Err, errBoom) {
			t.Errorf("unexpected result: %+v", res)
		}
		if n := remote.log.count("alice play"); n != 2 {
			t.Errorf("play count = %d, want 2", n)
		}
		if !report.LeaderResumed {
			t.Error("leader should resume even when a follower fails")
		}
	})

	t.Run("stops when the rebuild fails", func(t *testing.T) {
		remote, d, leader, roster := dispatchSetup(t, "alice")
		remote.players["rt-alice"].playAlways = errBoom
		remote.refreshErrs["rt-alice"] = errBoom

		res := d.Dispatch(ctx, leader, roster, models.Snapshot{TrackID: "T1", IsPlaying: true}).Results[0]

		if res.Outcome != OutcomeFailed || res.Attempts != 1 || res.Rebuilt {
			t.Errorf("unexpected result: %+v", res)
		}
		if n := remote.log.count("alice play"); n != 1 {
			t.Errorf("play count = %d, want 1", n)
		}
	})

	t.Run("one failing follower does not affect the others", func(t *testing.T) {
		remote, d, leader, roster := dispatchSetup(t, "alice", "bob", "carol")
		remote.players["rt-bob"].playAlways = errBoom

		report := d.Dispatch(ctx, leader, roster, models.Snapshot{TrackID: "T1", IsPlaying: true})

		if report.Count(OutcomeStarted) != 2 || report.Count(OutcomeFailed) != 1 {
			t.Errorf("started=%d failed=%d, want 2 and 1", report.Count(OutcomeStarted), report.Count(OutcomeFailed))
		}
		if report.Results[1].UserID != "bob" || report.Results[1].Outcome != OutcomeFailed {
			t.Errorf("unexpected bob result: %+v", report.Results[1])
		}
	})

	t.Run("leader resume failure is reported", func(t *testing.T) {
		remote, d, leader, roster := dispatchSetup(t, "alice")
		remote.players["rt-main"].resumeErr = errBoom
		remote.players["rt-main"].pauseErr = errBoom

		report := d.Dispatch(ctx, leader, roster, models.Snapshot{TrackID: "T1", IsPlaying: true})
		if report.LeaderResumed {
			t.Error("LeaderResumed should be false")
		}
		if report.Count(OutcomeStarted) != 1 {
			t.Error("a failed leader pause should not block followers")
		}
	})

	t.Run("empty roster still resumes the leader", func(t *testing.T) {
		remote, d, leader, roster := dispatchSetup(t)

		report := d.Dispatch(ctx, leader, roster, models.Snapshot{TrackID: "T1", IsPlaying: true})
		if len(report.Results) != 0 || !report.LeaderResumed {
			t.Errorf("unexpected report: %+v", report)
		}
		if remote.log.index("main resume") < 0 {
			t.Error("expected the leader to resume")
		}
	})
}

func TestDispatchPause(t *testing.T) {
	ctx := context.Background()

	for _, snap := range []models.Snapshot{{TrackID: "T1", IsPlaying: false}, {}} {
		t.Run(snap.String(), func(t *testing.T) {
			remote, d, leader, roster := dispatchSetup(t, "alice", "bob")
			remote.players["rt-bob"].pauseErr = errBoom

			report := d.Dispatch(ctx, leader, roster, snap)

			if report.Count(OutcomePaused) != 2 {
				t.Errorf("paused = %d, want 2", report.Count(OutcomePaused))
			}
			if !errors.Is(report.Results[1].Err, errBoom) {
				t.Errorf("expected bob's pause error to be recorded, got %v", report.Results[1].Err)
			}
			for _, id := range []string{"alice", "bob"} {
				if n := remote.log.count(id + " pause"); n != 1 {
					t.Errorf("%s pause count = %d, want 1", id, n)
				}
				if n := remote.log.count(id + " play"); n != 0 {
					t.Errorf("%s should not be started", id)
				}
			}
			if n := remote.log.count("main "); n != 0 {
				t.Errorf("leader should not be touched, calls: %v", remote.log.all())
			}
			if report.LeaderResumed {
				t.Error("LeaderResumed should be false")
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	tests := map[Outcome]string{
		OutcomePaused:  "paused",
		OutcomeStarted: "started",
		OutcomeFailed:  "failed",
		Outcome(42):    "",
	}
	for o, want := range tests {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(o), got, want)
		}
	}
}

func TestDispatchFanOut(t *testing.T) {
	ctx := context.Background()
	snap := models.Snapshot{TrackID: "T1", IsPlaying: true}

	t.Run("a stuck follower does not hold up the others", func(t *testing.T) {
		remote, d, leader, roster := dispatchSetup(t, "alice", "bob")
		blocked, release := gateCalls(t, remote.player("bob"))

		done := make(chan Report, 1)
		go func() { done <- d.Dispatch(ctx, leader, roster, snap) }()

		receive(t, "bob's play to block", blocked)
		waitFor(t, "alice's play", func() bool { return remote.log.count("alice play:T1") == 1 })

		if n := remote.log.count("main resume"); n != 0 {
			t.Fatalf("leader resumed while bob was still starting: %v", remote.log.all())
		}
		select {
		case <-done:
			t.Fatal("dispatch returned before every follower finished")
		default:
		}

		release()
		report := receive(t, "dispatch", done)

		if report.Count(OutcomeStarted) != 2 || !report.LeaderResumed {
			t.Fatalf("unexpected report: %+v", report)
		}
		resume := remote.log.index("main resume")
		if resume < remote.log.index("bob play") || resume < remote.log.index("alice play") {
			t.Errorf("leader resumed before the fan-out finished: %v", remote.log.all())
		}
	})

	t.Run("cancellation releases a stuck follower", func(t *testing.T) {
		remote, d, leader, roster := dispatchSetup(t, "alice")
		blocked, _ := gateCalls(t, remote.player("alice"))

		ctx, cancel := context.WithCancel(ctx)
		done := make(chan Report, 1)
		go func() { done <- d.Dispatch(ctx, leader, roster, snap) }()

		receive(t, "alice's play to block", blocked)
		cancel()
		receive(t, "dispatch", done)
	})
}
