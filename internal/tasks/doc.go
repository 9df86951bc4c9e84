// Package tasks implements the leader/follower synchronization engine.
//
// # Components
//
//   - [SessionManager] : turns a stored refresh token into a [Session], reusing sessions until their token is within
//     a minute of expiry or the stored credential changes
//   - [Detector] : samples the leader and reports (track, playing) transitions, publishing the now-playing payload
//   - [Registry] : rebuilds the follower [Roster] from the credential store and binds each follower to the named device
//   - [Dispatcher] : fans a snapshot out to every follower concurrently and collects a [Report]
//   - [SyncEngine] : the loop tying them together, one [SyncEngine.Tick] per interval
//
// # Tick
//
// A tick resolves the leader (no credential or a failed refresh leaves the engine dormant), samples it, and only when
// the snapshot changed reconciles the roster and dispatches. State moves between ticks as an explicit [LoopState].
//
// # Concurrency
//
// Reconcile and Dispatch start one goroutine per follower and wait on a [sync.WaitGroup]. Each goroutine writes only
// its own slot of a result slice, so no locks guard the roster or the snapshot, which belong to the loop.
//
// # Failure Isolation
//
// A follower failing at any step is logged and left out of the roster, or reported as [OutcomeFailed], without
// affecting the rest. A start is retried once after rebuilding the follower's session from its stored credential.
//
// # Observing
//
// [EngineOpts.Events] receives an [Event] after every tick. Sends never block the loop.
package tasks
