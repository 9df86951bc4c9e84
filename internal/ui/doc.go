// Package ui implements the terminal monitor using bubbletea's Elm architecture.
//
// The monitor shows the published now-playing snapshot, the registered followers and, when it runs next to the sync
// loop, the outcome of each engine tick:
//  1. [FollowerListView] : now playing, engine status and the follower list
//  2. [ConfirmView] : confirm removing the selected follower's credential
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// The store is polled on a timer. Engine events flow through a channel from the SyncEngine without blocking the loop.
//
// Keyboard navigation uses vim-style bindings (j/k, d, y/n, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
