// Package ui implements the interactive download progress panel using bubbletea's Elm architecture.
//
// The [Model] subscribes to the tracker's reconciled snapshots and re-renders on every change:
// an overall line with a progress bar, the list of tracked jobs and one row per active entry.
// Visibility follows the shared panel state machine, so the panel opens by itself when a
// download becomes active and stays closed after the user hides it until the next job.
//
// Keys: h hides, s shows, p toggles a peek (preview without changing the hide choice),
// c cancels the newest running job, r reopens push subscriptions after a stream failure and q quits.
//
// Messages arrive via the Msg union type. Snapshots and batch submission progress are read from
// channels in tea.Cmd functions, so no goroutine ever touches the model directly.
package ui
