// Package panel implements the progress panel visibility state machine shared by every screen.
//
// The machine has two primary states, hidden and shown, plus an orthogonal peeking overlay so a
// transient hover preview never loses the underlying show/hide choice.
//
// [Reduce] is a pure transition function folding an [Action] into a [models.PanelState].
// [Machine] is the process-wide service object: it serializes [Machine.Dispatch] calls and notifies
// subscribers with the new state after every transition.
//
// A user's explicit [Hide] wins over activity: [SetActive] never pops the panel back up while
// ManualHide is set. Only [Show] or a [NewJob] followed by activity clears that choice.
package panel
