// Package review owns the clinical summary queue.
//
// The Store is the single owner of the ordered []Summary and the current
// selection. Every mutation (approve, send back) and every selection change
// goes through it, so the auto-advance rule after approval and the append-only
// send-back audit trail live in one place. Presentation layers (the TUI, the
// HTTP API, the review panel) read snapshots and call the Store's operations;
// they never hold a mutable Summary.
//
// Side effects toward the outside world (triage alerts, micro-task dispatch,
// metrics, the review trail) leave the Store as Events handed to Publishers.
// Publishing is fire-and-forget: the Store never waits for delivery.
package review
