// Package approval holds the client-side state for pipeline checkpoint review.
//
// The pipeline pauses at a checkpoint, the Store mirrors the paused state
// (checkpoint, reviewer feedback, in-flight flag, last error), and observers
// re-render on change. The Store performs no I/O and no validation; it is the
// single writer-serialized source of truth between the event listener, the
// submit coordinator, and the UI.
package approval
