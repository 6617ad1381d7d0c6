// Package l5reps owns Layer 5 (Reps) of the pose data model.
//
// Responsibilities: converting the stream of per-window phase
// classifications into a monotonic repetition counter.
// Key types: Tracker, Transition.
//
// Dependency rule: L5 may depend on L1-L4, but never on L6.
package l5reps
