// Package l3window owns Layer 3 (Window) of the pose data model.
//
// Responsibilities: the fixed-capacity FIFO of normalized feature vectors
// that forms the classifier's input context, and the snapshot copy handed to
// inference so later pushes cannot corrupt an in-flight input.
// Key types: Window, Snapshot.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
package l3window
