// Package l4model owns Layer 4 (Model) of the pose data model.
//
// Responsibilities: the multi-output sequence classifier (two stacked
// bidirectional LSTM layers feeding exercise-type, rep-phase and
// form-quality heads), its gradient-based fit, the weights codec, and the
// process-wide Handle that arbitrates shared inference against exclusive
// training.
// Key types: Architecture, Network, Classification, Handle, Store.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+.
package l4model
