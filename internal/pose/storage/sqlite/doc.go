// Package sqlite contains the SQLite repository implementations for the
// pose domain: the model blob store behind l4model.Store and the training
// run ledger behind training.RunLedger.
//
// All SQL for the pose packages belongs here rather than in the layer
// packages, so domain logic stays free of SQL and tests can swap in the
// in-memory store.
package sqlite
