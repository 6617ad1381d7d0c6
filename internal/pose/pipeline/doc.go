// Package pipeline is the composition root of the pose layers.
//
// A Session wires L2 normalization, the L3 window, L4 classification, L5 rep
// tracking and L6 form scoring behind the Analyzer interface the host
// drives one frame at a time. Simulated implements the same interface
// without a model for demos and UI development. NewAnalyzer selects between
// them from the tuning config.
//
// Dependency rule: pipeline may depend on every layer; no layer depends on
// pipeline.
package pipeline
