// Package l2features owns Layer 2 (Features) of the pose data model.
//
// Responsibilities: converting one PoseFrame into a fixed-length feature
// vector that is centered on the pose bounding box and scaled by its larger
// side, so translation and zoom do not change the output.
// Key types: Normalizer, NormalizationError.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2features
