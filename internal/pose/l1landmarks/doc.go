// Package l1landmarks owns Layer 1 (Landmarks) of the pose data model.
//
// Responsibilities: the PoseFrame produced once per camera frame by the
// external keypoint detector, landmark naming for the supported skeletons,
// frame validation and JSON/JSONL decoding.
// Key types: Landmark, PoseFrame.
//
// Dependency rule: L1 depends on nothing else in internal/pose.
package l1landmarks
