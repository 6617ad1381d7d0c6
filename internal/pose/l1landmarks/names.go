package l1landmarks

import "fmt"

// BlazePose full-body landmark names (33 points).
var BlazePoseNames = [...]string{
	"nose",
	"left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear",
	"mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_pinky", "right_pinky",
	"left_index", "right_index",
	"left_thumb", "right_thumb",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
	"left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

// COCO keypoint names (17 points) used by MoveNet-style detectors.
var COCONames = [...]string{
	"nose",
	"left_eye", "right_eye",
	"left_ear", "right_ear",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
}

// Name returns the landmark name at index i for a skeleton with k landmarks,
// or a positional name when k matches no known skeleton.
func Name(k, i int) string {
	switch {
	case k == len(BlazePoseNames) && i >= 0 && i < k:
		return BlazePoseNames[i]
	case k == len(COCONames) && i >= 0 && i < k:
		return COCONames[i]
	default:
		return fmt.Sprintf("landmark_%d", i)
	}
}
