package l1landmarks

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineBytes bounds a single JSONL record (33 landmarks with visibility is ~4 KiB).
const maxLineBytes = 1 << 20

// DecodeFrames accepts either a single PoseFrame object or an envelope
// {"frames": [...]} and returns the frames in order.
func DecodeFrames(data []byte) ([]PoseFrame, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty frame payload")
	}

	var envelope struct {
		Frames    []PoseFrame `json:"frames"`
		Landmarks []Landmark  `json:"landmarks"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse frame payload: %w", err)
	}
	if envelope.Frames != nil {
		return envelope.Frames, nil
	}

	var single PoseFrame
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("failed to parse pose frame: %w", err)
	}
	return []PoseFrame{single}, nil
}

// ReadFramesJSONL reads one PoseFrame per line. Blank lines are skipped.
// The line number is included in parse errors.
func ReadFramesJSONL(r io.Reader) ([]PoseFrame, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var frames []PoseFrame
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var f PoseFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}
	return frames, nil
}
