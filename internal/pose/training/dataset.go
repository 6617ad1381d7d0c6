package training

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/physio.track/internal/pose/l1landmarks"
	"github.com/banshee-data/physio.track/internal/pose/l2features"
	"github.com/banshee-data/physio.track/internal/pose/l3window"
	"github.com/banshee-data/physio.track/internal/pose/l4model"
)

// LabeledSequence is a recorded exercise with per-frame phase labels and a
// target form score for the whole sequence.
type LabeledSequence struct {
	ExerciseType string                  `json:"exercise_type"`
	Frames       []l1landmarks.PoseFrame `json:"frames"`
	Phases       []l4model.Phase         `json:"phases"`
	// QualityScore is the target form score on the 0-100 scale.
	QualityScore float64 `json:"quality_score"`
}

// DatasetOptions controls how sequences are cut into windows.
type DatasetOptions struct {
	Normalizer     *l2features.Normalizer
	SequenceLength int
	// Stride is the number of frames between consecutive windows once the
	// first window is full. Values below 1 mean 1.
	Stride int
}

// DatasetStats describes a built dataset.
type DatasetStats struct {
	Sequences     int            `json:"sequences"`
	Windows       int            `json:"windows"`
	SkippedFrames int            `json:"skipped_frames"`
	PerLabel      map[string]int `json:"per_label"`
}

// BuildDataset normalizes and windows every sequence exactly like the live
// path: frames that fail normalization are skipped, and each full window
// becomes one sample labeled with the phase of its newest frame.
func BuildDataset(seqs []LabeledSequence, opts DatasetOptions) ([]l4model.Sample, DatasetStats, error) {
	stats := DatasetStats{PerLabel: make(map[string]int)}
	if len(seqs) == 0 {
		return nil, stats, &TrainingDataError{Sequence: -1, Reason: "no sequences supplied", Err: ErrNoSequences}
	}
	if opts.Normalizer == nil || opts.SequenceLength <= 0 {
		return nil, stats, fmt.Errorf("dataset options need a normalizer and a positive sequence length")
	}
	stride := max(opts.Stride, 1)

	var samples []l4model.Sample
	for si, seq := range seqs {
		typeIdx := l4model.ExerciseIndex(seq.ExerciseType)
		if typeIdx < 0 {
			return nil, stats, &TrainingDataError{Sequence: si, Label: seq.ExerciseType, Reason: "unknown exercise type", Err: ErrUnknownExercise}
		}
		if len(seq.Phases) != len(seq.Frames) {
			return nil, stats, &TrainingDataError{
				Sequence: si, Label: seq.ExerciseType,
				Reason: fmt.Sprintf("%d frames but %d phase labels", len(seq.Frames), len(seq.Phases)),
				Err:    ErrMalformedSequence,
			}
		}
		if math.IsNaN(seq.QualityScore) || seq.QualityScore < 0 || seq.QualityScore > 100 {
			return nil, stats, &TrainingDataError{
				Sequence: si, Label: seq.ExerciseType,
				Reason: fmt.Sprintf("quality score %v outside [0,100]", seq.QualityScore),
				Err:    ErrMalformedSequence,
			}
		}
		if _, seen := stats.PerLabel[seq.ExerciseType]; !seen {
			stats.PerLabel[seq.ExerciseType] = 0
		}
		stats.Sequences++

		win := l3window.New(opts.SequenceLength, opts.Normalizer.Dim())
		sinceLast := 0
		for fi, frame := range seq.Frames {
			if !seq.Phases[fi].Valid() {
				return nil, stats, &TrainingDataError{
					Sequence: si, Label: seq.ExerciseType,
					Reason: fmt.Sprintf("frame %d has invalid phase %d", fi, int(seq.Phases[fi])),
					Err:    ErrMalformedSequence,
				}
			}
			vec, err := opts.Normalizer.Normalize(frame)
			if err != nil {
				stats.SkippedFrames++
				continue
			}
			if err := win.Push(vec); err != nil {
				stats.SkippedFrames++
				continue
			}
			if !win.IsFull() {
				continue
			}
			sinceLast++
			if (sinceLast-1)%stride != 0 {
				continue
			}
			snap := win.Snapshot()
			samples = append(samples, l4model.Sample{
				Steps:        mat.DenseCopyOf(snap.Matrix()),
				ExerciseType: typeIdx,
				Phase:        seq.Phases[fi],
				Quality:      seq.QualityScore / 100,
			})
			stats.PerLabel[seq.ExerciseType]++
			stats.Windows++
		}
	}

	labels := make([]string, 0, len(stats.PerLabel))
	for label := range stats.PerLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		if stats.PerLabel[label] == 0 {
			return nil, stats, &TrainingDataError{
				Sequence: -1, Label: label,
				Reason: fmt.Sprintf("no full %d-frame window", opts.SequenceLength),
				Err:    ErrInsufficientWindows,
			}
		}
	}
	return samples, stats, nil
}
