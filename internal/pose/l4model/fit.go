package l4model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Sample is one labeled window.
type Sample struct {
	Steps        *mat.Dense // SequenceLength x FeatureDim
	ExerciseType int        // index into ExerciseTypes
	Phase        Phase
	Quality      float64 // target in [0,1]
}

// FitOptions controls one training run.
type FitOptions struct {
	Epochs          int
	BatchSize       int
	LearningRate    float64
	ValidationSplit float64
	// ClipNorm bounds the global gradient norm per batch. Zero disables clipping.
	ClipNorm float64
	Seed     uint64
	// OnEpoch, when set, is called after every epoch.
	OnEpoch func(EpochStats)
}

// EpochStats summarizes one epoch.
type EpochStats struct {
	Epoch            int     `json:"epoch"`
	Loss             float64 `json:"loss"`
	TypeLoss         float64 `json:"type_loss"`
	PhaseLoss        float64 `json:"phase_loss"`
	QualityLoss      float64 `json:"quality_loss"`
	TypeAccuracy     float64 `json:"type_accuracy"`
	PhaseAccuracy    float64 `json:"phase_accuracy"`
	ValSamples       int     `json:"val_samples"`
	ValLoss          float64 `json:"val_loss"`
	ValTypeAccuracy  float64 `json:"val_type_accuracy"`
	ValPhaseAccuracy float64 `json:"val_phase_accuracy"`
}

// History is the per-epoch record of a fit.
type History []EpochStats

// Final returns the last epoch, or the zero value for an empty history.
func (h History) Final() EpochStats {
	if len(h) == 0 {
		return EpochStats{}
	}
	return h[len(h)-1]
}

func (n *Network) checkSample(i int, s Sample) error {
	if s.Steps == nil {
		return fmt.Errorf("%w: sample %d has no steps", ErrShape, i)
	}
	r, c := s.Steps.Dims()
	switch {
	case r != n.Arch.SequenceLength || c != n.Arch.FeatureDim:
		return fmt.Errorf("%w: sample %d is %dx%d, want %dx%d", ErrShape, i, r, c, n.Arch.SequenceLength, n.Arch.FeatureDim)
	case s.ExerciseType < 0 || s.ExerciseType >= n.Arch.NumTypes:
		return fmt.Errorf("sample %d: exercise type index %d out of range", i, s.ExerciseType)
	case !s.Phase.Valid():
		return fmt.Errorf("sample %d: invalid phase %d", i, int(s.Phase))
	case math.IsNaN(s.Quality) || s.Quality < 0 || s.Quality > 1:
		return fmt.Errorf("sample %d: quality %v outside [0,1]", i, s.Quality)
	}
	return nil
}

// Fit trains the network in place with Adam against the joint loss
// CE(type) + CE(phase) + MSE(quality). Samples are shuffled once to carve
// out the validation split and reshuffled every epoch. Fit stops early with
// ctx.Err() when ctx is cancelled; the network is then partially trained, so
// callers that need atomicity should fit a Clone.
func (n *Network) Fit(ctx context.Context, samples []Sample, opts FitOptions) (History, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("fit: no samples")
	}
	for i, s := range samples {
		if err := n.checkSample(i, s); err != nil {
			return nil, err
		}
	}
	if opts.Epochs <= 0 {
		opts.Epochs = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.001
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0xda942042e4dd58b5))
	order := rng.Perm(len(samples))
	nVal := int(math.Floor(float64(len(samples)) * opts.ValidationSplit))
	if nVal >= len(samples) {
		nVal = len(samples) - 1
	}
	trainIdx := order[:len(order)-nVal]
	valIdx := order[len(order)-nVal:]

	ps := n.params()
	grads := zeroNetwork(n.Arch)
	gps := grads.params()
	opt := newAdam(ps, opts.LearningRate)

	var history History
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })

		var typeL, phaseL, qualL []float64
		var typeHits, phaseHits int
		for start := 0; start < len(trainIdx); start += opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			end := min(start+opts.BatchSize, len(trainIdx))
			for _, gp := range gps {
				clear(gp.data())
			}
			for _, idx := range trainIdx[start:end] {
				s := samples[idx]
				y := target{typeIdx: s.ExerciseType, phaseIdx: int(s.Phase), quality: s.Quality}
				p := n.forward(s.Steps, true, rng)
				lp := p.loss(y)
				typeL = append(typeL, lp.typeCE)
				phaseL = append(phaseL, lp.phaseCE)
				qualL = append(qualL, lp.qualitySE)
				if floats.MaxIdx(p.typeP) == y.typeIdx {
					typeHits++
				}
				if floats.MaxIdx(p.phaseP) == y.phaseIdx {
					phaseHits++
				}
				n.backward(p, y, grads)
			}

			scale := 1 / float64(end-start)
			if opts.ClipNorm > 0 {
				if norm := gradNorm(gps) * scale; norm > opts.ClipNorm {
					scale *= opts.ClipNorm / norm
				}
			}
			opt.step(ps, gps, scale)
		}

		st := EpochStats{
			Epoch:         epoch,
			TypeLoss:      stat.Mean(typeL, nil),
			PhaseLoss:     stat.Mean(phaseL, nil),
			QualityLoss:   stat.Mean(qualL, nil),
			TypeAccuracy:  float64(typeHits) / float64(len(trainIdx)),
			PhaseAccuracy: float64(phaseHits) / float64(len(trainIdx)),
		}
		st.Loss = st.TypeLoss + st.PhaseLoss + st.QualityLoss
		if len(valIdx) > 0 {
			st.ValSamples = len(valIdx)
			st.ValLoss, st.ValTypeAccuracy, st.ValPhaseAccuracy = n.evaluate(samples, valIdx)
		}
		if math.IsNaN(st.Loss) || math.IsInf(st.Loss, 0) {
			return history, fmt.Errorf("fit: loss diverged at epoch %d", epoch)
		}
		diagf("epoch %d/%d loss=%.4f type_acc=%.3f phase_acc=%.3f val_loss=%.4f",
			epoch, opts.Epochs, st.Loss, st.TypeAccuracy, st.PhaseAccuracy, st.ValLoss)
		history = append(history, st)
		if opts.OnEpoch != nil {
			opts.OnEpoch(st)
		}
	}
	return history, nil
}

// evaluate returns mean joint loss and head accuracies without dropout.
func (n *Network) evaluate(samples []Sample, idx []int) (loss, typeAcc, phaseAcc float64) {
	losses := make([]float64, 0, len(idx))
	var th, ph int
	for _, i := range idx {
		s := samples[i]
		y := target{typeIdx: s.ExerciseType, phaseIdx: int(s.Phase), quality: s.Quality}
		p := n.forward(s.Steps, false, nil)
		losses = append(losses, p.loss(y).total())
		if floats.MaxIdx(p.typeP) == y.typeIdx {
			th++
		}
		if floats.MaxIdx(p.phaseP) == y.phaseIdx {
			ph++
		}
	}
	return stat.Mean(losses, nil), float64(th) / float64(len(idx)), float64(ph) / float64(len(idx))
}

func gradNorm(gps []param) float64 {
	var sq float64
	for _, gp := range gps {
		d := gp.data()
		sq += floats.Dot(d, d)
	}
	return math.Sqrt(sq)
}
