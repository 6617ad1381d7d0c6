package l4model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/physio.track/internal/pose/l3window"
)

// dense is a fully connected layer y = W x + b.
type dense struct {
	W *mat.Dense    // out x in
	B *mat.VecDense // out
}

func newDense(in, out int) *dense {
	return &dense{W: mat.NewDense(out, in, nil), B: mat.NewVecDense(out, nil)}
}

func (d *dense) apply(x mat.Vector) *mat.VecDense {
	out, _ := d.W.Dims()
	y := mat.NewVecDense(out, nil)
	y.MulVec(d.W, x)
	y.AddVec(y, d.B)
	return y
}

// backward accumulates gradients for dy and returns dx.
func (d *dense) backward(x, dy *mat.VecDense, g *dense) *mat.VecDense {
	g.W.RankOne(g.W, 1, dy, x)
	g.B.AddVec(g.B, dy)
	_, in := d.W.Dims()
	dx := mat.NewVecDense(in, nil)
	dx.MulVec(d.W.T(), dy)
	return dx
}

// Network is the bidirectional LSTM classifier:
//
//	BiLSTM(Hidden1, per-step) -> BiLSTM(Hidden2, summary) -> Dense(ReLU) -> Dropout
//	  -> type softmax | phase softmax | quality sigmoid
//
// A Network is read-only during inference; Fit mutates it in place.
type Network struct {
	Arch Architecture

	l1f, l1b *lstm
	l2f, l2b *lstm
	hidden   *dense
	typeHead *dense
	phase    *dense
	quality  *dense
}

// NewNetwork returns a network with Glorot-uniform weights drawn from a PCG
// stream seeded with seed. LSTM forget-gate biases start at 1.
func NewNetwork(arch Architecture, seed uint64) (*Network, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	n := zeroNetwork(arch)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, l := range []*lstm{n.l1f, n.l1b, n.l2f, n.l2b} {
		glorot(l.W, rng)
		glorot(l.U, rng)
		for j := 0; j < l.Hidden; j++ {
			l.B.SetVec(l.Hidden+j, 1)
		}
	}
	for _, d := range []*dense{n.hidden, n.typeHead, n.phase, n.quality} {
		glorot(d.W, rng)
	}
	return n, nil
}

func zeroNetwork(a Architecture) *Network {
	return &Network{
		Arch:     a,
		l1f:      newLSTM(a.FeatureDim, a.Hidden1),
		l1b:      newLSTM(a.FeatureDim, a.Hidden1),
		l2f:      newLSTM(2*a.Hidden1, a.Hidden2),
		l2b:      newLSTM(2*a.Hidden1, a.Hidden2),
		hidden:   newDense(2*a.Hidden2, a.Dense),
		typeHead: newDense(a.Dense, a.NumTypes),
		phase:    newDense(a.Dense, a.NumPhases),
		quality:  newDense(a.Dense, 1),
	}
}

func glorot(m *mat.Dense, rng *rand.Rand) {
	r, c := m.Dims()
	// For LSTM kernels the fan-out is the stacked gate height.
	limit := math.Sqrt(6 / float64(r+c))
	raw := m.RawMatrix()
	for i := 0; i < r; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+c]
		for j := range row {
			row[j] = (2*rng.Float64() - 1) * limit
		}
	}
}

// param is one named weight tensor. Its data aliases the network's storage.
type param struct {
	name string
	m    *mat.Dense
	v    *mat.VecDense
}

func (p param) data() []float64 {
	if p.m != nil {
		return p.m.RawMatrix().Data
	}
	return p.v.RawVector().Data
}

// params lists every tensor in a fixed order used by the codec and optimizer.
func (n *Network) params() []param {
	var ps []param
	for _, l := range []struct {
		name string
		l    *lstm
	}{{"bilstm1/forward", n.l1f}, {"bilstm1/backward", n.l1b}, {"bilstm2/forward", n.l2f}, {"bilstm2/backward", n.l2b}} {
		ps = append(ps,
			param{name: l.name + "/kernel", m: l.l.W},
			param{name: l.name + "/recurrent_kernel", m: l.l.U},
			param{name: l.name + "/bias", v: l.l.B},
		)
	}
	for _, d := range []struct {
		name string
		d    *dense
	}{{"dense", n.hidden}, {"exercise_type", n.typeHead}, {"rep_phase", n.phase}, {"form_quality", n.quality}} {
		ps = append(ps,
			param{name: d.name + "/kernel", m: d.d.W},
			param{name: d.name + "/bias", v: d.d.B},
		)
	}
	return ps
}

// ParamCount returns the number of trainable scalars.
func (n *Network) ParamCount() int {
	total := 0
	for _, p := range n.params() {
		total += len(p.data())
	}
	return total
}

// Clone returns a deep copy.
func (n *Network) Clone() *Network {
	c := zeroNetwork(n.Arch)
	dst := c.params()
	for i, p := range n.params() {
		copy(dst[i].data(), p.data())
	}
	return c
}

// pass holds every intermediate of one forward pass.
type pass struct {
	xs            []*mat.VecDense
	s1f, s1b      []lstmStep
	h1            []*mat.VecDense
	s2f, s2b      []lstmStep
	summary       *mat.VecDense
	pre           *mat.VecDense // dense pre-activation
	act           *mat.VecDense // after ReLU and dropout
	mask          []float64     // nil when dropout is off
	typeP, phaseP []float64
	qualityP      float64
}

// forward evaluates the network on a steps x FeatureDim input. rng is only
// consulted when train is true and dropout is positive.
func (n *Network) forward(x mat.Matrix, train bool, rng *rand.Rand) *pass {
	T, c := x.Dims()
	p := &pass{xs: make([]*mat.VecDense, T)}
	for t := 0; t < T; t++ {
		p.xs[t] = mat.NewVecDense(c, mat.Row(nil, t, x))
	}

	p.s1f = n.l1f.forward(p.xs, false)
	p.s1b = n.l1b.forward(p.xs, true)
	H1 := n.Arch.Hidden1
	p.h1 = make([]*mat.VecDense, T)
	for t := 0; t < T; t++ {
		v := mat.NewVecDense(2*H1, nil)
		v.SliceVec(0, H1).(*mat.VecDense).CopyVec(p.s1f[t].h)
		v.SliceVec(H1, 2*H1).(*mat.VecDense).CopyVec(p.s1b[t].h)
		p.h1[t] = v
	}

	p.s2f = n.l2f.forward(p.h1, false)
	p.s2b = n.l2b.forward(p.h1, true)
	H2 := n.Arch.Hidden2
	p.summary = mat.NewVecDense(2*H2, nil)
	p.summary.SliceVec(0, H2).(*mat.VecDense).CopyVec(p.s2f[T-1].h)
	p.summary.SliceVec(H2, 2*H2).(*mat.VecDense).CopyVec(p.s2b[0].h)

	p.pre = n.hidden.apply(p.summary)
	p.act = mat.NewVecDense(n.Arch.Dense, nil)
	if train && n.Arch.Dropout > 0 {
		p.mask = make([]float64, n.Arch.Dense)
		keep := 1 - n.Arch.Dropout
		for j := range p.mask {
			if rng.Float64() < keep {
				p.mask[j] = 1 / keep
			}
		}
	}
	for j := 0; j < n.Arch.Dense; j++ {
		a := math.Max(0, p.pre.AtVec(j))
		if p.mask != nil {
			a *= p.mask[j]
		}
		p.act.SetVec(j, a)
	}

	p.typeP = softmax(n.typeHead.apply(p.act).RawVector().Data)
	p.phaseP = softmax(n.phase.apply(p.act).RawVector().Data)
	p.qualityP = sigmoid(n.quality.apply(p.act).AtVec(0))
	return p
}

// target is one supervised example's labels.
type target struct {
	typeIdx  int
	phaseIdx int
	quality  float64
}

// lossParts are the per-head losses of one example.
type lossParts struct {
	typeCE, phaseCE, qualitySE float64
}

func (l lossParts) total() float64 { return l.typeCE + l.phaseCE + l.qualitySE }

const probFloor = 1e-7

func (p *pass) loss(y target) lossParts {
	q := p.qualityP - y.quality
	return lossParts{
		typeCE:    -math.Log(math.Max(p.typeP[y.typeIdx], probFloor)),
		phaseCE:   -math.Log(math.Max(p.phaseP[y.phaseIdx], probFloor)),
		qualitySE: q * q,
	}
}

// backward accumulates the gradient of the joint loss for one example into g.
func (n *Network) backward(p *pass, y target, g *Network) {
	dType := mat.NewVecDense(n.Arch.NumTypes, append([]float64(nil), p.typeP...))
	dType.SetVec(y.typeIdx, dType.AtVec(y.typeIdx)-1)
	dPhase := mat.NewVecDense(n.Arch.NumPhases, append([]float64(nil), p.phaseP...))
	dPhase.SetVec(y.phaseIdx, dPhase.AtVec(y.phaseIdx)-1)
	q := p.qualityP
	dQuality := mat.NewVecDense(1, []float64{2 * (q - y.quality) * q * (1 - q)})

	dAct := n.typeHead.backward(p.act, dType, g.typeHead)
	dAct.AddVec(dAct, n.phase.backward(p.act, dPhase, g.phase))
	dAct.AddVec(dAct, n.quality.backward(p.act, dQuality, g.quality))

	for j := 0; j < n.Arch.Dense; j++ {
		d := dAct.AtVec(j)
		if p.pre.AtVec(j) <= 0 {
			d = 0
		} else if p.mask != nil {
			d *= p.mask[j]
		}
		dAct.SetVec(j, d)
	}
	dSummary := n.hidden.backward(p.summary, dAct, g.hidden)

	T := len(p.xs)
	H2 := n.Arch.Hidden2
	dh2f := make([]*mat.VecDense, T)
	dh2b := make([]*mat.VecDense, T)
	dh2f[T-1] = mat.VecDenseCopyOf(dSummary.SliceVec(0, H2))
	dh2b[0] = mat.VecDenseCopyOf(dSummary.SliceVec(H2, 2*H2))
	dh1 := n.l2f.backward(p.s2f, dh2f, false, g.l2f)
	dh1b := n.l2b.backward(p.s2b, dh2b, true, g.l2b)

	H1 := n.Arch.Hidden1
	dh1f := make([]*mat.VecDense, T)
	dh1r := make([]*mat.VecDense, T)
	for t := 0; t < T; t++ {
		dh1[t].AddVec(dh1[t], dh1b[t])
		dh1f[t] = mat.VecDenseCopyOf(dh1[t].SliceVec(0, H1))
		dh1r[t] = mat.VecDenseCopyOf(dh1[t].SliceVec(H1, 2*H1))
	}
	n.l1f.backward(p.s1f, dh1f, false, g.l1f)
	n.l1b.backward(p.s1b, dh1r, true, g.l1b)
}

// Predict runs inference on a snapshot. It does not mutate the network and is
// safe for concurrent use.
func (n *Network) Predict(snap *l3window.Snapshot) (Classification, error) {
	if snap == nil {
		return Classification{}, &InferenceError{Op: "predict", Err: fmt.Errorf("%w: empty window", ErrShape)}
	}
	if snap.Steps() != n.Arch.SequenceLength || snap.Dim() != n.Arch.FeatureDim {
		return Classification{}, &InferenceError{
			Op:  "predict",
			Err: fmt.Errorf("%w: got %dx%d, want %dx%d", ErrShape, snap.Steps(), snap.Dim(), n.Arch.SequenceLength, n.Arch.FeatureDim),
		}
	}
	return n.classify(n.forward(snap.Matrix(), false, nil))
}

func (n *Network) classify(p *pass) (Classification, error) {
	if !allFinite(p.typeP) || !allFinite(p.phaseP) || math.IsNaN(p.qualityP) {
		return Classification{}, &InferenceError{Op: "predict", Err: ErrNonFiniteOutput}
	}
	ti := floats.MaxIdx(p.typeP)
	return Classification{
		ExerciseType:   ExerciseTypes[ti],
		TypeConfidence: p.typeP[ti],
		TypeProbs:      p.typeP,
		RepPhase:       Phase(floats.MaxIdx(p.phaseP)),
		PhaseProbs:     p.phaseP,
		FormQuality:    p.qualityP,
	}, nil
}

// softmax returns a normalized copy of logits.
func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	m := floats.Max(logits)
	for i, v := range logits {
		out[i] = math.Exp(v - m)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

func allFinite(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
