package l4model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// lstm is one unidirectional LSTM layer. Gate rows are stacked i, f, g, o,
// each Hidden rows tall.
type lstm struct {
	In, Hidden int
	W          *mat.Dense    // 4H x In
	U          *mat.Dense    // 4H x H
	B          *mat.VecDense // 4H
}

func newLSTM(in, hidden int) *lstm {
	return &lstm{
		In:     in,
		Hidden: hidden,
		W:      mat.NewDense(4*hidden, in, nil),
		U:      mat.NewDense(4*hidden, hidden, nil),
		B:      mat.NewVecDense(4*hidden, nil),
	}
}

// lstmStep holds the activations of one time step for backpropagation.
type lstmStep struct {
	x, hPrev, cPrev *mat.VecDense
	i, f, g, o      []float64
	c, tanhC        []float64
	h               *mat.VecDense
}

// forward runs the layer over xs. When reverse is set the sequence is
// consumed from the last step to the first; steps[t] always refers to input
// position t.
func (l *lstm) forward(xs []*mat.VecDense, reverse bool) []lstmStep {
	T := len(xs)
	H := l.Hidden
	steps := make([]lstmStep, T)
	hPrev := mat.NewVecDense(H, nil)
	cPrev := mat.NewVecDense(H, nil)
	z := mat.NewVecDense(4*H, nil)
	uh := mat.NewVecDense(4*H, nil)

	for k := 0; k < T; k++ {
		t := k
		if reverse {
			t = T - 1 - k
		}
		z.MulVec(l.W, xs[t])
		uh.MulVec(l.U, hPrev)
		z.AddVec(z, uh)
		z.AddVec(z, l.B)

		st := lstmStep{
			x: xs[t], hPrev: hPrev, cPrev: cPrev,
			i: make([]float64, H), f: make([]float64, H), g: make([]float64, H), o: make([]float64, H),
			c: make([]float64, H), tanhC: make([]float64, H),
		}
		h := mat.NewVecDense(H, nil)
		c := mat.NewVecDense(H, nil)
		for j := 0; j < H; j++ {
			st.i[j] = sigmoid(z.AtVec(j))
			st.f[j] = sigmoid(z.AtVec(H + j))
			st.g[j] = math.Tanh(z.AtVec(2*H + j))
			st.o[j] = sigmoid(z.AtVec(3*H + j))
			cj := st.f[j]*cPrev.AtVec(j) + st.i[j]*st.g[j]
			st.c[j] = cj
			st.tanhC[j] = math.Tanh(cj)
			c.SetVec(j, cj)
			h.SetVec(j, st.o[j]*st.tanhC[j])
		}
		st.h = h
		steps[t] = st
		hPrev, cPrev = h, c
	}
	return steps
}

// outputs returns the hidden state at each input position.
func outputs(steps []lstmStep) []*mat.VecDense {
	hs := make([]*mat.VecDense, len(steps))
	for t := range steps {
		hs[t] = steps[t].h
	}
	return hs
}

// backward propagates dhs (gradient w.r.t. steps[t].h, nil for zero) through
// time, accumulating parameter gradients into g, and returns the gradient
// with respect to each input.
func (l *lstm) backward(steps []lstmStep, dhs []*mat.VecDense, reverse bool, g *lstm) []*mat.VecDense {
	T := len(steps)
	H := l.Hidden
	dxs := make([]*mat.VecDense, T)
	dhNext := mat.NewVecDense(H, nil)
	dcNext := make([]float64, H)
	dz := mat.NewVecDense(4*H, nil)

	for k := T - 1; k >= 0; k-- {
		t := k
		if reverse {
			t = T - 1 - k
		}
		st := steps[t]
		for j := 0; j < H; j++ {
			dh := dhNext.AtVec(j)
			if dhs[t] != nil {
				dh += dhs[t].AtVec(j)
			}
			dc := dcNext[j] + dh*st.o[j]*(1-st.tanhC[j]*st.tanhC[j])
			do := dh * st.tanhC[j]
			di := dc * st.g[j]
			dg := dc * st.i[j]
			df := dc * st.cPrev.AtVec(j)

			dz.SetVec(j, di*st.i[j]*(1-st.i[j]))
			dz.SetVec(H+j, df*st.f[j]*(1-st.f[j]))
			dz.SetVec(2*H+j, dg*(1-st.g[j]*st.g[j]))
			dz.SetVec(3*H+j, do*st.o[j]*(1-st.o[j]))
			dcNext[j] = dc * st.f[j]
		}

		g.W.RankOne(g.W, 1, dz, st.x)
		g.U.RankOne(g.U, 1, dz, st.hPrev)
		g.B.AddVec(g.B, dz)

		dx := mat.NewVecDense(l.In, nil)
		dx.MulVec(l.W.T(), dz)
		dxs[t] = dx
		next := mat.NewVecDense(H, nil)
		next.MulVec(l.U.T(), dz)
		dhNext = next
	}
	return dxs
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
