package l4model

import "math"

// adam implements the Adam optimizer over a network's flattened params.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	m, v                  [][]float64
}

func newAdam(ps []param, lr float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
	for _, p := range ps {
		n := len(p.data())
		a.m = append(a.m, make([]float64, n))
		a.v = append(a.v, make([]float64, n))
	}
	return a
}

// step applies one update. Each gradient is multiplied by scale first.
func (a *adam) step(ps, grads []param, scale float64) {
	a.t++
	lrT := a.lr * math.Sqrt(1-math.Pow(a.beta2, float64(a.t))) / (1 - math.Pow(a.beta1, float64(a.t)))
	for k, p := range ps {
		w := p.data()
		g := grads[k].data()
		m, v := a.m[k], a.v[k]
		for i := range w {
			gi := g[i] * scale
			m[i] = a.beta1*m[i] + (1-a.beta1)*gi
			v[i] = a.beta2*v[i] + (1-a.beta2)*gi*gi
			w[i] -= lrT * m[i] / (math.Sqrt(v[i]) + a.eps)
		}
	}
}
