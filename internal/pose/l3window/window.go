package l3window

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Window is a ring buffer of at most Capacity feature vectors, oldest first.
// It is owned by one session and is not safe for concurrent use.
type Window struct {
	capacity int
	dim      int
	buf      [][]float64
	head     int // index of the oldest element
	size     int
}

// New returns an empty window holding up to capacity vectors of length dim.
// A dim of 0 adopts the length of the first pushed vector.
func New(capacity, dim int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{capacity: capacity, dim: dim, buf: make([][]float64, capacity)}
}

// Capacity returns L.
func (w *Window) Capacity() int { return w.capacity }

// Dim returns the feature length, or 0 before the first push when unset.
func (w *Window) Dim() int { return w.dim }

// Len returns the number of vectors currently held.
func (w *Window) Len() int { return w.size }

// IsFull reports whether Len() == Capacity().
func (w *Window) IsFull() bool { return w.size == w.capacity }

// Push appends a copy of v, evicting the oldest vector once full. Empty
// vectors and vectors of the wrong length are rejected.
func (w *Window) Push(v []float64) error {
	if len(v) == 0 {
		return fmt.Errorf("push empty vector")
	}
	if w.dim == 0 {
		w.dim = len(v)
	}
	if len(v) != w.dim {
		return fmt.Errorf("push vector of length %d into window of dim %d", len(v), w.dim)
	}

	cp := make([]float64, len(v))
	copy(cp, v)
	if w.size < w.capacity {
		w.buf[(w.head+w.size)%w.capacity] = cp
		w.size++
		return nil
	}
	w.buf[w.head] = cp
	w.head = (w.head + 1) % w.capacity
	return nil
}

// Reset empties the window. A reset window must be refilled from scratch.
func (w *Window) Reset() {
	for i := range w.buf {
		w.buf[i] = nil
	}
	w.head = 0
	w.size = 0
}

// At returns the i-th vector in arrival order (0 is the oldest).
func (w *Window) At(i int) []float64 {
	if i < 0 || i >= w.size {
		panic(fmt.Sprintf("l3window: index %d out of range [0,%d)", i, w.size))
	}
	return w.buf[(w.head+i)%w.capacity]
}

// Snapshot copies the current contents, oldest first, into an independent
// Len() x Dim() matrix. It returns nil when the window is empty.
func (w *Window) Snapshot() *Snapshot {
	if w.size == 0 {
		return nil
	}
	data := make([]float64, 0, w.size*w.dim)
	for i := 0; i < w.size; i++ {
		data = append(data, w.At(i)...)
	}
	return &Snapshot{m: mat.NewDense(w.size, w.dim, data)}
}

// Snapshot is an immutable copy of a window taken before inference.
type Snapshot struct {
	m *mat.Dense
}

// NewSnapshot wraps rows (each one time step) into a snapshot.
func NewSnapshot(rows [][]float64) (*Snapshot, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("snapshot needs at least one non-empty row")
	}
	dim := len(rows[0])
	data := make([]float64, 0, len(rows)*dim)
	for i, r := range rows {
		if len(r) != dim {
			return nil, fmt.Errorf("row %d has length %d, want %d", i, len(r), dim)
		}
		data = append(data, r...)
	}
	return &Snapshot{m: mat.NewDense(len(rows), dim, data)}, nil
}

// Steps returns the number of time steps.
func (s *Snapshot) Steps() int {
	r, _ := s.m.Dims()
	return r
}

// Dim returns the feature length per step.
func (s *Snapshot) Dim() int {
	_, c := s.m.Dims()
	return c
}

// Step returns a copy of time step t.
func (s *Snapshot) Step(t int) []float64 {
	return mat.Row(nil, t, s.m)
}

// Matrix exposes the snapshot as a read-only matrix.
func (s *Snapshot) Matrix() mat.Matrix { return s.m }
