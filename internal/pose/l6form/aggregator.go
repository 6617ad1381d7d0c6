package l6form

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultCapacity is the number of scores retained by NewAggregator(0).
const DefaultCapacity = 100

// Aggregator keeps the most recent scores (0-100) in a ring buffer.
// It is not safe for concurrent use.
type Aggregator struct {
	buf     []float64
	head    int
	size    int
	current float64
}

// NewAggregator returns an empty aggregator retaining capacity scores.
func NewAggregator(capacity int) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Aggregator{buf: make([]float64, capacity)}
}

// Add records a score, clamped to [0,100]. NaN is ignored.
func (a *Aggregator) Add(score float64) {
	if math.IsNaN(score) {
		return
	}
	score = math.Max(0, math.Min(100, score))
	a.current = score
	if a.size < len(a.buf) {
		a.buf[(a.head+a.size)%len(a.buf)] = score
		a.size++
		return
	}
	a.buf[a.head] = score
	a.head = (a.head + 1) % len(a.buf)
}

// Current returns the latest score, or 0 when none has been recorded.
func (a *Aggregator) Current() float64 { return a.current }

// Average returns the mean of the retained history, or 0 when empty.
func (a *Aggregator) Average() float64 {
	if a.size == 0 {
		return 0
	}
	return stat.Mean(a.History(), nil)
}

// Len returns the number of retained scores.
func (a *Aggregator) Len() int { return a.size }

// Capacity returns the maximum number of retained scores.
func (a *Aggregator) Capacity() int { return len(a.buf) }

// History returns a copy of the retained scores, oldest first.
func (a *Aggregator) History() []float64 {
	out := make([]float64, a.size)
	for i := range out {
		out[i] = a.buf[(a.head+i)%len(a.buf)]
	}
	return out
}

// Reset discards every score.
func (a *Aggregator) Reset() {
	a.head, a.size, a.current = 0, 0, 0
}
