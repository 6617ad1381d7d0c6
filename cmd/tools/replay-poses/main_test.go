package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/physio.track/internal/pose/l1landmarks"
	"github.com/banshee-data/physio.track/internal/pose/pipeline"
)

func TestReplay_FeedsEveryFrame(t *testing.T) {
	sim := pipeline.NewSimulated(pipeline.SimulatedConfig{Seed: 1})
	frames := make([]l1landmarks.PoseFrame, 5)
	for i := range frames {
		frames[i] = l1landmarks.PoseFrame{TimestampMs: int64(i) * 10}
	}

	n := replay(context.Background(), sim, frames, 0)
	assert.Equal(t, 5, n)
	assert.Equal(t, uint64(5), sim.GetMetrics().FramesReceived)
}

func TestReplay_PacedAndCancellable(t *testing.T) {
	sim := pipeline.NewSimulated(pipeline.SimulatedConfig{Seed: 1})
	frames := []l1landmarks.PoseFrame{{TimestampMs: 0}, {TimestampMs: 20}, {TimestampMs: 60_000}}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	n := replay(ctx, sim, frames, 1)

	assert.Equal(t, 2, n, "the minute-long gap is cut short by cancellation")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
