package pipeline

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/physio.track/internal/timeutil"
)

func TestPoller_DeliversOnTick(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	var reads atomic.Int32
	out := make(chan SessionMetrics, 8)
	p := NewPoller(clock, 100*time.Millisecond,
		func() SessionMetrics { return SessionMetrics{RepCount: int(reads.Add(1))} },
		func(m SessionMetrics) { out <- m })

	p.Start()
	p.Start() // no-op
	require.True(t, p.Running())

	clock.Advance(100 * time.Millisecond)
	select {
	case m := <-out:
		assert.Equal(t, 1, m.RepCount)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}

	p.Stop()
	assert.False(t, p.Running())
	clock.Advance(time.Second)
	select {
	case <-out:
		t.Fatal("delivered after Stop")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPoller_StopDiscardsInFlightRead(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	reading := make(chan struct{})
	release := make(chan struct{})
	var delivered atomic.Bool
	p := NewPoller(clock, 50*time.Millisecond,
		func() SessionMetrics {
			close(reading)
			<-release
			return SessionMetrics{}
		},
		func(SessionMetrics) { delivered.Store(true) })

	p.Start()
	clock.Advance(50 * time.Millisecond)
	<-reading

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	// Stop has closed the stop channel once Running reports false
	require.Eventually(t, func() bool { return !p.Running() }, time.Second, time.Millisecond)
	close(release)
	<-stopped

	assert.False(t, delivered.Load())
}

func TestPoller_StopWithoutStart(t *testing.T) {
	p := NewPoller(nil, 0, func() SessionMetrics { return SessionMetrics{} }, nil)
	assert.NotPanics(t, p.Stop)
	assert.Equal(t, DefaultPollInterval, p.interval)
}
