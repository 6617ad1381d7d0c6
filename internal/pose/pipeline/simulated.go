package pipeline

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/physio.track/internal/config"
	"github.com/banshee-data/physio.track/internal/metrics"
	"github.com/banshee-data/physio.track/internal/pose/l1landmarks"
	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/pose/l6form"
	"github.com/banshee-data/physio.track/internal/pose/training"
	"github.com/banshee-data/physio.track/internal/timeutil"
)

// Simulated step parameters: each tick completes a rep with probability
// simRepProbability and always records a form score drawn uniformly from
// [simMinScore, simMinScore+simScoreSpan].
const (
	simRepProbability = 0.3
	simMinScore       = 60
	simScoreSpan      = 35
)

// SimulatedConfig configures a Simulated analyzer.
type SimulatedConfig struct {
	Interval            time.Duration
	PollInterval        time.Duration
	FeedbackInterval    time.Duration
	FormHistoryCapacity int
	Seed                uint64
	Clock               timeutil.Clock
	Metrics             *metrics.Manager
}

// Simulated produces plausible metrics without a model. Frames are counted
// and otherwise ignored; reps and scores come from a seeded random walk
// driven by the clock.
type Simulated struct {
	interval time.Duration
	clock    timeutil.Clock
	metrics  *metrics.Manager
	poller   *Poller

	mu              sync.Mutex
	rng             *rand.Rand
	active          bool
	generation      uint64
	sessionID       string
	repCount        int
	phase           l4model.Phase
	form            *l6form.Aggregator
	policy          *l6form.FeedbackPolicy
	lastFeedback    *l6form.Feedback
	callbacks       Callbacks
	sinks           []func(SessionMetrics)
	framesReceived  uint64
	classifications uint64
	updatedAt       time.Time

	stop chan struct{}
	done chan struct{}
}

// NewSimulated returns a stopped Simulated analyzer.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	s := &Simulated{
		interval:  cfg.Interval,
		clock:     cfg.Clock,
		metrics:   cfg.Metrics,
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		sessionID: uuid.NewString(),
		phase:     l4model.PhaseNeutral,
		form:      l6form.NewAggregator(cfg.FormHistoryCapacity),
		policy:    l6form.NewFeedbackPolicy(cfg.FeedbackInterval, cfg.Clock),
	}
	s.poller = NewPoller(cfg.Clock, cfg.PollInterval, s.GetMetrics, s.deliver)
	return s
}

// Initialize is a no-op; there is no model to load.
func (s *Simulated) Initialize(context.Context) error {
	diagf("simulated analyzer ready (interval %s)", s.interval)
	return nil
}

// SetCallbacks installs the host callbacks.
func (s *Simulated) SetCallbacks(cb Callbacks) {
	s.mu.Lock()
	s.callbacks = cb
	s.mu.Unlock()
}

// WatchMetrics registers a sink for polled snapshots.
func (s *Simulated) WatchMetrics(sink func(SessionMetrics)) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

func (s *Simulated) deliver(m SessionMetrics) {
	s.mu.Lock()
	sinks := slices.Clone(s.sinks)
	s.mu.Unlock()
	for _, sink := range sinks {
		sink(m)
	}
}

// OnPoseFrame counts the frame.
func (s *Simulated) OnPoseFrame(l1landmarks.PoseFrame) {
	s.metrics.FrameReceived()
	s.mu.Lock()
	s.framesReceived++
	s.mu.Unlock()
}

// Step advances the simulation by one tick.
func (s *Simulated) Step() {
	s.mu.Lock()
	rep := s.rng.Float64() < simRepProbability
	if rep {
		s.repCount++
		if s.phase == l4model.PhaseUp {
			s.phase = l4model.PhaseDown
		} else {
			s.phase = l4model.PhaseUp
		}
	}
	score := simMinScore + s.rng.Float64()*simScoreSpan
	s.form.Add(score)
	avg := s.form.Average()
	s.classifications++
	s.updatedAt = s.clock.Now()
	fb, emit := s.policy.Evaluate(avg, s.form.Len())
	if emit {
		s.lastFeedback = &fb
	}
	reps := s.repCount
	cb := s.callbacks
	s.mu.Unlock()

	s.metrics.FormScore(avg)
	if rep {
		s.metrics.RepCompleted(reps)
		if cb.OnRepCompleted != nil {
			cb.OnRepCompleted(reps)
		}
	}
	if emit {
		s.metrics.FeedbackEmitted(string(fb.Severity))
		if cb.OnFormFeedback != nil {
			cb.OnFormFeedback(fb.Message, fb.Severity)
		}
	}
}

// GetMetrics returns a snapshot of the simulated session.
func (s *Simulated) GetMetrics() SessionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := SessionMetrics{
		Backend:          config.BackendSimulated,
		SessionID:        s.sessionID,
		Generation:       s.generation,
		Active:           s.active,
		RepCount:         s.repCount,
		CurrentPhase:     s.phase,
		LastFormScore:    s.form.Current(),
		AverageFormScore: s.form.Average(),
		FormHistory:      s.form.History(),
		Classifications:  s.classifications,
		FramesReceived:   s.framesReceived,
		UpdatedAt:        s.updatedAt,
	}
	if s.lastFeedback != nil {
		fb := *s.lastFeedback
		m.LastFeedback = &fb
	}
	return m
}

// ResetSession clears the simulated counters.
func (s *Simulated) ResetSession() {
	s.mu.Lock()
	s.generation++
	s.sessionID = uuid.NewString()
	s.repCount = 0
	s.phase = l4model.PhaseNeutral
	s.form.Reset()
	s.policy.Reset()
	s.lastFeedback = nil
	s.framesReceived = 0
	s.classifications = 0
	s.updatedAt = time.Time{}
	s.mu.Unlock()
	s.metrics.SessionReset()
}

// Start launches the simulation loop and the metrics poller.
func (s *Simulated) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)
	go s.loop(ticker, s.stop, s.done)
	s.mu.Unlock()
	s.poller.Start()
}

func (s *Simulated) loop(ticker timeutil.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			s.Step()
		}
	}
}

// Stop halts the simulation loop and the poller before returning.
func (s *Simulated) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.generation++
	close(s.stop)
	done := s.done
	s.mu.Unlock()
	<-done
	s.poller.Stop()
}

// Train fits nothing; it reports the size of the input.
func (s *Simulated) Train(_ context.Context, seqs []training.LabeledSequence) (*training.Summary, error) {
	if len(seqs) == 0 {
		return nil, &training.TrainingDataError{Sequence: -1, Reason: "no labeled sequences", Err: training.ErrNoSequences}
	}
	frames := 0
	perLabel := make(map[string]int)
	for _, seq := range seqs {
		frames += len(seq.Frames)
		perLabel[seq.ExerciseType]++
	}
	diagf("simulated training over %d sequences (%d frames)", len(seqs), frames)
	return &training.Summary{
		RunID:     uuid.NewString(),
		ModelKey:  "simulated",
		Sequences: len(seqs),
		PerLabel:  perLabel,
	}, nil
}

// Close stops the simulation.
func (s *Simulated) Close() error {
	s.Stop()
	return nil
}
