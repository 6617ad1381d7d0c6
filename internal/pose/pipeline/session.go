package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/physio.track/internal/config"
	"github.com/banshee-data/physio.track/internal/metrics"
	"github.com/banshee-data/physio.track/internal/pose/l1landmarks"
	"github.com/banshee-data/physio.track/internal/pose/l2features"
	"github.com/banshee-data/physio.track/internal/pose/l3window"
	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/pose/l5reps"
	"github.com/banshee-data/physio.track/internal/pose/l6form"
	"github.com/banshee-data/physio.track/internal/pose/training"
	"github.com/banshee-data/physio.track/internal/timeutil"
)

// BackendBiLSTM names the live backend in SessionMetrics.
const BackendBiLSTM = config.BackendBiLSTM

// Model is what a Session needs from the classifier. *l4model.Handle
// implements it.
type Model interface {
	l4model.Classifier
	Initialize(ctx context.Context) error
}

// trainingReporter is implemented by models that expose their training flag.
type trainingReporter interface {
	IsTraining() bool
}

// SessionConfig wires a Session.
type SessionConfig struct {
	Model   Model
	Trainer *training.Trainer

	Normalizer          *l2features.Normalizer
	SequenceLength      int
	FormHistoryCapacity int
	FeedbackInterval    time.Duration
	PollInterval        time.Duration
	// Async runs each classification on its own goroutine. At most one is
	// in flight; full windows arriving meanwhile are dropped.
	Async bool

	Clock   timeutil.Clock
	Metrics *metrics.Manager
}

// SessionConfigFromTuning derives a SessionConfig from the tuning config.
func SessionConfigFromTuning(cfg *config.TuningConfig, deps Deps) SessionConfig {
	return SessionConfig{
		Model:               deps.Model,
		Trainer:             deps.Trainer,
		Normalizer:          l2features.NewNormalizer(cfg.GetLandmarkCount(), cfg.GetIncludeZ()),
		SequenceLength:      cfg.GetSequenceLength(),
		FormHistoryCapacity: cfg.GetFormHistoryCapacity(),
		FeedbackInterval:    cfg.GetFeedbackInterval(),
		PollInterval:        cfg.GetMetricsPollInterval(),
		Async:               cfg.GetAsyncInference(),
		Clock:               deps.Clock,
		Metrics:             deps.Metrics,
	}
}

// Session is the live analyzer: frames are normalized into a sliding window
// and every full window is classified to drive rep counting and form scoring.
//
// A generation counter guards against stale results. ResetSession and Stop
// bump it, and a classification that resolves under an older generation is
// discarded.
type Session struct {
	model      Model
	trainer    *training.Trainer
	normalizer *l2features.Normalizer
	clock      timeutil.Clock
	metrics    *metrics.Manager
	async      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	poller *Poller

	mu              sync.Mutex
	active          bool
	generation      uint64
	sessionID       string
	inFlight        bool
	window          *l3window.Window
	tracker         *l5reps.Tracker
	form            *l6form.Aggregator
	policy          *l6form.FeedbackPolicy
	callbacks       Callbacks
	sinks           []func(SessionMetrics)
	exerciseType    string
	typeConfidence  float64
	lastFeedback    *l6form.Feedback
	classifications uint64
	framesReceived  uint64
	droppedFrames   uint64
	updatedAt       time.Time
}

// NewSession returns an active Session. The metrics poller runs only
// between Start and Stop.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = l2features.NewNormalizer(len(l1landmarks.BlazePoseNames), true)
	}
	if cfg.SequenceLength <= 0 {
		cfg.SequenceLength = l4model.DefaultArchitecture().SequenceLength
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		model:      cfg.Model,
		trainer:    cfg.Trainer,
		normalizer: cfg.Normalizer,
		clock:      cfg.Clock,
		metrics:    cfg.Metrics,
		async:      cfg.Async,
		ctx:        ctx,
		cancel:     cancel,
		active:     true,
		sessionID:  uuid.NewString(),
		window:     l3window.New(cfg.SequenceLength, cfg.Normalizer.Dim()),
		tracker:    l5reps.NewTracker(),
		form:       l6form.NewAggregator(cfg.FormHistoryCapacity),
		policy:     l6form.NewFeedbackPolicy(cfg.FeedbackInterval, cfg.Clock),
	}
	s.poller = NewPoller(cfg.Clock, cfg.PollInterval, s.GetMetrics, s.deliver)
	return s
}

// Initialize initializes the model. A *l4model.ModelInitError leaves the
// session usable with a freshly initialized model.
func (s *Session) Initialize(ctx context.Context) error {
	err := s.model.Initialize(ctx)
	var initErr *l4model.ModelInitError
	if errors.As(err, &initErr) {
		opsf("session %s: %v", s.currentID(), err)
	}
	return err
}

// SetCallbacks installs the host callbacks.
func (s *Session) SetCallbacks(cb Callbacks) {
	s.mu.Lock()
	s.callbacks = cb
	s.mu.Unlock()
}

// WatchMetrics registers a sink for polled snapshots.
func (s *Session) WatchMetrics(sink func(SessionMetrics)) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

func (s *Session) deliver(m SessionMetrics) {
	s.mu.Lock()
	sinks := slices.Clone(s.sinks)
	s.mu.Unlock()
	for _, sink := range sinks {
		sink(m)
	}
}

// OnPoseFrame normalizes and windows frame, and classifies the window once
// it is full. Failures drop the frame and are counted, never returned.
func (s *Session) OnPoseFrame(frame l1landmarks.PoseFrame) {
	s.metrics.FrameReceived()

	s.mu.Lock()
	if !s.active {
		s.droppedFrames++
		s.mu.Unlock()
		s.metrics.FrameDropped(metrics.DropStopped)
		return
	}
	s.framesReceived++

	vec, err := s.normalizer.Normalize(frame)
	if err == nil {
		err = s.window.Push(vec)
	}
	if err != nil {
		s.droppedFrames++
		s.mu.Unlock()
		tracef("frame %d dropped: %v", frame.TimestampMs, err)
		s.metrics.FrameDropped(metrics.DropNormalization)
		return
	}
	if !s.window.IsFull() {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.droppedFrames++
		s.mu.Unlock()
		s.metrics.FrameDropped(metrics.DropBusy)
		return
	}

	snap := s.window.Snapshot()
	gen := s.generation
	s.inFlight = true
	s.mu.Unlock()

	if !s.async {
		s.classify(snap, gen)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.classify(snap, gen)
	}()
}

// classify runs inference on snap outside the session lock and applies the
// result only if the session generation is still gen.
func (s *Session) classify(snap *l3window.Snapshot, gen uint64) {
	start := s.clock.Now()
	c, err := s.model.Classify(s.ctx, snap)
	took := s.clock.Since(start)

	s.mu.Lock()
	s.inFlight = false
	if gen != s.generation {
		s.mu.Unlock()
		tracef("discarding result from generation %d (err=%v)", gen, err)
		s.metrics.FrameDropped(metrics.DropStale)
		return
	}
	if err != nil {
		s.droppedFrames++
		s.mu.Unlock()
		reason := metrics.DropInference
		if errors.Is(err, l4model.ErrTrainingInProgress) {
			reason = metrics.DropTraining
			tracef("inference skipped: %v", err)
		} else {
			opsf("inference failed: %v", err)
		}
		s.metrics.FrameDropped(reason)
		return
	}

	tr := s.tracker.Observe(c.RepPhase)
	s.form.Add(c.FormScore())
	avg := s.form.Average()
	s.exerciseType = c.ExerciseType
	s.typeConfidence = c.TypeConfidence
	s.classifications++
	s.updatedAt = s.clock.Now()
	fb, emit := s.policy.Evaluate(avg, s.form.Len())
	if emit {
		s.lastFeedback = &fb
	}
	cb := s.callbacks
	s.mu.Unlock()

	tracef("classified %s (%.2f) phase=%s form=%.1f in %s", c.ExerciseType, c.TypeConfidence, c.RepPhase, c.FormScore(), took)
	s.metrics.Classified(c.ExerciseType, took)
	s.metrics.FormScore(avg)
	if tr.Rep {
		s.metrics.RepCompleted(tr.RepCount)
		if cb.OnRepCompleted != nil {
			cb.OnRepCompleted(tr.RepCount)
		}
	}
	if emit {
		s.metrics.FeedbackEmitted(string(fb.Severity))
		if cb.OnFormFeedback != nil {
			cb.OnFormFeedback(fb.Message, fb.Severity)
		}
	}
}

// GetMetrics returns a snapshot of the session.
func (s *Session) GetMetrics() SessionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := SessionMetrics{
		Backend:          BackendBiLSTM,
		SessionID:        s.sessionID,
		Generation:       s.generation,
		Active:           s.active,
		RepCount:         s.tracker.RepCount(),
		CurrentPhase:     s.tracker.Phase(),
		ExerciseType:     s.exerciseType,
		TypeConfidence:   s.typeConfidence,
		LastFormScore:    s.form.Current(),
		AverageFormScore: s.form.Average(),
		FormHistory:      s.form.History(),
		Classifications:  s.classifications,
		FramesReceived:   s.framesReceived,
		DroppedFrames:    s.droppedFrames,
		WindowLen:        s.window.Len(),
		UpdatedAt:        s.updatedAt,
	}
	if s.lastFeedback != nil {
		fb := *s.lastFeedback
		m.LastFeedback = &fb
	}
	if tr, ok := s.model.(trainingReporter); ok {
		m.Training = tr.IsTraining()
	}
	return m
}

// ResetSession clears all session state and starts a new generation. The
// model is untouched.
func (s *Session) ResetSession() {
	s.mu.Lock()
	s.resetLocked()
	id := s.sessionID
	s.mu.Unlock()
	s.metrics.SessionReset()
	diagf("session reset, new session %s", id)
}

func (s *Session) resetLocked() {
	s.generation++
	s.sessionID = uuid.NewString()
	s.window.Reset()
	s.tracker.Reset()
	s.form.Reset()
	s.policy.Reset()
	s.exerciseType = ""
	s.typeConfidence = 0
	s.lastFeedback = nil
	s.classifications = 0
	s.framesReceived = 0
	s.droppedFrames = 0
	s.updatedAt = time.Time{}
}

// Start resumes frame intake with an empty window and starts the metrics
// poller.
func (s *Session) Start() {
	s.mu.Lock()
	if !s.active {
		s.active = true
		s.window.Reset()
	}
	s.mu.Unlock()
	s.poller.Start()
	diagf("session %s started", s.currentID())
}

// Stop halts frame intake and the poller before returning. A classification
// already dispatched is allowed to finish but its result is discarded.
func (s *Session) Stop() {
	s.mu.Lock()
	s.active = false
	s.generation++
	s.mu.Unlock()
	s.poller.Stop()
	diagf("session %s stopped", s.currentID())
}

// Train fits the model through the configured trainer. Frames keep flowing
// while training runs; their inference is skipped.
func (s *Session) Train(ctx context.Context, seqs []training.LabeledSequence) (*training.Summary, error) {
	if s.trainer == nil {
		return nil, ErrTrainingUnavailable
	}
	sum, err := s.trainer.Train(ctx, seqs)
	if err != nil {
		opsf("training failed: %v", err)
		return nil, err
	}
	diagf("training run %s finished: %d samples, loss %.4f", sum.RunID, sum.Samples, sum.FinalLoss)
	return sum, nil
}

// Close stops the session, cancels in-flight inference and waits for it.
func (s *Session) Close() error {
	s.Stop()
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Session) currentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}
