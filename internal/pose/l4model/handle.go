package l4model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/physio.track/internal/pose/l3window"
	"github.com/banshee-data/physio.track/internal/timeutil"
	"github.com/banshee-data/physio.track/internal/version"
)

// HandleConfig describes the process-wide model for one key.
type HandleConfig struct {
	Key          string
	Architecture Architecture
	// Store persists the model. Nil keeps the model in memory only.
	Store Store
	// Seed initializes fresh networks.
	Seed  uint64
	Clock timeutil.Clock
}

// Info is a point-in-time description of a Handle.
type Info struct {
	Key             string       `json:"model_key"`
	Architecture    Architecture `json:"architecture"`
	Ready           bool         `json:"ready"`
	Training        bool         `json:"training"`
	Fresh           bool         `json:"fresh"`
	ParamCount      int          `json:"param_count"`
	ProducerVersion string       `json:"producer_version,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Handle owns the shared Network for one model key. Inference takes shared
// access and never waits: while a training run holds the model, Classify
// returns ErrTrainingInProgress and the caller drops the frame. Training
// takes exclusive access.
type Handle struct {
	key   string
	arch  Architecture
	store Store
	seed  uint64
	clock timeutil.Clock

	mu  sync.RWMutex // guards net
	net *Network

	training atomic.Bool
	ready    atomic.Bool

	initOnce sync.Once
	initErr  error

	metaMu   sync.Mutex
	fresh    bool
	producer string
	updated  time.Time

	refs int // guarded by registryMu
}

// NewHandle returns an uninitialized handle that is not registered
// process-wide. Most callers want Acquire.
func NewHandle(cfg HandleConfig) (*Handle, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("model key is required")
	}
	if err := cfg.Architecture.Validate(); err != nil {
		return nil, fmt.Errorf("model %q: %w", cfg.Key, err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Handle{key: cfg.Key, arch: cfg.Architecture, store: cfg.Store, seed: cfg.Seed, clock: clock}, nil
}

// Key returns the model key.
func (h *Handle) Key() string { return h.key }

// Architecture returns the configured architecture.
func (h *Handle) Architecture() Architecture { return h.arch }

// IsTraining reports whether a training run currently holds the model.
func (h *Handle) IsTraining() bool { return h.training.Load() }

// Ready reports whether Initialize has installed a network.
func (h *Handle) Ready() bool { return h.ready.Load() }

// Initialize loads the persisted model or constructs a fresh one. It runs at
// most once; later calls return the first result. When no blob exists the
// fresh model is persisted immediately. When the blob is unreadable a fresh
// model is installed anyway and a *ModelInitError is returned; the handle is
// still ready.
func (h *Handle) Initialize(ctx context.Context) error {
	h.initOnce.Do(func() {
		h.initErr = h.load(ctx)
	})
	return h.initErr
}

func (h *Handle) load(ctx context.Context) error {
	if h.store == nil {
		net, err := NewNetwork(h.arch, h.seed)
		if err != nil {
			return err
		}
		h.install(net, true, "")
		diagf("model %q: no store configured, using fresh in-memory model", h.key)
		return nil
	}

	blob, err := h.store.LoadModel(ctx, h.key)
	if err == nil {
		net, derr := DecodeWeights(h.arch, blob.Weights)
		if derr == nil {
			h.install(net, false, blob.ProducerVersion)
			h.metaMu.Lock()
			h.updated = blob.UpdatedAt
			h.metaMu.Unlock()
			diagf("model %q: loaded %d params (producer %s)", h.key, net.ParamCount(), blob.ProducerVersion)
			return nil
		}
		err = derr
	}

	net, nerr := NewNetwork(h.arch, h.seed)
	if nerr != nil {
		return nerr
	}
	if errors.Is(err, ErrBlobNotFound) {
		h.install(net, true, "")
		if serr := h.persist(ctx, net); serr != nil {
			opsf("model %q: failed to persist fresh model: %v", h.key, serr)
		} else {
			diagf("model %q: created and persisted fresh model", h.key)
		}
		return nil
	}

	h.install(net, true, "")
	opsf("model %q: persisted weights unusable, falling back to fresh model: %v", h.key, err)
	return &ModelInitError{Key: h.key, Err: err}
}

func (h *Handle) install(net *Network, fresh bool, producer string) {
	h.mu.Lock()
	h.net = net
	h.mu.Unlock()
	h.metaMu.Lock()
	h.fresh = fresh
	h.producer = producer
	h.updated = h.clock.Now()
	h.metaMu.Unlock()
	h.ready.Store(true)
}

func (h *Handle) persist(ctx context.Context, net *Network) error {
	if h.store == nil {
		return nil
	}
	weights, err := EncodeWeights(net)
	if err != nil {
		return err
	}
	now := h.clock.Now()
	return h.store.SaveModel(ctx, &Blob{
		Key:             h.key,
		Architecture:    h.arch,
		Weights:         weights,
		ProducerVersion: version.String(),
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// Classify runs inference on snap with shared access to the model.
func (h *Handle) Classify(ctx context.Context, snap *l3window.Snapshot) (Classification, error) {
	if !h.ready.Load() {
		return Classification{}, &InferenceError{Op: "classify", Err: ErrModelUnavailable}
	}
	if h.training.Load() || !h.mu.TryRLock() {
		return Classification{}, &InferenceError{Op: "classify", Err: ErrTrainingInProgress}
	}
	defer h.mu.RUnlock()
	if h.net == nil {
		return Classification{}, &InferenceError{Op: "classify", Err: ErrModelUnavailable}
	}
	if err := ctx.Err(); err != nil {
		return Classification{}, &InferenceError{Op: "classify", Err: err}
	}

	start := h.clock.Now()
	c, err := h.net.Predict(snap)
	if err != nil {
		return Classification{}, err
	}
	tracef("classified type=%s conf=%.3f phase=%s quality=%.3f in %v",
		c.ExerciseType, c.TypeConfidence, c.RepPhase, c.FormQuality, h.clock.Since(start))
	return c, nil
}

// Train fits a copy of the current network with exclusive access, persists
// it, and only then swaps it in. On any failure the live and persisted models
// are left untouched. A second concurrent call fails with
// ErrTrainingInProgress.
func (h *Handle) Train(ctx context.Context, samples []Sample, opts FitOptions) (History, error) {
	if !h.ready.Load() {
		return nil, ErrModelUnavailable
	}
	if !h.training.CompareAndSwap(false, true) {
		return nil, ErrTrainingInProgress
	}
	defer h.training.Store(false)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.net == nil {
		return nil, ErrModelUnavailable
	}

	candidate := h.net.Clone()
	diagf("model %q: training on %d samples for %d epochs", h.key, len(samples), opts.Epochs)
	history, err := candidate.Fit(ctx, samples, opts)
	if err != nil {
		opsf("model %q: training failed, keeping previous model: %v", h.key, err)
		return history, err
	}
	if err := h.persist(ctx, candidate); err != nil {
		opsf("model %q: failed to persist trained model, keeping previous model: %v", h.key, err)
		return history, fmt.Errorf("persist trained model: %w", err)
	}
	h.net = candidate
	h.metaMu.Lock()
	h.fresh = false
	h.producer = version.String()
	h.updated = h.clock.Now()
	h.metaMu.Unlock()
	diagf("model %q: training complete, final loss %.4f", h.key, history.Final().Loss)
	return history, nil
}

// Info describes the handle without waiting on a training run.
func (h *Handle) Info() Info {
	h.metaMu.Lock()
	defer h.metaMu.Unlock()
	info := Info{
		Key:             h.key,
		Architecture:    h.arch,
		Ready:           h.ready.Load(),
		Training:        h.training.Load(),
		Fresh:           h.fresh,
		ProducerVersion: h.producer,
		UpdatedAt:       h.updated,
	}
	if info.Ready {
		info.ParamCount = zeroNetwork(h.arch).ParamCount()
	}
	return info
}

// close drops the network. Subsequent calls fail with ErrModelUnavailable.
func (h *Handle) close() {
	h.ready.Store(false)
	h.mu.Lock()
	h.net = nil
	h.mu.Unlock()
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]*Handle)
)

// Acquire returns the process-wide handle for cfg.Key, creating it on first
// use. Each Acquire must be paired with Release. Acquiring an existing key
// with a different architecture is an error.
func Acquire(cfg HandleConfig) (*Handle, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if h, ok := registry[cfg.Key]; ok {
		if h.arch != cfg.Architecture {
			return nil, fmt.Errorf("model %q already registered with %w", cfg.Key, ErrArchitectureMismatch)
		}
		h.refs++
		return h, nil
	}
	h, err := NewHandle(cfg)
	if err != nil {
		return nil, err
	}
	h.refs = 1
	registry[cfg.Key] = h
	return h, nil
}

// Lookup returns the registered handle for key, if any.
func Lookup(key string) (*Handle, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	h, ok := registry[key]
	return h, ok
}

// Release drops one reference. The last release unregisters the handle and
// tears the model down.
func (h *Handle) Release() {
	registryMu.Lock()
	h.refs--
	last := h.refs <= 0
	if last && registry[h.key] == h {
		delete(registry, h.key)
	}
	registryMu.Unlock()
	if last {
		h.close()
		diagf("model %q: released", h.key)
	}
}
