package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Backend names accepted by the backend field.
const (
	BackendBiLSTM    = "bilstm"
	BackendSimulated = "simulated"
)

// TuningConfig represents the root configuration for the pose pipeline,
// the sequence classifier and the training pipeline. Every field is optional;
// the Get* accessors supply defaults for anything omitted.
type TuningConfig struct {
	// Analyzer selection
	Backend *string `json:"backend,omitempty"` // "bilstm" or "simulated"

	// Feature / window params
	SequenceLength *int  `json:"sequence_length,omitempty"`
	LandmarkCount  *int  `json:"landmark_count,omitempty"`
	IncludeZ       *bool `json:"include_z,omitempty"`

	// Model architecture
	HiddenUnits1 *int     `json:"hidden_units_1,omitempty"`
	HiddenUnits2 *int     `json:"hidden_units_2,omitempty"`
	DenseUnits   *int     `json:"dense_units,omitempty"`
	DropoutRate  *float64 `json:"dropout_rate,omitempty"`
	ModelKey     *string  `json:"model_key,omitempty"`

	// Session params
	FormHistoryCapacity *int    `json:"form_history_capacity,omitempty"`
	FeedbackInterval    *string `json:"feedback_interval,omitempty"`     // duration string like "2s"
	MetricsPollInterval *string `json:"metrics_poll_interval,omitempty"` // duration string like "100ms"
	AsyncInference      *bool   `json:"async_inference,omitempty"`
	SimulatedInterval   *string `json:"simulated_interval,omitempty"`

	// Training params
	Epochs          *int     `json:"epochs,omitempty"`
	BatchSize       *int     `json:"batch_size,omitempty"`
	LearningRate    *float64 `json:"learning_rate,omitempty"`
	ValidationSplit *float64 `json:"validation_split,omitempty"`
	WindowStride    *int     `json:"window_stride,omitempty"`
	Seed            *uint64  `json:"seed,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a config with every field populated with the
// same values the Get* accessors fall back to.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		Backend:             ptrString(BackendBiLSTM),
		SequenceLength:      ptrInt(30),
		LandmarkCount:       ptrInt(33),
		IncludeZ:            ptrBool(true),
		HiddenUnits1:        ptrInt(64),
		HiddenUnits2:        ptrInt(32),
		DenseUnits:          ptrInt(64),
		DropoutRate:         ptrFloat64(0.3),
		ModelKey:            ptrString("physio-bilstm-model"),
		FormHistoryCapacity: ptrInt(100),
		FeedbackInterval:    ptrString("2s"),
		MetricsPollInterval: ptrString("100ms"),
		AsyncInference:      ptrBool(false),
		SimulatedInterval:   ptrString("2s"),
		Epochs:              ptrInt(50),
		BatchSize:           ptrInt(32),
		LearningRate:        ptrFloat64(0.001),
		ValidationSplit:     ptrFloat64(0.2),
		WindowStride:        ptrInt(1),
		Seed:                ptrUint64(42),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/pose/pipeline/
		"../../../../" + DefaultConfigPath, // from internal/pose/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Backend != nil {
		switch *c.Backend {
		case BackendBiLSTM, BackendSimulated:
		default:
			return fmt.Errorf("backend must be %q or %q, got %q", BackendBiLSTM, BackendSimulated, *c.Backend)
		}
	}

	positive := map[string]*int{
		"sequence_length":       c.SequenceLength,
		"landmark_count":        c.LandmarkCount,
		"hidden_units_1":        c.HiddenUnits1,
		"hidden_units_2":        c.HiddenUnits2,
		"dense_units":           c.DenseUnits,
		"form_history_capacity": c.FormHistoryCapacity,
		"epochs":                c.Epochs,
		"batch_size":            c.BatchSize,
		"window_stride":         c.WindowStride,
	}
	for name, v := range positive {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	if c.DropoutRate != nil && (*c.DropoutRate < 0 || *c.DropoutRate >= 1) {
		return fmt.Errorf("dropout_rate must be in [0, 1), got %f", *c.DropoutRate)
	}
	if c.ValidationSplit != nil && (*c.ValidationSplit < 0 || *c.ValidationSplit >= 1) {
		return fmt.Errorf("validation_split must be in [0, 1), got %f", *c.ValidationSplit)
	}
	if c.LearningRate != nil && *c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %f", *c.LearningRate)
	}
	if c.ModelKey != nil && *c.ModelKey == "" {
		return fmt.Errorf("model_key must not be empty")
	}

	durations := map[string]*string{
		"feedback_interval":     c.FeedbackInterval,
		"metrics_poll_interval": c.MetricsPollInterval,
		"simulated_interval":    c.SimulatedInterval,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, *v)
		}
	}

	return nil
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetBackend returns the analyzer backend or the default.
func (c *TuningConfig) GetBackend() string {
	if c.Backend == nil || *c.Backend == "" {
		return BackendBiLSTM
	}
	return *c.Backend
}

// GetSequenceLength returns the window length L or the default.
func (c *TuningConfig) GetSequenceLength() int {
	if c.SequenceLength == nil {
		return 30
	}
	return *c.SequenceLength
}

// GetLandmarkCount returns the expected landmarks per frame (K) or the default.
func (c *TuningConfig) GetLandmarkCount() int {
	if c.LandmarkCount == nil {
		return 33 // BlazePose full body
	}
	return *c.LandmarkCount
}

// GetIncludeZ reports whether feature vectors carry the z coordinate.
func (c *TuningConfig) GetIncludeZ() bool {
	if c.IncludeZ == nil {
		return true
	}
	return *c.IncludeZ
}

// GetFeatureCount returns the per-frame feature vector length (2K or 3K).
func (c *TuningConfig) GetFeatureCount() int {
	if c.GetIncludeZ() {
		return 3 * c.GetLandmarkCount()
	}
	return 2 * c.GetLandmarkCount()
}

// GetHiddenUnits1 returns the first BiLSTM layer width or the default.
func (c *TuningConfig) GetHiddenUnits1() int {
	if c.HiddenUnits1 == nil {
		return 64
	}
	return *c.HiddenUnits1
}

// GetHiddenUnits2 returns the second BiLSTM layer width or the default.
func (c *TuningConfig) GetHiddenUnits2() int {
	if c.HiddenUnits2 == nil {
		return 32
	}
	return *c.HiddenUnits2
}

// GetDenseUnits returns the shared dense layer width or the default.
func (c *TuningConfig) GetDenseUnits() int {
	if c.DenseUnits == nil {
		return 64
	}
	return *c.DenseUnits
}

// GetDropoutRate returns the training-time dropout rate or the default.
func (c *TuningConfig) GetDropoutRate() float64 {
	if c.DropoutRate == nil {
		return 0.3
	}
	return *c.DropoutRate
}

// GetModelKey returns the fixed store key for the model blob.
func (c *TuningConfig) GetModelKey() string {
	if c.ModelKey == nil || *c.ModelKey == "" {
		return "physio-bilstm-model"
	}
	return *c.ModelKey
}

// GetFormHistoryCapacity returns the rolling form-score buffer size.
func (c *TuningConfig) GetFormHistoryCapacity() int {
	if c.FormHistoryCapacity == nil {
		return 100
	}
	return *c.FormHistoryCapacity
}

// GetFeedbackInterval returns the feedback throttle window.
func (c *TuningConfig) GetFeedbackInterval() time.Duration {
	return getDuration(c.FeedbackInterval, 2*time.Second)
}

// GetMetricsPollInterval returns the host metrics polling period.
func (c *TuningConfig) GetMetricsPollInterval() time.Duration {
	return getDuration(c.MetricsPollInterval, 100*time.Millisecond)
}

// GetAsyncInference reports whether classification runs off the frame path.
func (c *TuningConfig) GetAsyncInference() bool {
	if c.AsyncInference == nil {
		return false
	}
	return *c.AsyncInference
}

// GetSimulatedInterval returns the update period of the simulated analyzer.
func (c *TuningConfig) GetSimulatedInterval() time.Duration {
	return getDuration(c.SimulatedInterval, 2*time.Second)
}

// GetEpochs returns the number of training epochs.
func (c *TuningConfig) GetEpochs() int {
	if c.Epochs == nil {
		return 50
	}
	return *c.Epochs
}

// GetBatchSize returns the training mini-batch size.
func (c *TuningConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return 32
	}
	return *c.BatchSize
}

// GetLearningRate returns the Adam learning rate.
func (c *TuningConfig) GetLearningRate() float64 {
	if c.LearningRate == nil {
		return 0.001
	}
	return *c.LearningRate
}

// GetValidationSplit returns the held-out fraction of training windows.
func (c *TuningConfig) GetValidationSplit() float64 {
	if c.ValidationSplit == nil {
		return 0.2
	}
	return *c.ValidationSplit
}

// GetWindowStride returns the step between training windows cut from one sequence.
func (c *TuningConfig) GetWindowStride() int {
	if c.WindowStride == nil {
		return 1
	}
	return *c.WindowStride
}

// GetSeed returns the seed for weight init, shuffling and dropout.
func (c *TuningConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 42
	}
	return *c.Seed
}
