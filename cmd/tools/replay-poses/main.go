// Command replay-poses feeds recorded pose frames through an analyzer and
// reports the resulting session metrics.
//
// Usage:
//
//	go run ./cmd/tools/replay-poses -frames session.jsonl [flags]
//
// Flags:
//
//	-frames     JSONL file with one PoseFrame per line (required)
//	-db         SQLite database holding the model (empty uses a fresh model)
//	-config     Tuning config JSON (default: built-in defaults)
//	-backend    Override the analyzer backend
//	-speed      Playback speed relative to frame timestamps (0 = as fast as possible)
//	-telemetry  Serve the telemetry stream on this address while replaying
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/physio.track/internal/config"
	"github.com/banshee-data/physio.track/internal/pose/l1landmarks"
	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/pose/l6form"
	"github.com/banshee-data/physio.track/internal/pose/pipeline"
	"github.com/banshee-data/physio.track/internal/pose/storage/sqlite"
	"github.com/banshee-data/physio.track/internal/pose/telemetry"
)

func main() {
	framesPath := flag.String("frames", "", "JSONL file with one PoseFrame per line")
	dbPath := flag.String("db", "", "SQLite database holding the model (empty uses a fresh model)")
	configPath := flag.String("config", "", "Tuning config JSON (empty uses built-in defaults)")
	backend := flag.String("backend", "", "Override the analyzer backend: bilstm or simulated")
	speed := flag.Float64("speed", 0, "Playback speed relative to frame timestamps (0 = as fast as possible)")
	telemetryAddr := flag.String("telemetry", "", "Serve the telemetry stream on this address while replaying")
	flag.Parse()

	if *framesPath == "" {
		log.Fatal("-frames is required")
	}

	cfg := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *backend != "" {
		cfg.Backend = backend
	}
	// replay is deterministic only with inline inference
	async := false
	cfg.AsyncInference = &async

	f, err := os.Open(*framesPath)
	if err != nil {
		log.Fatalf("failed to open frames: %v", err)
	}
	frames, err := l1landmarks.ReadFramesJSONL(f)
	f.Close()
	if err != nil {
		log.Fatalf("failed to read frames: %v", err)
	}
	log.Printf("loaded %d frames from %s", len(frames), *framesPath)

	pipeline.SetLogWriters(os.Stderr, os.Stderr, nil)

	deps := pipeline.Deps{}
	if cfg.GetBackend() == config.BackendBiLSTM {
		var store l4model.Store = l4model.NewMemoryStore()
		if *dbPath != "" {
			db, err := sqlite.Open(*dbPath)
			if err != nil {
				log.Fatalf("failed to open database: %v", err)
			}
			defer db.Close()
			store = sqlite.NewModelStore(db.DB)
		}
		h, err := l4model.Acquire(l4model.HandleConfig{
			Key:          cfg.GetModelKey(),
			Architecture: l4model.ArchitectureFromConfig(cfg),
			Store:        store,
			Seed:         cfg.GetSeed(),
		})
		if err != nil {
			log.Fatalf("failed to create model: %v", err)
		}
		defer h.Release()
		deps.Model = h
	}

	analyzer, err := pipeline.NewAnalyzer(cfg, deps)
	if err != nil {
		log.Fatalf("failed to create analyzer: %v", err)
	}
	defer analyzer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var initErr *l4model.ModelInitError
	if err := analyzer.Initialize(ctx); err != nil && !errors.As(err, &initErr) {
		log.Fatalf("failed to initialize analyzer: %v", err)
	} else if err != nil {
		log.Printf("warning: %v", err)
	}

	analyzer.SetCallbacks(pipeline.Callbacks{
		OnRepCompleted: func(n int) { log.Printf("rep %d", n) },
		OnFormFeedback: func(msg string, sev l6form.Severity) { log.Printf("feedback [%s]: %s", sev, msg) },
	})

	if *telemetryAddr != "" {
		pcfg := telemetry.DefaultConfig()
		pcfg.ListenAddr = *telemetryAddr
		pub := telemetry.NewPublisher(pcfg, nil)
		if err := pub.Start(); err != nil {
			log.Fatalf("failed to start telemetry: %v", err)
		}
		defer pub.Stop()
		analyzer.WatchMetrics(pub.Publish)
	}
	analyzer.Start()

	start := time.Now()
	replayed := replay(ctx, analyzer, frames, *speed)
	analyzer.Stop()
	log.Printf("replayed %d/%d frames in %s", replayed, len(frames), time.Since(start).Round(time.Millisecond))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(analyzer.GetMetrics()); err != nil {
		log.Fatalf("failed to write metrics: %v", err)
	}
}

// replay feeds frames to the analyzer in order. With speed > 0 the gaps between frame
// timestamps are reproduced, scaled by 1/speed. It returns the number of
// frames fed before ctx was cancelled.
func replay(ctx context.Context, a pipeline.Analyzer, frames []l1landmarks.PoseFrame, speed float64) int {
	for i, f := range frames {
		if speed > 0 && i > 0 {
			gap := time.Duration(float64(f.TimestampMs-frames[i-1].TimestampMs) * float64(time.Millisecond) / speed)
			if gap > 0 {
				select {
				case <-ctx.Done():
					return i
				case <-time.After(gap):
				}
			}
		}
		if ctx.Err() != nil {
			return i
		}
		a.OnPoseFrame(f)
	}
	return len(frames)
}
