// Command physiotrack runs the pose telemetry host: it accepts pose frames
// over HTTP, classifies them with the configured analyzer backend, streams
// session metrics over gRPC and exposes Prometheus metrics.
//
// Usage:
//
//	physiotrack [flags]
//
// Flags:
//
//	-listen       HTTP listen address (default: :8080)
//	-grpc-listen  Telemetry gRPC listen address (default: localhost:50061)
//	-db           SQLite database path; empty keeps models in memory
//	-config       Tuning config JSON (default: built-in defaults)
//	-backend      Override the analyzer backend (bilstm or simulated)
//	-log-dir      Directory for rotated ops/diag/trace logs
//	-trace        Enable the per-frame trace stream
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/physio.track/internal/api"
	"github.com/banshee-data/physio.track/internal/config"
	"github.com/banshee-data/physio.track/internal/metrics"
	"github.com/banshee-data/physio.track/internal/monitoring"
	"github.com/banshee-data/physio.track/internal/pose/l2features"
	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/pose/l6form"
	"github.com/banshee-data/physio.track/internal/pose/pipeline"
	"github.com/banshee-data/physio.track/internal/pose/storage/sqlite"
	"github.com/banshee-data/physio.track/internal/pose/telemetry"
	"github.com/banshee-data/physio.track/internal/pose/training"
	"github.com/banshee-data/physio.track/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", "localhost:50061", "Telemetry gRPC listen address (empty disables)")
	dbPath      = flag.String("db", "physiotrack.db", "SQLite database path (empty keeps models in memory)")
	configPath  = flag.String("config", "", "Tuning config JSON (empty uses built-in defaults)")
	backend     = flag.String("backend", "", "Override the analyzer backend: bilstm or simulated")
	logDir      = flag.String("log-dir", "", "Directory for rotated log files")
	logStdout   = flag.Bool("log-stdout", true, "Mirror ops and diag logs to stdout")
	traceLog    = flag.Bool("trace", false, "Enable the per-frame trace log stream")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// app holds the wired components of one process.
type app struct {
	cfg      *config.TuningConfig
	registry *prometheus.Registry
	metrics  *metrics.Manager
	db       *sqlite.DB
	handle   *l4model.Handle
	analyzer pipeline.Analyzer
	server   *api.Server
}

type appOptions struct {
	cfg    *config.TuningConfig
	dbPath string
}

// newApp wires storage, model, trainer and analyzer. The analyzer is not
// initialized yet.
func newApp(opts appOptions) (*app, error) {
	a := &app{cfg: opts.cfg, registry: metrics.SetupPrometheus()}
	a.metrics = metrics.NewManager("physiotrack", "pose", a.registry)

	var (
		store  l4model.Store = l4model.NewMemoryStore()
		ledger training.RunLedger
		runs   api.RunLedger
	)
	if opts.dbPath != "" {
		db, err := sqlite.Open(opts.dbPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = db
		store = sqlite.NewModelStore(db.DB)
		runStore := sqlite.NewTrainingRunStore(db.DB)
		ledger, runs = runStore, runStore
	}

	deps := pipeline.Deps{Metrics: a.metrics}
	var model api.ModelInfo
	if a.cfg.GetBackend() == config.BackendBiLSTM {
		h, err := l4model.Acquire(l4model.HandleConfig{
			Key:          a.cfg.GetModelKey(),
			Architecture: l4model.ArchitectureFromConfig(a.cfg),
			Store:        store,
			Seed:         a.cfg.GetSeed(),
		})
		if err != nil {
			a.close()
			return nil, err
		}
		a.handle = h
		model = h
		deps.Model = h
		deps.Trainer = training.NewTrainer(h, ledger, training.ConfigFromTuning(a.cfg), nil, a.metrics)
	}

	analyzer, err := pipeline.NewAnalyzer(a.cfg, deps)
	if err != nil {
		a.close()
		return nil, err
	}
	a.analyzer = analyzer
	a.server = api.NewServer(analyzer, api.Options{Model: model, Runs: runs, Gatherer: a.registry})
	return a, nil
}

// initialize prepares the analyzer. Unusable persisted weights are logged
// and the session continues with a fresh model.
func (a *app) initialize(ctx context.Context) error {
	err := a.analyzer.Initialize(ctx)
	var initErr *l4model.ModelInitError
	if errors.As(err, &initErr) {
		log.Printf("model initialization fell back to a fresh model: %v", err)
		return nil
	}
	return err
}

func (a *app) close() {
	if a.analyzer != nil {
		if err := a.analyzer.Close(); err != nil {
			log.Printf("analyzer close error: %v", err)
		}
	}
	if a.handle != nil {
		a.handle.Release()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
	}
}

func loadConfig() (*config.TuningConfig, error) {
	cfg := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(*configPath); err != nil {
			return nil, err
		}
	}
	if *backend != "" {
		b := *backend
		cfg.Backend = &b
	}
	return cfg, cfg.Validate()
}

func setLogWriters(s *monitoring.LogStreams) {
	l2features.SetLogWriters(s.Ops, s.Diag, s.Trace)
	l4model.SetLogWriters(s.Ops, s.Diag, s.Trace)
	training.SetLogWriters(s.Ops, s.Diag, s.Trace)
	pipeline.SetLogWriters(s.Ops, s.Diag, s.Trace)
	telemetry.SetLogWriters(s.Ops, s.Diag, s.Trace)
	sqlite.SetLogWriters(s.Ops, s.Diag, s.Trace)
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	streams := monitoring.OpenStreams(monitoring.StreamOptions{Dir: *logDir, ToStdout: *logStdout, Trace: *traceLog})
	defer streams.Close()
	setLogWriters(streams)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("invalid tuning config: %v", err)
	}

	a, err := newApp(appOptions{cfg: cfg, dbPath: *dbPath})
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.initialize(ctx); err != nil {
		log.Fatalf("failed to initialize analyzer: %v", err)
	}
	log.Printf("physiotrack %s: backend=%s model=%s", version.String(), cfg.GetBackend(), cfg.GetModelKey())

	a.analyzer.SetCallbacks(pipeline.Callbacks{
		OnRepCompleted: func(n int) { log.Printf("rep completed: %d", n) },
		OnFormFeedback: func(msg string, sev l6form.Severity) { log.Printf("form feedback [%s]: %s", sev, msg) },
	})

	var publisher *telemetry.Publisher
	if *grpcListen != "" {
		pcfg := telemetry.DefaultConfig()
		pcfg.ListenAddr = *grpcListen
		publisher = telemetry.NewPublisher(pcfg, a.metrics)
		if err := publisher.Start(); err != nil {
			log.Fatalf("failed to start telemetry: %v", err)
		}
		a.analyzer.WatchMetrics(publisher.Publish)
	}
	a.analyzer.Start()

	// Create a wait group for the HTTP server and telemetry routines
	var wg sync.WaitGroup

	if publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			// stop the poller before the publisher it feeds
			a.analyzer.Stop()
			publisher.Stop()
			log.Printf("telemetry routine stopped")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: a.server.Router(),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
