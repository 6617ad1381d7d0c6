// Package api is the host HTTP surface of the pose pipeline: frame intake,
// session control, training, metrics and debug charts.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/pose/pipeline"
	"github.com/banshee-data/physio.track/internal/pose/training"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultMaxBodyBytes bounds frame and training uploads.
const DefaultMaxBodyBytes = 32 << 20

// ModelInfo reports the state of the live model. *l4model.Handle implements it.
type ModelInfo interface {
	Info() l4model.Info
}

// RunLedger lists recorded training runs. *sqlite.TrainingRunStore implements it.
type RunLedger interface {
	GetRun(ctx context.Context, runID string) (*training.Run, error)
	ListRuns(ctx context.Context, modelKey string, limit int) ([]*training.Run, error)
}

// Options wires the optional collaborators of a Server.
type Options struct {
	// Model is nil for the simulated backend.
	Model ModelInfo
	// Runs is nil when no database is configured.
	Runs RunLedger
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer     prometheus.Gatherer
	MaxBodyBytes int64
}

type Server struct {
	analyzer pipeline.Analyzer
	model    ModelInfo
	runs     RunLedger
	gatherer prometheus.Gatherer
	maxBody  int64
}

func NewServer(a pipeline.Analyzer, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{
		analyzer: a,
		model:    opts.Model,
		runs:     opts.Runs,
		gatherer: opts.Gatherer,
		maxBody:  opts.MaxBodyBytes,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Router returns the routes of the host API. Frame intake is not wrapped in
// LoggingMiddleware; at camera rate it would drown the log.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/frames", s.handleFrames).Methods("POST").Name("frames")

	logged := router.NewRoute().Subrouter()
	logged.Use(LoggingMiddleware)
	logged.HandleFunc("/api/v1/metrics", s.handleMetrics).Methods("GET").Name("metrics")
	logged.HandleFunc("/api/v1/session/{action:reset|start|stop}", s.handleSession).Methods("POST").Name("session")
	logged.HandleFunc("/api/v1/train", s.handleTrain).Methods("POST").Name("train")
	logged.HandleFunc("/api/v1/model", s.handleModel).Methods("GET").Name("model")
	logged.HandleFunc("/api/v1/training/runs", s.handleListRuns).Methods("GET").Name("training-runs")
	logged.HandleFunc("/api/v1/training/runs/{id}", s.handleGetRun).Methods("GET").Name("training-run")
	logged.HandleFunc("/api/v1/version", s.handleVersion).Methods("GET").Name("version")
	logged.HandleFunc("/debug/charts/form", s.handleFormChart).Methods("GET").Name("form-chart")
	logged.HandleFunc("/debug/charts/training/{id}", s.handleTrainingChart).Methods("GET").Name("training-chart")
	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET").Name("prometheus")
	return router
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
