// Command train-model fits the pose classifier offline from labeled
// sequences and persists it to the SQLite model store.
//
// Usage:
//
//	go run ./cmd/tools/train-model -data sequences.json [flags]
//
// The data file is either {"sequences":[...]} or one LabeledSequence per
// line (JSONL).
//
// Flags:
//
//	-data      Labeled sequences file (required)
//	-db        SQLite database path (default: physiotrack.db)
//	-config    Tuning config JSON (default: built-in defaults)
//	-epochs    Override the configured epoch count
//	-plot      Write a loss plot (png/svg/pdf by extension)
//	-acc-plot  Write a head-accuracy plot
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/physio.track/internal/config"
	"github.com/banshee-data/physio.track/internal/pose/l4model"
	"github.com/banshee-data/physio.track/internal/pose/storage/sqlite"
	"github.com/banshee-data/physio.track/internal/pose/training"
)

func main() {
	dataPath := flag.String("data", "", "Labeled sequences file (JSON envelope or JSONL)")
	dbPath := flag.String("db", "physiotrack.db", "SQLite database path")
	configPath := flag.String("config", "", "Tuning config JSON (empty uses built-in defaults)")
	epochs := flag.Int("epochs", 0, "Override the configured epoch count")
	plotPath := flag.String("plot", "", "Write a per-epoch loss plot to this path")
	accPlotPath := flag.String("acc-plot", "", "Write a per-epoch accuracy plot to this path")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("-data is required")
	}

	cfg := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *epochs > 0 {
		cfg.Epochs = epochs
	}

	f, err := os.Open(*dataPath)
	if err != nil {
		log.Fatalf("failed to open data: %v", err)
	}
	seqs, err := readSequences(f)
	f.Close()
	if err != nil {
		log.Fatalf("failed to read %s: %v", *dataPath, err)
	}
	log.Printf("loaded %d labeled sequences from %s", len(seqs), *dataPath)

	training.SetLogWriters(os.Stderr, os.Stderr, nil)
	l4model.SetLogWriters(os.Stderr, os.Stderr, nil)

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	h, err := l4model.Acquire(l4model.HandleConfig{
		Key:          cfg.GetModelKey(),
		Architecture: l4model.ArchitectureFromConfig(cfg),
		Store:        sqlite.NewModelStore(db.DB),
		Seed:         cfg.GetSeed(),
	})
	if err != nil {
		log.Fatalf("failed to create model: %v", err)
	}
	defer h.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := h.Initialize(ctx); err != nil {
		log.Printf("warning: %v", err)
	}

	trainer := training.NewTrainer(h, sqlite.NewTrainingRunStore(db.DB), training.ConfigFromTuning(cfg), nil, nil)
	trainer.OnEpoch = func(runID string, st l4model.EpochStats) {
		log.Printf("epoch %3d loss=%.4f type_acc=%.3f phase_acc=%.3f val_loss=%.4f",
			st.Epoch, st.Loss, st.TypeAccuracy, st.PhaseAccuracy, st.ValLoss)
	}

	sum, err := trainer.Train(ctx, seqs)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}

	if *plotPath != "" {
		if err := training.WriteLossPlot(sum.History, "Training "+sum.RunID, *plotPath, *accPlotPath); err != nil {
			log.Printf("failed to write plot: %v", err)
		} else {
			log.Printf("wrote %s", *plotPath)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	sum.History = nil
	if err := enc.Encode(sum); err != nil {
		log.Fatalf("failed to write summary: %v", err)
	}
}

// readSequences accepts {"sequences":[...]} or JSONL with one sequence per
// line.
func readSequences(r io.Reader) ([]training.LabeledSequence, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty data file")
	}

	var envelope struct {
		Sequences []training.LabeledSequence `json:"sequences"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err == nil && envelope.Sequences != nil {
		return envelope.Sequences, nil
	}

	var seqs []training.LabeledSequence
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 64*1024), 64<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var seq training.LabeledSequence
		if err := json.Unmarshal(text, &seq); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		seqs = append(seqs, seq)
	}
	return seqs, scanner.Err()
}
