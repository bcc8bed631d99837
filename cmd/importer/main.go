// Command importer merges a historical signal dump into the grid store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"SignalGrid/internal/di"
	"SignalGrid/internal/domain/repository"
	"SignalGrid/internal/usecase"
	"SignalGrid/pkg/config"
	applogger "SignalGrid/pkg/logger"
)

type dryRunRecord struct {
	SymbolDate  string          `json:"symbolDate"`
	StateData   json.RawMessage `json:"stateData"`
	LastUpdated time.Time       `json:"lastUpdated"`
	TTL         int64           `json:"ttl"`
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	file := flag.String("file", "historical-data.json", "JSON array of historical items")
	batch := flag.Int("batch", 0, "records per store write (max 25, default from config)")
	dryRun := flag.Bool("dry-run", false, "print merged records instead of writing them")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	l, err := applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: "console", Output: "stderr"})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	f, err := os.Open(*file)
	if err != nil {
		l.Error("open history file", applogger.String("file", *file), applogger.Error(err))
		os.Exit(1)
	}
	items, err := usecase.DecodeHistory(f)
	_ = f.Close()
	if err != nil {
		l.Error("read history file", applogger.String("file", *file), applogger.Error(err))
		os.Exit(1)
	}
	l.Info("history loaded", applogger.String("file", *file), applogger.Int("items", len(items)))

	batchSize := cfg.Importer.BatchSize
	if *batch > 0 {
		batchSize = *batch
	}

	var store repository.GridStore
	if !*dryRun {
		store, err = di.OpenGridStore(cfg)
		if err != nil {
			l.Error("open grid store", applogger.Error(err))
			os.Exit(1)
		}
	}

	merger := usecase.NewHistoryMerger(store,
		usecase.WithBatchSize(batchSize),
		usecase.WithMergeRetention(cfg.Grid.Retention),
		usecase.WithBatchTimeout(cfg.Importer.WriteTimeout),
		usecase.WithMergerLogger(l),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, recs := merger.Import(ctx, items, *dryRun)
	if store != nil {
		if err := store.Close(); err != nil {
			l.Warn("close grid store", applogger.Error(err))
		}
	}

	if *dryRun {
		out := make([]dryRunRecord, 0, len(recs))
		for _, r := range recs {
			out = append(out, dryRunRecord{
				SymbolDate:  r.Key,
				StateData:   json.RawMessage(r.StateData),
				LastUpdated: r.LastUpdated,
				TTL:         r.TTL(),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			l.Error("write dry run output", applogger.Error(err))
			os.Exit(1)
		}
	}

	l.Info("import summary",
		applogger.Int("raw", report.Raw),
		applogger.Int("rejected", report.Rejected),
		applogger.Int("merged", report.Merged),
		applogger.Int("batches", report.Batches),
		applogger.Int("failed_batches", report.FailedBatches),
		applogger.Int("written", report.Written),
	)
	if report.FailedBatches > 0 {
		os.Exit(2)
	}
}
