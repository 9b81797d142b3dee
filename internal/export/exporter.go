// Package export writes evaluation results to the maps output tree: one JSON
// dossier per client under customers/, additionally one rejection report per
// disqualified client under no_perfila/, and batch-level aggregates as CSV,
// JSON and XLSX under outputs/.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/senna-project/senninha/internal/domain"
	"github.com/senna-project/senninha/internal/profile"
)

// Exporter writes evaluation results to disk. Per-client write failures are
// logged and counted but never abort the batch; aggregate write failures are
// returned.
type Exporter struct {
	cfg    domain.ExportConfig
	logger *slog.Logger
}

// New creates an exporter, filling layout defaults.
func New(cfg domain.ExportConfig, logger *slog.Logger) *Exporter {
	if cfg.BaseDir == "" {
		cfg.BaseDir = "./maps"
	}
	if cfg.CustomersDir == "" {
		cfg.CustomersDir = "customers"
	}
	if cfg.RejectedDir == "" {
		cfg.RejectedDir = "no_perfila"
	}
	if cfg.CSVDir == "" {
		cfg.CSVDir = "outputs/csv"
	}
	if cfg.JSONDir == "" {
		cfg.JSONDir = "outputs/json"
	}
	if cfg.XLSXDir == "" {
		cfg.XLSXDir = "outputs/xlsx"
	}
	if cfg.MaxConcurrentWrites <= 0 {
		cfg.MaxConcurrentWrites = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{cfg: cfg, logger: logger}
}

// ExportBatch writes the full output tree for one evaluated batch.
func (e *Exporter) ExportBatch(ctx context.Context, batchID string, result *profile.Result) error {
	start := time.Now()

	for _, dir := range []string{
		e.path(e.cfg.CustomersDir),
		e.path(e.cfg.RejectedDir),
		e.path(e.cfg.CSVDir),
		e.path(e.cfg.JSONDir),
		e.path(e.cfg.XLSXDir),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory %s: %w", dir, err)
		}
	}

	failed := e.exportClients(ctx, result)

	if err := e.appendAggregateCSV(result.Summaries); err != nil {
		return err
	}
	if err := e.writeAggregateJSON(batchID, result.Summaries); err != nil {
		return err
	}
	if err := e.writeAggregateXLSX(batchID, result.Summaries); err != nil {
		return err
	}

	e.logger.Info("batch exported",
		"batch_id", batchID,
		"clients", len(result.Summaries),
		"failed_writes", failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// exportClients writes the per-client files with bounded concurrency and
// returns the number of failed writes.
func (e *Exporter) exportClients(ctx context.Context, result *profile.Result) int {
	sem := make(chan struct{}, e.cfg.MaxConcurrentWrites)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for i := range result.Summaries {
		summary := result.Summaries[i]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := e.writeClientFile(result, summary); err != nil {
				e.logger.Error("client export failed",
					"nif", summary.TaxID,
					"error", err,
				)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return failed
}

func (e *Exporter) writeClientFile(result *profile.Result, summary domain.ClientSummary) error {
	// Every client gets the full dossier, qualified or not.
	out := domain.ClientResult{
		Summary: summary,
		Lines:   result.ClientLines(summary.TaxID),
	}
	path := filepath.Join(e.path(e.cfg.CustomersDir), summary.TaxID+".json")
	if err := writeJSONFile(path, out); err != nil {
		return err
	}
	if summary.Qualifies {
		return nil
	}

	report := result.Rejections(summary.TaxID)
	if report == nil {
		// No rejected lines, yet below the qualification threshold.
		report = &domain.RejectionReport{Summary: summary}
	}
	path = filepath.Join(e.path(e.cfg.RejectedDir), summary.TaxID+".json")
	return writeJSONFile(path, report)
}

// csvHeader is the aggregate CSV column layout, written once per file.
var csvHeader = []string{
	"nif",
	"divida_total_elegivel",
	"divida_elegivel_individual",
	"divida_elegivel_grupo",
	"perfila",
	"pari_persi",
	"total_dividas",
	"batch_id",
}

// appendAggregateCSV appends one row per client to the running aggregate
// file, creating it with a header when absent.
func (e *Exporter) appendAggregateCSV(summaries []domain.ClientSummary) error {
	path := filepath.Join(e.path(e.cfg.CSVDir), "perfilamento.csv")

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open aggregate csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if isNew {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}

	for _, s := range summaries {
		row := []string{
			s.TaxID,
			formatAmount(s.TotalEligibleDebt),
			formatAmount(s.EligibleByIndividual),
			formatAmount(s.EligibleByGroup),
			strconv.FormatBool(s.Qualifies),
			strconv.FormatBool(s.HasPariPersi),
			strconv.Itoa(s.LineCount),
			s.BatchID,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func (e *Exporter) writeAggregateJSON(batchID string, summaries []domain.ClientSummary) error {
	path := filepath.Join(e.path(e.cfg.JSONDir), batchID+".json")
	return writeJSONFile(path, summaries)
}

func (e *Exporter) path(sub string) string {
	return filepath.Join(e.cfg.BaseDir, sub)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// writeJSONFile writes v as indented JSON via a temp file and rename, so a
// crashed write never leaves a truncated export behind.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
