// One-shot batch runner: evaluates an extractor JSON file and writes the maps
// output tree without a running server.
//
// Usage:
//   go run cmd/senninha-batch/main.go -input dividas.json -out ./maps
//
// The input file is either a bare array of debt lines or an object with a
// "dividas" array, the two shapes the upstream extractor produces.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/senna-project/senninha/internal/banks"
	"github.com/senna-project/senninha/internal/domain"
	"github.com/senna-project/senninha/internal/export"
	"github.com/senna-project/senninha/internal/normalize"
	"github.com/senna-project/senninha/internal/profile"
	"github.com/senna-project/senninha/internal/rules"
)

func main() {
	inputPath := flag.String("input", "", "Path to extractor JSON file")
	outDir := flag.String("out", "./maps", "Export base directory")
	batchID := flag.String("batch", "", "Batch ID (defaults to the input filename)")
	rulesPath := flag.String("rules", "", "Optional JSON file with custom exclusion rules")
	gate := flag.String("gate", string(domain.GateGroup), "Qualification sum gate: group or individual")
	qualMin := flag.Float64("min", 6000.0, "Minimum eligible-debt sum for qualification")
	autoMin := flag.Float64("auto-min", 10000.0, "Minimum debt for automobile eligibility")
	verbose := flag.Bool("verbose", false, "Debug logging")
	flag.Parse()

	if *inputPath == "" {
		fmt.Println("Usage: senninha-batch -input dividas.json [-out ./maps]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	lines, err := readLines(*inputPath)
	if err != nil {
		logger.Error("failed to read input", "path", *inputPath, "error", err)
		os.Exit(1)
	}
	if len(lines) == 0 {
		logger.Error("input contains no debt lines", "path", *inputPath)
		os.Exit(1)
	}

	if *batchID == "" {
		name := filepath.Base(*inputPath)
		*batchID = strings.TrimSuffix(name, filepath.Ext(name))
	}

	overlay, err := loadRules(*rulesPath)
	if err != nil {
		logger.Error("failed to load custom rules", "path", *rulesPath, "error", err)
		os.Exit(1)
	}

	engine := profile.NewEngine(
		domain.ProfileConfig{
			QualificationMin: *qualMin,
			AutoLoanMin:      *autoMin,
			Gate:             domain.SumGate(*gate),
		},
		banks.DefaultRegistry(),
		normalize.DefaultProductMap(),
		normalize.DefaultInstitutionNormalizer(),
		overlay,
		logger,
	)

	ctx := context.Background()
	start := time.Now()

	result, err := engine.EvaluateBatch(ctx, &domain.Batch{ID: *batchID, Lines: lines})
	if err != nil {
		logger.Error("evaluation failed", "batch_id", *batchID, "error", err)
		os.Exit(1)
	}

	exporter := export.New(domain.ExportConfig{BaseDir: *outDir}, logger)
	if err := exporter.ExportBatch(ctx, *batchID, result); err != nil {
		logger.Error("export failed", "batch_id", *batchID, "error", err)
		os.Exit(1)
	}

	qualified := 0
	for i := range result.Summaries {
		if result.Summaries[i].Qualifies {
			qualified++
		}
	}

	fmt.Printf("Batch:      %s\n", *batchID)
	fmt.Printf("Lines:      %d\n", len(result.Lines))
	fmt.Printf("Clients:    %d\n", len(result.Summaries))
	fmt.Printf("Qualified:  %d\n", qualified)
	fmt.Printf("Output:     %s\n", *outDir)
	fmt.Printf("Elapsed:    %s\n", time.Since(start).Round(time.Millisecond))
}

// readLines accepts both extractor output shapes: a bare array of lines or a
// wrapping object with a "dividas" array.
func readLines(path string) ([]domain.DebtLine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lines []domain.DebtLine
	if err := json.Unmarshal(data, &lines); err == nil {
		return lines, nil
	}

	var wrapped struct {
		Lines []domain.DebtLine `json:"dividas"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("input is neither a line array nor a dividas object: %w", err)
	}
	return wrapped.Lines, nil
}

func loadRules(path string) (*rules.Engine, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var configs []*domain.RuleConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, err
	}

	engine, err := rules.NewEngine()
	if err != nil {
		return nil, err
	}
	if err := engine.LoadRules(configs); err != nil {
		return nil, err
	}
	return engine, nil
}
