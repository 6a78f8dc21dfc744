// Command merge runs one merge operation over a set of tabular files and
// writes the export CSV plus a JSON report (stats + visualization summary).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"tabmerge/internal/config"
	"tabmerge/internal/dataset"
	"tabmerge/internal/export"
	"tabmerge/internal/merge"
	"tabmerge/internal/metrics"
	"tabmerge/internal/metrics/datadog"
	"tabmerge/internal/stats"
)

func main() {
	var (
		cfgPath    string
		outPath    string
		reportPath string
	)
	flag.StringVar(&cfgPath, "config", "", "path to merge pipeline config JSON")
	flag.StringVar(&outPath, "out", "", "export CSV path (default: timestamped name in cwd)")
	flag.StringVar(&reportPath, "report", "", "stats/summary JSON path (default: stdout)")
	flag.Parse()

	if cfgPath == "" && flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: merge -config pipeline.json | merge [flags] file.csv [file2.csv ...]")
		os.Exit(2)
	}

	cfg, err := resolveConfig(cfgPath, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, outPath, reportPath); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfig(cfgPath string, args []string) (config.Pipeline, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	var cfg config.Pipeline
	for _, p := range args {
		cfg.Inputs = append(cfg.Inputs, config.Input{Path: p})
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Pipeline, outPath, reportPath string) error {
	inputs := make([]merge.Input, 0, len(cfg.Inputs))
	for _, in := range cfg.Inputs {
		mi, err := merge.FileInput(in.Path)
		if err != nil {
			return fmt.Errorf("input %s: %w", in.Path, err)
		}
		if in.Name != "" {
			mi.Name = in.Name
		}
		if in.Size > 0 {
			mi.Size = in.Size
		}
		inputs = append(inputs, mi)
	}

	backend, err := metricsBackend(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer backend.Close()

	eng := &merge.Engine{
		Logger:        log.New(os.Stderr, "", log.LstdFlags),
		Metrics:       backend,
		ChannelBuffer: cfg.Runtime.ChannelBuffer,
	}
	if cfg.Runtime.Store == "spill" {
		eng.NewStore = func(ctx context.Context) (dataset.Store, error) {
			return dataset.NewSpill(ctx, cfg.Runtime.SpillPath)
		}
	}

	opt := cfg.Parser.Options
	if opt == nil {
		opt = config.Options{}
	}
	if cfg.Runtime.ChunkBytes > 0 {
		opt["chunk_bytes"] = cfg.Runtime.ChunkBytes
	}

	result, err := eng.Run(ctx, inputs, opt)
	if err != nil {
		return err
	}
	// Release the backing store once the export and report are written;
	// for a spill store this removes the temp SQLite segment.
	if store, ok := result.Dataset.(dataset.Store); ok {
		defer func() { _ = store.Discard() }()
	}

	if outPath == "" {
		outPath = export.ArtifactName(cfg.Job, time.Now())
	}
	if err := writeExport(ctx, outPath, result); err != nil {
		return err
	}

	if err := writeReport(reportPath, result); err != nil {
		return err
	}

	fmt.Printf("merged files=%d rows=%d columns=%d export=%s\n",
		result.Stats.Files, result.Stats.Rows, result.Stats.Columns, filepath.Clean(outPath))
	return nil
}

func metricsBackend(ctx context.Context, cfg *config.Metrics) (metrics.Backend, error) {
	if cfg == nil || !cfg.Enabled {
		return metrics.Nop{}, nil
	}
	return datadog.NewBackend(ctx, datadog.Options{
		JobName: cfg.JobName,
		Tags:    cfg.Tags,
	})
}

func writeExport(ctx context.Context, path string, result *merge.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	if err := export.Serialize(ctx, f, result.Dataset, result.Schema); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// report is the plain data payload for the presentation layer.
type report struct {
	Stats   merge.Stats                `json:"stats"`
	Summary stats.VisualizationSummary `json:"summary"`
}

func writeReport(path string, result *merge.Result) error {
	raw, err := json.MarshalIndent(report{Stats: result.Stats, Summary: result.Summary}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	raw = append(raw, '\n')

	if path == "" {
		_, err := os.Stdout.Write(raw)
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
