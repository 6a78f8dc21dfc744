package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pipeline is the user-provided merge pipeline configuration.
//
// It intentionally mirrors the CLI surface: a list of input files, parser
// options applied to every file, runtime knobs and an optional sink for
// publishing the merged result.
type Pipeline struct {
	Job     string   `json:"job"`
	Inputs  []Input  `json:"inputs"`
	Parser  Parser   `json:"parser"`
	Runtime Runtime  `json:"runtime"`
	Sink    *Sink    `json:"sink,omitempty"`
	Metrics *Metrics `json:"metrics,omitempty"`
}

// Input names one file to merge. Name defaults to the path base; Size is
// discovered by stat when zero.
type Input struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

type Parser struct {
	Options Options `json:"options"`
}

// Runtime controls merge execution behavior.
type Runtime struct {
	// ChunkBytes is the ingestion chunk size in bytes. Defaults to 1 MiB.
	ChunkBytes int `json:"chunk_bytes"`

	// ChannelBuffer sizes the row channel between parser and accumulator.
	ChannelBuffer int `json:"channel_buffer"`

	// Store selects the dataset backing store: "memory" (default) or "spill".
	Store string `json:"store"`

	// SpillPath is the on-disk segment location for the spill store.
	// Empty means a temp file.
	SpillPath string `json:"spill_path"`
}

// Sink configures publishing the merged dataset into a database.
type Sink struct {
	// Kind: "postgres" | "mssql" | "sqlite".
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`

	Table string `json:"table"`

	// DedupeColumns makes the publish idempotent across reruns.
	DedupeColumns []string `json:"dedupe_columns,omitempty"`

	BatchSize int `json:"batch_size"`
}

// Metrics configures the optional Datadog metrics backend.
type Metrics struct {
	Enabled bool     `json:"enabled"`
	JobName string   `json:"job_name"`
	Tags    []string `json:"tags,omitempty"`
}

// Load reads and decodes a pipeline config file.
func Load(path string) (Pipeline, error) {
	var cfg Pipeline
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
