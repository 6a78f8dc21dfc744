// Command merge_publish loads a merged export back through the engine and
// publishes it into a database table (postgres | mssql | sqlite).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"tabmerge/internal/config"
	"tabmerge/internal/merge"
	"tabmerge/internal/sink"

	_ "tabmerge/internal/sink/mssql"
	_ "tabmerge/internal/sink/postgres"
	_ "tabmerge/internal/sink/sqlite"
)

func main() {
	var (
		cfgPath string
		kind    string
		dsn     string
		table   string
		dedupe  string
		batch   int
	)
	flag.StringVar(&cfgPath, "config", "", "path to pipeline config JSON with a sink section")
	flag.StringVar(&kind, "kind", "", "sink kind: postgres | mssql | sqlite")
	flag.StringVar(&dsn, "dsn", "", "sink DSN (env vars expanded)")
	flag.StringVar(&table, "table", "", "target table name")
	flag.StringVar(&dedupe, "dedupe", "", "comma-separated dedupe columns")
	flag.IntVar(&batch, "batch", 0, "rows per insert batch")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: merge_publish [flags] merged.csv")
		os.Exit(2)
	}

	sc, err := sinkConfig(cfgPath, kind, dsn, table, dedupe, batch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), sc, flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
}

func sinkConfig(cfgPath, kind, dsn, table, dedupe string, batch int) (config.Sink, error) {
	var sc config.Sink
	if cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return sc, err
		}
		if cfg.Sink == nil {
			return sc, fmt.Errorf("config has no sink section")
		}
		sc = *cfg.Sink
	}
	if kind != "" {
		sc.Kind = kind
	}
	if dsn != "" {
		sc.DSN = dsn
	}
	if table != "" {
		sc.Table = table
	}
	if dedupe != "" {
		sc.DedupeColumns = strings.Split(dedupe, ",")
	}
	if batch > 0 {
		sc.BatchSize = batch
	}

	if sc.Kind == "" || sc.DSN == "" || sc.Table == "" {
		return sc, fmt.Errorf("kind, dsn and table are required")
	}
	return sc, nil
}

func run(ctx context.Context, sc config.Sink, path string) error {
	in, err := merge.FileInput(path)
	if err != nil {
		return fmt.Errorf("input %s: %w", path, err)
	}

	eng := &merge.Engine{Logger: log.New(os.Stderr, "", log.LstdFlags)}
	result, err := eng.Run(ctx, []merge.Input{in}, config.Options{})
	if err != nil {
		return err
	}

	pub, err := sink.New(ctx, sink.Config{Kind: sc.Kind, DSN: os.ExpandEnv(sc.DSN)})
	if err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	defer pub.Close()

	inserted, err := sink.Publish(ctx, pub, sink.Options{
		Table:         sc.Table,
		DedupeColumns: sc.DedupeColumns,
		BatchSize:     sc.BatchSize,
	}, result.Dataset, result.Schema)
	if err != nil {
		return err
	}

	fmt.Printf("published rows=%d of %d table=%s\n", inserted, result.Stats.Rows, sc.Table)
	return nil
}
