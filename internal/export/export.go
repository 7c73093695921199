// Package export writes the store's tables out as ZSTD-compressed
// Parquet files for downstream consumers.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/CmdrKerfy/tropius-maximus/internal/metrics"
	"github.com/CmdrKerfy/tropius-maximus/internal/store"
)

// target describes one table export: the projection to copy and the
// file it lands in.
type target struct {
	table string
	query string
	file  string
}

// targets is the fixed export list. The two pocket tables belong to a
// sibling pipeline sharing the same database file; when they do not
// exist their export is skipped like any other per-table failure.
var targets = []target{
	{
		table: "cards",
		query: "SELECT id, name, supertype, subtypes, hp, types, evolves_from, rarity, artist, set_id, set_name, set_series, number, regulation_mark, image_small, image_large, raw_data, prices FROM cards",
		file:  "cards.parquet",
	},
	{
		table: "sets",
		query: "SELECT * FROM sets",
		file:  "sets.parquet",
	},
	{
		table: "pokemon_metadata",
		query: "SELECT pokedex_number, name, region, generation, color, shape, genus, encounter_location, evolution_chain FROM pokemon_metadata",
		file:  "pokemon_metadata.parquet",
	},
	{
		table: "pocket_sets",
		query: "SELECT * FROM pocket_sets",
		file:  "pocket_sets.parquet",
	},
	{
		table: "pocket_cards",
		query: "SELECT * FROM pocket_cards",
		file:  "pocket_cards.parquet",
	},
}

// TableResult reports one table's outcome.
type TableResult struct {
	Table   string
	File    string
	Rows    int64
	Bytes   int64
	Skipped bool
	Reason  string
}

// Exporter writes Parquet snapshots of the store.
type Exporter struct {
	store     *store.Store
	outputDir string
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// New constructs an exporter writing into outputDir. A nil metrics
// handle is replaced with a disabled instance.
func New(st *store.Store, outputDir string, m *metrics.Metrics, log zerolog.Logger) *Exporter {
	if m == nil {
		m = metrics.New(metrics.Config{}, log)
	}
	return &Exporter{store: st, outputDir: outputDir, metrics: m, log: log}
}

// Run exports every table on the fixed list. An empty or missing table
// is skipped so a stale Parquet file is never clobbered by an empty
// one; only a bad output directory fails the run as a whole.
func (e *Exporter) Run() ([]TableResult, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", e.outputDir, err)
	}

	results := make([]TableResult, 0, len(targets))
	for _, tgt := range targets {
		results = append(results, e.exportTable(tgt))
	}
	return results, nil
}

func (e *Exporter) exportTable(tgt target) TableResult {
	result := TableResult{Table: tgt.table, File: tgt.file}

	skip := func(reason string) TableResult {
		result.Skipped = true
		result.Reason = reason
		e.log.Warn().Str("table", tgt.table).Str("reason", reason).Msg("Export skipped")
		return result
	}

	count, err := e.store.TableCount(tgt.table)
	if err != nil {
		return skip(err.Error())
	}
	if count == 0 {
		return skip("table is empty, refusing to overwrite")
	}

	path := filepath.Join(e.outputDir, tgt.file)
	if err := e.store.CopyToParquet(tgt.query, path); err != nil {
		return skip(err.Error())
	}

	info, err := os.Stat(path)
	if err != nil {
		return skip(err.Error())
	}

	result.Rows = count
	result.Bytes = info.Size()
	e.metrics.RecordExport(tgt.table, count, info.Size())
	e.log.Info().
		Str("file", tgt.file).
		Int64("rows", count).
		Str("size", prettySize(info.Size())).
		Msg("Exported table")
	return result
}

// prettySize renders a byte count for the progress output: MB with one
// decimal above 1 MiB, whole KB otherwise.
func prettySize(n int64) string {
	if n > 1024*1024 {
		return fmt.Sprintf("%.1f MB", float64(n)/1024/1024)
	}
	return fmt.Sprintf("%.0f KB", float64(n)/1024)
}
