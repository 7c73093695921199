package main

import (
	"github.com/spf13/cobra"

	"github.com/CmdrKerfy/tropius-maximus/internal/export"
	"github.com/CmdrKerfy/tropius-maximus/internal/logging"
	"github.com/CmdrKerfy/tropius-maximus/internal/store"
)

var (
	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export DuckDB tables to Parquet files",
		RunE:  runExport,
	}

	outputDir string
)

func init() {
	exportCmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for Parquet output (overrides config)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if outputDir != "" {
		cfg.Export.OutputDir = outputDir
	}

	m, stopMetrics := startMetrics(cfg, log)
	defer stopMetrics()

	st, err := store.OpenReadOnly(cfg.Database.Path, logging.Component(log, "store"))
	if err != nil {
		return err
	}
	defer st.Close()

	results, err := export.New(st, cfg.Export.OutputDir, m, logging.Component(log, "export")).Run()
	if err != nil {
		return err
	}

	exported := 0
	for _, r := range results {
		if !r.Skipped {
			exported++
		}
	}
	log.Info().Int("exported", exported).Int("skipped", len(results)-exported).Msg("Export complete")
	return nil
}
