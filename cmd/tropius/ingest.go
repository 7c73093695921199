package main

import (
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/CmdrKerfy/tropius-maximus/internal/ingest"
	"github.com/CmdrKerfy/tropius-maximus/internal/logging"
	"github.com/CmdrKerfy/tropius-maximus/internal/pokeapi"
	"github.com/CmdrKerfy/tropius-maximus/internal/store"
	"github.com/CmdrKerfy/tropius-maximus/internal/tcgdata"
	"github.com/CmdrKerfy/tropius-maximus/internal/tcgio"
)

var (
	ingestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Download cards, sets and species metadata into DuckDB",
		RunE:  runIngest,
	}

	ingestSetID string
	skipPokemon bool
	forceIngest bool
)

func init() {
	ingestCmd.Flags().StringVar(&ingestSetID, "set", "", "Ingest only this set id")
	ingestCmd.Flags().BoolVar(&skipPokemon, "skip-pokemon", false, "Skip the species metadata stage")
	ingestCmd.Flags().BoolVar(&forceIngest, "force", false, "Re-download sets and species that look complete")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	m, stopMetrics := startMetrics(cfg, log)
	defer stopMetrics()

	st, err := store.Open(cfg.Database.Path, logging.Component(log, "store"))
	if err != nil {
		return err
	}
	defer st.Close()

	httpClient := &http.Client{Timeout: cfg.Sources.RequestTimeout()}
	newLimiter := func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(cfg.Ingest.RequestsPerSecond), cfg.Ingest.RequestBurst)
	}

	cards := tcgio.NewClient(cfg.Sources.CardsAPIURL,
		tcgio.WithAPIKey(cfg.APIKey),
		tcgio.WithHTTPClient(httpClient),
		tcgio.WithLimiter(newLimiter()),
		tcgio.WithMetrics(m),
		tcgio.WithLogger(logging.Component(log, "tcgio")),
		tcgio.WithRetry(cfg.Ingest.MaxRetries, cfg.Ingest.RetryDelay()),
		tcgio.WithPageSize(cfg.Ingest.CardPageSize),
	)
	catalog := tcgdata.NewClient(cfg.Sources.SetsURL, cfg.Sources.SetFilesURL,
		tcgdata.WithHTTPClient(httpClient),
		tcgdata.WithLimiter(newLimiter()),
		tcgdata.WithMetrics(m),
		tcgdata.WithLogger(logging.Component(log, "tcgdata")),
	)
	poke := pokeapi.NewClient(cfg.Sources.PokeAPIURL,
		pokeapi.WithHTTPClient(httpClient),
		pokeapi.WithLimiter(newLimiter()),
		pokeapi.WithMetrics(m),
		pokeapi.WithLogger(logging.Component(log, "pokeapi")),
	)

	pipeline := ingest.New(st, cards, catalog, poke, m,
		cfg.Ingest, logging.Component(log, "ingest"))

	_, err = pipeline.Run(cmd.Context(), ingest.Options{
		SetID:       ingestSetID,
		SkipSpecies: skipPokemon,
		Force:       forceIngest,
	})
	return err
}
