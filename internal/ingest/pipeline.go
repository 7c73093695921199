// Package ingest orchestrates the ingestion pipeline: species metadata,
// the set catalog, then cards, all written through upserts so a partial
// run is always safely resumable.
package ingest

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/CmdrKerfy/tropius-maximus/internal/config"
	"github.com/CmdrKerfy/tropius-maximus/internal/metrics"
	"github.com/CmdrKerfy/tropius-maximus/internal/pokeapi"
	"github.com/CmdrKerfy/tropius-maximus/internal/store"
	"github.com/CmdrKerfy/tropius-maximus/internal/tcgdata"
	"github.com/CmdrKerfy/tropius-maximus/internal/tcgio"
)

// Options control one ingest run.
type Options struct {
	// SetID restricts card ingestion to a single set.
	SetID string
	// SkipSpecies skips the species metadata stage.
	SkipSpecies bool
	// Force re-downloads sets and species even when already present.
	Force bool
}

// Summary reports what one run did.
type Summary struct {
	RunID           string
	SetsFetched     int
	SetsSkipped     int
	CardsIngested   int
	SpeciesIngested int
	StartedAt       time.Time
	CompletedAt     time.Time
}

// Pipeline owns the state of one run: the store handle, the API
// clients, the counters and the evolution-chain cache. Construct one
// per run and discard it afterwards.
type Pipeline struct {
	store   *store.Store
	cards   *tcgio.Client
	catalog *tcgdata.Client
	species *pokeapi.Client
	metrics *metrics.Metrics
	cfg     config.IngestConfig
	log     zerolog.Logger

	// chainCache maps evolution-chain URLs to flattened name lists so
	// species sharing a line fetch the chain once. Failed fetches are
	// cached as empty lists and not retried within the run.
	chainCache map[string][]string
}

// New assembles a pipeline. A nil metrics handle is replaced with a
// disabled instance; zero config fields fall back to their defaults.
func New(st *store.Store, cards *tcgio.Client, catalog *tcgdata.Client, species *pokeapi.Client, m *metrics.Metrics, cfg config.IngestConfig, log zerolog.Logger) *Pipeline {
	if m == nil {
		m = metrics.New(metrics.Config{}, log)
	}
	cfg.ApplyDefaults()
	return &Pipeline{
		store:      st,
		cards:      cards,
		catalog:    catalog,
		species:    species,
		metrics:    m,
		cfg:        cfg,
		log:        log,
		chainCache: make(map[string][]string),
	}
}

// Run executes the pipeline in its fixed order: schema first, then
// species unless skipped, then the set catalog, then cards. Card
// ingestion needs fresh catalog totals for its resume check, so the
// order is not configurable. The returned summary is valid even when
// the run failed partway.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}

	if err := p.store.InitSchema(); err != nil {
		return summary, err
	}
	if err := p.store.BeginRun(summary.RunID, summary.StartedAt); err != nil {
		p.log.Warn().Err(err).Msg("Failed to record run start")
	}

	runErr := p.run(ctx, opts, summary)

	summary.CompletedAt = time.Now().UTC()
	p.recordFinish(summary, runErr)

	if runErr != nil {
		return summary, runErr
	}

	p.log.Info().
		Str("run_id", summary.RunID).
		Int("cards_ingested", summary.CardsIngested).
		Int("sets_fetched", summary.SetsFetched).
		Int("sets_skipped", summary.SetsSkipped).
		Int("species_ingested", summary.SpeciesIngested).
		Msg("Ingestion complete")

	return summary, nil
}

func (p *Pipeline) run(ctx context.Context, opts Options, summary *Summary) error {
	if !opts.SkipSpecies {
		ingested, err := p.ingestSpecies(ctx, opts.Force)
		if err != nil {
			return err
		}
		summary.SpeciesIngested = ingested
	}

	lookup, err := p.ingestSets(ctx)
	if err != nil {
		return err
	}

	result, err := p.ingestCards(ctx, lookup, opts.SetID, opts.Force)
	summary.CardsIngested = result.ingested
	summary.SetsFetched = result.fetched
	summary.SetsSkipped = result.skipped
	return err
}

func (p *Pipeline) recordFinish(summary *Summary, runErr error) {
	run := store.Run{
		ID:              summary.RunID,
		StartedAt:       summary.StartedAt,
		CompletedAt:     sql.NullTime{Time: summary.CompletedAt, Valid: true},
		SetsFetched:     summary.SetsFetched,
		SetsSkipped:     summary.SetsSkipped,
		CardsIngested:   summary.CardsIngested,
		SpeciesIngested: summary.SpeciesIngested,
		Status:          store.RunStatusCompleted,
	}
	if runErr != nil {
		run.Status = store.RunStatusFailed
		run.Error = runErr.Error()
	}
	if err := p.store.FinishRun(run); err != nil {
		p.log.Warn().Err(err).Msg("Failed to record run completion")
	}
}
