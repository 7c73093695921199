package ingest

import (
	"context"

	"github.com/CmdrKerfy/tropius-maximus/internal/store"
	"github.com/CmdrKerfy/tropius-maximus/internal/tcgdata"
)

// ingestSets fetches the set catalog, upserts every record and returns
// a lookup by set id. The card stage uses the lookup for set names and
// for its resume check, so a catalog failure fails the run.
func (p *Pipeline) ingestSets(ctx context.Context) (map[string]tcgdata.Set, error) {
	p.log.Info().Msg("Fetching set catalog")

	sets, err := p.catalog.Sets(ctx)
	if err != nil {
		return nil, err
	}
	p.log.Info().Int("count", len(sets)).Msg("Got sets")

	lookup := make(map[string]tcgdata.Set, len(sets))
	for _, s := range sets {
		if err := p.store.UpsertSet(store.Set{
			ID:           s.ID,
			Name:         s.Name,
			Series:       s.Series,
			PrintedTotal: s.PrintedTotal,
			Total:        s.Total,
			ReleaseDate:  s.ReleaseDate,
			SymbolURL:    s.Images.Symbol,
			LogoURL:      s.Images.Logo,
		}); err != nil {
			return nil, err
		}
		p.metrics.RecordSetUpserted()
		lookup[s.ID] = s
	}
	return lookup, nil
}
