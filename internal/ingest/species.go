package ingest

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/CmdrKerfy/tropius-maximus/internal/pokeapi"
	"github.com/CmdrKerfy/tropius-maximus/internal/pokedex"
	"github.com/CmdrKerfy/tropius-maximus/internal/store"
)

// ingestSpecies pages the species listing and upserts one metadata row
// per species. The listing is a prerequisite and fails the stage;
// individual species failures are logged and skipped so one flaky
// resource cannot sink a thousand others.
func (p *Pipeline) ingestSpecies(ctx context.Context, force bool) (int, error) {
	p.log.Info().Msg("Fetching Pokemon metadata")

	total, err := p.species.SpeciesCount(ctx)
	if err != nil {
		return 0, err
	}
	p.log.Info().Int("count", total).Msg("Found Pokemon species")

	if !force {
		existing, err := p.store.SpeciesCount()
		if err != nil {
			return 0, err
		}
		if existing >= total && total > 0 {
			p.log.Info().Int("existing", existing).Msg("Species metadata already complete, skipping")
			return 0, nil
		}
	}

	var listing []pokeapi.NamedRef
	for offset := 0; offset < total; offset += p.cfg.SpeciesPageSize {
		page, err := p.species.SpeciesPage(ctx, p.cfg.SpeciesPageSize, offset)
		if err != nil {
			return 0, err
		}
		listing = append(listing, page...)
	}

	ingested := 0
	for i, ref := range listing {
		if err := ctx.Err(); err != nil {
			return ingested, err
		}

		if err := p.ingestOneSpecies(ctx, ref); err != nil {
			p.log.Warn().Err(err).Str("species", ref.Name).Msg("Failed to ingest species")
			continue
		}
		ingested++

		if (i+1)%p.cfg.SpeciesPauseEvery == 0 {
			time.Sleep(p.cfg.SpeciesPause())
		}
	}

	p.log.Info().Int("ingested", ingested).Msg("Pokemon species ingested")
	return ingested, nil
}

func (p *Pipeline) ingestOneSpecies(ctx context.Context, ref pokeapi.NamedRef) error {
	sp, err := p.species.SpeciesByURL(ctx, ref.URL)
	if err != nil {
		return err
	}

	row := store.Species{
		PokedexNumber: sp.ID,
		Name:          sp.Name,
		Color:         sp.ColorName(),
		Shape:         sp.ShapeName(),
		Genus:         sp.EnglishGenus(),
	}

	if entry, ok := pokedex.Lookup(sp.ID); ok {
		row.Region = sql.NullString{String: entry.Region, Valid: true}
		row.Generation = sql.NullInt32{Int32: int32(entry.Generation), Valid: true}
	}

	// Best effort; species without a wild encounter keep an empty string.
	area, err := p.species.FirstEncounterArea(ctx, sp.ID)
	if err != nil {
		p.log.Debug().Err(err).Str("species", sp.Name).Msg("No encounter location")
		area = ""
	}
	row.EncounterLocation = humanizeLocation(area)

	row.EvolutionChain = p.evolutionChain(ctx, sp.ChainURL(), sp.Name)

	if err := p.store.UpsertSpecies(row); err != nil {
		return err
	}
	p.metrics.RecordSpeciesUpserted()
	return nil
}

// evolutionChain resolves the flattened chain for a species, going
// through the per-run cache keyed by chain URL. A species without a
// chain resource gets a single-element list of its own name.
func (p *Pipeline) evolutionChain(ctx context.Context, chainURL, speciesName string) []string {
	if chainURL == "" {
		return []string{speciesName}
	}
	if names, ok := p.chainCache[chainURL]; ok {
		return names
	}

	var names []string
	root, err := p.species.EvolutionChain(ctx, chainURL)
	if err != nil {
		p.log.Debug().Err(err).Str("chain_url", chainURL).Msg("Evolution chain fetch failed")
		names = []string{}
	} else {
		names = flattenChain(root)
	}
	p.chainCache[chainURL] = names
	return names
}

// flattenChain lists the chain tree in pre-order: each form before its
// evolutions, branches in listing order. Children are pushed onto the
// work list in reverse so the first branch pops first.
func flattenChain(root pokeapi.ChainLink) []string {
	var names []string
	stack := []pokeapi.ChainLink{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		names = append(names, node.Species.Name)
		for i := len(node.EvolvesTo) - 1; i >= 0; i-- {
			stack = append(stack, node.EvolvesTo[i])
		}
	}
	return names
}

// humanizeLocation turns a location-area slug into a display string:
// hyphens become spaces and every word is title-cased.
func humanizeLocation(slug string) string {
	if slug == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(slug, "-", " "))
}
