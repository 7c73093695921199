package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/CmdrKerfy/tropius-maximus/internal/store"
	"github.com/CmdrKerfy/tropius-maximus/internal/tcgdata"
	"github.com/CmdrKerfy/tropius-maximus/internal/tcgio"
)

type cardsResult struct {
	ingested int
	fetched  int
	skipped  int
}

// ingestCards downloads cards set by set. Sets whose stored card count
// already covers the catalog total are skipped unless forced; a set
// whose download fails is logged and left for the next run. Between
// successfully fetched sets the pipeline pauses briefly to stay polite
// to the API.
func (p *Pipeline) ingestCards(ctx context.Context, lookup map[string]tcgdata.Set, setID string, force bool) (cardsResult, error) {
	var result cardsResult

	var setIDs []string
	if setID != "" {
		setIDs = []string{setID}
		p.log.Info().Str("set_id", setID).Msg("Restricting ingestion to one set")
	} else {
		ids, err := p.catalog.SetIDs(ctx)
		if err != nil {
			return result, err
		}
		setIDs = ids
		p.log.Info().Int("count", len(setIDs)).Msg("Found sets to download")
	}

	for i, sid := range setIDs {
		if !force {
			existing, err := p.store.CardCountBySet(sid)
			if err != nil {
				return result, err
			}
			expected := lookup[sid].Total
			if existing > 0 && (expected == 0 || existing >= expected) {
				p.log.Info().
					Str("set_id", sid).
					Int("existing", existing).
					Int("progress", i+1).
					Int("total_sets", len(setIDs)).
					Msg("Set already complete, skipping")
				result.skipped++
				p.metrics.RecordSetSkipped()
				continue
			}
		}

		cards, err := p.cards.CardsBySet(ctx, sid)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			p.log.Error().Err(err).Str("set_id", sid).Msg("Set download failed, moving on")
			continue
		}

		info := lookup[sid]
		setName := info.Name
		if setName == "" {
			setName = sid
		}

		for _, card := range cards {
			if err := p.store.UpsertCard(buildCard(card, sid, setName, info.Series)); err != nil {
				return result, err
			}
		}
		result.ingested += len(cards)
		result.fetched++
		p.metrics.RecordCardsUpserted(len(cards))
		p.log.Info().
			Str("set_id", sid).
			Int("cards", len(cards)).
			Int("progress", i+1).
			Int("total_sets", len(setIDs)).
			Msg("Set ingested")

		if i < len(setIDs)-1 {
			time.Sleep(p.cfg.SetDelay())
		}
	}

	return result, nil
}

// buildCard maps an API card onto a store row, resolving the set
// context and the combined pricing document.
func buildCard(card tcgio.Card, setID, setName, setSeries string) store.Card {
	return store.Card{
		ID:             card.ID,
		Name:           card.Name,
		Supertype:      card.Supertype,
		Subtypes:       card.Subtypes,
		HP:             card.HP,
		Types:          card.Types,
		EvolvesFrom:    card.EvolvesFrom,
		Rarity:         card.Rarity,
		Artist:         card.Artist,
		Number:         card.Number,
		SetID:          setID,
		SetName:        setName,
		SetSeries:      setSeries,
		RegulationMark: card.RegulationMark,
		ImageSmall:     card.Images.Small,
		ImageLarge:     card.Images.Large,
		RawData:        card.Raw,
		Prices:         buildPrices(card.TCGPlayer, card.Cardmarket),
	}
}

// buildPrices combines the two provider payloads into one document, or
// returns nil when neither provider reported data.
func buildPrices(tcgplayer, cardmarket json.RawMessage) json.RawMessage {
	if !pricingPresent(tcgplayer) && !pricingPresent(cardmarket) {
		return nil
	}
	doc := struct {
		TCGPlayer  json.RawMessage `json:"tcgplayer"`
		Cardmarket json.RawMessage `json:"cardmarket"`
	}{tcgplayer, cardmarket}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return data
}

// pricingPresent reports whether a provider payload carries data. An
// absent field decodes to a nil RawMessage and an explicit JSON null to
// the literal bytes, and neither counts.
func pricingPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
