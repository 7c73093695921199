// Package store persists cards, sets and species metadata in a local
// DuckDB database file and exports tables to Parquet.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"
)

// Store wraps the DuckDB handle used by one ingest or export run.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (or creates) the database file at path, creating parent
// directories as needed.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	s, err := open(path, log)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("path", path).Msg("Opened DuckDB database")
	return s, nil
}

// OpenReadOnly opens an existing database file without write access,
// for the export and stats paths.
func OpenReadOnly(path string, log zerolog.Logger) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s, err := open(path+"?access_mode=read_only", log)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("path", path).Msg("Opened DuckDB database read-only")
	return s, nil
}

func open(dsn string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB database: %w", err)
	}

	// DuckDB doesn't handle concurrent writes well
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to DuckDB: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cards (
	id              VARCHAR PRIMARY KEY,
	name            VARCHAR,
	supertype       VARCHAR,
	subtypes        VARCHAR,
	hp              VARCHAR,
	types           VARCHAR,
	evolves_from    VARCHAR,
	rarity          VARCHAR,
	artist          VARCHAR,
	set_id          VARCHAR,
	set_name        VARCHAR,
	set_series      VARCHAR,
	number          VARCHAR,
	regulation_mark VARCHAR,
	image_small     VARCHAR,
	image_large     VARCHAR,
	raw_data        JSON,
	prices          JSON
);

CREATE TABLE IF NOT EXISTS sets (
	id            VARCHAR PRIMARY KEY,
	name          VARCHAR,
	series        VARCHAR,
	printed_total INTEGER,
	total         INTEGER,
	release_date  VARCHAR,
	symbol_url    VARCHAR,
	logo_url      VARCHAR
);

CREATE TABLE IF NOT EXISTS pokemon_metadata (
	pokedex_number     INTEGER PRIMARY KEY,
	name               VARCHAR,
	region             VARCHAR,
	generation         INTEGER,
	color              VARCHAR,
	shape              VARCHAR,
	genus              VARCHAR,
	encounter_location VARCHAR,
	evolution_chain    VARCHAR
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	run_id           VARCHAR PRIMARY KEY,
	started_at       TIMESTAMP,
	completed_at     TIMESTAMP,
	sets_fetched     INTEGER,
	sets_skipped     INTEGER,
	cards_ingested   INTEGER,
	species_ingested INTEGER,
	status           VARCHAR,
	error            VARCHAR
);
`

// InitSchema creates all tables if they don't already exist. Safe to
// call on an already-initialized database.
func (s *Store) InitSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Set is one card set from the raw catalog.
type Set struct {
	ID           string
	Name         string
	Series       string
	PrintedTotal int
	Total        int
	ReleaseDate  string
	SymbolURL    string
	LogoURL      string
}

// Card is one card row. RawData holds the original API record verbatim.
// Prices is nil when neither pricing provider reported data, which
// stores SQL NULL.
type Card struct {
	ID             string
	Name           string
	Supertype      string
	Subtypes       []string
	HP             string
	Types          []string
	EvolvesFrom    string
	Rarity         string
	Artist         string
	SetID          string
	SetName        string
	SetSeries      string
	Number         string
	RegulationMark string
	ImageSmall     string
	ImageLarge     string
	RawData        json.RawMessage
	Prices         json.RawMessage
}

// Species is one species metadata row. Region and Generation are null
// for numbers beyond the known Pokedex ranges. EvolutionChain is stored
// as a JSON array of species names in chain order.
type Species struct {
	PokedexNumber     int
	Name              string
	Region            sql.NullString
	Generation        sql.NullInt32
	Color             string
	Shape             string
	Genus             string
	EncounterLocation string
	EvolutionChain    []string
}

// UpsertSet inserts or wholesale-replaces a set row.
func (s *Store) UpsertSet(set Set) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sets
			(id, name, series, printed_total, total, release_date, symbol_url, logo_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		set.ID, set.Name, set.Series, set.PrintedTotal, set.Total,
		set.ReleaseDate, set.SymbolURL, set.LogoURL,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert set %s: %w", set.ID, err)
	}
	return nil
}

// UpsertCard inserts or wholesale-replaces a card row.
func (s *Store) UpsertCard(card Card) error {
	subtypes, err := marshalNames(card.Subtypes)
	if err != nil {
		return fmt.Errorf("failed to encode subtypes for card %s: %w", card.ID, err)
	}
	types, err := marshalNames(card.Types)
	if err != nil {
		return fmt.Errorf("failed to encode types for card %s: %w", card.ID, err)
	}

	var prices interface{}
	if len(card.Prices) > 0 {
		prices = string(card.Prices)
	}
	var rawData interface{}
	if len(card.RawData) > 0 {
		rawData = string(card.RawData)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO cards
			(id, name, supertype, subtypes, hp, types, evolves_from,
			 rarity, artist, set_id, set_name, set_series, number,
			 regulation_mark, image_small, image_large, raw_data, prices)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		card.ID, card.Name, card.Supertype, subtypes, card.HP, types,
		card.EvolvesFrom, card.Rarity, card.Artist, card.SetID, card.SetName,
		card.SetSeries, card.Number, card.RegulationMark, card.ImageSmall,
		card.ImageLarge, rawData, prices,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert card %s: %w", card.ID, err)
	}
	return nil
}

// UpsertSpecies inserts or wholesale-replaces a species metadata row.
func (s *Store) UpsertSpecies(sp Species) error {
	chain, err := marshalNames(sp.EvolutionChain)
	if err != nil {
		return fmt.Errorf("failed to encode evolution chain for %s: %w", sp.Name, err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO pokemon_metadata
			(pokedex_number, name, region, generation, color, shape,
			 genus, encounter_location, evolution_chain)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.PokedexNumber, sp.Name, sp.Region, sp.Generation, sp.Color,
		sp.Shape, sp.Genus, sp.EncounterLocation, chain,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert species %s: %w", sp.Name, err)
	}
	return nil
}

// marshalNames serializes a name list to JSON, treating nil as empty.
func marshalNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CardCountBySet returns how many cards are stored for a set.
func (s *Store) CardCountBySet(setID string) (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cards WHERE set_id = ?", setID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cards for set %s: %w", setID, err)
	}
	return count, nil
}

// SpeciesCount returns how many species metadata rows are stored.
func (s *Store) SpeciesCount() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM pokemon_metadata").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count species: %w", err)
	}
	return count, nil
}

// TableCount returns the row count of a table. The table name is
// interpolated, so callers pass fixed identifiers only.
func (s *Store) TableCount(table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := s.db.QueryRow(query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

// CopyToParquet writes the result of query to path as ZSTD-compressed
// Parquet.
func (s *Store) CopyToParquet(query, path string) error {
	copySQL := fmt.Sprintf(
		"COPY (%s) TO '%s' (FORMAT PARQUET, COMPRESSION ZSTD)",
		query, strings.ReplaceAll(path, "'", "''"),
	)
	if _, err := s.db.Exec(copySQL); err != nil {
		return fmt.Errorf("failed to export to %s: %w", path, err)
	}
	return nil
}
