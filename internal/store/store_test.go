package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.duckdb")
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return s
}

func TestInitSchemaIdempotent(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertSet(Set{ID: "sv1", Name: "Scarlet & Violet", Total: 258}); err != nil {
		t.Fatalf("UpsertSet: %v", err)
	}

	// Re-running the initializer must not touch existing data.
	if err := s.InitSchema(); err != nil {
		t.Fatalf("second InitSchema: %v", err)
	}

	count, err := s.TableCount("sets")
	if err != nil {
		t.Fatalf("TableCount: %v", err)
	}
	if count != 1 {
		t.Errorf("sets count after re-init = %d, want 1", count)
	}
}

func TestUpsertSetReplacesWholesale(t *testing.T) {
	s := newTestStore(t)

	first := Set{ID: "base1", Name: "Base", Series: "Base", PrintedTotal: 102, Total: 102, ReleaseDate: "1999/01/09"}
	second := Set{ID: "base1", Name: "Base Set", Series: "Original", PrintedTotal: 102, Total: 102}

	if err := s.UpsertSet(first); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertSet(second); err != nil {
		t.Fatal(err)
	}

	count, err := s.TableCount("sets")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("sets count = %d, want 1", count)
	}

	var name, series, releaseDate string
	err = s.db.QueryRow("SELECT name, series, release_date FROM sets WHERE id = 'base1'").
		Scan(&name, &series, &releaseDate)
	if err != nil {
		t.Fatal(err)
	}
	if name != "Base Set" || series != "Original" {
		t.Errorf("row = (%q, %q), want second upsert's values", name, series)
	}
	if releaseDate != "" {
		t.Errorf("release_date = %q, want empty (wholesale replace, not merge)", releaseDate)
	}
}

func TestUpsertCardDefaults(t *testing.T) {
	s := newTestStore(t)

	card := Card{
		ID:      "sv1-1",
		Name:    "Sprigatito",
		SetID:   "sv1",
		RawData: json.RawMessage(`{"id":"sv1-1","name":"Sprigatito"}`),
	}
	if err := s.UpsertCard(card); err != nil {
		t.Fatalf("UpsertCard: %v", err)
	}

	var subtypes, types string
	var pricesNull bool
	err := s.db.QueryRow(
		"SELECT subtypes, types, prices IS NULL FROM cards WHERE id = 'sv1-1'",
	).Scan(&subtypes, &types, &pricesNull)
	if err != nil {
		t.Fatal(err)
	}

	if subtypes != "[]" {
		t.Errorf("subtypes = %q, want [] for absent list", subtypes)
	}
	if types != "[]" {
		t.Errorf("types = %q, want [] for absent list", types)
	}
	if !pricesNull {
		t.Error("prices should be NULL when no provider reported data")
	}

	var raw string
	if err := s.db.QueryRow("SELECT raw_data::VARCHAR FROM cards WHERE id = 'sv1-1'").Scan(&raw); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("raw_data is not valid JSON: %v", err)
	}
	if decoded["name"] != "Sprigatito" {
		t.Errorf("raw_data name = %v, want Sprigatito", decoded["name"])
	}
}

func TestUpsertCardIdempotence(t *testing.T) {
	s := newTestStore(t)

	first := Card{
		ID:        "sv1-25",
		Name:      "Pikachu",
		Supertype: "Pokemon",
		Subtypes:  []string{"Basic"},
		Types:     []string{"Lightning"},
		Rarity:    "Common",
		SetID:     "sv1",
		RawData:   json.RawMessage(`{"id":"sv1-25"}`),
		Prices:    json.RawMessage(`{"tcgplayer":{"url":"x"},"cardmarket":null}`),
	}
	second := first
	second.Rarity = "Rare"
	second.Prices = nil

	if err := s.UpsertCard(first); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertCard(second); err != nil {
		t.Fatal(err)
	}

	count, err := s.TableCount("cards")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("cards count = %d, want 1", count)
	}

	var rarity string
	var pricesNull bool
	err = s.db.QueryRow("SELECT rarity, prices IS NULL FROM cards WHERE id = 'sv1-25'").
		Scan(&rarity, &pricesNull)
	if err != nil {
		t.Fatal(err)
	}
	if rarity != "Rare" {
		t.Errorf("rarity = %q, want the second upsert's value", rarity)
	}
	if !pricesNull {
		t.Error("prices should be NULL after re-upsert without prices")
	}
}

func TestUpsertSpecies(t *testing.T) {
	s := newTestStore(t)

	known := Species{
		PokedexNumber:     1,
		Name:              "bulbasaur",
		Region:            sql.NullString{String: "Kanto", Valid: true},
		Generation:        sql.NullInt32{Int32: 1, Valid: true},
		Color:             "green",
		Shape:             "quadruped",
		Genus:             "Seed Pokémon",
		EncounterLocation: "Cerulean City Area",
		EvolutionChain:    []string{"bulbasaur", "ivysaur", "venusaur"},
	}
	if err := s.UpsertSpecies(known); err != nil {
		t.Fatalf("UpsertSpecies: %v", err)
	}

	beyond := Species{PokedexNumber: 2000, Name: "future"}
	if err := s.UpsertSpecies(beyond); err != nil {
		t.Fatalf("UpsertSpecies beyond ranges: %v", err)
	}

	var chain string
	if err := s.db.QueryRow("SELECT evolution_chain FROM pokemon_metadata WHERE pokedex_number = 1").Scan(&chain); err != nil {
		t.Fatal(err)
	}
	var names []string
	if err := json.Unmarshal([]byte(chain), &names); err != nil {
		t.Fatalf("evolution_chain is not a JSON list: %v", err)
	}
	if len(names) != 3 || names[0] != "bulbasaur" || names[2] != "venusaur" {
		t.Errorf("evolution chain = %v", names)
	}

	var regionNull, genNull bool
	err := s.db.QueryRow(
		"SELECT region IS NULL, generation IS NULL FROM pokemon_metadata WHERE pokedex_number = 2000",
	).Scan(&regionNull, &genNull)
	if err != nil {
		t.Fatal(err)
	}
	if !regionNull || !genNull {
		t.Error("region and generation should be NULL beyond known ranges")
	}
}

func TestUpsertSpeciesIdempotence(t *testing.T) {
	s := newTestStore(t)

	first := Species{
		PokedexNumber:     25,
		Name:              "pikachu",
		Region:            sql.NullString{String: "Kanto", Valid: true},
		Generation:        sql.NullInt32{Int32: 1, Valid: true},
		Color:             "yellow",
		Shape:             "quadruped",
		Genus:             "Mouse Pokémon",
		EncounterLocation: "Viridian Forest Area",
		EvolutionChain:    []string{"pichu", "pikachu", "raichu"},
	}
	second := first
	second.Color = "orange"
	second.EncounterLocation = "Power Plant Area"
	second.EvolutionChain = []string{"pichu", "pikachu"}

	if err := s.UpsertSpecies(first); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertSpecies(second); err != nil {
		t.Fatal(err)
	}

	count, err := s.TableCount("pokemon_metadata")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("species count = %d, want 1", count)
	}

	var color, location, chain string
	err = s.db.QueryRow(
		"SELECT color, encounter_location, evolution_chain FROM pokemon_metadata WHERE pokedex_number = 25",
	).Scan(&color, &location, &chain)
	if err != nil {
		t.Fatal(err)
	}
	if color != "orange" || location != "Power Plant Area" {
		t.Errorf("row = (%q, %q), want the second upsert's values", color, location)
	}
	var names []string
	if err := json.Unmarshal([]byte(chain), &names); err != nil {
		t.Fatalf("evolution_chain is not a JSON list: %v", err)
	}
	if len(names) != 2 || names[1] != "pikachu" {
		t.Errorf("evolution chain = %v, want the second upsert's chain", names)
	}
}

func TestCounts(t *testing.T) {
	s := newTestStore(t)

	for i := 1; i <= 3; i++ {
		card := Card{ID: fmt.Sprintf("sv1-%d", i), SetID: "sv1", RawData: json.RawMessage(`{}`)}
		if err := s.UpsertCard(card); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.UpsertCard(Card{ID: "sv2-1", SetID: "sv2", RawData: json.RawMessage(`{}`)}); err != nil {
		t.Fatal(err)
	}

	count, err := s.CardCountBySet("sv1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("CardCountBySet(sv1) = %d, want 3", count)
	}

	count, err = s.CardCountBySet("unknown")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("CardCountBySet(unknown) = %d, want 0", count)
	}

	species, err := s.SpeciesCount()
	if err != nil {
		t.Fatal(err)
	}
	if species != 0 {
		t.Errorf("SpeciesCount = %d, want 0", species)
	}
}

func TestRunAudit(t *testing.T) {
	s := newTestStore(t)

	started := time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)
	if err := s.BeginRun("run-1", started); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	runs, err := s.RecentRuns(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].Status != RunStatusRunning {
		t.Errorf("status = %q, want running", runs[0].Status)
	}
	if runs[0].CompletedAt.Valid {
		t.Error("completed_at should be NULL while running")
	}

	finished := Run{
		ID:              "run-1",
		StartedAt:       started,
		CompletedAt:     sql.NullTime{Time: started.Add(10 * time.Minute), Valid: true},
		SetsFetched:     4,
		SetsSkipped:     2,
		CardsIngested:   512,
		SpeciesIngested: 1025,
		Status:          RunStatusCompleted,
	}
	if err := s.FinishRun(finished); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err = s.RecentRuns(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs after finish, want 1", len(runs))
	}
	got := runs[0]
	if got.Status != RunStatusCompleted || got.CardsIngested != 512 || got.SetsSkipped != 2 {
		t.Errorf("finished run = %+v", got)
	}
	if !got.CompletedAt.Valid {
		t.Error("completed_at should be set after finish")
	}
}

func TestCopyToParquet(t *testing.T) {
	s := newTestStore(t)

	for i := 1; i <= 5; i++ {
		if err := s.UpsertSet(Set{ID: fmt.Sprintf("s%d", i), Name: fmt.Sprintf("Set %d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	out := filepath.Join(t.TempDir(), "sets.parquet")
	if err := s.CopyToParquet("SELECT * FROM sets", out); err != nil {
		t.Fatalf("CopyToParquet: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("output file is empty")
	}

	// DuckDB can read the file back directly.
	var rows int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM '%s'", out)
	if err := s.db.QueryRow(query).Scan(&rows); err != nil {
		t.Fatalf("failed to read parquet back: %v", err)
	}
	if rows != 5 {
		t.Errorf("parquet row count = %d, want 5", rows)
	}
}

func TestOpenReadOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ro.duckdb")

	rw, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := rw.InitSchema(); err != nil {
		t.Fatal(err)
	}
	if err := rw.UpsertSet(Set{ID: "sv1", Name: "Scarlet & Violet"}); err != nil {
		t.Fatal(err)
	}
	if err := rw.Close(); err != nil {
		t.Fatal(err)
	}

	ro, err := OpenReadOnly(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer ro.Close()

	count, err := ro.TableCount("sets")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("sets count = %d, want 1", count)
	}

	if err := ro.UpsertSet(Set{ID: "sv2"}); err == nil {
		t.Error("write through a read-only store should fail")
	}

	if _, err := OpenReadOnly(filepath.Join(dir, "missing.duckdb"), zerolog.Nop()); err == nil {
		t.Error("OpenReadOnly on a missing file should fail")
	}
}

func TestOpenLogsDatabasePath(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logged.duckdb")

	s, err := Open(path, zerolog.New(&buf))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), path) {
		t.Errorf("open log does not mention the database path: %s", buf.String())
	}

	buf.Reset()
	ro, err := OpenReadOnly(path, zerolog.New(&buf))
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer ro.Close()
	if !strings.Contains(buf.String(), "read-only") {
		t.Errorf("read-only open log missing: %s", buf.String())
	}
}
