package tcgio

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestCardsBySetPaginates(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		if got := r.URL.Query().Get("q"); got != "set.id:sv1" {
			t.Errorf("q = %q, want set.id:sv1", got)
		}
		if got := r.URL.Query().Get("pageSize"); got != "2" {
			t.Errorf("pageSize = %q, want 2", got)
		}

		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"data":[
				{"id":"sv1-1","name":"Sprigatito","supertype":"Pokemon","subtypes":["Basic"],
				 "hp":"70","types":["Grass"],"rarity":"Common","number":"1",
				 "images":{"small":"s1.png","large":"l1.png"},"tcgplayer":{"url":"x"}},
				{"id":"sv1-2","name":"Floragato","evolvesFrom":"Sprigatito","tcgplayer":null}
			],"totalCount":3}`)
		case "2":
			fmt.Fprint(w, `{"data":[{"id":"sv1-3","name":"Meowscarada"}],"totalCount":3}`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
			fmt.Fprint(w, `{"data":[],"totalCount":3}`)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithPageSize(2))
	cards, err := c.CardsBySet(context.Background(), "sv1")
	if err != nil {
		t.Fatalf("CardsBySet: %v", err)
	}

	if len(cards) != 3 {
		t.Fatalf("got %d cards, want 3", len(cards))
	}
	if requests.Load() != 2 {
		t.Errorf("made %d requests, want 2", requests.Load())
	}

	first := cards[0]
	if first.ID != "sv1-1" || first.Name != "Sprigatito" || first.HP != "70" {
		t.Errorf("first card = %+v", first)
	}
	if len(first.Types) != 1 || first.Types[0] != "Grass" {
		t.Errorf("first card types = %v", first.Types)
	}
	if first.Images.Small != "s1.png" {
		t.Errorf("first card image = %q", first.Images.Small)
	}
	if len(first.Raw) == 0 || !strings.Contains(string(first.Raw), `"sv1-1"`) {
		t.Error("raw record not preserved")
	}

	// Present pricing comes through verbatim, JSON null as "null",
	// absent as nil.
	if string(first.TCGPlayer) != `{"url":"x"}` {
		t.Errorf("tcgplayer = %q", first.TCGPlayer)
	}
	if string(cards[1].TCGPlayer) != "null" {
		t.Errorf("null tcgplayer = %q", cards[1].TCGPlayer)
	}
	if cards[2].TCGPlayer != nil {
		t.Errorf("absent tcgplayer = %q", cards[2].TCGPlayer)
	}
}

func TestCardsBySetStopsOnShortPage(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		// Claims many more cards than it returns.
		fmt.Fprint(w, `{"data":[{"id":"sv1-1"}],"totalCount":500}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithPageSize(2))
	cards, err := c.CardsBySet(context.Background(), "sv1")
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 1 {
		t.Errorf("got %d cards, want 1", len(cards))
	}
	if requests.Load() != 1 {
		t.Errorf("made %d requests, want 1 (short page ends pagination)", requests.Load())
	}
}

func TestAPIKeyHeader(t *testing.T) {
	var gotKey atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("X-Api-Key"))
		fmt.Fprint(w, `{"data":[],"totalCount":0}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithAPIKey("secret-key"))
	if _, err := c.CardsBySet(context.Background(), "sv1"); err != nil {
		t.Fatal(err)
	}
	if gotKey.Load() != "secret-key" {
		t.Errorf("X-Api-Key = %q, want secret-key", gotKey.Load())
	}

	anon := NewClient(srv.URL)
	if _, err := anon.CardsBySet(context.Background(), "sv1"); err != nil {
		t.Fatal(err)
	}
	if gotKey.Load() != "" {
		t.Errorf("anonymous client sent X-Api-Key %q", gotKey.Load())
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"sv1-1"}],"totalCount":1}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(3, time.Millisecond))
	cards, err := c.CardsBySet(context.Background(), "sv1")
	if err != nil {
		t.Fatalf("CardsBySet after retries: %v", err)
	}
	if len(cards) != 1 {
		t.Errorf("got %d cards, want 1", len(cards))
	}
	if requests.Load() != 3 {
		t.Errorf("made %d requests, want 3", requests.Load())
	}
}

func TestRetryExhaustion(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "no luck", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(3, time.Millisecond))
	_, err := c.CardsBySet(context.Background(), "sv1")
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error %q does not mention attempt count", err)
	}
	if requests.Load() != 3 {
		t.Errorf("made %d requests, want exactly 3", requests.Load())
	}
}
