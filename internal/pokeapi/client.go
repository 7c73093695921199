// Package pokeapi is a client for the PokeAPI species, encounter and
// evolution-chain resources.
package pokeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/CmdrKerfy/tropius-maximus/internal/metrics"
)

// DefaultBaseURL is the public PokeAPI root.
const DefaultBaseURL = "https://pokeapi.co/api/v2"

const metricsSource = "pokeapi"

// NamedRef is PokeAPI's standard name/url resource reference.
type NamedRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Genus is one localized genus entry.
type Genus struct {
	Genus    string   `json:"genus"`
	Language NamedRef `json:"language"`
}

// Species is the species detail record. Color and Shape are null for
// some species, and a few species have no evolution chain resource at
// all; the accessor methods resolve those to empty values.
type Species struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	Color          *NamedRef `json:"color"`
	Shape          *NamedRef `json:"shape"`
	Genera         []Genus   `json:"genera"`
	EvolutionChain *struct {
		URL string `json:"url"`
	} `json:"evolution_chain"`
}

// ColorName returns the color name, or empty when absent.
func (s *Species) ColorName() string {
	if s.Color == nil {
		return ""
	}
	return s.Color.Name
}

// ShapeName returns the shape name, or empty when absent.
func (s *Species) ShapeName() string {
	if s.Shape == nil {
		return ""
	}
	return s.Shape.Name
}

// EnglishGenus returns the first genus entry in English, or empty when
// none exists.
func (s *Species) EnglishGenus() string {
	for _, g := range s.Genera {
		if g.Language.Name == "en" {
			return g.Genus
		}
	}
	return ""
}

// ChainURL returns the evolution chain resource URL, or empty when the
// species has none.
func (s *Species) ChainURL() string {
	if s.EvolutionChain == nil {
		return ""
	}
	return s.EvolutionChain.URL
}

// ChainLink is one node of an evolution chain tree. EvolvesTo lists the
// direct evolutions in API order.
type ChainLink struct {
	Species   NamedRef    `json:"species"`
	EvolvesTo []ChainLink `json:"evolves_to"`
}

type speciesList struct {
	Count   int        `json:"count"`
	Results []NamedRef `json:"results"`
}

type encounter struct {
	LocationArea NamedRef `json:"location_area"`
}

type chainResponse struct {
	Chain ChainLink `json:"chain"`
}

// Client queries PokeAPI.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// Option applies a configuration to the client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter sets the rate limiter applied before each request.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient constructs a PokeAPI client. An empty baseURL falls back to
// the public API.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        zerolog.Nop(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SpeciesCount returns the total number of known species.
func (c *Client) SpeciesCount(ctx context.Context) (int, error) {
	var list speciesList
	if err := c.getJSON(ctx, c.baseURL+"/pokemon-species?limit=1", &list); err != nil {
		return 0, fmt.Errorf("failed to fetch species count: %w", err)
	}
	return list.Count, nil
}

// SpeciesPage returns one page of the species listing.
func (c *Client) SpeciesPage(ctx context.Context, limit, offset int) ([]NamedRef, error) {
	url := c.baseURL + "/pokemon-species?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	var list speciesList
	if err := c.getJSON(ctx, url, &list); err != nil {
		return nil, fmt.Errorf("failed to fetch species page at offset %d: %w", offset, err)
	}
	return list.Results, nil
}

// SpeciesByURL fetches one species detail record from its listing URL.
func (c *Client) SpeciesByURL(ctx context.Context, url string) (*Species, error) {
	var sp Species
	if err := c.getJSON(ctx, url, &sp); err != nil {
		return nil, fmt.Errorf("failed to fetch species: %w", err)
	}
	return &sp, nil
}

// FirstEncounterArea returns the raw location area name of the first
// known encounter, or empty when the species has none.
func (c *Client) FirstEncounterArea(ctx context.Context, pokedexNumber int) (string, error) {
	url := c.baseURL + "/pokemon/" + strconv.Itoa(pokedexNumber) + "/encounters"
	var encounters []encounter
	if err := c.getJSON(ctx, url, &encounters); err != nil {
		return "", fmt.Errorf("failed to fetch encounters: %w", err)
	}
	if len(encounters) == 0 {
		return "", nil
	}
	return encounters[0].LocationArea.Name, nil
}

// EvolutionChain fetches the root of an evolution chain tree.
func (c *Client) EvolutionChain(ctx context.Context, url string) (ChainLink, error) {
	var resp chainResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return ChainLink{}, fmt.Errorf("failed to fetch evolution chain: %w", err)
	}
	return resp.Chain, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("failed to wait for rate limiter: %w", err)
		}
	}
	if c.metrics != nil {
		c.metrics.RecordRequest(metricsSource)
	}
	c.log.Debug().Str("url", url).Msg("Fetching species data")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
