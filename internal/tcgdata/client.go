// Package tcgdata fetches the raw set catalog and the per-set card file
// listing from the PokemonTCG/pokemon-tcg-data GitHub repository.
package tcgdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/CmdrKerfy/tropius-maximus/internal/metrics"
)

// Default endpoints in the pokemon-tcg-data repository.
const (
	DefaultSetsURL     = "https://raw.githubusercontent.com/PokemonTCG/pokemon-tcg-data/master/sets/en.json"
	DefaultSetFilesURL = "https://api.github.com/repos/PokemonTCG/pokemon-tcg-data/contents/cards/en"
)

const metricsSource = "tcgdata"

// Set is one set record from the raw catalog.
type Set struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Series       string `json:"series"`
	PrintedTotal int    `json:"printedTotal"`
	Total        int    `json:"total"`
	ReleaseDate  string `json:"releaseDate"`
	Images       struct {
		Symbol string `json:"symbol"`
		Logo   string `json:"logo"`
	} `json:"images"`
}

// Client fetches catalog data over HTTP. Failures on this client are
// never retried; the catalog is a prerequisite and errors propagate.
type Client struct {
	setsURL     string
	setFilesURL string
	httpClient  *http.Client
	limiter     *rate.Limiter
	metrics     *metrics.Metrics
	log         zerolog.Logger
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

// NewClient constructs a catalog client for the given endpoints. Empty
// URLs fall back to the public repository defaults.
func NewClient(setsURL, setFilesURL string, opts ...Option) *Client {
	c := &Client{
		setsURL:     setsURL,
		setFilesURL: setFilesURL,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		log:         zerolog.Nop(),
	}
	if c.setsURL == "" {
		c.setsURL = DefaultSetsURL
	}
	if c.setFilesURL == "" {
		c.setFilesURL = DefaultSetFilesURL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sets fetches the full raw set catalog.
func (c *Client) Sets(ctx context.Context) ([]Set, error) {
	var sets []Set
	if err := c.getJSON(ctx, c.setsURL, &sets); err != nil {
		return nil, fmt.Errorf("failed to fetch set catalog: %w", err)
	}
	return sets, nil
}

// SetIDs enumerates the known set ids from the card file listing.
// Entries not ending in .json are ignored.
func (c *Client) SetIDs(ctx context.Context) ([]string, error) {
	var files []struct {
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, c.setFilesURL, &files); err != nil {
		return nil, fmt.Errorf("failed to list card files: %w", err)
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		if strings.HasSuffix(f.Name, ".json") {
			ids = append(ids, strings.TrimSuffix(f.Name, ".json"))
		}
	}
	return ids, nil
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
	c.log.Debug().Str("url", url).Msg("Fetching catalog data")

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
