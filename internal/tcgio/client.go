// Package tcgio is a client for the pokemontcg.io card search API, with
// cursor-style pagination and bounded retry.
package tcgio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/CmdrKerfy/tropius-maximus/internal/metrics"
)

// DefaultBaseURL is the public pokemontcg.io API root.
const DefaultBaseURL = "https://api.pokemontcg.io/v2"

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 5 * time.Second
	defaultPageSize   = 250

	metricsSource = "cards_api"
)

// Card is one card record from the search API. Raw preserves the full
// original record for storage. TCGPlayer and Cardmarket carry the
// pricing payloads verbatim; a JSON null decodes to the literal bytes
// "null".
type Card struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Supertype      string   `json:"supertype"`
	Subtypes       []string `json:"subtypes"`
	HP             string   `json:"hp"`
	Types          []string `json:"types"`
	EvolvesFrom    string   `json:"evolvesFrom"`
	Rarity         string   `json:"rarity"`
	Artist         string   `json:"artist"`
	Number         string   `json:"number"`
	RegulationMark string   `json:"regulationMark"`
	Images         struct {
		Small string `json:"small"`
		Large string `json:"large"`
	} `json:"images"`
	TCGPlayer  json.RawMessage `json:"tcgplayer"`
	Cardmarket json.RawMessage `json:"cardmarket"`

	Raw json.RawMessage `json:"-"`
}

type searchResponse struct {
	Data       []json.RawMessage `json:"data"`
	TotalCount int               `json:"totalCount"`
}

// Client queries the card search API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	log        zerolog.Logger
	maxRetries int
	retryDelay time.Duration
	pageSize   int
}

// Option applies a configuration to the client.
type Option func(*Client)

// WithAPIKey sets the X-Api-Key header value. Empty means anonymous.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

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

// WithRetry sets the attempt cap and base delay. Attempt n failing
// waits n times the base delay before the next try.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

// WithPageSize sets the page size for card searches.
func WithPageSize(size int) Option {
	return func(c *Client) { c.pageSize = size }
}

// NewClient constructs a card search client. An empty baseURL falls
// back to the public API.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        zerolog.Nop(),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		pageSize:   defaultPageSize,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CardsBySet fetches every card in a set, page by page, accumulating
// until the count reaches the API-reported total or a page comes back
// short.
func (c *Client) CardsBySet(ctx context.Context, setID string) ([]Card, error) {
	var all []Card
	page := 1

	for {
		cards, totalCount, err := c.cardsPage(ctx, setID, page)
		if err != nil {
			return nil, err
		}
		all = append(all, cards...)

		if len(all) >= totalCount || len(cards) < c.pageSize {
			break
		}
		page++
	}

	return all, nil
}

// cardsPage fetches one page with bounded retry. Transport errors and
// non-2xx statuses both count as failures.
func (c *Client) cardsPage(ctx context.Context, setID string, page int) ([]Card, int, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			if c.metrics != nil {
				c.metrics.RecordRetry(metricsSource)
			}
			time.Sleep(c.retryDelay * time.Duration(attempt-1))
		}

		cards, totalCount, err := c.fetchPage(ctx, setID, page)
		if err == nil {
			return cards, totalCount, nil
		}
		lastErr = err
		c.log.Warn().
			Err(err).
			Str("set_id", setID).
			Int("page", page).
			Int("attempt", attempt).
			Msg("Card page fetch failed")
	}

	return nil, 0, fmt.Errorf("failed to fetch cards for set %s after %d attempts: %w",
		setID, c.maxRetries, lastErr)
}

func (c *Client) fetchPage(ctx context.Context, setID string, page int) ([]Card, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}
	}
	if c.metrics != nil {
		c.metrics.RecordRequest(metricsSource)
	}

	u, err := url.Parse(c.baseURL + "/cards")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build cards URL: %w", err)
	}
	q := u.Query()
	q.Set("q", "set.id:"+setID)
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch cards page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("cards request returned status %d: %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, 0, fmt.Errorf("failed to decode cards response: %w", err)
	}

	cards := make([]Card, 0, len(sr.Data))
	for _, raw := range sr.Data {
		var card Card
		if err := json.Unmarshal(raw, &card); err != nil {
			return nil, 0, fmt.Errorf("failed to decode card record: %w", err)
		}
		card.Raw = raw
		cards = append(cards, card)
	}

	return cards, sr.TotalCount, nil
}
