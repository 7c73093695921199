// Package metrics provides optional Prometheus metrics for the pipeline.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // e.g., ":9090"
}

// ApplyDefaults sets default values for metrics config.
func (c *Config) ApplyDefaults() {
	if c.Address == "" {
		c.Address = ":9090"
	}
}

// Metrics holds all pipeline metrics. Counters are registered only when
// metrics are enabled; the record helpers are safe to call either way.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPRetries  *prometheus.CounterVec

	SetsUpserted    prometheus.Counter
	CardsUpserted   prometheus.Counter
	SpeciesUpserted prometheus.Counter
	SetsSkipped     prometheus.Counter

	ExportedRows  *prometheus.CounterVec
	ExportedBytes *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
	address  string
	enabled  bool
	log      zerolog.Logger
}

// New creates a new metrics instance.
func New(cfg Config, log zerolog.Logger) *Metrics {
	cfg.ApplyDefaults()

	m := &Metrics{
		enabled:  cfg.Enabled,
		address:  cfg.Address,
		registry: prometheus.NewRegistry(),
		log:      log,
	}

	if !cfg.Enabled {
		return m
	}

	m.HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tropius",
			Name:      "http_requests_total",
			Help:      "Total upstream HTTP requests by source",
		},
		[]string{"source"},
	)

	m.HTTPRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tropius",
			Name:      "http_retries_total",
			Help:      "Total retried upstream HTTP requests by source",
		},
		[]string{"source"},
	)

	m.SetsUpserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tropius",
			Name:      "sets_upserted_total",
			Help:      "Total set rows upserted",
		},
	)

	m.CardsUpserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tropius",
			Name:      "cards_upserted_total",
			Help:      "Total card rows upserted",
		},
	)

	m.SpeciesUpserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tropius",
			Name:      "species_upserted_total",
			Help:      "Total species metadata rows upserted",
		},
	)

	m.SetsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tropius",
			Name:      "sets_skipped_total",
			Help:      "Total sets skipped by the resume check",
		},
	)

	m.ExportedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tropius",
			Name:      "exported_rows_total",
			Help:      "Total rows exported to Parquet by table",
		},
		[]string{"table"},
	)

	m.ExportedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tropius",
			Name:      "exported_bytes_total",
			Help:      "Total Parquet bytes written by table",
		},
		[]string{"table"},
	)

	m.registry.MustRegister(
		m.HTTPRequests,
		m.HTTPRetries,
		m.SetsUpserted,
		m.CardsUpserted,
		m.SpeciesUpserted,
		m.SetsSkipped,
		m.ExportedRows,
		m.ExportedBytes,
	)

	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IsEnabled returns true if metrics are enabled.
func (m *Metrics) IsEnabled() bool {
	return m.enabled
}

// StartServer starts the metrics HTTP server in the background. No-op
// when metrics are disabled.
func (m *Metrics) StartServer() {
	if !m.enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	m.server = &http.Server{Addr: m.address, Handler: mux}
	m.log.Info().Str("address", m.address).Msg("Starting metrics server")

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Shutdown stops the metrics server if one is running.
func (m *Metrics) Shutdown(ctx context.Context) {
	if m.server == nil {
		return
	}
	if err := m.server.Shutdown(ctx); err != nil {
		m.log.Warn().Err(err).Msg("Metrics server shutdown failed")
	}
}

// Helper methods for common operations

// RecordRequest increments the request counter for an upstream source.
func (m *Metrics) RecordRequest(source string) {
	if m.enabled && m.HTTPRequests != nil {
		m.HTTPRequests.WithLabelValues(source).Inc()
	}
}

// RecordRetry increments the retry counter for an upstream source.
func (m *Metrics) RecordRetry(source string) {
	if m.enabled && m.HTTPRetries != nil {
		m.HTTPRetries.WithLabelValues(source).Inc()
	}
}

// RecordSetUpserted increments the set counter.
func (m *Metrics) RecordSetUpserted() {
	if m.enabled && m.SetsUpserted != nil {
		m.SetsUpserted.Inc()
	}
}

// RecordCardsUpserted adds to the card counter.
func (m *Metrics) RecordCardsUpserted(count int) {
	if m.enabled && m.CardsUpserted != nil {
		m.CardsUpserted.Add(float64(count))
	}
}

// RecordSpeciesUpserted increments the species counter.
func (m *Metrics) RecordSpeciesUpserted() {
	if m.enabled && m.SpeciesUpserted != nil {
		m.SpeciesUpserted.Inc()
	}
}

// RecordSetSkipped increments the skipped-set counter.
func (m *Metrics) RecordSetSkipped() {
	if m.enabled && m.SetsSkipped != nil {
		m.SetsSkipped.Inc()
	}
}

// RecordExport records a completed table export.
func (m *Metrics) RecordExport(table string, rows, bytes int64) {
	if m.enabled && m.ExportedRows != nil {
		m.ExportedRows.WithLabelValues(table).Add(float64(rows))
	}
	if m.enabled && m.ExportedBytes != nil {
		m.ExportedBytes.WithLabelValues(table).Add(float64(bytes))
	}
}
