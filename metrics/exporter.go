package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	x11 "github.com/qlentz/x11"
)

// Exporter bundles a registry with the collectors registered into it and
// serves them over HTTP.
type Exporter struct {
	registry *prometheus.Registry
}

// NewExporter creates an exporter with an empty registry.
func NewExporter() *Exporter {
	return &Exporter{registry: prometheus.NewRegistry()}
}

// RegisterConn adds a connection's collector. labels must differ between
// connections registered with the same exporter.
func (e *Exporter) RegisterConn(conn *x11.Conn, labels prometheus.Labels) error {
	return e.registry.Register(NewConnCollector(conn, labels))
}

// RegisterPool adds a pool's collector.
func (e *Exporter) RegisterPool(pool *x11.Pool) error {
	return e.registry.Register(NewPoolCollector(pool))
}

// Registry returns the underlying registry for custom metrics.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ListenAndServe serves /metrics on addr. It blocks.
func (e *Exporter) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	return http.ListenAndServe(addr, mux)
}
