package http

import (
	"net/http"

	"github.com/wiki-mailauth/internal/application/auth"
)

// MetricsExporter serves the Prometheus scrape endpoint.
type MetricsExporter interface {
	Handler() http.Handler
}

// Deps holds the application dependencies for the router.
type Deps struct {
	AuthService auth.Service
	// Metrics is optional; /metrics is not mounted without it.
	Metrics MetricsExporter
}
