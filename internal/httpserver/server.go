package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bulkmail/internal/observability"
)

type Server struct {
	Mux *mux.Router
}

// New returns a router with request logging and per-route metrics.
func New() *Server {
	r := mux.NewRouter()
	r.Use(Logging, Metrics(observability.APIRequests))
	return &Server{Mux: r}
}

// MetricsHandler serves the default Prometheus registry on its own port.
func MetricsHandler() http.Handler {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	return m
}
