package httptransport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"oai-edge/internal/platform/middleware"
)

// HealthChecker reports whether one dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRouter wires the public endpoints: the OAI-PMH surface, liveness and
// prometheus metrics.
func NewRouter(h *Handler, checks map[string]HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Compress(5, "text/xml"))

	r.Get("/oai", h.HandleOAI)
	r.Post("/oai", h.HandleOAI)
	r.Get("/oai/{apiKeyPath}", h.HandleOAI)
	r.Post("/oai/{apiKeyPath}", h.HandleOAI)

	r.Get("/healthz", healthHandler(checks))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check.Health(ctx); err != nil {
				http.Error(w, fmt.Sprintf("%s: %v", name, err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
