package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/grantex/internal/oauth"
)

// NewRouter arma el router del servidor: token endpoint, health y métricas.
func NewRouter(engine *oauth.Engine, registry prometheus.Registerer) http.Handler {
	tokens := NewTokenController(engine)
	metricsHandler := RegisterMetrics(registry)

	r := chi.NewRouter()
	r.Use(WithRequestID)
	r.Use(WithLogging)

	r.Post("/oauth2/token", tokens.Token)
	r.Handle("/metrics", metricsHandler)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
