package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	sdk "github.com/project-ardeck/ardeck-plugin-sdk"
)

// newMetricsRouter serves /metrics from reg and /healthz, which reports 200
// only while the studio session is confirmed.
func newMetricsRouter(reg *prometheus.Registry, state func() sdk.State) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s := state()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if s != sdk.StateConnected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write([]byte(s))
	})
	return r
}
