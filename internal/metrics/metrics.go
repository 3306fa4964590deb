package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proxyharvest/internal/shared/logger"
)

// Probe outcomes used as the "outcome" label.
const (
	OutcomeReachable = "reachable"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

var (
	ProxiesDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxyharvest_proxies_discovered_total",
		Help: "Proxies parsed from listing pages and forwarded to the queue",
	}, []string{"source"})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxyharvest_fetch_errors_total",
		Help: "Listing pages that could not be fetched",
	}, []string{"source"})

	Probes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxyharvest_probes_total",
		Help: "Probe requests issued through candidate proxies, by outcome",
	}, []string{"outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proxyharvest_queue_depth",
		Help: "Proxies waiting in the queue between fetchers and the prober",
	})
)

// StartServer serves /metrics on port in the background. It returns nil when port is 0.
func StartServer(port int) *http.Server {
	if port <= 0 {
		return nil
	}
	l := logger.WithComponent("Harvest/Metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		// metrics failing must not stop the pipeline
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Int("port", port).Msg("Metrics server stopped.")
		}
	}()
	l.Info().Int("port", port).Msg("Metrics server listening.")
	return srv
}

// Shutdown stops a server returned by StartServer. A nil server is ignored.
func Shutdown(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
