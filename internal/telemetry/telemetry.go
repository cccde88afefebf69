// Package telemetry holds the process-wide Prometheus collectors and the
// OpenTelemetry tracer used by the search.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "automl/fitness"

// Trial outcomes, used as the outcome label of TrialsTotal.
const (
	OutcomeEvaluated   = "evaluated"
	OutcomeCached      = "cached"
	OutcomeEmptySubset = "empty_subset"
	OutcomeTooFewBases = "too_few_bases"
	OutcomeFailed      = "failed"
	OutcomeTimeout     = "timeout"
)

var (
	TrialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automl_trials_total",
		Help: "Fitness evaluations by target and outcome.",
	}, []string{"target", "outcome"})

	TrialDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "automl_trial_duration_seconds",
		Help:    "Wall time of evaluated trials, tuning included.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"target", "algorithm"})

	GenerationBestFitness = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "automl_generation_best_fitness",
		Help: "Best fitness of the most recent generation.",
	}, []string{"target"})

	ChampionScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "automl_champion_score",
		Help: "Primary metric of the current champion.",
	}, []string{"target"})
)

func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
