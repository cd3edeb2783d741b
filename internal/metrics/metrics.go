package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ctiflow/internal/logger"
)

var (
	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ctiflow",
		Name:      "events_processed_total",
		Help:      "Number of input events processed across runs.",
	})

	EventsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ctiflow",
		Name:      "events_skipped_total",
		Help:      "Number of input records skipped as malformed or incomplete.",
	})

	IndicatorsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctiflow",
		Name:      "indicators_extracted_total",
		Help:      "Number of indicators extracted, by IOC type.",
	}, []string{"ioc_type"})

	IndicatorsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ctiflow",
		Name:      "indicators_suppressed_total",
		Help:      "Number of allowlisted indicators retained at zero confidence.",
	})

	CampaignsFormed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ctiflow",
		Name:      "campaigns_formed",
		Help:      "Number of campaigns formed in the most recent run.",
	})

	EventsScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctiflow",
		Name:      "events_scored_total",
		Help:      "Number of events scored, by severity label.",
	}, []string{"severity"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ctiflow",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of pipeline runs.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Metrics listener started: %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Metrics listener failed: %v", err)
		}
	}()
}
