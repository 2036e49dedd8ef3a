package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels computations that produced a matrix.
	OutcomeSuccess = "success"
	// OutcomeNoData labels computations where no requested table loaded.
	OutcomeNoData = "no_data"
	// OutcomeError labels computations that failed outright.
	OutcomeError = "error"
)

var (
	correlationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gallery",
			Name:      "correlations_total",
			Help:      "Total number of correlation matrix computations, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	correlationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gallery",
			Name:      "correlation_seconds",
			Help:      "Correlation matrix computation latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	tablesMissingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gallery",
			Name:      "tables_missing_total",
			Help:      "Requested factor tables that could not be loaded.",
		},
	)

	historyOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gallery",
			Name:      "history_ops_total",
			Help:      "Correlation history operations, partitioned by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	tableCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gallery",
			Name:      "table_cache_total",
			Help:      "Factor table cache lookups, partitioned by hit or miss.",
		},
		[]string{"result"},
	)
)

// Register attaches gallery collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		correlationsTotal,
		correlationDurationSeconds,
		tablesMissingTotal,
		historyOpsTotal,
		tableCacheTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCorrelation records a computation duration, outcome label and missing-table count.
func ObserveCorrelation(duration time.Duration, outcome string, missing int) {
	switch outcome {
	case OutcomeSuccess, OutcomeNoData, OutcomeError:
	default:
		outcome = OutcomeError
	}
	correlationsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	correlationDurationSeconds.Observe(duration.Seconds())
	if missing > 0 {
		tablesMissingTotal.Add(float64(missing))
	}
}

// ObserveHistory counts a history operation ("list", "save", "delete").
func ObserveHistory(op string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	historyOpsTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveCacheLookup counts a table cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if hit {
		tableCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	tableCacheTotal.WithLabelValues("miss").Inc()
}
