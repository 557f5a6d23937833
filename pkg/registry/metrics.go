package registry

import (
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	forgemetrics "github.com/nexusops/forge/pkg/metrics"
)

var (
	// Pushes are dominated by blob upload; failures tend to be fast.
	pushDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "forge",
		Subsystem: "registry",
		Name:      "push_duration_seconds",
		Help:      "Duration of a confirmed tag push, in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{forgemetrics.LabelSuccess, forgemetrics.LabelTagKind})
)

func ObservePush(start, end time.Time, success bool, tagKind string) {
	pushDuration.With(
		forgemetrics.LabelSuccess, fmt.Sprint(success),
		forgemetrics.LabelTagKind, tagKind,
	).Observe(end.Sub(start).Seconds())
}
