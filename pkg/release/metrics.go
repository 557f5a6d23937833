package release

import (
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	forgemetrics "github.com/nexusops/forge/pkg/metrics"
)

var (
	// Steps range from sub-second manifest edits to multi-minute
	// rollout watches.
	stepDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "forge",
		Subsystem: "release",
		Name:      "step_duration_seconds",
		Help:      "Duration of one pipeline step, in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{forgemetrics.LabelPipeline, forgemetrics.LabelStep, forgemetrics.LabelSuccess})

	runDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "forge",
		Subsystem: "release",
		Name:      "run_duration_seconds",
		Help:      "Duration of one pipeline run, in seconds.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
	}, []string{forgemetrics.LabelPipeline, forgemetrics.LabelSuccess})
)

func ObserveStep(pipeline, step string, success bool, d time.Duration) {
	stepDuration.With(
		forgemetrics.LabelPipeline, pipeline,
		forgemetrics.LabelStep, step,
		forgemetrics.LabelSuccess, fmt.Sprint(success),
	).Observe(d.Seconds())
}

func ObserveRun(pipeline string, success bool, d time.Duration) {
	runDuration.With(
		forgemetrics.LabelPipeline, pipeline,
		forgemetrics.LabelSuccess, fmt.Sprint(success),
	).Observe(d.Seconds())
}
