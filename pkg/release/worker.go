package release

import (
	"context"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ProductSpec is a product release: independent deploy pipelines, one
// per service × environment, run with bounded concurrency. One
// service's failure does not cancel its siblings unless FailFast is
// set.
type ProductSpec struct {
	Product string
	Deploys []DeploySpec
	// Concurrency bounds the worker pool; zero means the
	// orchestrator's configured default.
	Concurrency int
	FailFast    bool
}

// ProductRelease runs the spec's deploys through a bounded worker
// pool. The returned slice is ordered like spec.Deploys, with a run
// for every deploy that started (cancelled siblings under fail-fast
// may be nil). The error summarizes failures; per-run detail stays on
// the runs.
func (o *Orchestrator) ProductRelease(ctx context.Context, spec ProductSpec) ([]*Run, error) {
	limit := spec.Concurrency
	if limit <= 0 {
		limit = o.policy.Concurrency
	}
	logger := log.With(o.logger, "pipeline", "product-release", "product", spec.Product)
	logger.Log("state", "started", "deploys", len(spec.Deploys), "concurrency", limit, "failFast", spec.FailFast)

	runs := make([]*Run, len(spec.Deploys))
	var mu sync.Mutex
	var failed []string

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for i, deploy := range spec.Deploys {
		i, deploy := i, deploy
		group.Go(func() error {
			runCtx := ctx
			if spec.FailFast {
				runCtx = groupCtx
			}
			run, err := o.Deploy(runCtx, deploy)
			mu.Lock()
			runs[i] = run
			if err != nil {
				failed = append(failed, deploy.Target.ID())
			}
			mu.Unlock()
			if err != nil && spec.FailFast {
				// Poison the group context so siblings stop; their
				// in-flight steps see the cancellation.
				return errors.Wrapf(err, "deploying %s", deploy.Target.ID())
			}
			return nil
		})
	}

	groupErr := group.Wait()

	mu.Lock()
	defer mu.Unlock()
	switch {
	case groupErr != nil:
		logger.Log("state", "failed", "failed", len(failed))
		return runs, groupErr
	case len(failed) > 0:
		logger.Log("state", "failed", "failed", len(failed))
		return runs, errors.Errorf("%d of %d deploys failed: %v", len(failed), len(spec.Deploys), failed)
	default:
		logger.Log("state", "succeeded")
		return runs, nil
	}
}
