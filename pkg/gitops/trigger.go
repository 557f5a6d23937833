package gitops

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/nexusops/forge/pkg/config"
	fluxerr "github.com/nexusops/forge/pkg/errors"
	"github.com/nexusops/forge/pkg/resource"
)

// Trigger signals the GitOps controller and waits for it to
// acknowledge a revision. Without the explicit trigger, the
// controller applies on its own interval, which can be minutes; with
// the trigger but without the wait, we would race the rollout watch
// against a controller that has not yet applied anything.
type Trigger struct {
	transport Transport
	policy    config.ReconcilePolicy
	clock     clockwork.Clock
	logger    log.Logger
}

func NewTrigger(transport Transport, policy config.ReconcilePolicy, clock clockwork.Clock, logger log.Logger) *Trigger {
	return &Trigger{
		transport: transport,
		policy:    policy,
		clock:     clock,
		logger:    log.With(logger, "component", "gitops"),
	}
}

// Reconcile asks the controller to resync and polls until the
// controller reports it has applied `revision`, or the timeout
// passes. On timeout the manifest update persists; only this step
// has failed, and the run may be retried.
func (t *Trigger) Reconcile(ctx context.Context, target resource.Target, revision string) (Ack, error) {
	logger := log.With(t.logger, "target", target.ID(), "revision", revision)

	handle, err := t.transport.TriggerReconcile(ctx, target)
	if err != nil {
		return Ack{}, &fluxerr.Error{
			Type: fluxerr.Transport,
			Err:  errors.Wrap(err, "triggering reconciliation"),
			Help: "The controller could not be signalled. Check cluster API availability; this step may be retried.",
		}
	}
	logger.Log("info", "reconciliation triggered", "handle", string(handle))

	start := t.clock.Now()
	deadline := start.Add(t.policy.Timeout)
	for {
		applied, err := t.transport.ReconcileStatus(ctx, handle)
		if err != nil {
			logger.Log("warning", "failed to read reconcile status", "err", err)
		} else if applied == revision {
			waited := t.clock.Since(start)
			logger.Log("info", "revision acknowledged", "waited", waited.String())
			return Ack{Handle: handle, Revision: applied, Waited: waited}, nil
		}

		if !t.clock.Now().Add(t.policy.Interval).Before(deadline) {
			return Ack{}, &fluxerr.Error{
				Type: fluxerr.ReconcileTimeout,
				Err:  fmt.Errorf("controller did not acknowledge %s within %s", revision, t.policy.Timeout),
				Help: "The manifest commit is pushed but the controller has not applied it. The cluster is NOT running the new tag yet; inspect the controller and re-run the reconcile step.",
			}
		}
		select {
		case <-ctx.Done():
			return Ack{}, ctx.Err()
		case <-t.clock.After(t.policy.Interval):
		}
	}
}
