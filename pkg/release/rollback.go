package release

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	fluxerr "github.com/nexusops/forge/pkg/errors"
	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/manifest"
	"github.com/nexusops/forge/pkg/resource"
)

// Plan is a rollback decision: which target to revert, and to what.
// Plans are constructed only from a recorded manifest update; the
// engine trusts the previous-tag chain and never re-derives history
// from the registry.
type Plan struct {
	Target     resource.Target
	RestoreTag image.Tag
	Reason     string
}

// PlanFromUpdate builds a rollback plan from the manifest update that
// would be reverted. Updates that made no commit, or that carry no
// usable previous tag, yield nothing to roll back.
func PlanFromUpdate(u manifest.Update, reason string) (Plan, error) {
	if u.Revision == "" || u.NoChange() {
		return Plan{}, errors.New("update made no commit; nothing to roll back")
	}
	if u.Previous.Kind != image.KindSHA {
		return Plan{}, errors.Errorf("previous tag %q is not an immutable sha tag; refusing to roll back to it", u.Previous.String())
	}
	return Plan{Target: u.Target, RestoreTag: u.Previous, Reason: reason}, nil
}

// Rollback repoints the target's manifest at the plan's tag and
// redeploys, skipping the push step entirely: the restore tag belongs
// to a previous successful deployment, so the image is already in the
// registry. The tag's existence is verified first, because deploying a
// manifest that points at a missing image would trade one outage for
// another.
func (o *Orchestrator) Rollback(ctx context.Context, plan Plan) (*Run, error) {
	run := NewRun("rollback", plan.Target)
	o.start(run)
	defer o.finish(run)

	logger := log.With(o.logger, "runID", run.ID, "pipeline", run.Pipeline, "target", plan.Target.ID())
	logger.Log("state", "started", "restore", plan.RestoreTag.String(), "reason", plan.Reason)

	verifyStep := run.addStep("verify-image", StepCustom)
	err := o.runStep(ctx, run, verifyStep, logger, func(ctx context.Context) (interface{}, error) {
		ref := plan.Target.Registry.ToRef(plan.RestoreTag)
		exists, err := o.tags.TagExists(ctx, ref)
		if err != nil {
			return nil, &fluxerr.Error{
				Type: fluxerr.Transport,
				Err:  errors.Wrapf(err, "checking %s exists", ref.String()),
				Help: "Could not ask the registry about the rollback image. This is usually transient.",
			}
		}
		if !exists {
			return nil, errors.Errorf("rollback image %s does not exist in the registry", ref.String())
		}
		return nil, nil
	})
	if err != nil {
		return o.failRollback(run, logger, err)
	}

	deployRun, err := o.Deploy(ctx, DeploySpec{
		Target:     plan.Target,
		Image:      plan.Target.Registry,
		Tag:        plan.RestoreTag,
		DeployOnly: true,
		// A rollback that fails does not get rolled back again.
		Policy: PolicyAbort,
	})
	deployStep := run.addStep("redeploy", StepCustom)
	deployStep.StartedAt = deployRun.StartedAt
	deployStep.EndedAt = deployRun.EndedAt
	deployStep.Attempts = 1
	deployStep.Result = deployRun
	if err != nil {
		deployStep.Status = StepFailed
		deployStep.Err = err.Error()
		return o.failRollback(run, logger, err)
	}
	deployStep.Status = StepSucceeded

	run.Status = RunSucceeded
	logger.Log("state", "succeeded", "restored", plan.RestoreTag.String())
	return run, nil
}

// failRollback wraps whatever went wrong as a rollback error, which
// is surfaced loudly: a failed rollback can leave the manifest
// pointing somewhere bad.
func (o *Orchestrator) failRollback(run *Run, logger log.Logger, err error) (*Run, error) {
	run.Status = RunFailed
	wrapped := &fluxerr.Error{
		Type: fluxerr.Rollback,
		Err:  errors.Wrapf(err, "rolling back %s", run.Target.ID()),
		Help: "The rollback itself failed. The manifest may be left in a bad state; inspect it by hand before doing anything else.",
	}
	run.Err = wrapped
	logger.Log("state", "failed", "err", wrapped)
	return run, wrapped
}
