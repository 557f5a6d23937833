package release

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/nexusops/forge/pkg/config"
	fluxerr "github.com/nexusops/forge/pkg/errors"
	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/manifest"
	"github.com/nexusops/forge/pkg/resource"
)

// FailurePolicy is what the orchestrator does after a fatal step
// failure.
type FailurePolicy string

const (
	// PolicyAbort stops the run and reports, leaving the system in
	// the partially-applied state.
	PolicyAbort FailurePolicy = "abort"
	// PolicyAbortAndRollback additionally reverts the manifest to the
	// tag recorded by the most recent manifest update.
	PolicyAbortAndRollback FailurePolicy = "abort-and-rollback"
)

// DeploySpec describes one deploy pipeline: push the image's tags,
// point the manifest at the sha tag, reconcile, and watch the
// rollout.
type DeploySpec struct {
	Target resource.Target
	Image  image.Name
	// Tags to push, usually the resolved pair. Ignored when
	// DeployOnly is set.
	Tags []image.Tag
	// Tag the manifest is pointed at; must be an immutable sha tag.
	Tag image.Tag
	// DeployOnly skips the push step and deploys Tag as-is. Rollback
	// and roll-forward use this: the image is already known to exist.
	DeployOnly bool
	Policy     FailurePolicy
}

// Orchestrator sequences the release primitives into pipelines. Steps
// within one run execute strictly sequentially; a step's retryable
// failures are retried in place up to the configured budget before
// being escalated to fatal.
type Orchestrator struct {
	pusher  ImagePusher
	updater ManifestUpdater
	trigger Reconciler
	monitor RolloutWatcher
	tags    TagChecker
	policy  config.PipelinePolicy
	logger  log.Logger
}

func NewOrchestrator(
	pusher ImagePusher,
	updater ManifestUpdater,
	trigger Reconciler,
	monitor RolloutWatcher,
	tags TagChecker,
	policy config.PipelinePolicy,
	logger log.Logger,
) *Orchestrator {
	return &Orchestrator{
		pusher:  pusher,
		updater: updater,
		trigger: trigger,
		monitor: monitor,
		tags:    tags,
		policy:  policy,
		logger:  log.With(logger, "component", "release"),
	}
}

// Deploy runs the standard pipeline: push → update-manifest →
// reconcile → rollout-watch. The returned Run always carries the full
// step trail, also on failure.
func (o *Orchestrator) Deploy(ctx context.Context, spec DeploySpec) (*Run, error) {
	run := NewRun("deploy", spec.Target)
	if err := validateDeploySpec(spec); err != nil {
		run.Status = RunFailed
		run.Err = err
		return run, err
	}
	o.start(run)
	defer o.finish(run)

	logger := log.With(o.logger, "runID", run.ID, "pipeline", run.Pipeline, "target", spec.Target.ID())
	logger.Log("state", "started", "tag", spec.Tag.String())

	var update manifest.Update

	// Push. Skipped entirely in deploy-only mode: rollback and
	// roll-forward repoint the manifest at images that already exist.
	pushStep := run.addStep("push", StepPush)
	if spec.DeployOnly {
		pushStep.Status = StepSkipped
	} else {
		err := o.runStep(ctx, run, pushStep, logger, func(ctx context.Context) (interface{}, error) {
			return o.pusher.Push(ctx, spec.Image, spec.Tags)
		})
		if err != nil {
			// Nothing applied yet, so there is nothing to roll back
			// regardless of policy.
			return run, o.abort(ctx, run, logger, err, manifest.Update{}, spec.Policy)
		}
	}

	updateStep := run.addStep("update-manifest", StepUpdateManifest)
	err := o.runStep(ctx, run, updateStep, logger, func(ctx context.Context) (interface{}, error) {
		var err error
		update, err = o.updater.Update(ctx, spec.Target, spec.Tag)
		return update, err
	})
	if err != nil {
		return run, o.abort(ctx, run, logger, err, manifest.Update{}, spec.Policy)
	}

	// With no new commit there is no revision for the controller to
	// acknowledge; the rollout watch below still verifies health.
	reconcileStep := run.addStep("reconcile", StepReconcile)
	if update.NoChange() {
		logger.Log("info", "manifest unchanged, skipping reconcile")
		reconcileStep.Status = StepSkipped
	} else {
		err := o.runStep(ctx, run, reconcileStep, logger, func(ctx context.Context) (interface{}, error) {
			return o.trigger.Reconcile(ctx, spec.Target, update.Revision)
		})
		if err != nil {
			// The manifest update persists and the run can simply be
			// retried once the controller recovers; rolling back here
			// would churn the repo for no benefit.
			return run, o.abort(ctx, run, logger, err, manifest.Update{}, spec.Policy)
		}
	}

	watchStep := run.addStep("rollout-watch", StepRolloutWatch)
	err = o.runStep(ctx, run, watchStep, logger, func(ctx context.Context) (interface{}, error) {
		return o.monitor.Watch(ctx, spec.Target)
	})
	if err != nil {
		rollbackFrom := manifest.Update{}
		if fluxerr.TypeOf(err) == fluxerr.RolloutFailed {
			// A timed-out rollout may still complete on its own;
			// only a definitively failed one gets reverted.
			rollbackFrom = update
		}
		return run, o.abort(ctx, run, logger, err, rollbackFrom, spec.Policy)
	}

	run.Status = RunSucceeded
	logger.Log("state", "succeeded")
	return run, nil
}

// CustomStep is a caller-supplied pipeline step: a migration gate, a
// dependent-system notification, a verification probe.
type CustomStep struct {
	Name string
	Run  func(ctx context.Context, logger log.Logger) error
}

// ReleaseSpec chains a deploy with follow-up steps. A follow-up
// failure aborts the remainder but never rolls back the deploy:
// already-succeeded unrelated work stays applied.
type ReleaseSpec struct {
	Deploy DeploySpec
	Steps  []CustomStep
}

// OrchestrateRelease runs deploy then each follow-up step in order.
func (o *Orchestrator) OrchestrateRelease(ctx context.Context, spec ReleaseSpec) (*Run, error) {
	run := NewRun("orchestrate-release", spec.Deploy.Target)
	o.start(run)
	defer o.finish(run)

	logger := log.With(o.logger, "runID", run.ID, "pipeline", run.Pipeline, "target", spec.Deploy.Target.ID())

	deployStep := run.addStep("deploy", StepCustom)
	deployRun, err := o.Deploy(ctx, spec.Deploy)
	deployStep.StartedAt = deployRun.StartedAt
	deployStep.EndedAt = deployRun.EndedAt
	deployStep.Attempts = 1
	deployStep.Result = deployRun
	if err != nil {
		deployStep.Status = StepFailed
		deployStep.Err = err.Error()
		o.skipRemaining(run, spec.Steps)
		run.Status = deployRun.Status
		run.Err = err
		run.RollbackErr = deployRun.RollbackErr
		return run, err
	}
	deployStep.Status = StepSucceeded

	for i, custom := range spec.Steps {
		step := run.addStep(custom.Name, StepCustom)
		err := o.runStep(ctx, run, step, logger, func(ctx context.Context) (interface{}, error) {
			return nil, custom.Run(ctx, log.With(logger, "step", custom.Name))
		})
		if err != nil {
			o.skipRemaining(run, spec.Steps[i+1:])
			run.Status = RunFailed
			if ctx.Err() != nil {
				run.Status = RunCancelled
			}
			run.Err = err
			return run, err
		}
	}

	run.Status = RunSucceeded
	return run, nil
}

func (o *Orchestrator) skipRemaining(run *Run, remaining []CustomStep) {
	for _, custom := range remaining {
		step := run.addStep(custom.Name, StepCustom)
		step.Status = StepSkipped
	}
}

// runStep executes fn with the step's retry budget. Only failures the
// component itself reports as retryable are retried; a component that
// has exhausted its local budget is never second-guessed.
func (o *Orchestrator) runStep(ctx context.Context, run *Run, step *Step, logger log.Logger, fn func(context.Context) (interface{}, error)) error {
	step.Status = StepRunning
	step.StartedAt = time.Now().UTC()
	defer func() {
		step.EndedAt = time.Now().UTC()
		ObserveStep(run.Pipeline, string(step.Kind), step.Status == StepSucceeded, step.Elapsed())
	}()

	var err error
	for attempt := 1; attempt <= o.policy.StepAttempts; attempt++ {
		step.Attempts = attempt
		var result interface{}
		result, err = fn(ctx)
		if result != nil {
			step.Result = result
		}
		if err == nil {
			step.Status = StepSucceeded
			return nil
		}
		if ctx.Err() != nil || !fluxerr.Retryable(err) || attempt == o.policy.StepAttempts {
			break
		}
		logger.Log("warning", "step failed, retrying", "step", step.Name, "attempt", attempt, "err", err)
	}

	step.Status = StepFailed
	step.Err = err.Error()
	logger.Log("error", "step failed", "step", step.Name, "attempts", step.Attempts, "err", err)
	return err
}

// abort ends the run after a fatal step failure, applying the
// pipeline's failure policy. rollbackFrom carries the manifest update
// to revert; a zero update means there is nothing to revert and the
// policy degrades to plain abort.
func (o *Orchestrator) abort(ctx context.Context, run *Run, logger log.Logger, stepErr error, rollbackFrom manifest.Update, policy FailurePolicy) error {
	run.Err = stepErr
	if ctx.Err() != nil {
		// Operator cancellation is not a failure: a cancelled-but-
		// healthy rollout should be left alone, so no rollback.
		run.Status = RunCancelled
		logger.Log("state", "cancelled")
		return stepErr
	}
	run.Status = RunFailed

	if policy != PolicyAbortAndRollback {
		logger.Log("state", "failed", "policy", string(policy))
		return stepErr
	}
	plan, err := PlanFromUpdate(rollbackFrom, stepErr.Error())
	if err != nil {
		logger.Log("state", "failed", "policy", string(policy), "rollback", "nothing to roll back")
		return stepErr
	}

	logger.Log("state", "failed", "policy", string(policy), "rollback", plan.RestoreTag.String())
	step := run.addStep("rollback", StepRollback)
	step.Status = StepRunning
	step.StartedAt = time.Now().UTC()
	rollbackRun, rollbackErr := o.Rollback(ctx, plan)
	step.EndedAt = time.Now().UTC()
	step.Attempts = 1
	step.Result = rollbackRun
	if rollbackErr != nil {
		step.Status = StepFailed
		step.Err = rollbackErr.Error()
		run.RollbackErr = rollbackErr
		logger.Log("error", "rollback failed, manifest may be left in a bad state", "err", rollbackErr)
		return stepErr
	}
	step.Status = StepSucceeded
	run.Status = RunRolledBack
	return stepErr
}

func (o *Orchestrator) start(run *Run) {
	run.Status = RunRunning
	run.StartedAt = time.Now().UTC()
}

func (o *Orchestrator) finish(run *Run) {
	run.EndedAt = time.Now().UTC()
	ObserveRun(run.Pipeline, run.Status == RunSucceeded, run.EndedAt.Sub(run.StartedAt))
}

func validateDeploySpec(spec DeploySpec) error {
	switch {
	case spec.Target.Service == "":
		return specErr("a deploy needs a target service")
	case spec.Tag.Kind != image.KindSHA:
		return specErr("only immutable sha tags are deployed; floating tags have no fixed identity")
	case !spec.DeployOnly && len(spec.Tags) == 0:
		return specErr("a deploy that pushes needs the resolved tag pair")
	}
	return nil
}

func specErr(msg string) error {
	return &fluxerr.Error{
		Type: fluxerr.Validation,
		Err:  errors.New(msg),
		Help: "The deploy spec is incomplete; this is a bug in the caller, not a transient failure.",
	}
}
