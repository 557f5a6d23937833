package release

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nexusops/forge/pkg/gitops"
	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/manifest"
	"github.com/nexusops/forge/pkg/registry"
	"github.com/nexusops/forge/pkg/resource"
	"github.com/nexusops/forge/pkg/rollout"
)

// The components the orchestrator sequences. Each is a capability
// interface so pipelines can be exercised against fakes; the concrete
// implementations live in pkg/registry, pkg/manifest, pkg/gitops and
// pkg/rollout. Components never call each other: all coordination
// goes through the orchestrator.
type (
	ImagePusher interface {
		Push(ctx context.Context, name image.Name, tags []image.Tag) (registry.Result, error)
	}
	ManifestUpdater interface {
		Update(ctx context.Context, target resource.Target, tag image.Tag) (manifest.Update, error)
	}
	Reconciler interface {
		Reconcile(ctx context.Context, target resource.Target, revision string) (gitops.Ack, error)
	}
	RolloutWatcher interface {
		Watch(ctx context.Context, target resource.Target) (rollout.Result, error)
	}
	TagChecker interface {
		TagExists(ctx context.Context, ref image.Ref) (bool, error)
	}
)

type StepKind string

const (
	StepPush           StepKind = "push"
	StepUpdateManifest StepKind = "update-manifest"
	StepReconcile      StepKind = "reconcile"
	StepRolloutWatch   StepKind = "rollout-watch"
	StepRollback       StepKind = "rollback"
	StepCustom         StepKind = "custom"
)

type StepStatus string

const (
	StepPending   StepStatus = "Pending"
	StepRunning   StepStatus = "Running"
	StepSucceeded StepStatus = "Succeeded"
	StepFailed    StepStatus = "Failed"
	StepSkipped   StepStatus = "Skipped"
)

// Step is one unit of a pipeline run. A step's failure is a trigger
// for the orchestrator's policy, never silently swallowed.
type Step struct {
	Name      string
	Kind      StepKind
	Status    StepStatus
	Attempts  int
	Err       string
	StartedAt time.Time
	EndedAt   time.Time
	// Result holds the step's typed payload: registry.Result,
	// manifest.Update, gitops.Ack, rollout.Result, or for a rollback
	// step the nested *Run.
	Result interface{}
}

func (s *Step) Elapsed() time.Duration {
	if s.StartedAt.IsZero() || s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

type RunStatus string

const (
	RunPending    RunStatus = "Pending"
	RunRunning    RunStatus = "Running"
	RunSucceeded  RunStatus = "Succeeded"
	RunFailed     RunStatus = "Failed"
	RunRolledBack RunStatus = "RolledBack"
	RunCancelled  RunStatus = "Cancelled"
)

func (s RunStatus) Terminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunRolledBack, RunCancelled:
		return true
	}
	return false
}

// Run is one pipeline execution against one target. It owns its
// steps; the orchestrator appends and mutates them as the run
// advances.
type Run struct {
	ID       string
	Pipeline string
	Target   resource.Target
	Steps    []*Step
	Status   RunStatus
	// Err is the fatal error that ended the run, if any.
	Err error
	// RollbackErr is set when the configured rollback itself failed;
	// the manifest may be left in a bad state and an operator must
	// look.
	RollbackErr error
	StartedAt   time.Time
	EndedAt     time.Time
}

func NewRun(pipeline string, target resource.Target) *Run {
	return &Run{
		ID:       uuid.NewString(),
		Pipeline: pipeline,
		Target:   target,
		Status:   RunPending,
	}
}

func (r *Run) addStep(name string, kind StepKind) *Step {
	step := &Step{Name: name, Kind: kind, Status: StepPending}
	r.Steps = append(r.Steps, step)
	return step
}

// StepNamed returns the first step with the given name, or nil.
func (r *Run) StepNamed(name string) *Step {
	for _, s := range r.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}
