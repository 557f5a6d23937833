package cluster

import (
	"context"
	"time"

	"github.com/nexusops/forge/pkg/resource"
)

// Constants for pod container states the rollout monitor classifies
// as crash/backoff. These are defined here so that no-one has to drag
// in Kubernetes dependencies to be able to use them.
const (
	StateRunning          = "Running"
	StateWaiting          = "Waiting"
	StateTerminated       = "Terminated"
	ReasonCrashLoop       = "CrashLoopBackOff"
	ReasonImagePullBack   = "ImagePullBackOff"
	ReasonErrImagePull    = "ErrImagePull"
	ReasonCreateContainer = "CreateContainerError"
)

// PodStatus is one pod's slice of a rollout observation.
type PodStatus struct {
	Name     string
	Phase    string // Pending, Running, Succeeded, Failed
	State    string // container state, one of the State* constants
	Reason   string // waiting/terminated reason, if any
	Ready    bool
	Restarts int
	ImageTag string
}

// CrashLooping reports whether the pod's container is in a state the
// monitor treats as unrecoverable without intervention.
func (p PodStatus) CrashLooping() bool {
	switch p.Reason {
	case ReasonCrashLoop, ReasonImagePullBack, ReasonErrImagePull, ReasonCreateContainer:
		return true
	}
	return false
}

// RolloutObservation is a point-in-time sample of a workload's
// rollout progress. The monitor consumes a sequence of these; no
// single sample is trusted on its own.
type RolloutObservation struct {
	At          time.Time
	Desired     int
	Updated     int
	Ready       int
	Unavailable int
	Pods        []PodStatus
}

// Active reports whether the observation shows any update activity.
func (o RolloutObservation) Active() bool {
	return o.Desired > 0 && (o.Updated > 0 || o.Ready > 0 || o.Unavailable > 0)
}

// Settled reports whether every desired replica is ready and nothing
// is unavailable.
func (o RolloutObservation) Settled() bool {
	return o.Desired > 0 && o.Ready == o.Desired && o.Unavailable == 0
}

// Transport is the capability the rollout monitor needs from a
// concrete cluster client. Implementations must be safe for use by
// multiple pipeline runs concurrently.
type Transport interface {
	RolloutStatus(ctx context.Context, target resource.Target) (RolloutObservation, error)
	PodLogs(ctx context.Context, target resource.Target, pod string, tailLines int) (string, error)
	PodEvents(ctx context.Context, target resource.Target, pod string, limit int) ([]string, error)
}
