package gitops

import (
	"context"
	"time"

	"github.com/nexusops/forge/pkg/resource"
)

// Handle identifies one reconciliation request to the controller, so
// its progress can be polled.
type Handle string

// Transport is the capability the trigger needs from the cluster's
// GitOps controller.
type Transport interface {
	// TriggerReconcile asks the controller to resynchronize the
	// target now rather than at its next interval (an annotation
	// bump, in the usual implementation).
	TriggerReconcile(ctx context.Context, target resource.Target) (Handle, error)
	// ReconcileStatus returns the revision the controller last
	// applied for the handle's target.
	ReconcileStatus(ctx context.Context, handle Handle) (string, error)
}

// Ack records that the controller observed the revision we asked
// about, and how long that took.
type Ack struct {
	Handle   Handle
	Revision string
	Waited   time.Duration
}
