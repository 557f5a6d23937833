package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexusops/forge/pkg/gitops"
	"github.com/nexusops/forge/pkg/resource"
)

// Transport is a scriptable GitOps controller for tests. StatusFn
// tells it what revision the cluster currently has applied; tests
// usually wire it to the head of a fake manifest repo.
type Transport struct {
	mu sync.Mutex

	// TriggerErr is returned from TriggerReconcile when set.
	TriggerErr error
	// LagPolls makes the first n status polls report a stale revision,
	// simulating a controller that has not caught up yet.
	LagPolls int
	// StatusFn supplies the applied revision. Nil means never applied.
	StatusFn func() string

	triggers int
	polls    int
}

func (t *Transport) TriggerReconcile(ctx context.Context, target resource.Target) (gitops.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.TriggerErr != nil {
		return "", t.TriggerErr
	}
	t.triggers++
	return gitops.Handle(fmt.Sprintf("recon-%d", t.triggers)), nil
}

func (t *Transport) ReconcileStatus(ctx context.Context, handle gitops.Handle) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.polls++
	if t.polls <= t.LagPolls || t.StatusFn == nil {
		return "", nil
	}
	return t.StatusFn(), nil
}

// Triggers reports how many reconciliations were requested.
func (t *Transport) Triggers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.triggers
}

// Polls reports how many times status was read.
func (t *Transport) Polls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.polls
}
