package gitops

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusops/forge/pkg/config"
	fluxerr "github.com/nexusops/forge/pkg/errors"
	"github.com/nexusops/forge/pkg/resource"
)

type fakeController struct {
	mu sync.Mutex
	// applied is the revision the controller reports; tests move it
	// to simulate the controller catching up.
	applied    string
	lagPolls   int
	triggerErr error
	triggers   int
	polls      int
}

func (c *fakeController) TriggerReconcile(ctx context.Context, target resource.Target) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.triggerErr != nil {
		return "", c.triggerErr
	}
	c.triggers++
	return Handle("recon-1"), nil
}

func (c *fakeController) ReconcileStatus(ctx context.Context, handle Handle) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	if c.lagPolls > 0 {
		c.lagPolls--
		return "rev-old", nil
	}
	return c.applied, nil
}

func testTrigger(c *fakeController, timeout time.Duration) *Trigger {
	return NewTrigger(c, config.ReconcilePolicy{
		Interval: time.Millisecond,
		Timeout:  timeout,
	}, clockwork.NewRealClock(), log.NewNopLogger())
}

func testReconcileTarget() resource.Target {
	return resource.Target{Service: "svc-a", Environment: "staging"}
}

func TestReconcileAcknowledged(t *testing.T) {
	controller := &fakeController{applied: "rev-000042", lagPolls: 3}
	trigger := testTrigger(controller, time.Second)

	ack, err := trigger.Reconcile(context.Background(), testReconcileTarget(), "rev-000042")
	require.NoError(t, err)
	assert.Equal(t, "rev-000042", ack.Revision)
	assert.Equal(t, 1, controller.triggers)
	assert.Equal(t, 4, controller.polls)
}

func TestReconcileTimesOut(t *testing.T) {
	controller := &fakeController{applied: "rev-old"}
	trigger := testTrigger(controller, 10*time.Millisecond)

	_, err := trigger.Reconcile(context.Background(), testReconcileTarget(), "rev-000042")
	require.Error(t, err)
	assert.Equal(t, fluxerr.ReconcileTimeout, fluxerr.TypeOf(err))
}

func TestReconcileTriggerFailureIsTransport(t *testing.T) {
	controller := &fakeController{triggerErr: errors.New("connection refused")}
	trigger := testTrigger(controller, time.Second)

	_, err := trigger.Reconcile(context.Background(), testReconcileTarget(), "rev-000042")
	require.Error(t, err)
	assert.Equal(t, fluxerr.Transport, fluxerr.TypeOf(err))
	assert.True(t, fluxerr.Retryable(err))
}

func TestReconcileCancelled(t *testing.T) {
	controller := &fakeController{applied: "rev-old"}
	trigger := testTrigger(controller, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := trigger.Reconcile(ctx, testReconcileTarget(), "rev-000042")
	assert.ErrorIs(t, err, context.Canceled)
}
