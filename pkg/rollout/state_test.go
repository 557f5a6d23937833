package rollout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nexusops/forge/pkg/cluster"
	"github.com/nexusops/forge/pkg/config"
)

var testPolicy = config.RolloutPolicy{
	Interval:         3 * time.Second,
	StabilityWindow:  15 * time.Second,
	GracePeriod:      30 * time.Second,
	FailureThreshold: 2 * time.Minute,
	Timeout:          10 * time.Minute,
	LogTailLines:     30,
	EventTail:        10,
	RestartThreshold: 3,
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func obs(desired, ready, unavailable int) cluster.RolloutObservation {
	return cluster.RolloutObservation{Desired: desired, Updated: desired, Ready: ready, Unavailable: unavailable}
}

func crashObs(desired int, reason string, restarts int) cluster.RolloutObservation {
	o := obs(desired, desired-1, 1)
	o.Pods = []cluster.PodStatus{
		{Name: "svc-a-7c4b9-x1", Phase: "Running", State: cluster.StateWaiting, Reason: reason, Restarts: restarts},
	}
	return o
}

func TestPendingUntilActivity(t *testing.T) {
	tr := newTracker(testPolicy, base)
	assert.Equal(t, Pending, tr.State())

	assert.Equal(t, Pending, tr.Observe(cluster.RolloutObservation{Desired: 3}, base))
	assert.Equal(t, Progressing, tr.Observe(obs(3, 1, 0), base.Add(3*time.Second)))
}

func TestProgressingToHealthyAfterStabilityWindow(t *testing.T) {
	tr := newTracker(testPolicy, base)
	tr.Observe(obs(3, 1, 0), base)

	// Settled, but not yet for the whole stability window.
	assert.Equal(t, Progressing, tr.Observe(obs(3, 3, 0), base.Add(3*time.Second)))
	assert.Equal(t, Progressing, tr.Observe(obs(3, 3, 0), base.Add(9*time.Second)))
	assert.Equal(t, Healthy, tr.Observe(obs(3, 3, 0), base.Add(18*time.Second)))
	assert.True(t, Healthy.Terminal())
}

// A transient unavailable sample that recovers within the grace
// period never degrades the rollout, let alone fails it.
func TestTransientUnavailabilityIsNotFailure(t *testing.T) {
	tr := newTracker(testPolicy, base)
	tr.Observe(obs(3, 1, 0), base)

	assert.Equal(t, Progressing, tr.Observe(obs(3, 2, 1), base.Add(3*time.Second)))
	assert.Equal(t, Progressing, tr.Observe(obs(3, 2, 1), base.Add(15*time.Second)))
	assert.Equal(t, Progressing, tr.Observe(obs(3, 3, 0), base.Add(18*time.Second)))
	// Stability window restarts from the recovery.
	assert.Equal(t, Healthy, tr.Observe(obs(3, 3, 0), base.Add(35*time.Second)))
}

func TestSustainedUnavailabilityDegrades(t *testing.T) {
	tr := newTracker(testPolicy, base)
	tr.Observe(obs(3, 1, 0), base)

	tr.Observe(obs(3, 2, 1), base.Add(3*time.Second))
	assert.Equal(t, Degraded, tr.Observe(obs(3, 2, 1), base.Add(40*time.Second)))

	// Recovery before the failure threshold goes back to Progressing.
	assert.Equal(t, Progressing, tr.Observe(obs(3, 3, 0), base.Add(45*time.Second)))
}

func TestDegradedPastFailureThresholdFails(t *testing.T) {
	tr := newTracker(testPolicy, base)
	tr.Observe(obs(3, 1, 0), base)

	tr.Observe(obs(3, 2, 1), base.Add(3*time.Second))
	assert.Equal(t, Degraded, tr.Observe(obs(3, 2, 1), base.Add(40*time.Second)))
	assert.Equal(t, Degraded, tr.Observe(obs(3, 2, 1), base.Add(100*time.Second)))
	assert.Equal(t, Failed, tr.Observe(obs(3, 2, 1), base.Add(130*time.Second)))
	assert.NotEmpty(t, tr.Cause())
}

func TestCrashLoopShortCircuits(t *testing.T) {
	tr := newTracker(testPolicy, base)
	tr.Observe(obs(3, 1, 0), base)

	// Crash classification skips the grace period...
	assert.Equal(t, Degraded, tr.Observe(crashObs(3, cluster.ReasonCrashLoop, 1), base.Add(3*time.Second)))
	// ...and a crashing pod while Degraded is terminal.
	assert.Equal(t, Failed, tr.Observe(crashObs(3, cluster.ReasonCrashLoop, 2), base.Add(6*time.Second)))
	assert.Contains(t, tr.Cause(), "CrashLoopBackOff")
}

func TestExcessiveRestartsCountAsCrash(t *testing.T) {
	tr := newTracker(testPolicy, base)
	tr.Observe(obs(3, 1, 0), base)

	o := obs(3, 2, 1)
	o.Pods = []cluster.PodStatus{
		{Name: "svc-a-7c4b9-x1", Phase: "Running", State: cluster.StateRunning, Ready: false, Restarts: 4},
	}
	assert.Equal(t, Degraded, tr.Observe(o, base.Add(3*time.Second)))
	assert.Equal(t, Failed, tr.Observe(o, base.Add(6*time.Second)))
}

func TestNeverSettlingTimesOut(t *testing.T) {
	tr := newTracker(testPolicy, base)
	tr.Observe(obs(3, 1, 0), base)

	now := base
	for i := 0; i < 250; i++ {
		now = now.Add(3 * time.Second)
		state := tr.Observe(obs(3, 2, 0), now)
		if state.Terminal() {
			assert.Equal(t, TimedOut, state)
			return
		}
	}
	t.Fatal("watch never reached a terminal state")
}

func TestTerminalStatesStick(t *testing.T) {
	tr := newTracker(testPolicy, base)
	tr.Observe(obs(3, 1, 0), base)
	tr.Observe(obs(3, 3, 0), base.Add(3*time.Second))
	assert.Equal(t, Healthy, tr.Observe(obs(3, 3, 0), base.Add(20*time.Second)))

	// Later churn cannot un-finish the watch.
	assert.Equal(t, Healthy, tr.Observe(obs(3, 0, 3), base.Add(30*time.Second)))
}
