package rollout

import (
	"fmt"
	"time"

	"github.com/nexusops/forge/pkg/cluster"
	"github.com/nexusops/forge/pkg/config"
)

// State of one rollout watch. Owned exclusively by the monitor for
// the duration of the watch.
type State string

const (
	Pending     State = "Pending"
	Progressing State = "Progressing"
	Healthy     State = "Healthy"
	Degraded    State = "Degraded"
	Failed      State = "Failed"
	TimedOut    State = "TimedOut"
)

// Terminal reports whether the watch is over. Degraded is not
// terminal: rollouts recover from it when pod churn settles.
func (s State) Terminal() bool {
	switch s {
	case Healthy, Failed, TimedOut:
		return true
	}
	return false
}

// tracker folds a stream of observations into a State. It is a pure
// reducer over (observation, now) pairs: it does no I/O and keeps
// only the timestamps needed to tell sustained conditions from
// transient ones, so it can be tested without a cluster or a clock.
//
// The two-threshold shape is deliberate. A single "not ready" sample
// must not fail a rollout: pod churn makes unavailability normal for
// a while. Unavailability past the grace period means Degraded;
// Degraded past the failure threshold (or any crash/backoff pod)
// means Failed.
type tracker struct {
	policy config.RolloutPolicy

	state     State
	startedAt time.Time
	// settledSince is when ready==desired with nothing unavailable
	// was first observed, zero while unsettled.
	settledSince time.Time
	// unavailableSince is when unavailability was first observed,
	// zero while everything is available.
	unavailableSince time.Time
	cause            string
}

func newTracker(policy config.RolloutPolicy, now time.Time) *tracker {
	return &tracker{policy: policy, state: Pending, startedAt: now}
}

func (t *tracker) State() State { return t.state }

// Cause describes why a terminal Failed or TimedOut state was
// entered.
func (t *tracker) Cause() string { return t.cause }

// Observe folds one observation taken at `now` into the state.
func (t *tracker) Observe(obs cluster.RolloutObservation, now time.Time) State {
	if t.state.Terminal() {
		return t.state
	}

	if obs.Unavailable > 0 {
		if t.unavailableSince.IsZero() {
			t.unavailableSince = now
		}
	} else {
		t.unavailableSince = time.Time{}
	}
	if obs.Settled() {
		if t.settledSince.IsZero() {
			t.settledSince = now
		}
	} else {
		t.settledSince = time.Time{}
	}

	if t.state == Pending && obs.Active() {
		t.state = Progressing
	}

	crashing := crashingPod(obs, t.policy.RestartThreshold)

	switch t.state {
	case Progressing:
		if !t.settledSince.IsZero() && now.Sub(t.settledSince) >= t.policy.StabilityWindow {
			t.state = Healthy
			return t.state
		}
		// A crash/backoff pod is sustained evidence already; skip the
		// grace period rather than waiting out ordinary churn time.
		if crashing != nil {
			t.state = Degraded
			t.cause = fmt.Sprintf("pod %s in %s", crashing.Name, crashReason(*crashing))
		} else if !t.unavailableSince.IsZero() && now.Sub(t.unavailableSince) >= t.policy.GracePeriod {
			t.state = Degraded
			t.cause = fmt.Sprintf("%d replica(s) unavailable for over %s", obs.Unavailable, t.policy.GracePeriod)
		}
	case Degraded:
		switch {
		case crashing != nil:
			t.state = Failed
			t.cause = fmt.Sprintf("pod %s in %s", crashing.Name, crashReason(*crashing))
			return t.state
		case !t.unavailableSince.IsZero() && now.Sub(t.unavailableSince) >= t.policy.FailureThreshold:
			t.state = Failed
			t.cause = fmt.Sprintf("unavailable replicas persisted past %s", t.policy.FailureThreshold)
			return t.state
		case obs.Unavailable == 0:
			t.state = Progressing
			t.cause = ""
		}
	}

	if !t.state.Terminal() && now.Sub(t.startedAt) >= t.policy.Timeout {
		t.state = TimedOut
		t.cause = fmt.Sprintf("rollout not healthy after %s", t.policy.Timeout)
	}
	return t.state
}

// crashingPod returns a pod in a crash/backoff classification, or one
// restarting excessively, or nil.
func crashingPod(obs cluster.RolloutObservation, restartThreshold int) *cluster.PodStatus {
	for i, pod := range obs.Pods {
		if pod.CrashLooping() || (restartThreshold > 0 && pod.Restarts >= restartThreshold) {
			return &obs.Pods[i]
		}
	}
	return nil
}

func crashReason(pod cluster.PodStatus) string {
	if pod.Reason != "" {
		return pod.Reason
	}
	return fmt.Sprintf("restart loop (%d restarts)", pod.Restarts)
}
