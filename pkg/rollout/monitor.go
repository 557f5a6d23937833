package rollout

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/nexusops/forge/pkg/cluster"
	"github.com/nexusops/forge/pkg/config"
	fluxerr "github.com/nexusops/forge/pkg/errors"
	"github.com/nexusops/forge/pkg/resource"
)

// Diagnostic is what the monitor captures about one unhealthy pod
// when a rollout fails, for operator inspection.
type Diagnostic struct {
	Pod     string
	Problem string
	Logs    string
	Events  []string
}

// Result of one rollout watch. Cancelled results carry whatever state
// the watch was in when it stopped; Cancelled is not itself a
// rollout state.
type Result struct {
	State        State
	Cancelled    bool
	Cause        string
	Observations []cluster.RolloutObservation
	Diagnostics  []Diagnostic
	Elapsed      time.Duration
}

// Monitor polls rollout status and classifies the stream of
// observations with the state machine in state.go.
type Monitor struct {
	transport cluster.Transport
	policy    config.RolloutPolicy
	clock     clockwork.Clock
	logger    log.Logger
}

func NewMonitor(transport cluster.Transport, policy config.RolloutPolicy, clock clockwork.Clock, logger log.Logger) *Monitor {
	return &Monitor{
		transport: transport,
		policy:    policy,
		clock:     clock,
		logger:    log.With(logger, "component", "rollout"),
	}
}

// Watch polls until the rollout reaches a terminal state or the
// context is cancelled. Healthy returns a nil error; Failed and
// TimedOut return typed errors so callers can tell the trigger
// apart. Cancellation stops polling without scraping diagnostics: a
// cancelled-but-healthy rollout should be left alone.
func (m *Monitor) Watch(ctx context.Context, target resource.Target) (Result, error) {
	logger := log.With(m.logger, "target", target.ID())
	start := m.clock.Now()
	t := newTracker(m.policy, start)
	result := Result{State: t.State()}

	finish := func() {
		result.State = t.State()
		result.Cause = t.Cause()
		result.Elapsed = m.clock.Since(start)
	}

	for {
		obs, err := m.transport.RolloutStatus(ctx, target)
		if err != nil {
			// One failed poll is not evidence about the rollout;
			// the watch timeout bounds how long we keep shrugging.
			logger.Log("warning", "failed to read rollout status", "err", err)
			obs = cluster.RolloutObservation{At: m.clock.Now()}
		} else {
			if obs.At.IsZero() {
				obs.At = m.clock.Now()
			}
			result.Observations = append(result.Observations, obs)
		}

		state := t.Observe(obs, m.clock.Now())
		logger.Log("state", string(state), "desired", obs.Desired, "ready", obs.Ready, "unavailable", obs.Unavailable)

		switch state {
		case Healthy:
			finish()
			return result, nil
		case Failed:
			result.Diagnostics = m.diagnose(ctx, target, obs)
			finish()
			return result, &fluxerr.Error{
				Type: fluxerr.RolloutFailed,
				Err:  errors.Errorf("rollout of %s failed: %s", target.ID(), t.Cause()),
				Help: "The rollout is stuck and will not make progress without intervention. Pod logs and events are attached to the result.",
			}
		case TimedOut:
			finish()
			return result, &fluxerr.Error{
				Type: fluxerr.RolloutTimedOut,
				Err:  errors.Errorf("rollout of %s not healthy after %s", target.ID(), m.policy.Timeout),
				Help: "The rollout never settled within the watch timeout. It may still complete on its own; check the workload before retrying.",
			}
		}

		select {
		case <-ctx.Done():
			finish()
			result.Cancelled = true
			return result, ctx.Err()
		case <-m.clock.After(m.policy.Interval):
		}
	}
}

// diagnose captures log tails and event streams for the pods that
// look responsible for the failure.
func (m *Monitor) diagnose(ctx context.Context, target resource.Target, obs cluster.RolloutObservation) []Diagnostic {
	var out []Diagnostic
	for _, pod := range obs.Pods {
		problem := classifyProblem(pod, m.policy.RestartThreshold)
		if problem == "" {
			continue
		}
		d := Diagnostic{Pod: pod.Name, Problem: problem}
		if logs, err := m.transport.PodLogs(ctx, target, pod.Name, m.policy.LogTailLines); err != nil {
			m.logger.Log("warning", "failed to get pod logs", "pod", pod.Name, "err", err)
		} else {
			d.Logs = logs
		}
		if events, err := m.transport.PodEvents(ctx, target, pod.Name, m.policy.EventTail); err != nil {
			m.logger.Log("warning", "failed to get pod events", "pod", pod.Name, "err", err)
		} else {
			d.Events = events
		}
		out = append(out, d)
	}
	return out
}

func classifyProblem(pod cluster.PodStatus, restartThreshold int) string {
	switch {
	case pod.CrashLooping():
		return "crash/backoff: " + pod.Reason
	case restartThreshold > 0 && pod.Restarts >= restartThreshold:
		return "excessive restarts"
	case !pod.Ready && pod.Phase != "Succeeded":
		return "not ready"
	}
	return ""
}
