package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexusops/forge/pkg/cluster"
	"github.com/nexusops/forge/pkg/resource"
)

// Transport replays a scripted sequence of rollout observations. When
// the script runs out, the last observation repeats, which is what a
// stuck cluster looks like.
type Transport struct {
	mu sync.Mutex

	Script    []cluster.RolloutObservation
	StatusErr error
	Logs      map[string]string
	Events    map[string][]string

	next     int
	logCalls int
}

func (t *Transport) RolloutStatus(ctx context.Context, target resource.Target) (cluster.RolloutObservation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.StatusErr != nil {
		return cluster.RolloutObservation{}, t.StatusErr
	}
	if len(t.Script) == 0 {
		return cluster.RolloutObservation{}, fmt.Errorf("no scripted observations")
	}
	obs := t.Script[t.next]
	if t.next < len(t.Script)-1 {
		t.next++
	}
	return obs, nil
}

func (t *Transport) PodLogs(ctx context.Context, target resource.Target, pod string, tailLines int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logCalls++
	if logs, ok := t.Logs[pod]; ok {
		return logs, nil
	}
	return "panic: listen tcp :8080: bind: address already in use\n", nil
}

func (t *Transport) PodEvents(ctx context.Context, target resource.Target, pod string, limit int) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if events, ok := t.Events[pod]; ok {
		return events, nil
	}
	return []string{"Warning BackOff restarting failed container"}, nil
}

// LogCalls reports how many times pod logs were scraped.
func (t *Transport) LogCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.logCalls
}
