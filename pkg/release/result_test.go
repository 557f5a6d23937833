package release_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusops/forge/pkg/cluster"
	"github.com/nexusops/forge/pkg/release"
)

func TestPrintResultShowsFailureTrail(t *testing.T) {
	h := newHarness(t, "amd64-abc1234")
	spec := h.deploySpec("def4567")
	spec.Policy = release.PolicyAbort
	h.clu.Script = []cluster.RolloutObservation{
		{Desired: 3, Updated: 3, Ready: 1, Unavailable: 2, Pods: []cluster.PodStatus{
			{Name: "svc-a-7d4f9-x2jk8", Phase: "Running", State: cluster.StateWaiting, Reason: cluster.ReasonCrashLoop, Restarts: 4},
		}},
	}

	run, err := h.orch.Deploy(context.Background(), spec)
	require.Error(t, err)

	var buf bytes.Buffer
	release.PrintResult(&buf, run)
	out := buf.String()

	assert.Contains(t, out, "deploy svc-a@production")
	assert.Contains(t, out, "rollout-watch")
	assert.Contains(t, out, "Failed")
	// The failing step's diagnostics are inlined for the operator.
	assert.Contains(t, out, "svc-a-7d4f9-x2jk8")
	assert.Contains(t, out, "error:")
}

func TestPrintResultSuccinctOnSuccess(t *testing.T) {
	h := newHarness(t, "amd64-abc1234")

	run, err := h.orch.Deploy(context.Background(), h.deploySpec("def4567"))
	require.NoError(t, err)

	var buf bytes.Buffer
	release.PrintResult(&buf, run)
	out := buf.String()

	assert.Contains(t, out, "Succeeded")
	assert.NotContains(t, out, "error:")
	assert.NotContains(t, out, "ROLLBACK")
}
