package kubectl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusops/forge/pkg/cluster"
)

const deploymentJSON = `{
  "spec": {"replicas": 3},
  "status": {
    "replicas": 3,
    "updatedReplicas": 3,
    "readyReplicas": 1,
    "unavailableReplicas": 2
  }
}`

const podListJSON = `{
  "items": [
    {
      "metadata": {"name": "svc-a-7d4f9-x2jk8"},
      "status": {
        "phase": "Running",
        "containerStatuses": [
          {
            "ready": false,
            "restartCount": 4,
            "image": "registry.example.com/acme/svc-a:amd64-def4567",
            "state": {"waiting": {"reason": "CrashLoopBackOff"}}
          }
        ]
      }
    },
    {
      "metadata": {"name": "svc-a-7d4f9-m1q0p"},
      "status": {
        "phase": "Running",
        "containerStatuses": [
          {
            "ready": true,
            "restartCount": 0,
            "image": "registry.example.com/acme/svc-a:amd64-def4567",
            "state": {"running": {}}
          }
        ]
      }
    }
  ]
}`

const eventListJSON = `{
  "items": [
    {"type": "Normal", "reason": "Pulled", "message": "Container image pulled"},
    {"type": "Warning", "reason": "BackOff", "message": "Back-off restarting failed container"}
  ]
}`

func TestParseDeployment(t *testing.T) {
	obs, err := parseDeployment([]byte(deploymentJSON))
	require.NoError(t, err)
	assert.Equal(t, 3, obs.Desired)
	assert.Equal(t, 3, obs.Updated)
	assert.Equal(t, 1, obs.Ready)
	assert.Equal(t, 2, obs.Unavailable)
	assert.False(t, obs.At.IsZero())
}

func TestParsePods(t *testing.T) {
	pods, err := parsePods([]byte(podListJSON))
	require.NoError(t, err)
	require.Len(t, pods, 2)

	crashing := pods[0]
	assert.Equal(t, "svc-a-7d4f9-x2jk8", crashing.Name)
	assert.Equal(t, cluster.StateWaiting, crashing.State)
	assert.Equal(t, cluster.ReasonCrashLoop, crashing.Reason)
	assert.False(t, crashing.Ready)
	assert.Equal(t, 4, crashing.Restarts)
	assert.Equal(t, "amd64-def4567", crashing.ImageTag)
	assert.True(t, crashing.CrashLooping())

	healthy := pods[1]
	assert.Equal(t, cluster.StateRunning, healthy.State)
	assert.True(t, healthy.Ready)
	assert.False(t, healthy.CrashLooping())
}

func TestParseEvents(t *testing.T) {
	events, err := parseEvents([]byte(eventListJSON))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Warning BackOff Back-off restarting failed container", events[1])
}

func TestImageTag(t *testing.T) {
	assert.Equal(t, "amd64-def4567", imageTag("registry.example.com:5000/acme/svc-a:amd64-def4567"))
	assert.Equal(t, "", imageTag("registry.example.com:5000/acme/svc-a"))
}
