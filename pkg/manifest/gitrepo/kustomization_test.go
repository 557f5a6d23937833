package gitrepo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `apiVersion: kustomize.config.k8s.io/v1beta1
kind: Kustomization
namespace: production
resources:
- deployment.yaml
- service.yaml
images:
- name: registry.example.com/acme/svc-a
  newTag: amd64-abc1234
commonLabels:
  team: checkout
`

func TestReadTag(t *testing.T) {
	tag, err := readTag([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "amd64-abc1234", tag)
}

func TestWriteTagPreservesDocument(t *testing.T) {
	edited, err := writeTag([]byte(sample), "amd64-def4567")
	require.NoError(t, err)

	tag, err := readTag(edited)
	require.NoError(t, err)
	assert.Equal(t, "amd64-def4567", tag)

	// Fields the tool does not model survive, in order.
	out := string(edited)
	assert.Contains(t, out, "kind: Kustomization")
	assert.Contains(t, out, "team: checkout")
	assert.Contains(t, out, "name: registry.example.com/acme/svc-a")
	assert.Less(t, strings.Index(out, "resources"), strings.Index(out, "images"))
}

func TestReadTagErrors(t *testing.T) {
	_, err := readTag([]byte("kind: Kustomization\n"))
	assert.Error(t, err)

	_, err = readTag([]byte("images: []\n"))
	assert.Error(t, err)

	_, err = readTag([]byte("images:\n- name: x\n"))
	assert.Error(t, err)
}

func TestNonFastForwardDetection(t *testing.T) {
	assert.True(t, nonFastForward("! [rejected] main -> main (non-fast-forward)"))
	assert.True(t, nonFastForward("hint: Updates were rejected. fetch first"))
	assert.False(t, nonFastForward("fatal: repository not found"))
}
