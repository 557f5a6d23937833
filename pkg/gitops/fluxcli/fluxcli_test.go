package fluxcli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRevisionSHA(t *testing.T) {
	assert.Equal(t, "a94e9f8", revisionSHA("main@sha1:a94e9f8"))
	assert.Equal(t, "a94e9f8", revisionSHA("main/a94e9f8"))
	assert.Equal(t, "a94e9f8", revisionSHA("a94e9f8"))
	assert.Equal(t, "", revisionSHA(""))
}

func TestSplitHandle(t *testing.T) {
	namespace, name := splitHandle("flux-system/svc-a")
	assert.Equal(t, "flux-system", namespace)
	assert.Equal(t, "svc-a", name)

	namespace, name = splitHandle("svc-a")
	assert.Equal(t, "flux-system", namespace)
	assert.Equal(t, "svc-a", name)
}
