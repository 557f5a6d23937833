package skopeo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagMissing(t *testing.T) {
	assert.True(t, tagMissing("reading manifest amd64-abc1234: manifest unknown"))
	assert.True(t, tagMissing("requested access to the resource is denied: name unknown"))
	assert.True(t, tagMissing("StatusCode: 404, body: not found"))
	assert.False(t, tagMissing("connection reset by peer"))
	assert.False(t, tagMissing("i/o timeout"))
}

func TestBinOverride(t *testing.T) {
	t.Setenv("SKOPEO_BIN", "")
	c := NewClient("/tmp/svc-a.tar")
	assert.Equal(t, "skopeo", c.bin())
	c.Bin = "/opt/bin/skopeo"
	assert.Equal(t, "/opt/bin/skopeo", c.bin())
}
