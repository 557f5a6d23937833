package image

import (
	"testing"

	"github.com/stretchr/testify/assert"

	fluxerr "github.com/nexusops/forge/pkg/errors"
)

func TestResolve(t *testing.T) {
	pair, err := Resolve("svc-a", "amd64", "abc1234")
	assert.NoError(t, err)
	assert.Equal(t, "amd64-abc1234", pair.SHA.String())
	assert.Equal(t, "amd64-latest", pair.Latest.String())
	assert.Equal(t, KindSHA, pair.SHA.Kind)
	assert.Equal(t, KindLatest, pair.Latest.Kind)
	assert.Len(t, pair.Tags(), 2)
}

func TestResolveDeterministic(t *testing.T) {
	a, err := Resolve("svc-a", "arm64", "def456")
	assert.NoError(t, err)
	b, err := Resolve("svc-a", "arm64", "def456")
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestResolveBlankInputs(t *testing.T) {
	for _, input := range [][3]string{
		{"", "amd64", "abc1234"},
		{"svc-a", "", "abc1234"},
		{"svc-a", "amd64", ""},
	} {
		_, err := Resolve(input[0], input[1], input[2])
		if assert.Error(t, err) {
			assert.Equal(t, fluxerr.Validation, fluxerr.TypeOf(err))
		}
	}
}

func TestParseName(t *testing.T) {
	for _, x := range []struct {
		input   string
		domain  string
		image   string
		org     string
		service string
	}{
		{"ghcr.io/acme/nexus/svc-a", "ghcr.io", "acme/nexus/svc-a", "acme", "svc-a"},
		{"localhost:5000/acme/svc-b", "localhost:5000", "acme/svc-b", "acme", "svc-b"},
		{"acme/svc-c", "", "acme/svc-c", "acme", "svc-c"},
	} {
		name, err := ParseName(x.input)
		assert.NoError(t, err)
		assert.Equal(t, x.domain, name.Domain)
		assert.Equal(t, x.image, name.Image)
		assert.Equal(t, x.org, name.Organization())
		assert.Equal(t, x.service, name.Service())
		assert.Equal(t, x.input, name.String())
	}
}

func TestParseNameInvalid(t *testing.T) {
	for _, input := range []string{"", "ghcr.io/acme/svc@sha256:deadbeef"} {
		_, err := ParseName(input)
		assert.Error(t, err)
	}
}

func TestRefString(t *testing.T) {
	name, _ := ParseName("ghcr.io/acme/nexus/svc-a")
	pair, _ := Resolve("svc-a", "amd64", "abc1234")
	assert.Equal(t, "ghcr.io/acme/nexus/svc-a:amd64-abc1234", name.ToRef(pair.SHA).String())
}
