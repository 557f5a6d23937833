package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesToCap(t *testing.T) {
	b := &backoff{initial: 500 * time.Millisecond, max: 10 * time.Second}

	assert.Equal(t, time.Duration(0), b.Wait())

	expected := []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for _, want := range expected {
		b.Failure()
		assert.Equal(t, want, b.Wait())
	}
}
