package registry

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/nexusops/forge/pkg/config"
	fluxerr "github.com/nexusops/forge/pkg/errors"
	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/registry/mock"
)

var testName = image.Name{Domain: "ghcr.io", Image: "acme/nexus/svc-a"}

func testPusher(transport Transport, attempts int) *Pusher {
	return NewPusher(transport, config.PushPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}, clockwork.NewRealClock(), log.NewNopLogger())
}

func testTags(t *testing.T) image.Pair {
	pair, err := image.Resolve("svc-a", "amd64", "abc1234")
	assert.NoError(t, err)
	return pair
}

func TestPushBothTags(t *testing.T) {
	transport := &mock.Transport{}
	pair := testTags(t)

	result, err := testPusher(transport, 5).Push(context.Background(), testName, pair.Tags())
	assert.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 1, transport.Pushes(testName.ToRef(pair.SHA)))
	assert.Equal(t, 1, transport.Pushes(testName.ToRef(pair.Latest)))

	attempts := result.AttemptsFor(pair.SHA)
	if assert.Len(t, attempts, 1) {
		assert.Equal(t, OutcomeSucceeded, attempts[0].Outcome)
	}
}

func TestPushRetriesThenSucceeds(t *testing.T) {
	const k = 3
	transport := &mock.Transport{FailPushes: k}
	pair := testTags(t)

	result, err := testPusher(transport, 5).Push(context.Background(), testName, []image.Tag{pair.SHA})
	assert.NoError(t, err)

	// k failures then one success: exactly k+1 attempts recorded.
	attempts := result.AttemptsFor(pair.SHA)
	assert.Len(t, attempts, k+1)
	for i := 0; i < k; i++ {
		assert.Equal(t, OutcomeFailed, attempts[i].Outcome)
		assert.NotEmpty(t, attempts[i].Err)
		assert.Equal(t, i+1, attempts[i].N)
	}
	assert.Equal(t, OutcomeSucceeded, attempts[k].Outcome)
}

func TestPushExhaustsAttempts(t *testing.T) {
	const n = 4
	transport := &mock.Transport{FailPushes: 100}
	pair := testTags(t)

	result, err := testPusher(transport, n).Push(context.Background(), testName, []image.Tag{pair.SHA})
	assert.Error(t, err)
	assert.Equal(t, fluxerr.Transport, fluxerr.TypeOf(err))
	assert.Len(t, result.AttemptsFor(pair.SHA), n)
	assert.Equal(t, n, transport.Pushes(testName.ToRef(pair.SHA)))
}

func TestPushLatestFailureIsWarning(t *testing.T) {
	pair := testTags(t)
	transport := &mock.Transport{}
	// Seed the sha tag so it skips, leaving the scripted failures for
	// the floating tag.
	transport.Seed(testName.ToRef(pair.SHA))
	transport.FailPushes = 100

	result, err := testPusher(transport, 3).Push(context.Background(), testName, pair.Tags())
	assert.NoError(t, err)
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "amd64-latest")
}

func TestPushExistingTagSkipped(t *testing.T) {
	pair := testTags(t)
	transport := &mock.Transport{}
	transport.Seed(testName.ToRef(pair.SHA), testName.ToRef(pair.Latest))

	result, err := testPusher(transport, 3).Push(context.Background(), testName, pair.Tags())
	assert.NoError(t, err)
	assert.Equal(t, 0, transport.Pushes(testName.ToRef(pair.SHA)))

	attempts := result.AttemptsFor(pair.SHA)
	if assert.Len(t, attempts, 1) {
		assert.Equal(t, OutcomeSkipped, attempts[0].Outcome)
	}
}

func TestPushUnconfirmedUploadFails(t *testing.T) {
	pair := testTags(t)
	transport := &mock.Transport{Unconfirmed: true}

	_, err := testPusher(transport, 2).Push(context.Background(), testName, []image.Tag{pair.SHA})
	assert.Error(t, err)
	assert.Equal(t, fluxerr.Transport, fluxerr.TypeOf(err))
	assert.Contains(t, err.Error(), "does not serve")
}

func TestPushValidation(t *testing.T) {
	pair := testTags(t)

	_, err := testPusher(&mock.Transport{}, 3).Push(context.Background(), image.Name{}, pair.Tags())
	assert.Equal(t, fluxerr.Validation, fluxerr.TypeOf(err))

	_, err = testPusher(&mock.Transport{}, 3).Push(context.Background(), testName, nil)
	assert.Equal(t, fluxerr.Validation, fluxerr.TypeOf(err))
}

func TestPushCancelled(t *testing.T) {
	transport := &mock.Transport{FailPushes: 100}
	pair := testTags(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testPusher(transport, 5).Push(ctx, testName, []image.Tag{pair.SHA})
	assert.Error(t, err)
}
