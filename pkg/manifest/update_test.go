package manifest_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fluxerr "github.com/nexusops/forge/pkg/errors"
	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/manifest"
	"github.com/nexusops/forge/pkg/manifest/manifesttest"
	"github.com/nexusops/forge/pkg/resource"
)

func testTarget(repo string) resource.Target {
	return resource.Target{
		Service:     "svc-a",
		Environment: "staging",
		Registry:    image.Name{Domain: "ghcr.io", Image: "acme/nexus/svc-a"},
		Manifest:    resource.Locator{Repo: repo, Branch: "main", Path: "k8s/svc-a/kustomization.yaml"},
	}
}

func mustTag(t *testing.T, s string) image.Tag {
	tag, err := image.ParseTag(s)
	require.NoError(t, err)
	return tag
}

func TestUpdateRecordsPreviousTag(t *testing.T) {
	repo := manifesttest.NewRepo("ghcr.io/acme/nexus/svc-a", "amd64-abc123")
	updater := manifest.NewUpdater(repo, log.NewNopLogger())
	target := testTarget("repo-1")

	update, err := updater.Update(context.Background(), target, mustTag(t, "amd64-def456"))
	require.NoError(t, err)
	assert.Equal(t, "amd64-abc123", update.Previous.String())
	assert.Equal(t, "amd64-def456", update.New.String())
	assert.NotEmpty(t, update.Revision)
	assert.Equal(t, "amd64-def456", repo.HeadTag())

	commits := repo.Commits()
	require.Len(t, commits, 1)
	assert.Contains(t, commits[0].Message, "deploy: update svc-a to amd64-def456")
}

// Two sequential updates form a chain: each Previous equals the prior
// New.
func TestUpdateChain(t *testing.T) {
	repo := manifesttest.NewRepo("ghcr.io/acme/nexus/svc-a", "amd64-abc123")
	updater := manifest.NewUpdater(repo, log.NewNopLogger())
	target := testTarget("repo-1")

	first, err := updater.Update(context.Background(), target, mustTag(t, "amd64-def456"))
	require.NoError(t, err)
	second, err := updater.Update(context.Background(), target, mustTag(t, "amd64-fed789"))
	require.NoError(t, err)

	assert.Equal(t, first.New, second.Previous)
	assert.Len(t, repo.Commits(), 2)
}

func TestUpdateSameTagMakesNoCommit(t *testing.T) {
	repo := manifesttest.NewRepo("ghcr.io/acme/nexus/svc-a", "amd64-abc123")
	updater := manifest.NewUpdater(repo, log.NewNopLogger())

	update, err := updater.Update(context.Background(), testTarget("repo-1"), mustTag(t, "amd64-abc123"))
	require.NoError(t, err)
	assert.True(t, update.NoChange())
	assert.Empty(t, repo.Commits())
}

func TestUpdateRebasesOnPushRejection(t *testing.T) {
	repo := manifesttest.NewRepo("ghcr.io/acme/nexus/svc-a", "amd64-abc123")
	repo.RejectPushes = 2
	updater := manifest.NewUpdater(repo, log.NewNopLogger())

	update, err := updater.Update(context.Background(), testTarget("repo-1"), mustTag(t, "amd64-def456"))
	require.NoError(t, err)
	assert.NotEmpty(t, update.Revision)
	assert.Equal(t, 2, repo.Fetches())
	assert.Equal(t, "amd64-def456", repo.HeadTag())
}

func TestUpdateConflictAfterBoundedRetries(t *testing.T) {
	repo := manifesttest.NewRepo("ghcr.io/acme/nexus/svc-a", "amd64-abc123")
	repo.RejectPushes = 100
	updater := manifest.NewUpdater(repo, log.NewNopLogger())

	_, err := updater.Update(context.Background(), testTarget("repo-1"), mustTag(t, "amd64-def456"))
	require.Error(t, err)
	assert.Equal(t, fluxerr.ManifestConflict, fluxerr.TypeOf(err))
}

// A transport that observes how many updates are inside it at once.
type concurrencyProbe struct {
	manifest.Transport
	inflight int32
	max      int32
}

func (p *concurrencyProbe) CommitAndPush(ctx context.Context, loc resource.Locator, action manifest.CommitAction) (string, error) {
	n := atomic.AddInt32(&p.inflight, 1)
	for {
		old := atomic.LoadInt32(&p.max)
		if n <= old || atomic.CompareAndSwapInt32(&p.max, old, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	defer atomic.AddInt32(&p.inflight, -1)
	return p.Transport.CommitAndPush(ctx, loc, action)
}

// Updates to the same repository never run in parallel; updates to
// distinct repositories may.
func TestUpdateSerializedPerRepo(t *testing.T) {
	repo := manifesttest.NewRepo("ghcr.io/acme/nexus/svc-a", "amd64-abc123")
	probe := &concurrencyProbe{Transport: repo}
	updater := manifest.NewUpdater(probe, log.NewNopLogger())
	target := testTarget("repo-1")

	var wg sync.WaitGroup
	tags := []string{"amd64-aaa111", "amd64-bbb222", "amd64-ccc333", "amd64-ddd444"}
	for _, s := range tags {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			_, err := updater.Update(context.Background(), target, mustTag(t, s))
			assert.NoError(t, err)
		}(s)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&probe.max))
	assert.Len(t, repo.Commits(), len(tags))
}
