package manifest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	fluxerr "github.com/nexusops/forge/pkg/errors"
	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/resource"
)

const (
	// A non-fast-forward push means someone else landed a commit
	// between our fetch and push; re-fetching and re-applying the
	// one-field edit resolves it. More than a couple of rounds of
	// losing that race suggests something is wrong with the repo.
	pushRetries = 3

	commitAuthor = "forge <release@nexusops.dev>"
)

// Updater rewrites the deployed tag in a manifest, commits, and
// pushes. Updates against the same repository are serialized through
// a per-repository lock, so concurrent pipelines against different
// repos still proceed in parallel.
type Updater struct {
	transport Transport
	logger    log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewUpdater(transport Transport, logger log.Logger) *Updater {
	return &Updater{
		transport: transport,
		logger:    log.With(logger, "component", "manifest"),
		locks:     map[string]*sync.Mutex{},
	}
}

// repoLock returns the single-writer lock for a repository identity.
func (u *Updater) repoLock(repo string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()
	l, ok := u.locks[repo]
	if !ok {
		l = &sync.Mutex{}
		u.locks[repo] = l
	}
	return l
}

// Update points the target's manifest at newTag. The tag previously
// recorded in the manifest is captured on the returned Update; each
// update's Previous equals the prior update's New, and the rollback
// controller trusts that chain. Writing the tag the manifest already
// holds makes no commit and is not an error.
func (u *Updater) Update(ctx context.Context, target resource.Target, newTag image.Tag) (Update, error) {
	lock := u.repoLock(target.Manifest.Repo)
	lock.Lock()
	defer lock.Unlock()

	logger := log.With(u.logger, "target", target.ID(), "repo", target.Manifest.Repo)

	update := Update{Target: target, New: newTag, At: time.Now().UTC()}
	for attempt := 0; attempt <= pushRetries; attempt++ {
		if attempt > 0 {
			logger.Log("info", "push rejected, refetching and reapplying", "attempt", attempt)
			if err := u.transport.Fetch(ctx, target.Manifest); err != nil {
				return update, transportErr(errors.Wrap(err, "fetching manifest repo"))
			}
		}

		current, err := u.transport.ReadTag(ctx, target.Manifest)
		if err != nil {
			return update, transportErr(errors.Wrapf(err, "reading current tag from %s", target.Manifest.Path))
		}
		previous, err := image.ParseTag(current)
		if err != nil {
			return update, err
		}
		update.Previous = previous

		if previous == newTag {
			logger.Log("info", "manifest already holds tag, nothing to commit", "tag", newTag.String())
			return update, nil
		}

		if err := u.transport.WriteTag(ctx, target.Manifest, newTag.String()); err != nil {
			return update, transportErr(errors.Wrapf(err, "writing tag to %s", target.Manifest.Path))
		}

		revision, err := u.transport.CommitAndPush(ctx, target.Manifest, CommitAction{
			Author:  commitAuthor,
			Message: commitMessage(target.Service, newTag, update.At),
		})
		switch {
		case err == nil:
			update.Revision = revision
			logger.Log("info", "manifest updated", "previous", previous.String(), "new", newTag.String(), "revision", revision)
			return update, nil
		case errors.Is(err, ErrNonFastForward):
			continue
		default:
			return update, transportErr(errors.Wrap(err, "pushing manifest commit"))
		}
	}

	return update, &fluxerr.Error{
		Type: fluxerr.ManifestConflict,
		Err:  fmt.Errorf("manifest push for %s rejected %d times", target.ID(), pushRetries+1),
		Help: "The manifest repository kept advancing while we tried to push. Check for a runaway committer (another deploy loop, perhaps), then re-run.",
	}
}

func commitMessage(service string, tag image.Tag, at time.Time) string {
	return fmt.Sprintf("deploy: update %s to %s\n\nDeployed-at: %s\n", service, tag, at.Format(time.RFC3339))
}

func transportErr(err error) error {
	return &fluxerr.Error{
		Type: fluxerr.Transport,
		Err:  err,
		Help: "A version-control operation against the manifest repository failed. This is usually transient; the step may be retried.",
	}
}
