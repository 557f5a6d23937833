package manifest

import (
	"context"
	"errors"
	"time"

	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/resource"
)

var (
	// ErrNonFastForward is what transports return when the remote
	// advanced between our fetch and our push. The updater responds
	// by re-fetching and re-applying the edit.
	ErrNonFastForward = errors.New("push rejected: remote contains work we do not have")
)

// Transport is the capability the updater needs from a concrete
// version-control client for the manifest repository.
type Transport interface {
	// ReadTag returns the deployed tag currently recorded at the
	// locator.
	ReadTag(ctx context.Context, loc resource.Locator) (string, error)
	// WriteTag rewrites the tag field at the locator in the working
	// copy. It must edit the field in place and leave the rest of the
	// file untouched.
	WriteTag(ctx context.Context, loc resource.Locator, tag string) error
	// CommitAndPush stages the working copy, commits with the given
	// action, and pushes to the tracking branch. It returns the new
	// commit's revision, or ErrNonFastForward if the remote advanced.
	CommitAndPush(ctx context.Context, loc resource.Locator, action CommitAction) (string, error)
	// Fetch updates the working copy to the remote head, discarding
	// any unpushed edit.
	Fetch(ctx context.Context, loc resource.Locator) error
}

// CommitAction is a struct holding commit information.
type CommitAction struct {
	Author  string
	Message string
}

// Update represents one atomic manifest mutation. Previous is
// retained so a rollback plan can be constructed from it later;
// Revision is set only when a commit was actually created.
type Update struct {
	Target   resource.Target
	Previous image.Tag
	New      image.Tag
	Revision string
	At       time.Time
}

// NoChange reports whether the update was a no-op: the manifest
// already held the new tag, so no commit was made.
func (u Update) NoChange() bool {
	return u.Revision == "" && u.Previous == u.New
}
