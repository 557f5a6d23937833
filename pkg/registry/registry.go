package registry

import (
	"context"
	"time"

	"github.com/nexusops/forge/pkg/image"
)

// Transport is the capability the pusher needs from a concrete
// registry client. Implementations must be safe for use by multiple
// pipeline runs concurrently.
type Transport interface {
	// PushTag uploads the image under the given ref's tag. A nil
	// return means the registry accepted the upload; it does not by
	// itself mean the manifest is visible (see TagExists).
	PushTag(ctx context.Context, ref image.Ref) error
	// TagExists reports whether the registry serves a manifest for
	// the ref.
	TagExists(ctx context.Context, ref image.Ref) (bool, error)
}

// Outcome of one push attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped records that the tag already existed, so nothing
	// was uploaded. Re-running a successful push is a no-op.
	OutcomeSkipped Outcome = "skipped"
)

// Attempt is one try at pushing one tag. Attempts are append-only;
// the trail is surfaced whole on fatal errors.
type Attempt struct {
	Tag     image.Tag
	N       int
	Outcome Outcome
	Err     string
	Elapsed time.Duration
}

// Result is what one push operation produced: the full attempt trail
// for every tag, plus warnings for non-fatal trouble (a failed
// floating tag, for instance).
type Result struct {
	Image    image.Name
	Attempts []Attempt
	Warnings []string
}

// AttemptsFor returns the attempt trail for one tag, in order.
func (r Result) AttemptsFor(tag image.Tag) []Attempt {
	var out []Attempt
	for _, a := range r.Attempts {
		if a.Tag == tag {
			out = append(out, a)
		}
	}
	return out
}
