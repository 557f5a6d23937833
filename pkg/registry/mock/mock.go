package mock

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/nexusops/forge/pkg/image"
)

// Transport is a scriptable in-memory registry for tests. The zero
// value accepts every push.
type Transport struct {
	mu sync.Mutex

	// FailPushes makes the next n PushTag calls fail.
	FailPushes int
	// PushErr overrides the error returned for scripted failures.
	PushErr error
	// Unconfirmed makes PushTag succeed without the tag becoming
	// visible, simulating a registry that 200s the upload but does
	// not serve the manifest.
	Unconfirmed bool
	// ExistsErr is returned from TagExists when set.
	ExistsErr error

	pushed map[string]int
	tags   map[string]bool
}

func (t *Transport) init() {
	if t.pushed == nil {
		t.pushed = map[string]int{}
	}
	if t.tags == nil {
		t.tags = map[string]bool{}
	}
}

// Seed marks refs as already existing in the registry.
func (t *Transport) Seed(refs ...image.Ref) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	for _, ref := range refs {
		t.tags[ref.String()] = true
	}
}

func (t *Transport) PushTag(ctx context.Context, ref image.Ref) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	t.pushed[ref.String()]++
	if t.FailPushes > 0 {
		t.FailPushes--
		if t.PushErr != nil {
			return t.PushErr
		}
		return errors.New("connection reset by registry")
	}
	if !t.Unconfirmed {
		t.tags[ref.String()] = true
	}
	return nil
}

func (t *Transport) TagExists(ctx context.Context, ref image.Ref) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	if t.ExistsErr != nil {
		return false, t.ExistsErr
	}
	return t.tags[ref.String()], nil
}

// Pushes reports how many times a ref was uploaded.
func (t *Transport) Pushes(ref image.Ref) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	return t.pushed[ref.String()]
}
