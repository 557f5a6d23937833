// Package manifesttest provides an in-memory manifest repository
// implementing manifest.Transport, for tests that need commit/push
// semantics without a real git remote.
package manifesttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/nexusops/forge/pkg/manifest"
	"github.com/nexusops/forge/pkg/resource"
)

// kustomization models just enough of a kustomization.yaml for the
// tag field round-trip.
type kustomization struct {
	Resources []string `yaml:"resources,omitempty"`
	Images    []struct {
		Name   string `yaml:"name"`
		NewTag string `yaml:"newTag"`
	} `yaml:"images"`
}

// Commit is a recorded commit on the fake repository.
type Commit struct {
	Revision string
	Message  string
	Author   string
	Tag      string
}

// Repo is a concurrency-safe fake of one manifest repository. All
// locators sharing the Repo identity hit the same content.
type Repo struct {
	mu sync.Mutex

	content string
	commits []Commit
	// RejectPushes makes the next n CommitAndPush calls fail with
	// ErrNonFastForward, as if another writer won the race. Fetch
	// "resolves" the conflict.
	RejectPushes int
	// ReadErr, when set, is returned from ReadTag.
	ReadErr error

	fetches int
}

// NewRepo returns a repo whose manifest currently pins the given tag.
func NewRepo(imageName, tag string) *Repo {
	doc := kustomization{}
	doc.Resources = []string{"deployment.yaml", "service.yaml"}
	doc.Images = append(doc.Images, struct {
		Name   string `yaml:"name"`
		NewTag string `yaml:"newTag"`
	}{Name: imageName, NewTag: tag})
	raw, err := yaml.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return &Repo{content: string(raw)}
}

func (r *Repo) ReadTag(ctx context.Context, loc resource.Locator) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ReadErr != nil {
		return "", r.ReadErr
	}
	doc, err := r.parse()
	if err != nil {
		return "", err
	}
	if len(doc.Images) == 0 {
		return "", errors.Errorf("no images entry in %s", loc.Path)
	}
	return doc.Images[0].NewTag, nil
}

func (r *Repo) WriteTag(ctx context.Context, loc resource.Locator, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.parse()
	if err != nil {
		return err
	}
	if len(doc.Images) == 0 {
		return errors.Errorf("no images entry in %s", loc.Path)
	}
	doc.Images[0].NewTag = tag
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	r.content = string(raw)
	return nil
}

func (r *Repo) CommitAndPush(ctx context.Context, loc resource.Locator, action manifest.CommitAction) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RejectPushes > 0 {
		r.RejectPushes--
		return "", manifest.ErrNonFastForward
	}
	doc, err := r.parse()
	if err != nil {
		return "", err
	}
	revision := fmt.Sprintf("rev-%06d", len(r.commits)+1)
	r.commits = append(r.commits, Commit{
		Revision: revision,
		Message:  action.Message,
		Author:   action.Author,
		Tag:      doc.Images[0].NewTag,
	})
	return revision, nil
}

func (r *Repo) Fetch(ctx context.Context, loc resource.Locator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	// Discard any unpushed edit by restoring the last committed tag.
	if len(r.commits) > 0 {
		doc, err := r.parse()
		if err != nil {
			return err
		}
		doc.Images[0].NewTag = r.commits[len(r.commits)-1].Tag
		raw, err := yaml.Marshal(doc)
		if err != nil {
			return err
		}
		r.content = string(raw)
	}
	return nil
}

// Commits returns the commit log, oldest first.
func (r *Repo) Commits() []Commit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Commit, len(r.commits))
	copy(out, r.commits)
	return out
}

// Fetches reports how many times the repo was re-fetched.
func (r *Repo) Fetches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

// HeadTag returns the tag currently in the manifest content.
func (r *Repo) HeadTag() string {
	tag, err := r.ReadTag(context.Background(), resource.Locator{})
	if err != nil {
		panic(err)
	}
	return tag
}

func (r *Repo) parse() (*kustomization, error) {
	var doc kustomization
	if err := yaml.Unmarshal([]byte(r.content), &doc); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}
	return &doc, nil
}
