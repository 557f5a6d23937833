// Package gitrepo implements manifest.Transport over a real git
// remote, shelling out to the git CLI and editing the kustomization
// file in place.
package gitrepo

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/nexusops/forge/pkg/manifest"
	"github.com/nexusops/forge/pkg/resource"
)

const (
	gitUser  = "forge"
	gitEmail = "release@nexusops.dev"
)

// Repo keeps one working clone per remote URL, created lazily under a
// temp directory. The manifest updater serializes writers per repo,
// so the clone itself needs no finer locking than the map.
type Repo struct {
	mu      sync.Mutex
	baseDir string
	clones  map[string]string
}

func New() *Repo {
	return &Repo{clones: map[string]string{}}
}

// Clean removes all working clones.
func (r *Repo) Clean() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.baseDir != "" {
		os.RemoveAll(r.baseDir)
		r.baseDir = ""
		r.clones = map[string]string{}
	}
}

func (r *Repo) ReadTag(ctx context.Context, loc resource.Locator) (string, error) {
	dir, err := r.workingClone(ctx, loc)
	if err != nil {
		return "", err
	}
	raw, err := ioutil.ReadFile(filepath.Join(dir, loc.Path))
	if err != nil {
		return "", errors.Wrap(err, "reading manifest")
	}
	return readTag(raw)
}

func (r *Repo) WriteTag(ctx context.Context, loc resource.Locator, tag string) error {
	dir, err := r.workingClone(ctx, loc)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, loc.Path)
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading manifest")
	}
	edited, err := writeTag(raw, tag)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, edited, info.Mode())
}

func (r *Repo) CommitAndPush(ctx context.Context, loc resource.Locator, action manifest.CommitAction) (string, error) {
	dir, err := r.workingClone(ctx, loc)
	if err != nil {
		return "", err
	}
	if err := execGitCmd(ctx, dir, nil, "add", "--", loc.Path); err != nil {
		return "", errors.Wrap(err, "git add")
	}
	commitArgs := []string{"commit", "--no-verify", "-m", action.Message}
	if action.Author != "" {
		commitArgs = append(commitArgs, "--author", action.Author)
	}
	if err := execGitCmd(ctx, dir, nil, commitArgs...); err != nil {
		return "", errors.Wrap(err, "git commit")
	}
	if err := execGitCmd(ctx, dir, nil, "push", "origin", loc.Branch); err != nil {
		if nonFastForward(err.Error()) {
			return "", manifest.ErrNonFastForward
		}
		return "", errors.Wrap(err, "git push")
	}
	out := &bytes.Buffer{}
	if err := execGitCmd(ctx, dir, out, "rev-parse", "HEAD"); err != nil {
		return "", errors.Wrap(err, "git rev-parse")
	}
	return strings.TrimSpace(out.String()), nil
}

// Fetch discards local state and resets to the remote branch head,
// including any commit that was made but could not be pushed.
func (r *Repo) Fetch(ctx context.Context, loc resource.Locator) error {
	dir, err := r.workingClone(ctx, loc)
	if err != nil {
		return err
	}
	if err := execGitCmd(ctx, dir, nil, "fetch", "origin", loc.Branch); err != nil {
		return errors.Wrap(err, "git fetch")
	}
	if err := execGitCmd(ctx, dir, nil, "reset", "--hard", "origin/"+loc.Branch); err != nil {
		return errors.Wrap(err, "git reset")
	}
	return nil
}

func (r *Repo) workingClone(ctx context.Context, loc resource.Locator) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dir, ok := r.clones[loc.Repo]; ok {
		return dir, nil
	}
	if r.baseDir == "" {
		base, err := ioutil.TempDir("", "forge-gitclone")
		if err != nil {
			return "", err
		}
		r.baseDir = base
	}
	dir, err := ioutil.TempDir(r.baseDir, "repo")
	if err != nil {
		return "", err
	}
	args := []string{"clone", "--single-branch"}
	if loc.Branch != "" {
		args = append(args, "--branch", loc.Branch)
	}
	args = append(args, loc.Repo, dir)
	if err := execGitCmd(ctx, "", nil, args...); err != nil {
		return "", errors.Wrapf(err, "cloning %s", loc.Repo)
	}
	for k, v := range map[string]string{"user.name": gitUser, "user.email": gitEmail} {
		if err := execGitCmd(ctx, dir, nil, "config", k, v); err != nil {
			return "", errors.Wrap(err, "setting git config")
		}
	}
	r.clones[loc.Repo] = dir
	return dir, nil
}

// nonFastForward recognizes a push rejected because the remote moved
// on. Wording varies by git version and server.
func nonFastForward(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{
		"non-fast-forward",
		"fetch first",
		"cannot lock ref",
		"[rejected]",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Env vars that are allowed through to git.
var allowedEnvVars = []string{"http_proxy", "https_proxy", "no_proxy", "HOME", "PATH", "SSH_AUTH_SOCK", "GIT_SSH_COMMAND"}

func execGitCmd(ctx context.Context, dir string, out *bytes.Buffer, args ...string) error {
	c := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		c.Dir = dir
	}
	var env []string
	for _, k := range allowedEnvVars {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	c.Env = env
	errOut := &bytes.Buffer{}
	c.Stderr = errOut
	if out != nil {
		c.Stdout = out
	}
	err := c.Run()
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "running git %s", strings.Join(args, " "))
	}
	if err != nil {
		if msg := strings.TrimSpace(errOut.String()); msg != "" {
			return errors.New(msg)
		}
	}
	return err
}
