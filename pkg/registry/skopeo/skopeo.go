// Package skopeo implements registry.Transport by shelling out to
// skopeo, pushing from a docker-archive file and checking tag
// visibility with `skopeo inspect`.
package skopeo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/nexusops/forge/pkg/image"
)

// Client pushes one built artifact, a docker-archive tarball, under
// whatever tags the pusher asks for. Safe for concurrent use: each
// call is an independent skopeo process.
type Client struct {
	// Archive is the path to the docker-archive file to push.
	Archive string
	// ArchiveDir, when set, selects the artifact per image instead:
	// the archive for image …/svc-a is <ArchiveDir>/svc-a.tar. Used
	// when one client pushes several services' images.
	ArchiveDir string
	// Bin overrides the skopeo binary; empty means $SKOPEO_BIN or
	// "skopeo".
	Bin string
}

func NewClient(archive string) *Client {
	return &Client{Archive: archive}
}

func (c *Client) archiveFor(ref image.Ref) string {
	if c.ArchiveDir != "" {
		return filepath.Join(c.ArchiveDir, ref.Service()+".tar")
	}
	return c.Archive
}

func (c *Client) bin() string {
	if c.Bin != "" {
		return c.Bin
	}
	if bin := os.Getenv("SKOPEO_BIN"); bin != "" {
		return bin
	}
	return "skopeo"
}

func (c *Client) PushTag(ctx context.Context, ref image.Ref) error {
	args := []string{
		"copy",
		"--dest-precompute-digests",
		fmt.Sprintf("docker-archive:%s", c.archiveFor(ref)),
		fmt.Sprintf("docker://%s", ref.String()),
	}
	if err := c.run(ctx, nil, args...); err != nil {
		return errors.Wrapf(err, "skopeo copy to %s", ref.String())
	}
	return nil
}

func (c *Client) TagExists(ctx context.Context, ref image.Ref) (bool, error) {
	out := &bytes.Buffer{}
	args := []string{
		"inspect",
		"--raw",
		fmt.Sprintf("docker://%s", ref.String()),
	}
	err := c.run(ctx, out, args...)
	if err == nil {
		return true, nil
	}
	if tagMissing(err.Error()) {
		return false, nil
	}
	return false, errors.Wrapf(err, "skopeo inspect %s", ref.String())
}

// tagMissing tells a tag that is not there apart from a registry that
// is not answering. Registries word this a few different ways.
func tagMissing(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{
		"manifest unknown",
		"name unknown",
		"not found",
		"unauthorized", // GHCR answers 403 for missing tags on private images
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (c *Client) run(ctx context.Context, out *bytes.Buffer, args ...string) error {
	cmd := exec.CommandContext(ctx, c.bin(), args...)
	errOut := &bytes.Buffer{}
	cmd.Stderr = errOut
	if out != nil {
		cmd.Stdout = out
	}
	err := cmd.Run()
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "running %s %s", c.bin(), strings.Join(args, " "))
	}
	if err != nil {
		if msg := strings.TrimSpace(errOut.String()); msg != "" {
			return errors.New(msg)
		}
		return err
	}
	return nil
}
