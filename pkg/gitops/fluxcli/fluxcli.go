// Package fluxcli implements gitops.Transport by driving the flux and
// kubectl CLIs. The source is reconciled before the kustomization:
// reconciling only the kustomization applies from the last-fetched
// commit, which may not include the manifest update yet.
package fluxcli

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/nexusops/forge/pkg/gitops"
	"github.com/nexusops/forge/pkg/resource"
)

// Client triggers reconciliation of one git source and reads
// last-applied revisions back via kubectl. Kustomization objects are
// named after the target service, in the flux namespace.
type Client struct {
	// SourceName and Namespace locate the GitRepository source; both
	// default to "flux-system".
	SourceName string
	Namespace  string
	// FluxBin and KubectlBin override the binaries.
	FluxBin    string
	KubectlBin string
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) sourceName() string {
	if c.SourceName != "" {
		return c.SourceName
	}
	return "flux-system"
}

func (c *Client) namespace() string {
	if c.Namespace != "" {
		return c.Namespace
	}
	return "flux-system"
}

func (c *Client) fluxBin() string {
	if c.FluxBin != "" {
		return c.FluxBin
	}
	return "flux"
}

func (c *Client) kubectlBin() string {
	if c.KubectlBin != "" {
		return c.KubectlBin
	}
	return "kubectl"
}

func (c *Client) TriggerReconcile(ctx context.Context, target resource.Target) (gitops.Handle, error) {
	if err := run(ctx, nil, c.fluxBin(),
		"reconcile", "source", "git", c.sourceName(),
		"--namespace", c.namespace(),
	); err != nil {
		return "", errors.Wrap(err, "reconciling git source")
	}
	if err := run(ctx, nil, c.fluxBin(),
		"reconcile", "kustomization", target.Service,
		"--namespace", c.namespace(),
	); err != nil {
		return "", errors.Wrapf(err, "reconciling kustomization %s", target.Service)
	}
	return gitops.Handle(c.namespace() + "/" + target.Service), nil
}

func (c *Client) ReconcileStatus(ctx context.Context, handle gitops.Handle) (string, error) {
	namespace, name := splitHandle(handle)
	out := &bytes.Buffer{}
	if err := run(ctx, out, c.kubectlBin(),
		"get", "kustomization", name,
		"--namespace", namespace,
		"-o", "jsonpath={.status.lastAppliedRevision}",
	); err != nil {
		return "", errors.Wrapf(err, "reading status of kustomization %s", name)
	}
	return revisionSHA(strings.TrimSpace(out.String())), nil
}

func splitHandle(handle gitops.Handle) (namespace, name string) {
	parts := strings.SplitN(string(handle), "/", 2)
	if len(parts) != 2 {
		return "flux-system", string(handle)
	}
	return parts[0], parts[1]
}

// revisionSHA strips flux's revision prefix: "main@sha1:abc123" and
// the older "main/abc123" both mean commit abc123.
func revisionSHA(revision string) string {
	if i := strings.LastIndex(revision, ":"); i >= 0 {
		return revision[i+1:]
	}
	if i := strings.LastIndex(revision, "/"); i >= 0 {
		return revision[i+1:]
	}
	return revision
}

func run(ctx context.Context, out *bytes.Buffer, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	errOut := &bytes.Buffer{}
	cmd.Stderr = errOut
	if out != nil {
		cmd.Stdout = out
	}
	err := cmd.Run()
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "running %s %s", bin, strings.Join(args, " "))
	}
	if err != nil {
		if msg := strings.TrimSpace(errOut.String()); msg != "" {
			return errors.New(msg)
		}
	}
	return err
}
