// Package kubectl implements cluster.Transport by shelling out to
// kubectl and parsing its JSON output.
package kubectl

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nexusops/forge/pkg/cluster"
	"github.com/nexusops/forge/pkg/resource"
)

// Client reads workload state for one cluster. Deployments and their
// pods are located by the target's service name (label app=<service>).
type Client struct {
	// Bin overrides the kubectl binary.
	Bin string
	// Kubeconfig and Context are passed through when set.
	Kubeconfig string
	Context    string
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) RolloutStatus(ctx context.Context, target resource.Target) (cluster.RolloutObservation, error) {
	raw, err := c.run(ctx, target.Namespace, "get", "deployment", target.Service, "-o", "json")
	if err != nil {
		return cluster.RolloutObservation{}, errors.Wrapf(err, "reading deployment %s", target.Service)
	}
	obs, err := parseDeployment(raw)
	if err != nil {
		return cluster.RolloutObservation{}, err
	}

	raw, err = c.run(ctx, target.Namespace, "get", "pods", "-l", "app="+target.Service, "-o", "json")
	if err != nil {
		return cluster.RolloutObservation{}, errors.Wrapf(err, "listing pods of %s", target.Service)
	}
	obs.Pods, err = parsePods(raw)
	if err != nil {
		return cluster.RolloutObservation{}, err
	}
	return obs, nil
}

func (c *Client) PodLogs(ctx context.Context, target resource.Target, pod string, tailLines int) (string, error) {
	raw, err := c.run(ctx, target.Namespace, "logs", pod, "--tail", strconv.Itoa(tailLines))
	if err != nil {
		return "", errors.Wrapf(err, "reading logs of %s", pod)
	}
	return string(raw), nil
}

func (c *Client) PodEvents(ctx context.Context, target resource.Target, pod string, limit int) ([]string, error) {
	raw, err := c.run(ctx, target.Namespace,
		"get", "events",
		"--field-selector", "involvedObject.name="+pod,
		"--sort-by", ".lastTimestamp",
		"-o", "json",
	)
	if err != nil {
		return nil, errors.Wrapf(err, "reading events of %s", pod)
	}
	events, err := parseEvents(raw)
	if err != nil {
		return nil, err
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (c *Client) run(ctx context.Context, namespace string, args ...string) ([]byte, error) {
	bin := c.Bin
	if bin == "" {
		bin = "kubectl"
	}
	full := make([]string, 0, len(args)+6)
	full = append(full, args...)
	if namespace != "" {
		full = append(full, "--namespace", namespace)
	}
	if c.Kubeconfig != "" {
		full = append(full, "--kubeconfig", c.Kubeconfig)
	}
	if c.Context != "" {
		full = append(full, "--context", c.Context)
	}
	cmd := exec.CommandContext(ctx, bin, full...)
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.Stdout = out
	cmd.Stderr = errOut
	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, errors.Wrapf(ctx.Err(), "running %s %s", bin, strings.Join(full, " "))
	}
	if err != nil {
		if msg := strings.TrimSpace(errOut.String()); msg != "" {
			return nil, errors.New(msg)
		}
		return nil, err
	}
	return out.Bytes(), nil
}

// imageTag returns the tag part of a pod container image ref, or "".
func imageTag(image string) string {
	slash := strings.LastIndex(image, "/")
	colon := strings.LastIndex(image, ":")
	if colon > slash {
		return image[colon+1:]
	}
	return ""
}
