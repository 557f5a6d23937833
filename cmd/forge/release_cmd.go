package main

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/release"
)

type releaseOpts struct {
	*rootOpts
	service     string
	environment string
	namespace   string
	sha         string
	archive     string
	noRollback  bool
	steps       []string
}

func newRelease(parent *rootOpts) *releaseOpts {
	return &releaseOpts{rootOpts: parent}
}

func (opts *releaseOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Deploy, then run follow-up steps: migrations, notifications, verification.",
		Long: strings.TrimSpace(`
Deploy, then run follow-up steps in order. Each --step is name=command,
run through the shell after the deploy has gone healthy. A failing step
aborts the remainder but never rolls back the deploy.`),
		Example: makeExample(
			`forge release --service svc-a --environment production --sha abc1234 --archive out/svc-a.tar \`,
			`    --step "migrate=./bin/migrate up" --step "notify=./bin/announce svc-a"`,
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.service, "service", "s", "", "service to release")
	cmd.Flags().StringVarP(&opts.environment, "environment", "e", "", "environment to release to")
	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "workload namespace (default: the environment name)")
	cmd.Flags().StringVar(&opts.sha, "sha", "", "short source commit hash the image was built from")
	cmd.Flags().StringVar(&opts.archive, "archive", "", "docker-archive file of the built image")
	cmd.Flags().BoolVar(&opts.noRollback, "no-rollback", false, "on rollout failure, abort without reverting the manifest")
	cmd.Flags().StringArrayVar(&opts.steps, "step", nil, "follow-up step, name=command; may be repeated")
	return cmd
}

func (opts *releaseOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.service == "" || opts.environment == "" || opts.sha == "" || opts.archive == "" {
		return newUsageError("please supply --service, --environment, --sha and --archive")
	}

	target, err := opts.target(opts.service, opts.environment, opts.namespace)
	if err != nil {
		return err
	}
	pair, err := image.Resolve(opts.service, opts.arch, opts.sha)
	if err != nil {
		return err
	}
	steps, err := parseSteps(opts.steps)
	if err != nil {
		return err
	}

	policy := release.PolicyAbortAndRollback
	if opts.noRollback {
		policy = release.PolicyAbort
	}
	spec := release.ReleaseSpec{
		Deploy: release.DeploySpec{
			Target: target,
			Image:  target.Registry,
			Tags:   pair.Tags(),
			Tag:    pair.SHA,
			Policy: policy,
		},
		Steps: steps,
	}

	run, err := opts.orchestrator(opts.archive, "").OrchestrateRelease(cmd.Context(), spec)
	release.PrintResult(os.Stdout, run)
	if err != nil {
		printHelp(err)
		return exitError{code: release.ExitCode(run), err: err}
	}
	return nil
}

// parseSteps turns name=command flags into shell-backed custom steps.
func parseSteps(raw []string) ([]release.CustomStep, error) {
	var steps []release.CustomStep
	for _, s := range raw {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, newUsageError("--step must be name=command, got " + s)
		}
		name, command := parts[0], parts[1]
		steps = append(steps, release.CustomStep{
			Name: name,
			Run: func(ctx context.Context, logger log.Logger) error {
				logger.Log("info", "running step command", "command", command)
				c := exec.CommandContext(ctx, "sh", "-c", command)
				c.Stdout = os.Stdout
				c.Stderr = os.Stderr
				if err := c.Run(); err != nil {
					return errors.Wrapf(err, "step %s", name)
				}
				return nil
			},
		})
	}
	return steps, nil
}
