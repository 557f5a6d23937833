package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/release"
)

type deployOpts struct {
	*rootOpts
	service     string
	environment string
	namespace   string
	sha         string
	archive     string
	deployOnly  bool
	noRollback  bool
}

func newDeploy(parent *rootOpts) *deployOpts {
	return &deployOpts{rootOpts: parent}
}

func (opts *deployOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Push an image and roll it out: push, pin the manifest, reconcile, watch.",
		Example: makeExample(
			"forge deploy --service svc-a --environment production --sha abc1234 --archive out/svc-a.tar",
			"forge deploy --service svc-a --environment staging --sha abc1234 --archive out/svc-a.tar --no-rollback",
			"forge deploy --service svc-a --environment production --sha abc1234 --deploy-only",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.service, "service", "s", "", "service to deploy")
	cmd.Flags().StringVarP(&opts.environment, "environment", "e", "", "environment to deploy to")
	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "workload namespace (default: the environment name)")
	cmd.Flags().StringVar(&opts.sha, "sha", "", "short source commit hash the image was built from")
	cmd.Flags().StringVar(&opts.archive, "archive", "", "docker-archive file of the built image")
	cmd.Flags().BoolVar(&opts.deployOnly, "deploy-only", false, "skip the push step; the image is already in the registry")
	cmd.Flags().BoolVar(&opts.noRollback, "no-rollback", false, "on rollout failure, abort without reverting the manifest")
	return cmd
}

func (opts *deployOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.service == "" || opts.environment == "" || opts.sha == "" {
		return newUsageError("please supply --service, --environment and --sha")
	}
	if !opts.deployOnly && opts.archive == "" {
		return newUsageError("please supply --archive, or --deploy-only if the image is already pushed")
	}

	target, err := opts.target(opts.service, opts.environment, opts.namespace)
	if err != nil {
		return err
	}
	pair, err := image.Resolve(opts.service, opts.arch, opts.sha)
	if err != nil {
		return err
	}

	policy := release.PolicyAbortAndRollback
	if opts.noRollback {
		policy = release.PolicyAbort
	}
	spec := release.DeploySpec{
		Target:     target,
		Image:      target.Registry,
		Tags:       pair.Tags(),
		Tag:        pair.SHA,
		DeployOnly: opts.deployOnly,
		Policy:     policy,
	}

	run, err := opts.orchestrator(opts.archive, "").Deploy(cmd.Context(), spec)
	release.PrintResult(os.Stdout, run)
	if err != nil {
		printHelp(err)
		return exitError{code: release.ExitCode(run), err: err}
	}
	return nil
}
