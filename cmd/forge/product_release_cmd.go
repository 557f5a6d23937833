package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/release"
)

type productReleaseOpts struct {
	*rootOpts
	product     string
	services    []string
	environment string
	namespace   string
	sha         string
	archiveDir  string
	noRollback  bool
	failFast    bool
}

func newProductRelease(parent *rootOpts) *productReleaseOpts {
	return &productReleaseOpts{rootOpts: parent}
}

func (opts *productReleaseOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product-release",
		Short: "Deploy several services of one product, with bounded concurrency.",
		Example: makeExample(
			"forge product-release --product checkout --service svc-a --service svc-b \\",
			"    --environment production --sha abc1234 --archive-dir out/",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVar(&opts.product, "product", "", "product being released")
	cmd.Flags().StringArrayVarP(&opts.services, "service", "s", nil, "service to deploy; may be repeated")
	cmd.Flags().StringVarP(&opts.environment, "environment", "e", "", "environment to deploy to")
	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "workload namespace (default: the environment name)")
	cmd.Flags().StringVar(&opts.sha, "sha", "", "short source commit hash the images were built from")
	cmd.Flags().StringVar(&opts.archiveDir, "archive-dir", "", "directory holding <service>.tar docker-archives")
	cmd.Flags().BoolVar(&opts.noRollback, "no-rollback", false, "on rollout failure, abort that service without reverting its manifest")
	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "cancel remaining deploys after the first failure")
	return cmd
}

func (opts *productReleaseOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.product == "" || len(opts.services) == 0 || opts.environment == "" || opts.sha == "" || opts.archiveDir == "" {
		return newUsageError("please supply --product, --service (at least one), --environment, --sha and --archive-dir")
	}

	policy := release.PolicyAbortAndRollback
	if opts.noRollback {
		policy = release.PolicyAbort
	}
	spec := release.ProductSpec{
		Product:  opts.product,
		FailFast: opts.failFast,
	}
	for _, service := range opts.services {
		target, err := opts.target(service, opts.environment, opts.namespace)
		if err != nil {
			return err
		}
		pair, err := image.Resolve(service, opts.arch, opts.sha)
		if err != nil {
			return err
		}
		spec.Deploys = append(spec.Deploys, release.DeploySpec{
			Target: target,
			Image:  target.Registry,
			Tags:   pair.Tags(),
			Tag:    pair.SHA,
			Policy: policy,
		})
	}

	runs, err := opts.orchestrator("", opts.archiveDir).ProductRelease(cmd.Context(), spec)
	for _, run := range runs {
		if run == nil {
			continue
		}
		release.PrintResult(os.Stdout, run)
		fmt.Println()
	}
	if err != nil {
		printHelp(err)
		return exitError{code: productExitCode(runs), err: err}
	}
	return nil
}

// productExitCode aggregates per-run exit codes: the worst one wins,
// in the order cancelled > fatal > rolled back > timed out.
func productExitCode(runs []*release.Run) int {
	rank := func(code int) int {
		switch code {
		case release.ExitCancelled:
			return 4
		case release.ExitFailed:
			return 3
		case release.ExitRolledBack:
			return 2
		case release.ExitTimedOut:
			return 1
		}
		return 0
	}
	code := release.ExitFailed
	best := -1
	for _, run := range runs {
		if run == nil {
			continue
		}
		if c := release.ExitCode(run); rank(c) > best {
			best = rank(c)
			code = c
		}
	}
	return code
}
