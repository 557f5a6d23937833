package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexusops/forge/pkg/cluster/kubectl"
	fluxerr "github.com/nexusops/forge/pkg/errors"
	"github.com/nexusops/forge/pkg/release"
	"github.com/nexusops/forge/pkg/rollout"
)

type rolloutStatusOpts struct {
	*rootOpts
	service     string
	environment string
	namespace   string
}

func newRolloutStatus(parent *rootOpts) *rolloutStatusOpts {
	return &rolloutStatusOpts{rootOpts: parent}
}

func (opts *rolloutStatusOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Watch a rollout until it is healthy, failed, or timed out.",
		Example: makeExample(
			"forge rollout --service svc-a --environment production",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.service, "service", "s", "", "service to watch")
	cmd.Flags().StringVarP(&opts.environment, "environment", "e", "", "environment to watch in")
	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "workload namespace (default: the environment name)")
	return cmd
}

func (opts *rolloutStatusOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.service == "" || opts.environment == "" {
		return newUsageError("please supply --service and --environment")
	}
	target, err := opts.target(opts.service, opts.environment, opts.namespace)
	if err != nil {
		return err
	}

	clu := kubectl.NewClient()
	clu.Kubeconfig = opts.kubeconfig
	clu.Context = opts.kubeContext
	monitor := rollout.NewMonitor(clu, opts.cfg.Rollout, opts.clock, opts.logger)

	result, watchErr := monitor.Watch(cmd.Context(), target)
	fmt.Printf("%s: %s", target.ID(), result.State)
	if result.Cause != "" {
		fmt.Printf(" (%s)", result.Cause)
	}
	fmt.Printf(" after %s\n", result.Elapsed.Truncate(time.Millisecond))
	for _, d := range result.Diagnostics {
		fmt.Printf("pod %s: %s\n", d.Pod, d.Problem)
		for _, event := range d.Events {
			fmt.Printf("  event: %s\n", event)
		}
	}
	if watchErr == nil {
		return nil
	}

	printHelp(watchErr)
	code := release.ExitFailed
	switch {
	case result.Cancelled:
		code = release.ExitCancelled
	case fluxerr.TypeOf(watchErr) == fluxerr.RolloutTimedOut:
		code = release.ExitTimedOut
	}
	return exitError{code: code, err: watchErr}
}
