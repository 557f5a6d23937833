package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/release"
)

type rollbackOpts struct {
	*rootOpts
	service     string
	environment string
	namespace   string
	to          string
	reason      string
}

func newRollback(parent *rootOpts) *rollbackOpts {
	return &rollbackOpts{rootOpts: parent}
}

func (opts *rollbackOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Repoint the manifest at a known-good tag and redeploy. Never re-pushes images.",
		Example: makeExample(
			"forge rollback --service svc-a --environment production --to amd64-abc1234",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.service, "service", "s", "", "service to roll back")
	cmd.Flags().StringVarP(&opts.environment, "environment", "e", "", "environment to roll back in")
	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "workload namespace (default: the environment name)")
	cmd.Flags().StringVar(&opts.to, "to", "", "immutable tag to restore, e.g. amd64-abc1234")
	cmd.Flags().StringVar(&opts.reason, "reason", "operator requested", "recorded reason for the rollback")
	return cmd
}

func (opts *rollbackOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.service == "" || opts.environment == "" || opts.to == "" {
		return newUsageError("please supply --service, --environment and --to")
	}

	tag, err := image.ParseTag(opts.to)
	if err != nil {
		return err
	}
	if tag.Kind != image.KindSHA {
		return newUsageError("--to must be an immutable sha tag; floating tags have no fixed identity")
	}
	target, err := opts.target(opts.service, opts.environment, opts.namespace)
	if err != nil {
		return err
	}

	run, err := opts.orchestrator("", "").Rollback(cmd.Context(), release.Plan{
		Target:     target,
		RestoreTag: tag,
		Reason:     opts.reason,
	})
	release.PrintResult(os.Stdout, run)
	if err != nil {
		printHelp(err)
		return exitError{code: release.ExitCode(run), err: err}
	}
	return nil
}
