package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/registry"
	"github.com/nexusops/forge/pkg/registry/skopeo"
)

type pushOpts struct {
	*rootOpts
	service string
	sha     string
	archive string
}

func newPush(parent *rootOpts) *pushOpts {
	return &pushOpts{rootOpts: parent}
}

func (opts *pushOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push a built image under its immutable and floating tags.",
		Example: makeExample(
			"forge push --service svc-a --sha abc1234 --archive out/svc-a.tar",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.service, "service", "s", "", "service the image was built for")
	cmd.Flags().StringVar(&opts.sha, "sha", "", "short source commit hash the image was built from")
	cmd.Flags().StringVar(&opts.archive, "archive", "", "docker-archive file of the built image")
	return cmd
}

func (opts *pushOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.service == "" || opts.sha == "" || opts.archive == "" {
		return newUsageError("please supply --service, --sha and --archive")
	}

	name, err := opts.imageName(opts.service)
	if err != nil {
		return err
	}
	pair, err := image.Resolve(opts.service, opts.arch, opts.sha)
	if err != nil {
		return err
	}

	pusher := registry.NewPusher(skopeo.NewClient(opts.archive), opts.cfg.Push, opts.clock, opts.logger)
	result, err := pusher.Push(cmd.Context(), name, pair.Tags())

	w := newTabwriter()
	fmt.Fprintln(w, "TAG\tATTEMPT\tOUTCOME\tERROR")
	for _, attempt := range result.Attempts {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", attempt.Tag.String(), attempt.N, attempt.Outcome, attempt.Err)
	}
	w.Flush()
	for _, warning := range result.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	if err != nil {
		printHelp(err)
		return exitError{code: 1, err: err}
	}
	return nil
}
