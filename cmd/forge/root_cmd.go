package main

import (
	"os"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/nexusops/forge/pkg/cluster/kubectl"
	"github.com/nexusops/forge/pkg/config"
	"github.com/nexusops/forge/pkg/gitops"
	"github.com/nexusops/forge/pkg/gitops/fluxcli"
	"github.com/nexusops/forge/pkg/image"
	"github.com/nexusops/forge/pkg/manifest"
	"github.com/nexusops/forge/pkg/manifest/gitrepo"
	"github.com/nexusops/forge/pkg/registry"
	"github.com/nexusops/forge/pkg/registry/skopeo"
	"github.com/nexusops/forge/pkg/release"
	"github.com/nexusops/forge/pkg/resource"
	"github.com/nexusops/forge/pkg/rollout"
)

type rootOpts struct {
	registryHost   string
	organization   string
	project        string
	manifestRepo   string
	manifestBranch string
	manifestPath   string
	fluxNamespace  string
	kubeconfig     string
	kubeContext    string
	arch           string
	verbose        bool

	rolloutTimeout   string
	reconcileTimeout string
	pushAttempts     int
	concurrency      int

	cfg       config.Config
	logger    log.Logger
	clock     clockwork.Clock
	manifests *gitrepo.Repo
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
forge releases your services the GitOps way.

Workflow:
  forge push --service svc-a --sha abc1234 --archive out/svc-a.tar       # Push built image under its tags.
  forge deploy --service svc-a --environment production --sha abc1234 \
      --archive out/svc-a.tar                                            # Push, pin manifest, reconcile, watch.
  forge rollback --service svc-a --environment production \
      --to amd64-abc1234                                                 # Repoint manifest at a known-good tag.
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "forge",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVar(&opts.registryHost, "registry", "ghcr.io", "image registry host")
	cmd.PersistentFlags().StringVar(&opts.organization, "organization", "nexusops", "registry organization")
	cmd.PersistentFlags().StringVar(&opts.project, "project", "nexus", "registry project; images live at <registry>/<organization>/<project>/<service>")
	cmd.PersistentFlags().StringVar(&opts.manifestRepo, "manifest-repo", "", "git URL of the manifest repository")
	cmd.PersistentFlags().StringVar(&opts.manifestBranch, "manifest-branch", "main", "branch the GitOps controller applies from")
	cmd.PersistentFlags().StringVar(&opts.manifestPath, "manifest-path", "apps/{environment}/{service}/kustomization.yaml", "path template of the service manifest within the repo")
	cmd.PersistentFlags().StringVar(&opts.fluxNamespace, "flux-namespace", "flux-system", "namespace of the flux source and kustomizations")
	cmd.PersistentFlags().StringVar(&opts.kubeconfig, "kubeconfig", "", "path to kubeconfig (default: kubectl's own resolution)")
	cmd.PersistentFlags().StringVar(&opts.kubeContext, "context", "", "kubeconfig context")
	cmd.PersistentFlags().StringVar(&opts.arch, "arch", "amd64", "architecture prefix for image tags")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log each engine step to stderr")

	cmd.PersistentFlags().StringVar(&opts.rolloutTimeout, "rollout-timeout", "", "override the rollout watch timeout, e.g. 15m")
	cmd.PersistentFlags().StringVar(&opts.reconcileTimeout, "reconcile-timeout", "", "override the reconcile acknowledgement timeout, e.g. 1m")
	cmd.PersistentFlags().IntVar(&opts.pushAttempts, "push-attempts", 0, "override the per-tag push attempt budget")
	cmd.PersistentFlags().IntVar(&opts.concurrency, "concurrency", 0, "override the product-release worker pool size")

	cmd.AddCommand(
		newPush(opts).Command(),
		newDeploy(opts).Command(),
		newRollback(opts).Command(),
		newRolloutStatus(opts).Command(),
		newRelease(opts).Command(),
		newProductRelease(opts).Command(),
	)

	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	opts.logger = log.NewNopLogger()
	if opts.verbose {
		opts.logger = log.With(log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr)), "ts", log.DefaultTimestampUTC)
	}
	opts.clock = clockwork.NewRealClock()
	opts.manifests = gitrepo.New()

	opts.cfg = config.Defaults()
	if opts.rolloutTimeout != "" {
		d, err := parseDuration(opts.rolloutTimeout)
		if err != nil {
			return newUsageError("invalid --rollout-timeout: " + err.Error())
		}
		opts.cfg.Rollout.Timeout = d
	}
	if opts.reconcileTimeout != "" {
		d, err := parseDuration(opts.reconcileTimeout)
		if err != nil {
			return newUsageError("invalid --reconcile-timeout: " + err.Error())
		}
		opts.cfg.Reconcile.Timeout = d
	}
	if opts.pushAttempts > 0 {
		opts.cfg.Push.MaxAttempts = opts.pushAttempts
	}
	if opts.concurrency > 0 {
		opts.cfg.Pipeline.Concurrency = opts.concurrency
	}
	return nil
}

// imageName computes the registry-qualified image for a service.
func (opts *rootOpts) imageName(service string) (image.Name, error) {
	return image.ParseName(opts.registryHost + "/" + opts.organization + "/" + opts.project + "/" + service)
}

// target assembles the release target for one service in one
// environment. The manifest path comes from the path template.
func (opts *rootOpts) target(service, environment, namespace string) (resource.Target, error) {
	if opts.manifestRepo == "" {
		return resource.Target{}, newUsageError("please supply --manifest-repo")
	}
	name, err := opts.imageName(service)
	if err != nil {
		return resource.Target{}, err
	}
	if namespace == "" {
		namespace = environment
	}
	path := strings.NewReplacer(
		"{service}", service,
		"{environment}", environment,
	).Replace(opts.manifestPath)
	return resource.Target{
		Service:     service,
		Environment: environment,
		Registry:    name,
		Manifest: resource.Locator{
			Repo:   opts.manifestRepo,
			Branch: opts.manifestBranch,
			Path:   path,
		},
		Namespace: namespace,
	}, nil
}

// orchestrator wires the engine to the exec transports. The registry
// client pushes from the given archive (or per-service archives when
// archiveDir is set); both may be empty for deploy-only pipelines.
func (opts *rootOpts) orchestrator(archive, archiveDir string) *release.Orchestrator {
	reg := skopeo.NewClient(archive)
	reg.ArchiveDir = archiveDir
	flux := fluxcli.NewClient()
	flux.Namespace = opts.fluxNamespace
	clu := kubectl.NewClient()
	clu.Kubeconfig = opts.kubeconfig
	clu.Context = opts.kubeContext

	return release.NewOrchestrator(
		registry.NewPusher(reg, opts.cfg.Push, opts.clock, opts.logger),
		manifest.NewUpdater(opts.manifests, opts.logger),
		gitops.NewTrigger(flux, opts.cfg.Reconcile, opts.clock, opts.logger),
		rollout.NewMonitor(clu, opts.cfg.Rollout, opts.clock, opts.logger),
		reg,
		opts.cfg.Pipeline,
		opts.logger,
	)
}
