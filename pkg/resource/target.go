package resource

import (
	"fmt"

	"github.com/nexusops/forge/pkg/image"
)

// Target identifies what is being deployed and where. It is immutable
// for the lifetime of a pipeline run.
type Target struct {
	// Service is the workload being released, e.g. "svc-a".
	Service string
	// Environment names the cluster environment, e.g. "staging".
	Environment string
	// Registry is the image repo the service deploys from.
	Registry image.Name
	// Manifest locates the source-controlled manifest that pins the
	// deployed tag.
	Manifest Locator
	// Namespace the workload runs in; derived as
	// {product}-{environment} when left empty by config.
	Namespace string
}

// ID is the string used to identify the target in logs and results,
// `<service>@<environment>`.
func (t Target) ID() string {
	return fmt.Sprintf("%s@%s", t.Service, t.Environment)
}

// Locator names a manifest file within a version-controlled
// repository.
type Locator struct {
	// Repo is the repository identity (e.g. its URL). All writes to
	// the same Repo are serialized by the manifest updater.
	Repo string
	// Branch the manifest is tracked on.
	Branch string
	// Path of the manifest file within the repo.
	Path string
}

func (l Locator) String() string {
	return fmt.Sprintf("%s?branch=%s&path=%s", l.Repo, l.Branch, l.Path)
}
