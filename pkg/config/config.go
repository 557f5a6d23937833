package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Config is the validated configuration the engine consumes. Loading
// and parsing it (from YAML or flags) happens outside the engine;
// whatever does the loading is expected to call Validate before
// handing the struct over.
type Config struct {
	Service     string `validate:"required"`
	ServiceType string

	Registry RegistryConfig `validate:"required"`
	Manifest ManifestConfig `validate:"required"`

	Push      PushPolicy      `validate:"required"`
	Reconcile ReconcilePolicy `validate:"required"`
	Rollout   RolloutPolicy   `validate:"required"`
	Pipeline  PipelinePolicy  `validate:"required"`
}

type RegistryConfig struct {
	Host         string `validate:"required,hostname_port|hostname"`
	Organization string `validate:"required"`
	Project      string `validate:"required"`
}

type ManifestConfig struct {
	Repo   string `validate:"required"`
	Branch string `validate:"required"`
	Path   string `validate:"required"`
}

// PushPolicy bounds the registry push retry loop.
type PushPolicy struct {
	MaxAttempts    int           `validate:"min=1"`
	InitialBackoff time.Duration `validate:"min=0"`
	MaxBackoff     time.Duration `validate:"min=0"`
}

// ReconcilePolicy bounds the wait for the GitOps controller to
// acknowledge a new revision.
type ReconcilePolicy struct {
	Interval time.Duration `validate:"gt=0"`
	Timeout  time.Duration `validate:"gt=0"`
}

// RolloutPolicy parameterizes the rollout watch state machine. The
// grace period must come before the failure threshold, otherwise
// Degraded could never be entered.
type RolloutPolicy struct {
	Interval         time.Duration `validate:"gt=0"`
	StabilityWindow  time.Duration `validate:"min=0"`
	GracePeriod      time.Duration `validate:"gt=0"`
	FailureThreshold time.Duration `validate:"gt=0,gtfield=GracePeriod"`
	Timeout          time.Duration `validate:"gt=0"`
	LogTailLines     int           `validate:"min=1"`
	EventTail        int           `validate:"min=1"`
	RestartThreshold int           `validate:"min=1"`
}

// PipelinePolicy configures the orchestrator.
type PipelinePolicy struct {
	// StepAttempts is the per-step budget for retryable failures.
	StepAttempts int `validate:"min=1"`
	// Concurrency bounds the number of pipeline runs in flight for
	// product releases.
	Concurrency int `validate:"min=1"`
	FailFast    bool
}

// Defaults returns the policy values used when config omits them. The
// rollout numbers follow the operational tool this engine grew out
// of: 3s polls with a 10 minute overall budget.
func Defaults() Config {
	return Config{
		Push: PushPolicy{
			MaxAttempts:    5,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
		},
		Reconcile: ReconcilePolicy{
			Interval: 2 * time.Second,
			Timeout:  30 * time.Second,
		},
		Rollout: RolloutPolicy{
			Interval:         3 * time.Second,
			StabilityWindow:  15 * time.Second,
			GracePeriod:      30 * time.Second,
			FailureThreshold: 2 * time.Minute,
			Timeout:          10 * time.Minute,
			LogTailLines:     30,
			EventTail:        10,
			RestartThreshold: 3,
		},
		Pipeline: PipelinePolicy{
			StepAttempts: 2,
			Concurrency:  4,
		},
	}
}

var validate = validator.New()

// Validate checks the config for structural problems. It returns the
// first violation found, wrapped with the offending field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return errors.Wrapf(verrs[0], "invalid config field %s", verrs[0].Namespace())
		}
		return err
	}
	return nil
}
