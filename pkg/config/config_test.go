package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	c := Defaults()
	c.Service = "svc-a"
	c.Registry = RegistryConfig{Host: "ghcr.io", Organization: "acme", Project: "nexus"}
	c.Manifest = ManifestConfig{Repo: "git@example.com:acme/deploy", Branch: "main", Path: "k8s/svc-a/kustomization.yaml"}
	return c
}

func TestValidateDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateMissingService(t *testing.T) {
	c := validConfig()
	c.Service = ""
	assert.Error(t, c.Validate())
}

func TestValidateFailureThresholdOrdering(t *testing.T) {
	c := validConfig()
	c.Rollout.GracePeriod = 2 * time.Minute
	c.Rollout.FailureThreshold = 30 * time.Second
	assert.Error(t, c.Validate())
}

func TestValidateZeroAttempts(t *testing.T) {
	c := validConfig()
	c.Push.MaxAttempts = 0
	assert.Error(t, c.Validate())
}
