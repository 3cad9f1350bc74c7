package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate_DefaultConfigPasses(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUndersizedEnteringCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Balancer.MaxSizeEnteringTargetBytes = cfg.Balancer.ContainerSizeBytes
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_size_entering_target_bytes")
}

func TestValidate_RejectsUndersizedLeavingCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Balancer.MaxSizeLeavingSourceBytes = cfg.Balancer.ContainerSizeBytes - 1
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_size_leaving_source_bytes")
}

func TestValidate_RejectsThresholdOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Balancer.Threshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsIterationsBelowMinusOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Balancer.Iterations = -2
	assert.Error(t, cfg.Validate())
}

func TestValidate_UnboundedIterationsAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Balancer.Iterations = -1
	assert.NoError(t, cfg.Validate())
}

func TestValidate_WarnOnlyOnShortBalancingInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Balancer.TriggerDUEnable = true
	cfg.Balancer.NodeReportInterval = time.Minute
	cfg.Balancer.BalancingInterval = time.Minute // well under 3x refresh period

	// This must not be a fatal error, only a logged warning.
	assert.NoError(t, cfg.Validate())
}

func TestValidationErrors_AggregatesMultiple(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Balancer.Threshold = -1
	cfg.Balancer.Iterations = -5
	err := cfg.Validate()
	assert.Error(t, err)

	verrs, ok := err.(ValidationErrors)
	assert.True(t, ok)
	assert.Len(t, verrs, 2)
}
