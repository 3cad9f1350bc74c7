package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors aggregates multiple ValidationError values.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(messages, "; "))
}

// Validate checks the configuration for the fatal conditions called out in
// §4.7: maxSizeEnteringTarget and maxSizeLeavingSource must each exceed the
// configured container size, or startBalancer must refuse to run. It also
// logs (but does not fail on) the balancingInterval/refresh-period warning.
func (c *Config) Validate() error {
	var errs ValidationErrors

	b := c.Balancer

	if b.ContainerSizeBytes <= 0 {
		errs = append(errs, ValidationError{
			Field: "balancer.container_size_bytes", Value: b.ContainerSizeBytes,
			Message: "must be positive",
		})
	}
	if b.MaxSizeEnteringTargetBytes <= b.ContainerSizeBytes {
		errs = append(errs, ValidationError{
			Field: "balancer.max_size_entering_target_bytes", Value: b.MaxSizeEnteringTargetBytes,
			Message: "must exceed container_size_bytes",
		})
	}
	if b.MaxSizeLeavingSourceBytes <= b.ContainerSizeBytes {
		errs = append(errs, ValidationError{
			Field: "balancer.max_size_leaving_source_bytes", Value: b.MaxSizeLeavingSourceBytes,
			Message: "must exceed container_size_bytes",
		})
	}
	if b.Threshold < 0 || b.Threshold > 1 {
		errs = append(errs, ValidationError{
			Field: "balancer.threshold", Value: b.Threshold,
			Message: "must be within [0, 1]",
		})
	}
	if b.MaxDatanodesRatioToInvolvePerIteration <= 0 || b.MaxDatanodesRatioToInvolvePerIteration > 1 {
		errs = append(errs, ValidationError{
			Field: "balancer.max_datanodes_ratio_to_involve_per_iteration", Value: b.MaxDatanodesRatioToInvolvePerIteration,
			Message: "must be within (0, 1]",
		})
	}
	if b.Iterations < -1 {
		errs = append(errs, ValidationError{
			Field: "balancer.iterations", Value: b.Iterations,
			Message: "must be -1 (unbounded) or >= 0",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	// balancingInterval should exceed the disk-usage refresh period; this is a
	// warning only, not a fatal validation error.
	if b.TriggerDUEnable && b.BalancingInterval <= 3*b.NodeReportInterval {
		logrus.WithFields(logrus.Fields{
			"balancing_interval":   b.BalancingInterval,
			"refresh_period":       3 * b.NodeReportInterval,
		}).Warn("balancingInterval does not exceed the disk-usage refresh period; iterations may overlap with stale usage data")
	}

	return nil
}
