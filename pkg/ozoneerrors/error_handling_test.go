package ozoneerrors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreconditionError_Shape(t *testing.T) {
	err := PreconditionError("startBalancer", "not leader-ready")
	assert.Equal(t, KindPrecondition, err.Kind)
	assert.Equal(t, SeverityLow, err.Severity)
	assert.Contains(t, err.Error(), "startBalancer")
	assert.Contains(t, err.Error(), "not leader-ready")
}

func TestBuilder_DefaultsKindAndSeverity(t *testing.T) {
	err := New("X", "y").Build()
	assert.Equal(t, KindInternal, err.Kind)
	assert.Equal(t, SeverityMedium, err.Severity)
}

func TestBuilder_HighSeverityCapturesStackTrace(t *testing.T) {
	err := New("X", "y").WithSeverity(SeverityHigh).Build()
	assert.NotEmpty(t, err.StackTrace)
}

func TestBalancerError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("boom")
	err := New("SUBMIT_FAILED", "move failed").WithCause(cause).WithKind(KindSubmission).Build()

	assert.Equal(t, cause, errors.Unwrap(err))

	other := New("SUBMIT_FAILED", "different message").WithKind(KindSubmission).Build()
	assert.True(t, err.Is(other))
}

type recordingReporter struct {
	reported []*BalancerError
}

func (r *recordingReporter) Report(ctx context.Context, err *BalancerError) error {
	r.reported = append(r.reported, err)
	return nil
}

func TestHandler_ReportsAboveThresholdOnly(t *testing.T) {
	h := NewHandler(SeverityHigh)
	reporter := &recordingReporter{}
	h.AddReporter(reporter)

	low := New("LOW", "low severity").WithSeverity(SeverityLow).Build()
	high := New("HIGH", "high severity").WithSeverity(SeverityCritical).Build()

	h.Handle(context.Background(), low)
	h.Handle(context.Background(), high)

	// Reporting itself dispatches on goroutines; only the threshold decision
	// is synchronous and worth asserting here.
	require.True(t, h.shouldReport(high))
	require.False(t, h.shouldReport(low))
}
