// Package ozoneerrors provides the balancer's error classification and
// reporting layer.
package ozoneerrors

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Kind categorizes a BalancerError for the purposes of the error handling
// policy: precondition failures abort the caller, collaborator failures are
// logged and matching continues, and so on.
type Kind string

const (
	KindPrecondition  Kind = "precondition"
	KindConfig        Kind = "config"
	KindCollaborator  Kind = "collaborator"
	KindSubmission    Kind = "submission"
	KindTimeout       Kind = "timeout"
	KindInternal      Kind = "internal"
)

// Severity decides whether an error gets reported to the configured
// Reporters and whether Build captures a stack trace (high and critical);
// it has no bearing on iteration control flow.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// BalancerError is the error type raised by every pkg/balancer component.
type BalancerError struct {
	Code      string
	Message   string
	Kind      Kind
	Severity  Severity
	Component string
	Operation string

	Cause      error
	StackTrace string

	Timestamp time.Time
	Metadata  map[string]interface{}

	Retryable bool
}

func (e *BalancerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BalancerError) Unwrap() error { return e.Cause }

func (e *BalancerError) Is(target error) bool {
	t, ok := target.(*BalancerError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Kind == t.Kind
}

// Builder provides a fluent interface for constructing a BalancerError,
// matching the teacher's error-builder idiom.
type Builder struct {
	err *BalancerError
}

func New(code, message string) *Builder {
	return &Builder{
		err: &BalancerError{
			Code:      code,
			Message:   message,
			Timestamp: time.Now(),
			Metadata:  make(map[string]interface{}),
		},
	}
}

func (b *Builder) WithKind(k Kind) *Builder             { b.err.Kind = k; return b }
func (b *Builder) WithSeverity(s Severity) *Builder     { b.err.Severity = s; return b }
func (b *Builder) WithComponent(c string) *Builder      { b.err.Component = c; return b }
func (b *Builder) WithOperation(o string) *Builder      { b.err.Operation = o; return b }
func (b *Builder) WithCause(err error) *Builder         { b.err.Cause = err; return b }
func (b *Builder) WithRetryable(r bool) *Builder        { b.err.Retryable = r; return b }
func (b *Builder) WithMetadata(k string, v interface{}) *Builder {
	b.err.Metadata[k] = v
	return b
}
func (b *Builder) WithStackTrace() *Builder {
	b.err.StackTrace = captureStackTrace()
	return b
}

func (b *Builder) Build() *BalancerError {
	if b.err.Kind == "" {
		b.err.Kind = KindInternal
	}
	if b.err.Severity == "" {
		b.err.Severity = SeverityMedium
	}
	if b.err.Severity == SeverityHigh || b.err.Severity == SeverityCritical {
		if b.err.StackTrace == "" {
			b.err.StackTrace = captureStackTrace()
		}
	}
	return b.err
}

// Reporter is an external sink for errors that cross the reporting
// threshold (e.g. a metrics counter or an alerting pipeline).
type Reporter interface {
	Report(ctx context.Context, err *BalancerError) error
}

// Handler centralizes error reporting, mirroring the teacher's ErrorHandler.
type Handler struct {
	reportingThreshold Severity
	reporters          []Reporter
	mu                 sync.RWMutex
}

func NewHandler(threshold Severity) *Handler {
	if threshold == "" {
		threshold = SeverityHigh
	}
	return &Handler{reportingThreshold: threshold}
}

func (h *Handler) AddReporter(r Reporter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reporters = append(h.reporters, r)
}

func (h *Handler) Handle(ctx context.Context, err error) *BalancerError {
	be, ok := err.(*BalancerError)
	if !ok {
		be = New("UNKNOWN_ERROR", err.Error()).
			WithKind(KindInternal).
			WithSeverity(SeverityMedium).
			WithCause(err).
			Build()
	}

	if h.shouldReport(be) {
		h.reportError(ctx, be)
	}

	return be
}

var severityLevels = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

func (h *Handler) shouldReport(err *BalancerError) bool {
	return severityLevels[err.Severity] >= severityLevels[h.reportingThreshold]
}

func (h *Handler) reportError(ctx context.Context, err *BalancerError) {
	h.mu.RLock()
	reporters := make([]Reporter, len(h.reporters))
	copy(reporters, h.reporters)
	h.mu.RUnlock()

	for _, r := range reporters {
		go func(r Reporter) {
			_ = r.Report(ctx, err)
		}(r)
	}
}

func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var sb strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		sb.WriteString(fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return sb.String()
}

// Constructors for the error kinds named in the error handling policy.

func PreconditionError(operation, reason string) *BalancerError {
	return New("PRECONDITION_FAILED", fmt.Sprintf("%s: %s", operation, reason)).
		WithKind(KindPrecondition).
		WithSeverity(SeverityLow).
		WithOperation(operation).
		Build()
}

func ConfigError(field, message string) *BalancerError {
	return New("CONFIG_INVALID", fmt.Sprintf("configuration field '%s': %s", field, message)).
		WithKind(KindConfig).
		WithSeverity(SeverityHigh).
		Build()
}

func CollaboratorError(operation string, cause error) *BalancerError {
	return New("COLLABORATOR_ERROR", fmt.Sprintf("collaborator call failed during %s", operation)).
		WithKind(KindCollaborator).
		WithSeverity(SeverityLow).
		WithOperation(operation).
		WithCause(cause).
		Build()
}

func SubmissionError(containerID string, cause error) *BalancerError {
	return New("SUBMISSION_FAILED", fmt.Sprintf("move submission failed for container %s", containerID)).
		WithKind(KindSubmission).
		WithSeverity(SeverityMedium).
		WithCause(cause).
		Build()
}

func TimeoutErr(operation string, timeout time.Duration) *BalancerError {
	return New("TIMEOUT", fmt.Sprintf("operation '%s' timed out after %v", operation, timeout)).
		WithKind(KindTimeout).
		WithSeverity(SeverityMedium).
		WithRetryable(true).
		Build()
}

func InternalError(message string, cause error) *BalancerError {
	return New("INTERNAL_ERROR", message).
		WithKind(KindInternal).
		WithSeverity(SeverityHigh).
		WithCause(cause).
		WithStackTrace().
		Build()
}
