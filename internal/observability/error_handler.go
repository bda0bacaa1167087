// Package observability provides enhanced error handling and context propagation for ergate.
package observability

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ergate "github.com/ergatehq/ergate"
)

// ErrorContext carries the job/workflow context around a single error so
// it can be logged, reported to Sentry, and attached to the active span
// consistently.
type ErrorContext struct {
	JobID    string `json:"job_id,omitempty"`
	Workflow string `json:"workflow,omitempty"`
	Step     string `json:"step,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	SpanID   string `json:"span_id,omitempty"`

	Attempt   int           `json:"attempt,omitempty"`
	Duration  time.Duration `json:"duration_ms,omitempty"`
	ErrorType string        `json:"error_type,omitempty"`

	// Additional metadata
	Tags  map[string]string      `json:"tags,omitempty"`
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// ErrorHandler provides enhanced error handling with Sentry integration and context propagation.
type ErrorHandler struct {
	logger        *Logger
	metrics       *MetricsCollector
	sentryEnabled bool
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *Logger, metrics *MetricsCollector, sentryEnabled bool) *ErrorHandler {
	return &ErrorHandler{
		logger:        logger,
		metrics:       metrics,
		sentryEnabled: sentryEnabled,
	}
}

// IsControlFlow reports whether err is one of the engine's own
// control-flow signals (AbortJob, GoToEnd, GoToStep, SkipNSteps) rather
// than a genuine step failure. Callers use this to decide whether
// HandleError should treat a step's returned error as a problem worth
// reporting.
func IsControlFlow(err error) bool {
	var abort *ergate.AbortJob
	var goToEnd *ergate.GoToEnd
	var goToStep *ergate.GoToStep
	var skipN *ergate.SkipNSteps
	return errors.As(err, &abort) || errors.As(err, &goToEnd) ||
		errors.As(err, &goToStep) || errors.As(err, &skipN)
}

// HandleError processes a step or publisher error with full context and reporting.
func (eh *ErrorHandler) HandleError(ctx context.Context, err error, errorCtx ErrorContext) {
	// Handle success case (nil error)
	if err == nil {
		eh.logger.InfoContext(ctx, "operation completed successfully",
			"error_type", errorCtx.ErrorType,
			"workflow", errorCtx.Workflow,
			"step", errorCtx.Step,
			"job_id", errorCtx.JobID,
			"duration_ms", errorCtx.Duration.Milliseconds(),
		)
		return
	}

	eh.logger.ErrorContext(ctx, "error occurred",
		"error", err.Error(),
		"error_type", errorCtx.ErrorType,
		"workflow", errorCtx.Workflow,
		"step", errorCtx.Step,
		"job_id", errorCtx.JobID,
		"attempt", errorCtx.Attempt,
		"duration_ms", errorCtx.Duration.Milliseconds(),
	)

	if eh.metrics != nil && errorCtx.Workflow != "" {
		eh.metrics.RecordHookInvocation(errorCtx.Workflow)
	}

	if eh.sentryEnabled {
		eh.reportToSentry(ctx, err, errorCtx)
	}

	// Set span error if tracing is active
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String("error.type", errorCtx.ErrorType),
			attribute.String("ergate.workflow", errorCtx.Workflow),
			attribute.String("ergate.step", errorCtx.Step),
		)
	}
}

// reportToSentry reports the error to Sentry with full context.
func (eh *ErrorHandler) reportToSentry(ctx context.Context, err error, errorCtx ErrorContext) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("error_type", errorCtx.ErrorType)
		scope.SetTag("service", "ergate")

		if errorCtx.Workflow != "" {
			scope.SetTag("ergate.workflow", errorCtx.Workflow)
		}
		if errorCtx.Step != "" {
			scope.SetTag("ergate.step", errorCtx.Step)
		}
		if errorCtx.JobID != "" {
			scope.SetTag("ergate.job_id", errorCtx.JobID)
		}
		if errorCtx.TraceID != "" {
			scope.SetTag("trace_id", errorCtx.TraceID)
		}
		if errorCtx.SpanID != "" {
			scope.SetTag("span_id", errorCtx.SpanID)
		}

		// Add custom tags
		for key, value := range errorCtx.Tags {
			scope.SetTag(key, value)
		}

		if errorCtx.Attempt > 0 {
			scope.SetContext("retry", map[string]interface{}{
				"attempt": errorCtx.Attempt,
			})
		}

		if errorCtx.Duration > 0 {
			scope.SetContext("performance", map[string]interface{}{
				"duration_ms": errorCtx.Duration.Milliseconds(),
			})
		}

		// Add stack trace context
		pc := make([]uintptr, 10)
		n := runtime.Callers(2, pc)
		if n > 0 {
			frames := runtime.CallersFrames(pc[:n])
			stackTrace := make([]map[string]interface{}, 0, n)
			for {
				frame, more := frames.Next()
				stackTrace = append(stackTrace, map[string]interface{}{
					"function": frame.Function,
					"file":     frame.File,
					"line":     frame.Line,
				})
				if !more {
					break
				}
			}
			scope.SetContext("stack_trace", map[string]interface{}{
				"frames": stackTrace,
			})
		}

		if len(errorCtx.Extra) > 0 {
			scope.SetContext("extra", errorCtx.Extra)
		}

		sentry.CaptureException(err)
	})
}

// CreateErrorResponse builds a status-API-friendly summary of a job
// failure, suitable for returning from a job-status endpoint.
func (eh *ErrorHandler) CreateErrorResponse(err error, errorCtx ErrorContext) map[string]interface{} {
	response := map[string]interface{}{
		"error": map[string]interface{}{
			"type":      errorCtx.ErrorType,
			"message":   err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		"context": map[string]interface{}{
			"job_id":   errorCtx.JobID,
			"workflow": errorCtx.Workflow,
			"step":     errorCtx.Step,
		},
	}

	response["debug"] = map[string]interface{}{
		"trace_id":    errorCtx.TraceID,
		"span_id":     errorCtx.SpanID,
		"attempt":     errorCtx.Attempt,
		"duration_ms": errorCtx.Duration.Milliseconds(),
	}

	return response
}

// ExtractErrorContext builds an ErrorContext for workflow and step, adding
// the trace and job ids stashed in ctx and the active span's ids.
func ExtractErrorContext(ctx context.Context, workflow, step string) ErrorContext {
	errorCtx := ErrorContext{
		Workflow: workflow,
		Step:     step,
		Tags:     make(map[string]string),
		Extra:    make(map[string]interface{}),
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		spanCtx := span.SpanContext()
		if spanCtx.HasTraceID() {
			errorCtx.TraceID = spanCtx.TraceID().String()
		}
		if spanCtx.HasSpanID() {
			errorCtx.SpanID = spanCtx.SpanID().String()
		}
	}

	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		errorCtx.TraceID = traceID
	}
	if jobID, ok := ctx.Value(JobIDKey).(string); ok {
		errorCtx.JobID = jobID
	}

	return errorCtx
}

// WithJobContext adds job/workflow identifiers to the provided context.
func WithJobContext(ctx context.Context, jobID, workflow string) context.Context {
	ctx = context.WithValue(ctx, JobIDKey, jobID)
	ctx = context.WithValue(ctx, WorkflowNameKey, workflow)

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("ergate.job_id", jobID)
		scope.SetTag("ergate.workflow", workflow)
	})

	return ctx
}

// WithStepContext adds the current step name to the provided context.
func WithStepContext(ctx context.Context, step string) context.Context {
	ctx = context.WithValue(ctx, StepNameKey, step)

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("ergate.step", step)
	})

	return ctx
}

// WithTraceContext adds trace context to the provided context.
func WithTraceContext(ctx context.Context, traceID string) context.Context {
	ctx = context.WithValue(ctx, TraceIDKey, traceID)

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("trace_id", traceID)
	})

	return ctx
}

// GracefulDegradation handles monitoring failures gracefully.
func (eh *ErrorHandler) GracefulDegradation(ctx context.Context, operation string, err error) {
	eh.logger.WarnContext(ctx, "monitoring operation failed, continuing without monitoring",
		"operation", operation,
		"error", err.Error(),
	)

	// Log the degradation but don't fail the main operation
	// The calling code should continue normally
}

// HealthCheck represents the health status of various components.
type HealthCheck struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Version    string                 `json:"version"`
	Components map[string]interface{} `json:"components"`
}

// CreateHealthCheck creates a comprehensive health check response.
func (eh *ErrorHandler) CreateHealthCheck(ctx context.Context, version string) HealthCheck {
	health := HealthCheck{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Version:    version,
		Components: make(map[string]interface{}),
	}

	if eh.sentryEnabled {
		health.Components["sentry"] = map[string]interface{}{
			"status":     "enabled",
			"configured": true,
		}
	} else {
		health.Components["sentry"] = map[string]interface{}{
			"status":     "disabled",
			"configured": false,
		}
	}

	if eh.metrics != nil {
		health.Components["metrics"] = map[string]interface{}{
			"status":     "enabled",
			"configured": true,
		}
	} else {
		health.Components["metrics"] = map[string]interface{}{
			"status":     "disabled",
			"configured": false,
		}
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		health.Components["tracing"] = map[string]interface{}{
			"status":     "enabled",
			"configured": true,
		}
	} else {
		health.Components["tracing"] = map[string]interface{}{
			"status":     "disabled",
			"configured": false,
		}
	}

	allHealthy := true
	for _, component := range health.Components {
		if comp, ok := component.(map[string]interface{}); ok {
			if status, ok := comp["status"].(string); ok && status != "enabled" {
				allHealthy = false
				break
			}
		}
	}

	if !allHealthy {
		health.Status = "degraded"
	}

	return health
}
