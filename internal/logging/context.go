// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	// Pipeline stage context
	if stage := StageFromContext(ctx); stage != "" {
		fields = append(fields, zap.String("stage", stage))
	}

	// Error record being processed
	if errorID := ErrorIDFromContext(ctx); errorID != "" {
		fields = append(fields, zap.String("error.id", errorID))
	}

	// Request ID
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

// Context key types
type stageCtxKey struct{}
type errorIDCtxKey struct{}
type requestCtxKey struct{}

// Validation constants
const (
	maxStageLen = 64
	maxIDLen    = 128
)

var (
	// stagePattern allows alphanumeric, hyphen, underscore
	stagePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// idPattern allows alphanumeric, hyphen, underscore
	idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// validateStage validates a pipeline stage name.
func validateStage(stage string) error {
	if stage == "" {
		return fmt.Errorf("stage cannot be empty")
	}
	if !utf8.ValidString(stage) {
		return fmt.Errorf("stage contains invalid UTF-8")
	}
	if len(stage) > maxStageLen {
		return fmt.Errorf("stage exceeds max length %d", maxStageLen)
	}
	if !stagePattern.MatchString(stage) {
		return fmt.Errorf("stage contains invalid characters (must be alphanumeric, hyphen, underscore)")
	}
	return nil
}

// validateID validates an error record or request ID.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// StageFromContext extracts the pipeline stage name from context.
func StageFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(stageCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithStage adds a pipeline stage name to context.
// Panics if stage is empty or contains invalid characters.
func WithStage(ctx context.Context, stage string) context.Context {
	if err := validateStage(stage); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, stageCtxKey{}, stage)
}

// ErrorIDFromContext extracts the error record ID from context.
func ErrorIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(errorIDCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithErrorID adds the error record ID being processed to context.
// Panics if errorID is empty or contains invalid characters.
func WithErrorID(ctx context.Context, errorID string) context.Context {
	if err := validateID(errorID, "errorID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, errorIDCtxKey{}, errorID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop()}
}
