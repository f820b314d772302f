// Package logging builds the daemon's structured zap logger.
//
// The logger writes JSON (or console) output to stdout and, when
// observability is enabled, tees entries into the OpenTelemetry log
// bridge. Two behaviors are layered on top of plain zap:
//
//   - Context injection: the ctx-taking methods pull trace_id/span_id
//     from the active span plus the pipeline stage, error record ID,
//     and request ID placed in the context via WithStage, WithErrorID,
//     and WithRequestID.
//   - Secret scrubbing: field values whose keys look sensitive
//     (token, password, api_key, ...) are replaced with [REDACTED]
//     before any sink sees them.
//
// Typical wiring:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, tel.LoggerProvider())
//	...
//	defer logger.Sync()
//
//	ctx = logging.WithStage(ctx, "pattern-analysis")
//	logger.Info(ctx, "window aggregated", zap.Int("patterns", n))
//
// Logger is safe for concurrent use; children created with With and
// Named are independent of the parent.
package logging
