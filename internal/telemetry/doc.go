// Package telemetry wires the daemon's OpenTelemetry provider set.
//
// New builds OTLP trace and metric exporters (gRPC by default,
// http/protobuf optionally) and installs the resulting providers as
// the process globals, so instrumented packages only ever call
// otel.Tracer and otel.Meter. A disabled config produces a no-op
// instance and instrumented code runs unchanged.
//
//	tel, err := telemetry.New(ctx, cfg)
//	...
//	defer tel.Shutdown(ctx)
//
// LoggerProvider exposes the provider the zap OTEL bridge logs
// through; it is nil while observability is disabled.
package telemetry
