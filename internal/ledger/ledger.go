// Package ledger records pipeline stage outcomes as append-only
// AgentAction entries. Entries are write-once: nothing in the pipeline
// mutates or deletes them. Each append also publishes a best-effort event
// on the NATS action subject for external consumers; publish failures are
// logged and never fail the stage.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/store"
)

const instrumentationName = "github.com/driftwoodlabs/triaged/internal/ledger"

// Entry describes one stage outcome to record.
type Entry struct {
	Kind      string
	Status    string
	Priority  store.Priority
	Result    string
	Context   map[string]any
	ErrorID   string
	TaskID    string
	Initiator store.Initiator
}

// Recorder appends ledger entries.
type Recorder interface {
	// Record persists one AgentAction and publishes its event. Returns
	// the created action.
	Record(ctx context.Context, entry Entry) (*store.AgentAction, error)
}

// recorder implements Recorder.
type recorder struct {
	store         store.Store
	nc            *nats.Conn
	subjectPrefix string
	logger        *zap.Logger

	tracer        trace.Tracer
	meter         metric.Meter
	appendCounter metric.Int64Counter
}

// NewRecorder creates a ledger recorder. nc may be nil; event publishing
// is then skipped entirely.
func NewRecorder(s store.Store, nc *nats.Conn, subjectPrefix string, logger *zap.Logger) (Recorder, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if subjectPrefix == "" {
		subjectPrefix = "triaged.actions"
	}

	r := &recorder{
		store:         s,
		nc:            nc,
		subjectPrefix: subjectPrefix,
		logger:        logger,
		tracer:        otel.Tracer(instrumentationName),
		meter:         otel.Meter(instrumentationName),
	}

	r.initMetrics()

	return r, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (r *recorder) initMetrics() {
	var err error

	r.appendCounter, err = r.meter.Int64Counter(
		"triaged.ledger.appends_total",
		metric.WithDescription("Total number of ledger appends"),
		metric.WithUnit("{append}"),
	)
	if err != nil {
		r.logger.Warn("failed to create append counter", zap.Error(err))
	}
}

// Record implements Recorder.
func (r *recorder) Record(ctx context.Context, entry Entry) (*store.AgentAction, error) {
	ctx, span := r.tracer.Start(ctx, "ledger.Record",
		trace.WithAttributes(
			attribute.String("action.kind", entry.Kind),
			attribute.String("action.status", entry.Status),
		),
	)
	defer span.End()

	initiator := entry.Initiator
	if initiator == "" {
		initiator = store.InitiatorSystem
	}

	action := &store.AgentAction{
		ID:        uuid.NewString(),
		Kind:      entry.Kind,
		Status:    entry.Status,
		Priority:  entry.Priority,
		Result:    entry.Result,
		Context:   entry.Context,
		ErrorID:   entry.ErrorID,
		TaskID:    entry.TaskID,
		Initiator: initiator,
		Created:   time.Now().UTC(),
	}

	if err := r.store.AppendAction(ctx, action); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to append action: %w", err)
	}

	if r.appendCounter != nil {
		r.appendCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", entry.Kind),
		))
	}

	r.publish(action)

	return action, nil
}

// publish emits the action event. Failures are logged, never returned.
func (r *recorder) publish(action *store.AgentAction) {
	if r.nc == nil {
		return
	}

	payload, err := json.Marshal(action)
	if err != nil {
		r.logger.Warn("failed to marshal action event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s", r.subjectPrefix, action.Kind)
	if err := r.nc.Publish(subject, payload); err != nil {
		r.logger.Warn("failed to publish action event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
