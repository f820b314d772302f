// Package diagnosis builds a structured prompt from one error record,
// delegates semantic analysis to the reasoning service, and writes the
// normalized result back onto the record.
package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/fault"
	"github.com/driftwoodlabs/triaged/internal/ledger"
	"github.com/driftwoodlabs/triaged/internal/reasoning"
	"github.com/driftwoodlabs/triaged/internal/store"
)

const instrumentationName = "github.com/driftwoodlabs/triaged/internal/diagnosis"

// Confidence thresholds for recommendation derivation.
const (
	autoApplyConfidence = 0.8
	reviewConfidence    = 0.6
)

// Service provides semantic diagnosis.
type Service interface {
	// Diagnose analyzes one error record. The record must exist; an
	// unparseable reasoning response fails the invocation with nothing
	// written.
	Diagnose(ctx context.Context, errorID string) (*Result, error)
}

// service implements the Service interface.
type service struct {
	store     store.Store
	reasoning reasoning.Client
	recorder  ledger.Recorder
	logger    *zap.Logger

	tracer           trace.Tracer
	meter            metric.Meter
	diagnosesCounter metric.Int64Counter
}

// NewService creates a diagnosis service.
func NewService(s store.Store, rc reasoning.Client, rec ledger.Recorder, logger *zap.Logger) (Service, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if rc == nil {
		return nil, errors.New("reasoning client is required")
	}
	if rec == nil {
		return nil, errors.New("ledger recorder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &service{
		store:     s,
		reasoning: rc,
		recorder:  rec,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}

	svc.initMetrics()

	return svc, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.diagnosesCounter, err = s.meter.Int64Counter(
		"triaged.diagnosis.diagnoses_total",
		metric.WithDescription("Total number of diagnosis runs"),
		metric.WithUnit("{diagnosis}"),
	)
	if err != nil {
		s.logger.Warn("failed to create diagnoses counter", zap.Error(err))
	}
}

// Diagnose implements Service.
func (s *service) Diagnose(ctx context.Context, errorID string) (*Result, error) {
	if errorID == "" {
		return nil, fault.New(fault.KindInvalidRequest, "errorId is required")
	}

	ctx, span := s.tracer.Start(ctx, "diagnosis.Diagnose",
		trace.WithAttributes(attribute.String("error.id", errorID)),
	)
	defer span.End()

	rec, err := s.store.GetError(ctx, errorID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fault.Newf(fault.KindNotFound, "error record %s not found", errorID)
		}
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to load error record", err)
	}

	siblings, err := s.store.CountErrorsByMessage(ctx, rec.Message)
	if err != nil {
		span.RecordError(err)
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to count sibling errors", err)
	}
	taskCount, err := s.store.CountTasksForError(ctx, errorID)
	if err != nil {
		span.RecordError(err)
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to count tasks", err)
	}

	prompt := buildPrompt(rec, siblings, taskCount)

	raw, err := s.reasoning.Generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reasoning call failed")
		return nil, fmt.Errorf("diagnose %s: %w", errorID, err)
	}

	var analysis Analysis
	if err := reasoning.Decode(raw, &analysis); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "response decode failed")
		return nil, err
	}
	if err := validateAnalysis(&analysis); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "response validation failed")
		return nil, err
	}

	// All validation passed; only now touch the record.
	if rec.Extension == nil {
		rec.Extension = make(map[string]any)
	}
	rec.Extension[extensionKey] = analysis
	if rec.Status == store.ErrorStatusNew {
		rec.Status = store.ErrorStatusInAnalysis
	}
	rec.Updated = time.Now().UTC()

	if err := s.store.UpdateError(ctx, rec); err != nil {
		span.RecordError(err)
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to persist analysis", err)
	}

	recommendations := deriveRecommendations(&analysis)

	if _, err := s.recorder.Record(ctx, ledger.Entry{
		Kind:     "error_diagnosed",
		Status:   "completed",
		Priority: priorityFor(&analysis),
		Result:   analysis.RootCause,
		Context: map[string]any{
			"confidence": analysis.Confidence,
			"siblings":   siblings,
			"task_count": taskCount,
			"impact":     analysis.Impact.Severity,
			"new_status": string(rec.Status),
		},
		ErrorID: errorID,
	}); err != nil {
		span.RecordError(err)
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to record diagnosis action", err)
	}

	if s.diagnosesCounter != nil {
		s.diagnosesCounter.Add(ctx, 1)
	}

	span.SetAttributes(attribute.Float64("analysis.confidence", analysis.Confidence))
	s.logger.Info("error diagnosed",
		zap.String("error_id", errorID),
		zap.Float64("confidence", analysis.Confidence),
		zap.String("impact", analysis.Impact.Severity),
	)

	return &Result{
		ErrorID:         errorID,
		Analysis:        &analysis,
		Recommendations: recommendations,
		NextSteps:       nextSteps(&analysis),
	}, nil
}

func validateAnalysis(a *Analysis) error {
	if a.RootCause == "" {
		return fault.New(fault.KindUpstreamFailure, "reasoning response missing root_cause")
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fault.Newf(fault.KindUpstreamFailure, "reasoning response confidence %.2f outside [0,1]", a.Confidence)
	}
	return nil
}

func buildPrompt(rec *store.ErrorRecord, siblings, taskCount int) string {
	var b strings.Builder
	b.WriteString("You are diagnosing a production error. Respond with a single JSON object ")
	b.WriteString("with fields: root_cause, technical_explanation, ")
	b.WriteString("impact{severity, affected_users, affected_features}, ")
	b.WriteString("suggested_fix{description, example, files}, prevention_strategy, ")
	b.WriteString("confidence (0 to 1).\n\n")

	fmt.Fprintf(&b, "Message: %s\n", rec.Message)
	fmt.Fprintf(&b, "Severity: %s\n", rec.Severity)
	if rec.Component != "" {
		fmt.Fprintf(&b, "Component: %s\n", rec.Component)
	}
	if rec.File != "" {
		fmt.Fprintf(&b, "Location: %s:%d:%d\n", rec.File, rec.Line, rec.Column)
	}
	if rec.StackTrace != "" {
		fmt.Fprintf(&b, "Stack trace:\n%s\n", rec.StackTrace)
	}
	fmt.Fprintf(&b, "Identical errors recorded: %d\n", siblings)
	fmt.Fprintf(&b, "Remediation tasks already created: %d\n", taskCount)

	return b.String()
}

// deriveRecommendations maps confidence and impact onto operator guidance.
func deriveRecommendations(a *Analysis) []string {
	var recs []string
	switch {
	case a.Confidence >= autoApplyConfidence:
		recs = append(recs, "confidence is high; the suggested fix is eligible for automated application")
	case a.Confidence >= reviewConfidence:
		recs = append(recs, "review the suggested fix before applying")
	default:
		recs = append(recs, "confidence is low; manual investigation required")
	}

	if a.Impact.Severity == "critical" || a.Impact.Severity == "high" {
		recs = append(recs, "impact is severe; alert the owning team")
	}
	return recs
}

func nextSteps(a *Analysis) []string {
	var steps []string
	if a.SuggestedFix.Description != "" {
		steps = append(steps, "apply the suggested fix: "+a.SuggestedFix.Description)
	}
	if len(a.SuggestedFix.Files) > 0 {
		steps = append(steps, "inspect files: "+strings.Join(a.SuggestedFix.Files, ", "))
	}
	if a.PreventionStrategy != "" {
		steps = append(steps, "prevention: "+a.PreventionStrategy)
	}
	if len(steps) == 0 {
		steps = append(steps, "gather more context and re-run diagnosis")
	}
	return steps
}

func priorityFor(a *Analysis) store.Priority {
	switch a.Impact.Severity {
	case "critical":
		return store.PriorityUrgent
	case "high":
		return store.PriorityHigh
	case "medium":
		return store.PriorityMedium
	default:
		return store.PriorityLow
	}
}
