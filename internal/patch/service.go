// Package patch turns a diagnosis into a structured patch proposal and
// applies deterministic safety checks before persisting the suggestion.
// Patches are only ever proposed; nothing in the pipeline applies them.
package patch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/diagnosis"
	"github.com/driftwoodlabs/triaged/internal/fault"
	"github.com/driftwoodlabs/triaged/internal/ledger"
	"github.com/driftwoodlabs/triaged/internal/reasoning"
	"github.com/driftwoodlabs/triaged/internal/store"
)

const instrumentationName = "github.com/driftwoodlabs/triaged/internal/patch"

// Service provides patch generation and validation.
type Service interface {
	// Generate produces, validates, and persists one patch suggestion.
	// When no diagnosis is supplied or cached on the record, the
	// diagnoser is invoked synchronously first; its failure fails the
	// whole chain.
	Generate(ctx context.Context, req Request) (*Result, error)
}

// service implements the Service interface.
type service struct {
	store     store.Store
	reasoning reasoning.Client
	diagnoser diagnosis.Service
	recorder  ledger.Recorder
	logger    *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	patchesCounter metric.Int64Counter
}

// NewService creates a patch generation service.
func NewService(s store.Store, rc reasoning.Client, d diagnosis.Service, rec ledger.Recorder, logger *zap.Logger) (Service, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if rc == nil {
		return nil, errors.New("reasoning client is required")
	}
	if d == nil {
		return nil, errors.New("diagnosis service is required")
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
		diagnoser: d,
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

	s.patchesCounter, err = s.meter.Int64Counter(
		"triaged.patch.generations_total",
		metric.WithDescription("Total number of patch generation runs"),
		metric.WithUnit("{patch}"),
	)
	if err != nil {
		s.logger.Warn("failed to create patches counter", zap.Error(err))
	}
}

// Generate implements Service.
func (s *service) Generate(ctx context.Context, req Request) (*Result, error) {
	errorID, err := s.resolveErrorID(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "patch.Generate",
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

	analysis, err := s.resolveAnalysis(ctx, req, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "diagnosis chain failed")
		return nil, err
	}

	prompt := buildPrompt(rec, analysis)

	raw, err := s.reasoning.Generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reasoning call failed")
		return nil, fmt.Errorf("generate patch for %s: %w", errorID, err)
	}

	var proposal Proposal
	if err := reasoning.Decode(raw, &proposal); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "response decode failed")
		return nil, err
	}
	if proposal.Kind == "" {
		proposal.Kind = string(store.PatchKindEdit)
	}

	// Validation always precedes persistence; a suggestion is never
	// written without its verdict.
	verdict := Validate(&proposal)

	status := store.PatchStatusSuggested
	if approved(&proposal) {
		status = store.PatchStatusApproved
	}

	suggestion := &store.PatchSuggestion{
		ID:             uuid.NewString(),
		TaskID:         req.TaskID,
		ErrorID:        errorID,
		TargetFile:     proposal.TargetFile,
		Kind:           store.PatchKind(proposal.Kind),
		Diff:           proposal.Diff,
		Content:        proposal.FixedCode,
		SafetyScore:    proposal.SafetyScore,
		BreakingChange: proposal.BreakingChanges,
		Status:         status,
		Created:        time.Now().UTC(),
	}
	if err := s.store.CreatePatch(ctx, suggestion); err != nil {
		span.RecordError(err)
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to persist patch suggestion", err)
	}

	eligible := autoApplyEligible(&proposal, verdict)

	if _, err := s.recorder.Record(ctx, ledger.Entry{
		Kind:     "patch_generated",
		Status:   "completed",
		Priority: store.PriorityHigh,
		Result:   proposal.Explanation,
		Context: map[string]any{
			"patch_id":            suggestion.ID,
			"target_file":         proposal.TargetFile,
			"safety_score":        proposal.SafetyScore,
			"breaking_changes":    proposal.BreakingChanges,
			"is_safe":             verdict.IsSafe,
			"blockers":            verdict.Blockers,
			"warnings":            verdict.Warnings,
			"status":              string(status),
			"auto_apply_eligible": eligible,
		},
		ErrorID: errorID,
		TaskID:  req.TaskID,
	}); err != nil {
		span.RecordError(err)
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to record patch action", err)
	}

	if s.patchesCounter != nil {
		s.patchesCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("safe", verdict.IsSafe),
		))
	}

	span.SetAttributes(
		attribute.Float64("patch.safety_score", proposal.SafetyScore),
		attribute.Bool("patch.safe", verdict.IsSafe),
	)
	s.logger.Info("patch generated",
		zap.String("error_id", errorID),
		zap.String("patch_id", suggestion.ID),
		zap.Float64("safety_score", proposal.SafetyScore),
		zap.Bool("is_safe", verdict.IsSafe),
		zap.Bool("auto_apply_eligible", eligible),
	)

	return &Result{
		PatchID:           suggestion.ID,
		Patch:             &proposal,
		Validation:        verdict,
		Status:            status,
		AutoApplyEligible: eligible,
		Recommendations:   recommendations(verdict, eligible),
	}, nil
}

// resolveAnalysis picks the supplied analysis, then the one cached on the
// record, then chains a synchronous diagnosis.
func (s *service) resolveAnalysis(ctx context.Context, req Request, rec *store.ErrorRecord) (*diagnosis.Analysis, error) {
	if req.Analysis != nil {
		return req.Analysis, nil
	}
	if cached, ok := diagnosis.AnalysisFromRecord(rec); ok {
		return cached, nil
	}

	result, err := s.diagnoser.Diagnose(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("chained diagnosis failed: %w", err)
	}
	return result.Analysis, nil
}

// resolveErrorID yields the error record id the patch targets: the one
// supplied directly, or the one linked from the referenced task.
func (s *service) resolveErrorID(ctx context.Context, req Request) (string, error) {
	if req.ErrorID != "" {
		return req.ErrorID, nil
	}
	if req.TaskID == "" {
		return "", fault.New(fault.KindInvalidRequest, "errorId or taskId is required")
	}

	task, err := s.store.GetTask(ctx, req.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fault.Newf(fault.KindNotFound, "task %s not found", req.TaskID)
		}
		return "", fault.Wrap(fault.KindUpstreamFailure, "failed to load task", err)
	}
	if task.ErrorID == "" {
		return "", fault.Newf(fault.KindInvalidRequest, "task %s has no linked error record", req.TaskID)
	}
	return task.ErrorID, nil
}

func buildPrompt(rec *store.ErrorRecord, analysis *diagnosis.Analysis) string {
	var b strings.Builder
	b.WriteString("You are generating a minimal code patch for a diagnosed error. ")
	b.WriteString("Respond with a single JSON object with fields: kind (edit|create|delete), ")
	b.WriteString("target_file, line, original_code, fixed_code, diff, explanation, ")
	b.WriteString("safety_score (0 to 1), breaking_changes (bool), test_suggestions, ")
	b.WriteString("rollback_instructions.\n\n")

	fmt.Fprintf(&b, "Error: %s\n", rec.Message)
	if rec.File != "" {
		fmt.Fprintf(&b, "Location: %s:%d:%d\n", rec.File, rec.Line, rec.Column)
	}
	if rec.StackTrace != "" {
		fmt.Fprintf(&b, "Stack trace:\n%s\n", rec.StackTrace)
	}
	fmt.Fprintf(&b, "Root cause: %s\n", analysis.RootCause)
	if analysis.SuggestedFix.Description != "" {
		fmt.Fprintf(&b, "Suggested fix: %s\n", analysis.SuggestedFix.Description)
	}
	if len(analysis.SuggestedFix.Files) > 0 {
		fmt.Fprintf(&b, "Candidate files: %s\n", strings.Join(analysis.SuggestedFix.Files, ", "))
	}

	return b.String()
}

func recommendations(v Validation, eligible bool) []string {
	var recs []string
	if eligible {
		recs = append(recs, "patch is eligible for unattended application")
	} else if v.IsSafe {
		recs = append(recs, "patch passed validation; apply after review")
	} else {
		recs = append(recs, "patch is blocked; resolve blockers before applying")
	}
	for _, w := range v.Warnings {
		recs = append(recs, "warning: "+w)
	}
	return recs
}
