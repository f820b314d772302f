// Package tasks turns aggregate error metrics into prioritized
// remediation tasks through a fixed table of threshold rules.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/fault"
	"github.com/driftwoodlabs/triaged/internal/ledger"
	"github.com/driftwoodlabs/triaged/internal/patterns"
	"github.com/driftwoodlabs/triaged/internal/store"
)

const instrumentationName = "github.com/driftwoodlabs/triaged/internal/tasks"

// Report is the metrics snapshot the orchestrator evaluates.
type Report struct {
	HealthScore   float64                  `json:"health_score"`
	Criticals     int                      `json:"criticals"`
	TotalErrors   int                      `json:"total_errors"`
	Recurrences   int                      `json:"recurrences"`
	MTTRHours     float64                  `json:"mttr_hours"`
	TopComponents []patterns.ComponentRank `json:"top_components"`
}

// Result is the orchestrator's response for one invocation.
type Result struct {
	TasksCreated int                      `json:"tasks_created"`
	Tasks        []*store.RemediationTask `json:"tasks"`
}

// Service provides task orchestration.
type Service interface {
	// Orchestrate evaluates all threshold rules against the report and
	// creates zero or more tasks. No rule firing is a normal outcome.
	Orchestrate(ctx context.Context, report *Report) (*Result, error)
}

// service implements the Service interface.
type service struct {
	store    store.Store
	recorder ledger.Recorder
	logger   *zap.Logger

	tracer       trace.Tracer
	meter        metric.Meter
	tasksCounter metric.Int64Counter
}

// NewService creates a task orchestration service.
func NewService(s store.Store, rec ledger.Recorder, logger *zap.Logger) (Service, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if rec == nil {
		return nil, errors.New("ledger recorder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &service{
		store:    s,
		recorder: rec,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}

	svc.initMetrics()

	return svc, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.tasksCounter, err = s.meter.Int64Counter(
		"triaged.tasks.created_total",
		metric.WithDescription("Total number of remediation tasks created"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		s.logger.Warn("failed to create tasks counter", zap.Error(err))
	}
}

// rule is one independent threshold check. Rules are evaluated in order
// and may all fire in the same invocation.
type rule struct {
	name  string
	fires func(*Report) bool
	build func(*Report) *store.RemediationTask
}

var rules = []rule{
	{
		name:  "low_health_audit",
		fires: func(r *Report) bool { return r.HealthScore < 60 },
		build: func(r *Report) *store.RemediationTask {
			return &store.RemediationTask{
				Title: "System health audit",
				Description: fmt.Sprintf(
					"System health score dropped to %.0f. Audit the error landscape and stabilize the worst offenders.",
					r.HealthScore),
				Priority: store.PriorityUrgent,
			}
		},
	},
	{
		name:  "critical_errors",
		fires: func(r *Report) bool { return r.Criticals > 5 },
		build: func(r *Report) *store.RemediationTask {
			return &store.RemediationTask{
				Title: "Resolve critical errors",
				Description: fmt.Sprintf(
					"%d critical errors are open. Triage and resolve them before anything else.",
					r.Criticals),
				Priority: store.PriorityUrgent,
			}
		},
	},
	{
		name:  "recurring_errors",
		fires: func(r *Report) bool { return r.Recurrences > 10 },
		build: func(r *Report) *store.RemediationTask {
			comps := topComponentNames(r, 3)
			return &store.RemediationTask{
				Title: "Refactor recurring error sources",
				Description: fmt.Sprintf(
					"%d errors keep recurring. Worst components: %s.",
					r.Recurrences, strings.Join(comps, ", ")),
				Priority: store.PriorityHigh,
			}
		},
	},
	{
		name:  "slow_resolution",
		fires: func(r *Report) bool { return r.MTTRHours > 24 },
		build: func(r *Report) *store.RemediationTask {
			return &store.RemediationTask{
				Title: "Optimize incident response process",
				Description: fmt.Sprintf(
					"Mean time to resolution is %.1f hours. Review triage and ownership processes.",
					r.MTTRHours),
				Priority: store.PriorityMedium,
			}
		},
	},
	{
		name: "component_hotspot",
		fires: func(r *Report) bool {
			return len(r.TopComponents) > 0 && r.TopComponents[0].ErrorCount > 15
		},
		build: func(r *Report) *store.RemediationTask {
			top := r.TopComponents[0]
			return &store.RemediationTask{
				Title: fmt.Sprintf("Refactor component %s", top.Component),
				Description: fmt.Sprintf(
					"Component %q concentrates %d errors. Refactor it to reduce the failure surface.",
					top.Component, top.ErrorCount),
				Priority:  store.PriorityHigh,
				Component: top.Component,
			}
		},
	},
}

// Orchestrate implements Service.
func (s *service) Orchestrate(ctx context.Context, report *Report) (*Result, error) {
	if report == nil {
		return nil, fault.New(fault.KindInvalidRequest, "report is required")
	}

	ctx, span := s.tracer.Start(ctx, "tasks.Orchestrate",
		trace.WithAttributes(attribute.Float64("report.health_score", report.HealthScore)),
	)
	defer span.End()

	var created []*store.RemediationTask
	anyUrgent := false

	for _, r := range rules {
		if !r.fires(report) {
			continue
		}

		task := r.build(report)
		task.ID = uuid.NewString()
		task.Status = store.TaskStatusOpen
		task.Created = time.Now().UTC()

		if err := s.store.CreateTask(ctx, task); err != nil {
			span.RecordError(err)
			return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to create task", err)
		}
		if task.Priority == store.PriorityUrgent {
			anyUrgent = true
		}
		created = append(created, task)

		if _, err := s.recorder.Record(ctx, ledger.Entry{
			Kind:     "task_created",
			Status:   "completed",
			Priority: task.Priority,
			Result:   task.Title,
			Context:  map[string]any{"rule": r.name},
			TaskID:   task.ID,
		}); err != nil {
			span.RecordError(err)
			return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to record task action", err)
		}

		if s.tasksCounter != nil {
			s.tasksCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("rule", r.name),
			))
		}
	}

	if len(created) > 0 {
		summaryPriority := store.PriorityHigh
		if anyUrgent {
			summaryPriority = store.PriorityCritical
		}
		if _, err := s.recorder.Record(ctx, ledger.Entry{
			Kind:     "tasks_orchestrated",
			Status:   "completed",
			Priority: summaryPriority,
			Result:   fmt.Sprintf("created %d remediation task(s)", len(created)),
			Context:  map[string]any{"tasks_created": len(created)},
		}); err != nil {
			span.RecordError(err)
			return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to record summary action", err)
		}
	}

	span.SetAttributes(attribute.Int("tasks.created", len(created)))
	s.logger.Info("task orchestration completed",
		zap.Int("tasks_created", len(created)),
		zap.Float64("health_score", report.HealthScore),
	)

	return &Result{TasksCreated: len(created), Tasks: created}, nil
}

func topComponentNames(r *Report, n int) []string {
	names := make([]string, 0, n)
	for i, c := range r.TopComponents {
		if i >= n {
			break
		}
		names = append(names, c.Component)
	}
	if len(names) == 0 {
		names = append(names, "unattributed")
	}
	return names
}
