package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/fault"
	"github.com/driftwoodlabs/triaged/internal/ledger"
	"github.com/driftwoodlabs/triaged/internal/patterns"
	"github.com/driftwoodlabs/triaged/internal/store"
)

func newTestService(t *testing.T, mem *store.Memory) Service {
	t.Helper()
	rec, err := ledger.NewRecorder(mem, nil, "", zap.NewNop())
	require.NoError(t, err)
	svc, err := NewService(mem, rec, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func healthyReport() *Report {
	return &Report{
		HealthScore: 95,
		Criticals:   1,
		TotalErrors: 5,
		Recurrences: 2,
		MTTRHours:   4,
	}
}

func TestOrchestrate_NoRuleFires(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(t, mem)

	result, err := svc.Orchestrate(context.Background(), healthyReport())
	require.NoError(t, err)

	assert.Zero(t, result.TasksCreated)
	assert.Empty(t, result.Tasks)
	// No tasks, no summary entry either.
	assert.Empty(t, mem.Actions())
}

func TestOrchestrate_ScenarioTwoRules(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(t, mem)

	report := &Report{
		HealthScore: 55,
		Criticals:   2,
		TotalErrors: 40,
		Recurrences: 3,
		MTTRHours:   10,
		TopComponents: []patterns.ComponentRank{
			{Component: "X", ErrorCount: 20},
		},
	}

	result, err := svc.Orchestrate(context.Background(), report)
	require.NoError(t, err)

	require.Equal(t, 2, result.TasksCreated)
	assert.Equal(t, "System health audit", result.Tasks[0].Title)
	assert.Equal(t, store.PriorityUrgent, result.Tasks[0].Priority)
	assert.Equal(t, "Refactor component X", result.Tasks[1].Title)
	assert.Equal(t, store.PriorityHigh, result.Tasks[1].Priority)
	assert.Equal(t, "X", result.Tasks[1].Component)

	// Two per-task entries plus one summary; summary is critical because
	// an urgent task was created.
	actions := mem.Actions()
	require.Len(t, actions, 3)
	summary := actions[2]
	assert.Equal(t, "tasks_orchestrated", summary.Kind)
	assert.Equal(t, store.PriorityCritical, summary.Priority)
}

func TestOrchestrate_AllRulesFire(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(t, mem)

	report := &Report{
		HealthScore: 30,
		Criticals:   12,
		TotalErrors: 200,
		Recurrences: 25,
		MTTRHours:   48,
		TopComponents: []patterns.ComponentRank{
			{Component: "checkout", ErrorCount: 60},
			{Component: "auth", ErrorCount: 40},
			{Component: "billing", ErrorCount: 30},
			{Component: "search", ErrorCount: 20},
		},
	}

	result, err := svc.Orchestrate(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, 5, result.TasksCreated)

	// Recurring-errors task lists only the top 3 components.
	var refactor *store.RemediationTask
	for _, task := range result.Tasks {
		if task.Title == "Refactor recurring error sources" {
			refactor = task
		}
	}
	require.NotNil(t, refactor)
	assert.Contains(t, refactor.Description, "checkout, auth, billing")
	assert.NotContains(t, refactor.Description, "search")
}

func TestOrchestrate_SummaryHighWhenNoUrgent(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(t, mem)

	// Only the medium-priority MTTR rule fires.
	report := healthyReport()
	report.MTTRHours = 30

	result, err := svc.Orchestrate(context.Background(), report)
	require.NoError(t, err)
	require.Equal(t, 1, result.TasksCreated)
	assert.Equal(t, store.PriorityMedium, result.Tasks[0].Priority)

	actions := mem.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, store.PriorityHigh, actions[1].Priority)
}

func TestOrchestrate_SameReportSameOutput(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(t, mem)

	report := &Report{HealthScore: 55, Criticals: 8}

	first, err := svc.Orchestrate(context.Background(), report)
	require.NoError(t, err)
	second, err := svc.Orchestrate(context.Background(), report)
	require.NoError(t, err)

	// Same rules fire both times; duplicates are accepted, not prevented.
	assert.Equal(t, first.TasksCreated, second.TasksCreated)
	assert.Len(t, mem.Tasks(), first.TasksCreated*2)
	for i := range first.Tasks {
		assert.Equal(t, first.Tasks[i].Title, second.Tasks[i].Title)
		assert.Equal(t, first.Tasks[i].Priority, second.Tasks[i].Priority)
	}
}

func TestOrchestrate_BoundaryValuesDoNotFire(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(t, mem)

	// All metrics sit exactly on their thresholds; strict comparisons
	// mean nothing fires.
	report := &Report{
		HealthScore: 60,
		Criticals:   5,
		Recurrences: 10,
		MTTRHours:   24,
		TopComponents: []patterns.ComponentRank{
			{Component: "X", ErrorCount: 15},
		},
	}

	result, err := svc.Orchestrate(context.Background(), report)
	require.NoError(t, err)
	assert.Zero(t, result.TasksCreated)
}

func TestOrchestrate_NilReport(t *testing.T) {
	svc := newTestService(t, store.NewMemory())

	_, err := svc.Orchestrate(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, fault.KindInvalidRequest, fault.KindOf(err))
}
