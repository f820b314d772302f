package patch

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/diagnosis"
	"github.com/driftwoodlabs/triaged/internal/fault"
	"github.com/driftwoodlabs/triaged/internal/ledger"
	"github.com/driftwoodlabs/triaged/internal/reasoning"
	"github.com/driftwoodlabs/triaged/internal/store"
)

func safeProposal(score float64, breaking bool) string {
	return fmt.Sprintf(`{
		"kind": "edit",
		"target_file": "checkout.js",
		"line": 42,
		"original_code": "order.items.length",
		"fixed_code": "order?.items?.length ?? 0",
		"diff": "- order.items.length\n+ order?.items?.length ?? 0",
		"explanation": "guard against undefined order",
		"safety_score": %g,
		"breaking_changes": %t
	}`, score, breaking)
}

const diagnosisResponse = `{
	"root_cause": "undefined order object",
	"impact": {"severity": "high"},
	"suggested_fix": {"description": "add optional chaining", "files": ["checkout.js"]},
	"confidence": 0.9
}`

func newTestService(t *testing.T, mem *store.Memory, stub *reasoning.Stub) Service {
	t.Helper()
	rec, err := ledger.NewRecorder(mem, nil, "", zap.NewNop())
	require.NoError(t, err)
	diag, err := diagnosis.NewService(mem, stub, rec, zap.NewNop())
	require.NoError(t, err)
	svc, err := NewService(mem, stub, diag, rec, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func seedDiagnosed(t *testing.T, mem *store.Memory, id string) {
	t.Helper()
	require.NoError(t, mem.CreateError(context.Background(), &store.ErrorRecord{
		ID:      id,
		Message: "TypeError in checkout",
		File:    "checkout.js",
		Line:    42,
		Status:  store.ErrorStatusInAnalysis,
		Created: time.Now(),
		Extension: map[string]any{
			"ai_analysis": map[string]any{
				"root_cause": "undefined order object",
				"confidence": 0.9,
			},
		},
	}))
}

func TestValidate_Blockers(t *testing.T) {
	tests := []struct {
		name     string
		proposal Proposal
		safe     bool
		blockers int
		warnings int
	}{
		{
			name:     "low score is a blocker",
			proposal: Proposal{SafetyScore: 0.4, TargetFile: "a.go", FixedCode: "fixed code body"},
			safe:     false,
			blockers: 1,
		},
		{
			name:     "mid score warns only",
			proposal: Proposal{SafetyScore: 0.6, TargetFile: "a.go", FixedCode: "fixed code body"},
			safe:     true,
			warnings: 1,
		},
		{
			name:     "breaking change always blocks",
			proposal: Proposal{SafetyScore: 0.99, BreakingChanges: true, TargetFile: "a.go", FixedCode: "fixed code body"},
			safe:     false,
			blockers: 1,
		},
		{
			name:     "missing target blocks",
			proposal: Proposal{SafetyScore: 0.95, FixedCode: "fixed code body"},
			safe:     false,
			blockers: 1,
		},
		{
			name:     "placeholder target blocks",
			proposal: Proposal{SafetyScore: 0.95, TargetFile: "path/to/file.js", FixedCode: "fixed code body"},
			safe:     false,
			blockers: 1,
		},
		{
			name:     "short fixed code warns",
			proposal: Proposal{SafetyScore: 0.95, TargetFile: "a.go", FixedCode: "x=1"},
			safe:     true,
			warnings: 1,
		},
		{
			name:     "ui hook warns only",
			proposal: Proposal{SafetyScore: 0.95, TargetFile: "a.jsx", FixedCode: "const [v, setV] = useState(0)"},
			safe:     true,
			warnings: 1,
		},
		{
			name:     "markup warns only",
			proposal: Proposal{SafetyScore: 0.95, TargetFile: "a.jsx", FixedCode: "return <div>{total}</div>"},
			safe:     true,
			warnings: 1,
		},
		{
			name:     "clean proposal",
			proposal: Proposal{SafetyScore: 0.95, TargetFile: "a.go", FixedCode: "if order == nil { return 0 }"},
			safe:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(&tt.proposal)
			assert.Equal(t, tt.safe, v.IsSafe)
			assert.Len(t, v.Blockers, tt.blockers)
			assert.Len(t, v.Warnings, tt.warnings)
		})
	}
}

func TestValidate_BreakingNeverSafe(t *testing.T) {
	for _, score := range []float64{0.1, 0.5, 0.8, 0.95, 1.0} {
		p := &Proposal{SafetyScore: score, BreakingChanges: true, TargetFile: "a.go", FixedCode: "long enough fix"}
		v := Validate(p)
		assert.False(t, v.IsSafe, "score=%g", score)
		assert.False(t, autoApplyEligible(p, v), "score=%g", score)
	}
}

func TestGenerate_HighScoreAutoApplyEligible(t *testing.T) {
	mem := store.NewMemory()
	seedDiagnosed(t, mem, "err-1")
	stub := reasoning.NewStub([]json.RawMessage{json.RawMessage(safeProposal(0.95, false))})

	svc := newTestService(t, mem, stub)
	result, err := svc.Generate(context.Background(), Request{ErrorID: "err-1"})
	require.NoError(t, err)

	assert.True(t, result.Validation.IsSafe)
	assert.True(t, result.AutoApplyEligible)
	assert.Equal(t, store.PatchStatusApproved, result.Status)
	assert.NotEmpty(t, result.PatchID)

	patches := mem.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, store.PatchStatusApproved, patches[0].Status)
	assert.Equal(t, 0.95, patches[0].SafetyScore)
}

func TestGenerate_ApprovedButNotEligible(t *testing.T) {
	// 0.85 clears the persistence threshold but not the unattended one.
	mem := store.NewMemory()
	seedDiagnosed(t, mem, "err-1")
	stub := reasoning.NewStub([]json.RawMessage{json.RawMessage(safeProposal(0.85, false))})

	svc := newTestService(t, mem, stub)
	result, err := svc.Generate(context.Background(), Request{ErrorID: "err-1"})
	require.NoError(t, err)

	assert.Equal(t, store.PatchStatusApproved, result.Status)
	assert.False(t, result.AutoApplyEligible)
}

func TestGenerate_BreakingPersistedAsSuggested(t *testing.T) {
	mem := store.NewMemory()
	seedDiagnosed(t, mem, "err-1")
	stub := reasoning.NewStub([]json.RawMessage{json.RawMessage(safeProposal(0.95, true))})

	svc := newTestService(t, mem, stub)
	result, err := svc.Generate(context.Background(), Request{ErrorID: "err-1"})
	require.NoError(t, err)

	assert.False(t, result.Validation.IsSafe)
	assert.False(t, result.AutoApplyEligible)
	assert.Equal(t, store.PatchStatusSuggested, result.Status)

	patches := mem.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, store.PatchStatusSuggested, patches[0].Status)
	assert.True(t, patches[0].BreakingChange)
}

func TestGenerate_ChainsDiagnosisWhenNoneCached(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.CreateError(context.Background(), &store.ErrorRecord{
		ID:      "err-1",
		Message: "TypeError in checkout",
		Status:  store.ErrorStatusNew,
		Created: time.Now(),
	}))
	// First response feeds the chained diagnosis, second the patch.
	stub := reasoning.NewStub([]json.RawMessage{
		json.RawMessage(diagnosisResponse),
		json.RawMessage(safeProposal(0.9, false)),
	})

	svc := newTestService(t, mem, stub)
	result, err := svc.Generate(context.Background(), Request{ErrorID: "err-1"})
	require.NoError(t, err)

	assert.True(t, result.Validation.IsSafe)
	require.Len(t, stub.Prompts, 2)
	assert.Contains(t, stub.Prompts[0], "diagnosing a production error")
	assert.Contains(t, stub.Prompts[1], "generating a minimal code patch")

	// Both stages appended ledger entries.
	actions := mem.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, "error_diagnosed", actions[0].Kind)
	assert.Equal(t, "patch_generated", actions[1].Kind)
}

func TestGenerate_ChainedDiagnosisFailureFailsWhole(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.CreateError(context.Background(), &store.ErrorRecord{
		ID: "err-1", Message: "m", Status: store.ErrorStatusNew,
	}))
	stub := reasoning.NewStub([]json.RawMessage{json.RawMessage(`garbage`)})

	svc := newTestService(t, mem, stub)
	_, err := svc.Generate(context.Background(), Request{ErrorID: "err-1"})
	require.Error(t, err)
	assert.Equal(t, fault.KindUpstreamFailure, fault.KindOf(err))

	// No patch persisted, no patch ledger entry.
	assert.Empty(t, mem.Patches())
	assert.Empty(t, mem.Actions())
}

func TestGenerate_SuppliedAnalysisSkipsChain(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.CreateError(context.Background(), &store.ErrorRecord{
		ID: "err-1", Message: "m", Status: store.ErrorStatusNew,
	}))
	stub := reasoning.NewStub([]json.RawMessage{json.RawMessage(safeProposal(0.9, false))})

	svc := newTestService(t, mem, stub)
	result, err := svc.Generate(context.Background(), Request{
		ErrorID:  "err-1",
		Analysis: &diagnosis.Analysis{RootCause: "known cause", Confidence: 0.9},
	})
	require.NoError(t, err)

	assert.True(t, result.Validation.IsSafe)
	// Only the patch prompt was issued.
	require.Len(t, stub.Prompts, 1)
	assert.Contains(t, stub.Prompts[0], "known cause")
}

func TestGenerate_TaskIDOnlyResolvesLinkedError(t *testing.T) {
	mem := store.NewMemory()
	seedDiagnosed(t, mem, "err-1")
	require.NoError(t, mem.CreateTask(context.Background(), &store.RemediationTask{
		ID:      "task-1",
		Title:   "Fix checkout crash",
		Status:  store.TaskStatusOpen,
		ErrorID: "err-1",
	}))
	stub := reasoning.NewStub([]json.RawMessage{json.RawMessage(safeProposal(0.9, false))})

	svc := newTestService(t, mem, stub)
	result, err := svc.Generate(context.Background(), Request{TaskID: "task-1"})
	require.NoError(t, err)

	assert.True(t, result.Validation.IsSafe)
	patches := mem.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, "err-1", patches[0].ErrorID)
	assert.Equal(t, "task-1", patches[0].TaskID)
}

func TestGenerate_TaskNotFound(t *testing.T) {
	svc := newTestService(t, store.NewMemory(), reasoning.NewStub(nil))

	_, err := svc.Generate(context.Background(), Request{TaskID: "ghost"})
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}

func TestGenerate_TaskWithoutLinkedError(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.CreateTask(context.Background(), &store.RemediationTask{
		ID:     "task-1",
		Title:  "General cleanup",
		Status: store.TaskStatusOpen,
	}))

	svc := newTestService(t, mem, reasoning.NewStub(nil))
	_, err := svc.Generate(context.Background(), Request{TaskID: "task-1"})
	require.Error(t, err)
	assert.Equal(t, fault.KindInvalidRequest, fault.KindOf(err))
}

func TestGenerate_MissingErrorID(t *testing.T) {
	svc := newTestService(t, store.NewMemory(), reasoning.NewStub(nil))

	_, err := svc.Generate(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, fault.KindInvalidRequest, fault.KindOf(err))
}

func TestGenerate_ErrorNotFound(t *testing.T) {
	svc := newTestService(t, store.NewMemory(), reasoning.NewStub(nil))

	_, err := svc.Generate(context.Background(), Request{ErrorID: "ghost"})
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}
