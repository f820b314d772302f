package diagnosis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/fault"
	"github.com/driftwoodlabs/triaged/internal/ledger"
	"github.com/driftwoodlabs/triaged/internal/reasoning"
	"github.com/driftwoodlabs/triaged/internal/store"
)

const goodResponse = `{
	"root_cause": "accessing a property on an undefined object",
	"technical_explanation": "the API response is used before the null check",
	"impact": {"severity": "high", "affected_users": "all checkout users", "affected_features": ["checkout"]},
	"suggested_fix": {"description": "add optional chaining", "example": "order?.items", "files": ["checkout.js"]},
	"prevention_strategy": "enable strict null checks",
	"confidence": 0.85
}`

func newTestService(t *testing.T, mem *store.Memory, stub *reasoning.Stub) Service {
	t.Helper()
	rec, err := ledger.NewRecorder(mem, nil, "", zap.NewNop())
	require.NoError(t, err)
	svc, err := NewService(mem, stub, rec, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func seedError(t *testing.T, mem *store.Memory, id string) {
	t.Helper()
	require.NoError(t, mem.CreateError(context.Background(), &store.ErrorRecord{
		ID:        id,
		Message:   "TypeError: Cannot read properties of undefined",
		Severity:  store.SeverityError,
		Component: "checkout",
		File:      "checkout.js",
		Line:      42,
		Status:    store.ErrorStatusNew,
		Created:   time.Now(),
	}))
}

func TestDiagnose_Success(t *testing.T) {
	mem := store.NewMemory()
	seedError(t, mem, "err-1")
	stub := reasoning.NewStub([]json.RawMessage{json.RawMessage(goodResponse)})

	svc := newTestService(t, mem, stub)
	result, err := svc.Diagnose(context.Background(), "err-1")
	require.NoError(t, err)

	assert.Equal(t, "err-1", result.ErrorID)
	assert.Equal(t, 0.85, result.Analysis.Confidence)
	assert.Equal(t, "accessing a property on an undefined object", result.Analysis.RootCause)

	// Status flipped and analysis persisted on the record.
	rec, err := mem.GetError(context.Background(), "err-1")
	require.NoError(t, err)
	assert.Equal(t, store.ErrorStatusInAnalysis, rec.Status)
	cached, ok := AnalysisFromRecord(rec)
	require.True(t, ok)
	assert.Equal(t, 0.85, cached.Confidence)

	// One ledger entry appended.
	actions := mem.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "error_diagnosed", actions[0].Kind)
	assert.Equal(t, "err-1", actions[0].ErrorID)
}

func TestDiagnose_RecordNotFound(t *testing.T) {
	svc := newTestService(t, store.NewMemory(), reasoning.NewStub(nil))

	_, err := svc.Diagnose(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}

func TestDiagnose_EmptyID(t *testing.T) {
	svc := newTestService(t, store.NewMemory(), reasoning.NewStub(nil))

	_, err := svc.Diagnose(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, fault.KindInvalidRequest, fault.KindOf(err))
}

func TestDiagnose_UnparseableResponse_NoPartialWrite(t *testing.T) {
	mem := store.NewMemory()
	seedError(t, mem, "err-1")
	stub := reasoning.NewStub([]json.RawMessage{json.RawMessage(`this is not json`)})

	svc := newTestService(t, mem, stub)
	_, err := svc.Diagnose(context.Background(), "err-1")
	require.Error(t, err)
	assert.Equal(t, fault.KindUpstreamFailure, fault.KindOf(err))

	// Nothing written: status unchanged, no extension, no ledger entry.
	rec, gerr := mem.GetError(context.Background(), "err-1")
	require.NoError(t, gerr)
	assert.Equal(t, store.ErrorStatusNew, rec.Status)
	_, ok := AnalysisFromRecord(rec)
	assert.False(t, ok)
	assert.Empty(t, mem.Actions())
}

func TestDiagnose_ConfidenceOutOfRange(t *testing.T) {
	mem := store.NewMemory()
	seedError(t, mem, "err-1")
	stub := reasoning.NewStub([]json.RawMessage{
		json.RawMessage(`{"root_cause":"x","confidence":1.5}`),
	})

	svc := newTestService(t, mem, stub)
	_, err := svc.Diagnose(context.Background(), "err-1")
	require.Error(t, err)
	assert.Equal(t, fault.KindUpstreamFailure, fault.KindOf(err))
	assert.Empty(t, mem.Actions())
}

func TestDiagnose_StatusNotFlippedWhenAlreadyInAnalysis(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.CreateError(context.Background(), &store.ErrorRecord{
		ID: "err-1", Message: "m", Status: store.ErrorStatusResolved,
	}))
	stub := reasoning.NewStub([]json.RawMessage{json.RawMessage(goodResponse)})

	svc := newTestService(t, mem, stub)
	_, err := svc.Diagnose(context.Background(), "err-1")
	require.NoError(t, err)

	rec, err := mem.GetError(context.Background(), "err-1")
	require.NoError(t, err)
	assert.Equal(t, store.ErrorStatusResolved, rec.Status)
}

func TestDeriveRecommendations(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		impact     string
		wantFirst  string
		wantAlert  bool
	}{
		{"high confidence", 0.85, "low", "eligible for automated application", false},
		{"review band", 0.7, "medium", "review the suggested fix", false},
		{"low confidence", 0.4, "low", "manual investigation", false},
		{"critical impact alerts", 0.9, "critical", "eligible for automated application", true},
		{"high impact alerts", 0.5, "high", "manual investigation", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Analysis{Confidence: tt.confidence, Impact: Impact{Severity: tt.impact}}
			recs := deriveRecommendations(a)

			require.NotEmpty(t, recs)
			assert.Contains(t, recs[0], tt.wantFirst)
			if tt.wantAlert {
				require.Len(t, recs, 2)
				assert.Contains(t, recs[1], "alert the owning team")
			} else {
				assert.Len(t, recs, 1)
			}
		})
	}
}

func TestAnalysisFromRecord_RoundTrippedMap(t *testing.T) {
	// A record fetched from a real store holds the blob as a JSON map.
	rec := &store.ErrorRecord{
		Extension: map[string]any{
			extensionKey: map[string]any{
				"root_cause": "race condition",
				"confidence": 0.7,
			},
		},
	}

	a, ok := AnalysisFromRecord(rec)
	require.True(t, ok)
	assert.Equal(t, "race condition", a.RootCause)
	assert.Equal(t, 0.7, a.Confidence)
}

func TestAnalysisFromRecord_Absent(t *testing.T) {
	_, ok := AnalysisFromRecord(&store.ErrorRecord{})
	assert.False(t, ok)

	_, ok = AnalysisFromRecord(nil)
	assert.False(t, ok)
}

func TestBuildPrompt_IncludesContextCounts(t *testing.T) {
	rec := &store.ErrorRecord{
		Message:   "boom",
		Severity:  store.SeverityCritical,
		Component: "auth",
		File:      "auth.go",
		Line:      10,
	}

	prompt := buildPrompt(rec, 4, 2)
	assert.Contains(t, prompt, "boom")
	assert.Contains(t, prompt, "auth.go:10")
	assert.Contains(t, prompt, "Identical errors recorded: 4")
	assert.Contains(t, prompt, "Remediation tasks already created: 2")
}
