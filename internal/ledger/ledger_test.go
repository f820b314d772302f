package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/store"
)

func TestRecorder_Record(t *testing.T) {
	mem := store.NewMemory()
	rec, err := NewRecorder(mem, nil, "", zap.NewNop())
	require.NoError(t, err)

	action, err := rec.Record(context.Background(), Entry{
		Kind:     "error_diagnosed",
		Status:   "completed",
		Priority: store.PriorityHigh,
		Result:   "root cause identified",
		ErrorID:  "err-1",
		Context:  map[string]any{"confidence": 0.9},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, action.ID)
	assert.False(t, action.Created.IsZero())
	assert.Equal(t, store.InitiatorSystem, action.Initiator)

	actions := mem.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "error_diagnosed", actions[0].Kind)
	assert.Equal(t, "err-1", actions[0].ErrorID)
}

func TestRecorder_AppendOnly(t *testing.T) {
	mem := store.NewMemory()
	rec, err := NewRecorder(mem, nil, "", zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := rec.Record(ctx, Entry{Kind: "tasks_orchestrated", Status: "completed"})
		require.NoError(t, err)
	}

	assert.Len(t, mem.Actions(), 3)
}

func TestRecorder_ExplicitInitiatorKept(t *testing.T) {
	mem := store.NewMemory()
	rec, err := NewRecorder(mem, nil, "", zap.NewNop())
	require.NoError(t, err)

	action, err := rec.Record(context.Background(), Entry{
		Kind:      "patch_generated",
		Status:    "completed",
		Initiator: store.InitiatorUser,
	})
	require.NoError(t, err)
	assert.Equal(t, store.InitiatorUser, action.Initiator)
}

func TestNewRecorder_RequiresStore(t *testing.T) {
	_, err := NewRecorder(nil, nil, "", zap.NewNop())
	assert.Error(t, err)
}
