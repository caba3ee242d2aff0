package blackboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("generates session id when empty", func(t *testing.T) {
		bb := New("what is 2+2", "")
		assert.NotEmpty(t, bb.SessionID())
		assert.Equal(t, "what is 2+2", bb.State().OriginalQuery)
		assert.Nil(t, bb.CurrentPlan())
	})

	t.Run("reuses provided session id", func(t *testing.T) {
		bb := New("follow-up", "session-123")
		assert.Equal(t, "session-123", bb.SessionID())
	})
}

func TestAddPlanVersion(t *testing.T) {
	bb := New("q", "")

	require.NoError(t, bb.AddPlanVersion([]*PlanStep{
		{StepIndex: 0, Description: "first", Type: StepCode, Status: StatusPending},
	}))
	require.Len(t, bb.CurrentPlan(), 1)

	// A replan appends a new version; the old one stays untouched.
	require.NoError(t, bb.AddPlanVersion([]*PlanStep{
		{StepIndex: 0, Description: "revised", Type: StepCode, Status: StatusPending},
	}))
	assert.Len(t, bb.State().PlanVersions, 2)
	assert.Equal(t, "revised", bb.CurrentPlan()[0].Description)
	assert.Equal(t, "first", bb.State().PlanVersions[0][0].Description)

	t.Run("rejects duplicate step indices", func(t *testing.T) {
		err := bb.AddPlanVersion([]*PlanStep{
			{StepIndex: 1},
			{StepIndex: 1},
		})
		assert.ErrorContains(t, err, "duplicate step index")
	})
}

func TestAppendStep(t *testing.T) {
	bb := New("q", "")

	t.Run("creates first version when none exists", func(t *testing.T) {
		require.NoError(t, bb.AppendStep(&PlanStep{StepIndex: 0, Status: StatusPending}))
		assert.Len(t, bb.State().PlanVersions, 1)
	})

	t.Run("appends to current version", func(t *testing.T) {
		require.NoError(t, bb.AppendStep(&PlanStep{StepIndex: 1, Status: StatusPending}))
		assert.Len(t, bb.CurrentPlan(), 2)
	})

	t.Run("rejects index already in current version", func(t *testing.T) {
		err := bb.AppendStep(&PlanStep{StepIndex: 1})
		assert.ErrorContains(t, err, "already present")
	})
}

func TestCompleteStep(t *testing.T) {
	bb := New("q", "")
	require.NoError(t, bb.AppendStep(&PlanStep{StepIndex: 0, Status: StatusPending}))

	t.Run("transitions pending step once", func(t *testing.T) {
		require.NoError(t, bb.CompleteStep(0, StatusCompleted, "42", 150*time.Millisecond))
		step, ok := bb.FindStep(0)
		require.True(t, ok)
		assert.Equal(t, StatusCompleted, step.Status)
		assert.Equal(t, "42", step.ExecutionResult)
		assert.Equal(t, 1, step.Attempts)
	})

	t.Run("second transition is an invariant violation", func(t *testing.T) {
		err := bb.CompleteStep(0, StatusFailed, "boom", 0)
		assert.ErrorContains(t, err, "already transitioned")
	})

	t.Run("unknown index is an invariant violation", func(t *testing.T) {
		err := bb.CompleteStep(99, StatusCompleted, "", 0)
		assert.ErrorContains(t, err, "no step with index")
	})

	t.Run("cannot transition back to pending", func(t *testing.T) {
		require.NoError(t, bb.AppendStep(&PlanStep{StepIndex: 1, Status: StatusPending}))
		err := bb.CompleteStep(1, StatusPending, "", 0)
		assert.ErrorContains(t, err, "cannot transition to pending")
	})
}

func TestNextStepIndex(t *testing.T) {
	bb := New("q", "")
	assert.Equal(t, 0, bb.NextStepIndex())

	require.NoError(t, bb.AppendStep(&PlanStep{StepIndex: 0, Status: StatusPending}))
	assert.Equal(t, 1, bb.NextStepIndex())

	require.NoError(t, bb.AppendStep(&PlanStep{StepIndex: 1, Status: StatusPending}))
	assert.Equal(t, 2, bb.NextStepIndex())
}

func TestLastExecutionResult(t *testing.T) {
	bb := New("q", "")
	assert.Empty(t, bb.LastExecutionResult())

	require.NoError(t, bb.AppendStep(&PlanStep{StepIndex: 0, Status: StatusPending}))
	require.NoError(t, bb.CompleteStep(0, StatusCompleted, "first result", 0))
	require.NoError(t, bb.AppendStep(&PlanStep{StepIndex: 1, Status: StatusPending}))

	assert.Equal(t, "first result", bb.LastExecutionResult())

	require.NoError(t, bb.CompleteStep(1, StatusFailed, "second result", 0))
	assert.Equal(t, "second result", bb.LastExecutionResult())
}

func TestSnapshot(t *testing.T) {
	bb := New("q", "sess")
	bb.SetContext("source", "documents")
	require.NoError(t, bb.AppendStep(&PlanStep{StepIndex: 0, Description: "original", Status: StatusPending}))

	snap, err := bb.Snapshot()
	require.NoError(t, err)

	// Mutating the live state must not leak into the snapshot.
	bb.CurrentPlan()[0].Description = "mutated"
	bb.SetContext("source", "web")

	assert.Equal(t, "original", snap.PlanVersions[0][0].Description)
	assert.Equal(t, "documents", snap.ContextData["source"])
}

func TestHistoryText(t *testing.T) {
	bb := New("q", "")
	require.NoError(t, bb.AppendStep(&PlanStep{
		StepIndex:   0,
		Description: "compute the answer",
		Status:      StatusPending,
	}))
	require.NoError(t, bb.CompleteStep(0, StatusCompleted, "42", 0))

	history := bb.HistoryText()
	assert.Contains(t, history, "Plan Version 0")
	assert.Contains(t, history, "Step 0 [completed]: compute the answer")
	assert.Contains(t, history, "Result: 42")
}

func TestContextString(t *testing.T) {
	bb := New("q", "")
	bb.SetContext("source", "memory")
	bb.SetContext("hits", 3)

	assert.Equal(t, "memory", bb.ContextString("source"))
	assert.Equal(t, "3", bb.ContextString("hits"))
	assert.Empty(t, bb.ContextString("missing"))
}
