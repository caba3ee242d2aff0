package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slate-agents/slate/pkg/blackboard"
	"github.com/slate-agents/slate/pkg/llms"
	"github.com/slate-agents/slate/pkg/tools"
)

type mockLLM struct {
	text     string
	jsonBody string
	err      error
	prompts  []string
}

func (m *mockLLM) Generate(_ context.Context, messages []llms.Message) (string, error) {
	m.prompts = append(m.prompts, messages[len(messages)-1].Content)
	return m.text, m.err
}

func (m *mockLLM) GenerateJSON(_ context.Context, messages []llms.Message, out any) error {
	m.prompts = append(m.prompts, messages[len(messages)-1].Content)
	if m.err != nil {
		return m.err
	}
	return json.Unmarshal([]byte(m.jsonBody), out)
}

func (m *mockLLM) ModelName() string { return "mock" }
func (m *mockLLM) Close() error      { return nil }

func TestPerceptionRun(t *testing.T) {
	t.Run("parses snapshot and overwrites kind", func(t *testing.T) {
		llm := &mockLLM{jsonBody: `{
			"snapshot_type": "user_query",
			"entities": ["Eiffel Tower"],
			"result_requirement": "height of the tower",
			"original_goal_achieved": true,
			"reasoning": "the result contains the height",
			"local_goal_achieved": true,
			"local_reasoning": "step ran",
			"confidence": 0.95,
			"solution_summary": "330 metres"
		}`}
		bb := blackboard.New("how tall is the eiffel tower", "")
		p := NewPerception(llm)

		snapshot, err := p.Run(context.Background(), bb, "Result: 330m", blackboard.SnapshotStepResult)
		require.NoError(t, err)
		// The model claimed user_query; the caller's kind wins.
		assert.Equal(t, blackboard.SnapshotStepResult, snapshot.Kind)
		assert.True(t, snapshot.OriginalGoalAchieved)
		assert.Equal(t, 0.95, snapshot.Confidence)
		assert.Same(t, snapshot, bb.State().LatestPerception)
	})

	t.Run("malformed output degrades instead of failing", func(t *testing.T) {
		llm := &mockLLM{err: fmt.Errorf("gemini returned non-conforming JSON")}
		bb := blackboard.New("q", "")
		p := NewPerception(llm)

		snapshot, err := p.Run(context.Background(), bb, "q", blackboard.SnapshotUserQuery)
		require.NoError(t, err)
		assert.Zero(t, snapshot.Confidence)
		assert.Contains(t, snapshot.Reasoning, "Perception failed")
	})

	t.Run("rate limiting propagates", func(t *testing.T) {
		llm := &mockLLM{err: fmt.Errorf("exhausted: %w", llms.ErrRateLimited)}
		p := NewPerception(llm)

		_, err := p.Run(context.Background(), blackboard.New("q", ""), "q", blackboard.SnapshotUserQuery)
		assert.True(t, llms.IsRateLimited(err))
	})

	t.Run("prompt carries history and input", func(t *testing.T) {
		llm := &mockLLM{jsonBody: `{"confidence": 0.5}`}
		bb := blackboard.New("q", "")
		require.NoError(t, bb.AddPlanVersion([]*blackboard.PlanStep{{
			StepIndex: 0, Description: "look it up", Type: blackboard.StepCode, Status: blackboard.StatusPending,
		}}))
		p := NewPerception(llm)

		_, err := p.Run(context.Background(), bb, "the raw input", blackboard.SnapshotUserQuery)
		require.NoError(t, err)
		require.Len(t, llm.prompts, 1)
		assert.Contains(t, llm.prompts[0], "look it up")
		assert.Contains(t, llm.prompts[0], "the raw input")
	})
}

func decisionJSON(stepType, description string) string {
	out := map[string]any{
		"plan_text": []string{"Step 1: do the thing"},
		"next_step": map[string]any{
			"step_index":  7,
			"description": description,
			"type":        stepType,
			"code":        "result = add(1, 2)",
			"conclusion":  "the answer is 3",
		},
	}
	raw, _ := json.Marshal(out)
	return string(raw)
}

func TestDecisionRun(t *testing.T) {
	infos := []tools.ToolInfo{
		{Name: "add", Description: "adds two numbers"},
		{Name: "web_search", Description: "searches the web"},
	}

	t.Run("initial mode opens a plan version", func(t *testing.T) {
		llm := &mockLLM{jsonBody: decisionJSON("CODE", "compute the sum")}
		bb := blackboard.New("q", "")
		d := NewDecision(llm, infos)

		step, err := d.Run(context.Background(), bb, ModeInitial)
		require.NoError(t, err)
		assert.Equal(t, blackboard.StepCode, step.Type)
		// The model said step_index 7; the blackboard owns numbering.
		assert.Equal(t, 0, step.StepIndex)
		require.Len(t, bb.CurrentPlan(), 1)
		assert.Same(t, step, bb.CurrentPlan()[0])
	})

	t.Run("replan mode appends to the current plan", func(t *testing.T) {
		llm := &mockLLM{jsonBody: decisionJSON("CONCLUDE", "answer from context")}
		bb := blackboard.New("q", "")
		require.NoError(t, bb.AddPlanVersion([]*blackboard.PlanStep{{
			StepIndex: 0, Type: blackboard.StepCode, Status: blackboard.StatusCompleted,
		}}))
		d := NewDecision(llm, infos)

		step, err := d.Run(context.Background(), bb, ModeReplan)
		require.NoError(t, err)
		assert.Equal(t, 1, step.StepIndex)
		assert.Len(t, bb.CurrentPlan(), 2)
		assert.Equal(t, "the answer is 3", step.Conclusion)
	})

	t.Run("unknown type becomes NOP", func(t *testing.T) {
		llm := &mockLLM{jsonBody: decisionJSON("EXPLODE", "confused")}
		d := NewDecision(llm, infos)

		step, err := d.Run(context.Background(), blackboard.New("q", ""), ModeInitial)
		require.NoError(t, err)
		assert.Equal(t, blackboard.StepNop, step.Type)
	})

	t.Run("malformed output degrades to NOP off-plan", func(t *testing.T) {
		llm := &mockLLM{err: fmt.Errorf("bad json")}
		bb := blackboard.New("q", "")
		d := NewDecision(llm, infos)

		step, err := d.Run(context.Background(), bb, ModeInitial)
		require.NoError(t, err)
		assert.Equal(t, blackboard.StepNop, step.Type)
		assert.Equal(t, -1, step.StepIndex)
		assert.Contains(t, step.ExecutionResult, "bad json")
		assert.Empty(t, bb.CurrentPlan())
	})

	t.Run("rate limiting propagates", func(t *testing.T) {
		llm := &mockLLM{err: llms.ErrRateLimited}
		d := NewDecision(llm, infos)

		_, err := d.Run(context.Background(), blackboard.New("q", ""), ModeInitial)
		assert.True(t, llms.IsRateLimited(err))
	})

	t.Run("prompt carries tools, context, feedback, and mode", func(t *testing.T) {
		llm := &mockLLM{jsonBody: decisionJSON("CODE", "x")}
		bb := blackboard.New("q", "")
		bb.SetContext("retrieved", "Paris is the capital of France")
		bb.AddUserFeedback("try the documents first")
		d := NewDecision(llm, infos)

		_, err := d.Run(context.Background(), bb, ModeReplan)
		require.NoError(t, err)
		require.Len(t, llm.prompts, 1)
		prompt := llm.prompts[0]
		assert.Contains(t, prompt, "web_search: searches the web")
		assert.Contains(t, prompt, "Paris is the capital of France")
		assert.Contains(t, prompt, "try the documents first")
		assert.Contains(t, prompt, "replan")
	})
}

func TestResponseRun(t *testing.T) {
	t.Run("extracts and caches answer", func(t *testing.T) {
		llm := &mockLLM{text: "  The current PM is Narendra Modi.  "}
		bb := blackboard.New("q", "")
		r := NewResponse(llm)

		answer, err := r.Run(context.Background(), bb, "Who is the PM of India?", `{"results": [...]}`)
		require.NoError(t, err)
		assert.Equal(t, "The current PM is Narendra Modi.", answer)
		assert.Equal(t, "The current PM is Narendra Modi.", bb.ContextString("last_response"))
	})

	t.Run("provider failure degrades to error text", func(t *testing.T) {
		llm := &mockLLM{err: fmt.Errorf("boom")}
		r := NewResponse(llm)

		answer, err := r.Run(context.Background(), blackboard.New("q", ""), "q", "out")
		require.NoError(t, err)
		assert.Contains(t, answer, "Error extracting answer")
	})
}
