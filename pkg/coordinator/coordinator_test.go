package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slate-agents/slate/pkg/agents"
	"github.com/slate-agents/slate/pkg/blackboard"
	"github.com/slate-agents/slate/pkg/executor"
	"github.com/slate-agents/slate/pkg/llms"
	"github.com/slate-agents/slate/pkg/memory"
	"github.com/slate-agents/slate/pkg/observability"
	"github.com/slate-agents/slate/pkg/tools"
	"github.com/slate-agents/slate/pkg/vector"
)

// scriptedLLM pops one canned response per GenerateJSON call.
type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
	// text answers Generate calls (the response agent path).
	text string
}

func (s *scriptedLLM) Generate(context.Context, []llms.Message) (string, error) {
	if s.text == "" {
		return "", fmt.Errorf("unexpected Generate call")
	}
	return s.text, nil
}

func (s *scriptedLLM) GenerateJSON(_ context.Context, _ []llms.Message, out any) error {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return s.errs[i]
	}
	if i >= len(s.responses) {
		return fmt.Errorf("scripted llm exhausted after %d calls", len(s.responses))
	}
	return json.Unmarshal([]byte(s.responses[i]), out)
}

func (s *scriptedLLM) ModelName() string { return "scripted" }
func (s *scriptedLLM) Close() error      { return nil }

type fakeIO struct {
	outputs []string
	inputs  []string
}

func (f *fakeIO) Output(kind string, data any) {
	f.outputs = append(f.outputs, fmt.Sprintf("%s:%v", kind, data))
}

func (f *fakeIO) Input(prompt string, _ any) (string, error) {
	if len(f.inputs) == 0 {
		return "", nil
	}
	next := f.inputs[0]
	f.inputs = f.inputs[1:]
	return next, nil
}

func (f *fakeIO) sawKind(kind string) bool {
	for _, out := range f.outputs {
		if strings.HasPrefix(out, kind+":") {
			return true
		}
	}
	return false
}

type nullCaller struct{}

func (nullCaller) Tools() []tools.ToolInfo { return nil }
func (nullCaller) Has(string) bool         { return false }
func (nullCaller) Call(context.Context, string, map[string]any) (*tools.Result, error) {
	return nil, fmt.Errorf("no tools")
}
func (nullCaller) Close() error { return nil }

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "unembeddable") {
		return nil, fmt.Errorf("embed failed")
	}
	return []float32{1, 0, 0}, nil
}
func (fixedEmbedder) Dimension() int    { return 3 }
func (fixedEmbedder) ModelName() string { return "fixed" }
func (fixedEmbedder) Close() error      { return nil }

func perceptionJSON(achieved bool, confidence float64, summary string) string {
	out := map[string]any{
		"snapshot_type":          "user_query",
		"entities":               []string{},
		"result_requirement":     "answer the question",
		"original_goal_achieved": achieved,
		"reasoning":              "scripted",
		"local_goal_achieved":    true,
		"local_reasoning":        "scripted",
		"confidence":             confidence,
		"solution_summary":       summary,
	}
	raw, _ := json.Marshal(out)
	return string(raw)
}

func decisionJSON(stepType, description, code, conclusion string) string {
	out := map[string]any{
		"plan_text": []string{"Step 1"},
		"next_step": map[string]any{
			"step_index":  0,
			"description": description,
			"type":        stepType,
			"code":        code,
			"conclusion":  conclusion,
		},
	}
	raw, _ := json.Marshal(out)
	return string(raw)
}

type harness struct {
	coord *Coordinator
	io    *fakeIO
	cache *memory.Store
	dir   string
}

func newHarness(t *testing.T, llm llms.Provider, maxSteps int) *harness {
	t.Helper()
	dir := t.TempDir()

	vectors, err := vector.NewChromemProvider(vector.ChromemConfig{}, 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })
	cache := memory.NewStore(vectors, fixedEmbedder{}, 0.85)

	io := &fakeIO{}
	convLog, err := NewConversationLogger(filepath.Join(dir, "logs"))
	require.NoError(t, err)

	deps := Deps{
		LLM:      llm,
		Executor: executor.New(nullCaller{}, executor.Config{}),
		Cache:    cache,
		Embedder: fixedEmbedder{},
		IO:       io,
		ConvLog:  convLog,
		Metrics:  observability.New(),
	}
	coord := New(
		Config{MaxSteps: maxSteps, MemoryDir: filepath.Join(dir, "memory"), LogsDir: filepath.Join(dir, "logs")},
		deps,
		agents.NewPerception(llm),
		agents.NewDecision(llm, nil),
	)
	return &harness{coord: coord, io: io, cache: cache, dir: dir}
}

func TestImmediateGoalAchieved(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		perceptionJSON(true, 0.97, "Paris is the capital of France."),
	}}
	h := newHarness(t, llm, 20)

	answer := h.coord.Run(context.Background(), "capital of France?", nil)
	assert.Equal(t, "Paris is the capital of France.", answer)
	assert.True(t, h.io.sawKind(KindAnswer))

	// Tier-1 persisted.
	sessionFile := filepath.Join(h.dir, "memory", fmt.Sprintf("session_%s.json", h.coord.SessionID()))
	raw, err := os.ReadFile(sessionFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Paris is the capital of France.")

	// Debug snapshot written.
	snapshot := filepath.Join(h.dir, "memory", "snapshots", fmt.Sprintf("session_%s.json", h.coord.SessionID()))
	_, err = os.Stat(snapshot)
	assert.NoError(t, err)
}

func TestCodeStepThenPerceptionConcludes(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		perceptionJSON(false, 0.5, ""),
		decisionJSON("CODE", "compute", "result = 6 * 7", ""),
		perceptionJSON(true, 0.95, "The answer is 42 and that is final."),
	}}
	h := newHarness(t, llm, 20)

	answer := h.coord.Run(context.Background(), "six times seven?", nil)
	assert.Equal(t, "The answer is 42 and that is final.", answer)

	// Perception-verified answers are promoted to the tier-2 cache.
	hit, err := h.cache.Lookup(context.Background(), "six times seven?")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "The answer is 42 and that is final.", hit.Record.Answer)
}

func TestEmptySummaryDistilledFromToolOutput(t *testing.T) {
	llm := &scriptedLLM{
		responses: []string{
			perceptionJSON(false, 0.5, ""),
			decisionJSON("CODE", "compute", "result = 6 * 7", ""),
			perceptionJSON(true, 0.9, ""),
		},
		text: "The product is 42.",
	}
	h := newHarness(t, llm, 20)

	answer := h.coord.Run(context.Background(), "six times seven?", nil)
	assert.Equal(t, "The product is 42.", answer)
}

func TestConcludeStep(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		perceptionJSON(false, 0.5, ""),
		decisionJSON("CONCLUDE", "answer from context", "", "It is 42, per the retrieved context."),
	}}
	h := newHarness(t, llm, 20)

	answer := h.coord.Run(context.Background(), "q", nil)
	assert.Equal(t, "It is 42, per the retrieved context.", answer)

	// Explicit conclusions are not promoted to tier 2.
	hit, err := h.cache.Lookup(context.Background(), "q")
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestAskUserFlow(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		perceptionJSON(false, 0.5, ""),
		decisionJSON("ASK_USER", "The tool failed. Should I try a different approach?", "", ""),
		decisionJSON("CONCLUDE", "after guidance", "", "Done after user guidance, citing context."),
	}}
	h := newHarness(t, llm, 20)
	h.io.inputs = []string{"try the documents"}

	answer := h.coord.Run(context.Background(), "q", nil)
	assert.Equal(t, "Done after user guidance, citing context.", answer)
}

func TestStepApprovalStop(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		perceptionJSON(false, 0.5, ""),
		decisionJSON("CODE", "compute", "result = 1", ""),
	}}
	h := newHarness(t, llm, 20)
	h.io.inputs = []string{"stop"}

	answer := h.coord.Run(context.Background(), "q", &blackboard.HITLConfig{RequireStepApproval: true})
	assert.Equal(t, msgAborted, answer)
}

func TestPlanApprovalFeedbackReplans(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		perceptionJSON(false, 0.5, ""),
		decisionJSON("CODE", "first attempt", "result = 1", ""),
		decisionJSON("CONCLUDE", "second attempt", "", "Revised answer from feedback."),
	}}
	h := newHarness(t, llm, 20)
	h.io.inputs = []string{"use the cache instead", ""}

	answer := h.coord.Run(context.Background(), "q", &blackboard.HITLConfig{RequirePlanApproval: true})
	assert.Equal(t, "Revised answer from feedback.", answer)
}

func TestMaxStepsReached(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		perceptionJSON(false, 0.5, ""),
		decisionJSON("CODE", "try 1", "result = 1", ""),
		perceptionJSON(false, 0.5, ""),
		decisionJSON("CODE", "try 2", "result = 2", ""),
		perceptionJSON(false, 0.5, ""),
		decisionJSON("CODE", "try 3", "result = 3", ""),
	}}
	h := newHarness(t, llm, 2)

	answer := h.coord.Run(context.Background(), "q", nil)
	assert.Equal(t, msgMaxSteps, answer)

	// Failed runs leave nothing in the tier-1 file.
	sessionFile := filepath.Join(h.dir, "memory", fmt.Sprintf("session_%s.json", h.coord.SessionID()))
	_, err := os.Stat(sessionFile)
	assert.True(t, os.IsNotExist(err))
}

func TestRateLimitMessage(t *testing.T) {
	llm := &scriptedLLM{errs: []error{llms.ErrRateLimited}}
	h := newHarness(t, llm, 20)

	answer := h.coord.Run(context.Background(), "q", nil)
	assert.Equal(t, msgHighTraffic, answer)
	assert.True(t, h.io.sawKind(KindError))
}

func TestSessionPersistsAcrossRuns(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		perceptionJSON(true, 0.97, "First answer stays on record."),
		perceptionJSON(true, 0.97, "Second answer follows the first."),
	}}
	h := newHarness(t, llm, 20)

	h.coord.Run(context.Background(), "first?", nil)
	first := h.coord.SessionID()
	h.coord.Run(context.Background(), "second?", nil)
	assert.Equal(t, first, h.coord.SessionID())

	session, err := memory.NewSessionMemory(first, filepath.Join(h.dir, "memory"), fixedEmbedder{})
	require.NoError(t, err)
	assert.Len(t, session.Turns(), 2)
}

func TestConversationLogWritten(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		perceptionJSON(true, 0.97, "Logged answer."),
	}}
	h := newHarness(t, llm, 20)
	h.coord.Run(context.Background(), "q", nil)

	raw, err := os.ReadFile(h.coord.deps.ConvLog.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.GreaterOrEqual(t, len(lines), 3)

	var first logEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "user", first.Role)
	assert.Equal(t, 0, first.TurnID)
}
