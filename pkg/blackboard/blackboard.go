package blackboard

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Blackboard owns one session's State for the lifetime of a query. It is not
// safe for concurrent use: a single coordinator owns it, and every write is
// observable by subsequent reads in the same loop.
type Blackboard struct {
	state *State
}

// New creates a blackboard for a query. If sessionID is empty a new one is
// generated; passing the previous session's ID continues that conversation.
func New(query string, sessionID string) *Blackboard {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Blackboard{
		state: &State{
			SessionID:        sessionID,
			OriginalQuery:    query,
			PlanVersions:     [][]*PlanStep{},
			CurrentPlanIndex: -1,
			ContextData:      map[string]any{},
		},
	}
}

// State returns the underlying state. Callers must not retain references
// across coordinator cycles; use Snapshot for that.
func (b *Blackboard) State() *State {
	return b.state
}

// SessionID returns the stable session identifier.
func (b *Blackboard) SessionID() string {
	return b.state.SessionID
}

// AddPlanVersion appends a new plan version and makes it current. Plans are
// append-only: old versions are never rewritten.
func (b *Blackboard) AddPlanVersion(steps []*PlanStep) error {
	seen := make(map[int]bool, len(steps))
	for _, step := range steps {
		if seen[step.StepIndex] {
			return fmt.Errorf("blackboard invariant: duplicate step index %d in new plan version", step.StepIndex)
		}
		seen[step.StepIndex] = true
	}
	b.state.PlanVersions = append(b.state.PlanVersions, steps)
	b.state.CurrentPlanIndex = len(b.state.PlanVersions) - 1
	return nil
}

// AppendStep appends a step to the current plan version, creating the first
// version if none exists yet.
func (b *Blackboard) AppendStep(step *PlanStep) error {
	if len(b.state.PlanVersions) == 0 {
		return b.AddPlanVersion([]*PlanStep{step})
	}
	current := b.state.PlanVersions[b.state.CurrentPlanIndex]
	for _, existing := range current {
		if existing.StepIndex == step.StepIndex {
			return fmt.Errorf("blackboard invariant: step index %d already present in plan version %d", step.StepIndex, b.state.CurrentPlanIndex)
		}
	}
	b.state.PlanVersions[b.state.CurrentPlanIndex] = append(current, step)
	return nil
}

// CurrentPlan returns the active plan version, or nil before planning.
func (b *Blackboard) CurrentPlan() []*PlanStep {
	if len(b.state.PlanVersions) == 0 {
		return nil
	}
	return b.state.PlanVersions[b.state.CurrentPlanIndex]
}

// FindStep returns the step with the given index in the current plan.
func (b *Blackboard) FindStep(stepIndex int) (*PlanStep, bool) {
	for _, step := range b.CurrentPlan() {
		if step.StepIndex == stepIndex {
			return step, true
		}
	}
	return nil, false
}

// CompleteStep transitions a pending step to its terminal status and records
// the execution outcome. Transitioning a non-pending step is a programmer
// error and aborts the run.
func (b *Blackboard) CompleteStep(stepIndex int, status StepStatus, result string, elapsed time.Duration) error {
	step, ok := b.FindStep(stepIndex)
	if !ok {
		return fmt.Errorf("blackboard invariant: no step with index %d in current plan", stepIndex)
	}
	if step.Status != StatusPending {
		return fmt.Errorf("blackboard invariant: step %d already transitioned to %q", stepIndex, step.Status)
	}
	if status == StatusPending {
		return fmt.Errorf("blackboard invariant: step %d cannot transition to pending", stepIndex)
	}
	step.Status = status
	step.ExecutionResult = result
	step.ExecutionTime = elapsed
	step.Attempts++
	return nil
}

// UpdatePerception records the latest critique.
func (b *Blackboard) UpdatePerception(snapshot *PerceptionSnapshot) {
	b.state.LatestPerception = snapshot
}

// SetContext stores a retrieved-context entry under a string key.
func (b *Blackboard) SetContext(key string, value any) {
	b.state.ContextData[key] = value
}

// ContextString returns a context entry as a string, or "" if absent.
func (b *Blackboard) ContextString(key string) string {
	if v, ok := b.state.ContextData[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// LogFailure appends a failure record to the in-session trace log.
func (b *Blackboard) LogFailure(query, errText string) {
	b.state.SessionMemory = append(b.state.SessionMemory, FailureRecord{
		Query:     query,
		Error:     errText,
		Timestamp: time.Now().UTC(),
	})
}

// AddUserFeedback appends HITL feedback for the next replan.
func (b *Blackboard) AddUserFeedback(feedback string) {
	b.state.UserFeedback = append(b.state.UserFeedback, feedback)
}

// SetFinalAnswer records the terminal answer for the session.
func (b *Blackboard) SetFinalAnswer(answer string) {
	b.state.FinalAnswer = answer
}

// LastExecutionResult returns the most recent non-empty execution result
// across the current plan, or "" if nothing has run yet.
func (b *Blackboard) LastExecutionResult() string {
	plan := b.CurrentPlan()
	for i := len(plan) - 1; i >= 0; i-- {
		if plan[i].ExecutionResult != "" {
			return plan[i].ExecutionResult
		}
	}
	return ""
}

// NextStepIndex returns the next monotone step index for the current plan.
func (b *Blackboard) NextStepIndex() int {
	plan := b.CurrentPlan()
	if len(plan) == 0 {
		return 0
	}
	return plan[len(plan)-1].StepIndex + 1
}

// Snapshot returns a deep copy of the state for debug persistence. The copy
// goes through JSON so later mutation of the live state cannot leak in.
func (b *Blackboard) Snapshot() (*State, error) {
	raw, err := json.Marshal(b.state)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot blackboard: %w", err)
	}
	var copied State
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, fmt.Errorf("failed to snapshot blackboard: %w", err)
	}
	return &copied, nil
}

// HistoryText renders a readable projection of all plan versions for LLM
// prompts. Execution results are clipped to keep the prompt bounded.
func (b *Blackboard) HistoryText() string {
	var sb strings.Builder
	for i, plan := range b.state.PlanVersions {
		fmt.Fprintf(&sb, "--- Plan Version %d ---\n", i)
		for _, step := range plan {
			fmt.Fprintf(&sb, "Step %d [%s]: %s\n", step.StepIndex, step.Status, step.Description)
			if step.ExecutionResult != "" {
				fmt.Fprintf(&sb, "  Result: %s\n", clip(step.ExecutionResult, 200))
			}
		}
	}
	return sb.String()
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
