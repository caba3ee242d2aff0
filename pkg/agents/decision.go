package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slate-agents/slate/pkg/blackboard"
	"github.com/slate-agents/slate/pkg/llms"
	"github.com/slate-agents/slate/pkg/tools"
)

// Mode selects how the decision agent extends the plan.
type Mode string

const (
	// ModeInitial opens a new plan version with the first step.
	ModeInitial Mode = "initial"
	// ModeReplan appends the next step to the current plan version.
	ModeReplan Mode = "replan"
)

// Decision plans the next step from the blackboard state.
type Decision struct {
	llm      llms.Provider
	toolList string
}

// NewDecision creates the decision agent. The tool inventory is rendered
// into the prompt once; servers do not change mid-session.
func NewDecision(llm llms.Provider, infos []tools.ToolInfo) *Decision {
	var sb strings.Builder
	for _, info := range infos {
		fmt.Fprintf(&sb, "- %s: %s\n", info.Name, info.Description)
	}
	if sb.Len() == 0 {
		sb.WriteString("(no tools registered)\n")
	}
	return &Decision{llm: llm, toolList: sb.String()}
}

type decisionStep struct {
	StepIndex   int    `json:"step_index"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Code        string `json:"code"`
	Conclusion  string `json:"conclusion"`
}

type decisionOutput struct {
	// PlanText is an advisory outline for display; only NextStep is binding.
	PlanText []string     `json:"plan_text"`
	NextStep decisionStep `json:"next_step"`
}

// Run plans one step and records it on the blackboard. Malformed model
// output degrades to a NOP step carrying the failure text; the only error
// returned is provider throttling.
func (d *Decision) Run(ctx context.Context, bb *blackboard.Blackboard, mode Mode) (*blackboard.PlanStep, error) {
	state := bb.State()

	perceptionBlob := "None"
	if state.LatestPerception != nil {
		if raw, err := json.MarshalIndent(state.LatestPerception, "", "  "); err == nil {
			perceptionBlob = string(raw)
		}
	}
	contextBlob := "None"
	if len(state.ContextData) > 0 {
		if raw, err := json.MarshalIndent(state.ContextData, "", "  "); err == nil {
			contextBlob = string(raw)
		}
	}
	feedbackBlob := "None"
	if len(state.UserFeedback) > 0 {
		feedbackBlob = "- " + strings.Join(state.UserFeedback, "\n- ")
	}
	recentResult := bb.LastExecutionResult()
	if recentResult == "" {
		recentResult = "None"
	}

	prompt := fmt.Sprintf(`%s
%s

--- PERCEPTION ---
%s

--- CONTEXT DATA (from retriever/memory) ---
%s

--- MOST RECENT TOOL RESULT ---
%s

--- HISTORY ---
%s

--- USER FEEDBACK (HITL) ---
%s

--- MODE ---
%s`,
		decisionPrompt, d.toolList, perceptionBlob, contextBlob, recentResult, historyFor(bb), feedbackBlob, mode)

	var out decisionOutput
	err := d.llm.GenerateJSON(ctx, []llms.Message{{Role: llms.RoleUser, Content: prompt}}, &out)
	if err != nil {
		if llms.IsRateLimited(err) {
			return nil, err
		}
		slog.Warn("decision degraded to NOP step", "error", err)
		return &blackboard.PlanStep{
			StepIndex:       -1,
			Description:     "Decision failed",
			Type:            blackboard.StepNop,
			Status:          blackboard.StatusPending,
			ExecutionResult: err.Error(),
		}, nil
	}

	step := &blackboard.PlanStep{
		// The model's step_index is advisory; the blackboard owns numbering.
		StepIndex:   bb.NextStepIndex(),
		Description: out.NextStep.Description,
		Type:        stepType(out.NextStep.Type),
		Code:        out.NextStep.Code,
		Conclusion:  out.NextStep.Conclusion,
		Status:      blackboard.StatusPending,
	}
	if mode == ModeInitial {
		step.StepIndex = 0
		if err := bb.AddPlanVersion([]*blackboard.PlanStep{step}); err != nil {
			return nil, err
		}
	} else {
		if err := bb.AppendStep(step); err != nil {
			return nil, err
		}
	}
	return step, nil
}

func stepType(raw string) blackboard.StepType {
	switch blackboard.StepType(strings.ToUpper(strings.TrimSpace(raw))) {
	case blackboard.StepCode:
		return blackboard.StepCode
	case blackboard.StepConclude:
		return blackboard.StepConclude
	case blackboard.StepAskUser:
		return blackboard.StepAskUser
	default:
		return blackboard.StepNop
	}
}
