// Package agents implements the LLM-backed reasoning agents: perception
// (the critic), decision (the planner), and response (answer extraction).
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slate-agents/slate/pkg/blackboard"
	"github.com/slate-agents/slate/pkg/llms"
	"github.com/slate-agents/slate/pkg/utils"
)

// Perception critiques the latest input against the session history and
// produces an ERORLL snapshot.
type Perception struct {
	llm llms.Provider
}

// NewPerception creates the perception agent.
func NewPerception(llm llms.Provider) *Perception {
	return &Perception{llm: llm}
}

// perceptionOutput is the wire shape the model is constrained to. Kept
// separate from blackboard.PerceptionSnapshot so schema reflection does not
// pick up server-side fields like the timestamp.
type perceptionOutput struct {
	SnapshotType         string   `json:"snapshot_type"`
	Entities             []string `json:"entities"`
	ResultRequirement    string   `json:"result_requirement"`
	OriginalGoalAchieved bool     `json:"original_goal_achieved"`
	Reasoning            string   `json:"reasoning"`
	LocalGoalAchieved    bool     `json:"local_goal_achieved"`
	LocalReasoning       string   `json:"local_reasoning"`
	Confidence           float64  `json:"confidence"`
	SolutionSummary      string   `json:"solution_summary"`
}

// Run produces a snapshot for rawInput and records it on the blackboard.
// Malformed model output degrades to a zero-confidence snapshot; the only
// error ever returned is provider throttling, which the coordinator turns
// into a user-facing message.
func (p *Perception) Run(ctx context.Context, bb *blackboard.Blackboard, rawInput string, kind blackboard.SnapshotKind) (*blackboard.PerceptionSnapshot, error) {
	prompt := fmt.Sprintf("%s\n\n--- CONTEXT ---\n%s\n\n--- CURRENT INPUT ---\nType: %s\nContent: %s",
		perceptionPrompt, historyFor(bb), kind, rawInput)

	var out perceptionOutput
	err := p.llm.GenerateJSON(ctx, []llms.Message{{Role: llms.RoleUser, Content: prompt}}, &out)
	if err != nil {
		if llms.IsRateLimited(err) {
			return nil, err
		}
		slog.Warn("perception degraded to fallback snapshot", "error", err)
		snapshot := &blackboard.PerceptionSnapshot{
			Kind:       kind,
			Reasoning:  fmt.Sprintf("Perception failed: %v", err),
			Confidence: 0,
			Timestamp:  time.Now().UTC(),
		}
		bb.UpdatePerception(snapshot)
		return snapshot, nil
	}

	snapshot := &blackboard.PerceptionSnapshot{
		// The model's snapshot_type is discarded; the caller knows what it
		// asked to be critiqued.
		Kind:                 kind,
		Entities:             out.Entities,
		ResultRequirement:    out.ResultRequirement,
		OriginalGoalAchieved: out.OriginalGoalAchieved,
		Reasoning:            out.Reasoning,
		LocalGoalAchieved:    out.LocalGoalAchieved,
		LocalReasoning:       out.LocalReasoning,
		Confidence:           out.Confidence,
		SolutionSummary:      out.SolutionSummary,
		Timestamp:            time.Now().UTC(),
	}
	bb.UpdatePerception(snapshot)
	return snapshot, nil
}

// historyTokenBudget bounds the history projection in prompts. Old plan
// versions fall off the front first.
const historyTokenBudget = 4000

func historyFor(bb *blackboard.Blackboard) string {
	history := bb.HistoryText()
	counter, err := utils.NewTokenCounter("")
	if err != nil {
		return history
	}
	return counter.TruncateToBudget(history, historyTokenBudget)
}
