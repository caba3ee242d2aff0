// Package blackboard holds the shared per-session state that every agent
// reads and writes: perception snapshots, plan versions, retrieved context,
// user feedback, and the final answer.
package blackboard

import (
	"time"
)

// SnapshotKind distinguishes what a perception snapshot critiques.
type SnapshotKind string

const (
	// SnapshotUserQuery critiques the user's query itself.
	SnapshotUserQuery SnapshotKind = "user_query"
	// SnapshotStepResult critiques the result of the last executed step.
	SnapshotStepResult SnapshotKind = "step_result"
)

// PerceptionSnapshot is the "ERORLL" critique record produced once per cycle:
// Entities, result Requirement, Original-goal-achieved, Reasoning,
// Local-goal-achieved, Local-reasoning.
type PerceptionSnapshot struct {
	Kind                 SnapshotKind `json:"snapshot_type"`
	Entities             []string     `json:"entities"`
	ResultRequirement    string       `json:"result_requirement"`
	OriginalGoalAchieved bool         `json:"original_goal_achieved"`
	Reasoning            string       `json:"reasoning"`
	LocalGoalAchieved    bool         `json:"local_goal_achieved"`
	LocalReasoning       string       `json:"local_reasoning"`
	Confidence           float64      `json:"confidence"`
	SolutionSummary      string       `json:"solution_summary"`
	RequireGroundTruth   bool         `json:"require_ground_truth"`
	Timestamp            time.Time    `json:"timestamp"`
}

// StepType classifies a plan step.
type StepType string

const (
	// StepCode executes a planner-emitted snippet in the sandbox.
	StepCode StepType = "CODE"
	// StepConclude carries the final answer and terminates the run.
	StepConclude StepType = "CONCLUDE"
	// StepNop does nothing; emitted when the planner output was unusable.
	StepNop StepType = "NOP"
	// StepAskUser requests human guidance before continuing.
	StepAskUser StepType = "ASK_USER"
)

// StepStatus tracks a step's lifecycle. A step transitions away from pending
// at most once per execution attempt.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusCompleted StepStatus = "completed"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"
)

// PlanStep is one unit of intended action, produced by the decision agent and
// mutated by the executor.
type PlanStep struct {
	StepIndex       int           `json:"step_index"`
	Description     string        `json:"description"`
	Type            StepType      `json:"type"`
	Code            string        `json:"code,omitempty"`
	Conclusion      string        `json:"conclusion,omitempty"`
	Status          StepStatus    `json:"status"`
	Attempts        int           `json:"attempts"`
	ExecutionResult string        `json:"execution_result,omitempty"`
	ExecutionTime   time.Duration `json:"execution_time,omitempty"`
}

// FailureRecord is a trace entry kept on the blackboard for replanning
// context. Failures are never promoted to persistent memory.
type FailureRecord struct {
	Query     string    `json:"query"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// HITLConfig enables human-in-the-loop approval gates.
type HITLConfig struct {
	RequirePlanApproval bool `json:"require_plan_approval" yaml:"require_plan_approval" mapstructure:"require_plan_approval"`
	RequireStepApproval bool `json:"require_step_approval" yaml:"require_step_approval" mapstructure:"require_step_approval"`
}

// State is the raw per-session blackboard record. All access goes through
// Blackboard; the struct is exported for snapshotting and persistence.
type State struct {
	SessionID        string              `json:"session_id"`
	OriginalQuery    string              `json:"original_query"`
	FinalAnswer      string              `json:"final_answer,omitempty"`
	PlanVersions     [][]*PlanStep       `json:"plan_versions"`
	CurrentPlanIndex int                 `json:"current_plan_index"`
	LatestPerception *PerceptionSnapshot `json:"latest_perception,omitempty"`
	ContextData      map[string]any      `json:"context_data"`
	SessionMemory    []FailureRecord     `json:"session_memory"`
	UserFeedback     []string            `json:"user_feedback"`
	HITL             HITLConfig          `json:"hitl_config"`
}
