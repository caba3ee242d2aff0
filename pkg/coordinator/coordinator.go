// Package coordinator drives the perceive-retrieve-plan-execute loop over
// the blackboard and owns all terminal outcomes of a query.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/slate-agents/slate/pkg/agents"
	"github.com/slate-agents/slate/pkg/blackboard"
	"github.com/slate-agents/slate/pkg/embedders"
	"github.com/slate-agents/slate/pkg/executor"
	"github.com/slate-agents/slate/pkg/llms"
	"github.com/slate-agents/slate/pkg/memory"
	"github.com/slate-agents/slate/pkg/observability"
	"github.com/slate-agents/slate/pkg/rag"
	"github.com/slate-agents/slate/pkg/retriever"
)

// Terminal messages for runs that end without a model conclusion.
const (
	msgHighTraffic = "The system is currently experiencing high traffic (Rate Limit Exceeded). Please try again in a few minutes."
	msgAborted     = "Execution Aborted by User."
	msgMaxSteps    = "Max steps reached without conclusion."
)

// Config bounds a coordinator run.
type Config struct {
	// MaxSteps caps executed steps per query.
	MaxSteps int `yaml:"max_steps"`
	// MemoryDir holds session files and debug snapshots.
	MemoryDir string `yaml:"memory_dir"`
	// LogsDir holds conversation logs.
	LogsDir string `yaml:"logs_dir"`
}

// SetDefaults applies the standard bounds.
func (c *Config) SetDefaults() {
	if c.MaxSteps == 0 {
		c.MaxSteps = 20
	}
	if c.MemoryDir == "" {
		c.MemoryDir = "memory"
	}
	if c.LogsDir == "" {
		c.LogsDir = "logs"
	}
}

// Deps are the collaborators a coordinator drives. Cache, Docs, TurnLog,
// ConvLog, and Metrics are optional. The retriever is assembled per run so
// its first tier sees the session memory of the query being answered.
type Deps struct {
	LLM       llms.Provider
	Executor  *executor.Executor
	Cache     *memory.Store
	Docs      *rag.DocumentIndex
	Retrieval retriever.Config
	Embedder  embedders.Provider
	TurnLog   *memory.TurnLog
	IO        IOHandler
	ConvLog   *ConversationLogger
	Metrics   *observability.Metrics
}

// Coordinator runs queries one at a time. The session id persists across
// Run calls so follow-up questions share tier-1 memory.
type Coordinator struct {
	config     Config
	deps       Deps
	perception *agents.Perception
	decision   *agents.Decision
	response   *agents.Response
	sessionID  string
}

// New creates a coordinator. decision carries the tool inventory prompt, so
// it is built by the caller from the connected servers.
func New(config Config, deps Deps, perception *agents.Perception, decision *agents.Decision) *Coordinator {
	config.SetDefaults()
	return &Coordinator{
		config:     config,
		deps:       deps,
		perception: perception,
		decision:   decision,
		response:   agents.NewResponse(deps.LLM),
	}
}

// SessionID returns the current session id, empty before the first run.
func (c *Coordinator) SessionID() string {
	return c.sessionID
}

// ResumeSession continues a previous session's tier-1 memory.
func (c *Coordinator) ResumeSession(sessionID string) {
	c.sessionID = sessionID
}

// Run answers one query. It always returns a user-facing string; internal
// failures are rendered into deterministic messages rather than propagated.
func (c *Coordinator) Run(ctx context.Context, query string, hitl *blackboard.HITLConfig) string {
	if c.deps.Metrics != nil {
		c.deps.Metrics.QueriesTotal.Inc()
	}

	answer, err := c.run(ctx, query, hitl)
	if err == nil {
		return answer
	}

	var msg string
	errText := err.Error()
	if llms.IsRateLimited(err) || strings.Contains(errText, "429") || strings.Contains(errText, "RESOURCE_EXHAUSTED") {
		msg = msgHighTraffic
	} else {
		msg = fmt.Sprintf("An unexpected error occurred: %s", errText)
	}
	slog.Error("run terminated abnormally", "error", err)
	if c.deps.Metrics != nil {
		c.deps.Metrics.RunFailures.Inc()
	}
	c.deps.IO.Output(KindError, msg)
	if c.deps.ConvLog != nil {
		c.deps.ConvLog.Conclusion(msg)
	}
	return msg
}

func (c *Coordinator) run(ctx context.Context, query string, hitl *blackboard.HITLConfig) (string, error) {
	bb := blackboard.New(query, c.sessionID)
	c.sessionID = bb.SessionID()
	if hitl != nil {
		bb.State().HITL = *hitl
	}
	if c.deps.ConvLog != nil {
		c.deps.ConvLog.UserQuery(query)
	}

	session, err := memory.NewSessionMemory(bb.SessionID(), c.config.MemoryDir, c.deps.Embedder)
	if err != nil {
		return "", fmt.Errorf("failed to open session memory: %w", err)
	}

	// Perceive the query itself.
	snapshot, err := c.perception.Run(ctx, bb, query, blackboard.SnapshotUserQuery)
	if err != nil {
		return "", err
	}
	c.logPerception(snapshot)
	if snapshot.RequireGroundTruth {
		bb.SetContext("require_ground_truth", true)
	}
	if snapshot.OriginalGoalAchieved {
		return c.conclude(ctx, bb, session, snapshot.SolutionSummary, snapshot.Confidence, true)
	}

	// Retrieve context through the tier cascade.
	ret := retriever.New(session, c.deps.Cache, c.deps.Docs, c.deps.Retrieval)
	result := ret.Run(ctx, bb, query)
	if c.deps.ConvLog != nil {
		c.deps.ConvLog.Retriever(query, result.Source, len(result.Content))
	}
	if c.deps.Metrics != nil && result.Source != retriever.SourceNone {
		c.deps.Metrics.RetrievalHits.WithLabelValues(result.Source).Inc()
	}

	// Initial plan plus the optional approval loop.
	step, err := c.plan(ctx, bb, agents.ModeInitial)
	if err != nil {
		return "", err
	}
	if bb.State().HITL.RequirePlanApproval {
		for {
			c.deps.IO.Output(KindPlan, step)
			feedback, err := c.deps.IO.Input("Approve this plan? (Enter to approve, or type feedback to replan)", step)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(feedback) == "" {
				break
			}
			bb.AddUserFeedback(feedback)
			step, err = c.plan(ctx, bb, agents.ModeReplan)
			if err != nil {
				return "", err
			}
		}
	}

	for executed := 0; executed < c.config.MaxSteps; executed++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		c.deps.IO.Output(KindStep, step)

		if bb.State().HITL.RequireStepApproval {
			feedback, err := c.deps.IO.Input("Approve execution? (Enter to approve, 'skip' to skip, 'stop' to abort)", step)
			if err != nil {
				return "", err
			}
			switch strings.ToLower(strings.TrimSpace(feedback)) {
			case "":
				// approved
			case "skip":
				if err := bb.CompleteStep(step.StepIndex, blackboard.StatusSkipped, "Skipped by user", 0); err != nil {
					return "", err
				}
				step, err = c.plan(ctx, bb, agents.ModeReplan)
				if err != nil {
					return "", err
				}
				continue
			case "stop":
				if c.deps.ConvLog != nil {
					c.deps.ConvLog.Conclusion(msgAborted)
				}
				return msgAborted, nil
			default:
				bb.AddUserFeedback(feedback)
			}
		}

		switch step.Type {
		case blackboard.StepConclude:
			if err := bb.CompleteStep(step.StepIndex, blackboard.StatusCompleted, step.Conclusion, 0); err != nil {
				return "", err
			}
			c.logExecutor(step)
			// Explicit conclusions carry full confidence; tier-2 promotion
			// is reserved for perception-verified answers.
			return c.conclude(ctx, bb, session, step.Conclusion, 1.0, false)

		case blackboard.StepAskUser:
			reply, err := c.deps.IO.Input(step.Description, step)
			if err != nil {
				return "", err
			}
			bb.AddUserFeedback(reply)
			if err := bb.CompleteStep(step.StepIndex, blackboard.StatusCompleted, "User feedback: "+reply, 0); err != nil {
				return "", err
			}
			c.logExecutor(step)

		case blackboard.StepCode:
			result := c.deps.Executor.Run(ctx, step.Code)
			status := blackboard.StatusCompleted
			outcome := result.Result
			if !result.Success() {
				status = blackboard.StatusFailed
				outcome = result.Error
				bb.LogFailure(query, result.Error)
			}
			if err := bb.CompleteStep(step.StepIndex, status, outcome, sinceStamp(result.TotalTime)); err != nil {
				return "", err
			}
			c.logExecutor(step)
			if c.deps.Metrics != nil {
				c.deps.Metrics.StepsTotal.WithLabelValues(string(status)).Inc()
			}

			// Perceive the result.
			snapshot, err := c.perception.Run(ctx, bb,
				fmt.Sprintf("Step: %s\nResult: %s", step.Description, outcome),
				blackboard.SnapshotStepResult)
			if err != nil {
				return "", err
			}
			c.logPerception(snapshot)
			if snapshot.OriginalGoalAchieved {
				answer := strings.TrimSpace(snapshot.SolutionSummary)
				if answer == "" && status == blackboard.StatusCompleted {
					// Perception saw the goal in the raw output but did not
					// summarize; distill an answer from the tool result.
					answer, err = c.response.Run(ctx, bb, query, outcome)
					if err != nil {
						return "", err
					}
				}
				return c.conclude(ctx, bb, session, answer, snapshot.Confidence, true)
			}

		default: // NOP, including off-plan decision failures
			if step.StepIndex >= 0 {
				if err := bb.CompleteStep(step.StepIndex, blackboard.StatusFailed, "No operation", 0); err != nil {
					return "", err
				}
			}
			bb.LogFailure(query, step.ExecutionResult)
		}

		step, err = c.plan(ctx, bb, agents.ModeReplan)
		if err != nil {
			return "", err
		}
	}

	if c.deps.ConvLog != nil {
		c.deps.ConvLog.Conclusion(msgMaxSteps)
	}
	c.deps.IO.Output(KindError, msgMaxSteps)
	// Failed sessions keep their tier-1 record transient: nothing is saved
	// and nothing is promoted.
	return msgMaxSteps, nil
}

func (c *Coordinator) plan(ctx context.Context, bb *blackboard.Blackboard, mode agents.Mode) (*blackboard.PlanStep, error) {
	c.deps.IO.Output(KindDecision, map[string]any{"mode": string(mode)})
	step, err := c.decision.Run(ctx, bb, mode)
	if err != nil {
		return nil, err
	}
	if c.deps.ConvLog != nil {
		c.deps.ConvLog.Decision(string(mode), step.StepIndex, string(step.Type), step.Description, step.Code)
	}
	return step, nil
}

// conclude runs the shared terminal sequence: final answer, tier-1 write,
// optional tier-2 promotion, debug snapshot.
func (c *Coordinator) conclude(ctx context.Context, bb *blackboard.Blackboard, session *memory.SessionMemory, answer string, confidence float64, promote bool) (string, error) {
	bb.SetFinalAnswer(answer)
	source := bb.ContextString("source")
	if source == "" {
		source = retriever.SourceNone
	}

	session.AddTurn(bb.State().OriginalQuery, answer, confidence, source, true, nil)
	if err := session.Save(); err != nil {
		slog.Warn("failed to persist session memory", "error", err)
	}
	if c.deps.TurnLog != nil {
		if err := c.deps.TurnLog.Append(bb.SessionID(), bb.State().OriginalQuery, answer, confidence, source); err != nil {
			slog.Warn("failed to append turn log", "error", err)
		}
	}

	if promote && c.deps.Cache != nil {
		promoted, err := c.deps.Cache.Promote(ctx, bb.State().OriginalQuery, answer, confidence, source, true)
		if err != nil {
			slog.Warn("cache promotion failed", "error", err)
		} else if promoted && c.deps.Metrics != nil {
			c.deps.Metrics.CachePromotions.Inc()
		}
	}

	c.saveSnapshot(bb)

	if c.deps.ConvLog != nil {
		c.deps.ConvLog.Conclusion(answer)
	}
	c.deps.IO.Output(KindAnswer, AnswerPayload{Answer: answer, Source: source})
	return answer, nil
}

func (c *Coordinator) saveSnapshot(bb *blackboard.Blackboard) {
	snapshot, err := bb.Snapshot()
	if err != nil {
		slog.Warn("failed to snapshot blackboard", "error", err)
		return
	}
	dir := filepath.Join(c.config.MemoryDir, "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("failed to create snapshot dir", "error", err)
		return
	}
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		slog.Warn("failed to encode snapshot", "error", err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("session_%s.json", bb.SessionID()))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		slog.Warn("failed to write snapshot", "error", err)
	}
}

func (c *Coordinator) logPerception(snapshot *blackboard.PerceptionSnapshot) {
	c.deps.IO.Output(KindPerception, map[string]any{
		"type":    string(snapshot.Kind),
		"goal":    snapshot.ResultRequirement,
		"summary": snapshot.SolutionSummary,
	})
	if c.deps.ConvLog != nil {
		c.deps.ConvLog.Perception(string(snapshot.Kind), map[string]any{
			"result_requirement":     snapshot.ResultRequirement,
			"original_goal_achieved": snapshot.OriginalGoalAchieved,
			"confidence":             snapshot.Confidence,
		})
	}
}

func (c *Coordinator) logExecutor(step *blackboard.PlanStep) {
	if c.deps.ConvLog != nil {
		c.deps.ConvLog.Executor(step.StepIndex, string(step.Status), step.ExecutionResult)
	}
}

// sinceStamp parses the executor's elapsed-seconds string back to a
// duration for the step record.
func sinceStamp(total string) time.Duration {
	var seconds float64
	if _, err := fmt.Sscanf(total, "%f", &seconds); err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
