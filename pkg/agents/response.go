package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/slate-agents/slate/pkg/blackboard"
	"github.com/slate-agents/slate/pkg/llms"
)

// Response extracts a direct answer to the user's question from raw tool
// output.
type Response struct {
	llm llms.Provider
}

// NewResponse creates the response agent.
func NewResponse(llm llms.Provider) *Response {
	return &Response{llm: llm}
}

// Run distills toolResult into a 1-3 sentence answer and caches it on the
// blackboard for follow-up questions. Throttling is the only error returned.
func (r *Response) Run(ctx context.Context, bb *blackboard.Blackboard, question, toolResult string) (string, error) {
	prompt := fmt.Sprintf("%s\n\n--- QUESTION ---\n%s\n\n--- TOOL OUTPUT ---\n%s\n\n--- YOUR ANSWER ---",
		responsePrompt, question, toolResult)

	answer, err := r.llm.Generate(ctx, []llms.Message{{Role: llms.RoleUser, Content: prompt}})
	if err != nil {
		if llms.IsRateLimited(err) {
			return "", err
		}
		return fmt.Sprintf("Error extracting answer: %v", err), nil
	}

	answer = strings.TrimSpace(answer)
	bb.SetContext("last_response", answer)
	return answer, nil
}
