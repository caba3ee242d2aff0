package coordinator

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/slate-agents/slate/pkg/blackboard"
)

// Output kinds emitted through an IOHandler.
const (
	KindLog        = "log"
	KindPlan       = "plan"
	KindStep       = "step"
	KindPerception = "perception"
	KindRetrieval  = "retrieval"
	KindDecision   = "decision"
	KindAnswer     = "answer"
	KindError      = "error"
)

// IOHandler bridges the coordinator to a surface: the CLI prints and reads
// stdin, the WebSocket server forwards frames. Input blocks until the user
// responds; implementations should honor disconnects by returning an error.
type IOHandler interface {
	Output(kind string, data any)
	Input(prompt string, data any) (string, error)
}

// AnswerPayload is the data sent with KindAnswer.
type AnswerPayload struct {
	Answer string `json:"answer"`
	Source string `json:"source"`
}

// CLIHandler renders coordinator events to a terminal.
type CLIHandler struct {
	out io.Writer
	in  *bufio.Reader
}

// NewCLIHandler creates a handler over the given streams.
func NewCLIHandler(out io.Writer, in io.Reader) *CLIHandler {
	return &CLIHandler{out: out, in: bufio.NewReader(in)}
}

// Output renders one event.
func (h *CLIHandler) Output(kind string, data any) {
	switch kind {
	case KindLog:
		fmt.Fprintln(h.out, data)
	case KindPlan:
		step := data.(*blackboard.PlanStep)
		fmt.Fprintf(h.out, "\nProposed Plan Step %d: %s\n", step.StepIndex, step.Description)
		if step.Code != "" {
			fmt.Fprintf(h.out, "Code:\n%s\n", step.Code)
		}
	case KindStep:
		step := data.(*blackboard.PlanStep)
		fmt.Fprintf(h.out, "\n--- Step %d Execution ---\n%s\n", step.StepIndex, step.Description)
		if step.Code != "" {
			fmt.Fprintf(h.out, "Code:\n%s\n", step.Code)
		}
	case KindAnswer:
		payload := data.(AnswerPayload)
		fmt.Fprintf(h.out, "\nFinal Answer: %s\nSource: %s\n", payload.Answer, payload.Source)
	case KindError:
		fmt.Fprintf(h.out, "\nError: %v\n", data)
	default:
		fmt.Fprintf(h.out, "\n[%s] %v\n", kind, data)
	}
}

// Input prompts on the terminal and reads one line.
func (h *CLIHandler) Input(prompt string, _ any) (string, error) {
	fmt.Fprintf(h.out, "\nHITL: %s\n> ", prompt)
	line, err := h.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
