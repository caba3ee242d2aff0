// Package executor runs planner-emitted snippets in a restricted
// interpreter, with tool calls proxied to the MCP multiplexer.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slate-agents/slate/pkg/executor/script"
	"github.com/slate-agents/slate/pkg/tools"
)

// Config holds the executor budgets.
type Config struct {
	// MaxOperations caps the number of call expressions per snippet.
	MaxOperations int `yaml:"max_operations"`
	// PerCallBudget is the timeout contribution of each call expression.
	PerCallBudget time.Duration `yaml:"per_call_budget"`
	// MinTimeout is the timeout floor for snippets with few or no calls.
	MinTimeout time.Duration `yaml:"min_timeout"`
}

// SetDefaults applies default budgets.
func (c *Config) SetDefaults() {
	if c.MaxOperations == 0 {
		c.MaxOperations = 50
	}
	if c.PerCallBudget == 0 {
		c.PerCallBudget = 500 * time.Second
	}
	if c.MinTimeout == 0 {
		c.MinTimeout = 3 * time.Second
	}
}

// Validate checks config sanity.
func (c *Config) Validate() error {
	if c.MaxOperations < 1 {
		return fmt.Errorf("max_operations must be positive, got %d", c.MaxOperations)
	}
	if c.PerCallBudget <= 0 || c.MinTimeout <= 0 {
		return errors.New("executor budgets must be positive")
	}
	return nil
}

// ExecutionResult is the outcome of one snippet run.
type ExecutionResult struct {
	Status        string `json:"status"`
	Result        string `json:"result,omitempty"`
	Error         string `json:"error,omitempty"`
	ExecutionTime string `json:"execution_time"`
	TotalTime     string `json:"total_time"`
}

// Success reports whether the run succeeded.
func (r *ExecutionResult) Success() bool {
	return r.Status == "success"
}

// Executor prepares and runs snippets against a tool caller.
type Executor struct {
	caller tools.Caller
	config Config
	sleep  func(time.Duration) <-chan time.Time
}

// New creates an executor over the given tool caller.
func New(caller tools.Caller, config Config) *Executor {
	config.SetDefaults()
	return &Executor{
		caller: caller,
		config: config,
		sleep:  time.After,
	}
}

// Run executes one snippet. It never returns a Go error; every failure is
// reported through the result so the decision agent can replan from the text.
func (e *Executor) Run(ctx context.Context, code string) *ExecutionResult {
	start := time.Now()
	stamp := start.Format("2006-01-02 15:04:05")

	fail := func(msg string) *ExecutionResult {
		return &ExecutionResult{
			Status:        "error",
			Error:         msg,
			ExecutionTime: stamp,
			TotalTime:     fmt.Sprintf("%.3f", time.Since(start).Seconds()),
		}
	}

	module, err := script.Parse(dedent(code))
	if err != nil {
		return fail(err.Error())
	}

	calls := script.CountCalls(module)
	if calls > e.config.MaxOperations {
		return fail(fmt.Sprintf("Too many functions (%d > %d)", calls, e.config.MaxOperations))
	}

	script.StripKeywords(module)
	localDefs := script.LocalDefs(module)
	script.EnsureResultReturn(module)

	var stdout bytes.Buffer
	globals := script.Builtins(&stdout)

	proxies := make(map[string]script.GoFunc)
	for _, info := range e.caller.Tools() {
		proxy := e.toolProxy(info)
		proxies[info.Name] = proxy
		// A local def of the same name shadows the tool.
		if !localDefs[info.Name] {
			globals[info.Name] = proxy
		}
	}

	var finalAnswer any
	globals["final_answer"] = script.GoFunc(func(_ context.Context, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("final_answer() takes exactly one argument")
		}
		if finalAnswer == nil {
			finalAnswer = args[0]
		}
		return nil, nil
	})
	globals["parallel"] = e.parallelBuiltin(proxies)

	timeout := e.config.MinTimeout
	if budget := time.Duration(calls) * e.config.PerCallBudget; budget > timeout {
		timeout = budget
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interp := script.NewInterp(runCtx, globals, &stdout)
	value, err := interp.Run(module)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fail(fmt.Sprintf("Execution timed out after %.0f seconds", timeout.Seconds()))
		}
		if ctx.Err() != nil {
			return fail(fmt.Sprintf("Execution aborted: %v", ctx.Err()))
		}
		return fail(err.Error())
	}

	// Effective value: explicit return, then final_answer, then stdout.
	if value == nil {
		value = finalAnswer
	}
	if value == nil {
		if out := strings.TrimSpace(stdout.String()); out != "" {
			value = out
		} else {
			value = "Executed successfully (no output)."
		}
	}

	if toolErr, ok := value.(*ToolError); ok {
		slog.Debug("snippet surfaced tool error", "tool", toolErr.Tool, "error", toolErr.Text)
		return fail(toolErr.Text)
	}

	return &ExecutionResult{
		Status:        "success",
		Result:        script.Repr(value, false),
		ExecutionTime: stamp,
		TotalTime:     fmt.Sprintf("%.3f", time.Since(start).Seconds()),
	}
}

// parallelBuiltin fans tool calls out concurrently. Each argument is a
// ("tool_name", arg...) tuple; results join in argument order.
func (e *Executor) parallelBuiltin(proxies map[string]script.GoFunc) script.GoFunc {
	return func(ctx context.Context, args []any) (any, error) {
		type slot struct {
			value any
			err   error
		}
		slots := make([]slot, len(args))

		calls := make([]func() (any, error), len(args))
		for i, arg := range args {
			tup, ok := arg.(*script.Tuple)
			if !ok || len(tup.Items) == 0 {
				return nil, fmt.Errorf("parallel() arguments must be (tool_name, args...) tuples")
			}
			name, ok := tup.Items[0].(string)
			if !ok {
				return nil, fmt.Errorf("parallel() tool name must be a string")
			}
			proxy, ok := proxies[name]
			if !ok {
				return nil, fmt.Errorf("unknown tool %q in parallel()", name)
			}
			toolArgs := tup.Items[1:]
			calls[i] = func() (any, error) { return proxy(ctx, toolArgs) }
		}

		done := make(chan int, len(calls))
		for i, call := range calls {
			go func(i int, call func() (any, error)) {
				value, err := call()
				slots[i] = slot{value: value, err: err}
				done <- i
			}(i, call)
		}
		for range calls {
			<-done
		}

		out := &script.List{Items: make([]any, len(slots))}
		for i, s := range slots {
			if s.err != nil {
				return nil, s.err
			}
			out.Items[i] = s.value
		}
		return out, nil
	}
}

// dedent strips the common leading whitespace planners sometimes emit when
// quoting snippets from an indented context.
func dedent(code string) string {
	lines := strings.Split(code, "\n")
	margin := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if margin < 0 || indent < margin {
			margin = indent
		}
	}
	if margin <= 0 {
		return strings.TrimSpace(code) + "\n"
	}
	for i, line := range lines {
		if len(line) >= margin {
			lines[i] = line[margin:]
		} else {
			lines[i] = strings.TrimLeft(line, " \t")
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
}
