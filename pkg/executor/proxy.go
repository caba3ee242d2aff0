package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/slate-agents/slate/pkg/executor/script"
	"github.com/slate-agents/slate/pkg/tools"
)

const proxyRetries = 3

// ToolError is a tool-level failure reported by a server. It travels as a
// snippet value so the result-resolution step can surface it, matching how
// servers report failures in-band rather than over the transport.
type ToolError struct {
	Tool string
	Text string
}

func (e *ToolError) Error() string {
	return e.Text
}

// paramOrder derives the positional parameter order from a tool's input
// schema: required properties in declared order first, then the remaining
// properties sorted by name. Schemas arrive as unordered maps, so required
// order is the only declared order available.
func paramOrder(schema map[string]any) []string {
	props, _ := schema["properties"].(map[string]any)
	seen := make(map[string]bool, len(props))
	var order []string

	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if name, ok := r.(string); ok && !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		}
	} else if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		}
	}

	var rest []string
	for name := range props {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// bindArgs maps positional snippet arguments onto the tool's named
// parameters.
func bindArgs(tool string, order []string, args []any) (map[string]any, error) {
	if len(args) > len(order) {
		return nil, fmt.Errorf("tool %s takes at most %d arguments, got %d", tool, len(order), len(args))
	}
	bound := make(map[string]any, len(args))
	for i, arg := range args {
		bound[order[i]] = toWireValue(arg)
	}
	return bound, nil
}

// toWireValue converts interpreter values into plain JSON-marshalable Go
// values for the tool transport.
func toWireValue(value any) any {
	switch v := value.(type) {
	case *script.List:
		out := make([]any, len(v.Items))
		for i, item := range v.Items {
			out[i] = toWireValue(item)
		}
		return out
	case *script.Tuple:
		out := make([]any, len(v.Items))
		for i, item := range v.Items {
			out[i] = toWireValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = toWireValue(item)
		}
		return out
	default:
		return v
	}
}

// toolProxy wraps one tool as a snippet callable. Transport failures retry
// with a growing pause; tool-level errors do not retry, they become a
// ToolError value.
func (e *Executor) toolProxy(info tools.ToolInfo) script.GoFunc {
	order := paramOrder(info.Schema)

	return func(ctx context.Context, args []any) (any, error) {
		bound, err := bindArgs(info.Name, order, args)
		if err != nil {
			return nil, err
		}

		var lastErr error
		for attempt := 1; attempt <= proxyRetries; attempt++ {
			result, err := e.caller.Call(ctx, info.Name, bound)
			if err == nil {
				return unwrapResult(info.Name, result), nil
			}
			lastErr = err
			slog.Debug("tool call failed", "tool", info.Name, "attempt", attempt, "error", err)
			if attempt < proxyRetries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-e.sleep(time.Duration(attempt) * 500 * time.Millisecond):
				}
			}
		}
		return nil, fmt.Errorf("tool %s failed after %d attempts: %w", info.Name, proxyRetries, lastErr)
	}
}

// unwrapResult reduces a structured tool result to a snippet value: the
// first text block, with a JSON object's "result" key extracted when
// present. Error results keep their text on a ToolError.
func unwrapResult(tool string, result *tools.Result) any {
	text := result.FirstText()

	if result.IsError {
		if text == "" {
			text = fmt.Sprintf("tool %s reported an error", tool)
		}
		return &ToolError{Tool: tool, Text: text}
	}
	if text == "" {
		return nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return text
	}
	if obj, ok := decoded.(map[string]any); ok {
		if inner, ok := obj["result"]; ok {
			return script.FromJSONValue(inner)
		}
	}
	return script.FromJSONValue(decoded)
}
