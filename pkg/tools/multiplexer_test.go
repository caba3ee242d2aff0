package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	tools  []mcp.Tool
	calls  []mcp.CallToolRequest
	result *mcp.CallToolResult
	err    error
	closed bool
}

func (f *fakeSession) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeSession) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: isError,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func newMulti(t *testing.T, sessions map[string]*fakeSession) *MultiMCP {
	t.Helper()
	m := &MultiMCP{byTool: make(map[string]*serverConn)}
	for name, sess := range sessions {
		require.NoError(t, m.register(context.Background(), name, sess))
	}
	return m
}

func TestMultiMCP_Register(t *testing.T) {
	t.Run("merges tools across servers", func(t *testing.T) {
		m := newMulti(t, map[string]*fakeSession{
			"math": {tools: []mcp.Tool{{Name: "add"}, {Name: "multiply"}}},
		})
		require.NoError(t, m.register(context.Background(), "web", &fakeSession{
			tools: []mcp.Tool{{Name: "web_search"}},
		}))

		assert.Len(t, m.Tools(), 3)
		assert.True(t, m.Has("add"))
		assert.True(t, m.Has("web_search"))
		assert.False(t, m.Has("divide"))
	})

	t.Run("rejects tool name collisions", func(t *testing.T) {
		m := newMulti(t, map[string]*fakeSession{
			"math": {tools: []mcp.Tool{{Name: "add"}}},
		})

		err := m.register(context.Background(), "math2", &fakeSession{
			tools: []mcp.Tool{{Name: "add"}},
		})
		assert.ErrorContains(t, err, "tool name collision")
	})
}

func TestMultiMCP_Call(t *testing.T) {
	ctx := context.Background()

	t.Run("routes to owning server", func(t *testing.T) {
		math := &fakeSession{
			tools:  []mcp.Tool{{Name: "add"}},
			result: textResult("42", false),
		}
		m := newMulti(t, map[string]*fakeSession{"math": math})

		result, err := m.Call(ctx, "add", map[string]any{"a": 40, "b": 2})
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, "42", result.FirstText())

		require.Len(t, math.calls, 1)
		assert.Equal(t, "add", math.calls[0].Params.Name)
	})

	t.Run("unknown tool is a transport error", func(t *testing.T) {
		m := newMulti(t, map[string]*fakeSession{"math": {tools: []mcp.Tool{{Name: "add"}}}})
		_, err := m.Call(ctx, "divide", nil)
		assert.ErrorContains(t, err, "unknown tool")
	})

	t.Run("tool-level failure comes back as IsError", func(t *testing.T) {
		m := newMulti(t, map[string]*fakeSession{"math": {
			tools:  []mcp.Tool{{Name: "add"}},
			result: textResult("division by zero", true),
		}})

		result, err := m.Call(ctx, "add", nil)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, "division by zero", result.FirstText())
	})

	t.Run("session error propagates", func(t *testing.T) {
		m := newMulti(t, map[string]*fakeSession{"math": {
			tools: []mcp.Tool{{Name: "add"}},
			err:   fmt.Errorf("pipe closed"),
		}})

		_, err := m.Call(ctx, "add", nil)
		assert.ErrorContains(t, err, "pipe closed")
	})
}

func TestMultiMCP_Close(t *testing.T) {
	math := &fakeSession{tools: []mcp.Tool{{Name: "add"}}}
	web := &fakeSession{tools: []mcp.Tool{{Name: "web_search"}}}
	m := newMulti(t, map[string]*fakeSession{"math": math})
	require.NoError(t, m.register(context.Background(), "web", web))

	require.NoError(t, m.Close())
	assert.True(t, math.closed)
	assert.True(t, web.closed)
	assert.Empty(t, m.Tools())
}

func TestResult_Text(t *testing.T) {
	r := &Result{Content: []TextContent{
		{Type: "text", Text: "first"},
		{Type: "text", Text: "second"},
	}}
	assert.Equal(t, "first", r.FirstText())
	assert.Equal(t, "first\nsecond", r.AllText())

	empty := &Result{}
	assert.Empty(t, empty.FirstText())
}
