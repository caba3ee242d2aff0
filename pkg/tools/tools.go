// Package tools connects to MCP tool servers over stdio and multiplexes
// their tools behind one flat namespace.
package tools

import (
	"context"
	"strings"
)

// ToolInfo describes one tool exposed by a connected server.
type ToolInfo struct {
	Name        string
	Description string
	Server      string
	Schema      map[string]any
}

// TextContent is one text block of a tool result.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the outcome of a tool call. IsError marks a tool-level failure
// reported by the server, as opposed to a transport failure which surfaces
// as a Go error.
type Result struct {
	IsError bool
	Content []TextContent
}

// FirstText returns the first text block, or "".
func (r *Result) FirstText() string {
	for _, c := range r.Content {
		if c.Text != "" {
			return c.Text
		}
	}
	return ""
}

// AllText joins every text block with newlines.
func (r *Result) AllText() string {
	texts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Text != "" {
			texts = append(texts, c.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Caller is the tool surface the executor programs against.
type Caller interface {
	// Tools lists every tool across all connected servers.
	Tools() []ToolInfo

	// Has reports whether a tool name is known.
	Has(name string) bool

	// Call invokes a tool by name with keyword arguments.
	Call(ctx context.Context, name string, args map[string]any) (*Result, error)

	Close() error
}

// ServerConfig describes one stdio MCP server.
type ServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// Config lists the tool servers to launch.
type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}
