package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// session is the slice of the MCP client the multiplexer needs. The real
// implementation is mcp-go's stdio client; tests inject fakes.
type session interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// serverConn is one connected tool server. The stdio transport interleaves
// badly under concurrent writes, so calls are serialized per server.
type serverConn struct {
	name    string
	session session
	mu      sync.Mutex
}

// MultiMCP multiplexes several stdio MCP servers behind one flat tool
// namespace. Tool names must be unique across servers: a collision at
// connect time is a configuration error, not a shadowing rule.
type MultiMCP struct {
	servers []*serverConn
	byTool  map[string]*serverConn
	tools   []ToolInfo
}

// Connect launches and initializes every configured server, then lists and
// merges their tools. Any failure tears down the servers already connected.
func Connect(ctx context.Context, cfg Config) (*MultiMCP, error) {
	m := &MultiMCP{byTool: make(map[string]*serverConn)}

	for _, serverCfg := range cfg.Servers {
		mcpClient, err := client.NewStdioMCPClient(serverCfg.Command, convertEnv(serverCfg.Env), serverCfg.Args...)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to create MCP client for %s: %w", serverCfg.Name, err)
		}

		if err := initSession(ctx, mcpClient); err != nil {
			mcpClient.Close()
			m.Close()
			return nil, fmt.Errorf("failed to initialize MCP server %s: %w", serverCfg.Name, err)
		}

		if err := m.register(ctx, serverCfg.Name, mcpClient); err != nil {
			mcpClient.Close()
			m.Close()
			return nil, err
		}
	}

	slog.Info("Connected tool servers", "servers", len(m.servers), "tools", len(m.tools))
	return m, nil
}

func initSession(ctx context.Context, mcpClient *client.Client) error {
	if err := mcpClient.Start(ctx); err != nil {
		return err
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "slate", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"

	_, err := mcpClient.Initialize(ctx, initReq)
	return err
}

// register lists a server's tools and merges them into the namespace.
func (m *MultiMCP) register(ctx context.Context, name string, sess session) error {
	listResp, err := sess.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list tools of %s: %w", name, err)
	}

	conn := &serverConn{name: name, session: sess}
	for _, mcpTool := range listResp.Tools {
		if existing, ok := m.byTool[mcpTool.Name]; ok {
			return fmt.Errorf("tool name collision: %q provided by both %s and %s", mcpTool.Name, existing.name, name)
		}
		m.byTool[mcpTool.Name] = conn
		m.tools = append(m.tools, ToolInfo{
			Name:        mcpTool.Name,
			Description: mcpTool.Description,
			Server:      name,
			Schema:      convertSchema(mcpTool.InputSchema),
		})
	}

	m.servers = append(m.servers, conn)
	slog.Debug("Registered tool server", "name", name, "tools", len(listResp.Tools))
	return nil
}

// Tools lists every tool across all connected servers.
func (m *MultiMCP) Tools() []ToolInfo {
	return m.tools
}

// Has reports whether a tool name is known.
func (m *MultiMCP) Has(name string) bool {
	_, ok := m.byTool[name]
	return ok
}

// Call invokes a tool on its owning server. An unknown name is a transport
// error; a tool-level failure comes back as Result.IsError.
func (m *MultiMCP) Call(ctx context.Context, name string, args map[string]any) (*Result, error) {
	conn, ok := m.byTool[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	conn.mu.Lock()
	resp, err := conn.session.CallTool(ctx, req)
	conn.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("tool call %s failed: %w", name, err)
	}

	return convertResult(resp), nil
}

// Close shuts down every server.
func (m *MultiMCP) Close() error {
	var firstErr error
	for _, conn := range m.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.servers = nil
	m.byTool = map[string]*serverConn{}
	m.tools = nil
	return firstErr
}

func convertResult(resp *mcp.CallToolResult) *Result {
	result := &Result{IsError: resp.IsError}
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			result.Content = append(result.Content, TextContent{Type: "text", Text: textContent.Text})
		}
	}
	return result
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	return map[string]any{
		"type":       schema.Type,
		"properties": schema.Properties,
		"required":   schema.Required,
	}
}

func convertEnv(env map[string]string) []string {
	if env == nil {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

var _ Caller = (*MultiMCP)(nil)
