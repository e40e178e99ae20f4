package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Ravikumarchavva/agent-framework/pkg/httpclient"
	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

const (
	mcpProtocolVersion = "2024-11-05"

	// defaultSSEResponseTimeout bounds how long we wait for the first
	// complete JSON-RPC message on an SSE response body.
	defaultSSEResponseTimeout = 5 * time.Minute
)

// MCPConfig configures a connection to one MCP server.
type MCPConfig struct {
	// Name identifies this source. Defaults to "mcp".
	Name string

	// URL is the server endpoint for HTTP transports.
	URL string

	// Command, Args and Env describe a subprocess for the stdio transport.
	// When Command is set the stdio transport is used regardless of URL.
	Command string
	Args    []string
	Env     map[string]string

	// MaxRetries for HTTP requests (default 3).
	MaxRetries int

	// SSETimeout for SSE response reading (default 5m).
	SSETimeout time.Duration
}

// MCPToolSource exposes the tools of a single MCP server. Discovery happens
// in Discover; each discovered tool proxies its Execute back through the
// source's connection.
type MCPToolSource struct {
	cfg MCPConfig

	mu         sync.Mutex
	stdio      *client.Client
	httpClient *httpclient.Client
	sessionID  string
	tools      []Tool
}

// NewMCPToolSource builds a source from config. The connection is not
// established until Discover is called.
func NewMCPToolSource(cfg MCPConfig) (*MCPToolSource, error) {
	if cfg.URL == "" && cfg.Command == "" {
		return nil, fmt.Errorf("mcp source requires either url or command")
	}
	if cfg.Name == "" {
		cfg.Name = "mcp"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SSETimeout == 0 {
		cfg.SSETimeout = defaultSSEResponseTimeout
	}
	return &MCPToolSource{cfg: cfg}, nil
}

func (s *MCPToolSource) Name() string {
	return s.cfg.Name
}

// Discover connects to the server, lists its tools and caches them. Calling
// it again refreshes the tool list.
func (s *MCPToolSource) Discover(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Command != "" {
		return s.discoverStdio(ctx)
	}
	return s.discoverHTTP(ctx)
}

// Tools returns the tools found by the last Discover.
func (s *MCPToolSource) Tools() []Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// Close shuts down the connection. For stdio this terminates the subprocess.
func (s *MCPToolSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.stdio != nil {
		err = s.stdio.Close()
		s.stdio = nil
	}
	s.httpClient = nil
	s.tools = nil
	return err
}

func (s *MCPToolSource) discoverStdio(ctx context.Context) error {
	if s.stdio == nil {
		mcpClient, err := client.NewStdioMCPClient(s.cfg.Command, envSlice(s.cfg.Env), s.cfg.Args...)
		if err != nil {
			return fmt.Errorf("creating mcp client: %w", err)
		}
		if err := mcpClient.Start(ctx); err != nil {
			return fmt.Errorf("starting mcp client: %w", err)
		}

		initReq := mcp.InitializeRequest{}
		initReq.Params.ClientInfo = mcp.Implementation{Name: "agent-framework", Version: "1.0.0"}
		initReq.Params.ProtocolVersion = mcpProtocolVersion
		if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
			mcpClient.Close()
			return fmt.Errorf("initializing mcp session: %w", err)
		}
		s.stdio = mcpClient
	}

	listResp, err := s.stdio.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("listing mcp tools: %w", err)
	}

	tools := make([]Tool, 0, len(listResp.Tools))
	for _, t := range listResp.Tools {
		tools = append(tools, &mcpTool{
			source: s,
			info: ToolInfo{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schemaToMap(t.InputSchema),
				Source:      s.cfg.Name,
			},
			stdio: true,
		})
	}
	s.tools = tools

	slog.Info("connected to MCP server",
		"source", s.cfg.Name,
		"transport", "stdio",
		"command", s.cfg.Command,
		"tools", len(tools),
	)
	return nil
}

func (s *MCPToolSource) discoverHTTP(ctx context.Context) error {
	if s.httpClient == nil {
		s.httpClient = httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithMaxRetries(s.cfg.MaxRetries),
			httpclient.WithBaseDelay(2*time.Second),
		)

		initResp, err := s.rpc(ctx, "initialize", map[string]interface{}{
			"protocolVersion": mcpProtocolVersion,
			"clientInfo":      map[string]interface{}{"name": "agent-framework", "version": "1.0.0"},
			"capabilities":    map[string]interface{}{},
		})
		if err != nil {
			s.httpClient = nil
			return fmt.Errorf("initializing mcp session: %w", err)
		}
		if initResp.Error != nil {
			s.httpClient = nil
			return fmt.Errorf("mcp initialize error: %s", initResp.Error.Message)
		}
	}

	listResp, err := s.rpc(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("listing mcp tools: %w", err)
	}
	if listResp.Error != nil {
		return fmt.Errorf("mcp tools/list error: %s", listResp.Error.Message)
	}

	resultMap, ok := listResp.Result.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected tools/list result type")
	}
	rawTools, ok := resultMap["tools"].([]interface{})
	if !ok {
		return fmt.Errorf("tools/list response has no tools array")
	}

	tools := make([]Tool, 0, len(rawTools))
	for _, raw := range rawTools {
		toolMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		if name == "" {
			continue
		}
		desc, _ := toolMap["description"].(string)
		schema, _ := toolMap["inputSchema"].(map[string]interface{})

		tools = append(tools, &mcpTool{
			source: s,
			info: ToolInfo{
				Name:        name,
				Description: desc,
				InputSchema: schema,
				Source:      s.cfg.Name,
			},
		})
	}
	s.tools = tools

	slog.Info("connected to MCP server",
		"source", s.cfg.Name,
		"transport", "http",
		"url", s.cfg.URL,
		"tools", len(tools),
	)
	return nil
}

type mcpRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type mcpRPCResponse struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      int          `json:"id"`
	Result  interface{}  `json:"result,omitempty"`
	Error   *mcpRPCError `json:"error,omitempty"`
}

type mcpRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpc sends one JSON-RPC request over HTTP. Responses may arrive as plain
// JSON or as an SSE stream carrying the JSON-RPC message.
func (s *MCPToolSource) rpc(ctx context.Context, method string, params interface{}) (*mcpRPCResponse, error) {
	body, err := json.Marshal(mcpRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if s.sessionID != "" {
		req.Header.Set("mcp-session-id", s.sessionID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("mcp-session-id"); sid != "" {
		s.sessionID = sid
	}

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mcp server returned %d: %s", resp.StatusCode, string(payload))
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return s.readSSEResponse(resp)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	var rpcResp mcpRPCResponse
	if err := json.Unmarshal(payload, &rpcResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &rpcResp, nil
}

// readSSEResponse reads the first complete JSON-RPC message from an SSE body.
func (s *MCPToolSource) readSSEResponse(resp *http.Response) (*mcpRPCResponse, error) {
	type outcome struct {
		resp *mcpRPCResponse
		err  error
	}
	results := make(chan outcome, 1)

	go func() {
		reader := bufio.NewReader(resp.Body)
		var data strings.Builder
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				break
			}
			line = strings.TrimSpace(line)
			if line == "" {
				if data.Len() > 0 {
					var rpcResp mcpRPCResponse
					if jsonErr := json.Unmarshal([]byte(data.String()), &rpcResp); jsonErr == nil {
						results <- outcome{resp: &rpcResp}
						return
					}
					data.Reset()
				}
				continue
			}
			if strings.HasPrefix(line, "data:") {
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
		}
		if data.Len() > 0 {
			var rpcResp mcpRPCResponse
			if jsonErr := json.Unmarshal([]byte(data.String()), &rpcResp); jsonErr == nil {
				results <- outcome{resp: &rpcResp}
				return
			}
		}
		results <- outcome{err: fmt.Errorf("sse stream ended without a complete message")}
	}()

	select {
	case res := <-results:
		return res.resp, res.err
	case <-time.After(s.cfg.SSETimeout):
		return nil, fmt.Errorf("timed out reading sse response after %v", s.cfg.SSETimeout)
	}
}

// mcpTool proxies a remote tool through its source.
type mcpTool struct {
	source *MCPToolSource
	info   ToolInfo
	stdio  bool
}

func (t *mcpTool) Info() ToolInfo {
	return t.info
}

func (t *mcpTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	if t.stdio {
		return t.executeStdio(ctx, args)
	}
	return t.executeHTTP(ctx, args)
}

func (t *mcpTool) executeStdio(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	t.source.mu.Lock()
	mcpClient := t.source.stdio
	t.source.mu.Unlock()
	if mcpClient == nil {
		return ToolResult{}, fmt.Errorf("mcp client not connected")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.info.Name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return ToolResult{}, fmt.Errorf("mcp call failed: %w", err)
	}

	var blocks []protocol.ContentBlock
	for _, content := range resp.Content {
		if text, ok := content.(mcp.TextContent); ok {
			blocks = append(blocks, protocol.TextBlock(text.Text))
		}
	}
	if len(blocks) == 0 {
		blocks = []protocol.ContentBlock{protocol.TextBlock("")}
	}
	return ToolResult{Content: blocks, IsError: resp.IsError}, nil
}

func (t *mcpTool) executeHTTP(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	t.source.mu.Lock()
	resp, err := t.source.rpc(ctx, "tools/call", map[string]interface{}{
		"name":      t.info.Name,
		"arguments": args,
	})
	t.source.mu.Unlock()
	if err != nil {
		return ToolResult{}, fmt.Errorf("mcp call failed: %w", err)
	}
	if resp.Error != nil {
		return NewErrorResult(resp.Error.Message), nil
	}

	resultMap, ok := resp.Result.(map[string]interface{})
	if !ok {
		payload, _ := json.Marshal(resp.Result)
		return NewTextResult(string(payload)), nil
	}

	isError, _ := resultMap["isError"].(bool)
	var blocks []protocol.ContentBlock
	if content, ok := resultMap["content"].([]interface{}); ok {
		for _, item := range content {
			block, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if block["type"] == "text" {
				if text, ok := block["text"].(string); ok {
					blocks = append(blocks, protocol.TextBlock(text))
				}
			}
		}
	}
	if len(blocks) == 0 {
		blocks = []protocol.ContentBlock{protocol.TextBlock("")}
	}
	return ToolResult{Content: blocks, IsError: isError}, nil
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
