package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mcpTestServer(t *testing.T, callHandler func(params map[string]interface{}) map[string]interface{}) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mcpRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("mcp-session-id", "sess-1")
		resp := mcpRPCResponse{JSONRPC: "2.0", ID: req.ID}

		switch req.Method {
		case "initialize":
			resp.Result = map[string]interface{}{"protocolVersion": mcpProtocolVersion}
		case "tools/list":
			resp.Result = map[string]interface{}{
				"tools": []interface{}{
					map[string]interface{}{
						"name":        "echo",
						"description": "Echoes its input back.",
						"inputSchema": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"text": map[string]interface{}{"type": "string"},
							},
							"required": []interface{}{"text"},
						},
					},
				},
			}
		case "tools/call":
			params, _ := req.Params.(map[string]interface{})
			resp.Result = callHandler(params)
		default:
			t.Fatalf("unexpected method %s", req.Method)
		}

		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestMCPDiscoverAndExecute(t *testing.T) {
	server := mcpTestServer(t, func(params map[string]interface{}) map[string]interface{} {
		assert.Equal(t, "echo", params["name"])
		args, _ := params["arguments"].(map[string]interface{})
		return map[string]interface{}{
			"content": []interface{}{
				map[string]interface{}{"type": "text", "text": fmt.Sprintf("echo: %v", args["text"])},
			},
		}
	})

	source, err := NewMCPToolSource(MCPConfig{Name: "test", URL: server.URL})
	require.NoError(t, err)
	t.Cleanup(func() { _ = source.Close() })

	require.NoError(t, source.Discover(context.Background()))

	toolList := source.Tools()
	require.Len(t, toolList, 1)
	info := toolList[0].Info()
	assert.Equal(t, "echo", info.Name)
	assert.Equal(t, "test", info.Source)
	assert.Equal(t, "object", info.InputSchema["type"])

	result, err := toolList[0].Execute(context.Background(), map[string]interface{}{"text": "hi"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "echo: hi", result.Text())
}

func TestMCPToolError(t *testing.T) {
	server := mcpTestServer(t, func(params map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"isError": true,
			"content": []interface{}{
				map[string]interface{}{"type": "text", "text": "boom"},
			},
		}
	})

	source, err := NewMCPToolSource(MCPConfig{URL: server.URL})
	require.NoError(t, err)
	require.NoError(t, source.Discover(context.Background()))

	result, err := source.Tools()[0].Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "boom", result.Text())
}

func TestMCPSSEResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mcpRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := mcpRPCResponse{JSONRPC: "2.0", ID: req.ID}
		switch req.Method {
		case "initialize":
			resp.Result = map[string]interface{}{}
		case "tools/list":
			resp.Result = map[string]interface{}{
				"tools": []interface{}{
					map[string]interface{}{"name": "ping", "description": "pong"},
				},
			}
		}

		payload, _ := json.Marshal(resp)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", payload)
	}))
	t.Cleanup(server.Close)

	source, err := NewMCPToolSource(MCPConfig{URL: server.URL, SSETimeout: 5 * time.Second})
	require.NoError(t, err)
	require.NoError(t, source.Discover(context.Background()))
	require.Len(t, source.Tools(), 1)
	assert.Equal(t, "ping", source.Tools()[0].Info().Name)
}

func TestMCPConfigValidation(t *testing.T) {
	_, err := NewMCPToolSource(MCPConfig{})
	require.Error(t, err)

	source, err := NewMCPToolSource(MCPConfig{URL: "http://localhost:1"})
	require.NoError(t, err)
	assert.Equal(t, "mcp", source.Name())
}
