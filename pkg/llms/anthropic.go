package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ravikumarchavva/agent-framework/pkg/config"
	"github.com/Ravikumarchavva/agent-framework/pkg/httpclient"
	"github.com/Ravikumarchavva/agent-framework/pkg/observability"
	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider talks to the Anthropic messages API over plain HTTP.
type AnthropicProvider struct {
	config     *config.LLMProviderConfig
	httpClient *httpclient.Client
	counter    *TokenCounter
}

type anthropicRequest struct {
	Model      string                  `json:"model"`
	MaxTokens  int                     `json:"max_tokens"`
	System     string                  `json:"system,omitempty"`
	Messages   []anthropicMessage      `json:"messages"`
	Tools      []anthropicTool         `json:"tools,omitempty"`
	ToolChoice *anthropicToolChoice    `json:"tool_choice,omitempty"`
	Stream     bool                    `json:"stream,omitempty"`
	Temperature *float64               `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use blocks.
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	// tool_result blocks.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      *anthropicUsage         `json:"usage"`
	Error      *anthropicError         `json:"error,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicProvider builds a provider from config, applying defaults.
func NewAnthropicProvider(cfg *config.LLMProviderConfig) *AnthropicProvider {
	cfg.Type = "anthropic"
	cfg.SetDefaults()

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
	)

	return &AnthropicProvider{
		config:     cfg,
		httpClient: httpClient,
		counter:    NewTokenCounter(cfg.Model),
	}
}

func (p *AnthropicProvider) ModelName() string { return p.config.Model }

func (p *AnthropicProvider) Close() error { return nil }

func (p *AnthropicProvider) CountTokens(messages []*protocol.Message) int {
	return p.counter.CountMessages(messages)
}

func (p *AnthropicProvider) Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition, opts *GenerateOptions) (*AssistantTurn, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("llms")
	ctx, span := tracer.Start(ctx, "llm.generate",
		trace.WithAttributes(
			attribute.String("llm.model", p.config.Model),
			attribute.String("llm.provider", "anthropic"),
			attribute.Bool("llm.streaming", false),
		),
	)
	defer span.End()

	metrics := observability.GetGlobalMetrics()

	request := p.buildRequest(messages, tools, opts, false)
	response, err := p.makeRequest(ctx, request)
	duration := time.Since(startTime)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordLLMCall(p.config.Model, "anthropic", duration, true)
		return nil, err
	}
	if response.Error != nil {
		apiErr := &PermanentError{Provider: "anthropic", Message: response.Error.Message}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, response.Error.Message)
		return nil, apiErr
	}

	turn := &AssistantTurn{FinishReason: "stop"}
	var text strings.Builder
	for _, block := range response.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			turn.ToolCalls = append(turn.ToolCalls, map[string]interface{}{
				"id":    block.ID,
				"name":  block.Name,
				"input": block.Input,
			})
		}
	}
	turn.Text = text.String()
	if response.StopReason == "tool_use" || len(turn.ToolCalls) > 0 {
		turn.FinishReason = "tool_calls"
	}
	if response.Usage != nil {
		turn.Usage = &protocol.UsageStats{
			PromptTokens:     response.Usage.InputTokens,
			CompletionTokens: response.Usage.OutputTokens,
			TotalTokens:      response.Usage.InputTokens + response.Usage.OutputTokens,
		}
		metrics.RecordLLMTokens(p.config.Model, response.Usage.InputTokens, response.Usage.OutputTokens)
	}
	span.SetAttributes(attribute.Int("llm.tool_calls", len(turn.ToolCalls)))
	span.SetStatus(codes.Ok, "")
	metrics.RecordLLMCall(p.config.Model, "anthropic", duration, false)

	return turn, nil
}

func (p *AnthropicProvider) GenerateStreaming(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition, opts *GenerateOptions) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, tools, opts, true)

	outputCh := make(chan StreamChunk, 100)
	go func() {
		defer close(outputCh)
		if err := p.streamRequest(ctx, request, outputCh); err != nil {
			outputCh <- StreamChunk{Type: "error", Error: err}
		}
	}()
	return outputCh, nil
}

func (p *AnthropicProvider) buildRequest(messages []*protocol.Message, tools []ToolDefinition, opts *GenerateOptions, stream bool) anthropicRequest {
	request := anthropicRequest{
		Model:       p.config.Model,
		MaxTokens:   p.config.MaxTokens,
		Stream:      stream,
		Temperature: p.config.Temperature,
	}

	for _, msg := range messages {
		switch msg.Role {
		case protocol.RoleSystem:
			// The messages API takes system text as a top-level field.
			request.System = msg.Text()

		case protocol.RoleUser:
			request.Messages = append(request.Messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicContentBlock{{Type: "text", Text: msg.Text()}},
			})

		case protocol.RoleAssistant:
			var blocks []anthropicContentBlock
			if text := msg.Text(); text != "" {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: text})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropicContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Args,
				})
			}
			request.Messages = append(request.Messages, anthropicMessage{Role: "assistant", Content: blocks})

		case protocol.RoleToolResult:
			// Tool results travel as user-role tool_result blocks.
			request.Messages = append(request.Messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Text(),
					IsError:   msg.IsError,
				}},
			})
		}
	}

	if len(tools) > 0 {
		request.Tools = make([]anthropicTool, len(tools))
		for i, tool := range tools {
			request.Tools[i] = anthropicTool{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.Parameters,
			}
		}
		request.ToolChoice = anthropicChoice(opts)
	}
	return request
}

func anthropicChoice(opts *GenerateOptions) *anthropicToolChoice {
	if opts == nil || opts.ToolChoice == "" || opts.ToolChoice == ToolChoiceAuto {
		return &anthropicToolChoice{Type: "auto"}
	}
	switch opts.ToolChoice {
	case ToolChoiceRequired:
		return &anthropicToolChoice{Type: "any"}
	case ToolChoiceNone:
		return &anthropicToolChoice{Type: "none"}
	default:
		return &anthropicToolChoice{Type: "tool", Name: opts.ToolChoice}
	}
}

func (p *AnthropicProvider) newRequest(ctx context.Context, request anthropicRequest) (*http.Request, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/messages", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicVersion)
	if p.config.APIKey != "" {
		req.Header.Set("x-api-key", p.config.APIKey)
	}
	return req, nil
}

func (p *AnthropicProvider) checkResponse(resp *http.Response, err error) error {
	if resp != nil && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		message := string(body)
		var errorResp struct {
			Error anthropicError `json:"error"`
		}
		if json.Unmarshal(body, &errorResp) == nil && errorResp.Error.Message != "" {
			message = errorResp.Error.Message
		}
		return classifyHTTPError("anthropic", resp.StatusCode, message, err)
	}
	if err != nil {
		return classifyHTTPError("anthropic", 0, err.Error(), err)
	}
	if resp == nil {
		return classifyHTTPError("anthropic", 0, "no response received", nil)
	}
	return nil
}

func (p *AnthropicProvider) makeRequest(ctx context.Context, request anthropicRequest) (*anthropicResponse, error) {
	req, err := p.newRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if checkErr := p.checkResponse(resp, err); checkErr != nil {
		return nil, checkErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	return &response, nil
}

// Streaming event payloads.
type anthropicStreamEvent struct {
	Type         string                 `json:"type"`
	Message      *anthropicResponse     `json:"message,omitempty"`
	ContentBlock *anthropicContentBlock `json:"content_block,omitempty"`
	Delta        *anthropicStreamDelta  `json:"delta,omitempty"`
	Usage        *anthropicUsage        `json:"usage,omitempty"`
	Error        *anthropicError        `json:"error,omitempty"`
}

type anthropicStreamDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

func (p *AnthropicProvider) streamRequest(ctx context.Context, request anthropicRequest, outputCh chan<- StreamChunk) error {
	req, err := p.newRequest(ctx, request)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if checkErr := p.checkResponse(resp, err); checkErr != nil {
		return checkErr
	}

	reader := bufio.NewReader(resp.Body)

	type pendingCall struct {
		id, name string
		argsJSON strings.Builder
	}
	var calls []*pendingCall
	var current *pendingCall
	usage := &protocol.UsageStats{}
	stopReason := ""

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("reading stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal(line[6:], &event); err != nil {
			continue
		}

		switch event.Type {
		case "error":
			if event.Error != nil {
				return &PermanentError{Provider: "anthropic", Message: event.Error.Message}
			}

		case "message_start":
			if event.Message != nil && event.Message.Usage != nil {
				usage.PromptTokens = event.Message.Usage.InputTokens
			}

		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				current = &pendingCall{id: event.ContentBlock.ID, name: event.ContentBlock.Name}
				calls = append(calls, current)
			}

		case "content_block_delta":
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				outputCh <- StreamChunk{Type: "text", Text: event.Delta.Text}
			case "input_json_delta":
				if current != nil {
					current.argsJSON.WriteString(event.Delta.PartialJSON)
				}
			}

		case "content_block_stop":
			current = nil

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				stopReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				usage.CompletionTokens = event.Usage.OutputTokens
			}

		case "message_stop":
		}
	}

	for _, call := range calls {
		args := call.argsJSON.String()
		if args == "" {
			args = "{}"
		}
		// Same shape as a non-streaming tool_use block, arguments still as
		// the accumulated JSON string for the parser to decode.
		outputCh <- StreamChunk{Type: "tool_call", ToolCall: map[string]interface{}{
			"id":    call.id,
			"name":  call.name,
			"input": args,
		}}
	}

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	finishReason := "stop"
	if stopReason == "tool_use" || len(calls) > 0 {
		finishReason = "tool_calls"
	}
	outputCh <- StreamChunk{Type: "done", Usage: usage, FinishReason: finishReason}
	return nil
}
