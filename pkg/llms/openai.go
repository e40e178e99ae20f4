package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ravikumarchavva/agent-framework/pkg/config"
	"github.com/Ravikumarchavva/agent-framework/pkg/httpclient"
	"github.com/Ravikumarchavva/agent-framework/pkg/observability"
	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

// OpenAIProvider talks to the OpenAI chat completions API (and compatible
// servers) over plain HTTP.
type OpenAIProvider struct {
	config     *config.LLMProviderConfig
	httpClient *httpclient.Client
	counter    *TokenCounter
}

type openAIRequest struct {
	Model         string              `json:"model"`
	Messages      []openAIMessage     `json:"messages"`
	MaxTokens     *int                `json:"max_tokens,omitempty"`
	Temperature   *float64            `json:"temperature,omitempty"`
	Stream        bool                `json:"stream"`
	StreamOptions *streamOptions      `json:"stream_options,omitempty"`
	Tools         []openAITool        `json:"tools,omitempty"`
	ToolChoice    interface{}         `json:"tool_choice,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIStreamResponse struct {
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIUsage         `json:"usage,omitempty"`
	Error   *openAIError         `json:"error,omitempty"`
}

type openAIStreamChoice struct {
	Delta        openAIDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type openAIDelta struct {
	Content   string           `json:"content,omitempty"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIProvider builds a provider from config, applying defaults.
func NewOpenAIProvider(cfg *config.LLMProviderConfig) *OpenAIProvider {
	cfg.SetDefaults()

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	)

	return &OpenAIProvider{
		config:     cfg,
		httpClient: httpClient,
		counter:    NewTokenCounter(cfg.Model),
	}
}

func (p *OpenAIProvider) ModelName() string { return p.config.Model }

func (p *OpenAIProvider) Close() error { return nil }

func (p *OpenAIProvider) CountTokens(messages []*protocol.Message) int {
	return p.counter.CountMessages(messages)
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition, opts *GenerateOptions) (*AssistantTurn, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("llms")
	ctx, span := tracer.Start(ctx, "llm.generate",
		trace.WithAttributes(
			attribute.String("llm.model", p.config.Model),
			attribute.String("llm.provider", "openai"),
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
		metrics.RecordLLMCall(p.config.Model, "openai", duration, true)
		return nil, err
	}

	if response.Error != nil {
		apiErr := &PermanentError{Provider: "openai", Message: response.Error.Message}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, response.Error.Message)
		return nil, apiErr
	}
	if len(response.Choices) == 0 {
		noChoiceErr := &PermanentError{Provider: "openai", Message: "no response choices returned"}
		span.RecordError(noChoiceErr)
		span.SetStatus(codes.Error, "no choices")
		return nil, noChoiceErr
	}

	choice := response.Choices[0]
	turn := &AssistantTurn{
		Text:         choice.Message.Content,
		FinishReason: "stop",
	}
	for _, tc := range choice.Message.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, wireToolCall(tc))
	}
	if len(turn.ToolCalls) > 0 {
		turn.FinishReason = "tool_calls"
	}
	if response.Usage != nil {
		turn.Usage = &protocol.UsageStats{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
		}
		span.SetAttributes(
			attribute.Int("llm.tokens.input", response.Usage.PromptTokens),
			attribute.Int("llm.tokens.output", response.Usage.CompletionTokens),
		)
		metrics.RecordLLMTokens(p.config.Model, response.Usage.PromptTokens, response.Usage.CompletionTokens)
	}
	span.SetAttributes(attribute.Int("llm.tool_calls", len(turn.ToolCalls)))
	span.SetStatus(codes.Ok, "")
	metrics.RecordLLMCall(p.config.Model, "openai", duration, false)

	return turn, nil
}

func (p *OpenAIProvider) GenerateStreaming(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition, opts *GenerateOptions) (<-chan StreamChunk, error) {
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

func roleToOpenAI(role protocol.Role) string {
	switch role {
	case protocol.RoleUser:
		return "user"
	case protocol.RoleAssistant:
		return "assistant"
	case protocol.RoleToolResult:
		return "tool"
	default:
		return "system"
	}
}

func (p *OpenAIProvider) buildRequest(messages []*protocol.Message, tools []ToolDefinition, opts *GenerateOptions, stream bool) openAIRequest {
	wireMessages := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		wireMsg := openAIMessage{
			Role:    roleToOpenAI(msg.Role),
			Content: msg.Text(),
		}
		if msg.Role == protocol.RoleToolResult {
			wireMsg.ToolCallID = msg.ToolCallID
		}
		for _, tc := range msg.ToolCalls {
			argsJSON, _ := json.Marshal(tc.Args)
			wireMsg.ToolCalls = append(wireMsg.ToolCalls, openAIToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openAIFunctionCall{
					Name:      tc.Name,
					Arguments: string(argsJSON),
				},
			})
		}
		wireMessages = append(wireMessages, wireMsg)
	}

	request := openAIRequest{
		Model:       p.config.Model,
		Messages:    wireMessages,
		Temperature: p.config.Temperature,
		Stream:      stream,
	}
	if stream {
		request.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if p.config.MaxTokens > 0 {
		maxTokens := p.config.MaxTokens
		request.MaxTokens = &maxTokens
	}
	if len(tools) > 0 {
		request.Tools = make([]openAITool, len(tools))
		for i, tool := range tools {
			request.Tools[i] = openAITool{
				Type:     "function",
				Function: openAIToolFunction(tool),
			}
		}
		request.ToolChoice = openAIToolChoice(opts)
	}
	return request
}

// openAIToolChoice maps the generic tool choice to the wire value. A bare
// tool name becomes the forced-function object form.
func openAIToolChoice(opts *GenerateOptions) interface{} {
	if opts == nil || opts.ToolChoice == "" {
		return ToolChoiceAuto
	}
	switch opts.ToolChoice {
	case ToolChoiceAuto, ToolChoiceRequired, ToolChoiceNone:
		return opts.ToolChoice
	default:
		return map[string]interface{}{
			"type":     "function",
			"function": map[string]interface{}{"name": opts.ToolChoice},
		}
	}
}

// wireToolCall re-encodes a wire tool call as the generic map shape handed
// to protocol.ParseToolCall downstream.
func wireToolCall(tc openAIToolCall) RawToolCall {
	return map[string]interface{}{
		"id": tc.ID,
		"function": map[string]interface{}{
			"name":      tc.Function.Name,
			"arguments": tc.Function.Arguments,
		},
	}
}

func parseErrorBody(body []byte) *openAIError {
	if len(body) == 0 {
		return nil
	}
	var errorResp struct {
		Error openAIError `json:"error"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		return &errorResp.Error
	}
	return nil
}

func (p *OpenAIProvider) newRequest(ctx context.Context, request openAIRequest) (*http.Request, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}
	return req, nil
}

// checkResponse converts a failed exchange into the error taxonomy.
func (p *OpenAIProvider) checkResponse(resp *http.Response, err error) error {
	if resp != nil && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		message := string(body)
		if apiErr := parseErrorBody(body); apiErr != nil {
			message = apiErr.Message
		}
		return classifyHTTPError("openai", resp.StatusCode, message, err)
	}
	if err != nil {
		return classifyHTTPError("openai", 0, err.Error(), err)
	}
	if resp == nil {
		return classifyHTTPError("openai", 0, "no response received", nil)
	}
	return nil
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request openAIRequest) (*openAIResponse, error) {
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
	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	return &response, nil
}

func (p *OpenAIProvider) streamRequest(ctx context.Context, request openAIRequest, outputCh chan<- StreamChunk) error {
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

	// Tool call fragments arrive keyed by emission index; arguments build
	// up across deltas.
	var orderedCalls []*openAIToolCall
	var usage *protocol.UsageStats
	finishReason := "stop"

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
		line = line[6:]
		if bytes.Equal(line, []byte("[DONE]")) {
			break
		}

		var streamResp openAIStreamResponse
		if err := json.Unmarshal(line, &streamResp); err != nil {
			continue
		}
		if streamResp.Error != nil {
			return &PermanentError{Provider: "openai", Message: streamResp.Error.Message}
		}
		if streamResp.Usage != nil {
			usage = &protocol.UsageStats{
				PromptTokens:     streamResp.Usage.PromptTokens,
				CompletionTokens: streamResp.Usage.CompletionTokens,
				TotalTokens:      streamResp.Usage.TotalTokens,
			}
		}
		if len(streamResp.Choices) == 0 {
			continue
		}

		choice := streamResp.Choices[0]
		if choice.Delta.Content != "" {
			outputCh <- StreamChunk{Type: "text", Text: choice.Delta.Content}
		}
		for _, deltaCall := range choice.Delta.ToolCalls {
			if deltaCall.ID != "" {
				call := deltaCall
				orderedCalls = append(orderedCalls, &call)
			} else if len(orderedCalls) > 0 {
				last := orderedCalls[len(orderedCalls)-1]
				last.Function.Arguments += deltaCall.Function.Arguments
			}
		}
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
	}

	for _, call := range orderedCalls {
		outputCh <- StreamChunk{Type: "tool_call", ToolCall: wireToolCall(*call)}
	}
	if len(orderedCalls) > 0 && finishReason == "stop" {
		finishReason = "tool_calls"
	}
	outputCh <- StreamChunk{Type: "done", Usage: usage, FinishReason: finishReason}
	return nil
}
