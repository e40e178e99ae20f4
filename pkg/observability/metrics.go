package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Metrics records runtime counters for agent runs, LLM calls, and tool
// executions.
type Metrics interface {
	RecordAgentRun(agentName, status string, duration time.Duration)
	RecordLLMCall(model, provider string, duration time.Duration, isError bool)
	RecordLLMTokens(model string, inputTokens, outputTokens int)
	RecordToolExecution(toolName string, duration time.Duration, isError bool)
	Handler() http.Handler
}

// InitMetrics builds the metrics implementation. Disabled config yields a
// no-op recorder.
func InitMetrics(cfg MetricsConfig) (Metrics, error) {
	if !cfg.Enabled {
		return NoopMetrics{}, nil
	}
	return newPrometheusMetrics()
}

type prometheusMetrics struct {
	registry *promclient.Registry

	agentDuration metric.Float64Histogram
	agentRuns     metric.Int64Counter
	llmDuration   metric.Float64Histogram
	llmCalls      metric.Int64Counter
	llmErrors     metric.Int64Counter
	llmInTokens   metric.Int64Counter
	llmOutTokens  metric.Int64Counter
	toolDuration  metric.Float64Histogram
	toolCalls     metric.Int64Counter
	toolErrors    metric.Int64Counter
}

func newPrometheusMetrics() (*prometheusMetrics, error) {
	registry := promclient.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)).Meter("agent-framework")

	m := &prometheusMetrics{registry: registry}

	if m.agentDuration, err = meter.Float64Histogram(
		"agent_run_duration_seconds",
		metric.WithDescription("Agent run duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.agentRuns, err = meter.Int64Counter(
		"agent_runs_total",
		metric.WithDescription("Total agent runs by terminal status"),
	); err != nil {
		return nil, err
	}
	if m.llmDuration, err = meter.Float64Histogram(
		"llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.llmCalls, err = meter.Int64Counter(
		"llm_calls_total",
		metric.WithDescription("Total LLM calls"),
	); err != nil {
		return nil, err
	}
	if m.llmErrors, err = meter.Int64Counter(
		"llm_errors_total",
		metric.WithDescription("Total LLM call failures"),
	); err != nil {
		return nil, err
	}
	if m.llmInTokens, err = meter.Int64Counter(
		"llm_tokens_input_total",
		metric.WithDescription("Total prompt tokens sent"),
	); err != nil {
		return nil, err
	}
	if m.llmOutTokens, err = meter.Int64Counter(
		"llm_tokens_output_total",
		metric.WithDescription("Total completion tokens received"),
	); err != nil {
		return nil, err
	}
	if m.toolDuration, err = meter.Float64Histogram(
		"tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.toolCalls, err = meter.Int64Counter(
		"tool_calls_total",
		metric.WithDescription("Total tool executions"),
	); err != nil {
		return nil, err
	}
	if m.toolErrors, err = meter.Int64Counter(
		"tool_errors_total",
		metric.WithDescription("Total tool execution failures"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *prometheusMetrics) RecordAgentRun(agentName, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("agent", agentName),
		attribute.String("status", status),
	)
	m.agentRuns.Add(context.Background(), 1, attrs)
	m.agentDuration.Record(context.Background(), duration.Seconds(), attrs)
}

func (m *prometheusMetrics) RecordLLMCall(model, provider string, duration time.Duration, isError bool) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("provider", provider),
	)
	m.llmCalls.Add(context.Background(), 1, attrs)
	m.llmDuration.Record(context.Background(), duration.Seconds(), attrs)
	if isError {
		m.llmErrors.Add(context.Background(), 1, attrs)
	}
}

func (m *prometheusMetrics) RecordLLMTokens(model string, inputTokens, outputTokens int) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmInTokens.Add(context.Background(), int64(inputTokens), attrs)
	m.llmOutTokens.Add(context.Background(), int64(outputTokens), attrs)
}

func (m *prometheusMetrics) RecordToolExecution(toolName string, duration time.Duration, isError bool) {
	attrs := metric.WithAttributes(attribute.String("tool", toolName))
	m.toolCalls.Add(context.Background(), 1, attrs)
	m.toolDuration.Record(context.Background(), duration.Seconds(), attrs)
	if isError {
		m.toolErrors.Add(context.Background(), 1, attrs)
	}
}

func (m *prometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) RecordAgentRun(string, string, time.Duration)      {}
func (NoopMetrics) RecordLLMCall(string, string, time.Duration, bool) {}
func (NoopMetrics) RecordLLMTokens(string, int, int)                  {}
func (NoopMetrics) RecordToolExecution(string, time.Duration, bool)   {}

func (NoopMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}

var (
	_ Metrics = (*prometheusMetrics)(nil)
	_ Metrics = NoopMetrics{}
)
