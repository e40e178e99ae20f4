package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ravikumarchavva/agent-framework/pkg/agent"
	"github.com/Ravikumarchavva/agent-framework/pkg/config"
)

// RunCmd runs the agent on a single input.
type RunCmd struct {
	Input string `arg:"" help:"The user request to run."`

	// Zero-config overrides.
	Provider      string `help:"LLM provider (openai or anthropic)."`
	Model         string `help:"Model name."`
	APIKey        string `name:"api-key" help:"API key (defaults to environment variable)."`
	Instruction   string `help:"System instruction for the agent."`
	MaxIterations int    `name:"max-iterations" help:"Maximum loop iterations."`
	ParallelTools bool   `name:"parallel-tools" help:"Execute tool calls in parallel."`

	Stream  bool `help:"Stream the answer as it is generated."`
	JSON    bool `help:"Print the full run trace as JSON instead of a summary."`
	Verbose bool `short:"v" help:"Log each tool execution."`
}

func (c *RunCmd) applyOverrides(cfg *config.Config) {
	if c.Provider != "" && c.Provider != cfg.LLM.Type {
		// A provider switch invalidates the configured host and key.
		cfg.LLM = config.LLMProviderConfig{Type: c.Provider}
	}
	if c.Model != "" {
		cfg.LLM.Model = c.Model
	}
	if c.APIKey != "" {
		cfg.LLM.APIKey = c.APIKey
	}
	if c.Instruction != "" {
		cfg.Agent.Instruction = c.Instruction
	}
	if c.MaxIterations > 0 {
		cfg.Agent.MaxIterations = c.MaxIterations
	}
	if c.ParallelTools {
		cfg.Agent.ParallelToolCalls = true
	}
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := loadConfig(cli.Config, c.applyOverrides)
	if err != nil {
		return err
	}

	a, cleanup, err := buildAgent(ctx, cfg, c.Verbose)
	if err != nil {
		return err
	}
	defer cleanup()

	if c.Stream {
		return c.runStreaming(ctx, a)
	}

	result, err := a.Run(ctx, c.Input)
	if err != nil {
		return err
	}
	return c.printResult(result)
}

func (c *RunCmd) runStreaming(ctx context.Context, a *agent.Agent) error {
	events, err := a.RunStream(ctx, c.Input)
	if err != nil {
		return err
	}

	var result *agent.AgentRunResult
	for evt := range events {
		switch evt.Type {
		case agent.EventDelta:
			fmt.Print(evt.Delta)
		case agent.EventToolCallStarted:
			fmt.Fprintf(os.Stderr, "\n[tool] %s ...\n", evt.ToolName)
		case agent.EventToolCallFinished:
			status := "ok"
			var duration float64
			if evt.Record != nil {
				duration = evt.Record.DurationMs
				if evt.Record.IsError {
					status = "error"
				}
			}
			fmt.Fprintf(os.Stderr, "[tool] %s %s (%.0fms)\n", evt.ToolName, status, duration)
		case agent.EventRunFinished:
			result = evt.Result
		}
	}
	fmt.Println()

	if result == nil {
		return fmt.Errorf("stream ended without a result")
	}
	if c.JSON {
		return c.printResult(result)
	}
	fmt.Fprintln(os.Stderr, result.Summary())
	if !result.Success() {
		return fmt.Errorf("run finished with status %s", result.Status)
	}
	return nil
}

func (c *RunCmd) printResult(result *agent.AgentRunResult) error {
	if c.JSON {
		payload, err := result.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(payload))
	} else {
		fmt.Println(result.Output)
		fmt.Fprintln(os.Stderr, result.Summary())
	}

	if !result.Success() {
		return fmt.Errorf("run finished with status %s", result.Status)
	}
	return nil
}
