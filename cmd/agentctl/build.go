package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Ravikumarchavva/agent-framework/pkg/agent"
	"github.com/Ravikumarchavva/agent-framework/pkg/config"
	"github.com/Ravikumarchavva/agent-framework/pkg/llms"
	"github.com/Ravikumarchavva/agent-framework/pkg/memory"
	"github.com/Ravikumarchavva/agent-framework/pkg/observability"
	"github.com/Ravikumarchavva/agent-framework/pkg/tools"
)

// loadConfig reads the config file, or falls back to built-in defaults when
// no path is given so the CLI works with nothing but an API key in the
// environment. apply mutates the config before defaults are re-applied,
// which lets flag overrides leave dependent fields blank for defaulting.
func loadConfig(path string, apply func(*config.Config)) (*config.Config, error) {
	cfg := &config.Config{}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		slog.Info("loaded configuration", "path", path)
		cfg = loaded
	}

	if apply != nil {
		apply(cfg)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRegistry assembles builtin tools and any configured MCP servers.
func buildRegistry(ctx context.Context, cfg *config.Config) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	if len(cfg.Tools.Builtins) == 0 {
		for _, t := range tools.Builtins() {
			if err := registry.RegisterTool(t); err != nil {
				return nil, err
			}
		}
	} else {
		for _, name := range cfg.Tools.Builtins {
			t, ok := tools.BuiltinByName(name)
			if !ok {
				return nil, fmt.Errorf("unknown builtin tool %q", name)
			}
			if err := registry.RegisterTool(t); err != nil {
				return nil, err
			}
		}
	}

	for _, server := range cfg.Tools.MCP {
		source, err := tools.NewMCPToolSource(tools.MCPConfig{
			Name: server.Name,
			URL:  server.URL,
		})
		if err != nil {
			return nil, fmt.Errorf("mcp server %s: %w", server.Name, err)
		}
		if err := registry.RegisterSource(ctx, source); err != nil {
			return nil, fmt.Errorf("mcp server %s: %w", server.Name, err)
		}
	}

	return registry, nil
}

// buildAgent wires provider, tools and memory into a ready-to-run agent.
// The returned cleanup releases every resource the build opened.
func buildAgent(ctx context.Context, cfg *config.Config, verbose bool) (*agent.Agent, func(), error) {
	manager := observability.NewManager(cfg.Observability)
	if err := manager.Initialize(ctx); err != nil {
		return nil, nil, fmt.Errorf("initializing observability: %w", err)
	}

	provider, err := llms.NewProvider(&cfg.LLM)
	if err != nil {
		return nil, nil, err
	}

	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		_ = provider.Close()
		return nil, nil, err
	}

	mem, err := memory.New(&cfg.Memory)
	if err != nil {
		_ = provider.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if closer, ok := mem.(io.Closer); ok {
			_ = closer.Close()
		}
		_ = provider.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(shutdownCtx)
	}

	opts := []agent.Option{
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithParallelToolCalls(cfg.Agent.ParallelToolCalls),
		agent.WithPerToolTimeout(time.Duration(cfg.Agent.ToolTimeout) * time.Second),
		agent.WithVerbose(verbose),
	}
	if cfg.Agent.Timeout > 0 {
		opts = append(opts, agent.WithOverallTimeout(time.Duration(cfg.Agent.Timeout)*time.Second))
	}
	if cfg.Agent.Instruction != "" {
		opts = append(opts, agent.WithSystemInstruction(cfg.Agent.Instruction))
	}

	a, err := agent.New(cfg.Agent.Name, provider, registry, mem, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, cleanup, nil
}
