// Package config holds the YAML configuration model for the agent runtime.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Ravikumarchavva/agent-framework/pkg/observability"
)

// Config is the root of a runtime configuration file.
type Config struct {
	Agent         AgentConfig          `yaml:"agent"`
	LLM           LLMProviderConfig    `yaml:"llm"`
	Memory        MemoryConfig         `yaml:"memory"`
	Tools         ToolsConfig          `yaml:"tools"`
	Logging       LoggingConfig        `yaml:"logging"`
	Observability observability.Config `yaml:"observability"`
}

type AgentConfig struct {
	Name              string `yaml:"name"`
	Instruction       string `yaml:"instruction"`
	MaxIterations     int    `yaml:"max_iterations"`
	ParallelToolCalls bool   `yaml:"parallel_tool_calls"`
	// Seconds. ToolTimeout bounds each tool execution, Timeout the whole run.
	ToolTimeout int `yaml:"tool_timeout"`
	Timeout     int `yaml:"timeout"`
}

func (c *AgentConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "agent"
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = 30
	}
}

type LLMProviderConfig struct {
	Type        string   `yaml:"type"` // "openai" or "anthropic"
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key"`
	Host        string   `yaml:"host"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	// Seconds.
	Timeout    int `yaml:"timeout"`
	MaxRetries int `yaml:"max_retries"`
	RetryDelay int `yaml:"retry_delay"`
}

func (c *LLMProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Model == "" {
		switch c.Type {
		case "anthropic":
			c.Model = "claude-sonnet-4-5"
		default:
			c.Model = "gpt-4o"
		}
	}
	if c.Host == "" {
		switch c.Type {
		case "anthropic":
			c.Host = "https://api.anthropic.com/v1"
		default:
			c.Host = "https://api.openai.com/v1"
		}
	}
	if c.APIKey == "" {
		c.APIKey = ProviderAPIKey(c.Type)
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout <= 0 {
		c.Timeout = 120
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2
	}
}

func (c *LLMProviderConfig) Validate() error {
	switch c.Type {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm: unknown provider type %q", c.Type)
	}
	if c.Model == "" {
		return fmt.Errorf("llm: model is required")
	}
	return nil
}

type MemoryConfig struct {
	// Strategy: "unbounded", "buffer_window", "token_window", "sql".
	Strategy   string `yaml:"strategy"`
	WindowSize int    `yaml:"window_size"`
	Budget     int    `yaml:"budget"`
	// SQL strategy only.
	Driver    string `yaml:"driver"` // "postgres" or "sqlite3"
	DSN       string `yaml:"dsn"`
	SessionID string `yaml:"session_id"`
}

func (c *MemoryConfig) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = "unbounded"
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 50
	}
	if c.Budget <= 0 {
		c.Budget = 8000
	}
}

func (c *MemoryConfig) Validate() error {
	switch c.Strategy {
	case "unbounded", "buffer_window", "token_window":
		return nil
	case "sql":
		if c.Driver != "postgres" && c.Driver != "sqlite3" {
			return fmt.Errorf("memory: sql strategy requires driver postgres or sqlite3, got %q", c.Driver)
		}
		if c.DSN == "" {
			return fmt.Errorf("memory: sql strategy requires a dsn")
		}
		return nil
	default:
		return fmt.Errorf("memory: unknown strategy %q", c.Strategy)
	}
}

type ToolsConfig struct {
	// Builtins lists builtin tools to register; empty means all of them.
	Builtins []string          `yaml:"builtins"`
	MCP      []MCPServerConfig `yaml:"mcp"`
}

type MCPServerConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Agent.SetDefaults()
	c.LLM.SetDefaults()
	c.Memory.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	return c.Memory.Validate()
}

// Load reads a YAML config file, expands ${ENV} references, applies
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes. See Load.
func Parse(data []byte) (*Config, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	expanded := ExpandEnvVarsInData(raw)

	// Round-trip through yaml to decode into the typed config.
	normalized, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("normalizing config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(normalized, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
