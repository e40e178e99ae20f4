// Command agentctl runs tool-calling agents from the terminal.
//
// Usage:
//
//	agentctl run "what is 6*7?" --config agent.yaml
//	agentctl run "what time is it in Tokyo?" --model gpt-4o --stream
//	agentctl tools --config agent.yaml
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/Ravikumarchavva/agent-framework/pkg/config"
	"github.com/Ravikumarchavva/agent-framework/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Run the agent on a single input and print the result."`
	Tools   ToolsCmd   `cmd:"" help:"List the tools the agent would have available."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (text or json)." default:"text"`
	LogFile   string `help:"Log file path (empty = stderr)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("agentctl version %s\n", version)
	return nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentctl"),
		kong.Description("agentctl - run tool-calling LLM agents"),
		kong.UsageOnError(),
	)

	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logger.Init(logger.ParseLevel(cli.LogLevel), output, cli.LogFormat)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
