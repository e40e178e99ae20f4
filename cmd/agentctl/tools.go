package main

import (
	"context"
	"fmt"
)

// ToolsCmd lists every tool the configured agent would see.
type ToolsCmd struct{}

func (c *ToolsCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, err := loadConfig(cli.Config, nil)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	infos := registry.ListTools()
	if len(infos) == 0 {
		fmt.Println("No tools configured.")
		return nil
	}

	fmt.Printf("%d tools available:\n\n", len(infos))
	for _, info := range infos {
		fmt.Printf("  %-20s [%s] %s\n", info.Name, info.Source, info.Description)
	}
	return nil
}
