package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/taskgraph/internal"
	pkgconfig "github.com/starford/taskgraph/pkg/config"
)

var version = "dev"

type runFunc func(ctx context.Context, opts ...internal.Option) error

func action(name string, run runFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		configPath := cmd.String("config")

		cfg := internal.NewDefaultConfig()
		if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if dir := cmd.String("project"); dir != "" {
			cfg.Project.Root = dir
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithVersion(version),
		}

		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "taskgraph",
		Usage:   "Dependency-aware implementation tracker for function-level project plans",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project root (overrides project.root)",
				Sources: cli.EnvVars("TASKGRAPH_PROJECT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the REST API, SSE events and metrics",
				Action: action("serve", internal.Run),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the tracker tools over MCP stdio",
				Action: action("mcp", internal.RunMCP),
			},
			{
				Name:   "status",
				Usage:  "Print progress counts and ready functions",
				Action: action("status", internal.Status),
			},
			{
				Name:   "order",
				Usage:  "Print the implementation order",
				Action: action("order", internal.Order),
			},
			{
				Name:   "validate",
				Usage:  "Report cycles and dangling references; exits non-zero when the plan is invalid",
				Action: action("validate", internal.Validate),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
