package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ticketdesk/internal"
	"github.com/starford/ticketdesk/internal/seed"
	pkgconfig "github.com/starford/ticketdesk/pkg/config"
)

const (
	defaultConfigFile = "config/config.yaml"
	exampleConfigFile = "config/config.example.yaml"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), exampleConfigFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func runGenerate(_ context.Context, cmd *cli.Command) error {
	opts := seed.DefaultOptions()
	opts.Total = int(cmd.Int("count"))
	opts.BadDates = int(cmd.Int("bad-dates"))
	opts.MissingFields = int(cmd.Int("missing-fields"))
	opts.InconsistentTags = int(cmd.Int("inconsistent-tags"))
	opts.Duplicates = int(cmd.Int("duplicates"))
	opts.Seed = uint64(cmd.Int("seed"))

	out := cmd.String("out")
	records, stats := seed.Generate(opts)
	if err := seed.Write(out, records); err != nil {
		return err
	}

	slog.Info("Generated tickets",
		slog.String("output", out),
		slog.Int("records", stats.Records),
		slog.Int("clean", stats.Clean),
		slog.Int("bad_dates", stats.BadDates),
		slog.Int("missing_fields", stats.MissingFields),
		slog.Int("inconsistent_tags", stats.InconsistentTags),
		slog.Int("duplicates", stats.Duplicates))
	return nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: defaultConfigFile,
		Value:       defaultConfigFile,
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
	defaults := seed.DefaultOptions()

	cmd := &cli.Command{
		Name:   "ticketdesk",
		Usage:  "Offline-first ticket desk that keeps working when the ticket service does not",
		Action: run,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Flags:  []cli.Flag{configFlag},
				Action: run,
			},
			{
				Name:   "mcp",
				Usage:  "Serve ticket tools to an MCP client over stdio",
				Flags:  []cli.Flag{configFlag},
				Action: runMCP,
			},
			{
				Name:  "generate",
				Usage: "Write a ticket dataset seeded with malformed records",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "data/tickets.json", Usage: "Output file (.json or .yaml)"},
					&cli.IntFlag{Name: "count", Value: int64(defaults.Total), Usage: "Distinct tickets"},
					&cli.IntFlag{Name: "bad-dates", Value: int64(defaults.BadDates), Usage: "Tickets with unparseable dates"},
					&cli.IntFlag{Name: "missing-fields", Value: int64(defaults.MissingFields), Usage: "Tickets missing required fields"},
					&cli.IntFlag{Name: "inconsistent-tags", Value: int64(defaults.InconsistentTags), Usage: "Tickets with messy tags"},
					&cli.IntFlag{Name: "duplicates", Value: int64(defaults.Duplicates), Usage: "Extra records reusing existing ids"},
					&cli.IntFlag{Name: "seed", Value: 1, Usage: "Random seed"},
				},
				Action: runGenerate,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
