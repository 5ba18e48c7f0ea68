package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"parrecon/pkg/config"
	"parrecon/pkg/experiment"
	"parrecon/pkg/visualization"
)

func main() {
	cmd := &cli.Command{
		Name:  "parrecon",
		Usage: "Reconstruct Philips PAR/REC MRI acquisitions into typed image containers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "config/config.yaml",
				Sources: cli.EnvVars("PARRECON_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "describe",
				Usage:     "Print the experiment parameters of a PAR header",
				ArgsUsage: "<experiment.par>",
				Action:    runDescribe,
			},
			{
				Name:      "process",
				Usage:     "Reconstruct a PAR/REC pair and export the container",
				ArgsUsage: "<experiment.par>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "rec",
						Usage: "REC file path (default: PAR path with .rec extension)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: processed_data next to the input)",
					},
					&cli.BoolFlag{
						Name:  "figures",
						Usage: "Render slice and dynamics montages alongside the container",
					},
				},
				Action: runProcess,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func setup(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, log, nil
}

func parArg(cmd *cli.Command) (string, error) {
	par := cmd.Args().First()
	if par == "" {
		return "", fmt.Errorf("missing PAR file argument")
	}
	return par, nil
}

func runDescribe(ctx context.Context, cmd *cli.Command) error {
	_, log, err := setup(cmd)
	if err != nil {
		return err
	}
	par, err := parArg(cmd)
	if err != nil {
		return err
	}

	exp := experiment.New(experiment.Params{ParPath: par, Logger: log})
	if err := exp.Load(); err != nil {
		return err
	}
	for _, w := range exp.Warnings() {
		log.Warn("header warning", slog.String("detail", w.Error()))
	}

	summary, err := exp.Describe()
	if err != nil {
		return err
	}
	fmt.Print(summary)
	return nil
}

func runProcess(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	par, err := parArg(cmd)
	if err != nil {
		return err
	}

	outputDir := cmd.String("output")
	if outputDir == "" {
		outputDir = cfg.Output.Dir
	}

	exp := experiment.New(experiment.Params{
		ParPath:     par,
		RecPath:     cmd.String("rec"),
		OutputDir:   outputDir,
		Workers:     cfg.Processing.Workers,
		SaveFigures: cfg.Output.SaveFigures || cmd.Bool("figures"),
		Figures: visualization.Options{
			MaxColumns:      cfg.Figures.MaxColumns,
			DynamicInterval: cfg.Figures.DynamicInterval,
			RobustWindow:    cfg.Figures.RobustWindow,
		},
		Logger: log,
	})

	path, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Container written to %s\n", path)
	return nil
}
