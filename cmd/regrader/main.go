package main

import (
	"log/slog"
	"os"

	"github.com/fushar/regrader"
	"github.com/fushar/regrader/internal/config"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    "regrader",
		Usage:   "Judge submissions and maintain contest scoreboards",
		Version: regrader.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Config path",
				Value: "./config.toml",
			},
		},
		Before: func(c *cli.Context) error {
			if err := config.Load(c.String("config")); err != nil {
				return err
			}
			slog.SetDefault(slog.New(regrader.GetSlogHandler(config.Common.Debug, os.Stdout)))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "grader",
				Usage:  "Poll for submissions and judge them",
				Action: Grader,
			},
			{
				Name:  "scoreboard",
				Usage: "Print the standings of a contest",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "contest", Required: true},
					&cli.StringFlag{Name: "view", Value: string(regrader.ViewContestant), Usage: "contestant or admin"},
					&cli.BoolFlag{Name: "csv", Usage: "Print CSV instead of a table"},
				},
				Action: Scoreboard,
			},
			{
				Name:  "recalc",
				Usage: "Rebuild scoreboard entries from judged submissions",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "contest", Required: true},
					&cli.IntFlag{Name: "user"},
					&cli.IntFlag{Name: "problem"},
				},
				Action: Recalculate,
			},
			{
				Name:   "regrade",
				Usage:  "Queue a submission for regrading",
				Flags:  []cli.Flag{&cli.IntFlag{Name: "submission", Required: true}},
				Action: Regrade,
			},
			{
				Name:   "ignore",
				Usage:  "Queue a submission to be ignored",
				Flags:  []cli.Flag{&cli.IntFlag{Name: "submission", Required: true}},
				Action: Ignore,
			},
			{
				Name:   "graders",
				Usage:  "List graders with a live heartbeat",
				Action: Graders,
			},
			{
				Name:   "judgings",
				Usage:  "Show per-testcase results of a submission",
				Flags:  []cli.Flag{&cli.IntFlag{Name: "submission", Required: true}},
				Action: Judgings,
			},
			{
				Name:  "config",
				Usage: "Write the effective configuration back to the config file",
				Action: func(c *cli.Context) error {
					return config.Save(c.String("config"))
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("Command failed", slog.Any("err", err))
		os.Exit(1)
	}
}
