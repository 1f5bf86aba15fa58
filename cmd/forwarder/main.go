package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/smaghili/eitaa-forwarder/pkg/app"
	"github.com/smaghili/eitaa-forwarder/pkg/app/forwarder"
	"github.com/smaghili/eitaa-forwarder/pkg/config"
)

const version = "1.0.0"

func main() {
	cliApp := &cli.App{
		Name:    "eitaa-forwarder",
		Usage:   "Forward new Eitaa channel messages to Telegram",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "config.yaml",
				EnvVars: []string{"EITAA_FORWARDER_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "no-send",
				Usage: "Log messages instead of sending them to Telegram",
			},
			&cli.BoolFlag{
				Name:    "show-browser",
				Aliases: []string{"page"},
				Usage:   "Run the browser with a visible window",
			},
			&cli.BoolFlag{
				Name:    "clear-session",
				Aliases: []string{"clear"},
				Usage:   "Delete the saved Eitaa session before starting",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Check every channel once and exit",
			},
			&cli.StringFlag{
				Name:  "send",
				Usage: "Comma separated Telegram `IDS` that replace the default targets",
			},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	targets, err := parseTargets(c.String("send"))
	if err != nil {
		return err
	}

	configPath := c.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var runner app.Runner = forwarder.NewServer(cfg, forwarder.Options{
		ConfigPath:   configPath,
		NoSend:       c.Bool("no-send"),
		ShowBrowser:  c.Bool("show-browser"),
		ClearSession: c.Bool("clear-session"),
		Once:         c.Bool("once"),
		SendTargets:  targets,
	})
	return runner.Run()
}

// parseTargets reads the --send list
func parseTargets(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --send target %q: %w", part, err)
		}
		out = append(out, id)
	}
	return out, nil
}
