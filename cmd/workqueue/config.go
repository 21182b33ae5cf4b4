package main

import (
	"fmt"

	workqueue "github.com/Swind/go-workqueue"
	"github.com/urfave/cli/v2"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "print the effective configuration as YAML",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "write the configuration to this path or URL instead of stdout",
			},
		},
		Action: configAction,
	}
}

func configAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	if out := c.String("out"); out != "" {
		if err := workqueue.SaveConfig(c.Context, out, cfg); err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		fmt.Fprintf(c.App.Writer, "✓ Config written to %s\n", out)
		return nil
	}

	data, err := cfg.Marshal()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	_, err = c.App.Writer.Write(data)
	return err
}

// loadConfig reads --config when given, otherwise the defaults.
func loadConfig(c *cli.Context) (workqueue.Config, error) {
	path := c.String("config")
	if path == "" {
		return workqueue.DefaultConfig(), nil
	}
	return workqueue.LoadConfig(c.Context, path)
}
