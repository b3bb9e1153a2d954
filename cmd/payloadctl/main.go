package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/smallyunet/ethpayload/pkg/config"
	"github.com/smallyunet/ethpayload/pkg/logging"
)

const configKey = "config"

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to the YAML configuration file",
	EnvVars: []string{"ETHPAYLOAD_CONFIG"},
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "payloadctl"
	app.Usage = "Inspect, convert, fetch and submit execution payload envelopes"
	app.Flags = []cli.Flag{configFlag}
	app.Commands = []*cli.Command{
		inspectCmd,
		convertCmd,
		fetchCmd,
		submitCmd,
		listCmd,
		configCmd,
	}
	app.Before = func(c *cli.Context) error {
		cfg, err := config.Load(c.String(configFlag.Name))
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if _, err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
			return err
		}
		if c.App.Metadata == nil {
			c.App.Metadata = map[string]interface{}{}
		}
		c.App.Metadata[configKey] = cfg
		return nil
	}
	return app
}

func appConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
