// heartrisk trains and serves the heart disease risk classifier.
//
// Usage:
//
//	heartrisk train [--data file.csv] [--model-dir dir]
//	heartrisk serve
//	heartrisk predict --input record.json
//	heartrisk verify [--url http://localhost:8501]
//	heartrisk gen-data --out data/heart_disease_selected.csv
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"heartrisk/config"
	"heartrisk/logging"
)

var version = "dev"

func main() {
	// .env values feed the flag EnvVars below, so load them first.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "heartrisk",
		Usage:   "Heart disease risk prediction: training, web UI and API",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/config.yaml",
				Usage:   "Path to the YAML config file",
				EnvVars: []string{"HEARTRISK_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"HEARTRISK_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			trainCommand(),
			serveCommand(),
			predictCommand(),
			verifyCommand(),
			genDataCommand(),
		},
	}
}

// setup loads the config and builds the logger, applying global flag overrides.
func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	return cfg, logging.New(cfg.Log), nil
}
