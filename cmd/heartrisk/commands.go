package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"heartrisk/db"
	webhttp "heartrisk/http"
	"heartrisk/ml"
	"heartrisk/predict"
	"heartrisk/report"
	"heartrisk/training"
)

func trainCommand() *cli.Command {
	return &cli.Command{
		Name:  "train",
		Usage: "Train the pipeline from the selected-feature CSV and export it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data", Usage: "Training CSV (default model.data_path)"},
			&cli.StringFlag{Name: "model-dir", Usage: "Output directory (default model.dir)"},
			&cli.IntFlag{Name: "trees", Usage: "Number of trees (default training.n_estimators)"},
			&cli.IntFlag{Name: "max-depth", Usage: "Maximum tree depth (default training.max_depth)"},
			&cli.Int64Flag{Name: "seed", Usage: "Random seed (default training.random_state)"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if c.IsSet("data") {
				cfg.Model.DataPath = c.String("data")
			}
			if c.IsSet("model-dir") {
				cfg.Model.Dir = c.String("model-dir")
			}
			params := cfg.Training.ForestParams
			if c.IsSet("trees") {
				params.NEstimators = c.Int("trees")
			}
			if c.IsSet("max-depth") {
				params.MaxDepth = c.Int("max-depth")
			}
			if c.IsSet("seed") {
				params.RandomState = c.Int64("seed")
			}

			if err := db.InitDB(cfg.Database.Path); err != nil {
				logger.Warn("training log disabled", zap.Error(err))
			} else {
				defer db.Close()
			}

			res, err := training.Run(c.Context, training.Options{
				DataPath:       cfg.Model.DataPath,
				Encoding:       cfg.Model.Encoding,
				ModelDir:       cfg.Model.Dir,
				ModelFile:      cfg.Model.ModelFile,
				MetadataFile:   cfg.Model.MetadataFile,
				Params:         params,
				TestRatio:      cfg.Training.TestRatio,
				StrictCleaning: cfg.Training.StrictCleaning,
				Logger:         logger,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "model saved to %s\n", res.ModelPath)
			fmt.Fprintf(c.App.Writer, "rows rejected=%d flagged=%d\n", res.Quality.Rejected, res.Quality.Flagged)
			fmt.Fprintf(c.App.Writer, "accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f auc=%.4f\n",
				res.Metrics.Accuracy, res.Metrics.Precision, res.Metrics.Recall, res.Metrics.F1Score, res.Metrics.AUC)
			fmt.Fprintf(c.App.Writer, "smoke prediction=%d probability=%.4f\n", res.SmokePrediction, res.SmokeProbability)
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the web form, JSON API and websocket",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (default http.port)", EnvVars: []string{"HEARTRISK_PORT"}},
			&cli.StringFlag{Name: "host", Usage: "Listen host (default http.host)", EnvVars: []string{"HEARTRISK_HOST"}},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if c.IsSet("port") {
				cfg.Http.Port = c.Int("port")
			}
			if c.IsSet("host") {
				cfg.Http.Host = c.String("host")
			}

			if _, err := os.Stat(cfg.ModelPath()); err != nil {
				return fmt.Errorf("model file %s not found, run `heartrisk train` first", cfg.ModelPath())
			}

			if err := db.InitDB(cfg.Database.Path); err != nil {
				return fmt.Errorf("initialize database: %w", err)
			}
			defer db.Close()
			logger.Info("database initialized", zap.String("path", cfg.Database.Path))

			registry := predict.NewRegistry(cfg.ModelPath(), cfg.MetadataPath(), logger)
			if err := registry.Reload(); err != nil {
				return err
			}
			service, err := predict.NewService(registry, cfg.Cache.Size, logger)
			if err != nil {
				return err
			}
			groups, err := report.LoadAgeGroups(cfg.Model.DataPath, cfg.Model.Encoding)
			if err != nil {
				logger.Warn("age-group comparison disabled", zap.Error(err))
				groups = nil
			}
			api, err := webhttp.NewAPI(service, groups, logger)
			if err != nil {
				return err
			}
			server := webhttp.NewServer(webhttp.ServerConfig{
				Addr:           cfg.Addr(),
				Timeout:        cfg.Http.Timeout,
				MaxBodyBytes:   cfg.Http.MaxBodyBytes,
				AllowedOrigins: cfg.Http.AllowedOrigins,
			}, api)

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(server.Start)
			if cfg.Model.Watch {
				g.Go(func() error { return registry.Watch(ctx) })
			}
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Stop(shutdownCtx)
			})
			err = g.Wait()
			logger.Info("exiting")
			return err
		},
	}
}

func predictCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "JSON file with one record (- for stdin)"},
	}
	for _, spec := range ml.FeatureSpecs() {
		flags = append(flags, &cli.Float64Flag{Name: spec.Name, Usage: spec.Label, Value: spec.Default})
	}

	return &cli.Command{
		Name:  "predict",
		Usage: "Score one record and print the result as JSON",
		Flags: flags,
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			registry := predict.NewRegistry(cfg.ModelPath(), cfg.MetadataPath(), logger)
			if err := registry.Reload(); err != nil {
				return err
			}
			service, err := predict.NewService(registry, 0, logger)
			if err != nil {
				return err
			}

			var record map[string]float64
			if path := c.String("input"); path != "" {
				record, err = readRecord(service, path, c.App.Reader)
				if err != nil {
					return err
				}
			} else {
				record = make(map[string]float64)
				for _, name := range ml.FeatureNames() {
					record[name] = c.Float64(name)
				}
			}

			result, err := service.Predict(c.Context, record)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func readRecord(service *predict.Service, path string, stdin io.Reader) (map[string]float64, error) {
	in := stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		in = file
	}
	var document map[string]interface{}
	if err := json.NewDecoder(in).Decode(&document); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return service.Decode(document)
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Check model artifacts and the health of a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "Server base URL (default from http config)"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "Health check timeout"},
			&cli.BoolFlag{Name: "skip-health", Usage: "Only check files"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			var failed []string
			for _, path := range []string{cfg.ModelPath(), cfg.MetadataPath(), cfg.Model.DataPath} {
				if _, err := os.Stat(path); err != nil {
					fmt.Fprintf(c.App.Writer, "MISSING %s\n", path)
					failed = append(failed, filepath.Base(path))
					continue
				}
				fmt.Fprintf(c.App.Writer, "OK      %s\n", path)
			}

			if !c.Bool("skip-health") {
				base := c.String("url")
				if base == "" {
					base = "http://" + cfg.Addr()
				}
				if err := checkHealth(c.Context, base+"/api/health", c.Duration("timeout")); err != nil {
					fmt.Fprintf(c.App.Writer, "FAILED  health: %v\n", err)
					failed = append(failed, "health")
				} else {
					fmt.Fprintf(c.App.Writer, "OK      %s/api/health\n", base)
				}
			}

			if len(failed) > 0 {
				return cli.Exit(fmt.Sprintf("verification failed: %v", failed), 1)
			}
			fmt.Fprintln(c.App.Writer, "all checks passed")
			return nil
		},
	}
}

func checkHealth(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	var body struct {
		ModelLoaded bool `json:"model_loaded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if !body.ModelLoaded {
		return errors.New("server reports no model loaded")
	}
	return nil
}

func genDataCommand() *cli.Command {
	return &cli.Command{
		Name:  "gen-data",
		Usage: "Write a synthetic training CSV for demos",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output CSV (default model.data_path)"},
			&cli.IntFlag{Name: "rows", Value: 918, Usage: "Number of rows"},
			&cli.Int64Flag{Name: "seed", Value: 42, Usage: "Random seed"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if c.Int("rows") < 10 {
				return errors.New("rows must be at least 10")
			}

			out := cfg.Model.DataPath
			if c.IsSet("out") {
				out = c.String("out")
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			file, err := os.Create(out)
			if err != nil {
				return err
			}
			ds := ml.SyntheticDataset(c.Int("rows"), c.Int64("seed"))
			if err := ml.WriteCSV(file, ds); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			logger.Info("synthetic data written", zap.String("path", out), zap.Int("rows", ds.Len()))
			return nil
		},
	}
}
