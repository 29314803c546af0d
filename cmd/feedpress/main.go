package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"FeedPress/internal/app"
	"FeedPress/internal/config"
	"FeedPress/internal/logging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	root := &cli.Command{
		Name:  "feedpress",
		Usage: "Feed ingestion and search-indexing notifications",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to the YAML config (overrides FEEDPRESS_CONFIG)"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run scheduled sweeps, the queue worker and the admin API",
				Action: serve,
			},
			{
				Name:  "sweep",
				Usage: "Sweep every active feed once, or a single feed",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "feed", Usage: "Feed id to sweep"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(ctx context.Context, a *app.Application) error {
						defer a.Queue().Wait()
						if id := strings.TrimSpace(c.String("feed")); id != "" {
							res, err := a.Pipeline().SweepFeed(ctx, id)
							if err != nil {
								return err
							}
							return printJSON(res)
						}
						summary, err := a.Pipeline().SweepAll(ctx)
						if err != nil {
							return err
						}
						return printJSON(summary)
					})
				},
			},
			{
				Name:  "reset-daily",
				Usage: "Reset daily publish counters of feeds whose day rolled over",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(ctx context.Context, a *app.Application) error {
						n, err := a.Pipeline().ResetDaily(ctx)
						if err != nil {
							return err
						}
						fmt.Printf("reset %d feed(s)\n", n)
						return nil
					})
				},
			},
			{
				Name:  "test-feed",
				Usage: "Fetch a feed and print the first extracted items without publishing",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "url", UsageText: "feed url"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					url := strings.TrimSpace(c.StringArg("url"))
					if url == "" {
						return fmt.Errorf("feed url is required")
					}
					return withApp(ctx, c, func(ctx context.Context, a *app.Application) error {
						samples, err := a.Pipeline().TestFeed(ctx, url)
						if err != nil {
							return err
						}
						return printJSON(samples)
					})
				},
			},
			queueCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func queueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect and control the indexing queue",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show per-state counts and indexing stats",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(ctx context.Context, a *app.Application) error {
						st, err := a.Queue().Status(ctx)
						if err != nil {
							return err
						}
						return printJSON(st)
					})
				},
			},
			{
				Name:  "list",
				Usage: "List the most recent queue items",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Number of items", Value: 50},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(ctx context.Context, a *app.Application) error {
						items, err := a.Queue().List(ctx, c.Int("limit"))
						if err != nil {
							return err
						}
						return printJSON(items)
					})
				},
			},
			{
				Name:  "clear",
				Usage: "Delete every queue item",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(ctx context.Context, a *app.Application) error {
						n, err := a.Queue().Clear(ctx)
						if err != nil {
							return err
						}
						fmt.Printf("deleted %d item(s)\n", n)
						return nil
					})
				},
			},
			{
				Name:  "retry-failed",
				Usage: "Reset failed items to pending and drain",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(ctx context.Context, a *app.Application) error {
						defer a.Queue().Wait()
						n, err := a.Queue().RetryFailed(ctx)
						if err != nil {
							return err
						}
						fmt.Printf("reset %d item(s)\n", n)
						return nil
					})
				},
			},
			{
				Name:  "drain",
				Usage: "Process pending items until none remain",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(ctx context.Context, a *app.Application) error {
						res, err := a.Queue().Drain(ctx)
						if err != nil {
							return err
						}
						return printJSON(res)
					})
				},
			},
		},
	}
}

func loadConfig(c *cli.Command) config.Config {
	if path := strings.TrimSpace(c.String("config")); path != "" {
		_ = os.Setenv("FEEDPRESS_CONFIG", path)
	}
	return config.Load()
}

// withApp wires the application for a one-shot command and releases it afterwards.
func withApp(ctx context.Context, c *cli.Command, run func(context.Context, *app.Application) error) error {
	cfg := loadConfig(c)
	logger := logging.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		a.Queue().Close()
		if cerr := a.Close(); cerr != nil {
			logger.Error("close application", "error", cerr)
		}
	}()
	return run(ctx, a)
}

func serve(ctx context.Context, c *cli.Command) error {
	cfg := loadConfig(c)
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case runErr = <-a.Errors():
		logger.Error("admin api stopped", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Stop(shutdownCtx); err != nil {
		logger.Error("application stopped with errors", "error", err)
	}
	return runErr
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
