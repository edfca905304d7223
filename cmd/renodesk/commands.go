package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/strogmv/renodesk/internal/adapter/repository/postgres"
	"github.com/strogmv/renodesk/internal/bootstrap"
	"github.com/strogmv/renodesk/internal/config"
	httptransport "github.com/strogmv/renodesk/internal/transport/http"
	"github.com/strogmv/renodesk/migrations"
)

func withContainer(ctx context.Context, cfg *config.Config, fn func(c *bootstrap.RuntimeContainer) error) error {
	c, err := bootstrap.NewRuntimeContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	return withContainer(ctx, cfg, func(c *bootstrap.RuntimeContainer) error {
		return serveHTTP(ctx, cfg.HTTPAddr, c.HTTPHandler())
	})
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := httptransport.NewServer(addr, handler)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	slog.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// runWorker runs the schedules, the feedback consumer and the API until interrupted.
func runWorker(ctx context.Context, cfg *config.Config) error {
	return withContainer(ctx, cfg, func(c *bootstrap.RuntimeContainer) error {
		sub, err := c.ConsumeFeedback(ctx)
		if err != nil {
			slog.Warn("feedback stream consumer not started, webhook only", slog.Any("error", err))
		} else {
			defer func() { _ = sub.Drain() }()
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			c.Scheduler().Start(ctx)
		}()

		err = serveHTTP(ctx, cfg.HTTPAddr, c.HTTPHandler())
		<-done
		return err
	})
}

func runDispatch(ctx context.Context, cfg *config.Config) error {
	return withContainer(ctx, cfg, func(c *bootstrap.RuntimeContainer) error {
		report, err := c.Dispatcher.Run(ctx)
		if err != nil {
			return err
		}
		return printJSON(report)
	})
}

func runReputation(ctx context.Context, cfg *config.Config) error {
	return withContainer(ctx, cfg, func(c *bootstrap.RuntimeContainer) error {
		m, err := c.Reputation.Run(ctx)
		if err != nil {
			return err
		}
		return printJSON(m)
	})
}

func runExpire(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("expire", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "list matching requests without changing them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withContainer(ctx, cfg, func(c *bootstrap.RuntimeContainer) error {
		report, err := c.Expiration.Run(ctx, *dryRun)
		if err != nil {
			return err
		}
		return printJSON(report)
	})
}

// runFeedback applies feedback messages from the named files (one message per file),
// or from stdin with one JSON message per line. With -publish the messages are replayed
// onto the feedback stream for the durable consumer instead.
func runFeedback(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	publish := fs.Bool("publish", false, "publish to the feedback stream instead of applying directly")
	if err := fs.Parse(args); err != nil {
		return err
	}
	args = fs.Args()

	var messages [][]byte
	if len(args) == 0 {
		lines, err := readLines(os.Stdin)
		if err != nil {
			return err
		}
		messages = lines
	}
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		messages = append(messages, data)
	}
	return withContainer(ctx, cfg, func(c *bootstrap.RuntimeContainer) error {
		if !*publish {
			return printJSON(c.Feedback.HandleBatch(ctx, messages))
		}
		if c.NATS == nil {
			return errors.New("publishing feedback requires nats")
		}
		if err := c.NATS.EnsureStream(cfg.FeedbackStream, cfg.FeedbackSubj); err != nil {
			return err
		}
		for i, msg := range messages {
			if err := c.NATS.Publish(ctx, cfg.FeedbackSubj, msg); err != nil {
				return fmt.Errorf("publish message %d: %w", i, err)
			}
		}
		return printJSON(map[string]int{"published": len(messages)})
	})
}

func readLines(r io.Reader) ([][]byte, error) {
	var out [][]byte
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		out = append(out, append([]byte(nil), line...))
	}
	return out, sc.Err()
}

func runPrune(ctx context.Context, cfg *config.Config) error {
	return withContainer(ctx, cfg, func(c *bootstrap.RuntimeContainer) error {
		n, err := c.Prune(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]int64{"eventsDeleted": n})
	})
}

// runMigrate only needs the database, so it skips the full container.
func runMigrate(ctx context.Context, cfg *config.Config) error {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	return postgres.Migrate(ctx, pool, migrations.FS)
}
