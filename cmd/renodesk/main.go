package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/strogmv/renodesk/internal/config"
	"github.com/strogmv/renodesk/internal/pkg/logger"
	"github.com/strogmv/renodesk/internal/pkg/tracing"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	cmd := os.Args[1]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "renodesk", cfg.OTLPURL)
	if err != nil {
		slog.Warn("tracing disabled", slog.Any("error", err))
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownTracing(context.WithoutCancel(ctx)) }()

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg)
	case "worker":
		err = runWorker(ctx, cfg)
	case "dispatch":
		err = runDispatch(ctx, cfg)
	case "reputation":
		err = runReputation(ctx, cfg)
	case "expire":
		err = runExpire(ctx, cfg, os.Args[2:])
	case "feedback":
		err = runFeedback(ctx, cfg, os.Args[2:])
	case "prune-events":
		err = runPrune(ctx, cfg)
	case "migrate":
		err = runMigrate(ctx, cfg)
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error("command failed", slog.String("command", cmd), slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("renodesk: notification delivery pipeline")
	fmt.Println("\nUsage:")
	fmt.Println("  renodesk serve          Run the HTTP API (health, metrics, feedback webhook, admin)")
	fmt.Println("  renodesk worker         Run the API, the schedules and the feedback stream consumer")
	fmt.Println("  renodesk dispatch       Run one dispatch pass over the notification queue")
	fmt.Println("  renodesk reputation     Compute and store today's reputation snapshot")
	fmt.Println("  renodesk expire         Expire inactive leads (-dry-run to only list them)")
	fmt.Println("  renodesk feedback       Apply feedback messages from files or stdin (-publish to replay onto the stream)")
	fmt.Println("  renodesk prune-events   Delete events and dedupe keys past retention")
	fmt.Println("  renodesk migrate        Apply pending database migrations")
}
