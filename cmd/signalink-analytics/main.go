// ABOUTME: Entry point for the signalink analytics service
// ABOUTME: Aggregates the Kafka message stream into metrics windows and serves the metrics API

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/signalink/internal/analytics"
	"github.com/2389/signalink/internal/broker"
	"github.com/2389/signalink/internal/config"
	"github.com/2389/signalink/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                   _       _   _
  __ _ _ __   __ _| |_   _| |_(_) ___ ___
 / _' | '_ \ / _' | | | | | __| |/ __/ __|
| (_| | | | | (_| | | |_| | |_| | (__\__ \
 \__,_|_| |_|\__,_|_|\__, |\__|_|\___|___/
                     |___/
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: signalink-analytics <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the analytics service")
		fmt.Println("  init      Create the metrics tables")
		fmt.Println("  health    Check analytics health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    analytics %s\n\n", version)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg)

	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Environment: %s\n", cfg.Environment)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:        http://%s\n", cfg.AnalyticsAddr())
	green.Print("    ▶ ")
	fmt.Printf("Kafka:       %s (group %s)\n", cfg.KafkaBootstrapServers, cfg.KafkaConsumerGroup)
	green.Print("    ▶ ")
	fmt.Printf("Windows:     %s, retained %dd\n", cfg.MetricsWindow(), cfg.MetricsRetentionDays)

	fmt.Println()

	logger.Info("starting signalink-analytics",
		"version", version,
		"http_addr", cfg.AnalyticsAddr(),
		"kafka", cfg.KafkaBootstrapServers,
		"consumer_group", cfg.KafkaConsumerGroup,
	)

	st, err := store.NewMySQLStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to mysql: %w", err)
	}
	defer st.Close()

	deps := analytics.Deps{
		Store:  st,
		Logger: logger,
	}

	// The metrics API stays up without Kafka; only aggregation stops.
	consumer, err := broker.NewEventConsumer(cfg.KafkaSeeds(), cfg.KafkaConsumerGroup, cfg.KafkaTopicMessages, logger)
	if err != nil {
		logger.Warn("kafka unavailable, serving stored metrics only", "error", err)
	} else {
		defer consumer.Close()
		deps.Consumer = consumer
	}

	svc := analytics.New(cfg, deps)
	return svc.Run(ctx)
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Environment == "development" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func runInit(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.NewMySQLStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to mysql: %w", err)
	}
	defer st.Close()

	if err := st.InitMetricsSchema(ctx); err != nil {
		return fmt.Errorf("creating metrics schema: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Println("  ✓ Metrics tables ready")
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.AnalyticsAddr())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}
