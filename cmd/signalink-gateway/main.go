// ABOUTME: Entry point for the signalink realtime gateway
// ABOUTME: Terminates WebSocket sessions and fans messages out through Kafka and Redis

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
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/signalink/internal/auth"
	"github.com/2389/signalink/internal/broker"
	"github.com/2389/signalink/internal/config"
	"github.com/2389/signalink/internal/realtime"
	"github.com/2389/signalink/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _                   _ _       _
 ___(_) __ _ _ __   __ _| (_)_ __ | | __
/ __| |/ _' | '_ \ / _' | | | '_ \| |/ /
\__ \ | (_| | | | | (_| | | | | | |   <
|___/_|\__, |_| |_|\__,_|_|_|_| |_|_|\_\
       |___/
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: signalink-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve           Start the realtime gateway")
		fmt.Println("  init [--demo]   Create database tables (--demo seeds demo users and a channel)")
		fmt.Println("  health          Check gateway health")
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
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    gateway %s\n\n", version)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Environment: %s\n", cfg.Environment)
	green.Print("    ▶ ")
	fmt.Printf("WebSocket:   ws://%s/ws\n", cfg.GatewayAddr())
	green.Print("    ▶ ")
	fmt.Printf("Kafka:       %s\n", cfg.KafkaBootstrapServers)

	fmt.Println()

	logger.Info("starting signalink-gateway",
		"version", version,
		"ws_addr", cfg.GatewayAddr(),
		"kafka", cfg.KafkaBootstrapServers,
	)

	// Connect dependencies
	st, err := store.NewMySQLStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to mysql: %w", err)
	}
	defer st.Close()

	bus, err := broker.NewKafkaBus(broker.BusConfig{
		Seeds:       cfg.KafkaSeeds(),
		GroupPrefix: "signalink-gateway",
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("connecting to kafka: %w", err)
	}
	defer bus.Close()

	kv, err := broker.NewRedisKV(cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer kv.Close()

	verifier, err := auth.NewJWTVerifier([]byte(cfg.SecretKey), cfg.Algorithm)
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	// Create and run the gateway
	srv := realtime.New(cfg, realtime.Deps{
		Bus:      bus,
		KV:       kv,
		Store:    st,
		Verifier: verifier,
		Logger:   logger,
	})

	return srv.Run(ctx)
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

	var handler slog.Handler
	if cfg.Environment == "development" {
		handler = &colorHandler{
			level: level,
		}
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// runInit creates the database tables and optionally seeds demo data:
// two JWT-only demo accounts, a #general channel, and ready-to-use tokens.
//
// Safe to rerun: schema statements are IF NOT EXISTS and demo rows use
// deterministic IDs with upsert semantics.
func runInit(ctx context.Context) error {
	demo := false
	for _, arg := range os.Args[2:] {
		switch arg {
		case "--demo":
			demo = true
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	green := color.New(color.FgGreen)

	st, err := store.NewMySQLStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to mysql: %w", err)
	}
	defer st.Close()

	if err := st.InitChatSchema(ctx); err != nil {
		return fmt.Errorf("creating chat schema: %w", err)
	}
	green.Println("  ✓ Chat tables ready")

	if err := st.InitMetricsSchema(ctx); err != nil {
		return fmt.Errorf("creating metrics schema: %w", err)
	}
	green.Println("  ✓ Metrics tables ready")

	if demo {
		if err := seedDemo(ctx, cfg, st); err != nil {
			return err
		}
	}

	fmt.Println()
	green.Println("  Init complete!")
	fmt.Println()
	fmt.Println("    signalink-gateway serve      # start the gateway")
	fmt.Println("    signalink-analytics serve    # start the analytics service")
	fmt.Println()

	return nil
}

// demoID derives a stable UUID from a seed name so reruns hit the same rows.
func demoID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("signalink.demo/"+name)).String()
}

func seedDemo(ctx context.Context, cfg *config.Config, st *store.MySQLStore) error {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	now := time.Now().UTC()

	users := []*store.User{
		{ID: demoID("user/ada"), Username: "ada", Email: "ada@signalink.local"},
		{ID: demoID("user/grace"), Username: "grace", Email: "grace@signalink.local"},
	}
	for _, u := range users {
		u.PasswordHash = "!" // token-only demo account, no password login
		u.IsActive = true
		u.IsVerified = true
		u.CreatedAt = now
		if err := st.UpsertUser(ctx, u); err != nil {
			return fmt.Errorf("seeding user %s: %w", u.Username, err)
		}
	}

	description := "Demo channel seeded by signalink-gateway init"
	channel := &store.Channel{
		ID:          demoID("channel/general"),
		Name:        "general",
		Description: &description,
		CreatedBy:   users[0].ID,
		CreatedAt:   now,
	}
	if err := st.UpsertChannel(ctx, channel); err != nil {
		return fmt.Errorf("seeding channel %s: %w", channel.Name, err)
	}

	for _, u := range users {
		member := &store.ChannelMember{
			ID:        demoID("member/" + u.Username),
			ChannelID: channel.ID,
			UserID:    u.ID,
		}
		if err := st.AddChannelMember(ctx, member); err != nil {
			return fmt.Errorf("adding %s to %s: %w", u.Username, channel.Name, err)
		}
	}

	green.Println("  ✓ Seeded demo users and #general")

	verifier, err := auth.NewJWTVerifier([]byte(cfg.SecretKey), cfg.Algorithm)
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	expiresAt := now.Add(cfg.TokenTTL())

	fmt.Println()
	cyan.Println("  Demo accounts")
	cyan.Println("  -------------")
	fmt.Printf("  Channel: general (%s)\n", channel.ID)
	fmt.Printf("  Tokens expire: %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println()

	for _, u := range users {
		token, err := verifier.Generate(u.ID, u.Username, cfg.TokenTTL())
		if err != nil {
			return fmt.Errorf("generating token for %s: %w", u.Username, err)
		}
		fmt.Printf("  %s (%s):\n", u.Username, u.ID)
		fmt.Printf("    %s\n", token)
		fmt.Println()
	}

	fmt.Println("  Try it:")
	fmt.Printf("    signalink-cli chat --channel %s --token <token>\n", channel.ID)

	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.GatewayAddr())
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
