// ABOUTME: Operator CLI for the signalink chat fabric
// ABOUTME: Mints JWT tokens, chats over the gateway WebSocket, and checks service health

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/2389/signalink/internal/auth"
	"github.com/2389/signalink/internal/client"
	"github.com/2389/signalink/internal/protocol"
)

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
		printUsage()
		os.Exit(1)
	}

	// Same convention as the services: a .env in the working directory
	// fills in anything the real environment leaves unset.
	_ = godotenv.Load()

	gatewayURL := os.Getenv("SIGNALINK_GATEWAY")
	if gatewayURL == "" {
		gatewayURL = "ws://localhost:8001"
	}
	analyticsURL := os.Getenv("SIGNALINK_ANALYTICS")
	if analyticsURL == "" {
		analyticsURL = "http://localhost:8002"
	}
	token := os.Getenv("SIGNALINK_TOKEN")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "token":
		err = cmdToken(args)
	case "chat":
		err = cmdChat(ctx, gatewayURL, token, args)
	case "health":
		err = cmdHealth(ctx, gatewayURL, analyticsURL)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: signalink-cli <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  token --username <name>   Mint a JWT token for a user")
	fmt.Println("  chat --channel <id>       Join a channel and chat interactively")
	fmt.Println("  health                    Check gateway and analytics health")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  SIGNALINK_GATEWAY        Gateway WebSocket URL (default: ws://localhost:8001)")
	fmt.Println("  SIGNALINK_ANALYTICS      Analytics HTTP URL (default: http://localhost:8002)")
	fmt.Println("  SIGNALINK_TOKEN          JWT token for chat (or pass --token)")
	fmt.Println("  SECRET_KEY               Signing secret, required by the token command")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  signalink-cli token --username ada")
	fmt.Println("  export SIGNALINK_TOKEN=\"eyJhbG...\"")
	fmt.Println("  signalink-cli chat --channel <channel-id>")
	fmt.Println("  signalink-cli health")
	fmt.Println()
}

// cmdToken mints a JWT locally with the shared signing secret. No server
// round-trip: any token signed with SECRET_KEY is valid at the gateway.
func cmdToken(args []string) error {
	var userID, username string
	var ttl time.Duration

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--username", "-u":
			if i+1 < len(args) {
				username = args[i+1]
				i++
			}
		case "--user-id":
			if i+1 < len(args) {
				userID = args[i+1]
				i++
			}
		case "--ttl", "-t":
			if i+1 < len(args) {
				d, err := time.ParseDuration(args[i+1])
				if err != nil {
					return fmt.Errorf("invalid ttl: %w", err)
				}
				ttl = d
				i++
			}
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if username == "" {
		return fmt.Errorf("usage: token --username <name> [--user-id <uuid>] [--ttl <duration>]")
	}

	secret := os.Getenv("SECRET_KEY")
	if secret == "" {
		return fmt.Errorf("SECRET_KEY environment variable is required")
	}
	algorithm := os.Getenv("ALGORITHM")
	if algorithm == "" {
		algorithm = "HS256"
	}

	if userID == "" {
		userID = uuid.New().String()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	verifier, err := auth.NewJWTVerifier([]byte(secret), algorithm)
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	token, err := verifier.Generate(userID, username, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	fmt.Println()
	green.Println("  Token created")
	fmt.Println()
	cyan.Println("  User ID:   " + userID)
	cyan.Println("  Username:  " + username)
	cyan.Println("  Expires:   " + time.Now().UTC().Add(ttl).Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  Token (keep this secret!):")
	fmt.Println()
	fmt.Println("  " + token)
	fmt.Println()

	return nil
}

// cmdChat joins one channel and runs a line-oriented chat loop. Incoming
// frames print as they arrive; stdin lines are sent as text messages.
func cmdChat(ctx context.Context, gatewayURL, token string, args []string) error {
	var channelID string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--channel", "-c":
			if i+1 < len(args) {
				channelID = args[i+1]
				i++
			}
		case "--token", "-t":
			if i+1 < len(args) {
				token = args[i+1]
				i++
			}
		case "--gateway", "-g":
			if i+1 < len(args) {
				gatewayURL = args[i+1]
				i++
			}
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if channelID == "" {
		return fmt.Errorf("usage: chat --channel <id> [--token <jwt>] [--gateway <url>]")
	}
	if token == "" {
		return fmt.Errorf("no token: set SIGNALINK_TOKEN or pass --token")
	}

	c, err := client.Dial(ctx, gatewayURL, token)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", gatewayURL, err)
	}
	defer c.Close()

	frames := make(chan *protocol.ServerFrame, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			frame, err := c.Read()
			if err != nil {
				readErr <- err
				return
			}
			frames <- frame
		}
	}()

	if err := c.Subscribe(channelID); err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("Joined channel %s (Ctrl+D to exit, /help for commands)\n\n", channelID)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fmt.Println("disconnected")
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)

		case frame := <-frames:
			printFrame(frame)

		case line, ok := <-lines:
			if !ok {
				// stdin closed (Ctrl+D)
				fmt.Println()
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			switch line {
			case "/quit", "/exit", "/q":
				return nil
			case "/help":
				printChatHelp()
			case "/ping":
				if err := c.Ping(); err != nil {
					fmt.Fprintf(os.Stderr, "Error sending ping: %v\n", err)
				}
			default:
				if err := c.SendMessage(channelID, line, protocol.MessageTypeText, nil); err != nil {
					fmt.Fprintf(os.Stderr, "Error sending: %v\n", err)
				}
			}
		}
	}
}

func printChatHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /ping          Check the connection")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Leave the channel and exit")
}

func printFrame(frame *protocol.ServerFrame) {
	dim := color.New(color.Faint)
	ts := color.HiBlackString(frame.Timestamp.Local().Format("15:04:05"))

	switch frame.Type {
	case protocol.TypeMessageReceive:
		fmt.Printf("%s %s: %s\n", ts, color.CyanString(frame.Username), frame.Content)

	case protocol.TypeTypingIndicator:
		if frame.IsTyping != nil && *frame.IsTyping {
			dim.Printf("%s %s is typing...\n", ts, frame.Username)
		}

	case protocol.TypePresenceUpdate:
		dim.Printf("%s user %s is %s\n", ts, frame.UserID, frame.Status)

	case protocol.TypeSuccess:
		dim.Printf("%s ✓ %s\n", ts, frame.Message)

	case protocol.TypeError:
		color.Red("%s [error] %s\n", ts, frame.Error)

	case protocol.TypePong:
		dim.Printf("%s pong\n", ts)
	}
}

// cmdHealth probes both services and prints a one-line summary for each.
func cmdHealth(ctx context.Context, gatewayURL, analyticsURL string) error {
	gatewayOK := checkService(ctx, "gateway", healthURL(gatewayURL))
	analyticsOK := checkService(ctx, "analytics", healthURL(analyticsURL))

	if !gatewayOK || !analyticsOK {
		return fmt.Errorf("health check failed")
	}
	return nil
}

// healthURL turns a service base URL into its health endpoint, mapping
// WebSocket schemes onto HTTP ones.
func healthURL(base string) string {
	switch {
	case strings.HasPrefix(base, "ws://"):
		base = "http://" + strings.TrimPrefix(base, "ws://")
	case strings.HasPrefix(base, "wss://"):
		base = "https://" + strings.TrimPrefix(base, "wss://")
	}
	return strings.TrimSuffix(base, "/") + "/health"
}

func checkService(ctx context.Context, name, url string) bool {
	red := color.New(color.FgRed)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		red.Printf("  ✗ %-10s %v\n", name, err)
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		red.Printf("  ✗ %-10s unreachable: %v\n", name, err)
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		red.Printf("  ✗ %-10s reading response: %v\n", name, err)
		return false
	}

	if resp.StatusCode != http.StatusOK {
		red.Printf("  ✗ %-10s status %d\n", name, resp.StatusCode)
		return false
	}

	var health struct {
		Status   string `json:"status"`
		Broker   string `json:"broker"`
		Redis    string `json:"redis"`
		Database string `json:"database"`
		Consumer string `json:"consumer"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		red.Printf("  ✗ %-10s parsing response: %v\n", name, err)
		return false
	}

	var details []string
	for _, dep := range []struct{ name, state string }{
		{"broker", health.Broker},
		{"redis", health.Redis},
		{"database", health.Database},
		{"consumer", health.Consumer},
	} {
		if dep.state != "" {
			details = append(details, dep.name+" "+dep.state)
		}
	}

	line := fmt.Sprintf("  ✓ %-10s %s", name, health.Status)
	if len(details) > 0 {
		line += " (" + strings.Join(details, ", ") + ")"
	}

	if health.Status == "healthy" {
		color.New(color.FgGreen).Println(line)
	} else {
		color.New(color.FgYellow).Println(line)
	}
	return true
}
