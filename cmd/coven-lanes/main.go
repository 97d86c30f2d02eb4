// ABOUTME: Entry point for coven-lanes, a terminal client for multi-lane agent conversations
// ABOUTME: Subcommands: run (default), health and init

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-lanes/internal/client"
	"github.com/2389/coven-lanes/internal/config"
	"github.com/2389/coven-lanes/internal/conversation"
	"github.com/2389/coven-lanes/internal/logging"
	"github.com/2389/coven-lanes/internal/roles"
	"github.com/2389/coven-lanes/internal/session"
	"github.com/2389/coven-lanes/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  ___ _____   _____ _ __       | | __ _ _ __   ___  ___
 / __/ _ \ \ / / _ \ '_ \ _____| |/ _' | '_ \ / _ \/ __|
| (_| (_) \ V /  __/ | | |_____| | (_| | | | |  __/\__ \
 \___\___/ \_/ \___|_| |_|     |_|\__,_|_| |_|\___||___/
`

func main() {
	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "run":
		err = runClient(ctx)
	case "health":
		err = runHealth(ctx)
	case "init":
		err = runInit(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: coven-lanes [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run            Start the interactive client (default)")
	fmt.Println("  health         Check backend health")
	fmt.Println("  init [path]    Write a default config file")
}

func runClient(ctx context.Context) error {
	cfg, configPath, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.Setup(cfg.Logging, os.Stderr)

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	if configPath == "" {
		configPath = "(defaults)"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Backend:   %s\n", cfg.Server.URL)
	green.Print("    ▶ ")
	fmt.Printf("Ledger:    %s\n", cfg.Store.Path)
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	backend, closeBackend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	ledger, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer ledger.Close()

	sess, err := session.New(backend, session.Options{
		Store:          ledger,
		Catalog:        roles.NewCatalog(cfg.Roles.Labels, cfg.Roles.Specialists),
		PollInterval:   cfg.Sync.PollInterval,
		EchoWindow:     cfg.Sync.EchoWindow,
		CharsPerSecond: cfg.Reveal.CharsPerSecond,
		FrameInterval:  cfg.Reveal.FrameInterval,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer sess.Close()

	v := newView(sess, os.Stdout)
	go v.watch(sess.Subscribe(ctx, conversation.AllConversations))

	if _, err := sess.Create(ctx); err != nil {
		v.errorf("could not start a conversation: %v (use /new to retry)", err)
	}

	go func() { _ = sess.Run(ctx) }()

	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	if err := readLoop(ctx, os.Stdin, v); err != nil {
		return err
	}
	fmt.Println("\nGoodbye!")
	return nil
}

// readLoop feeds input lines to the view until /quit, EOF or ctx ends.
func readLoop(ctx context.Context, in io.Reader, v *view) error {
	lines := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
		} else {
			errCh <- io.EOF
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case line := <-lines:
			if quit := v.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// newBackend builds the HTTP client, joining the tailnet first when
// configured. The returned func releases the tailnet node.
func newBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*client.Client, func(), error) {
	opts := []client.Option{
		client.WithToken(cfg.Server.Token),
		client.WithLogger(logger),
	}
	release := func() {}

	if cfg.Tailscale.Enabled {
		hc, closer, err := client.NewTailnetHTTPClient(ctx, client.TailnetConfig{
			Hostname:  cfg.Tailscale.Hostname,
			AuthKey:   cfg.Tailscale.AuthKey,
			StateDir:  cfg.Tailscale.StateDir,
			Ephemeral: cfg.Tailscale.Ephemeral,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("joining tailnet: %w", err)
		}
		opts = append(opts, client.WithHTTPClient(hc))
		release = func() {
			if err := closer.Close(); err != nil {
				logger.Warn("tailnet shutdown failed", "error", err)
			}
		}
	}

	return client.New(cfg.Server.URL, opts...), release, nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := logging.Setup(cfg.Logging, os.Stderr)

	backend, closeBackend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	if err := backend.Health(ctx); err != nil {
		return err
	}
	color.New(color.FgGreen).Println("healthy")
	return nil
}

func runInit(args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		var err error
		path, _, err = config.ResolvePath()
		if err != nil {
			return err
		}
	}

	if err := config.Write(path, config.Default()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
