// ABOUTME: Optional tsnet transport so the backend can be reached over a tailnet
// ABOUTME: Starts an embedded tailscale node and hands back an http.Client dialing through it

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"
)

// TailnetConfig configures the embedded tailscale node.
type TailnetConfig struct {
	Hostname  string
	AuthKey   string // falls back to TS_AUTHKEY
	StateDir  string // falls back to ~/.local/share/coven-lanes/tailscale
	Ephemeral bool
}

// NewTailnetHTTPClient brings up a tsnet node and returns an http.Client
// that dials through it. The returned Closer shuts the node down.
func NewTailnetHTTPClient(ctx context.Context, cfg TailnetConfig, logger *slog.Logger) (*http.Client, io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tailnet")

	if cfg.Hostname == "" {
		return nil, nil, errors.New("tailscale hostname is required")
	}

	stateDir, err := resolveTailscaleStateDir(cfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(cfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	srv := &tsnet.Server{
		Hostname:  cfg.Hostname,
		Dir:       stateDir,
		Ephemeral: cfg.Ephemeral,
		AuthKey:   authKey,
	}

	logger.Info("starting tailscale node", "hostname", cfg.Hostname, "state_dir", stateDir, "ephemeral", cfg.Ephemeral)
	status, err := srv.Up(ctx)
	if err != nil {
		_ = srv.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	if status != nil && status.Self != nil {
		logger.Info("tailscale node up", "dns_name", status.Self.DNSName, "ips", status.TailscaleIPs)
	}

	return srv.HTTPClient(), srv, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "coven-lanes", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}
