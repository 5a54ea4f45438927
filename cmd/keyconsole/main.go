// ABOUTME: Entry point for the keyconsole license key admin server
// ABOUTME: Dispatches serve, init, health, ready, audit and version commands

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/keyconsole/internal/config"
	"github.com/2389/keyconsole/internal/console"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _                                        _
 | | _____ _   _  ___ ___  _ __  ___  ___ | | ___
 | |/ / _ \ | | |/ __/ _ \| '_ \/ __|/ _ \| |/ _ \
 |   <  __/ |_| | (_| (_) | | | \__ \ (_) | |  __/
 |_|\_\___|\__, |\___\___/|_| |_|___/\___/|_|\___|
           |___/
`

// getConfigPath returns the path to the config file.
// Priority: KEYCONSOLE_CONFIG env var > XDG_CONFIG_HOME/keyconsole/config.yaml > ~/.config/keyconsole/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("KEYCONSOLE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "keyconsole", "config.yaml")
}

// getDataPath returns the path to the keyconsole data directory.
// Priority: XDG_DATA_HOME/keyconsole > ~/.local/share/keyconsole
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "keyconsole")
}

func usage() {
	fmt.Println("Usage: keyconsole <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the console server")
	fmt.Println("  init      Create a new config file interactively")
	fmt.Println("  health    Check server liveness")
	fmt.Println("  ready     Check server readiness (audit store and auth service)")
	fmt.Println("  audit     List recorded console actions")
	fmt.Println("            [--client ID] [--action NAME] [--since 24h] [--limit N]")
	fmt.Println("  version   Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runProbe(ctx, "/health")
	case "ready":
		err = runProbe(ctx, "/health/ready")
	case "audit":
		err = runAudit(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
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
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Auth:      %s\n", cfg.Backend.AuthURL)
	if cfg.Backend.KeysURL != cfg.Backend.AuthURL {
		green.Print("    ▶ ")
		fmt.Printf("Keys:      %s\n", cfg.Backend.KeysURL)
	}
	green.Print("    ▶ ")
	fmt.Printf("Audit:     %s\n", cfg.Database.Path)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}

	fmt.Println()

	logger.Info("starting keyconsole",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"auth_url", cfg.Backend.AuthURL,
	)

	c, err := console.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating console: %w", err)
	}

	return c.Run(ctx)
}

// runProbe requests a health endpoint on the configured address and prints
// the answer
func runProbe(ctx context.Context, path string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
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
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, body)
	}

	fmt.Println(string(body))
	return nil
}
