package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mental-health-navigator/high-tea/internals/apiclient"
	"github.com/mental-health-navigator/high-tea/internals/logging"
	"github.com/mental-health-navigator/high-tea/internals/tui"
)

func main() {
	var (
		serverURL string
		timeout   time.Duration
	)
	flag.StringVar(&serverURL, "server", envOr("NAVIGATOR_SERVER_URL", "http://localhost:8080"), "navigator server base URL")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "timeout for a single OTP request")
	flag.Parse()

	// The terminal belongs to the UI, so logs only go to a file when asked.
	logger := logging.Discard()
	if path := strings.TrimSpace(os.Getenv("NAVIGATOR_TUI_LOG")); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		logger = logging.New(f, envOr("LOG_LEVEL", "info"), false).With("component", "navigator-tui")
	}

	client := apiclient.New(serverURL, &http.Client{Timeout: 2 * time.Minute})

	m := tui.NewModel(tui.Config{
		Backend:     client,
		Sessions:    client,
		CallTimeout: timeout,
		ServerURL:   serverURL,
		Log:         logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()

	if client.Session() != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Logout(ctx); err != nil {
			logger.Warn(ctx, "Logout failed", "error", err)
		}
		cancel()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
