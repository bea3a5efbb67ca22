package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/gpgbridge/internal/config"
	"github.com/mattjoyce/gpgbridge/internal/page"
	"github.com/mattjoyce/gpgbridge/internal/tui/watch"
)

// EnvToken supplies the bearer token for watch.
const EnvToken = "GPGBRIDGE_TOKEN"

// serverURL resolves the API base URL from an explicit flag or the config.
func serverURL(explicit, configPath string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return "", err
	}
	return "http://" + cfg.API.Listen, nil
}

func runCall(args []string) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	apiURL := fs.String("url", "", "Relay base URL (default: from api.listen)")
	origin := fs.String("origin", "http://localhost", "Origin to claim for the page")
	txid := fs.String("txid", "", "Transaction id (default: random)")
	timeout := fs.Duration("timeout", 90*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: gpgbridge call [flags] <method> [name=value ...]")
		return 1
	}

	method := fs.Arg(0)
	params := make(map[string]string, fs.NArg()-1)
	for _, kv := range fs.Args()[1:] {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			fmt.Fprintf(os.Stderr, "Error: parameter %q must be name=value\n", kv)
			return 1
		}
		if value == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: read stdin: %v\n", err)
				return 1
			}
			value = string(data)
		}
		params[name] = value
	}

	base, err := serverURL(*apiURL, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := page.NewClient(base, *origin, *timeout).Call(ctx, method, *txid, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	if resp.IsError {
		return 2
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	apiURL := fs.String("url", "", "Server base URL (default: from api.listen)")
	token := fs.String("token", os.Getenv(EnvToken), "Bearer token with events:ro scope")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	base, err := serverURL(*apiURL, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	if _, err := tea.NewProgram(watch.New(base, *token)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func printCallHelp() {
	fmt.Println("Usage: gpgbridge call [flags] <method> [name=value ...]")
	fmt.Println()
	fmt.Println("Sends one request through a running relay the way a web page would and")
	fmt.Println("prints the reply. A value of - is read from stdin. Exits 2 when the")
	fmt.Println("reply carries isError.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --url URL        Relay base URL (default: from api.listen)")
	fmt.Println("  --origin ORIGIN  Origin to claim (default: http://localhost)")
	fmt.Println("  --txid ID        Transaction id (default: random)")
	fmt.Println("  --timeout D      Request timeout (default: 90s)")
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println("  gpgbridge call sign keyid=0xDEADBEEF rawtext=- < message.txt")
}

func printWatchHelp() {
	fmt.Println("Usage: gpgbridge watch [--url URL] [--token TOKEN]")
	fmt.Println()
	fmt.Println("Live view of requests, capability state and warnings from /events.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --url URL        Server base URL (default: from api.listen)")
	fmt.Println("  --token TOKEN    Bearer token (or " + EnvToken + " env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Scroll requests")
	fmt.Println("  c                Clear the current warning")
}
