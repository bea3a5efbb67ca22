package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/gpgbridge/internal/config"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "hash", "lock":
		return runConfigHash(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

type checkResult struct {
	Valid     bool   `json:"valid"`
	Path      string `json:"path,omitempty"`
	Transport string `json:"transport,omitempty"`
	Listen    string `json:"listen,omitempty"`
	State     string `json:"state,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	var res checkResult
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		res.Error = err.Error()
	} else {
		res = checkResult{
			Valid:     true,
			Path:      cfg.SourcePath,
			Transport: cfg.Relay.Transport,
			Listen:    cfg.API.Listen,
			State:     cfg.State.Path,
		}
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
	} else if res.Valid {
		path := res.Path
		if path == "" {
			path = "(defaults)"
		}
		fmt.Printf("Configuration OK: %s\n", path)
		fmt.Printf("  transport: %s\n  listen:    %s\n  state:     %s\n", res.Transport, res.Listen, res.State)
	} else {
		fmt.Fprintf(os.Stderr, "Configuration check FAILED:\n%s\n", res.Error)
	}

	if !res.Valid {
		return 1
	}
	return 0
}

func runConfigHash(args []string) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := config.Discover(*configPath)
	if errors.Is(err, config.ErrNotFound) {
		fmt.Fprintln(os.Stderr, "Error: no config file found; pass --config or set "+config.EnvConfig)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// refuse to bless a file that does not parse
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg, err := config.Parse(data)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to hash invalid config: %v\n", err)
		return 1
	}

	manifest, hash, err := config.WriteChecksums(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Updated %s\n  %s  %s\n", manifest, hash, path)
	return 0
}

func printConfigHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: gpgbridge config <action> [--config PATH]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  check [--json]   Load and validate the configuration, verifying checksums")
	fmt.Fprintln(w, "  hash             Record the config file's BLAKE3 hash in "+config.ChecksumFile)
}
