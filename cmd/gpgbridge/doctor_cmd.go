package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/gpgbridge/internal/config"
	"github.com/mattjoyce/gpgbridge/internal/doctor"
	"github.com/mattjoyce/gpgbridge/internal/prefs"
)

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration check FAILED:\n%v\n", err)
		return 1
	}

	ctx := context.Background()
	var p prefs.Service
	// never create a store just to inspect it
	if cfg.State.Path != config.MemoryState {
		if _, err := os.Stat(cfg.State.Path); err == nil {
			st, err := openStore(ctx, cfg, false)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to open preferences: %v\n", err)
				return 1
			}
			defer st.Close()
			p = st
		}
	}

	res := doctor.New(cfg, p).Check(ctx)
	if *jsonOut {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
	} else {
		printDoctorResult(res)
	}
	if !res.Valid {
		return 1
	}
	return 0
}

func printDoctorResult(res *doctor.Result) {
	for _, i := range res.Errors {
		fmt.Printf("ERROR   [%s] %s: %s\n", i.Category, i.Field, i.Message)
	}
	for _, i := range res.Warnings {
		fmt.Printf("WARNING [%s] %s: %s\n", i.Category, i.Field, i.Message)
	}
	if res.Valid {
		fmt.Printf("Doctor: OK (%d warnings)\n", len(res.Warnings))
	} else {
		fmt.Printf("Doctor: FAILED (%d errors, %d warnings)\n", len(res.Errors), len(res.Warnings))
	}
}

func printDoctorHelp() {
	fmt.Println("Usage: gpgbridge doctor [--config PATH] [--json]")
	fmt.Println()
	fmt.Println("Checks the deployment: the gpg binary and GnuPG home, whether the state")
	fmt.Println("store is locked by a running server, API exposure, token scopes and the")
	fmt.Println("relay target.")
}
