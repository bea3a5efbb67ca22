package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/mattjoyce/gpgbridge/internal/config"
	"github.com/mattjoyce/gpgbridge/internal/prefs"
)

func runPrefsNoun(args []string) int {
	if len(args) < 1 {
		printPrefsHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printPrefsHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		return runPrefsList(actionArgs)
	case "get":
		return runPrefsGet(actionArgs)
	case "set":
		return runPrefsSet(actionArgs)
	case "unset":
		return runPrefsUnset(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown prefs action: %s\n", action)
		return 1
	}
}

// prefsFlags parses the shared flags and returns the positional arguments.
func prefsFlags(name string, args []string, extra func(*flag.FlagSet)) (string, []string, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return "", nil, false
	}
	return *configPath, fs.Args(), true
}

// withPrefs opens the on-disk store without taking the server lock; a
// running server picks edits up through gpg_last_updated.
func withPrefs(configPath string, fn func(context.Context, prefs.Service) error) int {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	if cfg.State.Path == config.MemoryState {
		fmt.Fprintln(os.Stderr, "Error: state.path is :memory:, there are no stored preferences to edit.")
		return 1
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open preferences: %v\n", err)
		return 1
	}
	defer st.Close()

	if err := fn(ctx, st); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runPrefsList(args []string) int {
	var jsonOut bool
	configPath, rest, ok := prefsFlags("list", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&jsonOut, "json", false, "Output as JSON")
	})
	if !ok {
		return 1
	}
	if len(rest) > 0 {
		fmt.Fprintln(os.Stderr, "Usage: gpgbridge prefs list [--config PATH] [--json]")
		return 1
	}

	return withPrefs(configPath, func(ctx context.Context, p prefs.Service) error {
		all, err := p.All(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			data, err := json.MarshalIndent(all, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		names := make([]string, 0, len(all))
		for name := range all {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Printf("%s=%s\n", name, all[name])
		}
		return nil
	})
}

func runPrefsGet(args []string) int {
	configPath, rest, ok := prefsFlags("get", args, nil)
	if !ok {
		return 1
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: gpgbridge prefs get [--config PATH] <name>")
		return 1
	}

	return withPrefs(configPath, func(ctx context.Context, p prefs.Service) error {
		v, found, err := p.Get(ctx, rest[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s is not set", rest[0])
		}
		fmt.Println(v)
		return nil
	})
}

func runPrefsSet(args []string) int {
	var force bool
	configPath, rest, ok := prefsFlags("set", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&force, "force", false, "Allow names outside the recognized set")
	})
	if !ok {
		return 1
	}

	var name, value string
	switch len(rest) {
	case 1:
		var found bool
		name, value, found = strings.Cut(rest[0], "=")
		if !found {
			fmt.Fprintln(os.Stderr, "Usage: gpgbridge prefs set [--config PATH] [--force] <name>=<value>")
			return 1
		}
	case 2:
		name, value = rest[0], rest[1]
	default:
		fmt.Fprintln(os.Stderr, "Usage: gpgbridge prefs set [--config PATH] [--force] <name>=<value>")
		return 1
	}
	if !force && !prefs.Recognized(name) {
		fmt.Fprintf(os.Stderr, "Error: unknown preference %q (known: %s); use --force to set it anyway\n",
			name, strings.Join(prefs.Keys, ", "))
		return 1
	}

	return withPrefs(configPath, func(ctx context.Context, p prefs.Service) error {
		if err := prefs.Update(ctx, p, name, value); err != nil {
			return err
		}
		fmt.Printf("Set %s\n", name)
		return nil
	})
}

func runPrefsUnset(args []string) int {
	configPath, rest, ok := prefsFlags("unset", args, nil)
	if !ok {
		return 1
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: gpgbridge prefs unset [--config PATH] <name>")
		return 1
	}

	return withPrefs(configPath, func(ctx context.Context, p prefs.Service) error {
		if err := prefs.Remove(ctx, p, rest[0]); err != nil {
			return err
		}
		fmt.Printf("Unset %s\n", rest[0])
		return nil
	})
}

func printPrefsHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: gpgbridge prefs <action> [--config PATH]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  list [--json]            Show every stored preference")
	fmt.Fprintln(w, "  get <name>               Print one preference")
	fmt.Fprintln(w, "  set <name>=<value>       Store a preference and mark the capability stale")
	fmt.Fprintln(w, "  unset <name>             Delete a preference and mark the capability stale")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Known names: %s\n", strings.Join(prefs.Keys, ", "))
}
