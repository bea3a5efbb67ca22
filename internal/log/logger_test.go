package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func reset() {
	logger = nil
	once = sync.Once{}
}

func TestSetup(t *testing.T) {
	reset()
	Setup("DEBUG")
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}
}

func TestSetupWithText(t *testing.T) {
	reset()
	defer reset()

	var buf bytes.Buffer
	SetupWith("warn", "text", &buf)
	Info("dropped")
	Warn("kept", "k", "v")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=kept") || !strings.Contains(out, "k=v") {
		t.Errorf("expected text record, got %q", out)
	}

	// only the first call takes effect
	var other bytes.Buffer
	SetupWith("debug", "json", &other)
	Warn("again")
	if other.Len() != 0 {
		t.Errorf("second SetupWith should be ignored, got %q", other.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	return out
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithComponent("relay").Info("hello")

	out := decodeLine(t, &buf)
	if out["component"] != "relay" {
		t.Errorf("Expected component 'relay', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithTxID(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithTxID("tx-7", "decrypt").Info("request")

	out := decodeLine(t, &buf)
	if out["txid"] != "tx-7" || out["method"] != "decrypt" {
		t.Errorf("Expected txid and method fields, got %v", out)
	}
}
