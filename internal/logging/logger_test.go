// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "WARN", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Fatalf("parseLevel(%q): expected %v got %v", tc.in, tc.want, got)
		}
	}
}

func TestProdLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "prod", "info").Info("step dispatched", "execution_id", "abc", "step", 2)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected json line, got %q (%v)", buf.String(), err)
	}
	if rec["msg"] != "step dispatched" || rec["execution_id"] != "abc" {
		t.Fatalf("unexpected record %v", rec)
	}
	if _, ok := rec["source"]; ok {
		t.Fatal("prod logger must not add source")
	}
}

func TestDevLoggerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "dev", "warn")
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, "source=") {
		t.Fatalf("expected source location in dev output, got %q", out)
	}
}

func TestNewLogger(t *testing.T) {
	if logger := NewLogger("dev", "debug"); logger == nil {
		t.Fatal("expected dev logger")
	}
	if logger := NewLogger("prod", ""); logger == nil {
		t.Fatal("expected prod logger")
	}
	Discard().Info("dropped")
}
