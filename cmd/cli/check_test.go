// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/proposalai/followups/internal/config"
	"github.com/proposalai/followups/internal/logging"
)

func TestRunChecksMemoryBackend(t *testing.T) {
	var out bytes.Buffer
	if err := runChecks(context.Background(), memoryConfig(), logging.Discard(), &out, []string{seedFile}); err != nil {
		t.Fatalf("checks: %v\n%s", err, out.String())
	}

	for _, want := range []string{"ok   config", "ok   sequences " + seedFile, "ok   store memory", "ok   scheduler lease"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out.String())
		}
	}
}

func TestRunChecksStopsAtFirstFailure(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*checkInput)
		failing string
		absent  string
	}{
		{
			name:    "invalid config",
			mutate:  func(in *checkInput) { in.cfg.BatchSize = 0 },
			failing: "FAIL config",
			absent:  "store memory",
		},
		{
			name:    "missing sequence file",
			mutate:  func(in *checkInput) { in.files = []string{"does-not-exist.yaml"} },
			failing: "FAIL sequences does-not-exist.yaml",
			absent:  "store memory",
		},
		{
			name:    "unreachable lease store",
			mutate:  func(in *checkInput) { in.cfg.RedisURL = "://not-a-url" },
			failing: "FAIL scheduler lease",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := checkInput{cfg: memoryConfig()}
			tt.mutate(&in)

			var out bytes.Buffer
			err := runChecks(context.Background(), in.cfg, logging.Discard(), &out, in.files)
			if err == nil {
				t.Fatalf("expected failure, got output:\n%s", out.String())
			}
			if !strings.Contains(out.String(), tt.failing) {
				t.Fatalf("expected %q in output, got:\n%s", tt.failing, out.String())
			}
			if tt.absent != "" && strings.Contains(out.String(), tt.absent) {
				t.Fatalf("expected checks to stop before %q, got:\n%s", tt.absent, out.String())
			}
		})
	}
}

type checkInput struct {
	cfg   config.Config
	files []string
}
