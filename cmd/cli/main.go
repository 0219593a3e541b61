// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/proposalai/followups/internal/config"
	"github.com/proposalai/followups/internal/logging"
)

var Version = "dev"

func main() {
	cfg := config.Load()
	logger := logging.NewStderrLogger(cfg.Env, cfg.LogLevel)

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[2:]
	var err error

	switch os.Args[1] {
	case "check":
		err = runChecks(ctx, cfg, logger, os.Stdout, args)
	case "validate":
		err = runValidate(os.Stdout, args)
	case "seed":
		err = runSeed(ctx, cfg, logger, os.Stdout, args)
	case "process-due":
		err = runProcessDue(ctx, cfg, logger, os.Stdout)
	case "escalate":
		err = runEscalate(ctx, cfg, logger, os.Stdout)
	default:
		printUsage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `usage: followups-cli <command> [flags]

commands:
  check [FILE...]                         preflight: config, sequence files, store and schema, lease
  validate FILE...                        validate YAML sequence files
  seed -org UUID [-owner UUID] FILE...    create the sequences in FILE for an organization
  process-due                             run one scheduler pass and print the summary
  escalate                                run one escalation pass and print the summary`)
}
