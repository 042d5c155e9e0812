package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/kestrelhq/kestrel/cmd"
	"github.com/kestrelhq/kestrel/internal/observability"
)

const panicLogFile = "kestrel-panic.log"

func main() {
	defer handlePanic()

	// Interrupts cancel the context so a running task aborts between
	// actions instead of mid-gesture.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

// handlePanic flushes logs and writes the stack to a file so a crash in
// the middle of desktop actuation leaves a trail.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	message := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := os.WriteFile(panicLogFile, []byte(message), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to write panic log: %v\n%s\n", err, message)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "CRASH DETECTED. Details logged to %s\n", panicLogFile)
	os.Exit(1)
}
