// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"soukou/cmd"
	applog "soukou/internal/log"
	"soukou/pkg/build"
)

func main() {
	if err := build.Initialize(); err != nil {
		applog.Debugf("Build: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		stop()
		applog.Fatalf("%v", err)
	}
}
