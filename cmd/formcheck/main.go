// Command formcheck syncs ride telemetry and IMU captures, correlates rider
// stability with speed and heart rate, and replays orientation tracks.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "time/tzdata"

	"github.com/formcheck/formcheck/internal/monitoring"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		monitoring.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
