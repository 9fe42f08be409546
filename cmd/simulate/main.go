// Command simulate runs the whole bot stack against in-memory
// collaborators and verifies the mirrored records against the ledger.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/meetstake/internal/simulator"
	"github.com/okian/meetstake/pkg/logger"
)

const runTimeout = 5 * time.Minute

func main() {
	var (
		events  = flag.Int("events", 5, "Number of simulated events")
		joiners = flag.Int("joiners", 50, "Number of simulated participants")
		seed    = flag.Int64("seed", 0, "Random seed (0 picks one from the clock)")
		timeout = flag.Duration("phase-timeout", 30*time.Second, "Per-phase settle timeout")
		verbose = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	cfg := simulator.NewConfig()
	cfg.Events = *events
	cfg.Joiners = *joiners
	cfg.Seed = *seed
	cfg.PhaseTimeout = *timeout

	if err := simulator.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
