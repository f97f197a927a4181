package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/browser"
	"github.com/sarchlab/osim/monitoring"
	"github.com/sarchlab/osim/sim"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a simulation over HTTP, advancing it in real time.",
		Args:  cobra.NoArgs,
		RunE:  serveSimulation,
	}

	serveCmd.Flags().Int("port", 0,
		"Port of the monitor. A random port is used if not set.")
	serveCmd.Flags().Float64("time-scale", 1,
		"Virtual seconds that pass in one real second.")
	serveCmd.Flags().Float64("duration", 0,
		"Stop after this many virtual seconds. Zero runs until interrupted.")
	serveCmd.Flags().Int("processes", 0, "Number of processes to create.")
	serveCmd.Flags().String("record", "",
		"Record the trace into the given SQLite database (without suffix).")
	serveCmd.Flags().Bool("open", false, "Open the monitor in a browser.")

	return serveCmd
}

func serveSimulation(cmd *cobra.Command, _ []string) error {
	logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)

	// Requests create events from their own goroutines.
	sim.SetIDGenerator(sim.XIDGenerator{})

	s, err := newSession(cmd, logger)
	if err != nil {
		return err
	}

	n, _ := cmd.Flags().GetInt("processes")
	if err := createProcesses(s.kernel, n); err != nil {
		return err
	}

	port, _ := cmd.Flags().GetInt("port")
	scale, _ := cmd.Flags().GetFloat64("time-scale")
	duration, _ := cmd.Flags().GetFloat64("duration")
	if scale <= 0 {
		return fmt.Errorf("time scale must be positive, got %g", scale)
	}

	m := monitoring.NewMonitor(s.kernel).
		WithTimeScale(scale).
		WithLogger(logger)
	if port != 0 {
		m.WithPortNumber(port)
	}
	url := m.StartServer()

	if open, _ := cmd.Flags().GetBool("open"); open {
		if err := browser.OpenURL(url); err != nil {
			logger.Printf("cannot open browser: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = m.RunRealTime(ctx, sim.VTimeInSec(duration))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	report(cmd.OutOrStdout(), s)

	return s.close()
}
