package cmd

import (
	"fmt"
	"io"
	"log"
	"strings"
	"text/tabwriter"

	"github.com/sarchlab/osim/datarecording"
	"github.com/sarchlab/osim/kernel"
	"github.com/sarchlab/osim/process"
	"github.com/sarchlab/osim/scheduler"
	"github.com/sarchlab/osim/sim"
	"github.com/sarchlab/osim/tracing"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation for a fixed virtual time and print a report.",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}

	runCmd.Flags().Int("processes", 4, "Number of processes to create.")
	runCmd.Flags().Float64("duration", 100, "Virtual seconds to simulate.")
	runCmd.Flags().String("record", "",
		"Record the trace into the given SQLite database (without suffix).")
	runCmd.Flags().Bool("verbose", false, "Print the log of the simulation.")
	runCmd.Flags().Bool("trace-events", false,
		"Print every event the engine handles.")

	return runCmd
}

// A session is a kernel with the tracers attached for one command.
type session struct {
	engine    *sim.SerialEngine
	kernel    *kernel.Comp
	stateTime *tracing.StateTimeTracer
	recorder  datarecording.DataRecorder
	exec      *datarecording.ExecRecorder
	tracer    *tracing.DBTracer
}

func newSession(cmd *cobra.Command, logger *log.Logger) (*session, error) {
	engine, k, err := buildKernel(cmd.Flags(), logger)
	if err != nil {
		return nil, err
	}

	s := &session{
		engine:    engine,
		kernel:    k,
		stateTime: tracing.NewStateTimeTracer(),
	}
	k.AcceptHook(s.stateTime)

	record, _ := cmd.Flags().GetString("record")
	if record != "" {
		s.recorder = datarecording.New(record)
		s.exec = datarecording.NewExecRecorder(s.recorder)
		s.exec.Start()
		s.exec.Add("Seed", fmt.Sprint(k.Config().Seed))
		s.exec.Add("Frames", fmt.Sprint(k.Config().TotalFrames))

		s.tracer = tracing.NewDBTracer(engine, s.recorder)
		tracing.Attach(k, s.tracer)
	}

	return s, nil
}

func (s *session) close() error {
	if s.recorder == nil {
		return nil
	}

	s.exec.End()
	s.tracer.Terminate()

	return s.recorder.Close()
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	logger := log.New(io.Discard, "", 0)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger = log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	}

	s, err := newSession(cmd, logger)
	if err != nil {
		return err
	}

	if traceEvents, _ := cmd.Flags().GetBool("trace-events"); traceEvents {
		s.engine.AcceptHook(sim.NewEventLogger(
			log.New(cmd.ErrOrStderr(), "", 0)))
	}

	n, _ := cmd.Flags().GetInt("processes")
	duration, _ := cmd.Flags().GetFloat64("duration")
	if n < 0 || duration < 0 {
		return fmt.Errorf("processes and duration must not be negative")
	}

	if err := createProcesses(s.kernel, n); err != nil {
		return err
	}

	if s.kernel.Mode() == scheduler.Manual && n > 0 {
		fmt.Fprintln(out, "Mode is manual, processes stay New "+
			"until the inactivity timeout.")
	}

	if err := s.engine.RunUntil(sim.VTimeInSec(duration)); err != nil {
		return err
	}

	report(out, s)

	return s.close()
}

func report(out io.Writer, s *session) {
	k := s.kernel

	fmt.Fprintf(out, "Simulated %.2f s in %s mode\n\n",
		k.Engine().CurrentTime(), k.Mode())

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tState\tPriority\tLoaded\tFaults\tAccesses")
	for _, p := range k.Processes() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d/%d\t%d\t%d\n",
			p.PID, p.State, p.Priority,
			p.Memory.LoadedPages, p.Memory.NumPages,
			p.Memory.PageFaults, p.Memory.MemoryAccesses)
	}
	w.Flush()

	fmt.Fprintln(out)
	states := make([]string, 0, len(process.States))
	for _, st := range process.States {
		states = append(states, fmt.Sprintf("%s %.2f",
			st, s.stateTime.AverageTime(st)))
	}
	fmt.Fprintf(out, "Average time per state: %s\n",
		strings.Join(states, ", "))

	r := k.ReplacementStats()
	fmt.Fprintf(out,
		"Replacements: %d (dirty %d, clean %d), loads %d, "+
			"average clock attempts %.2f\n",
		r.TotalReplacements, r.DirtyReplacements, r.CleanReplacements,
		r.TotalLoads, r.AverageClockAttempts)

	d := k.DiskStats()
	fmt.Fprintf(out,
		"Disk: %d operations (%d reads, %d writes, %d failed), "+
			"%.2f s of I/O, %d pages in swap\n",
		d.TotalOperations, d.ReadOperations, d.WriteOperations,
		d.FailedOperations, d.TotalIOTime, d.CurrentSwapPages)
}
