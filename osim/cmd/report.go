package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/tracing"
	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <trace.sqlite3>",
		Short: "Summarize a trace recorded with --record.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}

			r := tracing.NewTraceReader(args[0])
			defer r.Close()

			return summarize(cmd.Context(), cmd.OutOrStdout(), r)
		},
	}
}

type processSummary struct {
	pid         int
	transitions int
	last        string
	lastTime    float64
}

func summarize(ctx context.Context, out io.Writer, r *tracing.TraceReader) error {
	info, err := r.ExecInfo(ctx)
	if err != nil {
		return err
	}
	for _, i := range info {
		fmt.Fprintf(out, "%s: %s\n", i.Property, i.Value)
	}

	transitions, err := r.Transitions(ctx, vm.NoPID)
	if err != nil {
		return err
	}

	byPID := make(map[int]*processSummary)
	for _, t := range transitions {
		s, found := byPID[t.PID]
		if !found {
			s = &processSummary{pid: t.PID}
			byPID[t.PID] = s
		}

		s.transitions++
		s.last = t.ToState
		s.lastTime = t.Time
	}

	summaries := make([]*processSummary, 0, len(byPID))
	for _, s := range byPID {
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].pid < summaries[j].pid
	})

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tTransitions\tLast State\tAt")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%.2f\n",
			vm.PID(s.pid), s.transitions, s.last, s.lastTime)
	}
	w.Flush()

	replacements, err := r.Replacements(ctx)
	if err != nil {
		return err
	}
	evictions, dirty := 0, 0
	for _, e := range replacements {
		if e.VictimPID == 0 {
			continue
		}
		evictions++
		if e.VictimDirty {
			dirty++
		}
	}

	ops, err := r.DiskOperations(ctx)
	if err != nil {
		return err
	}
	opCount := make(map[string]int)
	for _, op := range ops {
		opCount[op.Type]++
	}
	opTypes := make([]string, 0, len(opCount))
	for t := range opCount {
		opTypes = append(opTypes, t)
	}
	sort.Strings(opTypes)

	modes, err := r.ModeChanges(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nLoads and replacements: %d, evictions %d (%d dirty)\n",
		len(replacements), evictions, dirty)
	fmt.Fprintf(out, "Disk operations: %d\n", len(ops))
	for _, t := range opTypes {
		fmt.Fprintf(out, "  %s: %d\n", t, opCount[t])
	}
	fmt.Fprintf(out, "Mode changes: %d\n", len(modes))

	return nil
}
