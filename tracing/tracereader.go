package tracing

import (
	"context"
	"fmt"

	"github.com/sarchlab/osim/datarecording"
	"github.com/sarchlab/osim/mem/vm"
)

// TraceReader reads back the tables that a DBTracer wrote.
type TraceReader struct {
	reader datarecording.DataReader
}

// NewTraceReader opens a recorded trace.
func NewTraceReader(filename string) *TraceReader {
	return NewTraceReaderWith(datarecording.NewReader(filename))
}

// NewTraceReaderWith reads the trace through an existing DataReader.
func NewTraceReaderWith(reader datarecording.DataReader) *TraceReader {
	reader.MapTable(TransitionTable, TransitionEntry{})
	reader.MapTable(ReplacementTable, ReplacementEntry{})
	reader.MapTable(DiskOperationTable, DiskOperationEntry{})
	reader.MapTable(ModeTable, ModeEntry{})
	reader.MapTable(datarecording.ExecTableName, datarecording.ExecInfo{})

	return &TraceReader{reader: reader}
}

// Transitions returns the transitions of a process in time order. NoPID
// returns the transitions of all processes.
func (r *TraceReader) Transitions(
	ctx context.Context,
	pid vm.PID,
) ([]TransitionEntry, error) {
	params := datarecording.QueryParams{OrderBy: "Time, rowid"}
	if pid != vm.NoPID {
		params.Where = "PID = ?"
		params.Args = []any{int(pid)}
	}

	return queryAll[TransitionEntry](ctx, r.reader, TransitionTable, params)
}

// Replacements returns the page loads and replacements in sequence order.
func (r *TraceReader) Replacements(
	ctx context.Context,
) ([]ReplacementEntry, error) {
	return queryAll[ReplacementEntry](ctx, r.reader, ReplacementTable,
		datarecording.QueryParams{OrderBy: "Seq"})
}

// DiskOperations returns the disk operations in sequence order.
func (r *TraceReader) DiskOperations(
	ctx context.Context,
) ([]DiskOperationEntry, error) {
	return queryAll[DiskOperationEntry](ctx, r.reader, DiskOperationTable,
		datarecording.QueryParams{OrderBy: "Seq"})
}

// ModeChanges returns the mode switches in time order.
func (r *TraceReader) ModeChanges(ctx context.Context) ([]ModeEntry, error) {
	return queryAll[ModeEntry](ctx, r.reader, ModeTable,
		datarecording.QueryParams{OrderBy: "Time, rowid"})
}

// ExecInfo returns the properties of the run that produced the trace.
func (r *TraceReader) ExecInfo(
	ctx context.Context,
) ([]datarecording.ExecInfo, error) {
	return queryAll[datarecording.ExecInfo](ctx, r.reader,
		datarecording.ExecTableName,
		datarecording.QueryParams{OrderBy: "rowid"})
}

// Close closes the underlying database.
func (r *TraceReader) Close() error {
	return r.reader.Close()
}

func queryAll[T any](
	ctx context.Context,
	reader datarecording.DataReader,
	table string,
	params datarecording.QueryParams,
) ([]T, error) {
	results, _, err := reader.Query(ctx, table, params)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}

	entries := make([]T, 0, len(results))
	for _, res := range results {
		entries = append(entries, *res.(*T))
	}

	return entries, nil
}
