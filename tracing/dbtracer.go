package tracing

import (
	"sync"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/osim/datarecording"
	"github.com/sarchlab/osim/kernel"
	"github.com/sarchlab/osim/mem/swap"
	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/mem/vm/pagefault"
	"github.com/sarchlab/osim/process"
	"github.com/sarchlab/osim/scheduler"
	"github.com/sarchlab/osim/sim"
)

// The tables a DBTracer writes.
const (
	TransitionTable    = "transitions"
	ReplacementTable   = "replacements"
	DiskOperationTable = "disk_operations"
	ModeTable          = "mode_changes"
)

// TransitionEntry is a row of the transitions table.
type TransitionEntry struct {
	PID       int
	FromState string
	ToState   string
	Time      float64
	Cause     string
	PC        int
	Priority  int
}

// ReplacementEntry is a row of the replacements table. Loads into free frames
// have a VictimPID of zero.
type ReplacementEntry struct {
	Seq          int
	Type         string
	Time         float64
	PID          int
	PageNumber   int
	FrameNumber  int
	Origin       string
	VictimPID    int
	VictimPage   int
	VictimDirty  bool
	ClockPointer int
	Attempts     int
	HadDiskIO    bool
	IOTime       float64
}

// DiskOperationEntry is a row of the disk_operations table.
type DiskOperationEntry struct {
	Seq        int
	Type       string
	PID        int
	PageNumber int
	Time       float64
	Duration   float64
	IsDirty    bool
	Success    bool
	Error      string
	PagesFreed int
}

// ModeEntry is a row of the mode_changes table.
type ModeEntry struct {
	Time float64
	Mode string
}

// DBTracer is a hook that stores the events of a simulation into a database.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller sim.TimeTeller
	backend    datarecording.DataRecorder

	startTime, endTime sim.VTimeInSec

	counts map[string]int
}

// NewDBTracer creates a new DBTracer and the tables it writes.
func NewDBTracer(
	timeTeller sim.TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable(TransitionTable, TransitionEntry{})
	dataRecorder.CreateTable(ReplacementTable, ReplacementEntry{})
	dataRecorder.CreateTable(DiskOperationTable, DiskOperationEntry{})
	dataRecorder.CreateTable(ModeTable, ModeEntry{})

	t := &DBTracer{
		timeTeller: timeTeller,
		backend:    dataRecorder,
		counts:     make(map[string]int),
	}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// SetTimeRange limits tracing to events between startTime and endTime. A zero
// endTime means no upper limit.
func (t *DBTracer) SetTimeRange(startTime, endTime sim.VTimeInSec) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = startTime
	t.endTime = endTime
}

// Count returns how many rows were written into a table.
func (t *DBTracer) Count(table string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.counts[table]
}

// Func records the events it knows and ignores the rest.
func (t *DBTracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case kernel.HookPosTransition:
		r := ctx.Item.(process.TransitionRecord)
		t.insert(r.Time, TransitionTable, TransitionEntry{
			PID:       int(r.PID),
			FromState: string(r.From),
			ToState:   string(r.To),
			Time:      float64(r.Time),
			Cause:     r.Cause,
			PC:        r.PC,
			Priority:  r.Priority,
		})
	case pagefault.HookPosReplacement:
		t.recordReplacement(ctx.Item.(pagefault.ReplacementEvent))
	case swap.HookPosDiskOperation:
		op := ctx.Item.(swap.Operation)
		t.insert(op.Time, DiskOperationTable, DiskOperationEntry{
			Seq:        op.Seq,
			Type:       string(op.Type),
			PID:        int(op.PID),
			PageNumber: op.Page,
			Time:       float64(op.Time),
			Duration:   float64(op.Duration),
			IsDirty:    op.IsDirty,
			Success:    op.Success,
			Error:      op.Error,
			PagesFreed: op.PagesFreed,
		})
	case kernel.HookPosModeChanged:
		now := t.timeTeller.CurrentTime()
		t.insert(now, ModeTable, ModeEntry{
			Time: float64(now),
			Mode: string(ctx.Item.(scheduler.Mode)),
		})
	}
}

func (t *DBTracer) recordReplacement(evt pagefault.ReplacementEvent) {
	entry := ReplacementEntry{
		Seq:          evt.Seq,
		Type:         string(evt.Type),
		Time:         float64(evt.Time),
		PID:          int(evt.Loaded.PID),
		PageNumber:   evt.Loaded.PageNumber,
		FrameNumber:  evt.Loaded.FrameNumber,
		Origin:       string(evt.Loaded.Origin),
		VictimPID:    int(vm.NoPID),
		VictimPage:   vm.NoPage,
		ClockPointer: evt.ClockPointer,
		Attempts:     evt.Attempts,
		HadDiskIO:    evt.HadDiskIO,
		IOTime:       float64(evt.IOTime),
	}

	if v := evt.Victim; v != nil {
		entry.VictimPID = int(v.PID)
		entry.VictimPage = v.PageNumber
		entry.VictimDirty = v.WasDirty
	}

	t.insert(evt.Time, ReplacementTable, entry)
}

func (t *DBTracer) insert(at sim.VTimeInSec, table string, entry any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if at < t.startTime || (t.endTime > 0 && at > t.endTime) {
		return
	}

	t.backend.InsertData(table, entry)
	t.counts[table]++
}

// Terminate flushes everything that is still buffered.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.backend.Flush()
}
