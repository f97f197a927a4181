package pagefault

import (
	"github.com/sarchlab/osim/mem/swap"
	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/sim"
)

// EventType tells if a fault was served from a free frame or by evicting a
// page.
type EventType string

// The types of replacement events.
const (
	EventPageLoad        EventType = "PAGE_LOAD"
	EventPageReplacement EventType = "PAGE_REPLACEMENT"
)

// Origin tells where the loaded page came from.
type Origin string

// RAM means the page was fresh and never on the disk; DISK means it was read
// from swap.
const (
	OriginRAM  Origin = "RAM"
	OriginDisk Origin = "DISK"
)

// AlgorithmClock is the name of the replacement algorithm.
const AlgorithmClock = "CLOCK"

// LoadedPage describes the page that a fault brought into memory.
type LoadedPage struct {
	PID         vm.PID
	PageNumber  int
	FrameNumber int
	Origin      Origin
}

// VictimInfo describes the page that was evicted.
type VictimInfo struct {
	PID         vm.PID
	PageNumber  int
	FrameNumber int
	WasDirty    bool
	UseBit      bool
}

// DiskOps are the disk operations performed to serve a fault.
type DiskOps struct {
	Read     *swap.Operation
	Allocate *swap.Operation
	Write    *swap.Operation
}

// A ReplacementEvent is an entry in the replacement history.
type ReplacementEvent struct {
	Seq          int
	Type         EventType
	Algorithm    string
	Time         sim.VTimeInSec
	Loaded       LoadedPage
	Victim       *VictimInfo
	ClockPointer int
	Attempts     int
	DiskOps      DiskOps
	HadDiskIO    bool
	IOTime       sim.VTimeInSec
}

// Result is the outcome of handling a page fault.
type Result struct {
	Success bool

	// Err explains why a disk failure prevented the page from loading.
	Err error

	PID         vm.PID
	PageNumber  int
	FrameNumber int
	Origin      Origin
	Replacement bool
	Victim      *VictimInfo

	// RequiresVictimTableUpdate asks the caller to mark the evicted page
	// absent in the page table of the victim process.
	RequiresVictimTableUpdate bool

	Attempts   int
	ClockSteps []ClockStep
	DiskOps    DiskOps
	HadDiskIO  bool
	IOTime     sim.VTimeInSec
	Event      *ReplacementEvent
}

// Stats summarizes the replacement history.
type Stats struct {
	TotalEvents          int
	TotalReplacements    int
	TotalLoads           int
	DirtyReplacements    int
	CleanReplacements    int
	AverageClockAttempts float64
	VictimsByProcess     map[vm.PID]int
	LoadsByProcess       map[vm.PID]int
}

// ClockState tells where the clock hand is.
type ClockState struct {
	ClockPointer int
	TotalFrames  int
	UsedFrames   int
	FreeFrames   int
	CurrentFrame vm.Frame
	MemoryFull   bool
}
