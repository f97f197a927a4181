// Package swap simulates the backing store that holds the pages that are not
// resident in physical memory.
package swap

import (
	"errors"
	"fmt"

	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/sim"
)

// OpType names a kind of disk operation.
type OpType string

// The disk operations recorded in the operation log.
const (
	OpRead        OpType = "DISK_READ"
	OpWrite       OpType = "DISK_WRITE"
	OpAllocate    OpType = "DISK_ALLOCATE"
	OpFreeProcess OpType = "DISK_FREE_PROCESS"
	OpMarkDirty   OpType = "DISK_MARK_DIRTY"
)

var (
	// ErrPageNotInSwap is returned when reading a page that was never
	// written to or allocated in the store.
	ErrPageNotInSwap = errors.New("page not in swap")

	// ErrPageExists is returned when allocating a page that is already in
	// the store.
	ErrPageExists = errors.New("page already in swap")

	// ErrIOFailure is returned when the disk fails an operation.
	ErrIOFailure = errors.New("disk i/o failure")
)

// HookPosDiskOperation marks the moment after a disk operation is logged. The
// hook item is the Operation.
var HookPosDiskOperation = &sim.HookPos{Name: "DiskOperation"}

// Key identifies a page in the store.
type Key struct {
	PID  vm.PID
	Page int
}

// A StoredPage is a page kept on the disk.
type StoredPage struct {
	PID        vm.PID
	PageNumber int
	Data       []byte
	IsDirty    bool
	LastAccess sim.VTimeInSec

	// InUse is true while a copy of the page is resident in memory.
	InUse bool
}

// An Operation is one line of the disk operation log.
type Operation struct {
	Seq        int
	Type       OpType
	PID        vm.PID
	Page       int
	Time       sim.VTimeInSec
	Duration   sim.VTimeInSec
	IsDirty    bool
	Success    bool
	Error      string
	PagesFreed int
}

// ReadResult is the outcome of ReadPage.
type ReadResult struct {
	Success   bool
	Err       error
	Data      []byte
	IsDirty   bool
	Operation Operation
}

// WriteResult is the outcome of WritePage and AllocatePage.
type WriteResult struct {
	Success   bool
	Err       error
	Operation Operation
}

// A FailurePolicy decides which disk operations fail.
type FailurePolicy interface {
	ShouldFail(op OpType, pid vm.PID, page int) bool
}

// Stats summarizes the operation log.
type Stats struct {
	TotalOperations    int
	ReadOperations     int
	WriteOperations    int
	AllocateOperations int
	FreeOperations     int
	DirtyWrites        int
	CleanWrites        int
	FailedOperations   int
	TotalIOTime        sim.VTimeInSec
	CurrentSwapPages   int
	PagesByProcess     map[vm.PID]int
	IODelay            sim.VTimeInSec
}

// DefaultPayload is the content the simulator stores for a page when nothing
// else is provided.
func DefaultPayload(pid vm.PID, page int) []byte {
	return []byte(fmt.Sprintf("page %d of process %s", page, pid))
}
