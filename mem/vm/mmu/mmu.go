// Package mmu provides the memory management unit of the simulated machine.
// It owns the physical memory, the page tables of all processes, the swap
// store and the page fault handler, and serializes every access to them.
package mmu

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/sarchlab/osim/mem/swap"
	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/mem/vm/pagefault"
	"github.com/sarchlab/osim/sim"
)

// ErrAlreadyRegistered is returned when registering a process twice.
var ErrAlreadyRegistered = errors.New("process already registered")

// Translation is the outcome of translating a logical address.
type Translation struct {
	PID             vm.PID
	LogicalAddress  uint64
	PageNumber      int
	Offset          uint64
	PageFault       bool
	FrameNumber     int
	PhysicalAddress uint64
}

// AllocationResult tells how many pages were loaded when a process starts.
type AllocationResult struct {
	Requested int
	Allocated int
	Frames    []int
}

// ProcessMemoryStats summarizes the page table of a process.
type ProcessMemoryStats struct {
	PID           vm.PID
	TotalPages    int
	PresentPages  int
	AbsentPages   int
	ModifiedPages int
	Frames        []int
}

// Snapshot is a consistent copy of the whole memory subsystem.
type Snapshot struct {
	Memory     vm.MemorySnapshot
	PageTables map[vm.PID][]vm.PageTableEntry
	Clock      pagefault.ClockState
	Swap       []swap.StoredPage
	Disk       swap.Stats
}

// Comp is the MMU component.
type Comp struct {
	sync.Mutex

	name         string
	pageSize     int
	frames       *vm.FrameTable
	swapStore    *swap.Store
	faultHandler *pagefault.Handler
	tables       map[vm.PID]*vm.PageTable
	logger       *log.Logger
}

// Name returns the name of the MMU.
func (c *Comp) Name() string {
	return c.name
}

// PageSize returns the page size in bytes.
func (c *Comp) PageSize() int {
	return c.pageSize
}

// NumFrames returns the number of frames of physical memory.
func (c *Comp) NumFrames() int {
	return c.frames.NumFrames()
}

// AcceptDiskHook registers a hook that observes the disk operations.
func (c *Comp) AcceptDiskHook(hook sim.Hook) {
	c.Lock()
	defer c.Unlock()

	c.swapStore.AcceptHook(hook)
}

// AcceptReplacementHook registers a hook that observes the replacement
// events.
func (c *Comp) AcceptReplacementHook(hook sim.Hook) {
	c.Lock()
	defer c.Unlock()

	c.faultHandler.AcceptHook(hook)
}

// RegisterProcess creates the page table of a process with all pages absent.
func (c *Comp) RegisterProcess(pid vm.PID, numPages int) error {
	c.Lock()
	defer c.Unlock()

	if _, found := c.tables[pid]; found {
		return fmt.Errorf("process %s: %w", pid, ErrAlreadyRegistered)
	}

	if numPages < 1 {
		return fmt.Errorf("process %s with %d pages: %w",
			pid, numPages, vm.ErrInvalidPage)
	}

	c.tables[pid] = vm.NewPageTable(pid, numPages)

	return nil
}

// UnregisterProcess destroys the page table of a process, releases its frames
// and removes its pages from swap.
func (c *Comp) UnregisterProcess(pid vm.PID) error {
	c.Lock()
	defer c.Unlock()

	if _, err := c.tableOf(pid); err != nil {
		return err
	}

	c.freeFrames(pid)
	c.swapStore.FreePagesByPID(pid)
	delete(c.tables, pid)

	return nil
}

// IsRegistered tells if a process has a page table.
func (c *Comp) IsRegistered(pid vm.PID) bool {
	c.Lock()
	defer c.Unlock()

	_, found := c.tables[pid]

	return found
}

// PageTable returns a copy of the page table of a process, or nil if the
// process is not registered.
func (c *Comp) PageTable(pid vm.PID) []vm.PageTableEntry {
	c.Lock()
	defer c.Unlock()

	pt, found := c.tables[pid]
	if !found {
		return nil
	}

	return pt.Snapshot()
}

// NumPages returns the number of pages of a process.
func (c *Comp) NumPages(pid vm.PID) (int, error) {
	c.Lock()
	defer c.Unlock()

	pt, err := c.tableOf(pid)
	if err != nil {
		return 0, err
	}

	return pt.Len(), nil
}

// AbsentPages returns the pages of a process that are not resident.
func (c *Comp) AbsentPages(pid vm.PID) ([]int, error) {
	c.Lock()
	defer c.Unlock()

	pt, err := c.tableOf(pid)
	if err != nil {
		return nil, err
	}

	return pt.AbsentPages(), nil
}

// TranslateAddress converts a logical address of a process into a physical
// address. A page that is not resident is reported as a page fault, not as an
// error. A successful translation sets the use bit of the page.
func (c *Comp) TranslateAddress(pid vm.PID, addr uint64) (Translation, error) {
	c.Lock()
	defer c.Unlock()

	pt, err := c.tableOf(pid)
	if err != nil {
		return Translation{}, err
	}

	pageSize := uint64(c.pageSize)
	t := Translation{
		PID:            pid,
		LogicalAddress: addr,
		PageNumber:     int(addr / pageSize),
		Offset:         addr % pageSize,
		FrameNumber:    vm.NoFrame,
	}

	if addr/pageSize >= uint64(pt.Len()) {
		return Translation{}, fmt.Errorf(
			"address 0x%x of process %s beyond %d pages: %w",
			addr, pid, pt.Len(), vm.ErrInvalidPage)
	}

	frame, present := pt.FrameOf(t.PageNumber)
	if !present {
		t.PageFault = true
		return t, nil
	}

	use := true
	_ = c.frames.UpdateBits(frame, vm.BitUpdate{Use: &use})
	_ = pt.MarkUsed(t.PageNumber)

	t.FrameNumber = frame
	t.PhysicalAddress = uint64(frame)*pageSize + t.Offset

	return t, nil
}

// HandlePageFault loads a page of a process into memory, evicting another
// page if needed. The page table of the evicted page is updated before the
// lock is released.
func (c *Comp) HandlePageFault(pid vm.PID, page int) (pagefault.Result, error) {
	c.Lock()
	defer c.Unlock()

	return c.handlePageFault(pid, page)
}

// HandlePageFaultAndMark serves a fault and, if the faulting access was a
// write, marks the loaded page modified and persists the dirty flag to swap,
// all under one lock.
func (c *Comp) HandlePageFaultAndMark(
	pid vm.PID,
	page int,
	write bool,
) (pagefault.Result, error) {
	c.Lock()
	defer c.Unlock()

	r, err := c.handlePageFault(pid, page)
	if err != nil || !r.Success || !write {
		return r, err
	}

	if err := c.markModified(pid, page); err != nil {
		return r, err
	}

	if dirty := c.swapStore.MarkDirty(pid, page); !dirty.Success {
		c.logger.Printf("persisting dirty flag: %v", dirty.Err)
	}

	return r, nil
}

func (c *Comp) handlePageFault(pid vm.PID, page int) (pagefault.Result, error) {
	pt, err := c.tableOf(pid)
	if err != nil {
		return pagefault.Result{}, err
	}

	r, err := c.faultHandler.HandlePageFault(pid, page, pt)
	c.syncUseBits(r.ClockSteps)
	if err != nil {
		return r, err
	}

	if r.RequiresVictimTableUpdate && r.Victim != nil {
		c.updateVictimTable(*r.Victim)
	}

	return r, nil
}

func (c *Comp) syncUseBits(steps []pagefault.ClockStep) {
	for _, s := range steps {
		if s.Action != pagefault.StepSecondChance {
			continue
		}

		if pt, found := c.tables[s.Owner]; found {
			_ = pt.ClearUseBit(s.Page)
		}
	}
}

func (c *Comp) updateVictimTable(v pagefault.VictimInfo) {
	pt, found := c.tables[v.PID]
	if !found {
		c.logger.Printf("victim process %s of frame %d has no page table",
			v.PID, v.FrameNumber)
		return
	}

	if err := pt.MarkAbsent(v.PageNumber); err != nil {
		c.logger.Printf("updating victim page table: %v", err)
	}
}

// MarkPageAsModified sets the modified bit of a page. If the page is resident
// the frame is marked as well.
func (c *Comp) MarkPageAsModified(pid vm.PID, page int) error {
	c.Lock()
	defer c.Unlock()

	return c.markModified(pid, page)
}

func (c *Comp) markModified(pid vm.PID, page int) error {
	pt, err := c.tableOf(pid)
	if err != nil {
		return err
	}

	if err := pt.MarkModified(page); err != nil {
		return err
	}

	if frame, present := pt.FrameOf(page); present {
		modified := true
		_ = c.frames.UpdateBits(frame, vm.BitUpdate{Modified: &modified})
	}

	return nil
}

// AllocateFramesForProcess loads the first n pages of a process into free
// frames. It stops when memory runs out, so fewer pages may be loaded.
func (c *Comp) AllocateFramesForProcess(
	pid vm.PID,
	n int,
) (AllocationResult, error) {
	c.Lock()
	defer c.Unlock()

	pt, err := c.tableOf(pid)
	if err != nil {
		return AllocationResult{}, err
	}

	result := AllocationResult{Requested: n}
	for page := 0; page < n && page < pt.Len(); page++ {
		if pt.IsPresent(page) {
			continue
		}

		frame, found := c.frames.FirstFreeFrame()
		if !found {
			break
		}

		if err := c.frames.Allocate(frame, pid, page); err != nil {
			return result, err
		}

		if err := pt.MarkPresent(page, frame); err != nil {
			return result, err
		}

		result.Allocated++
		result.Frames = append(result.Frames, frame)
	}

	return result, nil
}

// FreeFramesOfProcess releases all the frames of a process and returns how
// many were released.
func (c *Comp) FreeFramesOfProcess(pid vm.PID) (int, error) {
	c.Lock()
	defer c.Unlock()

	if _, err := c.tableOf(pid); err != nil {
		return 0, err
	}

	return c.freeFrames(pid), nil
}

func (c *Comp) freeFrames(pid vm.PID) int {
	pt := c.tables[pid]

	freed := 0
	for _, f := range c.frames.FramesOf(pid) {
		_ = c.frames.Free(f.FrameNumber)
		_ = pt.MarkAbsent(f.PageNumber)
		freed++
	}

	return freed
}

// ProcessMemoryStats summarizes the page table of a process. It returns nil
// if the process is not registered.
func (c *Comp) ProcessMemoryStats(pid vm.PID) *ProcessMemoryStats {
	c.Lock()
	defer c.Unlock()

	pt, found := c.tables[pid]
	if !found {
		return nil
	}

	s := &ProcessMemoryStats{
		PID:           pid,
		TotalPages:    pt.Len(),
		PresentPages:  pt.CountPresent(),
		ModifiedPages: pt.CountModified(),
	}
	s.AbsentPages = s.TotalPages - s.PresentPages

	for _, f := range c.frames.FramesOf(pid) {
		s.Frames = append(s.Frames, f.FrameNumber)
	}

	return s
}

// MemorySnapshot returns a copy of the frame table.
func (c *Comp) MemorySnapshot() vm.MemorySnapshot {
	c.Lock()
	defer c.Unlock()

	return c.frames.Snapshot()
}

// Snapshot returns a consistent copy of the memory subsystem.
func (c *Comp) Snapshot() Snapshot {
	c.Lock()
	defer c.Unlock()

	s := Snapshot{
		Memory:     c.frames.Snapshot(),
		PageTables: make(map[vm.PID][]vm.PageTableEntry, len(c.tables)),
		Clock:      c.faultHandler.ClockState(),
		Swap:       c.swapStore.Snapshot(),
		Disk:       c.swapStore.Stats(),
	}

	for pid, pt := range c.tables {
		s.PageTables[pid] = pt.Snapshot()
	}

	return s
}

// IsMemoryFull tells if no frame is free.
func (c *Comp) IsMemoryFull() bool {
	c.Lock()
	defer c.Unlock()

	return c.frames.IsFull()
}

// ReplacementHistory returns all the replacement events.
func (c *Comp) ReplacementHistory() []pagefault.ReplacementEvent {
	c.Lock()
	defer c.Unlock()

	return c.faultHandler.History()
}

// LastReplacement returns the most recent replacement event.
func (c *Comp) LastReplacement() (pagefault.ReplacementEvent, bool) {
	c.Lock()
	defer c.Unlock()

	return c.faultHandler.LastReplacement()
}

// ReplacementStats summarizes the replacement history.
func (c *Comp) ReplacementStats() pagefault.Stats {
	c.Lock()
	defer c.Unlock()

	return c.faultHandler.Stats()
}

// ClockState tells where the clock hand points to.
func (c *Comp) ClockState() pagefault.ClockState {
	c.Lock()
	defer c.Unlock()

	return c.faultHandler.ClockState()
}

// ClockSteps returns the steps of the most recent clock scan.
func (c *Comp) ClockSteps() []pagefault.ClockStep {
	c.Lock()
	defer c.Unlock()

	return c.faultHandler.ClockSteps()
}

// SwapSnapshot returns the pages stored in swap.
func (c *Comp) SwapSnapshot() []swap.StoredPage {
	c.Lock()
	defer c.Unlock()

	return c.swapStore.Snapshot()
}

// SwapPageInfo returns a page stored in swap.
func (c *Comp) SwapPageInfo(pid vm.PID, page int) (swap.StoredPage, bool) {
	c.Lock()
	defer c.Unlock()

	return c.swapStore.PageInfo(pid, page)
}

// DiskStats summarizes the disk operations.
func (c *Comp) DiskStats() swap.Stats {
	c.Lock()
	defer c.Unlock()

	return c.swapStore.Stats()
}

// DiskOperations returns the disk operation log.
func (c *Comp) DiskOperations() []swap.Operation {
	c.Lock()
	defer c.Unlock()

	return c.swapStore.Operations()
}

// SetDiskIODelay changes the time a swap read or write takes.
func (c *Comp) SetDiskIODelay(d sim.VTimeInSec) error {
	c.Lock()
	defer c.Unlock()

	return c.swapStore.SetIODelay(d)
}

// Reset frees all the memory and forgets all the processes.
func (c *Comp) Reset() {
	c.Lock()
	defer c.Unlock()

	c.frames.Reset()
	c.swapStore.Reset()
	c.faultHandler.Reset()
	c.tables = make(map[vm.PID]*vm.PageTable)
}

func (c *Comp) tableOf(pid vm.PID) (*vm.PageTable, error) {
	pt, found := c.tables[pid]
	if !found {
		return nil, fmt.Errorf("process %s: %w", pid, vm.ErrProcessNotFound)
	}

	return pt, nil
}
