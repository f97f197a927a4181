package kernel

import (
	"github.com/sarchlab/osim/mem/swap"
	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/mem/vm/mmu"
	"github.com/sarchlab/osim/mem/vm/pagefault"
	"github.com/sarchlab/osim/sim"
)

// MemorySnapshot returns a copy of the frame table.
func (c *Comp) MemorySnapshot() vm.MemorySnapshot {
	return c.mmu.MemorySnapshot()
}

// ProcessPageTable returns a copy of the page table of a process, or nil if
// the process has none.
func (c *Comp) ProcessPageTable(pid vm.PID) []vm.PageTableEntry {
	return c.mmu.PageTable(pid)
}

// ProcessMemoryStats summarizes the memory of a process, or returns nil if
// the process has no page table.
func (c *Comp) ProcessMemoryStats(pid vm.PID) *mmu.ProcessMemoryStats {
	return c.mmu.ProcessMemoryStats(pid)
}

// ReplacementHistory returns every page load and replacement so far.
func (c *Comp) ReplacementHistory() []pagefault.ReplacementEvent {
	return c.mmu.ReplacementHistory()
}

// ReplacementStats summarizes the replacement history.
func (c *Comp) ReplacementStats() pagefault.Stats {
	return c.mmu.ReplacementStats()
}

// ClockState describes the clock hand.
func (c *Comp) ClockState() pagefault.ClockState {
	return c.mmu.ClockState()
}

// ClockSteps returns the frames the last victim search looked at.
func (c *Comp) ClockSteps() []pagefault.ClockStep {
	return c.mmu.ClockSteps()
}

// IsMemoryFull tells if every frame is in use.
func (c *Comp) IsMemoryFull() bool {
	return c.mmu.IsMemoryFull()
}

// SwapSnapshot returns a copy of the swap store.
func (c *Comp) SwapSnapshot() []swap.StoredPage {
	return c.mmu.SwapSnapshot()
}

// DiskStats summarizes the disk operations.
func (c *Comp) DiskStats() swap.Stats {
	return c.mmu.DiskStats()
}

// DiskOperations returns the log of disk operations.
func (c *Comp) DiskOperations() []swap.Operation {
	return c.mmu.DiskOperations()
}

// SetDiskIODelay changes the time a swap read or write takes.
func (c *Comp) SetDiskIODelay(d sim.VTimeInSec) error {
	return c.mmu.SetDiskIODelay(d)
}
