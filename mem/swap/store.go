package swap

import (
	"fmt"
	"sort"

	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/sim"
)

// Store is a simulated swap disk. Reads and writes do not block; instead,
// every operation reports the time it would take so that the caller can
// delay the process that waits for it.
//
// Store is not safe for concurrent use. The MMU serializes all the access.
type Store struct {
	sim.HookableBase

	name          string
	timeTeller    sim.TimeTeller
	ioDelay       sim.VTimeInSec
	delayEnabled  bool
	failurePolicy FailurePolicy

	entries    map[Key]*StoredPage
	operations []Operation
}

// Name returns the name of the store.
func (s *Store) Name() string {
	return s.name
}

// IODelay returns the time a read or a write takes.
func (s *Store) IODelay() sim.VTimeInSec {
	if !s.delayEnabled {
		return 0
	}

	return s.ioDelay
}

// SetIODelay changes the time a read or a write takes.
func (s *Store) SetIODelay(d sim.VTimeInSec) error {
	if d < 0 {
		return fmt.Errorf("disk i/o delay %.3f cannot be negative", d)
	}

	s.ioDelay = d

	return nil
}

// SetIODelayEnabled turns the simulated delay on or off.
func (s *Store) SetIODelayEnabled(enabled bool) {
	s.delayEnabled = enabled
}

// Exists tells if a page is in the store.
func (s *Store) Exists(pid vm.PID, page int) bool {
	_, found := s.entries[Key{PID: pid, Page: page}]
	return found
}

// PageInfo returns a copy of a stored page.
func (s *Store) PageInfo(pid vm.PID, page int) (StoredPage, bool) {
	e, found := s.entries[Key{PID: pid, Page: page}]
	if !found {
		return StoredPage{}, false
	}

	return copyPage(e), true
}

// ReadPage reads a page from the disk.
func (s *Store) ReadPage(pid vm.PID, page int) ReadResult {
	op := s.newOperation(OpRead, pid, page)
	op.Duration = s.IODelay()

	e, found := s.entries[Key{PID: pid, Page: page}]
	if !found {
		err := fmt.Errorf("read page %d of process %s: %w",
			page, pid, ErrPageNotInSwap)
		op = s.fail(op, err)
		return ReadResult{Err: err, Operation: op}
	}

	if s.shouldFail(OpRead, pid, page) {
		err := fmt.Errorf("read page %d of process %s: %w",
			page, pid, ErrIOFailure)
		op = s.fail(op, err)
		return ReadResult{Err: err, Operation: op}
	}

	e.LastAccess = op.Time
	e.InUse = true
	op.IsDirty = e.IsDirty
	op.Success = true
	op = s.log(op)

	return ReadResult{
		Success:   true,
		Data:      append([]byte(nil), e.Data...),
		IsDirty:   e.IsDirty,
		Operation: op,
	}
}

// WritePage stores a page on the disk. Nil data stores the default payload.
func (s *Store) WritePage(
	pid vm.PID,
	page int,
	data []byte,
	isDirty bool,
) WriteResult {
	op := s.newOperation(OpWrite, pid, page)
	op.Duration = s.IODelay()
	op.IsDirty = isDirty

	if s.shouldFail(OpWrite, pid, page) {
		err := fmt.Errorf("write page %d of process %s: %w",
			page, pid, ErrIOFailure)
		op = s.fail(op, err)
		return WriteResult{Err: err, Operation: op}
	}

	if data == nil {
		data = DefaultPayload(pid, page)
	}

	s.entries[Key{PID: pid, Page: page}] = &StoredPage{
		PID:        pid,
		PageNumber: page,
		Data:       append([]byte(nil), data...),
		IsDirty:    isDirty,
		LastAccess: op.Time,
		InUse:      false,
	}

	op.Success = true
	op = s.log(op)

	return WriteResult{Success: true, Operation: op}
}

// AllocatePage reserves space for a page that has never been on the disk.
// Allocation does not take time.
func (s *Store) AllocatePage(pid vm.PID, page int) WriteResult {
	op := s.newOperation(OpAllocate, pid, page)

	if s.Exists(pid, page) {
		err := fmt.Errorf("allocate page %d of process %s: %w",
			page, pid, ErrPageExists)
		op = s.fail(op, err)
		return WriteResult{Err: err, Operation: op}
	}

	if s.shouldFail(OpAllocate, pid, page) {
		err := fmt.Errorf("allocate page %d of process %s: %w",
			page, pid, ErrIOFailure)
		op = s.fail(op, err)
		return WriteResult{Err: err, Operation: op}
	}

	s.entries[Key{PID: pid, Page: page}] = &StoredPage{
		PID:        pid,
		PageNumber: page,
		Data:       DefaultPayload(pid, page),
		LastAccess: op.Time,
		InUse:      true,
	}

	op.Success = true
	op = s.log(op)

	return WriteResult{Success: true, Operation: op}
}

// MarkDirty flags a stored page as holding data that differs from its
// initial content. It updates metadata only and does not take time.
func (s *Store) MarkDirty(pid vm.PID, page int) WriteResult {
	op := s.newOperation(OpMarkDirty, pid, page)
	op.IsDirty = true

	e, found := s.entries[Key{PID: pid, Page: page}]
	if !found {
		err := fmt.Errorf("mark page %d of process %s dirty: %w",
			page, pid, ErrPageNotInSwap)
		op = s.fail(op, err)
		return WriteResult{Err: err, Operation: op}
	}

	e.IsDirty = true
	e.LastAccess = op.Time
	op.Success = true
	op = s.log(op)

	return WriteResult{Success: true, Operation: op}
}

// Release records that the resident copy of a page was dropped without being
// written back. It updates metadata only and is not logged.
func (s *Store) Release(pid vm.PID, page int) {
	e, found := s.entries[Key{PID: pid, Page: page}]
	if !found {
		return
	}

	e.InUse = false
	e.LastAccess = s.timeTeller.CurrentTime()
}

// FreePagesByPID removes all the pages of a process and returns how many
// were removed.
func (s *Store) FreePagesByPID(pid vm.PID) int {
	freed := 0
	for k := range s.entries {
		if k.PID == pid {
			delete(s.entries, k)
			freed++
		}
	}

	op := s.newOperation(OpFreeProcess, pid, vm.NoPage)
	op.PagesFreed = freed
	op.Success = true
	op = s.log(op)

	return freed
}

// Snapshot returns copies of all the stored pages, ordered by process and
// page.
func (s *Store) Snapshot() []StoredPage {
	entries := make([]StoredPage, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, copyPage(e))
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].PID != entries[j].PID {
			return entries[i].PID < entries[j].PID
		}

		return entries[i].PageNumber < entries[j].PageNumber
	})

	return entries
}

// Operations returns a copy of the operation log.
func (s *Store) Operations() []Operation {
	ops := make([]Operation, len(s.operations))
	copy(ops, s.operations)

	return ops
}

// Stats summarizes the operation log and the current content.
func (s *Store) Stats() Stats {
	st := Stats{
		CurrentSwapPages: len(s.entries),
		PagesByProcess:   make(map[vm.PID]int),
		IODelay:          s.IODelay(),
	}

	for _, op := range s.operations {
		st.TotalOperations++
		st.TotalIOTime += op.Duration

		if !op.Success {
			st.FailedOperations++
		}

		switch op.Type {
		case OpRead:
			st.ReadOperations++
		case OpWrite:
			st.WriteOperations++
			if op.IsDirty {
				st.DirtyWrites++
			} else {
				st.CleanWrites++
			}
		case OpAllocate:
			st.AllocateOperations++
		case OpFreeProcess:
			st.FreeOperations++
		}
	}

	for k := range s.entries {
		st.PagesByProcess[k.PID]++
	}

	return st
}

// Reset removes all the pages and clears the operation log.
func (s *Store) Reset() {
	s.entries = make(map[Key]*StoredPage)
	s.operations = nil
}

func (s *Store) newOperation(t OpType, pid vm.PID, page int) Operation {
	return Operation{
		Type: t,
		PID:  pid,
		Page: page,
		Time: s.timeTeller.CurrentTime(),
	}
}

func (s *Store) shouldFail(t OpType, pid vm.PID, page int) bool {
	return s.failurePolicy != nil && s.failurePolicy.ShouldFail(t, pid, page)
}

func (s *Store) fail(op Operation, err error) Operation {
	op.Success = false
	op.Error = err.Error()

	return s.log(op)
}

func (s *Store) log(op Operation) Operation {
	op.Seq = len(s.operations)
	s.operations = append(s.operations, op)

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    HookPosDiskOperation,
		Item:   op,
	})

	return op
}

func copyPage(e *StoredPage) StoredPage {
	c := *e
	c.Data = append([]byte(nil), e.Data...)

	return c
}
