package process

import (
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/mem/vm/mmu"
	"github.com/sarchlab/osim/sim"
)

// MaxPriority is the highest priority a process can have.
const MaxPriority = 9

// MemoryManager is the part of the MMU that the lifecycle needs.
type MemoryManager interface {
	RegisterProcess(pid vm.PID, numPages int) error
	AllocateFramesForProcess(pid vm.PID, n int) (mmu.AllocationResult, error)
	FreeFramesOfProcess(pid vm.PID) (int, error)
	UnregisterProcess(pid vm.PID) error
}

// Machine applies transitions to processes and performs their side effects.
type Machine struct {
	timeTeller sim.TimeTeller
	memory     MemoryManager
	logger     *log.Logger
}

// NewMachine creates a Machine. A nil logger logs to the standard logger.
func NewMachine(
	timeTeller sim.TimeTeller,
	memory MemoryManager,
	logger *log.Logger,
) *Machine {
	if logger == nil {
		logger = log.Default()
	}

	return &Machine{
		timeTeller: timeTeller,
		memory:     memory,
		logger:     logger,
	}
}

// Create makes a new process, registers its page table and loads up to
// initialLoadedPages pages into free frames.
func (m *Machine) Create(
	pid vm.PID,
	priority, numPages, initialLoadedPages int,
) (*Process, error) {
	switch {
	case priority < 0 || priority > MaxPriority:
		return nil, fmt.Errorf("priority %d not in [0, %d]: %w",
			priority, MaxPriority, ErrInvalidArgument)
	case numPages < 1:
		return nil, fmt.Errorf("process needs at least one page, got %d: %w",
			numPages, ErrInvalidArgument)
	case initialLoadedPages < 0 || initialLoadedPages > numPages:
		return nil, fmt.Errorf("cannot load %d of %d pages: %w",
			initialLoadedPages, numPages, ErrInvalidArgument)
	}

	if err := m.memory.RegisterProcess(pid, numPages); err != nil {
		return nil, err
	}

	now := m.timeTeller.CurrentTime()
	p := &Process{
		PID:            pid,
		State:          New,
		Priority:       priority,
		Registers:      make(map[string]float64),
		CreatedAt:      now,
		StateEnteredAt: now,
		Memory:         MemoryStats{NumPages: numPages},
	}

	if initialLoadedPages == 0 {
		return p, nil
	}

	alloc, err := m.memory.AllocateFramesForProcess(pid, initialLoadedPages)
	if err != nil {
		_ = m.memory.UnregisterProcess(pid)
		return nil, err
	}

	p.Memory.LoadedPages = alloc.Allocated
	if alloc.Allocated > 0 {
		p.AddSyscall(SyscallMemoryInit, now,
			fmt.Sprintf("loaded %d of %d pages", alloc.Allocated, numPages))
	}

	return p, nil
}

// Apply performs a named operation. The process must be in the source state
// of the operation.
func (m *Machine) Apply(p *Process, op Operation, cause string) error {
	from, to := op.Edge()
	if p.State != from {
		return &InvalidTransitionError{PID: p.PID, From: p.State, To: to}
	}

	return m.Transition(p, to, cause)
}

// Transition moves a process to another state. An illegal transition returns
// an InvalidTransitionError and leaves the process unchanged.
func (m *Machine) Transition(p *Process, to State, cause string) error {
	from := p.State
	if !CanTransition(from, to) {
		return &InvalidTransitionError{PID: p.PID, From: from, To: to}
	}

	if cause == "" {
		cause = DefaultCause
	}

	if p.Registers == nil {
		p.Registers = make(map[string]float64)
	}

	now := m.timeTeller.CurrentTime()

	switch {
	case to == Running:
		p.PC++
		p.Registers[RegAX] += 10
		p.AddSyscall(SyscallCPUAssign, now, "")
	case to == Waiting:
		p.Registers[RegIOWait] = float64(now)
		p.AddSyscall(SyscallIORequest, now, cause)
	case to == Ready && from == Waiting:
		p.Registers[RegIODone] = float64(now)
		p.AddSyscall(SyscallIOComplete, now, cause)
	case to == Terminated:
		p.Registers[RegEnd] = float64(now)
		p.AddSyscall(SyscallTerminate, now, "")
		m.releaseMemory(p, now)
	}

	p.History = append(p.History, TransitionRecord{
		PID:       p.PID,
		From:      from,
		To:        to,
		Time:      now,
		Cause:     cause,
		PC:        p.PC,
		Registers: copyRegisters(p.Registers),
		Syscalls:  append([]Syscall(nil), p.Syscalls...),
		Priority:  p.Priority,
	})

	p.State = to
	p.StateEnteredAt = now

	return nil
}

func (m *Machine) releaseMemory(p *Process, now sim.VTimeInSec) {
	freed, err := m.memory.FreeFramesOfProcess(p.PID)
	if err != nil && !errors.Is(err, vm.ErrProcessNotFound) {
		m.logger.Printf("freeing frames of process %s: %v", p.PID, err)
	}

	err = m.memory.UnregisterProcess(p.PID)
	if err != nil && !errors.Is(err, vm.ErrProcessNotFound) {
		m.logger.Printf("unregistering process %s: %v", p.PID, err)
	}

	p.Memory.LoadedPages = 0
	p.AddSyscall(SyscallMemoryFree, now, fmt.Sprintf("freed %d frames", freed))
}
