// Package process models the lifecycle of simulated processes as a finite
// state machine.
package process

import (
	"errors"
	"fmt"

	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/sim"
)

// SyscallType names a system call recorded by a process.
type SyscallType string

// The system calls that transitions and memory events record.
const (
	SyscallCPUAssign  SyscallType = "CPU_ASSIGN"
	SyscallIORequest  SyscallType = "IO_REQUEST"
	SyscallIOComplete SyscallType = "IO_COMPLETE"
	SyscallTerminate  SyscallType = "TERMINATE"
	SyscallMemoryInit SyscallType = "MEMORY_INIT"
	SyscallMemoryFree SyscallType = "MEMORY_FREE"
	SyscallPageFault  SyscallType = "PAGE_FAULT"
)

// The registers that transitions write.
const (
	RegAX     = "AX"
	RegIOWait = "IO_WAIT"
	RegIODone = "IO_DONE"
	RegEnd    = "END"
)

// DefaultCause is the cause of transitions requested by the user.
const DefaultCause = "manual"

var (
	// ErrInvalidTransition is matched by every InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidArgument is returned when a process cannot be created with
	// the given parameters.
	ErrInvalidArgument = errors.New("invalid argument")
)

// InvalidTransitionError reports a transition that the lifecycle forbids.
type InvalidTransitionError struct {
	PID  vm.PID
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s → %s (PID %s)",
		e.From, e.To, e.PID)
}

// Is makes the error match ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// A Syscall is an entry of the system call log of a process.
type Syscall struct {
	Type   SyscallType
	At     sim.VTimeInSec
	Detail string
}

// A TransitionRecord is an entry of the history of a process. It keeps a copy
// of the process context after the transition.
type TransitionRecord struct {
	PID       vm.PID
	From      State
	To        State
	Time      sim.VTimeInSec
	Cause     string
	PC        int
	Registers map[string]float64
	Syscalls  []Syscall
	Priority  int
}

// MemoryStats are the memory counters of a process.
type MemoryStats struct {
	NumPages       int
	LoadedPages    int
	PageFaults     int
	MemoryAccesses int
}

// Process is a simulated process.
type Process struct {
	PID            vm.PID
	State          State
	Priority       int
	PC             int
	Registers      map[string]float64
	Syscalls       []Syscall
	History        []TransitionRecord
	CreatedAt      sim.VTimeInSec
	StateEnteredAt sim.VTimeInSec
	Memory         MemoryStats
}

// Clone returns a deep copy of the process.
func (p *Process) Clone() *Process {
	c := *p
	c.Registers = copyRegisters(p.Registers)
	c.Syscalls = append([]Syscall(nil), p.Syscalls...)

	if p.History == nil {
		return &c
	}

	c.History = make([]TransitionRecord, len(p.History))
	for i, r := range p.History {
		c.History[i] = r
		c.History[i].Registers = copyRegisters(r.Registers)
		c.History[i].Syscalls = append([]Syscall(nil), r.Syscalls...)
	}

	return &c
}

// AddSyscall appends a system call to the log.
func (p *Process) AddSyscall(t SyscallType, at sim.VTimeInSec, detail string) {
	p.Syscalls = append(p.Syscalls, Syscall{Type: t, At: at, Detail: detail})
}

func copyRegisters(r map[string]float64) map[string]float64 {
	c := make(map[string]float64, len(r))
	for k, v := range r {
		c[k] = v
	}

	return c
}
