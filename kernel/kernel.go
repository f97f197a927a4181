// Package kernel holds the state of a simulation: the processes, the memory
// behind them and the scheduler that moves them along. All the operations a
// user interface needs go through Comp.
package kernel

import (
	"fmt"
	"log"
	"math/rand"
	"sort"

	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/mem/vm/mmu"
	"github.com/sarchlab/osim/process"
	"github.com/sarchlab/osim/scheduler"
	"github.com/sarchlab/osim/sim"
)

// The positions at which Comp invokes its hooks. Hooks always run after the
// change is complete and outside any lock, so they may call back into Comp.
var (
	// HookPosProcessCreated carries the new *process.Process.
	HookPosProcessCreated = &sim.HookPos{Name: "ProcessCreated"}

	// HookPosTransition carries the process.TransitionRecord. The detail is
	// the *process.Process after the transition.
	HookPosTransition = &sim.HookPos{Name: "Transition"}

	// HookPosMemoryChanged carries a MemoryChange.
	HookPosMemoryChanged = &sim.HookPos{Name: "MemoryChanged"}

	// HookPosReset has no item.
	HookPosReset = &sim.HookPos{Name: "Reset"}

	// HookPosModeChanged carries the new scheduler.Mode.
	HookPosModeChanged = scheduler.HookPosModeChanged
)

// HookFunc turns a plain function into a hook.
type HookFunc = sim.HookFunc

// MemoryChangeType tells what changed the memory.
type MemoryChangeType string

// The kinds of memory changes.
const (
	MemoryAllocated MemoryChangeType = "ALLOCATE"
	MemoryFaulted   MemoryChangeType = "PAGE_FAULT"
	MemoryWritten   MemoryChangeType = "WRITE"
	MemoryReleased  MemoryChangeType = "RELEASE"
)

// A MemoryChange is the item of HookPosMemoryChanged.
type MemoryChange struct {
	Type MemoryChangeType
	PID  vm.PID
	Page int
	Time sim.VTimeInSec
}

// Comp is the whole state of one simulation.
type Comp struct {
	*sim.ComponentBase

	cfg       Config
	engine    sim.Engine
	mmu       *mmu.Comp
	machine   *process.Machine
	scheduler *scheduler.Scheduler
	pids      *process.PIDGenerator
	rng       *rand.Rand
	logger    *log.Logger

	processes map[vm.PID]*process.Process
	bursts    map[vm.PID]*AccessTask
	epoch     uint64
}

// Engine returns the engine that drives the simulation.
func (c *Comp) Engine() sim.Engine {
	return c.engine
}

// MMU returns the memory management unit.
func (c *Comp) MMU() *mmu.Comp {
	return c.mmu
}

// Config returns the parameters the simulation was built with.
func (c *Comp) Config() Config {
	return c.cfg
}

// Create makes a process of the default size.
func (c *Comp) Create(priority int) (vm.PID, error) {
	return c.CreateWithMemory(priority,
		c.cfg.DefaultNumPages, c.cfg.DefaultLoadedPages)
}

// CreateWithMemory makes a process with numPages pages and loads up to
// initialLoadedPages of them. Fewer pages are loaded if memory is short.
func (c *Comp) CreateWithMemory(
	priority, numPages, initialLoadedPages int,
) (vm.PID, error) {
	c.scheduler.NotifyManualAction()

	c.Lock()
	pid := c.pids.Peek()
	p, err := c.machine.Create(pid, priority, numPages, initialLoadedPages)
	if err != nil {
		c.Unlock()
		return vm.NoPID, err
	}

	c.pids.Next()
	c.processes[pid] = p
	c.scheduler.ProcessChanged(pid, p.State)
	created := p.Clone()
	now := c.engine.CurrentTime()
	c.Unlock()

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosProcessCreated,
		Item:   created,
	})

	if created.Memory.LoadedPages > 0 {
		c.memoryChanged(MemoryChange{
			Type: MemoryAllocated,
			PID:  pid,
			Page: 0,
			Time: now,
		})
	}

	return pid, nil
}

// Admit moves a process from New to Ready.
func (c *Comp) Admit(pid vm.PID, cause string) (*process.Process, error) {
	p, _, err := c.applyManual(pid, process.OpAdmit, cause)
	return p, err
}

// AssignCPU moves a process from Ready to Running. The returned task tracks
// the burst of memory accesses the process makes while it runs.
func (c *Comp) AssignCPU(
	pid vm.PID,
	cause string,
) (*process.Process, *AccessTask, error) {
	return c.applyManual(pid, process.OpAssignCPU, cause)
}

// Preempt moves a process from Running back to Ready.
func (c *Comp) Preempt(pid vm.PID, cause string) (*process.Process, error) {
	p, _, err := c.applyManual(pid, process.OpPreempt, cause)
	return p, err
}

// RequestIO moves a process from Running to Waiting.
func (c *Comp) RequestIO(pid vm.PID, cause string) (*process.Process, error) {
	p, _, err := c.applyManual(pid, process.OpRequestIO, cause)
	return p, err
}

// IOComplete moves a process from Waiting to Ready.
func (c *Comp) IOComplete(pid vm.PID, cause string) (*process.Process, error) {
	p, _, err := c.applyManual(pid, process.OpIOComplete, cause)
	return p, err
}

// Terminate ends a running process and frees its memory.
func (c *Comp) Terminate(pid vm.PID, cause string) (*process.Process, error) {
	p, _, err := c.applyManual(pid, process.OpTerminate, cause)
	return p, err
}

// Apply performs a named operation on a process.
func (c *Comp) Apply(
	pid vm.PID,
	op process.Operation,
	cause string,
) (*process.Process, *AccessTask, error) {
	return c.applyManual(pid, op, cause)
}

// ApplyAutoTransition performs a transition chosen by the scheduler.
func (c *Comp) ApplyAutoTransition(
	pid vm.PID,
	op process.Operation,
	cause string,
) error {
	_, _, err := c.apply(pid, op, cause)
	return err
}

func (c *Comp) applyManual(
	pid vm.PID,
	op process.Operation,
	cause string,
) (*process.Process, *AccessTask, error) {
	c.scheduler.NotifyManualAction()
	return c.apply(pid, op, cause)
}

func (c *Comp) apply(
	pid vm.PID,
	op process.Operation,
	cause string,
) (*process.Process, *AccessTask, error) {
	c.Lock()
	p, err := c.processOf(pid)
	if err != nil {
		c.Unlock()
		return nil, nil, err
	}

	from := p.State
	if err := c.machine.Apply(p, op, cause); err != nil {
		c.Unlock()
		return nil, nil, err
	}

	n := c.afterTransition(p, from)

	var task *AccessTask
	if p.State == process.Running {
		task = c.startBurst(p)
	}
	snapshot := p.Clone()
	c.Unlock()

	n.invoke(c)

	return snapshot, task, nil
}

// transition moves a process to a state, as part of a memory access. It must
// be called with the lock held.
func (c *Comp) transition(
	p *process.Process,
	to process.State,
	cause string,
) (notifications, error) {
	from := p.State
	if err := c.machine.Transition(p, to, cause); err != nil {
		return nil, err
	}

	return c.afterTransition(p, from), nil
}

// afterTransition updates the bookkeeping of the kernel after a process
// changed state and returns the hooks to invoke once the lock is released.
func (c *Comp) afterTransition(
	p *process.Process,
	from process.State,
) notifications {
	if from == process.Running {
		c.abandonBurst(p.PID)
	}

	c.scheduler.ProcessChanged(p.PID, p.State)

	n := notifications{{
		Pos:    HookPosTransition,
		Item:   p.History[len(p.History)-1],
		Detail: p.Clone(),
	}}

	if p.State == process.Terminated {
		n = append(n, sim.HookCtx{
			Pos: HookPosMemoryChanged,
			Item: MemoryChange{
				Type: MemoryReleased,
				PID:  p.PID,
				Page: vm.NoPage,
				Time: c.engine.CurrentTime(),
			},
		})
	}

	return n
}

// Reset brings the simulation back to its initial state. Events that are
// still pending resolve without effect.
func (c *Comp) Reset() {
	c.Lock()
	c.epoch++
	for pid := range c.bursts {
		c.abandonBurst(pid)
	}
	c.processes = make(map[vm.PID]*process.Process)
	c.pids.Reset()
	c.mmu.Reset()
	c.scheduler.Reset()
	c.Unlock()

	c.logger.Printf("%s: simulation reset", c.Name())

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosReset,
	})
}

// Process returns a copy of a process.
func (c *Comp) Process(pid vm.PID) (*process.Process, error) {
	c.Lock()
	defer c.Unlock()

	p, err := c.processOf(pid)
	if err != nil {
		return nil, err
	}

	return p.Clone(), nil
}

// Processes returns copies of all the processes, in creation order.
// Terminated processes are kept.
func (c *Comp) Processes() []*process.Process {
	c.Lock()
	defer c.Unlock()

	list := make([]*process.Process, 0, len(c.processes))
	for _, p := range c.processes {
		list = append(list, p.Clone())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PID < list[j].PID })

	return list
}

// SetMode switches the scheduling mode.
func (c *Comp) SetMode(m scheduler.Mode) error {
	return c.scheduler.SetMode(m)
}

// Mode returns the scheduling mode.
func (c *Comp) Mode() scheduler.Mode {
	return c.scheduler.Mode()
}

// SetSpeed sets the base delay of automatic transitions. Zero or less pauses
// them.
func (c *Comp) SetSpeed(s sim.VTimeInSec) {
	c.scheduler.SetSpeed(s)
}

// Speed returns the base delay of automatic transitions.
func (c *Comp) Speed() sim.VTimeInSec {
	return c.scheduler.Speed()
}

// SchedulerState describes the scheduler.
func (c *Comp) SchedulerState() scheduler.State {
	return c.scheduler.State()
}

func (c *Comp) processOf(pid vm.PID) (*process.Process, error) {
	p, found := c.processes[pid]
	if !found {
		return nil, fmt.Errorf("process %s: %w", pid, vm.ErrProcessNotFound)
	}

	return p, nil
}

func (c *Comp) forwardModeChange(ctx sim.HookCtx) {
	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosModeChanged,
		Item:   ctx.Item,
	})
}

func (c *Comp) memoryChanged(change MemoryChange) {
	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosMemoryChanged,
		Item:   change,
	})
}

// notifications are hooks collected under the lock and invoked after it is
// released.
type notifications []sim.HookCtx

func (n notifications) invoke(c *Comp) {
	for _, ctx := range n {
		ctx.Domain = c
		c.InvokeHook(ctx)
	}
}
