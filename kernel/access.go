package kernel

import (
	"fmt"
	"log"
	"sync"

	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/mem/vm/pagefault"
	"github.com/sarchlab/osim/process"
	"github.com/sarchlab/osim/sim"
)

// An AccessResult describes one memory access.
type AccessResult struct {
	PID             vm.PID
	Time            sim.VTimeInSec
	LogicalAddress  uint64
	PageNumber      int
	Offset          uint64
	Write           bool
	PageFault       bool
	FrameNumber     int
	PhysicalAddress uint64

	// Success is false when the page fault could not be served because the
	// disk failed. Hits always succeed.
	Success bool
	Err     error

	Replacement bool
	Victim      *pagefault.VictimInfo
	Attempts    int
	DiskOps     pagefault.DiskOps
	HadDiskIO   bool
	IOTime      sim.VTimeInSec
}

// An AccessTask tracks the memory accesses a process makes during one stay
// in the Running state. Accesses that cannot happen because the process left
// Running are abandoned.
type AccessTask struct {
	PID     vm.PID
	Planned int

	mu        sync.Mutex
	results   []AccessResult
	abandoned int
	done      bool
	doneCh    chan struct{}
}

func newAccessTask(pid vm.PID, planned int) *AccessTask {
	return &AccessTask{
		PID:     pid,
		Planned: planned,
		doneCh:  make(chan struct{}),
	}
}

// Done tells if every planned access either happened or was abandoned.
func (t *AccessTask) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.done
}

// Wait returns a channel that is closed when the task is done.
func (t *AccessTask) Wait() <-chan struct{} {
	return t.doneCh
}

// Results returns the accesses that happened so far.
func (t *AccessTask) Results() []AccessResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]AccessResult(nil), t.results...)
}

// Abandoned returns the number of accesses that will never happen.
func (t *AccessTask) Abandoned() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.abandoned
}

func (t *AccessTask) add(r AccessResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}

	t.results = append(t.results, r)
	if len(t.results)+t.abandoned >= t.Planned {
		t.finish()
	}
}

func (t *AccessTask) abandon() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return 0
	}

	t.abandoned = t.Planned - len(t.results)
	t.finish()

	return t.abandoned
}

func (t *AccessTask) finish() {
	t.done = true
	close(t.doneCh)
}

type accessEvent struct {
	*sim.EventBase
	epoch uint64
	task  *AccessTask
}

type faultCompleteEvent struct {
	*sim.EventBase
	epoch      uint64
	pid        vm.PID
	page       int
	historyLen int
}

// Handle performs scheduled accesses and completes page faults.
func (c *Comp) Handle(e sim.Event) error {
	switch e := e.(type) {
	case accessEvent:
		c.handleAccessEvent(e)
	case faultCompleteEvent:
		c.handleFaultComplete(e)
	default:
		log.Panicf("cannot handle event of type %T", e)
	}

	return nil
}

// AccessMemory reads a logical address of a process.
func (c *Comp) AccessMemory(pid vm.PID, addr uint64) (AccessResult, error) {
	return c.manualAccess(pid, addr, false)
}

// WriteMemory writes a logical address of a process.
func (c *Comp) WriteMemory(pid vm.PID, addr uint64) (AccessResult, error) {
	return c.manualAccess(pid, addr, true)
}

func (c *Comp) manualAccess(
	pid vm.PID,
	addr uint64,
	write bool,
) (AccessResult, error) {
	c.scheduler.NotifyManualAction()

	c.Lock()
	p, err := c.processOf(pid)
	if err != nil {
		c.Unlock()
		return AccessResult{}, err
	}

	if p.State == process.Terminated {
		c.Unlock()
		return AccessResult{}, fmt.Errorf(
			"process %s has terminated: %w", pid, vm.ErrProcessNotFound)
	}

	r, n, err := c.access(p, addr, write)
	c.Unlock()

	n.invoke(c)

	return r, err
}

// access performs one memory access. A fault of a running process sends it
// to Waiting until the disk is done. A fault of a process that does not run
// is served at once, without transitions.
func (c *Comp) access(
	p *process.Process,
	addr uint64,
	write bool,
) (AccessResult, notifications, error) {
	now := c.engine.CurrentTime()

	tr, err := c.mmu.TranslateAddress(p.PID, addr)
	if err != nil {
		return AccessResult{}, nil, err
	}

	p.Memory.MemoryAccesses++

	r := AccessResult{
		PID:            p.PID,
		Time:           now,
		LogicalAddress: addr,
		PageNumber:     tr.PageNumber,
		Offset:         tr.Offset,
		Write:          write,
		FrameNumber:    tr.FrameNumber,
		Success:        true,
	}

	if !tr.PageFault {
		r.PhysicalAddress = tr.PhysicalAddress
		if !write {
			return r, nil, nil
		}

		if err := c.mmu.MarkPageAsModified(p.PID, tr.PageNumber); err != nil {
			return r, nil, err
		}

		return r, c.memoryNotification(MemoryWritten, p.PID, tr.PageNumber), nil
	}

	return c.fault(p, r)
}

func (c *Comp) fault(
	p *process.Process,
	r AccessResult,
) (AccessResult, notifications, error) {
	var n notifications

	r.PageFault = true
	p.Memory.PageFaults++
	p.AddSyscall(process.SyscallPageFault, r.Time,
		fmt.Sprintf("page %d", r.PageNumber))

	running := p.State == process.Running
	if running {
		tn, err := c.transition(p, process.Waiting,
			fmt.Sprintf("disk-io-page-%d", r.PageNumber))
		if err != nil {
			return r, nil, err
		}
		n = append(n, tn...)
	}

	fr, err := c.mmu.HandlePageFaultAndMark(p.PID, r.PageNumber, r.Write)
	if err != nil {
		return r, n, err
	}

	r.Success = fr.Success
	r.Err = fr.Err
	r.FrameNumber = fr.FrameNumber
	r.Replacement = fr.Replacement
	r.Victim = fr.Victim
	r.Attempts = fr.Attempts
	r.DiskOps = fr.DiskOps
	r.HadDiskIO = fr.HadDiskIO
	r.IOTime = fr.IOTime
	if fr.Success {
		r.PhysicalAddress = uint64(fr.FrameNumber)*uint64(c.cfg.PageSize) +
			r.Offset
	} else {
		c.logger.Printf("page fault of process %s on page %d: %v",
			p.PID, r.PageNumber, fr.Err)
	}

	c.refreshLoadedPages(p.PID)
	if fr.Victim != nil {
		c.refreshLoadedPages(fr.Victim.PID)
	}

	if running {
		c.engine.Schedule(faultCompleteEvent{
			EventBase:  sim.NewEventBase(r.Time+fr.IOTime, c),
			epoch:      c.epoch,
			pid:        p.PID,
			page:       r.PageNumber,
			historyLen: len(p.History),
		})
	}

	if fr.Success {
		n = append(n, c.memoryNotification(
			MemoryFaulted, p.PID, r.PageNumber)...)
	}

	return r, n, nil
}

func (c *Comp) handleFaultComplete(e faultCompleteEvent) {
	c.Lock()
	if e.epoch != c.epoch {
		c.Unlock()
		return
	}

	p, found := c.processes[e.pid]
	if !found || p.State != process.Waiting || len(p.History) != e.historyLen {
		c.Unlock()
		c.logger.Printf("process %s left Waiting before page %d arrived",
			e.pid, e.page)

		return
	}

	n, err := c.transition(p, process.Ready,
		fmt.Sprintf("disk-io-complete-page-%d", e.page))
	c.Unlock()

	if err != nil {
		c.logger.Printf("completing page fault: %v", err)
		return
	}

	n.invoke(c)
}

// startBurst plans the accesses of a process that just got the CPU. It must
// be called with the lock held.
func (c *Comp) startBurst(p *process.Process) *AccessTask {
	c.abandonBurst(p.PID)

	task := newAccessTask(p.PID, 2+c.rng.Intn(3))
	c.bursts[p.PID] = task
	c.scheduleAccess(task, c.cfg.AccessDelay)

	return task
}

func (c *Comp) scheduleAccess(task *AccessTask, delay sim.VTimeInSec) {
	now := c.engine.CurrentTime()
	c.engine.Schedule(accessEvent{
		EventBase: sim.NewEventBase(now+delay, c),
		epoch:     c.epoch,
		task:      task,
	})
}

func (c *Comp) abandonBurst(pid vm.PID) {
	task, found := c.bursts[pid]
	if !found {
		return
	}

	delete(c.bursts, pid)
	c.abandonTask(task)
}

func (c *Comp) abandonTask(task *AccessTask) {
	if n := task.abandon(); n > 0 {
		c.logger.Printf("process %s left Running, %d accesses abandoned",
			task.PID, n)
	}
}

func (c *Comp) handleAccessEvent(e accessEvent) {
	c.Lock()
	if e.epoch != c.epoch || e.task.Done() {
		c.Unlock()
		return
	}

	// The burst is detached while its own access runs, so that a fault
	// records the access before the rest of the burst is abandoned.
	p, found := c.processes[e.task.PID]
	if !found {
		c.abandonTask(e.task)
		c.Unlock()

		return
	}
	delete(c.bursts, p.PID)

	addr, write := c.pickAccess(p)
	r, n, err := c.access(p, addr, write)
	if err != nil {
		c.logger.Printf("memory access of process %s: %v", p.PID, err)
		c.abandonTask(e.task)
		c.Unlock()
		n.invoke(c)

		return
	}

	e.task.add(r)
	if !e.task.Done() {
		if p.State == process.Running {
			c.bursts[p.PID] = e.task
			c.scheduleAccess(e.task, c.cfg.AccessInterval)
		} else {
			c.abandonTask(e.task)
		}
	}
	c.Unlock()

	n.invoke(c)
}

// pickAccess chooses the address and the intent of an access. With
// probability FaultBias the page is one that is not loaded.
func (c *Comp) pickAccess(p *process.Process) (uint64, bool) {
	write := c.rng.Float64() < c.cfg.WriteRatio

	page := c.rng.Intn(p.Memory.NumPages)
	if c.rng.Float64() < c.cfg.FaultBias {
		absent, _ := c.mmu.AbsentPages(p.PID)
		if len(absent) > 0 {
			page = absent[c.rng.Intn(len(absent))]
		}
	}

	offset := c.rng.Intn(c.cfg.PageSize)

	return uint64(page)*uint64(c.cfg.PageSize) + uint64(offset), write
}

func (c *Comp) refreshLoadedPages(pid vm.PID) {
	p, found := c.processes[pid]
	if !found {
		return
	}

	if stats := c.mmu.ProcessMemoryStats(pid); stats != nil {
		p.Memory.LoadedPages = stats.PresentPages
	}
}

func (c *Comp) memoryNotification(
	t MemoryChangeType,
	pid vm.PID,
	page int,
) notifications {
	return notifications{{
		Pos: HookPosMemoryChanged,
		Item: MemoryChange{
			Type: t,
			PID:  pid,
			Page: page,
			Time: c.engine.CurrentTime(),
		},
	}}
}

// Await advances the simulation until the task is done or timeout seconds of
// virtual time have passed. It returns whether the task is done. It must not
// be called from an event handler.
func (c *Comp) Await(task *AccessTask, timeout sim.VTimeInSec) (bool, error) {
	deadline := c.engine.CurrentTime() + timeout

	for !task.Done() {
		next, ok := c.engine.NextEventTime()
		if !ok || next > deadline {
			if err := c.engine.RunUntil(deadline); err != nil {
				return false, err
			}

			return task.Done(), nil
		}

		if err := c.engine.RunUntil(next); err != nil {
			return false, err
		}
	}

	return true, nil
}
