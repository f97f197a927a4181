package tracing

import (
	"sync"

	"github.com/sarchlab/osim/kernel"
	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/process"
	"github.com/sarchlab/osim/sim"
)

// StateTimeTracer adds up how long processes stay in each state. Time is
// counted when a process leaves a state, so the current stay of a process is
// not included until its next transition.
type StateTimeTracer struct {
	lock      sync.Mutex
	enteredAt map[vm.PID]sim.VTimeInSec
	perPID    map[vm.PID]map[process.State]sim.VTimeInSec
	total     map[process.State]sim.VTimeInSec
	visits    map[process.State]int
}

// NewStateTimeTracer creates a new StateTimeTracer.
func NewStateTimeTracer() *StateTimeTracer {
	t := &StateTimeTracer{}
	t.Reset()

	return t
}

// Func follows the processes of a simulation.
func (t *StateTimeTracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case kernel.HookPosProcessCreated:
		p := ctx.Item.(*process.Process)

		t.lock.Lock()
		t.enteredAt[p.PID] = p.CreatedAt
		t.lock.Unlock()
	case kernel.HookPosTransition:
		t.transition(ctx.Item.(process.TransitionRecord))
	case kernel.HookPosReset:
		t.Reset()
	}
}

func (t *StateTimeTracer) transition(r process.TransitionRecord) {
	t.lock.Lock()
	defer t.lock.Unlock()

	start, ok := t.enteredAt[r.PID]
	if !ok {
		start = r.Time
	}

	spent := r.Time - start
	if t.perPID[r.PID] == nil {
		t.perPID[r.PID] = make(map[process.State]sim.VTimeInSec)
	}
	t.perPID[r.PID][r.From] += spent
	t.total[r.From] += spent
	t.visits[r.From]++

	t.enteredAt[r.PID] = r.Time
}

// TotalTime returns the time all processes spent in a state.
func (t *StateTimeTracer) TotalTime(s process.State) sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.total[s]
}

// AverageTime returns the average length of a stay in a state.
func (t *StateTimeTracer) AverageTime(s process.State) sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.visits[s] == 0 {
		return 0
	}

	return t.total[s] / sim.VTimeInSec(t.visits[s])
}

// TimeOf returns the time one process spent in a state.
func (t *StateTimeTracer) TimeOf(pid vm.PID, s process.State) sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.perPID[pid][s]
}

// Reset forgets everything.
func (t *StateTimeTracer) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.enteredAt = make(map[vm.PID]sim.VTimeInSec)
	t.perPID = make(map[vm.PID]map[process.State]sim.VTimeInSec)
	t.total = make(map[process.State]sim.VTimeInSec)
	t.visits = make(map[process.State]int)
}
