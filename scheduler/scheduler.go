// Package scheduler drives processes through their lifecycle on timers, so
// that a simulation can run without a user clicking every transition.
package scheduler

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"

	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/process"
	"github.com/sarchlab/osim/sim"
)

// Mode selects which transitions happen on their own.
type Mode string

// The scheduling modes. Manual leaves every transition to the user, Auto
// drives the whole lifecycle, and SemiAuto only admits processes and gives
// them the CPU.
const (
	Manual   Mode = "manual"
	Auto     Mode = "auto"
	SemiAuto Mode = "semi-auto"
)

// ErrUnknownMode is returned when a mode name is not recognized.
var ErrUnknownMode = errors.New("unknown mode")

// ParseMode finds a mode by its name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case Manual, Auto, SemiAuto:
		return m, nil
	}

	return "", fmt.Errorf("%w %q", ErrUnknownMode, s)
}

// CauseAuto is the cause of the transitions the scheduler performs.
const CauseAuto = "auto"

// HookPosModeChanged marks a mode switch. The hook item is the new Mode.
var HookPosModeChanged = &sim.HookPos{Name: "ModeChanged"}

// A Driver performs the transitions the scheduler decides on.
type Driver interface {
	ApplyAutoTransition(pid vm.PID, op process.Operation, cause string) error
}

// State describes the scheduler.
type State struct {
	Mode              Mode
	Speed             sim.VTimeInSec
	InactivityTimeout sim.VTimeInSec
	Running           bool
	PendingTimers     int
	TrackedProcesses  int
}

type timerEvent struct {
	*sim.EventBase
	pid vm.PID
	gen uint64
}

type inactivityEvent struct {
	*sim.EventBase
	gen uint64
}

// Scheduler keeps one timer per eligible process. When a timer fires, the
// process takes the transition its state calls for and a new timer starts.
type Scheduler struct {
	*sim.ComponentBase

	engine sim.Engine
	driver Driver
	rng    *rand.Rand
	logger *log.Logger

	initialMode  Mode
	initialSpeed sim.VTimeInSec

	mode              Mode
	speed             sim.VTimeInSec
	inactivityTimeout sim.VTimeInSec

	known         map[vm.PID]process.State
	timers        map[vm.PID]uint64
	nextGen       uint64
	inactivityGen uint64
}

// Mode returns the current mode.
func (s *Scheduler) Mode() Mode {
	s.Lock()
	defer s.Unlock()

	return s.mode
}

// Speed returns the base delay between transitions.
func (s *Scheduler) Speed() sim.VTimeInSec {
	s.Lock()
	defer s.Unlock()

	return s.speed
}

// State describes the scheduler.
func (s *Scheduler) State() State {
	s.Lock()
	defer s.Unlock()

	return State{
		Mode:              s.mode,
		Speed:             s.speed,
		InactivityTimeout: s.inactivityTimeout,
		Running:           s.mode != Manual && s.speed > 0,
		PendingTimers:     len(s.timers),
		TrackedProcesses:  len(s.known),
	}
}

// SetMode switches the mode and restarts every timer.
func (s *Scheduler) SetMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}

	s.Lock()
	s.mode = m
	s.rescheduleAll()
	s.Unlock()

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    HookPosModeChanged,
		Item:   m,
	})

	return nil
}

// SetSpeed changes the base delay between transitions and restarts every
// timer. A speed of zero or less pauses the scheduler.
func (s *Scheduler) SetSpeed(speed sim.VTimeInSec) {
	s.Lock()
	defer s.Unlock()

	s.speed = speed
	s.rescheduleAll()
}

// SetInactivityTimeout changes how long manual mode waits for the user before
// switching to auto mode. Zero or less disables the switch.
func (s *Scheduler) SetInactivityTimeout(t sim.VTimeInSec) {
	s.Lock()
	defer s.Unlock()

	s.inactivityTimeout = t
	s.armInactivity()
}

// ProcessChanged tells the scheduler about the new state of a process.
func (s *Scheduler) ProcessChanged(pid vm.PID, state process.State) {
	s.Lock()
	defer s.Unlock()

	if state == process.Terminated {
		delete(s.known, pid)
		delete(s.timers, pid)

		return
	}

	s.known[pid] = state
	if !s.eligible(state) {
		delete(s.timers, pid)
		return
	}

	if _, pending := s.timers[pid]; !pending {
		s.scheduleTimer(pid)
	}
}

// NotifyManualAction restarts the inactivity window of manual mode.
func (s *Scheduler) NotifyManualAction() {
	s.Lock()
	defer s.Unlock()

	s.armInactivity()
}

// Reset forgets all processes and timers and restores the initial mode and
// speed.
func (s *Scheduler) Reset() {
	s.Lock()
	defer s.Unlock()

	s.known = make(map[vm.PID]process.State)
	s.timers = make(map[vm.PID]uint64)
	s.mode = s.initialMode
	s.speed = s.initialSpeed
	s.armInactivity()
}

// Handle fires timers.
func (s *Scheduler) Handle(e sim.Event) error {
	switch e := e.(type) {
	case timerEvent:
		s.fireTimer(e)
	case inactivityEvent:
		s.fireInactivity(e)
	default:
		log.Panicf("cannot handle event of type %T", e)
	}

	return nil
}

func (s *Scheduler) fireTimer(e timerEvent) {
	s.Lock()
	gen, pending := s.timers[e.pid]
	if !pending || gen != e.gen {
		s.Unlock()
		return
	}
	delete(s.timers, e.pid)

	op, ok := s.pickOperation(s.known[e.pid])
	s.Unlock()

	if !ok {
		return
	}

	err := s.driver.ApplyAutoTransition(e.pid, op, CauseAuto)
	if err == nil {
		return
	}

	s.logger.Printf("auto transition %s of process %s: %v", op, e.pid, err)

	s.Lock()
	defer s.Unlock()

	state, known := s.known[e.pid]
	_, pending = s.timers[e.pid]
	if known && !pending && s.eligible(state) {
		s.scheduleTimer(e.pid)
	}
}

func (s *Scheduler) fireInactivity(e inactivityEvent) {
	s.Lock()
	stale := e.gen != s.inactivityGen || s.mode != Manual
	timeout := s.inactivityTimeout
	s.Unlock()

	if stale {
		return
	}

	s.logger.Printf("no manual action for %.1fs, switching to %s mode",
		timeout, Auto)

	_ = s.SetMode(Auto)
}

// pickOperation chooses the transition of a process. Running processes end,
// wait for I/O or get preempted with equal chance.
func (s *Scheduler) pickOperation(state process.State) (process.Operation, bool) {
	if !s.eligible(state) {
		return 0, false
	}

	switch state {
	case process.New:
		return process.OpAdmit, true
	case process.Ready:
		return process.OpAssignCPU, true
	case process.Waiting:
		return process.OpIOComplete, true
	case process.Running:
		switch s.rng.Intn(3) {
		case 0:
			return process.OpTerminate, true
		case 1:
			return process.OpRequestIO, true
		default:
			return process.OpPreempt, true
		}
	}

	return 0, false
}

func (s *Scheduler) eligible(state process.State) bool {
	switch s.mode {
	case Auto:
		return state != process.Terminated
	case SemiAuto:
		return state == process.New || state == process.Ready
	}

	return false
}

func (s *Scheduler) rescheduleAll() {
	s.timers = make(map[vm.PID]uint64)

	pids := make([]vm.PID, 0, len(s.known))
	for pid := range s.known {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	for _, pid := range pids {
		if s.eligible(s.known[pid]) {
			s.scheduleTimer(pid)
		}
	}

	s.armInactivity()
}

func (s *Scheduler) scheduleTimer(pid vm.PID) {
	if s.speed <= 0 {
		return
	}

	s.nextGen++
	s.timers[pid] = s.nextGen

	delay := s.speed * sim.VTimeInSec(0.7+0.8*s.rng.Float64())
	now := s.engine.CurrentTime()
	s.engine.Schedule(timerEvent{
		EventBase: sim.NewEventBase(now+delay, s),
		pid:       pid,
		gen:       s.nextGen,
	})
}

// armInactivity starts a new inactivity window, which also invalidates the
// previous one.
func (s *Scheduler) armInactivity() {
	s.nextGen++
	s.inactivityGen = s.nextGen

	if s.mode != Manual || s.inactivityTimeout <= 0 {
		return
	}

	now := s.engine.CurrentTime()
	// Secondary, so that the other events of the same time are handled in
	// the current mode.
	s.engine.Schedule(inactivityEvent{
		EventBase: sim.NewSecondaryEventBase(now+s.inactivityTimeout, s),
		gen:       s.inactivityGen,
	})
}
