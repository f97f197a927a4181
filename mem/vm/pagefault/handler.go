// Package pagefault serves page faults. It loads the missing page into a free
// frame, or evicts a page chosen by a VictimFinder when memory is full.
package pagefault

import (
	"fmt"
	"log"

	"github.com/sarchlab/osim/mem/swap"
	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/sim"
)

// HookPosReplacement marks the moment after a fault is served. The hook item
// is the ReplacementEvent.
var HookPosReplacement = &sim.HookPos{Name: "PageReplacement"}

// Handler serves page faults and keeps the replacement history.
//
// Handler is not safe for concurrent use. The MMU serializes all the access.
type Handler struct {
	sim.HookableBase

	name         string
	timeTeller   sim.TimeTeller
	frames       *vm.FrameTable
	swapStore    *swap.Store
	victimFinder VictimFinder
	logger       *log.Logger

	history    []ReplacementEvent
	clockSteps []ClockStep
}

// Name returns the name of the handler.
func (h *Handler) Name() string {
	return h.name
}

// HandlePageFault brings a page of a process into memory. Validation failures
// are returned as errors and change nothing. Disk failures come back as a
// Result that is not successful.
func (h *Handler) HandlePageFault(
	pid vm.PID,
	page int,
	pt *vm.PageTable,
) (Result, error) {
	if pt == nil {
		return Result{}, fmt.Errorf("page fault of process %s: %w",
			pid, vm.ErrProcessNotFound)
	}

	if _, err := pt.Entry(page); err != nil {
		return Result{}, err
	}

	if pt.IsPresent(page) {
		return Result{}, fmt.Errorf("page %d of process %s: %w",
			page, pid, vm.ErrAlreadyPresent)
	}

	if frame, found := h.frames.FirstFreeFrame(); found {
		return h.loadIntoFreeFrame(pid, page, pt, frame, Victim{}), nil
	}

	return h.replace(pid, page, pt)
}

type fetchResult struct {
	origin  Origin
	diskOps DiskOps
	ioTime  sim.VTimeInSec
	err     error
}

// fetch gets the content of a page ready for loading. Pages that were on the
// disk are read; fresh pages get a slot reserved in swap.
func (h *Handler) fetch(pid vm.PID, page int) fetchResult {
	if h.swapStore.Exists(pid, page) {
		r := h.swapStore.ReadPage(pid, page)
		op := r.Operation
		f := fetchResult{
			origin:  OriginDisk,
			diskOps: DiskOps{Read: &op},
			ioTime:  op.Duration,
		}

		if !r.Success {
			f.err = r.Err
		}

		return f
	}

	a := h.swapStore.AllocatePage(pid, page)
	op := a.Operation
	if !a.Success {
		h.logger.Printf("allocating swap for page %d of process %s: %v",
			page, pid, a.Err)
	}

	return fetchResult{
		origin:  OriginRAM,
		diskOps: DiskOps{Allocate: &op},
	}
}

func (h *Handler) loadIntoFreeFrame(
	pid vm.PID,
	page int,
	pt *vm.PageTable,
	frame int,
	scan Victim,
) Result {
	f := h.fetch(pid, page)
	if f.err != nil {
		return h.failed(pid, page, f, scan)
	}

	h.mustLoad(pid, page, pt, frame)

	evt := ReplacementEvent{
		Type:         EventPageLoad,
		Algorithm:    AlgorithmClock,
		Time:         h.timeTeller.CurrentTime(),
		Loaded:       LoadedPage{pid, page, frame, f.origin},
		ClockPointer: h.frames.ClockPointer(),
		Attempts:     scan.Attempts,
		DiskOps:      f.diskOps,
		HadDiskIO:    f.diskOps.Read != nil,
		IOTime:       f.ioTime,
	}
	h.record(&evt)

	return Result{
		Success:     true,
		PID:         pid,
		PageNumber:  page,
		FrameNumber: frame,
		Origin:      f.origin,
		Attempts:    scan.Attempts,
		ClockSteps:  scan.Steps,
		DiskOps:     evt.DiskOps,
		HadDiskIO:   evt.HadDiskIO,
		IOTime:      evt.IOTime,
		Event:       &evt,
	}
}

func (h *Handler) replace(
	pid vm.PID,
	page int,
	pt *vm.PageTable,
) (Result, error) {
	scan, found := h.victimFinder.FindVictim(h.frames)
	h.clockSteps = scan.Steps
	if !found {
		return Result{ClockSteps: scan.Steps, Attempts: scan.Attempts},
			fmt.Errorf("page %d of process %s after %d attempts: %w",
				page, pid, scan.Attempts, vm.ErrNoVictimFound)
	}

	victimFrame, err := h.frames.Frame(scan.Frame)
	if err != nil {
		return Result{}, err
	}

	if victimFrame.IsFree() {
		return h.loadIntoFreeFrame(pid, page, pt, scan.Frame, scan), nil
	}

	f := h.fetch(pid, page)
	if f.err != nil {
		return h.failed(pid, page, f, scan), nil
	}

	victim := VictimInfo{
		PID:         victimFrame.Owner,
		PageNumber:  victimFrame.PageNumber,
		FrameNumber: scan.Frame,
		WasDirty:    victimFrame.Modified,
		UseBit:      victimFrame.Use,
	}

	if victim.WasDirty {
		w := h.swapStore.WritePage(victim.PID, victim.PageNumber,
			writeBackPayload(victim, h.timeTeller.CurrentTime()), true)
		op := w.Operation
		f.diskOps.Write = &op
		f.ioTime += op.Duration

		if !w.Success {
			f.err = w.Err
			return h.failed(pid, page, f, scan), nil
		}
	} else {
		h.swapStore.Release(victim.PID, victim.PageNumber)
	}

	if err := h.frames.Free(scan.Frame); err != nil {
		return Result{}, err
	}
	h.mustLoad(pid, page, pt, scan.Frame)

	pointer := (scan.Frame + 1) % h.frames.NumFrames()
	_ = h.frames.SetClockPointer(pointer)

	evt := ReplacementEvent{
		Type:         EventPageReplacement,
		Algorithm:    AlgorithmClock,
		Time:         h.timeTeller.CurrentTime(),
		Loaded:       LoadedPage{pid, page, scan.Frame, f.origin},
		Victim:       &victim,
		ClockPointer: pointer,
		Attempts:     scan.Attempts,
		DiskOps:      f.diskOps,
		HadDiskIO:    f.diskOps.Read != nil || f.diskOps.Write != nil,
		IOTime:       f.ioTime,
	}
	h.record(&evt)

	return Result{
		Success:                   true,
		PID:                       pid,
		PageNumber:                page,
		FrameNumber:               scan.Frame,
		Origin:                    f.origin,
		Replacement:               true,
		Victim:                    &victim,
		RequiresVictimTableUpdate: true,
		Attempts:                  scan.Attempts,
		ClockSteps:                scan.Steps,
		DiskOps:                   evt.DiskOps,
		HadDiskIO:                 evt.HadDiskIO,
		IOTime:                    evt.IOTime,
		Event:                     &evt,
	}, nil
}

func (h *Handler) mustLoad(pid vm.PID, page int, pt *vm.PageTable, frame int) {
	if err := h.frames.Allocate(frame, pid, page); err != nil {
		log.Panicf("loading page %d of process %s: %v", page, pid, err)
	}

	if err := pt.MarkPresent(page, frame); err != nil {
		log.Panicf("loading page %d of process %s: %v", page, pid, err)
	}
}

func (h *Handler) failed(
	pid vm.PID,
	page int,
	f fetchResult,
	scan Victim,
) Result {
	h.logger.Printf("page fault of process %s page %d not served: %v",
		pid, page, f.err)

	return Result{
		Success:     false,
		Err:         f.err,
		PID:         pid,
		PageNumber:  page,
		FrameNumber: vm.NoFrame,
		Attempts:    scan.Attempts,
		ClockSteps:  scan.Steps,
		DiskOps:     f.diskOps,
		HadDiskIO:   f.diskOps.Read != nil || f.diskOps.Write != nil,
		IOTime:      f.ioTime,
	}
}

func (h *Handler) record(evt *ReplacementEvent) {
	evt.Seq = len(h.history)
	h.history = append(h.history, *evt)

	h.InvokeHook(sim.HookCtx{
		Domain: h,
		Pos:    HookPosReplacement,
		Item:   *evt,
	})
}

func writeBackPayload(v VictimInfo, now sim.VTimeInSec) []byte {
	return []byte(fmt.Sprintf("page %d of process %s written back at %.6f",
		v.PageNumber, v.PID, now))
}

// History returns a copy of all the replacement events.
func (h *Handler) History() []ReplacementEvent {
	events := make([]ReplacementEvent, len(h.history))
	copy(events, h.history)

	return events
}

// LastReplacement returns the most recent event.
func (h *Handler) LastReplacement() (ReplacementEvent, bool) {
	if len(h.history) == 0 {
		return ReplacementEvent{}, false
	}

	return h.history[len(h.history)-1], true
}

// ClockSteps returns the steps of the most recent clock scan.
func (h *Handler) ClockSteps() []ClockStep {
	steps := make([]ClockStep, len(h.clockSteps))
	copy(steps, h.clockSteps)

	return steps
}

// Stats summarizes the replacement history.
func (h *Handler) Stats() Stats {
	s := Stats{
		TotalEvents:      len(h.history),
		VictimsByProcess: make(map[vm.PID]int),
		LoadsByProcess:   make(map[vm.PID]int),
	}

	totalAttempts := 0
	for _, evt := range h.history {
		s.LoadsByProcess[evt.Loaded.PID]++

		switch evt.Type {
		case EventPageLoad:
			s.TotalLoads++
		case EventPageReplacement:
			s.TotalReplacements++
			totalAttempts += evt.Attempts
		}

		if evt.Victim == nil {
			continue
		}

		s.VictimsByProcess[evt.Victim.PID]++
		if evt.Victim.WasDirty {
			s.DirtyReplacements++
		} else {
			s.CleanReplacements++
		}
	}

	if s.TotalReplacements > 0 {
		s.AverageClockAttempts =
			float64(totalAttempts) / float64(s.TotalReplacements)
	}

	return s
}

// ClockState tells where the clock hand points to.
func (h *Handler) ClockState() ClockState {
	snapshot := h.frames.Snapshot()
	current, _ := h.frames.Frame(snapshot.ClockPointer)

	return ClockState{
		ClockPointer: snapshot.ClockPointer,
		TotalFrames:  snapshot.TotalFrames,
		UsedFrames:   snapshot.UsedFrames,
		FreeFrames:   snapshot.FreeFrames,
		CurrentFrame: current,
		MemoryFull:   snapshot.FreeFrames == 0,
	}
}

// Reset clears the history and the clock steps.
func (h *Handler) Reset() {
	h.history = nil
	h.clockSteps = nil
}
