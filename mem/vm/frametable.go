package vm

import (
	"fmt"
	"log"
)

// A Frame is a slot of physical memory that can hold one page.
type Frame struct {
	FrameNumber int
	Owner       PID
	PageNumber  int
	Present     bool
	Use         bool
	Modified    bool
}

// IsFree tells if the frame does not hold any page.
func (f Frame) IsFree() bool {
	return !f.Present
}

// BitUpdate selects the bits to change in UpdateBits. Nil fields are left
// unchanged.
type BitUpdate struct {
	Use      *bool
	Modified *bool
}

// MemorySnapshot is a copy of the frame table state.
type MemorySnapshot struct {
	TotalFrames  int
	PageSize     int
	ClockPointer int
	Frames       []Frame
	UsedFrames   int
	FreeFrames   int
}

// FrameTable describes the physical memory. It also keeps the pointer of the
// clock replacement algorithm.
//
// FrameTable is not safe for concurrent use. The MMU serializes all the
// access.
type FrameTable struct {
	pageSize     int
	frames       []Frame
	clockPointer int
}

// NewFrameTable creates a frame table with the given number of frames.
func NewFrameTable(numFrames, pageSize int) *FrameTable {
	if numFrames <= 0 {
		log.Panicf("frame table needs at least one frame, got %d", numFrames)
	}

	t := &FrameTable{
		pageSize: pageSize,
		frames:   make([]Frame, numFrames),
	}
	t.Reset()

	return t
}

// NumFrames returns the total number of frames.
func (t *FrameTable) NumFrames() int {
	return len(t.frames)
}

// PageSize returns the size of a frame in bytes.
func (t *FrameTable) PageSize() int {
	return t.pageSize
}

// Frame returns a copy of a frame.
func (t *FrameTable) Frame(frame int) (Frame, error) {
	if err := t.mustBeValid(frame); err != nil {
		return Frame{}, err
	}

	return t.frames[frame], nil
}

// FirstFreeFrame returns the free frame with the lowest index.
func (t *FrameTable) FirstFreeFrame() (int, bool) {
	for i := range t.frames {
		if t.frames[i].IsFree() {
			return i, true
		}
	}

	return NoFrame, false
}

// IsFull tells if no frame is free.
func (t *FrameTable) IsFull() bool {
	_, found := t.FirstFreeFrame()
	return !found
}

// Allocate assigns a free frame to a page of a process. The page is marked
// present and used, and not modified.
func (t *FrameTable) Allocate(frame int, pid PID, page int) error {
	if err := t.mustBeValid(frame); err != nil {
		return err
	}

	f := &t.frames[frame]
	if !f.IsFree() {
		return fmt.Errorf("frame %d held by process %s page %d: %w",
			frame, f.Owner, f.PageNumber, ErrFrameOccupied)
	}

	f.Owner = pid
	f.PageNumber = page
	f.Present = true
	f.Use = true
	f.Modified = false

	return nil
}

// Free releases a frame and clears all its bits.
func (t *FrameTable) Free(frame int) error {
	if err := t.mustBeValid(frame); err != nil {
		return err
	}

	t.frames[frame] = Frame{
		FrameNumber: frame,
		Owner:       NoPID,
		PageNumber:  NoPage,
	}

	return nil
}

// UpdateBits changes the use and modified bits of a frame.
func (t *FrameTable) UpdateBits(frame int, update BitUpdate) error {
	if err := t.mustBeValid(frame); err != nil {
		return err
	}

	f := &t.frames[frame]
	if update.Use != nil {
		f.Use = *update.Use
	}

	if update.Modified != nil {
		f.Modified = *update.Modified
	}

	return nil
}

// FramesOf returns copies of the frames held by a process.
func (t *FrameTable) FramesOf(pid PID) []Frame {
	var frames []Frame
	for _, f := range t.frames {
		if f.Present && f.Owner == pid {
			frames = append(frames, f)
		}
	}

	return frames
}

// CountOf returns the number of frames held by a process.
func (t *FrameTable) CountOf(pid PID) int {
	n := 0
	for _, f := range t.frames {
		if f.Present && f.Owner == pid {
			n++
		}
	}

	return n
}

// ClockPointer returns the frame the clock algorithm looks at first.
func (t *FrameTable) ClockPointer() int {
	return t.clockPointer
}

// SetClockPointer moves the clock pointer.
func (t *FrameTable) SetClockPointer(frame int) error {
	if err := t.mustBeValid(frame); err != nil {
		return err
	}

	t.clockPointer = frame

	return nil
}

// AdvanceClockPointer moves the clock pointer to the next frame, wrapping
// around at the end of memory.
func (t *FrameTable) AdvanceClockPointer() int {
	t.clockPointer = (t.clockPointer + 1) % len(t.frames)
	return t.clockPointer
}

// Snapshot returns a copy of the frame table.
func (t *FrameTable) Snapshot() MemorySnapshot {
	s := MemorySnapshot{
		TotalFrames:  len(t.frames),
		PageSize:     t.pageSize,
		ClockPointer: t.clockPointer,
		Frames:       make([]Frame, len(t.frames)),
	}

	copy(s.Frames, t.frames)
	for _, f := range t.frames {
		if f.Present {
			s.UsedFrames++
		}
	}
	s.FreeFrames = s.TotalFrames - s.UsedFrames

	return s
}

// Reset frees all the frames and moves the clock pointer to frame 0.
func (t *FrameTable) Reset() {
	for i := range t.frames {
		t.frames[i] = Frame{
			FrameNumber: i,
			Owner:       NoPID,
			PageNumber:  NoPage,
		}
	}

	t.clockPointer = 0
}

func (t *FrameTable) mustBeValid(frame int) error {
	if frame < 0 || frame >= len(t.frames) {
		return fmt.Errorf("frame %d of %d: %w",
			frame, len(t.frames), ErrInvalidFrame)
	}

	return nil
}
