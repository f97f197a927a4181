// Package vm defines the virtual memory structures of the simulated machine:
// the frame table that describes physical memory and the per-process page
// tables.
package vm

import (
	"errors"
	"fmt"
)

// PID stands for Process ID.
type PID uint32

// NoPID marks a frame that is not owned by any process.
const NoPID PID = 0

// String renders the PID the way processes are labelled, zero-padded to three
// digits.
func (p PID) String() string {
	return fmt.Sprintf("%03d", uint32(p))
}

// NoFrame is the frame number of a page that is not resident.
const NoFrame = -1

// NoPage is the page number of a free frame.
const NoPage = -1

var (
	// ErrProcessNotFound is returned when a process has no page table.
	ErrProcessNotFound = errors.New("process not found")

	// ErrInvalidPage is returned when a page number is out of range.
	ErrInvalidPage = errors.New("invalid page")

	// ErrAlreadyPresent is returned when loading a page that is resident.
	ErrAlreadyPresent = errors.New("page already present")

	// ErrNoVictimFound is returned when the replacement algorithm cannot
	// select a frame to evict.
	ErrNoVictimFound = errors.New("no victim found")

	// ErrInvalidFrame is returned when a frame number is out of range.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrFrameOccupied is returned when allocating a frame that is in use.
	ErrFrameOccupied = errors.New("frame occupied")
)
