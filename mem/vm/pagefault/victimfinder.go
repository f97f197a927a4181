package pagefault

import (
	"github.com/sarchlab/osim/mem/vm"
)

// StepAction describes what the clock hand did at one frame.
type StepAction string

// The actions that appear in a clock scan.
const (
	StepEvaluating   StepAction = "evaluating"
	StepSecondChance StepAction = "second_chance"
	StepVictimFound  StepAction = "victim_found"
)

// A ClockStep is one move of the clock hand.
type ClockStep struct {
	Frame  int
	Owner  vm.PID
	Page   int
	Action StepAction
	UseBit bool
}

// A Victim is the frame selected for eviction.
type Victim struct {
	Frame    int
	Attempts int
	Steps    []ClockStep
}

// A VictimFinder decides which frame to evict when memory is full.
type VictimFinder interface {
	FindVictim(frames *vm.FrameTable) (Victim, bool)
}

// ClockVictimFinder implements the clock, or second chance, algorithm. Starting
// from the clock pointer, frames with the use bit set get the bit cleared and
// are skipped; the first frame with the use bit clear is the victim.
//
// The finder does not move the clock pointer of the frame table.
type ClockVictimFinder struct{}

// NewClockVictimFinder creates a ClockVictimFinder.
func NewClockVictimFinder() *ClockVictimFinder {
	return &ClockVictimFinder{}
}

// FindVictim scans at most two full rounds of the frames. Attempts counts the
// frames that were given a second chance.
func (f *ClockVictimFinder) FindVictim(frames *vm.FrameTable) (Victim, bool) {
	numFrames := frames.NumFrames()
	maxAttempts := 2 * numFrames
	pointer := frames.ClockPointer()
	clearUse := false

	v := Victim{Frame: vm.NoFrame}
	for v.Attempts < maxAttempts {
		frame, _ := frames.Frame(pointer)
		step := ClockStep{
			Frame:  pointer,
			Owner:  frame.Owner,
			Page:   frame.PageNumber,
			Action: StepEvaluating,
			UseBit: frame.Use,
		}
		v.Steps = append(v.Steps, step)

		if !frame.Present || !frame.Use {
			step.Action = StepVictimFound
			v.Steps = append(v.Steps, step)
			v.Frame = pointer

			return v, true
		}

		_ = frames.UpdateBits(pointer, vm.BitUpdate{Use: &clearUse})
		step.Action = StepSecondChance
		step.UseBit = false
		v.Steps = append(v.Steps, step)

		pointer = (pointer + 1) % numFrames
		v.Attempts++
	}

	return v, false
}
