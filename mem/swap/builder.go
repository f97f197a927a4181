package swap

import (
	"github.com/sarchlab/osim/sim"
)

// A Builder can build swap stores.
type Builder struct {
	timeTeller    sim.TimeTeller
	ioDelay       sim.VTimeInSec
	delayEnabled  bool
	failurePolicy FailurePolicy
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		ioDelay:      1.5,
		delayEnabled: true,
	}
}

// WithTimeTeller sets the clock used to timestamp operations.
func (b Builder) WithTimeTeller(t sim.TimeTeller) Builder {
	b.timeTeller = t
	return b
}

// WithIODelay sets the time each read and write takes.
func (b Builder) WithIODelay(d sim.VTimeInSec) Builder {
	b.ioDelay = d
	return b
}

// WithoutIODelay makes every operation instantaneous.
func (b Builder) WithoutIODelay() Builder {
	b.delayEnabled = false
	return b
}

// WithFailurePolicy sets the policy that injects disk failures.
func (b Builder) WithFailurePolicy(p FailurePolicy) Builder {
	b.failurePolicy = p
	return b
}

// Build creates a new swap store.
func (b Builder) Build(name string) *Store {
	if b.timeTeller == nil {
		panic("swap store requires a time teller")
	}

	if b.ioDelay < 0 {
		panic("disk i/o delay cannot be negative")
	}

	s := &Store{
		name:          name,
		timeTeller:    b.timeTeller,
		ioDelay:       b.ioDelay,
		delayEnabled:  b.delayEnabled,
		failurePolicy: b.failurePolicy,
	}
	s.Reset()

	return s
}
