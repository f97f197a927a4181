package scheduler

import (
	"log"
	"math/rand"

	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/process"
	"github.com/sarchlab/osim/sim"
)

// A Builder can build schedulers.
type Builder struct {
	engine            sim.Engine
	driver            Driver
	mode              Mode
	speed             sim.VTimeInSec
	inactivityTimeout sim.VTimeInSec
	seed              int64
	logger            *log.Logger
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		mode:              Manual,
		speed:             3,
		inactivityTimeout: 10,
		seed:              1,
	}
}

// WithEngine sets the engine that fires the timers.
func (b Builder) WithEngine(e sim.Engine) Builder {
	b.engine = e
	return b
}

// WithDriver sets the component that performs the transitions.
func (b Builder) WithDriver(d Driver) Builder {
	b.driver = d
	return b
}

// WithMode sets the mode the scheduler starts and resets to.
func (b Builder) WithMode(m Mode) Builder {
	b.mode = m
	return b
}

// WithSpeed sets the base delay between two transitions of a process.
func (b Builder) WithSpeed(s sim.VTimeInSec) Builder {
	b.speed = s
	return b
}

// WithInactivityTimeout sets how long manual mode waits for the user.
func (b Builder) WithInactivityTimeout(t sim.VTimeInSec) Builder {
	b.inactivityTimeout = t
	return b
}

// WithSeed sets the seed of the random delays and choices.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithLogger sets the logger. The standard logger is used by default.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// Build creates a new scheduler.
func (b Builder) Build(name string) *Scheduler {
	b.parametersMustBeValid()

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Scheduler{
		ComponentBase: sim.NewComponentBase(name),
		engine:        b.engine,
		driver:        b.driver,
		rng:           rand.New(rand.NewSource(b.seed)),
		logger:        logger,
		initialMode:   b.mode,
		initialSpeed:  b.speed,
		known:         make(map[vm.PID]process.State),
		timers:        make(map[vm.PID]uint64),

		inactivityTimeout: b.inactivityTimeout,
	}
	s.Reset()

	return s
}

func (b Builder) parametersMustBeValid() {
	if b.engine == nil {
		panic("scheduler requires an engine")
	}

	if b.driver == nil {
		panic("scheduler requires a driver")
	}

	if _, err := ParseMode(string(b.mode)); err != nil {
		panic(err)
	}
}
