package kernel

import (
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/sarchlab/osim/mem/swap"
	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/mem/vm/mmu"
	"github.com/sarchlab/osim/process"
	"github.com/sarchlab/osim/scheduler"
	"github.com/sarchlab/osim/sim"
)

// ErrInvalidConfig is returned by Validate for out-of-range parameters.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the parameters of a simulation.
type Config struct {
	TotalFrames        int
	PageSize           int
	BaseSpeed          sim.VTimeInSec
	InactivityTimeout  sim.VTimeInSec
	DiskIODelay        sim.VTimeInSec
	DefaultNumPages    int
	DefaultLoadedPages int
	AccessDelay        sim.VTimeInSec
	AccessInterval     sim.VTimeInSec
	WriteRatio         float64
	FaultBias          float64
	Seed               int64
	Mode               scheduler.Mode
}

// A Builder can build simulation states.
type Builder struct {
	cfg           Config
	engine        sim.Engine
	logger        *log.Logger
	failurePolicy swap.FailurePolicy
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		cfg: Config{
			TotalFrames:        8,
			PageSize:           4096,
			BaseSpeed:          3,
			InactivityTimeout:  10,
			DiskIODelay:        1.5,
			DefaultNumPages:    4,
			DefaultLoadedPages: 2,
			AccessDelay:        0.2,
			AccessInterval:     0.1,
			WriteRatio:         0.3,
			FaultBias:          0.5,
			Seed:               1,
			Mode:               scheduler.Manual,
		},
	}
}

// WithTotalFrames sets the number of frames of physical memory.
func (b Builder) WithTotalFrames(n int) Builder {
	b.cfg.TotalFrames = n
	return b
}

// WithPageSize sets the size of pages and frames in bytes.
func (b Builder) WithPageSize(n int) Builder {
	b.cfg.PageSize = n
	return b
}

// WithBaseSpeed sets the base delay of automatic transitions.
func (b Builder) WithBaseSpeed(s sim.VTimeInSec) Builder {
	b.cfg.BaseSpeed = s
	return b
}

// WithInactivityTimeout sets how long manual mode waits before switching to
// auto mode. Zero or less disables the switch.
func (b Builder) WithInactivityTimeout(t sim.VTimeInSec) Builder {
	b.cfg.InactivityTimeout = t
	return b
}

// WithDiskIODelay sets the time a swap read or write takes.
func (b Builder) WithDiskIODelay(d sim.VTimeInSec) Builder {
	b.cfg.DiskIODelay = d
	return b
}

// WithDefaultNumPages sets the size of processes created by Create.
func (b Builder) WithDefaultNumPages(n int) Builder {
	b.cfg.DefaultNumPages = n
	return b
}

// WithDefaultLoadedPages sets how many pages Create loads up front.
func (b Builder) WithDefaultLoadedPages(n int) Builder {
	b.cfg.DefaultLoadedPages = n
	return b
}

// WithAccessDelay sets the time between getting the CPU and the first
// memory access.
func (b Builder) WithAccessDelay(d sim.VTimeInSec) Builder {
	b.cfg.AccessDelay = d
	return b
}

// WithAccessInterval sets the time between two accesses of a burst.
func (b Builder) WithAccessInterval(d sim.VTimeInSec) Builder {
	b.cfg.AccessInterval = d
	return b
}

// WithWriteRatio sets the probability that an access is a write.
func (b Builder) WithWriteRatio(r float64) Builder {
	b.cfg.WriteRatio = r
	return b
}

// WithFaultBias sets the probability that an access targets a page that is
// not loaded.
func (b Builder) WithFaultBias(r float64) Builder {
	b.cfg.FaultBias = r
	return b
}

// WithSeed sets the seed of every random choice of the simulation.
func (b Builder) WithSeed(seed int64) Builder {
	b.cfg.Seed = seed
	return b
}

// WithMode sets the scheduling mode the simulation starts and resets to.
func (b Builder) WithMode(m scheduler.Mode) Builder {
	b.cfg.Mode = m
	return b
}

// WithConfig replaces all the parameters at once.
func (b Builder) WithConfig(cfg Config) Builder {
	b.cfg = cfg
	return b
}

// WithEngine sets the engine. A new serial engine is used by default.
func (b Builder) WithEngine(e sim.Engine) Builder {
	b.engine = e
	return b
}

// WithLogger sets the logger. The standard logger is used by default.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// WithSwapFailurePolicy injects disk failures.
func (b Builder) WithSwapFailurePolicy(p swap.FailurePolicy) Builder {
	b.failurePolicy = p
	return b
}

// Config returns the parameters the builder holds.
func (b Builder) Config() Config {
	return b.cfg
}

// Validate reports every parameter that is out of range.
func (b Builder) Validate() error {
	cfg := b.cfg
	var errs []error

	invalid := func(ok bool, what string, value any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s %v: %w",
				what, value, ErrInvalidConfig))
		}
	}

	invalid(cfg.TotalFrames >= 1, "total frames", cfg.TotalFrames)
	invalid(cfg.PageSize >= 1, "page size", cfg.PageSize)
	invalid(cfg.DiskIODelay >= 0, "disk delay", cfg.DiskIODelay)
	invalid(cfg.DefaultNumPages >= 1, "default pages", cfg.DefaultNumPages)
	invalid(cfg.DefaultLoadedPages >= 0 &&
		cfg.DefaultLoadedPages <= cfg.DefaultNumPages,
		"default loaded pages", cfg.DefaultLoadedPages)
	invalid(cfg.AccessDelay >= 0, "access delay", cfg.AccessDelay)
	invalid(cfg.AccessInterval >= 0, "access interval", cfg.AccessInterval)
	invalid(cfg.WriteRatio >= 0 && cfg.WriteRatio <= 1,
		"write ratio", cfg.WriteRatio)
	invalid(cfg.FaultBias >= 0 && cfg.FaultBias <= 1,
		"fault bias", cfg.FaultBias)

	_, err := scheduler.ParseMode(string(cfg.Mode))
	invalid(err == nil, "mode", cfg.Mode)

	return errors.Join(errs...)
}

// Build creates a new simulation state.
func (b Builder) Build(name string) *Comp {
	if err := b.Validate(); err != nil {
		panic(err)
	}

	engine := b.engine
	if engine == nil {
		engine = sim.NewSerialEngine()
	}

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}

	memory := mmu.MakeBuilder().
		WithTimeTeller(engine).
		WithNumFrames(b.cfg.TotalFrames).
		WithPageSize(b.cfg.PageSize).
		WithDiskIODelay(b.cfg.DiskIODelay).
		WithSwapFailurePolicy(b.failurePolicy).
		WithLogger(logger).
		Build(name + ".MMU")

	c := &Comp{
		ComponentBase: sim.NewComponentBase(name),
		cfg:           b.cfg,
		engine:        engine,
		mmu:           memory,
		machine:       process.NewMachine(engine, memory, logger),
		pids:          process.NewPIDGenerator(),
		rng:           rand.New(rand.NewSource(b.cfg.Seed)),
		logger:        logger,
		processes:     make(map[vm.PID]*process.Process),
		bursts:        make(map[vm.PID]*AccessTask),
	}

	c.scheduler = scheduler.MakeBuilder().
		WithEngine(engine).
		WithDriver(c).
		WithMode(b.cfg.Mode).
		WithSpeed(b.cfg.BaseSpeed).
		WithInactivityTimeout(b.cfg.InactivityTimeout).
		WithSeed(b.cfg.Seed).
		WithLogger(logger).
		Build(name + ".Scheduler")
	c.scheduler.AcceptHook(sim.HookFunc(c.forwardModeChange))

	return c
}
