package mmu

import (
	"fmt"
	"log"

	"github.com/sarchlab/osim/mem/swap"
	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/mem/vm/pagefault"
	"github.com/sarchlab/osim/sim"
)

// A Builder can build MMU component
type Builder struct {
	timeTeller    sim.TimeTeller
	pageSize      int
	numFrames     int
	diskIODelay   sim.VTimeInSec
	failurePolicy swap.FailurePolicy
	victimFinder  pagefault.VictimFinder
	logger        *log.Logger
}

// MakeBuilder creates a new builder
func MakeBuilder() Builder {
	return Builder{
		pageSize:    4096,
		numFrames:   8,
		diskIODelay: 1.5,
	}
}

// WithTimeTeller sets the clock of the MMU.
func (b Builder) WithTimeTeller(t sim.TimeTeller) Builder {
	b.timeTeller = t
	return b
}

// WithPageSize sets the page size in bytes.
func (b Builder) WithPageSize(pageSize int) Builder {
	b.pageSize = pageSize
	return b
}

// WithNumFrames sets the number of frames of physical memory.
func (b Builder) WithNumFrames(n int) Builder {
	b.numFrames = n
	return b
}

// WithDiskIODelay sets the time a swap read or write takes.
func (b Builder) WithDiskIODelay(d sim.VTimeInSec) Builder {
	b.diskIODelay = d
	return b
}

// WithSwapFailurePolicy injects disk failures into the swap store.
func (b Builder) WithSwapFailurePolicy(p swap.FailurePolicy) Builder {
	b.failurePolicy = p
	return b
}

// WithVictimFinder replaces the clock replacement algorithm.
func (b Builder) WithVictimFinder(f pagefault.VictimFinder) Builder {
	b.victimFinder = f
	return b
}

// WithLogger sets the logger of the MMU and its page fault handler.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// Build returns a newly created MMU component
func (b Builder) Build(name string) *Comp {
	b.parametersMustBeValid()

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}

	frames := vm.NewFrameTable(b.numFrames, b.pageSize)

	swapBuilder := swap.MakeBuilder().
		WithTimeTeller(b.timeTeller).
		WithIODelay(b.diskIODelay)
	if b.failurePolicy != nil {
		swapBuilder = swapBuilder.WithFailurePolicy(b.failurePolicy)
	}
	swapStore := swapBuilder.Build(name + ".Swap")

	handlerBuilder := pagefault.MakeBuilder().
		WithTimeTeller(b.timeTeller).
		WithFrameTable(frames).
		WithSwapStore(swapStore).
		WithLogger(logger)
	if b.victimFinder != nil {
		handlerBuilder = handlerBuilder.WithVictimFinder(b.victimFinder)
	}

	return &Comp{
		name:         name,
		pageSize:     b.pageSize,
		frames:       frames,
		swapStore:    swapStore,
		faultHandler: handlerBuilder.Build(name + ".PageFaultHandler"),
		tables:       make(map[vm.PID]*vm.PageTable),
		logger:       logger,
	}
}

func (b Builder) parametersMustBeValid() {
	if b.timeTeller == nil {
		panic("mmu requires a time teller")
	}

	if b.pageSize < 1 {
		panic(fmt.Sprintf("page size must be positive, got %d", b.pageSize))
	}

	if b.numFrames < 1 {
		panic(fmt.Sprintf("mmu needs at least one frame, got %d", b.numFrames))
	}

	if b.diskIODelay < 0 {
		panic("disk i/o delay cannot be negative")
	}
}
