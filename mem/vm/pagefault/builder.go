package pagefault

import (
	"log"

	"github.com/sarchlab/osim/mem/swap"
	"github.com/sarchlab/osim/mem/vm"
	"github.com/sarchlab/osim/sim"
)

// A Builder can build page fault handlers.
type Builder struct {
	timeTeller   sim.TimeTeller
	frames       *vm.FrameTable
	swapStore    *swap.Store
	victimFinder VictimFinder
	logger       *log.Logger
}

// MakeBuilder creates a Builder that uses the clock algorithm.
func MakeBuilder() Builder {
	return Builder{
		victimFinder: NewClockVictimFinder(),
	}
}

// WithTimeTeller sets the clock used to timestamp replacement events.
func (b Builder) WithTimeTeller(t sim.TimeTeller) Builder {
	b.timeTeller = t
	return b
}

// WithFrameTable sets the physical memory the handler manages.
func (b Builder) WithFrameTable(frames *vm.FrameTable) Builder {
	b.frames = frames
	return b
}

// WithSwapStore sets the backing store of evicted pages.
func (b Builder) WithSwapStore(s *swap.Store) Builder {
	b.swapStore = s
	return b
}

// WithVictimFinder replaces the replacement algorithm.
func (b Builder) WithVictimFinder(f VictimFinder) Builder {
	b.victimFinder = f
	return b
}

// WithLogger sets the logger that reports disk failures.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// Build creates a new Handler.
func (b Builder) Build(name string) *Handler {
	if b.timeTeller == nil || b.frames == nil || b.swapStore == nil {
		log.Panicf("page fault handler %s requires a time teller, "+
			"a frame table and a swap store", name)
	}

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		name:         name,
		timeTeller:   b.timeTeller,
		frames:       b.frames,
		swapStore:    b.swapStore,
		victimFinder: b.victimFinder,
		logger:       logger,
	}
}
