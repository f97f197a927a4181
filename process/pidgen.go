package process

import (
	"sync"

	"github.com/sarchlab/osim/mem/vm"
)

// PIDGenerator hands out process IDs in sequence, starting from 1.
type PIDGenerator struct {
	mu   sync.Mutex
	last vm.PID
}

// NewPIDGenerator creates a PIDGenerator.
func NewPIDGenerator() *PIDGenerator {
	return &PIDGenerator{}
}

// Next returns the next PID.
func (g *PIDGenerator) Next() vm.PID {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.last++

	return g.last
}

// Peek returns the PID that Next would return, without consuming it.
func (g *PIDGenerator) Peek() vm.PID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.last + 1
}

// Reset makes the generator start from 1 again.
func (g *PIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.last = vm.NoPID
}
