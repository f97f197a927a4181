package sim

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator hands out the IDs of events.
type IDGenerator interface {
	Generate() string
}

// SequentialIDGenerator numbers IDs from 1, so that a single-threaded run
// always produces the same IDs.
type SequentialIDGenerator struct {
	next atomic.Uint64
}

// Generate returns the next number.
func (g *SequentialIDGenerator) Generate() string {
	return strconv.FormatUint(g.next.Add(1), 10)
}

// XIDGenerator returns globally unique IDs. It suits runs where events are
// created from several goroutines and a sequence carries no meaning.
type XIDGenerator struct{}

// Generate returns a new xid.
func (XIDGenerator) Generate() string {
	return xid.New().String()
}

type idGeneratorBox struct {
	IDGenerator
}

var idGenerator atomic.Value

func init() {
	SetIDGenerator(&SequentialIDGenerator{})
}

// SetIDGenerator replaces the generator used by NewEventBase.
func SetIDGenerator(g IDGenerator) {
	idGenerator.Store(idGeneratorBox{g})
}

// GetIDGenerator returns the generator used by NewEventBase.
func GetIDGenerator() IDGenerator {
	return idGenerator.Load().(idGeneratorBox).IDGenerator
}
