// Package tracing collects traces of a simulation through hooks.
package tracing

import (
	"github.com/sarchlab/osim/kernel"
	"github.com/sarchlab/osim/sim"
)

// Attach registers a hook on a simulation and on its memory, so that the hook
// sees process, replacement and disk events.
func Attach(k *kernel.Comp, hook sim.Hook) {
	k.AcceptHook(hook)
	k.MMU().AcceptReplacementHook(hook)
	k.MMU().AcceptDiskHook(hook)
}
