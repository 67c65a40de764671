// Package zone implements the phase-scoped arenas the pipeline allocates
// from. Destroying a zone is the only way its objects are released: every
// pool registered with it is reset and its generation is bumped, so handles
// obtained before the destruction no longer resolve.
package zone

import (
	"fmt"
	"sync/atomic"
)

// Zone groups the pools whose lifetime ends together.
type Zone struct {
	name      string
	gen       uint32
	destroyed bool
	resets    []func()
	// allocated counts the objects handed out during the current generation.
	allocated int
}

// generations is never reused across zones in a process so that a handle from
// one zone can not accidentally validate against another zone's generation.
var generations atomic.Uint32

// New returns a live zone.
func New(name string) *Zone {
	return &Zone{name: name, gen: generations.Add(1)}
}

// Name returns the zone name given to New.
func (z *Zone) Name() string {
	return z.name
}

// Generation returns the current generation of the zone.
func (z *Zone) Generation() uint32 {
	return z.gen
}

// Allocated returns the number of objects allocated from this zone's pools.
func (z *Zone) Allocated() int {
	return z.allocated
}

// Destroyed reports whether Destroy has been called.
func (z *Zone) Destroyed() bool {
	return z.destroyed
}

// Destroy releases every object allocated from this zone.
func (z *Zone) Destroy() {
	if z.destroyed {
		return
	}
	for _, reset := range z.resets {
		reset()
	}
	z.resets = nil
	z.destroyed = true
	z.allocated = 0
	z.gen = generations.Add(1)
}

// Check panics unless gen is the generation of the live zone.
func (z *Zone) Check(gen uint32) {
	if z.destroyed || gen != z.gen {
		panic(fmt.Sprintf("BUG: use of object from destroyed zone %q", z.name))
	}
}

func (z *Zone) checkLive() {
	if z.destroyed {
		panic(fmt.Sprintf("BUG: allocation in destroyed zone %q", z.name))
	}
}

func (z *Zone) register(reset func()) {
	z.checkLive()
	z.resets = append(z.resets, reset)
}

// String implements fmt.Stringer.
func (z *Zone) String() string {
	state := "live"
	if z.destroyed {
		state = "destroyed"
	}
	return fmt.Sprintf("zone(%s, %s, %d objects)", z.name, state, z.allocated)
}
