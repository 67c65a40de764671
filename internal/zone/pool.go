package zone

const poolPageSize = 128

// Pool is a paged arena of T owned by a Zone. Items never move once
// allocated, so pointers into the pool stay valid until the owning zone is
// destroyed, at which point every item is zeroed.
type Pool[T any] struct {
	zone             *Zone
	pages            []*[poolPageSize]T
	resetFn          func(*T)
	allocated, index int
}

// NewPool returns a new Pool registered with z. resetFn, if non-nil, is
// applied to every item handed out by Allocate.
func NewPool[T any](z *Zone, resetFn func(*T)) *Pool[T] {
	p := &Pool[T]{zone: z, resetFn: resetFn}
	p.Reset()
	z.register(p.Reset)
	return p
}

// Zone returns the zone owning this pool.
func (p *Pool[T]) Zone() *Zone {
	return p.zone
}

// Allocated returns the number of allocated T currently in the pool.
func (p *Pool[T]) Allocated() int {
	return p.allocated
}

// Allocate allocates a new T from the pool.
func (p *Pool[T]) Allocate() *T {
	p.zone.checkLive()
	if p.index == poolPageSize {
		if len(p.pages) == cap(p.pages) {
			p.pages = append(p.pages, new([poolPageSize]T))
		} else {
			i := len(p.pages)
			p.pages = p.pages[:i+1]
			if p.pages[i] == nil {
				p.pages[i] = new([poolPageSize]T)
			}
		}
		p.index = 0
	}
	ret := &p.pages[len(p.pages)-1][p.index]
	if p.resetFn != nil {
		p.resetFn(ret)
	}
	p.index++
	p.allocated++
	p.zone.allocated++
	return ret
}

// AllocateHandle allocates a new T and returns it together with a handle
// that stays valid only while the owning zone is alive.
func (p *Pool[T]) AllocateHandle() (*T, Handle[T]) {
	index := p.allocated
	ret := p.Allocate()
	return ret, Handle[T]{index: int32(index), gen: p.zone.gen}
}

// View returns the pointer to i-th item from the pool.
func (p *Pool[T]) View(i int) *T {
	page, index := i/poolPageSize, i%poolPageSize
	return &p.pages[page][index]
}

// Deref resolves h. Resolving a handle whose zone has since been destroyed
// panics.
func (p *Pool[T]) Deref(h Handle[T]) *T {
	if !h.Valid() {
		panic("BUG: dereferencing an invalid handle")
	}
	p.zone.Check(h.gen)
	if int(h.index) >= p.allocated {
		panic("BUG: handle out of range")
	}
	return p.View(int(h.index))
}

// Reset resets the pool.
func (p *Pool[T]) Reset() {
	for _, ns := range p.pages {
		pages := ns[:]
		for i := range pages {
			var v T
			pages[i] = v
		}
	}
	p.pages = p.pages[:0]
	p.index = poolPageSize
	p.allocated = 0
}

// Handle is a typed index into a Pool tagged with the generation of the
// owning zone at allocation time.
type Handle[T any] struct {
	index int32
	gen   uint32
}

// Index returns the position of the item in its pool.
func (h Handle[T]) Index() int {
	return int(h.index)
}

// Valid returns false for the zero Handle.
func (h Handle[T]) Valid() bool {
	return h.gen != 0
}
