package regalloc

import (
	"math/bits"
	"strings"
)

// RegSet represents a set of register codes of one class.
type RegSet uint64

// NewRegSet returns a new RegSet with the given register codes.
func NewRegSet(codes ...int) RegSet {
	var ret RegSet
	for _, c := range codes {
		ret = ret.add(c)
	}
	return ret
}

func (rs RegSet) has(code int) bool {
	return code < 64 && rs&(1<<uint(code)) != 0
}

func (rs RegSet) add(code int) RegSet {
	if code >= 64 {
		return rs
	}
	return rs | 1<<uint(code)
}

// Range calls f for each register code in ascending order.
func (rs RegSet) Range(f func(code int)) {
	for v := uint64(rs); v != 0; v &= v - 1 {
		f(bits.TrailingZeros64(v))
	}
}

func (rs RegSet) format(names []string) string {
	var ret []string
	rs.Range(func(code int) { ret = append(ret, names[code]) })
	return strings.Join(ret, ", ")
}

// vrSet is a set of virtual registers used by the liveness analysis.
type vrSet struct {
	set bitset
}

func (s *vrSet) contains(v int) bool { return s.set.has(uint(v)) }

func (s *vrSet) insert(v int) { s.set.set(uint(v)) }

func (s *vrSet) remove(v int) { s.set.unset(uint(v)) }

func (s *vrSet) Range(f func(v int)) {
	s.set.scan(func(i uint) { f(int(i)) })
}

// unionWith adds every member of o and returns true if s grew.
func (s *vrSet) unionWith(o *vrSet) (changed bool) {
	for i, w := range o.set.bits {
		if w == 0 {
			continue
		}
		s.set.grow(uint(i))
		if merged := s.set.bits[i] | w; merged != s.set.bits[i] {
			s.set.bits[i] = merged
			changed = true
		}
	}
	return
}

type bitset struct {
	bits []uint64
	// Most sets are small, so up to 320 bits live in this buffer before the
	// backing array moves to the heap.
	buf [5]uint64
}

func (b *bitset) scan(f func(uint)) {
	for i, v := range b.bits {
		for j := uint(i * 64); v != 0; j++ {
			n := uint(bits.TrailingZeros64(v))
			j += n
			v >>= n + 1
			f(j)
		}
	}
}

func (b *bitset) has(i uint) bool {
	index, shift := i/64, i%64
	return index < uint(len(b.bits)) && ((b.bits[index] & (1 << shift)) != 0)
}

func (b *bitset) set(i uint) {
	index, shift := i/64, i%64
	b.grow(index)
	b.bits[index] |= 1 << shift
}

func (b *bitset) unset(i uint) {
	index, shift := i/64, i%64
	if index < uint(len(b.bits)) {
		b.bits[index] &^= 1 << shift
	}
}

// grow makes word index addressable.
func (b *bitset) grow(index uint) {
	if index < uint(len(b.bits)) {
		return
	}
	if index < uint(len(b.buf)) && (len(b.bits) == 0 || &b.bits[0] == &b.buf[0]) {
		b.bits = b.buf[:index+1]
		return
	}
	b.bits = append(b.bits, make([]uint64, (index+1)-uint(len(b.bits)))...)
}
