package zone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPool_Allocate(t *testing.T) {
	z := New("test")
	p := NewPool[int](z, nil)
	ptrs := make([]*int, 0, poolPageSize*3)
	for i := 0; i < poolPageSize*3; i++ {
		v := p.Allocate()
		*v = i
		ptrs = append(ptrs, v)
	}
	require.Equal(t, poolPageSize*3, p.Allocated())
	require.Equal(t, poolPageSize*3, z.Allocated())
	for i := 0; i < poolPageSize*3; i++ {
		require.Equal(t, i, *p.View(i))
		// Items never move.
		require.Same(t, ptrs[i], p.View(i))
	}
}

func TestPool_resetFn(t *testing.T) {
	z := New("test")
	p := NewPool[[]int](z, func(s *[]int) { *s = (*s)[:0] })
	v := p.Allocate()
	*v = append(*v, 1, 2, 3)
	require.Equal(t, 3, len(*v))
	p.Reset()
	v = p.Allocate()
	require.Equal(t, 0, len(*v))
}

func TestZone_Destroy(t *testing.T) {
	z := New("graph")
	p := NewPool[int](z, nil)
	v, h := p.AllocateHandle()
	*v = 100
	require.True(t, h.Valid())
	require.Equal(t, 0, h.Index())
	require.Equal(t, 100, *p.Deref(h))

	gen := z.Generation()
	z.Destroy()
	require.True(t, z.Destroyed())
	require.NotEqual(t, gen, z.Generation())
	require.Equal(t, 0, p.Allocated())
	// The item was zeroed by the destruction.
	require.Equal(t, 0, *v)

	require.Panics(t, func() { p.Deref(h) })
	require.Panics(t, func() { p.Allocate() })
	require.Panics(t, func() { z.Check(gen) })
	// Destroying twice is harmless.
	z.Destroy()
}

func TestHandle_zero(t *testing.T) {
	z := New("test")
	p := NewPool[int](z, nil)
	var h Handle[int]
	require.False(t, h.Valid())
	require.Panics(t, func() { p.Deref(h) })
}

func TestZone_String(t *testing.T) {
	for _, tc := range []struct {
		name    string
		destroy bool
		exp     string
	}{
		{name: "live", exp: `zone(instruction, live, 1 objects)`},
		{name: "destroyed", destroy: true, exp: `zone(instruction, destroyed, 0 objects)`},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			z := New("instruction")
			NewPool[int](z, nil).Allocate()
			if tc.destroy {
				z.Destroy()
			}
			require.Equal(t, tc.exp, z.String())
		})
	}
}
