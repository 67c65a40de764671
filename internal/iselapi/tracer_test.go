package iselapi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type stringer string

func (s stringer) String() string { return string(s) }

func TestTracer(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		var nilTracer *Tracer
		require.False(t, nilTracer.Enabled())
		nilTracer.Printf("ignored %d", 1)
		nilTracer.Section("ignored", stringer("x"))
		require.False(t, NewTracer(nil).Enabled())
		require.False(t, NewTracer(nil).WithPrefix("p").Enabled())
	})
	t.Run("enabled", func(t *testing.T) {
		var buf bytes.Buffer
		tr := NewTracer(&buf)
		require.True(t, tr.Enabled())
		tr.Printf("phase %s\n", "scheduling")
		tr.WithPrefix("regalloc").Printf("spilled v%d", 3)
		tr.Section("listing", stringer("a\nb\n\n"))
		require.Equal(t, "phase scheduling\n[regalloc] spilled v3\n---- listing ----\na\nb\n", buf.String())
	})
}

func TestBailoutf(t *testing.T) {
	err := Bailoutf("too many registers: %d", 3)
	require.ErrorIs(t, err, ErrBailout)
	require.EqualError(t, err, "too many registers: 3: bailout")
}
