package backend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/isel/internal/ir"
)

// evalInt returns the outcome of comparing a and b under an integer condition.
func evalInt(c FlagsCondition, a, b int32) (bool, bool) {
	switch c {
	case CondEqual:
		return a == b, true
	case CondNotEqual:
		return a != b, true
	case CondSignedLessThan:
		return a < b, true
	case CondSignedGreaterThanOrEqual:
		return a >= b, true
	case CondSignedLessThanOrEqual:
		return a <= b, true
	case CondSignedGreaterThan:
		return a > b, true
	case CondUnsignedLessThan:
		return uint32(a) < uint32(b), true
	case CondUnsignedGreaterThanOrEqual:
		return uint32(a) >= uint32(b), true
	case CondUnsignedLessThanOrEqual:
		return uint32(a) <= uint32(b), true
	case CondUnsignedGreaterThan:
		return uint32(a) > uint32(b), true
	}
	return false, false
}

// evalFloat returns the outcome of comparing a and b under a floating point
// condition. NaN operands are unordered.
func evalFloat(c FlagsCondition, a, b float64) (bool, bool) {
	unordered := math.IsNaN(a) || math.IsNaN(b)
	switch c {
	case CondFloatLessThanOrUnordered:
		return unordered || a < b, true
	case CondFloatGreaterThanOrEqual:
		return !unordered && a >= b, true
	case CondFloatLessThanOrEqual:
		return !unordered && a <= b, true
	case CondFloatGreaterThanOrUnordered:
		return unordered || a > b, true
	case CondFloatLessThan:
		return !unordered && a < b, true
	case CondFloatGreaterThanOrEqualOrUnordered:
		return unordered || a >= b, true
	case CondFloatLessThanOrEqualOrUnordered:
		return unordered || a <= b, true
	case CondFloatGreaterThan:
		return !unordered && a > b, true
	case CondUnorderedEqual:
		return a == b, true
	case CondUnorderedNotEqual:
		return a != b, true
	}
	return false, false
}

func TestFlagsCondition_Negate(t *testing.T) {
	ints := []int32{math.MinInt32, -1, 0, 1, math.MaxInt32}
	floats := []float64{math.Inf(-1), -1, 0, 1, math.NaN()}
	for c := CondEqual; c < flagsConditionCount; c++ {
		require.Equal(t, c, c.Negate().Negate(), c.String())
		require.NotEqual(t, c, c.Negate(), c.String())
		for _, a := range ints {
			for _, b := range ints {
				if v, ok := evalInt(c, a, b); ok {
					neg, _ := evalInt(c.Negate(), a, b)
					require.Equal(t, !v, neg, "%s %d %d", c, a, b)
				}
			}
		}
		for _, a := range floats {
			for _, b := range floats {
				if v, ok := evalFloat(c, a, b); ok {
					neg, _ := evalFloat(c.Negate(), a, b)
					require.Equal(t, !v, neg, "%s %f %f", c, a, b)
				}
			}
		}
	}
}

func TestFlagsCondition_Commute(t *testing.T) {
	ints := []int32{math.MinInt32, -1, 0, 1, math.MaxInt32}
	floats := []float64{math.Inf(-1), -1, 0, 1, math.NaN()}
	for c := CondEqual; c < flagsConditionCount; c++ {
		require.Equal(t, c, c.Commute().Commute(), c.String())
		for _, a := range ints {
			for _, b := range ints {
				if v, ok := evalInt(c, a, b); ok {
					swapped, _ := evalInt(c.Commute(), b, a)
					require.Equal(t, v, swapped, "%s %d %d", c, a, b)
				}
			}
		}
		for _, a := range floats {
			for _, b := range floats {
				if v, ok := evalFloat(c, a, b); ok {
					swapped, _ := evalFloat(c.Commute(), b, a)
					require.Equal(t, v, swapped, "%s %f %f", c, a, b)
				}
			}
		}
	}
}

func TestFlagsCondition_String(t *testing.T) {
	require.Equal(t, "unsigned less than", CondUnsignedLessThan.String())
	require.Equal(t, "less than or unordered (FP)", CondFloatLessThanOrUnordered.String())
	require.Panics(t, func() { _ = flagsConditionCount.String() })
}

func TestFlagsContinuation(t *testing.T) {
	t.Run("negate", func(t *testing.T) {
		cont := ForBranch(CondSignedLessThan, nil, nil)
		cont.Negate()
		require.Equal(t, CondSignedGreaterThanOrEqual, cont.Condition())
		cont.Negate()
		require.Equal(t, CondSignedLessThan, cont.Condition())
	})
	t.Run("commute", func(t *testing.T) {
		cont := ForSet(CondUnsignedLessThanOrEqual, nil)
		cont.Commute()
		require.Equal(t, CondUnsignedGreaterThanOrEqual, cont.Condition())
		cont.Commute()
		require.Equal(t, CondUnsignedLessThanOrEqual, cont.Condition())
	})
	t.Run("overwrite and negate if equal", func(t *testing.T) {
		for _, tc := range []struct {
			from, with, exp FlagsCondition
		}{
			{from: CondEqual, with: CondSignedLessThan, exp: CondSignedGreaterThanOrEqual},
			{from: CondNotEqual, with: CondSignedLessThan, exp: CondSignedLessThan},
			{from: CondEqual, with: CondFloatLessThan, exp: CondFloatGreaterThanOrEqualOrUnordered},
			{from: CondEqual, with: CondEqual, exp: CondNotEqual},
		} {
			cont := ForBranch(tc.from, nil, nil)
			cont.OverwriteAndNegateIfEqual(tc.with)
			require.Equal(t, tc.exp, cont.Condition(), "%s with %s", tc.from, tc.with)
		}
	})
	t.Run("unsigned", func(t *testing.T) {
		cont := ForBranch(CondSignedGreaterThan, nil, nil)
		cont.OverwriteUnsignedIfSigned()
		require.Equal(t, CondUnsignedGreaterThan, cont.Condition())
		cont = ForBranch(CondEqual, nil, nil)
		cont.OverwriteUnsignedIfSigned()
		require.Equal(t, CondEqual, cont.Condition())
	})
	t.Run("encode", func(t *testing.T) {
		cont := ForDeoptimize(CondNotEqual, ir.DeoptimizeEager, ir.DeoptReasonOverflow, nil)
		code := cont.Encode(NewInstructionCode(mockCmp))
		require.Equal(t, mockCmp, code.ArchOpcode())
		require.Equal(t, FlagsModeDeoptimize, code.FlagsMode())
		require.Equal(t, CondNotEqual, code.FlagsCondition())
		require.Panics(t, func() { cont.Encode(code) })

		var none FlagsContinuation
		require.Equal(t, NewInstructionCode(mockCmp), none.Encode(NewInstructionCode(mockCmp)))
		require.True(t, none.IsNone())
		require.Panics(t, none.Negate)
	})
	t.Run("accessors check the mode", func(t *testing.T) {
		cont := ForSet(CondEqual, nil)
		require.Panics(t, func() { cont.TrueBlock() })
		require.Panics(t, func() { cont.FrameState() })
		require.Equal(t, "set(equal, <nil>)", cont.String())
	})
}
