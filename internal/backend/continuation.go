package backend

import (
	"fmt"

	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/schedule"
)

// FlagsContinuation is what to do with the flags set by a compare: branch on
// them, deoptimize on them, or materialize them as a boolean.
//
// The mode is fixed by the constructor. Only Negate, Commute and the
// Overwrite methods change the condition afterwards.
type FlagsContinuation struct {
	mode      FlagsMode
	condition FlagsCondition

	trueBlock, falseBlock *schedule.BasicBlock

	kind       ir.DeoptimizeKind
	reason     ir.DeoptimizeReason
	frameState *ir.Node

	result *ir.Node
}

// ForBranch returns a continuation branching to trueBlock when cond holds.
func ForBranch(cond FlagsCondition, trueBlock, falseBlock *schedule.BasicBlock) FlagsContinuation {
	return FlagsContinuation{mode: FlagsModeBranch, condition: cond, trueBlock: trueBlock, falseBlock: falseBlock}
}

// ForDeoptimize returns a continuation deoptimizing to frameState when cond holds.
func ForDeoptimize(cond FlagsCondition, kind ir.DeoptimizeKind, reason ir.DeoptimizeReason, frameState *ir.Node) FlagsContinuation {
	return FlagsContinuation{mode: FlagsModeDeoptimize, condition: cond, kind: kind, reason: reason, frameState: frameState}
}

// ForSet returns a continuation defining result as 1 when cond holds, else 0.
func ForSet(cond FlagsCondition, result *ir.Node) FlagsContinuation {
	return FlagsContinuation{mode: FlagsModeSet, condition: cond, result: result}
}

// Mode returns the mode.
func (c *FlagsContinuation) Mode() FlagsMode { return c.mode }

// IsNone returns true if the flags are not consumed.
func (c *FlagsContinuation) IsNone() bool { return c.mode == FlagsModeNone }

// IsBranch returns true for branch continuations.
func (c *FlagsContinuation) IsBranch() bool { return c.mode == FlagsModeBranch }

// IsDeoptimize returns true for deoptimize continuations.
func (c *FlagsContinuation) IsDeoptimize() bool { return c.mode == FlagsModeDeoptimize }

// IsSet returns true for set continuations.
func (c *FlagsContinuation) IsSet() bool { return c.mode == FlagsModeSet }

// Condition returns the condition tested.
func (c *FlagsContinuation) Condition() FlagsCondition {
	c.mustNotBe(FlagsModeNone)
	return c.condition
}

// TrueBlock returns the block branched to when the condition holds.
func (c *FlagsContinuation) TrueBlock() *schedule.BasicBlock {
	c.mustBe(FlagsModeBranch)
	return c.trueBlock
}

// FalseBlock returns the block branched to when the condition does not hold.
func (c *FlagsContinuation) FalseBlock() *schedule.BasicBlock {
	c.mustBe(FlagsModeBranch)
	return c.falseBlock
}

// FrameState returns the frame state deoptimized to.
func (c *FlagsContinuation) FrameState() *ir.Node {
	c.mustBe(FlagsModeDeoptimize)
	return c.frameState
}

// DeoptimizeKind returns the kind of the deoptimization.
func (c *FlagsContinuation) DeoptimizeKind() ir.DeoptimizeKind {
	c.mustBe(FlagsModeDeoptimize)
	return c.kind
}

// DeoptimizeReason returns the reason of the deoptimization.
func (c *FlagsContinuation) DeoptimizeReason() ir.DeoptimizeReason {
	c.mustBe(FlagsModeDeoptimize)
	return c.reason
}

// Result returns the node defined by a set continuation.
func (c *FlagsContinuation) Result() *ir.Node {
	c.mustBe(FlagsModeSet)
	return c.result
}

// Negate replaces the condition with its negation.
func (c *FlagsContinuation) Negate() {
	c.mustNotBe(FlagsModeNone)
	c.condition = c.condition.Negate()
}

// Commute replaces the condition with the one testing swapped operands.
func (c *FlagsContinuation) Commute() {
	c.mustNotBe(FlagsModeNone)
	c.condition = c.condition.Commute()
}

// Overwrite replaces the condition.
func (c *FlagsContinuation) Overwrite(cond FlagsCondition) {
	c.mustNotBe(FlagsModeNone)
	c.condition = cond
}

// OverwriteAndNegateIfEqual replaces the condition with cond, negated if the
// previous condition was CondEqual. A compare feeding "x == 0" thus becomes
// the inverted compare.
func (c *FlagsContinuation) OverwriteAndNegateIfEqual(cond FlagsCondition) {
	c.mustNotBe(FlagsModeNone)
	negate := c.condition == CondEqual
	c.condition = cond
	if negate {
		c.condition = c.condition.Negate()
	}
}

// OverwriteUnsignedIfSigned turns a signed integer condition into the
// matching unsigned one.
func (c *FlagsContinuation) OverwriteUnsignedIfSigned() {
	switch c.condition {
	case CondSignedLessThan:
		c.condition = CondUnsignedLessThan
	case CondSignedLessThanOrEqual:
		c.condition = CondUnsignedLessThanOrEqual
	case CondSignedGreaterThan:
		c.condition = CondUnsignedGreaterThan
	case CondSignedGreaterThanOrEqual:
		c.condition = CondUnsignedGreaterThanOrEqual
	}
}

// Encode sets the flags mode and condition of code.
func (c *FlagsContinuation) Encode(code InstructionCode) InstructionCode {
	if code.FlagsMode() != FlagsModeNone {
		panic(fmt.Sprintf("BUG: %#x already has a flags mode", uint32(code)))
	}
	if c.mode == FlagsModeNone {
		return code
	}
	return code.WithFlags(c.mode, c.condition)
}

// String implements fmt.Stringer.
func (c *FlagsContinuation) String() string {
	switch c.mode {
	case FlagsModeNone:
		return "none"
	case FlagsModeBranch:
		return fmt.Sprintf("branch(%s, %s, %s)", c.condition, c.trueBlock, c.falseBlock)
	case FlagsModeDeoptimize:
		return fmt.Sprintf("deoptimize(%s, %s)", c.condition, c.reason)
	default:
		return fmt.Sprintf("set(%s, %s)", c.condition, c.result)
	}
}

func (c *FlagsContinuation) mustBe(mode FlagsMode) {
	if c.mode != mode {
		panic(fmt.Sprintf("BUG: %s continuation used as %s", c.mode, mode))
	}
}

func (c *FlagsContinuation) mustNotBe(mode FlagsMode) {
	if c.mode == mode {
		panic(fmt.Sprintf("BUG: condition of a %s continuation", mode))
	}
}
