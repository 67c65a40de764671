package backend

import "fmt"

// FlagsCondition is the condition an instruction tests after setting the
// flags. Conditions come in pairs so that c^1 is the negation of c.
type FlagsCondition byte

const (
	CondEqual FlagsCondition = iota
	CondNotEqual
	CondSignedLessThan
	CondSignedGreaterThanOrEqual
	CondSignedLessThanOrEqual
	CondSignedGreaterThan
	CondUnsignedLessThan
	CondUnsignedGreaterThanOrEqual
	CondUnsignedLessThanOrEqual
	CondUnsignedGreaterThan
	CondFloatLessThanOrUnordered
	CondFloatGreaterThanOrEqual
	CondFloatLessThanOrEqual
	CondFloatGreaterThanOrUnordered
	CondFloatLessThan
	CondFloatGreaterThanOrEqualOrUnordered
	CondFloatLessThanOrEqualOrUnordered
	CondFloatGreaterThan
	CondUnorderedEqual
	CondUnorderedNotEqual
	CondOverflow
	CondNotOverflow
	CondPositiveOrZero
	CondNegative

	flagsConditionCount
)

var flagsConditionNames = [flagsConditionCount]string{
	CondEqual:                              "equal",
	CondNotEqual:                           "not equal",
	CondSignedLessThan:                     "signed less than",
	CondSignedGreaterThanOrEqual:           "signed greater than or equal",
	CondSignedLessThanOrEqual:              "signed less than or equal",
	CondSignedGreaterThan:                  "signed greater than",
	CondUnsignedLessThan:                   "unsigned less than",
	CondUnsignedGreaterThanOrEqual:         "unsigned greater than or equal",
	CondUnsignedLessThanOrEqual:            "unsigned less than or equal",
	CondUnsignedGreaterThan:                "unsigned greater than",
	CondFloatLessThanOrUnordered:           "less than or unordered (FP)",
	CondFloatGreaterThanOrEqual:            "greater than or equal (FP)",
	CondFloatLessThanOrEqual:               "less than or equal (FP)",
	CondFloatGreaterThanOrUnordered:        "greater than or unordered (FP)",
	CondFloatLessThan:                      "less than (FP)",
	CondFloatGreaterThanOrEqualOrUnordered: "greater than, equal or unordered (FP)",
	CondFloatLessThanOrEqualOrUnordered:    "less than, equal or unordered (FP)",
	CondFloatGreaterThan:                   "greater than (FP)",
	CondUnorderedEqual:                     "unordered equal",
	CondUnorderedNotEqual:                  "unordered not equal",
	CondOverflow:                           "overflow",
	CondNotOverflow:                        "not overflow",
	CondPositiveOrZero:                     "positive or zero",
	CondNegative:                           "negative",
}

// String implements fmt.Stringer.
func (c FlagsCondition) String() string {
	if c >= flagsConditionCount {
		panic(fmt.Sprintf("BUG: unknown flags condition %d", c))
	}
	return flagsConditionNames[c]
}

// Negate returns the condition holding exactly when c does not.
func (c FlagsCondition) Negate() FlagsCondition {
	return c ^ 1
}

// Commute returns the condition to test when the compared operands are swapped.
func (c FlagsCondition) Commute() FlagsCondition {
	switch c {
	case CondSignedLessThan:
		return CondSignedGreaterThan
	case CondSignedGreaterThan:
		return CondSignedLessThan
	case CondSignedLessThanOrEqual:
		return CondSignedGreaterThanOrEqual
	case CondSignedGreaterThanOrEqual:
		return CondSignedLessThanOrEqual
	case CondUnsignedLessThan:
		return CondUnsignedGreaterThan
	case CondUnsignedGreaterThan:
		return CondUnsignedLessThan
	case CondUnsignedLessThanOrEqual:
		return CondUnsignedGreaterThanOrEqual
	case CondUnsignedGreaterThanOrEqual:
		return CondUnsignedLessThanOrEqual
	case CondFloatLessThanOrUnordered:
		return CondFloatGreaterThanOrUnordered
	case CondFloatGreaterThanOrUnordered:
		return CondFloatLessThanOrUnordered
	case CondFloatGreaterThanOrEqual:
		return CondFloatLessThanOrEqual
	case CondFloatLessThanOrEqual:
		return CondFloatGreaterThanOrEqual
	case CondFloatLessThan:
		return CondFloatGreaterThan
	case CondFloatGreaterThan:
		return CondFloatLessThan
	case CondFloatGreaterThanOrEqualOrUnordered:
		return CondFloatLessThanOrEqualOrUnordered
	case CondFloatLessThanOrEqualOrUnordered:
		return CondFloatGreaterThanOrEqualOrUnordered
	case CondEqual, CondNotEqual, CondUnorderedEqual, CondUnorderedNotEqual,
		CondOverflow, CondNotOverflow, CondPositiveOrZero, CondNegative:
		return c
	}
	panic(fmt.Sprintf("BUG: unknown flags condition %d", c))
}

// IsUnsigned returns true for the unsigned integer comparisons.
func (c FlagsCondition) IsUnsigned() bool {
	return c >= CondUnsignedLessThan && c <= CondUnsignedGreaterThan
}
