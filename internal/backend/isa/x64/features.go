package x64

import (
	"strings"

	"golang.org/x/sys/cpu"
)

// Features are the optional instruction set extensions code may use.
type Features struct {
	// POPCNT enables Word32Popcnt.
	POPCNT bool
	// BMI1 selects TZCNT for Word32Ctz instead of BSF and a fixup.
	BMI1 bool
}

// DetectFeatures returns the features of the host CPU.
func DetectFeatures() Features {
	return Features{
		POPCNT: cpu.X86.HasPOPCNT,
		BMI1:   cpu.X86.HasBMI1,
	}
}

// String implements fmt.Stringer.
func (f Features) String() string {
	var names []string
	if f.POPCNT {
		names = append(names, "popcnt")
	}
	if f.BMI1 {
		names = append(names, "bmi1")
	}
	if len(names) == 0 {
		return "baseline"
	}
	return strings.Join(names, ",")
}
