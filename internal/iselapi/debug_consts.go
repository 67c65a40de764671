package iselapi

// These consts are used various places in the isel implementations.
// Instead of defining them in each file, we define them here so that we can quickly iterate on
// debugging without spending "where do we have debug logging?" time.

// ----- Debug logging -----
// These consts must be disabled by default. Enable them only when debugging.

const (
	PipelineLoggingEnabled  = false
	ReducerLoggingEnabled   = false
	SchedulerLoggingEnabled = false
	RegAllocLoggingEnabled  = false
)

// ----- Output prints -----
// These consts must be disabled by default. Enable them only when debugging.

const (
	PrintGraph                = false
	PrintLoweredGraph         = false
	PrintSchedule             = false
	PrintSelectedInstructions = false
	PrintRegisterAllocated    = false
	PrintFinalizedMachineCode = false
)

// ----- Validations -----
// These consts must be enabled by default until we reach the point where we can disable them (e.g. multiple days of fuzzing passes).

const (
	SelectorValidationEnabled = true
	RegAllocValidationEnabled = true
	GraphValidationEnabled    = true
)
