package ir

import "github.com/tetratelabs/isel/internal/machine"

// Opcode is the closed set of operations a Node can perform.
type Opcode uint16

const (
	OpcodeInvalid Opcode = iota

	// ----- control -----
	// OpcodeStart is the unique entry of the graph. Its value outputs are the parameters.
	OpcodeStart
	// OpcodeEnd collects every terminator of the graph.
	OpcodeEnd
	// OpcodeLoop merges the loop entry (input 0) with the back edges.
	OpcodeLoop
	OpcodeMerge
	OpcodeBranch
	OpcodeIfTrue
	OpcodeIfFalse
	OpcodeSwitch
	OpcodeIfValue
	OpcodeIfDefault
	OpcodeIfSuccess
	OpcodeIfException
	OpcodeReturn
	OpcodeTailCall
	// OpcodeDeoptimize unconditionally leaves optimized code. Its value input is a FrameState.
	OpcodeDeoptimize
	// OpcodeDeoptimizeIf takes (condition, frame state) and leaves optimized code when the condition holds.
	OpcodeDeoptimizeIf
	OpcodeDeoptimizeUnless
	OpcodeThrow
	OpcodeOsrNormalEntry
	OpcodeOsrLoopEntry
	// OpcodeDead replaces values, effects and controls proven unreachable.
	OpcodeDead

	// ----- common -----
	OpcodeParameter
	OpcodeOsrValue
	OpcodeInt32Constant
	OpcodeInt64Constant
	OpcodeFloat32Constant
	OpcodeFloat64Constant
	OpcodeNumberConstant
	OpcodeHeapConstant
	OpcodeExternalConstant
	OpcodePhi
	OpcodeEffectPhi
	// OpcodeSelect takes (condition, if true, if false).
	OpcodeSelect
	OpcodeProjection
	// OpcodeCall takes the target, the arguments and an optional frame state as value inputs.
	OpcodeCall
	// OpcodeFrameState takes (parameters, locals, stack, context, function[, outer]).
	OpcodeFrameState
	OpcodeStateValues
	OpcodeOptimizedOut

	// ----- simplified: lowered before instruction selection -----
	OpcodeNumberAdd
	OpcodeNumberSubtract
	OpcodeNumberMultiply
	OpcodeNumberDivide
	OpcodeNumberModulus
	OpcodeNumberEqual
	OpcodeNumberLessThan
	OpcodeNumberLessThanOrEqual
	OpcodeNumberBitwiseAnd
	OpcodeNumberBitwiseOr
	OpcodeNumberBitwiseXor
	OpcodeNumberShiftLeft
	OpcodeNumberShiftRight
	OpcodeNumberShiftRightLogical
	// OpcodeCheckedInt32Add takes (left, right, frame state) and deoptimizes on overflow.
	OpcodeCheckedInt32Add
	OpcodeCheckedInt32Sub

	// ----- machine -----
	// OpcodeLoad takes (base, index) and reads the machine type given by the operator.
	OpcodeLoad
	// OpcodeStore takes (base, index, value).
	OpcodeStore
	OpcodeWord32And
	OpcodeWord32Or
	OpcodeWord32Xor
	OpcodeWord32Shl
	OpcodeWord32Shr
	OpcodeWord32Sar
	OpcodeWord32Equal
	OpcodeWord32Clz
	OpcodeWord32Ctz
	OpcodeWord32Popcnt
	OpcodeWord64And
	OpcodeWord64Or
	OpcodeWord64Xor
	OpcodeWord64Shl
	OpcodeWord64Shr
	OpcodeWord64Sar
	OpcodeWord64Equal
	OpcodeInt32Add
	// OpcodeInt32AddWithOverflow produces the wrapped sum (projection 0) and the overflow bit (projection 1).
	OpcodeInt32AddWithOverflow
	OpcodeInt32Sub
	OpcodeInt32SubWithOverflow
	OpcodeInt32Mul
	OpcodeInt32Div
	OpcodeInt32Mod
	OpcodeUint32Div
	OpcodeUint32Mod
	OpcodeInt32LessThan
	OpcodeInt32LessThanOrEqual
	OpcodeUint32LessThan
	OpcodeUint32LessThanOrEqual
	OpcodeInt64Add
	OpcodeInt64Sub
	OpcodeInt64Mul
	OpcodeInt64LessThan
	OpcodeInt64LessThanOrEqual
	OpcodeUint64LessThan
	OpcodeUint64LessThanOrEqual
	OpcodeFloat32Add
	OpcodeFloat32Sub
	OpcodeFloat32Mul
	OpcodeFloat32Div
	OpcodeFloat32Equal
	OpcodeFloat32LessThan
	OpcodeFloat32LessThanOrEqual
	OpcodeFloat64Add
	OpcodeFloat64Sub
	OpcodeFloat64Mul
	OpcodeFloat64Div
	OpcodeFloat64Mod
	OpcodeFloat64Sqrt
	OpcodeFloat64Equal
	OpcodeFloat64LessThan
	OpcodeFloat64LessThanOrEqual
	OpcodeChangeInt32ToFloat64
	OpcodeChangeUint32ToFloat64
	OpcodeChangeFloat64ToInt32
	OpcodeChangeFloat64ToUint32
	OpcodeTruncateFloat64ToWord32
	OpcodeChangeInt32ToInt64
	OpcodeChangeUint32ToUint64
	OpcodeTruncateInt64ToInt32
	OpcodeChangeFloat32ToFloat64
	OpcodeTruncateFloat64ToFloat32

	// opcodeEnd marks the end of the opcode list.
	opcodeEnd
)

// OpcodeCount is the number of valid opcodes, OpcodeInvalid excluded.
const OpcodeCount = int(opcodeEnd) - 1

type opcodeCategory byte

const (
	categoryInvalid opcodeCategory = iota
	categoryControl
	categoryCommon
	categorySimplified
	categoryMachine
)

// variadic marks an input or output count carried by the Operator.
const variadic = -1

type opcodeInfo struct {
	name                            string
	category                        opcodeCategory
	valueIn, effectIn, controlIn    int8
	valueOut, effectOut, controlOut int8
	props                           Properties
	// out is the machine type of the value output of machine and constant opcodes.
	out machine.Type
	// in is the representation every value input of a machine opcode must have.
	in machine.Representation
}

var opcodeInfos = [opcodeEnd]opcodeInfo{
	OpcodeStart:                    {"Start", categoryControl, 0, 0, 0, variadic, 1, 1, 0, machine.None, machine.RepNone},
	OpcodeEnd:                      {"End", categoryControl, 0, 0, variadic, 0, 0, 0, 0, machine.None, machine.RepNone},
	OpcodeLoop:                     {"Loop", categoryControl, 0, 0, variadic, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeMerge:                    {"Merge", categoryControl, 0, 0, variadic, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeBranch:                   {"Branch", categoryControl, 1, 0, 1, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeIfTrue:                   {"IfTrue", categoryControl, 0, 0, 1, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeIfFalse:                  {"IfFalse", categoryControl, 0, 0, 1, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeSwitch:                   {"Switch", categoryControl, 1, 0, 1, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeIfValue:                  {"IfValue", categoryControl, 0, 0, 1, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeIfDefault:                {"IfDefault", categoryControl, 0, 0, 1, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeIfSuccess:                {"IfSuccess", categoryControl, 0, 0, 1, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeIfException:              {"IfException", categoryControl, 0, 1, 1, 1, 1, 1, 0, machine.AnyTagged, machine.RepNone},
	OpcodeReturn:                   {"Return", categoryControl, variadic, 1, 1, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeTailCall:                 {"TailCall", categoryControl, variadic, 1, 1, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeDeoptimize:               {"Deoptimize", categoryControl, 1, 1, 1, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeDeoptimizeIf:             {"DeoptimizeIf", categoryControl, 2, 1, 1, 0, 1, 1, 0, machine.None, machine.RepNone},
	OpcodeDeoptimizeUnless:         {"DeoptimizeUnless", categoryControl, 2, 1, 1, 0, 1, 1, 0, machine.None, machine.RepNone},
	OpcodeThrow:                    {"Throw", categoryControl, 0, 1, 1, 0, 0, 1, 0, machine.None, machine.RepNone},
	OpcodeOsrNormalEntry:           {"OsrNormalEntry", categoryControl, 0, 1, 1, 0, 1, 1, 0, machine.None, machine.RepNone},
	OpcodeOsrLoopEntry:             {"OsrLoopEntry", categoryControl, 0, 1, 1, 0, 1, 1, 0, machine.None, machine.RepNone},
	OpcodeDead:                     {"Dead", categoryControl, 0, 0, 0, 1, 1, 1, 0, machine.None, machine.RepNone},
	OpcodeParameter:                {"Parameter", categoryCommon, 0, 0, 1, 1, 0, 0, 0, machine.None, machine.RepNone},
	OpcodeOsrValue:                 {"OsrValue", categoryCommon, 0, 0, 1, 1, 0, 0, 0, machine.AnyTagged, machine.RepNone},
	OpcodeInt32Constant:            {"Int32Constant", categoryCommon, 0, 0, 0, 1, 0, 0, PropConstant, machine.Int32, machine.RepNone},
	OpcodeInt64Constant:            {"Int64Constant", categoryCommon, 0, 0, 0, 1, 0, 0, PropConstant, machine.Int64, machine.RepNone},
	OpcodeFloat32Constant:          {"Float32Constant", categoryCommon, 0, 0, 0, 1, 0, 0, PropConstant, machine.Float32, machine.RepNone},
	OpcodeFloat64Constant:          {"Float64Constant", categoryCommon, 0, 0, 0, 1, 0, 0, PropConstant, machine.Float64, machine.RepNone},
	OpcodeNumberConstant:           {"NumberConstant", categoryCommon, 0, 0, 0, 1, 0, 0, PropConstant, machine.AnyTagged, machine.RepNone},
	OpcodeHeapConstant:             {"HeapConstant", categoryCommon, 0, 0, 0, 1, 0, 0, PropConstant, machine.AnyTagged, machine.RepNone},
	OpcodeExternalConstant:         {"ExternalConstant", categoryCommon, 0, 0, 0, 1, 0, 0, PropConstant, machine.Pointer, machine.RepNone},
	OpcodePhi:                      {"Phi", categoryCommon, variadic, 0, 1, 1, 0, 0, 0, machine.None, machine.RepNone},
	OpcodeEffectPhi:                {"EffectPhi", categoryCommon, 0, variadic, 1, 0, 1, 0, 0, machine.None, machine.RepNone},
	OpcodeSelect:                   {"Select", categoryCommon, 3, 0, 0, 1, 0, 0, 0, machine.None, machine.RepNone},
	OpcodeProjection:               {"Projection", categoryCommon, 1, 0, 0, 1, 0, 0, 0, machine.None, machine.RepNone},
	OpcodeCall:                     {"Call", categoryCommon, variadic, 1, 1, variadic, 1, 1, 0, machine.None, machine.RepNone},
	OpcodeFrameState:               {"FrameState", categoryCommon, variadic, 0, 0, 1, 0, 0, 0, machine.None, machine.RepNone},
	OpcodeStateValues:              {"StateValues", categoryCommon, variadic, 0, 0, 1, 0, 0, 0, machine.None, machine.RepNone},
	OpcodeOptimizedOut:             {"OptimizedOut", categoryCommon, 0, 0, 0, 1, 0, 0, PropConstant, machine.None, machine.RepNone},
	OpcodeNumberAdd:                {"NumberAdd", categorySimplified, 2, 0, 0, 1, 0, 0, PropCommutative, machine.AnyTagged, machine.RepTagged},
	OpcodeNumberSubtract:           {"NumberSubtract", categorySimplified, 2, 0, 0, 1, 0, 0, 0, machine.AnyTagged, machine.RepTagged},
	OpcodeNumberMultiply:           {"NumberMultiply", categorySimplified, 2, 0, 0, 1, 0, 0, PropCommutative, machine.AnyTagged, machine.RepTagged},
	OpcodeNumberDivide:             {"NumberDivide", categorySimplified, 2, 0, 0, 1, 0, 0, 0, machine.AnyTagged, machine.RepTagged},
	OpcodeNumberModulus:            {"NumberModulus", categorySimplified, 2, 0, 0, 1, 0, 0, 0, machine.AnyTagged, machine.RepTagged},
	OpcodeNumberEqual:              {"NumberEqual", categorySimplified, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Bool, machine.RepTagged},
	OpcodeNumberLessThan:           {"NumberLessThan", categorySimplified, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepTagged},
	OpcodeNumberLessThanOrEqual:    {"NumberLessThanOrEqual", categorySimplified, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepTagged},
	OpcodeNumberBitwiseAnd:         {"NumberBitwiseAnd", categorySimplified, 2, 0, 0, 1, 0, 0, PropCommutative, machine.AnyTagged, machine.RepTagged},
	OpcodeNumberBitwiseOr:          {"NumberBitwiseOr", categorySimplified, 2, 0, 0, 1, 0, 0, PropCommutative, machine.AnyTagged, machine.RepTagged},
	OpcodeNumberBitwiseXor:         {"NumberBitwiseXor", categorySimplified, 2, 0, 0, 1, 0, 0, PropCommutative, machine.AnyTagged, machine.RepTagged},
	OpcodeNumberShiftLeft:          {"NumberShiftLeft", categorySimplified, 2, 0, 0, 1, 0, 0, 0, machine.AnyTagged, machine.RepTagged},
	OpcodeNumberShiftRight:         {"NumberShiftRight", categorySimplified, 2, 0, 0, 1, 0, 0, 0, machine.AnyTagged, machine.RepTagged},
	OpcodeNumberShiftRightLogical:  {"NumberShiftRightLogical", categorySimplified, 2, 0, 0, 1, 0, 0, 0, machine.AnyTagged, machine.RepTagged},
	OpcodeCheckedInt32Add:          {"CheckedInt32Add", categorySimplified, 3, 1, 1, 1, 1, 1, PropCommutative, machine.Int32, machine.RepWord32},
	OpcodeCheckedInt32Sub:          {"CheckedInt32Sub", categorySimplified, 3, 1, 1, 1, 1, 1, 0, machine.Int32, machine.RepWord32},
	OpcodeLoad:                     {"Load", categoryMachine, 2, 1, 1, 1, 1, 0, 0, machine.None, machine.RepNone},
	OpcodeStore:                    {"Store", categoryMachine, 3, 1, 1, 0, 1, 0, 0, machine.None, machine.RepNone},
	OpcodeWord32And:                {"Word32And", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Int32, machine.RepWord32},
	OpcodeWord32Or:                 {"Word32Or", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Int32, machine.RepWord32},
	OpcodeWord32Xor:                {"Word32Xor", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Int32, machine.RepWord32},
	OpcodeWord32Shl:                {"Word32Shl", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Int32, machine.RepWord32},
	OpcodeWord32Shr:                {"Word32Shr", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Uint32, machine.RepWord32},
	OpcodeWord32Sar:                {"Word32Sar", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Int32, machine.RepWord32},
	OpcodeWord32Equal:              {"Word32Equal", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Bool, machine.RepWord32},
	OpcodeWord32Clz:                {"Word32Clz", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Uint32, machine.RepWord32},
	OpcodeWord32Ctz:                {"Word32Ctz", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Uint32, machine.RepWord32},
	OpcodeWord32Popcnt:             {"Word32Popcnt", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Uint32, machine.RepWord32},
	OpcodeWord64And:                {"Word64And", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Int64, machine.RepWord64},
	OpcodeWord64Or:                 {"Word64Or", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Int64, machine.RepWord64},
	OpcodeWord64Xor:                {"Word64Xor", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Int64, machine.RepWord64},
	OpcodeWord64Shl:                {"Word64Shl", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Int64, machine.RepWord64},
	OpcodeWord64Shr:                {"Word64Shr", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Uint64, machine.RepWord64},
	OpcodeWord64Sar:                {"Word64Sar", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Int64, machine.RepWord64},
	OpcodeWord64Equal:              {"Word64Equal", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Bool, machine.RepWord64},
	OpcodeInt32Add:                 {"Int32Add", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Int32, machine.RepWord32},
	OpcodeInt32AddWithOverflow:     {"Int32AddWithOverflow", categoryMachine, 2, 0, 0, 2, 0, 0, PropCommutative, machine.Int32, machine.RepWord32},
	OpcodeInt32Sub:                 {"Int32Sub", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Int32, machine.RepWord32},
	OpcodeInt32SubWithOverflow:     {"Int32SubWithOverflow", categoryMachine, 2, 0, 0, 2, 0, 0, 0, machine.Int32, machine.RepWord32},
	OpcodeInt32Mul:                 {"Int32Mul", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Int32, machine.RepWord32},
	OpcodeInt32Div:                 {"Int32Div", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Int32, machine.RepWord32},
	OpcodeInt32Mod:                 {"Int32Mod", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Int32, machine.RepWord32},
	OpcodeUint32Div:                {"Uint32Div", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Uint32, machine.RepWord32},
	OpcodeUint32Mod:                {"Uint32Mod", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Uint32, machine.RepWord32},
	OpcodeInt32LessThan:            {"Int32LessThan", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepWord32},
	OpcodeInt32LessThanOrEqual:     {"Int32LessThanOrEqual", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepWord32},
	OpcodeUint32LessThan:           {"Uint32LessThan", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepWord32},
	OpcodeUint32LessThanOrEqual:    {"Uint32LessThanOrEqual", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepWord32},
	OpcodeInt64Add:                 {"Int64Add", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Int64, machine.RepWord64},
	OpcodeInt64Sub:                 {"Int64Sub", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Int64, machine.RepWord64},
	OpcodeInt64Mul:                 {"Int64Mul", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Int64, machine.RepWord64},
	OpcodeInt64LessThan:            {"Int64LessThan", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepWord64},
	OpcodeInt64LessThanOrEqual:     {"Int64LessThanOrEqual", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepWord64},
	OpcodeUint64LessThan:           {"Uint64LessThan", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepWord64},
	OpcodeUint64LessThanOrEqual:    {"Uint64LessThanOrEqual", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepWord64},
	OpcodeFloat32Add:               {"Float32Add", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Float32, machine.RepFloat32},
	OpcodeFloat32Sub:               {"Float32Sub", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Float32, machine.RepFloat32},
	OpcodeFloat32Mul:               {"Float32Mul", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Float32, machine.RepFloat32},
	OpcodeFloat32Div:               {"Float32Div", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Float32, machine.RepFloat32},
	OpcodeFloat32Equal:             {"Float32Equal", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Bool, machine.RepFloat32},
	OpcodeFloat32LessThan:          {"Float32LessThan", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepFloat32},
	OpcodeFloat32LessThanOrEqual:   {"Float32LessThanOrEqual", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepFloat32},
	OpcodeFloat64Add:               {"Float64Add", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Float64, machine.RepFloat64},
	OpcodeFloat64Sub:               {"Float64Sub", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Float64, machine.RepFloat64},
	OpcodeFloat64Mul:               {"Float64Mul", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Float64, machine.RepFloat64},
	OpcodeFloat64Div:               {"Float64Div", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Float64, machine.RepFloat64},
	OpcodeFloat64Mod:               {"Float64Mod", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Float64, machine.RepFloat64},
	OpcodeFloat64Sqrt:              {"Float64Sqrt", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Float64, machine.RepFloat64},
	OpcodeFloat64Equal:             {"Float64Equal", categoryMachine, 2, 0, 0, 1, 0, 0, PropCommutative, machine.Bool, machine.RepFloat64},
	OpcodeFloat64LessThan:          {"Float64LessThan", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepFloat64},
	OpcodeFloat64LessThanOrEqual:   {"Float64LessThanOrEqual", categoryMachine, 2, 0, 0, 1, 0, 0, 0, machine.Bool, machine.RepFloat64},
	OpcodeChangeInt32ToFloat64:     {"ChangeInt32ToFloat64", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Float64, machine.RepWord32},
	OpcodeChangeUint32ToFloat64:    {"ChangeUint32ToFloat64", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Float64, machine.RepWord32},
	OpcodeChangeFloat64ToInt32:     {"ChangeFloat64ToInt32", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Int32, machine.RepFloat64},
	OpcodeChangeFloat64ToUint32:    {"ChangeFloat64ToUint32", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Uint32, machine.RepFloat64},
	OpcodeTruncateFloat64ToWord32:  {"TruncateFloat64ToWord32", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Int32, machine.RepFloat64},
	OpcodeChangeInt32ToInt64:       {"ChangeInt32ToInt64", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Int64, machine.RepWord32},
	OpcodeChangeUint32ToUint64:     {"ChangeUint32ToUint64", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Uint64, machine.RepWord32},
	OpcodeTruncateInt64ToInt32:     {"TruncateInt64ToInt32", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Int32, machine.RepWord64},
	OpcodeChangeFloat32ToFloat64:   {"ChangeFloat32ToFloat64", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Float64, machine.RepFloat32},
	OpcodeTruncateFloat64ToFloat32: {"TruncateFloat64ToFloat32", categoryMachine, 1, 0, 0, 1, 0, 0, 0, machine.Float32, machine.RepFloat64},
}
