package reducer

import (
	"math"
	"math/bits"

	"github.com/tetratelabs/isel/internal/ir"
)

// MachineOperatorReducer folds machine operations on constants and applies
// algebraic identities.
type MachineOperatorReducer struct {
	editor Editor
}

// NewMachineOperatorReducer returns a MachineOperatorReducer editing through editor.
func NewMachineOperatorReducer(editor Editor) *MachineOperatorReducer {
	return &MachineOperatorReducer{editor: editor}
}

// Name implements Reducer.Name.
func (m *MachineOperatorReducer) Name() string { return "MachineOperatorReducer" }

func (m *MachineOperatorReducer) int32(v int32) Reduction {
	return Replace(m.editor.Graph().Int32Constant(v))
}

func (m *MachineOperatorReducer) bool(v bool) Reduction {
	if v {
		return m.int32(1)
	}
	return m.int32(0)
}

func (m *MachineOperatorReducer) int64(v int64) Reduction {
	return Replace(m.editor.Graph().Int64Constant(v))
}

func (m *MachineOperatorReducer) float64(v float64) Reduction {
	return Replace(m.editor.Graph().Float64Constant(v))
}

// Reduce implements Reducer.Reduce.
func (m *MachineOperatorReducer) Reduce(n *ir.Node) Reduction {
	op := n.Opcode()
	if !op.IsMachine() || op == ir.OpcodeLoad || op == ir.OpcodeStore {
		return NoChange()
	}
	switch n.Op().ValueInputCount() {
	case 1:
		return m.reduceUnop(n)
	case 2:
		return m.reduceBinop(n)
	}
	return NoChange()
}

func (m *MachineOperatorReducer) reduceBinop(n *ir.Node) Reduction {
	b := ir.MatchBinop(n)
	switch n.Opcode() {
	case ir.OpcodeWord32And, ir.OpcodeWord32Or, ir.OpcodeWord32Xor, ir.OpcodeWord32Shl, ir.OpcodeWord32Shr,
		ir.OpcodeWord32Sar, ir.OpcodeWord32Equal, ir.OpcodeInt32Add, ir.OpcodeInt32Sub, ir.OpcodeInt32Mul,
		ir.OpcodeInt32Div, ir.OpcodeInt32Mod, ir.OpcodeUint32Div, ir.OpcodeUint32Mod, ir.OpcodeInt32LessThan,
		ir.OpcodeInt32LessThanOrEqual, ir.OpcodeUint32LessThan, ir.OpcodeUint32LessThanOrEqual:
		return m.reduceWord32(n, b)
	case ir.OpcodeWord64And, ir.OpcodeWord64Or, ir.OpcodeWord64Xor, ir.OpcodeWord64Shl, ir.OpcodeWord64Shr,
		ir.OpcodeWord64Sar, ir.OpcodeWord64Equal, ir.OpcodeInt64Add, ir.OpcodeInt64Sub, ir.OpcodeInt64Mul,
		ir.OpcodeInt64LessThan, ir.OpcodeInt64LessThanOrEqual, ir.OpcodeUint64LessThan, ir.OpcodeUint64LessThanOrEqual:
		return m.reduceWord64(n, b)
	case ir.OpcodeFloat64Add, ir.OpcodeFloat64Sub, ir.OpcodeFloat64Mul, ir.OpcodeFloat64Div, ir.OpcodeFloat64Mod,
		ir.OpcodeFloat64Equal, ir.OpcodeFloat64LessThan, ir.OpcodeFloat64LessThanOrEqual:
		return m.reduceFloat64(n, b)
	}
	return NoChange()
}

func (m *MachineOperatorReducer) reduceWord32(n *ir.Node, b ir.BinopMatcher) Reduction {
	l, lok := b.LeftInt32()
	r, rok := b.RightInt32()
	if lok && rok {
		return m.foldWord32(n.Opcode(), l, r)
	}
	switch n.Opcode() {
	case ir.OpcodeWord32And:
		if rok && r == 0 {
			return Replace(b.Right) // x & 0 => 0
		}
		if (rok && r == -1) || b.IsSame() {
			return Replace(b.Left) // x & -1 => x, x & x => x
		}
	case ir.OpcodeWord32Or:
		if rok && r == 0 || b.IsSame() {
			return Replace(b.Left)
		}
		if rok && r == -1 {
			return Replace(b.Right)
		}
	case ir.OpcodeWord32Xor:
		if rok && r == 0 {
			return Replace(b.Left)
		}
		if b.IsSame() {
			return m.int32(0)
		}
	case ir.OpcodeWord32Shl, ir.OpcodeWord32Shr, ir.OpcodeWord32Sar:
		if rok && r&0x1f == 0 {
			return Replace(b.Left)
		}
	case ir.OpcodeInt32Add, ir.OpcodeInt32Sub:
		if rok && r == 0 {
			return Replace(b.Left)
		}
		if n.Opcode() == ir.OpcodeInt32Sub && b.IsSame() {
			return m.int32(0)
		}
	case ir.OpcodeInt32Mul:
		switch {
		case rok && r == 0:
			return Replace(b.Right)
		case rok && r == 1:
			return Replace(b.Left)
		case rok && r > 0 && r&(r-1) == 0:
			// x * 2^k => x << k
			n.ReplaceInput(0, b.Left)
			n.ReplaceInput(1, m.editor.Graph().Int32Constant(int32(bits.TrailingZeros32(uint32(r)))))
			n.ChangeOp(ir.Op(ir.OpcodeWord32Shl))
			return Changed(n)
		}
	case ir.OpcodeInt32Div, ir.OpcodeUint32Div:
		if rok && r == 1 {
			return Replace(b.Left)
		}
	case ir.OpcodeWord32Equal:
		if b.IsSame() {
			return m.int32(1)
		}
	case ir.OpcodeInt32LessThan, ir.OpcodeUint32LessThan:
		if b.IsSame() {
			return m.int32(0)
		}
		if n.Opcode() == ir.OpcodeUint32LessThan && rok && r == 0 {
			return m.int32(0) // x < 0 is false for unsigned x.
		}
	case ir.OpcodeInt32LessThanOrEqual, ir.OpcodeUint32LessThanOrEqual:
		if b.IsSame() {
			return m.int32(1)
		}
	}
	return NoChange()
}

func (m *MachineOperatorReducer) foldWord32(op ir.Opcode, l, r int32) Reduction {
	switch op {
	case ir.OpcodeWord32And:
		return m.int32(l & r)
	case ir.OpcodeWord32Or:
		return m.int32(l | r)
	case ir.OpcodeWord32Xor:
		return m.int32(l ^ r)
	case ir.OpcodeWord32Shl:
		return m.int32(l << (uint32(r) & 0x1f))
	case ir.OpcodeWord32Shr:
		return m.int32(int32(uint32(l) >> (uint32(r) & 0x1f)))
	case ir.OpcodeWord32Sar:
		return m.int32(l >> (uint32(r) & 0x1f))
	case ir.OpcodeWord32Equal:
		return m.bool(l == r)
	case ir.OpcodeInt32Add:
		return m.int32(l + r)
	case ir.OpcodeInt32Sub:
		return m.int32(l - r)
	case ir.OpcodeInt32Mul:
		return m.int32(l * r)
	case ir.OpcodeInt32Div:
		if r == 0 || (l == math.MinInt32 && r == -1) {
			return NoChange()
		}
		return m.int32(l / r)
	case ir.OpcodeInt32Mod:
		if r == 0 || r == -1 {
			return NoChange()
		}
		return m.int32(l % r)
	case ir.OpcodeUint32Div:
		if r == 0 {
			return NoChange()
		}
		return m.int32(int32(uint32(l) / uint32(r)))
	case ir.OpcodeUint32Mod:
		if r == 0 {
			return NoChange()
		}
		return m.int32(int32(uint32(l) % uint32(r)))
	case ir.OpcodeInt32LessThan:
		return m.bool(l < r)
	case ir.OpcodeInt32LessThanOrEqual:
		return m.bool(l <= r)
	case ir.OpcodeUint32LessThan:
		return m.bool(uint32(l) < uint32(r))
	case ir.OpcodeUint32LessThanOrEqual:
		return m.bool(uint32(l) <= uint32(r))
	}
	return NoChange()
}

func (m *MachineOperatorReducer) reduceWord64(n *ir.Node, b ir.BinopMatcher) Reduction {
	l, lok := int64Constant(b.Left)
	r, rok := int64Constant(b.Right)
	if !lok || !rok {
		switch n.Opcode() {
		case ir.OpcodeInt64Add, ir.OpcodeInt64Sub, ir.OpcodeWord64Or, ir.OpcodeWord64Xor:
			if rok && r == 0 {
				return Replace(b.Left)
			}
		case ir.OpcodeWord64Equal:
			if b.IsSame() {
				return m.int32(1)
			}
		}
		return NoChange()
	}
	switch n.Opcode() {
	case ir.OpcodeWord64And:
		return m.int64(l & r)
	case ir.OpcodeWord64Or:
		return m.int64(l | r)
	case ir.OpcodeWord64Xor:
		return m.int64(l ^ r)
	case ir.OpcodeWord64Shl:
		return m.int64(l << (uint64(r) & 0x3f))
	case ir.OpcodeWord64Shr:
		return m.int64(int64(uint64(l) >> (uint64(r) & 0x3f)))
	case ir.OpcodeWord64Sar:
		return m.int64(l >> (uint64(r) & 0x3f))
	case ir.OpcodeWord64Equal:
		return m.bool(l == r)
	case ir.OpcodeInt64Add:
		return m.int64(l + r)
	case ir.OpcodeInt64Sub:
		return m.int64(l - r)
	case ir.OpcodeInt64Mul:
		return m.int64(l * r)
	case ir.OpcodeInt64LessThan:
		return m.bool(l < r)
	case ir.OpcodeInt64LessThanOrEqual:
		return m.bool(l <= r)
	case ir.OpcodeUint64LessThan:
		return m.bool(uint64(l) < uint64(r))
	case ir.OpcodeUint64LessThanOrEqual:
		return m.bool(uint64(l) <= uint64(r))
	}
	return NoChange()
}

// int64Constant matches Int64Constant only: word64 operations never take
// Int32Constant inputs.
func int64Constant(n *ir.Node) (int64, bool) {
	if n.Opcode() != ir.OpcodeInt64Constant {
		return 0, false
	}
	return n.Op().Int64Value(), true
}

func float64Constant(n *ir.Node) (float64, bool) {
	if n.Opcode() != ir.OpcodeFloat64Constant {
		return 0, false
	}
	return n.Op().Float64Value(), true
}

func (m *MachineOperatorReducer) reduceFloat64(n *ir.Node, b ir.BinopMatcher) Reduction {
	l, lok := float64Constant(b.Left)
	r, rok := float64Constant(b.Right)
	if !lok || !rok {
		switch n.Opcode() {
		case ir.OpcodeFloat64Mul, ir.OpcodeFloat64Div:
			if rok && r == 1 {
				return Replace(b.Left)
			}
		case ir.OpcodeFloat64Sub:
			if rok && r == 0 && !math.Signbit(r) {
				return Replace(b.Left) // x - 0 => x holds for -0 too.
			}
		}
		return NoChange()
	}
	switch n.Opcode() {
	case ir.OpcodeFloat64Add:
		return m.float64(l + r)
	case ir.OpcodeFloat64Sub:
		return m.float64(l - r)
	case ir.OpcodeFloat64Mul:
		return m.float64(l * r)
	case ir.OpcodeFloat64Div:
		return m.float64(l / r)
	case ir.OpcodeFloat64Mod:
		return m.float64(math.Mod(l, r))
	case ir.OpcodeFloat64Equal:
		return m.bool(l == r)
	case ir.OpcodeFloat64LessThan:
		return m.bool(l < r)
	case ir.OpcodeFloat64LessThanOrEqual:
		return m.bool(l <= r)
	}
	return NoChange()
}

func (m *MachineOperatorReducer) reduceUnop(n *ir.Node) Reduction {
	in := n.ValueInput(0)
	g := m.editor.Graph()
	switch n.Opcode() {
	case ir.OpcodeWord32Clz:
		if v, ok := ir.Int32Value(in); ok {
			return m.int32(int32(bits.LeadingZeros32(uint32(v))))
		}
	case ir.OpcodeWord32Ctz:
		if v, ok := ir.Int32Value(in); ok {
			return m.int32(int32(bits.TrailingZeros32(uint32(v))))
		}
	case ir.OpcodeWord32Popcnt:
		if v, ok := ir.Int32Value(in); ok {
			return m.int32(int32(bits.OnesCount32(uint32(v))))
		}
	case ir.OpcodeFloat64Sqrt:
		if v, ok := float64Constant(in); ok {
			return m.float64(math.Sqrt(v))
		}
	case ir.OpcodeChangeInt32ToFloat64:
		if v, ok := ir.Int32Value(in); ok {
			return m.float64(float64(v))
		}
	case ir.OpcodeChangeUint32ToFloat64:
		if v, ok := ir.Int32Value(in); ok {
			return m.float64(float64(uint32(v)))
		}
	case ir.OpcodeChangeFloat64ToInt32:
		if v, ok := float64Constant(in); ok && v == math.Trunc(v) && v >= math.MinInt32 && v <= math.MaxInt32 {
			return m.int32(int32(v))
		}
		if in.Opcode() == ir.OpcodeChangeInt32ToFloat64 {
			return Replace(in.ValueInput(0))
		}
	case ir.OpcodeChangeFloat64ToUint32:
		if v, ok := float64Constant(in); ok && v == math.Trunc(v) && v >= 0 && v <= math.MaxUint32 {
			return m.int32(int32(uint32(v)))
		}
		if in.Opcode() == ir.OpcodeChangeUint32ToFloat64 {
			return Replace(in.ValueInput(0))
		}
	case ir.OpcodeTruncateFloat64ToWord32:
		if v, ok := float64Constant(in); ok {
			return m.int32(DoubleToInt32(v))
		}
		if op := in.Opcode(); op == ir.OpcodeChangeInt32ToFloat64 || op == ir.OpcodeChangeUint32ToFloat64 {
			return Replace(in.ValueInput(0))
		}
	case ir.OpcodeChangeInt32ToInt64:
		if v, ok := ir.Int32Value(in); ok {
			return m.int64(int64(v))
		}
	case ir.OpcodeChangeUint32ToUint64:
		if v, ok := ir.Int32Value(in); ok {
			return m.int64(int64(uint32(v)))
		}
	case ir.OpcodeTruncateInt64ToInt32:
		if v, ok := int64Constant(in); ok {
			return m.int32(int32(v))
		}
		if op := in.Opcode(); op == ir.OpcodeChangeInt32ToInt64 || op == ir.OpcodeChangeUint32ToUint64 {
			return Replace(in.ValueInput(0))
		}
	case ir.OpcodeChangeFloat32ToFloat64:
		if in.Opcode() == ir.OpcodeFloat32Constant {
			return m.float64(float64(in.Op().Float32Value()))
		}
	case ir.OpcodeTruncateFloat64ToFloat32:
		if v, ok := float64Constant(in); ok {
			return Replace(g.Float32Constant(float32(v)))
		}
		if in.Opcode() == ir.OpcodeChangeFloat32ToFloat64 {
			return Replace(in.ValueInput(0))
		}
	}
	return NoChange()
}

// DoubleToInt32 converts v with the wrap-around semantics of ToInt32:
// truncation towards zero modulo 2^32, with NaN and infinities mapped to 0.
func DoubleToInt32(v float64) int32 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	t := math.Trunc(v)
	if t >= math.MinInt32 && t <= math.MaxInt32 {
		return int32(t)
	}
	m := math.Mod(t, 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return int32(uint32(m))
}
