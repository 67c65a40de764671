package ir

// Int32Value returns the value of n if it is an Int32Constant.
func Int32Value(n *Node) (int32, bool) {
	if n.Opcode() != OpcodeInt32Constant {
		return 0, false
	}
	return n.op.Int32Value(), true
}

// Int64Value returns the value of n if it is an Int32Constant or an Int64Constant.
func Int64Value(n *Node) (int64, bool) {
	switch n.Opcode() {
	case OpcodeInt32Constant:
		return int64(n.op.Int32Value()), true
	case OpcodeInt64Constant:
		return n.op.Int64Value(), true
	}
	return 0, false
}

// Float64Value returns the value of n if it is a Float64Constant or a NumberConstant.
func Float64Value(n *Node) (float64, bool) {
	switch n.Opcode() {
	case OpcodeFloat64Constant, OpcodeNumberConstant:
		return n.op.Float64Value(), true
	case OpcodeFloat32Constant:
		return float64(n.op.Float32Value()), true
	}
	return 0, false
}

// IsInt32Constant returns true if n is the Int32Constant v.
func IsInt32Constant(n *Node, v int32) bool {
	c, ok := Int32Value(n)
	return ok && c == v
}

// IsInt64Constant returns true if n is the Int64Constant v.
func IsInt64Constant(n *Node, v int64) bool {
	if n.Opcode() != OpcodeInt64Constant {
		return false
	}
	return n.op.Int64Value() == v
}

// BinopMatcher splits a binary node into its operands. Constants of
// commutative operations are moved to the right.
type BinopMatcher struct {
	Node, Left, Right *Node
}

// MatchBinop returns the BinopMatcher of n.
func MatchBinop(n *Node) BinopMatcher {
	m := BinopMatcher{Node: n, Left: n.ValueInput(0), Right: n.ValueInput(1)}
	if n.Opcode().IsCommutative() && m.Left.Opcode().IsConstant() && !m.Right.Opcode().IsConstant() {
		m.Left, m.Right = m.Right, m.Left
	}
	return m
}

// RightInt32 returns the right operand's value if it is an Int32Constant.
func (m BinopMatcher) RightInt32() (int32, bool) { return Int32Value(m.Right) }

// LeftInt32 returns the left operand's value if it is an Int32Constant.
func (m BinopMatcher) LeftInt32() (int32, bool) { return Int32Value(m.Left) }

// IsFoldable returns true if both operands are constants.
func (m BinopMatcher) IsFoldable() bool {
	return m.Left.Opcode().IsConstant() && m.Right.Opcode().IsConstant()
}

// IsSame returns true if both operands are the same node.
func (m BinopMatcher) IsSame() bool { return m.Left == m.Right }

// SwapInputs swaps the value inputs of the matched node, which must be commutative.
func (m *BinopMatcher) SwapInputs() {
	if !m.Node.Opcode().IsCommutative() {
		panic("BUG: swapping inputs of " + m.Node.String())
	}
	left, right := m.Node.inputs[0], m.Node.inputs[1]
	m.Node.ReplaceInput(0, right)
	m.Node.ReplaceInput(1, left)
	m.Left, m.Right = right, left
}
