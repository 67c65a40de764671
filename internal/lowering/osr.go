// Package lowering holds the graph-to-graph passes between graph building
// and scheduling: OSR deconstruction, inlining, typed and simplified
// lowering, generic lowering and graph trimming.
package lowering

import (
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
)

// DeconstructOSR turns an OSR graph into an ordinary function graph: the
// normal entry becomes Dead, the loop entry becomes Start, and each
// OsrValue(i) becomes Parameter(parameterCount+i).
//
// Both entries are expected to join in a Merge (and EffectPhi) in front of the
// OSR loop header, so that dead-code elimination afterwards folds that merge
// into Start and drops the code only reachable from the normal entry.
func DeconstructOSR(g *ir.Graph, parameterCount int) error {
	var normal, loop *ir.Node
	var values []*ir.Node
	var err error
	g.VisitReachable(func(n *ir.Node) {
		switch n.Opcode() {
		case ir.OpcodeOsrNormalEntry:
			if normal != nil {
				err = iselapi.Bailoutf("multiple OSR normal entries")
			}
			normal = n
		case ir.OpcodeOsrLoopEntry:
			if loop != nil {
				err = iselapi.Bailoutf("multiple OSR loop entries")
			}
			loop = n
		case ir.OpcodeOsrValue:
			values = append(values, n)
		}
	})
	if err != nil {
		return err
	}
	if loop == nil {
		return iselapi.Bailoutf("OSR graph without loop entry")
	}

	start := g.Start()
	osrValues := 0
	for _, v := range values {
		if v.ControlInput(0) != loop {
			return iselapi.Bailoutf("%s is not controlled by the OSR loop entry", v)
		}
		index := v.Op().Index()
		v.ChangeOp(ir.Parameter(parameterCount + index))
		v.ReplaceInput(0, start)
		if index+1 > osrValues {
			osrValues = index + 1
		}
	}
	start.ChangeOp(ir.Start(parameterCount + osrValues))

	if normal != nil {
		dead := g.Dead()
		ir.ReplaceWithValue(normal, nil, dead, dead)
		normal.Kill()
	}
	ir.ReplaceWithValue(loop, nil, start, start)
	loop.Kill()
	return nil
}
