package ir

import (
	"fmt"
	"strings"
)

// String returns the listing of the nodes reachable from End in id order.
func (g *Graph) String() string {
	reachable := g.Reachable()
	var b strings.Builder
	for id, ok := range reachable {
		if !ok {
			continue
		}
		n := g.nodes.View(id)
		b.WriteString(n.String())
		if n.typed {
			fmt.Fprintf(&b, " : %s", n.typ)
		}
		if n.pos.IsKnown() {
			fmt.Fprintf(&b, " @%d", int32(n.pos))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
