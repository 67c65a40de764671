package regalloc

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	svg "github.com/ajstarks/svgo"
)

const (
	svgRowHeight   = 24
	svgColumnWidth = 56
	svgTop         = 100
	svgCharWidth   = 9
)

// WriteSVG renders the live ranges of an allocated sequence: one row per
// instruction, one column per virtual register. Ranges in registers are
// solid bars labelled with the register, spilled ones dashed with their slot.
func (a *Allocator) WriteSVG(w io.Writer) error {
	instrs := a.seq.Instructions()
	ranges := a.Ranges()

	labels := make([]string, len(instrs))
	textWidth := 0
	for i, instr := range instrs {
		var sb strings.Builder
		instr.Format(&sb, a.seq.OpcodeName)
		labels[i] = fmt.Sprintf("%d: %s", i, strings.TrimSpace(sb.String()))
		if l := len(labels[i]); l > textWidth {
			textWidth = l
		}
	}
	insw := textWidth*svgCharWidth + 40
	width := insw + len(ranges)*svgColumnWidth + 50
	height := svgTop + len(instrs)*svgRowHeight + 50

	var buf bytes.Buffer
	p := svg.New(&buf)
	p.Start(width, height)
	p.Rect(0, 0, width, height, "fill:white")

	for _, b := range a.seq.InstructionBlocks() {
		y := svgTop + b.CodeStart()*svgRowHeight - svgRowHeight/2 - 4
		p.Line(10, y, width-10, y, "stroke:lightgray")
		p.Text(16, y+svgRowHeight/2+4, b.String(), "fill:gray;font-size:16px;font-family:monospace")
	}
	for i, label := range labels {
		y := svgTop + i*svgRowHeight
		p.Text(insw, y, label, "fill:black;font-size:14px;font-family:monospace;text-anchor:end")
	}

	for k, r := range ranges {
		x := insw + k*svgColumnWidth + svgColumnWidth/2
		p.Text(x, svgTop-40, r.VReg.String(), "fill:black;font-size:14px;font-family:monospace;text-anchor:middle")
		loc, style := "-", "stroke:black;stroke-width:3"
		switch {
		case r.Spilled:
			loc, style = fmt.Sprintf("s%d", r.Slot), "stroke:red;stroke-width:3;stroke-dasharray:4,3"
		case r.Register >= 0:
			loc = a.registerName(register{fp: r.FP, code: r.Register})
		}
		p.Text(x, svgTop-22, loc, "fill:gray;font-size:12px;font-family:monospace;text-anchor:middle")
		y1, y2 := positionY(r.Start), positionY(r.End)
		p.Line(x, y1, x, y2, style)
		p.Circle(x, y1, 4, "fill:white;stroke:black;stroke-width:2")
		p.Circle(x, y2, 4, "fill:black;stroke:black;stroke-width:2")
	}
	p.End()

	_, err := w.Write(buf.Bytes())
	return err
}

// positionY maps a position to the row of its instruction, the gaps above
// the text baseline.
func positionY(p Position) int {
	y := svgTop + p.InstructionIndex()*svgRowHeight - svgRowHeight/2
	return y + int(p%positionStride)*svgRowHeight/int(positionStride)
}
