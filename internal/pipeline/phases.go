package pipeline

import (
	"fmt"

	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/lowering"
	"github.com/tetratelabs/isel/internal/reducer"
	"github.com/tetratelabs/isel/internal/schedule"
	"github.com/tetratelabs/isel/internal/typer"
	"github.com/tetratelabs/isel/internal/zone"
)

// Phase is one step of the pipeline. temp is destroyed when Run returns.
type Phase struct {
	Name string
	Run  func(d *Data, temp *zone.Zone) error
	// dumpsGraph traces the graph after the phase.
	dumpsGraph bool
}

var (
	graphBuilderPhase = Phase{Name: "graph-builder", Run: buildGraph, dumpsGraph: true}
	osrPhase          = Phase{Name: "osr-deconstruction", Run: deconstructOSR, dumpsGraph: true}
	inliningPhase     = Phase{Name: "inlining", Run: inline, dumpsGraph: true}
	typerPhase        = Phase{Name: "typer", Run: runTyper}
	typedPhase        = Phase{Name: "typed-lowering", Run: lowerTyped, dumpsGraph: true}
	simplifiedPhase   = Phase{Name: "simplified-lowering", Run: lowerSimplified, dumpsGraph: true}
	genericPhase      = Phase{Name: "generic-lowering", Run: lowerGeneric, dumpsGraph: true}
	lateOptPhase      = Phase{Name: "late-optimization", Run: optimizeLate, dumpsGraph: true}
	trimPhase         = Phase{Name: "late-graph-trimming", Run: trimGraph, dumpsGraph: true}
	verifyGraphPhase  = Phase{Name: "verify-graph", Run: verifyGraph}
	schedulingPhase   = Phase{Name: "scheduling", Run: computeSchedule}
	selectionPhase    = Phase{Name: "instruction-selection", Run: selectInstructions}
	verifyInstrsPhase = Phase{Name: "verify-instructions", Run: verifyInstructions}
	frameElisionPhase = Phase{Name: "frame-elision", Run: elideFrame}
	jumpThreadPhase   = Phase{Name: "jump-threading", Run: threadJumps}
	codegenPhase      = Phase{Name: "generate-code", Run: generateCode}
)

func buildGraph(d *Data, _ *zone.Zone) error {
	if d.fn.Build == nil || d.fn.Signature == nil {
		return fmt.Errorf("function %q has no builder or no signature", d.fn.Name)
	}
	d.graph = ir.NewGraph(d.graphZone)
	if err := d.fn.Build(d.graph); err != nil {
		return err
	}
	if d.graph.Start() == nil || d.graph.End() == nil {
		return fmt.Errorf("builder of %q set no Start or End", d.fn.Name)
	}
	if d.opts.Verification {
		return ir.Verify(d.graph)
	}
	return nil
}

func deconstructOSR(d *Data, _ *zone.Zone) error {
	if err := lowering.DeconstructOSR(d.graph, len(d.fn.Signature.Params)); err != nil {
		return err
	}
	params := append(append(d.signature.Params[:0:0], d.signature.Params...), d.fn.OSRValues...)
	d.signature = &linkage.Signature{Params: params, Returns: d.signature.Returns}
	return nil
}

func inline(d *Data, _ *zone.Zone) error {
	r := reducer.NewGraphReducer(d.graph, d.tracer())
	r.AddReducer(reducer.NewDeadCodeElimination(r))
	var inliner *lowering.Inliner
	if d.opts.Inlining && len(d.fn.Inlinees) > 0 {
		budget := d.opts.InlineBudget
		if budget == 0 {
			budget = DefaultInlineBudget
		}
		inliner = lowering.NewInliner(r, d.fn.Inlinees, budget)
		r.AddReducer(inliner)
	}
	r.AddReducer(reducer.NewCommonOperatorReducer(r))
	r.ReduceGraph()
	if inliner != nil {
		if err := inliner.Err(); err != nil {
			return err
		}
		d.tracer().Printf("inlined %d calls", inliner.Inlined())
	}
	lowering.TrimGraph(d.graph, d.tracer())
	return nil
}

func runTyper(d *Data, _ *zone.Zone) error {
	typer.New(d.graph, d.signature.Params, d.tracer()).Run()
	return nil
}

func lowerTyped(d *Data, _ *zone.Zone) error {
	r := reducer.NewGraphReducer(d.graph, d.tracer())
	r.AddReducer(lowering.NewTypedLowering())
	r.ReduceGraph()
	return nil
}

func lowerSimplified(d *Data, _ *zone.Zone) error {
	return lowering.NewSimplifiedLowering(d.graph, d.signature, d.tracer()).Run()
}

func lowerGeneric(d *Data, _ *zone.Zone) error {
	return lowering.NewGenericLowering(d.graph, d.tracer()).Run()
}

func optimizeLate(d *Data, _ *zone.Zone) error {
	r := reducer.NewGraphReducer(d.graph, d.tracer())
	r.AddReducer(reducer.NewDeadCodeElimination(r))
	r.AddReducer(reducer.NewMachineOperatorReducer(r))
	r.AddReducer(reducer.NewCommonOperatorReducer(r))
	r.ReduceGraph()
	return nil
}

func trimGraph(d *Data, _ *zone.Zone) error {
	trimmed := lowering.TrimGraph(d.graph, d.tracer())
	d.tracer().Printf("trimmed %d uses", trimmed)
	return nil
}

func verifyGraph(d *Data, _ *zone.Zone) error {
	return ir.Verify(d.graph)
}

func computeSchedule(d *Data, _ *zone.Zone) (err error) {
	d.schedule, err = schedule.ComputeSchedule(d.graph, d.graphZone, d.tracer())
	if err != nil {
		return err
	}
	if iselapi.PrintSchedule {
		fmt.Println(d.schedule)
	}
	d.tracer().Section("schedule", d.schedule)
	return nil
}

func selectInstructions(d *Data, _ *zone.Zone) error {
	target := d.opts.Target
	// Support is checked up front so that nothing is selected for a function
	// the target can not compile.
	for _, b := range d.schedule.RPO() {
		for _, n := range b.Nodes() {
			if err := target.CheckSupport(n); err != nil {
				return err
			}
		}
	}

	desc := target.Convention().NewCallDescriptor(linkage.CallCodeObject, d.signature, 0, d.fn.Name)
	d.linkage = linkage.New(desc)
	d.sequence = backend.NewInstructionSequence(d.instructionZone, d.schedule, target.OpcodeName)
	d.frame = backend.NewFrame(d.opts.MaxSpillSlots)
	s := backend.NewInstructionSelector(target, d.linkage, d.sequence, d.schedule, d.frame, backend.SelectorOptions{
		AllSourcePositions:    d.opts.AllSourcePositions,
		EnableSwitchJumpTable: d.opts.SwitchJumpTables,
		MaxVirtualRegisters:   d.opts.MaxVirtualRegisters,
	}, d.tracer())
	if err := s.SelectInstructions(); err != nil {
		return err
	}
	d.tracer().Section("instructions", d.sequence)
	return nil
}

func verifyInstructions(d *Data, _ *zone.Zone) error {
	return backend.Verify(d.sequence)
}

func elideFrame(d *Data, _ *zone.Zone) error {
	backend.ElideFrame(d.sequence, d.frame, d.opts.FrameElision)
	d.tracer().Printf("frame: %s", d.frame)
	return nil
}

func threadJumps(d *Data, _ *zone.Zone) error {
	forwarding, ok := backend.ComputeForwarding(d.sequence)
	if !ok {
		return nil
	}
	backend.ApplyForwarding(d.sequence, forwarding)
	return nil
}

func generateCode(d *Data, _ *zone.Zone) (err error) {
	d.code, err = d.opts.Target.GenerateCode(&backend.CodeGenInput{
		Sequence: d.sequence,
		Frame:    d.frame,
		Linkage:  d.linkage,
		Tracer:   d.tracer(),
	})
	if err != nil {
		return err
	}
	if iselapi.PrintFinalizedMachineCode {
		fmt.Println(d.code.Listing)
	}
	return nil
}
