package pipeline

import (
	"context"
	"fmt"

	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/backend/regalloc"
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/zone"
)

// registerAllocationPhases run in this order, optimize-moves last.
var registerAllocationPhases = []Phase{
	{Name: "meet-register-constraints", Run: func(d *Data, _ *zone.Zone) error { return d.allocator.MeetRegisterConstraints() }},
	{Name: "resolve-phis", Run: func(d *Data, _ *zone.Zone) error { return d.allocator.ResolvePhis() }},
	{Name: "build-live-ranges", Run: func(d *Data, _ *zone.Zone) error { return d.allocator.BuildLiveRanges() }},
	{Name: "allocate-registers", Run: func(d *Data, _ *zone.Zone) error { return d.allocator.AllocateRegisters() }},
	{Name: "assign-spill-slots", Run: func(d *Data, _ *zone.Zone) error { return d.allocator.AssignSpillSlots() }},
	{Name: "commit-assignment", Run: func(d *Data, _ *zone.Zone) error { return d.allocator.CommitAssignment() }},
	{Name: "populate-reference-maps", Run: func(d *Data, _ *zone.Zone) error { return d.allocator.PopulateReferenceMaps() }},
	{Name: "connect-ranges", Run: func(d *Data, _ *zone.Zone) error { return d.allocator.ConnectRanges() }},
	{Name: "resolve-control-flow", Run: func(d *Data, _ *zone.Zone) error { return d.allocator.ResolveControlFlow() }},
}

var optimizeMovesPhase = Phase{Name: "optimize-moves", Run: func(d *Data, _ *zone.Zone) error { return d.allocator.OptimizeMoves() }}

// Result is the output of a successful compilation.
type Result struct {
	Code  *backend.GeneratedCode
	Frame *backend.Frame
	// Phases lists the phases run, in order.
	Phases []string
}

// Pipeline compiles one function.
type Pipeline struct {
	ctx  context.Context
	data *Data
}

// New returns a Pipeline compiling fn with opts.
func New(fn *Function, opts *Options) *Pipeline {
	if opts.Target == nil {
		panic("BUG: pipeline without a target")
	}
	return &Pipeline{data: &Data{opts: opts, fn: fn, signature: fn.Signature}}
}

// Data returns the state of the compilation.
func (p *Pipeline) Data() *Data { return p.data }

// Run runs every phase in order. The first failure stops the pipeline and
// is returned; ctx is checked before each phase.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	p.ctx = ctx
	d := p.data
	opts := d.opts

	d.graphZone = zone.New("graph")
	defer d.graphZone.Destroy()
	p.run(graphBuilderPhase)
	if d.fn.OSR {
		p.run(osrPhase)
	}
	p.run(inliningPhase)
	if opts.Typing {
		p.run(typerPhase)
	}
	p.run(typedPhase)
	p.run(simplifiedPhase)
	p.run(genericPhase)
	p.run(lateOptPhase)
	p.run(trimPhase)
	if opts.Verification {
		p.run(verifyGraphPhase)
	}
	p.run(schedulingPhase)

	d.instructionZone = zone.New("instructions")
	defer d.instructionZone.Destroy()
	p.run(selectionPhase)
	d.graphZone.Destroy()
	d.graph, d.schedule = nil, nil
	if opts.Verification {
		p.run(verifyInstrsPhase)
	}

	p.allocateRegisters()
	p.run(frameElisionPhase)
	if opts.JumpThreading {
		p.run(jumpThreadPhase)
	}
	p.run(codegenPhase)

	if d.failed {
		return nil, d.err
	}
	return &Result{Code: d.code, Frame: d.frame, Phases: d.phases}, nil
}

// allocateRegisters runs the register allocation phases. The allocator
// state is dropped once they are done.
func (p *Pipeline) allocateRegisters() {
	d := p.data
	if d.failed {
		return
	}
	d.allocator = regalloc.New(d.sequence, d.frame, d.opts.Target.Registers(), regalloc.Config{
		Algorithm:           d.opts.Allocator,
		MaxVirtualRegisters: d.opts.MaxVirtualRegisters,
		Tracer:              d.tracer(),
	})
	defer func() { d.allocator = nil }()

	for _, ph := range registerAllocationPhases {
		p.run(ph)
	}
	if d.opts.MoveOptimization {
		p.run(optimizeMovesPhase)
	}
	if d.failed {
		return
	}
	if iselapi.PrintRegisterAllocated {
		fmt.Println(d.sequence)
	}
	d.tracer().Section("allocated instructions", d.sequence)
	if w := d.opts.AllocationSVG; w != nil {
		if err := d.allocator.WriteSVG(w); err != nil {
			d.fail(fmt.Errorf("allocation svg: %w", err))
		}
	}
}

// run runs ph unless a phase already failed, with a temporary zone
// destroyed right after.
func (p *Pipeline) run(ph Phase) {
	d := p.data
	if d.failed {
		return
	}
	if err := p.ctx.Err(); err != nil {
		d.fail(fmt.Errorf("%s: %w", ph.Name, err))
		return
	}

	tracer := d.tracer()
	tracer.Printf("begin %s", ph.Name)
	if iselapi.PipelineLoggingEnabled {
		fmt.Printf("[pipeline] %s: %s\n", d.fn.Name, ph.Name)
	}
	temp := zone.New(ph.Name)
	err := ph.Run(d, temp)
	temp.Destroy()
	d.phases = append(d.phases, ph.Name)
	if err != nil {
		tracer.Printf("failed %s: %v", ph.Name, err)
		d.fail(fmt.Errorf("%s: %w", ph.Name, err))
		return
	}
	tracer.Printf("end %s", ph.Name)

	if ph.dumpsGraph {
		if iselapi.PrintGraph {
			fmt.Println(d.graph)
		}
		tracer.Section("graph after "+ph.Name, d.graph)
	}
}
