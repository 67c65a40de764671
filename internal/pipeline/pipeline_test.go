package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/isel/internal/backend/isa/x64"
	"github.com/tetratelabs/isel/internal/backend/regalloc"
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/testcases"
)

var target = x64.NewTarget(x64.Features{POPCNT: true, BMI1: true})

func fullOptions() *Options {
	return &Options{
		Target:           target,
		Typing:           true,
		Inlining:         true,
		FrameElision:     true,
		JumpThreading:    true,
		MoveOptimization: true,
		Verification:     true,
	}
}

func function(tc *testcases.TestCase) *Function {
	return &Function{Name: tc.Name, Signature: tc.Signature, Build: tc.Builder(target.Convention())}
}

func TestPipeline_testcases(t *testing.T) {
	for _, tc := range testcases.All {
		tc := tc
		for _, algorithm := range []regalloc.Algorithm{regalloc.LinearScan, regalloc.Greedy} {
			algorithm := algorithm
			t.Run(tc.Name+"/"+algorithm.String(), func(t *testing.T) {
				opts := fullOptions()
				opts.Allocator = algorithm
				res, err := New(function(tc), opts).Run(context.Background())
				require.NoError(t, err)
				require.NotEmpty(t, res.Code.Code)
				require.Contains(t, res.Code.Listing, "RET")
			})
		}
	}
}

func TestPipeline_phases(t *testing.T) {
	res, err := New(function(&testcases.AddConstant), fullOptions()).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		"graph-builder",
		"inlining",
		"typer",
		"typed-lowering",
		"simplified-lowering",
		"generic-lowering",
		"late-optimization",
		"late-graph-trimming",
		"verify-graph",
		"scheduling",
		"instruction-selection",
		"verify-instructions",
		"meet-register-constraints",
		"resolve-phis",
		"build-live-ranges",
		"allocate-registers",
		"assign-spill-slots",
		"commit-assignment",
		"populate-reference-maps",
		"connect-ranges",
		"resolve-control-flow",
		"optimize-moves",
		"frame-elision",
		"jump-threading",
		"generate-code",
	}, res.Phases)
	require.True(t, res.Frame.IsElided())

	t.Run("optional phases off", func(t *testing.T) {
		res, err := New(function(&testcases.AddConstant), &Options{Target: target}).Run(context.Background())
		require.NoError(t, err)
		require.NotContains(t, res.Phases, "typer")
		require.NotContains(t, res.Phases, "verify-graph")
		require.NotContains(t, res.Phases, "optimize-moves")
		require.NotContains(t, res.Phases, "jump-threading")
		require.Contains(t, res.Phases, "frame-elision")
		require.False(t, res.Frame.IsElided())
	})
}

func TestPipeline_stickyFailure(t *testing.T) {
	errBuild := errors.New("no graph")
	fn := &Function{
		Name:      "broken",
		Signature: testcases.AddConstant.Signature,
		Build:     func(*ir.Graph) error { return errBuild },
	}
	p := New(fn, fullOptions())
	res, err := p.Run(context.Background())
	require.Nil(t, res)
	require.ErrorIs(t, err, errBuild)
	require.EqualError(t, err, "graph-builder: no graph")
	require.True(t, p.Data().Failed())
	require.Equal(t, err, p.Data().Err())
	// Nothing runs after the failure.
	require.Equal(t, []string{"graph-builder"}, p.Data().Phases())
}

func TestPipeline_bailout(t *testing.T) {
	for _, tc := range []struct {
		name      string
		tc        *testcases.TestCase
		opts      func(o *Options)
		lastPhase string
	}{
		{
			name:      "spill slots",
			tc:        &testcases.Pressure,
			opts:      func(o *Options) { o.MaxSpillSlots = 1 },
			lastPhase: "assign-spill-slots",
		},
		{
			name:      "virtual registers",
			tc:        &testcases.Pressure,
			opts:      func(o *Options) { o.MaxVirtualRegisters = 4 },
			lastPhase: "instruction-selection",
		},
		{
			name:      "cpu features",
			tc:        &popcnt,
			opts:      func(o *Options) { o.Target = x64.NewTarget(x64.Features{}) },
			lastPhase: "instruction-selection",
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			opts := fullOptions()
			tc.opts(opts)
			p := New(function(tc.tc), opts)
			_, err := p.Run(context.Background())
			require.ErrorIs(t, err, iselapi.ErrBailout)
			phases := p.Data().Phases()
			require.Equal(t, tc.lastPhase, phases[len(phases)-1])
		})
	}
}

func TestPipeline_canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(function(&testcases.AddConstant), fullOptions())
	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.EqualError(t, err, "graph-builder: context canceled")
	require.Empty(t, p.Data().Phases())
}

func TestPipeline_trace(t *testing.T) {
	var buf bytes.Buffer
	opts := fullOptions()
	opts.Tracer = iselapi.NewTracer(&buf)
	_, err := New(function(&testcases.Loop), opts).Run(context.Background())
	require.NoError(t, err)

	out := buf.String()
	for _, exp := range []string{
		"begin graph-builder\n",
		"end generate-code\n",
		"---- graph after late-graph-trimming ----\n",
		"---- schedule ----\n",
		"---- instructions ----\n",
		"[regalloc] ---- live ranges ----\n",
		"---- allocated instructions ----\n",
	} {
		require.Contains(t, out, exp)
	}
}

func TestPipeline_allocationSVG(t *testing.T) {
	var buf bytes.Buffer
	opts := fullOptions()
	opts.AllocationSVG = &buf
	_, err := New(function(&testcases.Diamond), opts).Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, buf.String(), "<svg")
}

var popcnt = testcases.TestCase{
	Name:      "popcnt",
	Signature: testcases.AddConstant.Signature,
	Build: func(g *ir.Graph, _ *linkage.Convention) error {
		start := g.NewNode(ir.Start(1))
		g.SetStart(start)
		p := g.NewNode(ir.Parameter(0), start)
		count := g.NewNode(ir.Op(ir.OpcodeWord32Popcnt), p)
		g.SetEnd(g.NewNode(ir.End(1), g.NewNode(ir.Return(1), count, start, start)))
		return nil
	},
}
