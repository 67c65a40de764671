package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xyproto/env/v2"

	"github.com/tetratelabs/isel"
	"github.com/tetratelabs/isel/internal/backend/isa/x64"
	"github.com/tetratelabs/isel/internal/testcases"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer, exit func(code int)) {
	// env caches the variables on first read.
	env.Load()
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "print usage")

	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		exit(0)
	}

	subCmd := flag.Arg(0)
	switch subCmd {
	case "list":
		doList(stdOut, exit)
	case "compile":
		doCompile(flag.Args()[1:], stdOut, stdErr, exit)
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		exit(1)
	}
}

func doList(stdOut io.Writer, exit func(code int)) {
	for _, tc := range testcases.All {
		fmt.Fprintf(stdOut, "%s\t%s\n", tc.Name, tc.Description)
	}
	exit(0)
}

func doCompile(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("compile", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")

	caseName := flags.String("case", env.Str("ISEL_CASE", testcases.AddConstant.Name),
		"Name of the function to compile, as printed by the list command. Defaults to $ISEL_CASE.")

	svgPath := flags.String("svg", env.Str("ISEL_SVG"),
		"File to write the allocated live ranges to, as SVG. Defaults to $ISEL_SVG.")

	trace := flags.Bool("trace", env.Bool("ISEL_TRACE"),
		"Write the phases and intermediate graphs, schedules and listings to stderr. Defaults to $ISEL_TRACE.")

	verify := flags.Bool("verify", true, "Verify the graph and the instructions between phases.")

	allocator := allocatorFlag(isel.AllocatorLinearScan)
	flags.Var(&allocator, "allocator", "Register allocator: linear-scan or greedy.")

	features := featuresFlag(x64.DetectFeatures())
	flags.Var(&features, "features",
		"Comma-separated list of CPU features the code may use, or \"baseline\". Defaults to those of the host. "+
			"Supported values: popcnt,bmi1")

	_ = flags.Parse(args)

	if help {
		printCompileUsage(stdErr, flags)
		exit(0)
	}

	if flags.NArg() > 0 {
		*caseName = flags.Arg(0)
	}
	tc, ok := testcases.Lookup(*caseName)
	if !ok {
		fmt.Fprintf(stdErr, "unknown function %q\n", *caseName)
		exit(1)
	}

	target := x64.NewTarget(x64.Features(features))
	config := isel.NewCompilerConfig().
		WithTarget(target).
		WithAllocator(isel.Allocator(allocator)).
		WithVerification(*verify)
	if *trace {
		config = config.WithTraceWriter(stdErr)
	}
	if *svgPath != "" {
		f, err := os.Create(*svgPath)
		if err != nil {
			fmt.Fprintf(stdErr, "invalid svg: %v\n", err)
			exit(1)
		}
		defer f.Close()
		config = config.WithAllocationSVG(f)
	}

	code, err := isel.NewCompiler(config).Compile(context.Background(), &isel.Function{
		Name:      tc.Name,
		Signature: tc.Signature,
		Build:     tc.Builder(target.Convention()),
	})
	if err != nil {
		fmt.Fprintf(stdErr, "error compiling %s: %v\n", tc.Name, err)
		exit(1)
	}

	fmt.Fprintf(stdOut, "%s: %d bytes, frame %d bytes", tc.Name, len(code.Code), code.FrameSize)
	if code.FrameElided {
		fmt.Fprint(stdOut, " (elided)")
	}
	fmt.Fprintln(stdOut)
	fmt.Fprintln(stdOut, strings.TrimRight(code.Listing, "\n"))
	for _, r := range code.Relocations {
		fmt.Fprintf(stdOut, "relocation %s at %d\n", r.Name, r.Offset)
	}
	for _, s := range code.Safepoints {
		fmt.Fprintf(stdOut, "safepoint at %d: slots %v\n", s.Offset, s.Slots)
	}
	for _, d := range code.Deoptimizations {
		fmt.Fprintf(stdOut, "deoptimization %d at %d\n", d.StateID, d.Offset)
	}
	exit(0)
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "iseldump CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  iseldump <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  list\t\tLists the functions that can be compiled")
	fmt.Fprintln(stdErr, "  compile\tCompiles a function and prints its machine code")
}

func printCompileUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "iseldump CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  iseldump compile <options> [function]")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

type allocatorFlag isel.Allocator

func (f *allocatorFlag) String() string {
	return isel.Allocator(*f).String()
}

func (f *allocatorFlag) Set(s string) error {
	switch s {
	case isel.AllocatorLinearScan.String():
		*f = allocatorFlag(isel.AllocatorLinearScan)
	case isel.AllocatorGreedy.String():
		*f = allocatorFlag(isel.AllocatorGreedy)
	default:
		return errors.New("not an allocator")
	}
	return nil
}

type featuresFlag x64.Features

func (f *featuresFlag) String() string {
	return x64.Features(*f).String()
}

func (f *featuresFlag) Set(input string) error {
	*f = featuresFlag{}
	for _, s := range strings.Split(input, ",") {
		switch s {
		case "", "baseline":
			continue
		case "popcnt":
			f.POPCNT = true
		case "bmi1":
			f.BMI1 = true
		default:
			return errors.New("not a cpu feature")
		}
	}
	return nil
}
