package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHelp(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{"-h"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdErr, "iseldump CLI\n\nUsage:")
}

func TestList(t *testing.T) {
	exitCode, stdOut, _ := runMain(t, []string{"list"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdOut, "add\treturn p0 + 1\n")
	require.Contains(t, stdOut, "float_equal\t")
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "add",
			args:     []string{"-features=popcnt,bmi1", "add"},
			expected: []string{"add: ", "(elided)", "RET"},
		},
		{
			name:     "greedy",
			args:     []string{"-allocator=greedy", "-case=diamond"},
			expected: []string{"diamond: "},
		},
		{
			name:     "call",
			args:     []string{"call_across"},
			expected: []string{"relocation callee at ", "safepoint at "},
		},
		{
			name:     "deoptimization",
			args:     []string{"checked_add"},
			expected: []string{"deoptimization "},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			exitCode, stdOut, stdErr := runMain(t, append([]string{"compile"}, tc.args...))
			require.Equal(t, 0, exitCode, stdErr)
			for _, exp := range tc.expected {
				require.Contains(t, stdOut, exp)
			}
		})
	}
}

func TestCompile_env(t *testing.T) {
	// A run before the variables are set must not hide them from later runs.
	exitCode, stdOut, stdErr := runMain(t, []string{"compile"})
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "add: ")

	svgPath := filepath.Join(t.TempDir(), "loop.svg")
	t.Setenv("ISEL_CASE", "loop")
	t.Setenv("ISEL_SVG", svgPath)
	t.Setenv("ISEL_TRACE", "true")

	exitCode, stdOut, stdErr = runMain(t, []string{"compile"})
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "loop: ")
	require.Contains(t, stdErr, "begin graph-builder\n")

	svg, err := os.ReadFile(svgPath)
	require.NoError(t, err)
	require.Contains(t, string(svg), "<svg")
}

func TestErrors(t *testing.T) {
	tests := []struct {
		message string
		args    []string
	}{
		{
			message: "invalid command",
			args:    []string{"run"},
		},
		{
			message: "unknown function \"bears\"",
			args:    []string{"compile", "bears"},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.message, func(t *testing.T) {
			exitCode, _, stdErr := runMain(t, tc.args)
			require.Equal(t, 1, exitCode)
			require.Contains(t, stdErr, tc.message)
		})
	}
}

func runMain(t *testing.T, args []string) (int, string, string) {
	t.Helper()
	oldArgs := os.Args
	t.Cleanup(func() {
		os.Args = oldArgs
	})
	os.Args = append([]string{"iseldump"}, args...)

	var exitCode int
	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}
	var exited bool
	func() {
		defer func() {
			if r := recover(); r != nil {
				exited = true
			}
		}()
		flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
		doMain(stdOut, stdErr, func(code int) {
			exitCode = code
			panic(code)
		})
	}()

	require.True(t, exited)

	return exitCode, stdOut.String(), stdErr.String()
}
