package iselapi

import (
	"fmt"
	"io"
	"strings"
)

// Tracer writes human-readable compilation traces to an io.Writer. The zero
// value and a nil *Tracer are both disabled.
type Tracer struct {
	w      io.Writer
	prefix string
}

// NewTracer returns a Tracer writing to w. A nil w disables tracing.
func NewTracer(w io.Writer) *Tracer {
	return &Tracer{w: w}
}

// Enabled returns true if this tracer writes anywhere.
func (t *Tracer) Enabled() bool {
	return t != nil && t.w != nil
}

// WithPrefix returns a tracer whose lines are prefixed with "[prefix] ".
func (t *Tracer) WithPrefix(prefix string) *Tracer {
	if !t.Enabled() {
		return t
	}
	return &Tracer{w: t.w, prefix: "[" + prefix + "] "}
}

// Printf writes one formatted line.
func (t *Tracer) Printf(format string, args ...any) {
	if !t.Enabled() {
		return
	}
	line := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(t.w, "%s%s\n", t.prefix, strings.TrimSuffix(line, "\n"))
}

// Section writes a titled multi-line dump such as a graph or an instruction listing.
func (t *Tracer) Section(title string, body fmt.Stringer) {
	if !t.Enabled() {
		return
	}
	_, _ = fmt.Fprintf(t.w, "%s---- %s ----\n%s\n", t.prefix, title, strings.TrimRight(body.String(), "\n"))
}
