package compiler

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/xyproto/env/v2"
)

const (
	boldEscape    = "\x1b[1m"
	errorEscape   = boldEscape + "\x1b[31m"
	warningEscape = boldEscape + "\x1b[33m"
	resetEscape   = "\x1b[0m"
)

// WarnMode controls how advisory warnings are handled, mirroring the -W flag.
type WarnMode int

const (
	WarnAll  WarnMode = iota // print warnings (default)
	WarnNone                 // silence warnings
	WarnErr                  // promote the first warning to a fatal error
)

// ParseWarnMode maps a -W flag value to a WarnMode.
func ParseWarnMode(s string) (WarnMode, error) {
	switch s {
	case "all", "":
		return WarnAll, nil
	case "none":
		return WarnNone, nil
	case "err":
		return WarnErr, nil
	}
	return WarnAll, fmt.Errorf("unknown warning level %q (want none, all or err)", s)
}

// Reporter prints diagnostics with a window of surrounding source lines.
// It keeps a copy of every loaded source file so errors raised deep in the
// pipeline can still show their context.
type Reporter struct {
	Out     io.Writer
	Mode    WarnMode
	Color   bool
	Context int // lines of context shown above and below the offender

	sources  map[string][]string
	promoted *Error // first warning promoted under WarnErr
	warnings int
}

// NewReporter builds a Reporter writing to out. Color is enabled only when
// out is a terminal and NO_COLOR is unset.
func NewReporter(out io.Writer) *Reporter {
	color := false
	if f, ok := out.(*os.File); ok {
		color = (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) &&
			env.Str("NO_COLOR") == ""
	}
	return &Reporter{Out: out, Mode: WarnAll, Color: color, Context: 2,
		sources: make(map[string][]string)}
}

// AddSource registers a file's text for context printing.
func (r *Reporter) AddSource(file, src string) {
	r.sources[file] = strings.Split(src, "\n")
}

func (r *Reporter) paint(escape, s string) string {
	if !r.Color {
		return s
	}
	return escape + s + resetEscape
}

// printContext shows the source window around a 1-based line.
func (r *Reporter) printContext(escape, file string, line int) {
	src, ok := r.sources[file]
	if !ok {
		return
	}
	for i := -r.Context; i <= r.Context; i++ {
		j := line - 1 + i
		if j < 0 || j > len(src)-1 {
			continue
		}
		if i == 0 {
			fmt.Fprintf(r.Out, "%s\n", r.paint(escape, fmt.Sprintf("  %d:  %s", j+1, src[j])))
		} else {
			fmt.Fprintf(r.Out, "  %d:  %s\n", j+1, src[j])
		}
	}
	fmt.Fprintln(r.Out)
}

// Errorf prints a fatal diagnostic with context. It does not abort; the
// caller propagates the error value.
func (r *Reporter) Errorf(e *Error) {
	fmt.Fprintf(r.Out, "%s: %s in source file %q\n", r.paint(errorEscape, "error"), e.Msg, e.File)
	r.printContext(errorEscape, e.File, e.Line)
}

// Warnf prints an advisory warning. Under WarnErr the first warning is
// recorded and later surfaced by Err.
func (r *Reporter) Warnf(file string, line int, format string, args ...any) {
	r.warnings++
	if r.Mode == WarnNone {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if r.Mode == WarnErr {
		if r.promoted == nil {
			r.promoted = &Error{Kind: StructuralError, File: file, Line: line, Msg: msg}
		}
		fmt.Fprintf(r.Out, "%s: %s in source file %q\n", r.paint(errorEscape, "error"), msg, file)
		r.printContext(errorEscape, file, line)
		return
	}
	fmt.Fprintf(r.Out, "%s: %s in source file %q\n", r.paint(warningEscape, "warning"), msg, file)
	r.printContext(warningEscape, file, line)
}

// Warnings returns the number of warnings raised so far.
func (r *Reporter) Warnings() int { return r.warnings }

// Err returns the first promoted warning under WarnErr, or nil.
func (r *Reporter) Err() error {
	if r.promoted != nil {
		return r.promoted
	}
	return nil
}
