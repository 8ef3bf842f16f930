package compiler

import (
	"os"
)

// Options configures one compiler run.
type Options struct {
	ImportDirs []string  // -I search directories for import statements
	Reporter   *Reporter // diagnostics sink; a stderr reporter when nil
}

// Compile loads the given source files and everything they import, runs the
// specialization/reachability pass and the stack-slice transform, and emits
// one karel-lang unit. Fatal errors stop before emission: no partial output
// is ever returned.
func Compile(paths []string, opts Options) (string, error) {
	rep := opts.Reporter
	if rep == nil {
		rep = NewReporter(os.Stderr)
	}

	units, err := LoadProgram(paths, opts.ImportDirs, rep)
	if err != nil {
		return "", err
	}
	return compileUnits(units, rep)
}

// CompileSource compiles a single in-memory source file. Imports are not
// resolved; intended for tests and embedding.
func CompileSource(src, name string, rep *Reporter) (string, error) {
	if rep == nil {
		rep = NewReporter(os.Stderr)
	}
	rep.AddSource(name, src)

	unit, err := Parse(src, name)
	if err != nil {
		return "", err
	}
	if err := linkUnits([]*Unit{unit}, rep); err != nil {
		return "", err
	}
	return compileUnits([]*Unit{unit}, rep)
}

func compileUnits(units []*Unit, rep *Reporter) (string, error) {
	sess := NewSession(rep)
	if err := sess.Analyze(units); err != nil {
		return "", err
	}
	if err := sess.TransformSlices(); err != nil {
		return "", err
	}
	// A warning promoted under -W err is fatal, and fatal means no output.
	if err := rep.Err(); err != nil {
		return "", err
	}
	return sess.Emit()
}
