package compiler

import "fmt"

// ErrorKind classifies fatal compile errors.
type ErrorKind int

const (
	// SyntaxError covers lexing, parsing and linking failures.
	SyntaxError ErrorKind = iota
	// StructuralError covers template arity mismatches, unresolved template
	// targets and runaway recursive instantiation.
	StructuralError
	// ScopeError covers stack-slice bindings popped out of FILO order,
	// escaping their region, or never popped at all.
	ScopeError
)

func (k ErrorKind) String() string {
	switch k {
	case SyntaxError:
		return "syntax error"
	case StructuralError:
		return "structural error"
	case ScopeError:
		return "scope error"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a fatal compile error tied to a source location. Compilation
// stops before emission; no partial output is produced.
type Error struct {
	Kind ErrorKind
	File string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.File == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

func syntaxErr(file string, line int, format string, args ...any) *Error {
	return &Error{Kind: SyntaxError, File: file, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func structuralErr(file string, line int, format string, args ...any) *Error {
	return &Error{Kind: StructuralError, File: file, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func scopeErr(file string, line int, format string, args ...any) *Error {
	return &Error{Kind: ScopeError, File: file, Line: line, Msg: fmt.Sprintf(format, args...)}
}
