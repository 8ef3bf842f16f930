package compiler

import (
	"fmt"
	"strings"
)

// Builtins maps a source builtin statement to the karel-lang primitive it
// emits. ++ and -- are rewritten to place/pick by the parser.
var Builtins = map[string]string{
	"step":  "STEP",
	"left":  "LEFT",
	"place": "PLACE",
	"pick":  "PICK",
	"stop":  "STOP",
}

// CondTests is the set of predicates the target robot can evaluate.
// Source conditions are spelled is_<test> / not_<test>.
var CondTests = map[string]string{
	"wall":  "WALL",
	"flag":  "FLAG",
	"north": "NORTH",
	"south": "SOUTH",
	"east":  "EAST",
	"west":  "WEST",
	"home":  "HOME",
}

// Definition is a named function or lambda. Identity is the pointer itself:
// names are not unique across specializations, so nothing in the back end
// looks definitions up by string.
type Definition struct {
	Name      string
	Params    []string // template parameter names, possibly empty
	Body      []Stmt
	IsSlicing bool
	IsLambda  bool
	Parent    *Definition // enclosing definition, lambdas only
	File      string
	Line      int
}

// ident returns a stable textual identity for hashing. It depends only on
// the source location, so mangled names survive recompilation of
// unchanged input.
func (d *Definition) ident() string {
	return fmt.Sprintf("%s:%d:%s", d.File, d.Line, d.Name)
}

// Cond is a target condition. Either Param names a template parameter to be
// resolved at specialization time, or Test holds a concrete predicate.
type Cond struct {
	Not   bool
	Test  string // key into CondTests
	Param string // template parameter reference, "" when concrete
	Line  int
}

func (c Cond) String() string {
	if c.Param != "" {
		return "[" + c.Param + "]"
	}
	if c.Not {
		return "not_" + c.Test
	}
	return "is_" + c.Test
}

// Count is a bounded-loop iteration count, concrete or parametrized.
type Count struct {
	Value int
	Param string // template parameter reference, "" when concrete
	Line  int
}

func (c Count) String() string {
	if c.Param != "" {
		return "[" + c.Param + "]"
	}
	return fmt.Sprintf("%d", c.Value)
}

// Fragment is an opaque code snippet passed as a template argument.
// Exactly one of the variant fields is set: a statement list, a condition,
// a count, or a forwarded reference to one of the caller's own parameters.
type Fragment struct {
	Stmts []Stmt
	Cond  *Cond
	Count *Count
	Param string
	Line  int
}

func (f Fragment) String() string {
	switch {
	case f.Param != "":
		return "[" + f.Param + "]"
	case f.Cond != nil:
		return f.Cond.String()
	case f.Count != nil:
		return f.Count.String()
	default:
		parts := make([]string, len(f.Stmts))
		for i, s := range f.Stmts {
			parts[i] = s.String()
		}
		return "{ " + strings.Join(parts, " ") + " }"
	}
}

//  Statement nodes

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
	String() string
}

// CallStmt represents name(args); Target is resolved by the linker before
// the specialization engine runs.
type CallStmt struct {
	Name   string
	Target *Definition
	Args   []Fragment
	Line   int
}

func (*CallStmt) stmtNode() {}
func (c *CallStmt) String() string {
	return fmt.Sprintf("Call(%s, args=%v)", c.Name, c.Args)
}

// RecallStmt represents recall; or recall(args);
// Without arguments it re-enters the currently active specialization.
type RecallStmt struct {
	Args     []Fragment
	Explicit bool // true when an argument list was written, even if empty
	Line     int
}

func (*RecallStmt) stmtNode() {}
func (r *RecallStmt) String() string {
	if r.Explicit {
		return fmt.Sprintf("Recall(args=%v)", r.Args)
	}
	return "Recall"
}

// IfStmt represents if cond { } else { }
type IfStmt struct {
	Cond Cond
	Then []Stmt
	Else []Stmt
	Line int
}

func (*IfStmt) stmtNode() {}
func (i *IfStmt) String() string {
	if i.Else != nil {
		return fmt.Sprintf("If(%s, then=%d, else=%d)", i.Cond, len(i.Then), len(i.Else))
	}
	return fmt.Sprintf("If(%s, then=%d)", i.Cond, len(i.Then))
}

// WhileStmt represents while cond { }
type WhileStmt struct {
	Cond Cond
	Body []Stmt
	Line int
}

func (*WhileStmt) stmtNode()        {}
func (w *WhileStmt) String() string { return fmt.Sprintf("While(%s, body=%d)", w.Cond, len(w.Body)) }

// ForStmt represents for count { }
type ForStmt struct {
	Count Count
	Body  []Stmt
	Line  int
}

func (*ForStmt) stmtNode()        {}
func (f *ForStmt) String() string { return fmt.Sprintf("For(%s, body=%d)", f.Count, len(f.Body)) }

// BuiltinStmt is a primitive robot operation (step, left, place, pick, stop).
type BuiltinStmt struct {
	Op   string
	Line int
}

func (*BuiltinStmt) stmtNode()        {}
func (b *BuiltinStmt) String() string { return b.Op }

// NoOpStmt is an empty statement.
type NoOpStmt struct {
	Line int
}

func (*NoOpStmt) stmtNode()        {}
func (n *NoOpStmt) String() string { return "NoOp" }

// TargetStmt is a template target in statement position: [name];
type TargetStmt struct {
	Name string
	Line int
}

func (*TargetStmt) stmtNode()        {}
func (t *TargetStmt) String() string { return "[" + t.Name + "]" }

// LambdaStmt is a lambda literal, hoisted out as an independent function at
// specialization time and invoked in place.
type LambdaStmt struct {
	Def  *Definition
	Args []Fragment
	Line int
}

func (*LambdaStmt) stmtNode() {}
func (l *LambdaStmt) String() string {
	return fmt.Sprintf("Lambda(%s, args=%v)", l.Def.Name, l.Args)
}

// PushStmt represents push binding = callee(args);
type PushStmt struct {
	CalleeName string
	Callee     *Definition // resolved by the linker
	Args       []Fragment
	Binding    string
	Line       int
}

func (*PushStmt) stmtNode() {}
func (p *PushStmt) String() string {
	return fmt.Sprintf("Push(%s = %s(%v))", p.Binding, p.CalleeName, p.Args)
}

// PopStmt represents pop binding;
type PopStmt struct {
	Binding string
	Line    int
}

func (*PopStmt) stmtNode()        {}
func (p *PopStmt) String() string { return "Pop(" + p.Binding + ")" }

// CommitStmt represents commit;
type CommitStmt struct {
	Line int
}

func (*CommitStmt) stmtNode()        {}
func (c *CommitStmt) String() string { return "Commit" }

// InvokeStmt is a lowered call to an already specialized function. It only
// appears in specialized bodies, never in parsed source.
type InvokeStmt struct {
	Name string
	Line int
}

func (*InvokeStmt) stmtNode()        {}
func (i *InvokeStmt) String() string { return "Invoke(" + i.Name + ")" }

// LoweredPushStmt is a push whose slice callee has been specialized. The
// stack-slice transform replaces it with calls between segments.
type LoweredPushStmt struct {
	Callee  string // specialized slice function name
	Binding string
	Line    int
}

func (*LoweredPushStmt) stmtNode() {}
func (p *LoweredPushStmt) String() string {
	return fmt.Sprintf("LoweredPush(%s = %s)", p.Binding, p.Callee)
}

//  Predicates

// containsCommit reports whether a commit appears anywhere in the statement
// list, including nested blocks and lambda bodies.
func containsCommit(stmts []Stmt) bool {
	for _, st := range stmts {
		switch n := st.(type) {
		case *CommitStmt:
			return true
		case *IfStmt:
			if containsCommit(n.Then) || containsCommit(n.Else) {
				return true
			}
		case *WhileStmt:
			if containsCommit(n.Body) {
				return true
			}
		case *ForStmt:
			if containsCommit(n.Body) {
				return true
			}
		case *LambdaStmt:
			if containsCommit(n.Def.Body) {
				return true
			}
		}
	}
	return false
}

// ImplicitlyUsable reports whether a definition is emitted unconditionally
// under its own name: no template parameters, not slicing, no commit
// anywhere in its body, and not a lambda.
func ImplicitlyUsable(d *Definition) bool {
	return len(d.Params) == 0 && !d.IsSlicing && !d.IsLambda && !containsCommit(d.Body)
}
