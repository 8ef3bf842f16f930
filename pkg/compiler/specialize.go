package compiler

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// maxInstantiationDepth bounds recursive template instantiation. A program
// whose specializations keep requesting strictly larger instances of
// themselves trips this guard instead of diverging. Best effort, not a
// static proof.
const maxInstantiationDepth = 256

// bindings maps template parameter names to the concrete fragments they are
// bound to in the active specialization. Fragments stored here never contain
// unresolved template references.
type bindings map[string]Fragment

// Function is a fully specialized, template-free function. Bodies contain
// only Invoke, Builtin, If, While, For, NoOp and the not-yet-transformed
// LoweredPush/Pop/Commit statements.
type Function struct {
	Name string
	Body []Stmt

	file   string // source file, for diagnostics raised past lowering
	called bool   // referenced through a normal call (or a root)
	emit   bool   // decided by the final reachability filter
}

// Session owns all state of one compilation run: the specialization cache
// and the reachable-set accumulator. Sessions are cheap and never shared, so
// independent compilations cannot interfere.
type Session struct {
	rep   *Reporter
	cache map[string]*Function // canonical key -> specialized function
	funcs []*Function          // first-discovery order
	depth int
}

// NewSession creates an empty compilation session reporting through rep.
func NewSession(rep *Reporter) *Session {
	return &Session{rep: rep, cache: make(map[string]*Function)}
}

// Analyze seeds the reachability closure with every implicitly usable
// top-level definition and lets specialization requests grow the set. Only
// what this walk discovers is ever emitted; everything else is dead code.
func (s *Session) Analyze(units []*Unit) error {
	for _, u := range units {
		for _, d := range u.Defs {
			if !ImplicitlyUsable(d) {
				continue
			}
			fn, err := s.specialize(d, nil, nil, d.File, d.Line)
			if err != nil {
				return err
			}
			fn.called = true
		}
	}
	return nil
}

// specialize materializes the (definition, argument tuple) key as a concrete
// function and returns it. Idempotent: a key already seen returns the
// previously built function without re-walking the body. The key is
// registered before the body walk so that a recall with identical arguments
// resolves to the in-progress specialization instead of recursing forever.
func (s *Session) specialize(def *Definition, args []Fragment, parentEnv bindings, siteFile string, siteLine int) (*Function, error) {
	if len(args) != len(def.Params) {
		return nil, structuralErr(siteFile, siteLine, "%q takes %d template parameters, %d given", def.Name, len(def.Params), len(args))
	}

	env := make(bindings)
	if def.IsLambda {
		// Lambdas inherit the enclosing definition's active bindings;
		// their own parameters shadow parent ones of the same name.
		for k, v := range parentEnv {
			env[k] = v
		}
	}
	for i, p := range def.Params {
		env[p] = args[i]
	}

	key := def.ident() + "|" + canonBindings(env)
	if def.IsLambda {
		// Lambda literals are cloned when a statement fragment snapshots
		// them, so two clones can share a source identity while carrying
		// differently substituted bodies. The body is part of the key.
		var b strings.Builder
		canonStmts(&b, def.Body)
		key += "|" + b.String()
	}
	if fn, ok := s.cache[key]; ok {
		return fn, nil
	}

	if s.depth++; s.depth > maxInstantiationDepth {
		s.depth--
		return nil, structuralErr(siteFile, siteLine, "template instantiation of %q exceeds depth %d; unbounded recursive instantiation?", def.Name, maxInstantiationDepth)
	}
	defer func() { s.depth-- }()

	fn := &Function{file: def.File}
	if ImplicitlyUsable(def) {
		fn.Name = strings.ToUpper(def.Name)
	} else {
		fn.Name = mangle(def.Name, key)
	}
	s.cache[key] = fn
	s.funcs = append(s.funcs, fn)

	body, err := s.lower(def, def.Body, env, fn)
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

// lower rewrites one statement list of def under the given bindings,
// producing the specialized output form. Every call discovered here issues a
// further specialization request, which is what drives reachability.
func (s *Session) lower(def *Definition, stmts []Stmt, env bindings, fn *Function) ([]Stmt, error) {
	var out []Stmt
	for _, st := range stmts {
		switch n := st.(type) {
		case *BuiltinStmt:
			out = append(out, &BuiltinStmt{Op: n.Op, Line: n.Line})

		case *NoOpStmt:
			out = append(out, &NoOpStmt{Line: n.Line})

		case *CommitStmt:
			out = append(out, &CommitStmt{Line: n.Line})

		case *PopStmt:
			out = append(out, &PopStmt{Binding: n.Binding, Line: n.Line})

		case *TargetStmt:
			frag, ok := env[n.Name]
			if !ok {
				return nil, structuralErr(def.File, n.Line, "unresolved template target [%s]", n.Name)
			}
			if frag.Stmts == nil {
				return nil, structuralErr(def.File, n.Line, "template target [%s] used in statement position but bound to a %s fragment", n.Name, fragKind(frag))
			}
			// The bound fragment is concrete; lower it with no bindings.
			sub, err := s.lower(def, frag.Stmts, nil, fn)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)

		case *IfStmt:
			cond, err := substCond(n.Cond, env, def)
			if err != nil {
				return nil, err
			}
			then, err := s.lower(def, n.Then, env, fn)
			if err != nil {
				return nil, err
			}
			els, err := s.lower(def, n.Else, env, fn)
			if err != nil {
				return nil, err
			}
			out = append(out, &IfStmt{Cond: cond, Then: then, Else: els, Line: n.Line})

		case *WhileStmt:
			cond, err := substCond(n.Cond, env, def)
			if err != nil {
				return nil, err
			}
			body, err := s.lower(def, n.Body, env, fn)
			if err != nil {
				return nil, err
			}
			out = append(out, &WhileStmt{Cond: cond, Body: body, Line: n.Line})

		case *ForStmt:
			count, err := substCount(n.Count, env, def)
			if err != nil {
				return nil, err
			}
			body, err := s.lower(def, n.Body, env, fn)
			if err != nil {
				return nil, err
			}
			out = append(out, &ForStmt{Count: count, Body: body, Line: n.Line})

		case *CallStmt:
			args, err := s.resolveArgs(n.Args, env, def)
			if err != nil {
				return nil, err
			}
			sub, err := s.specialize(n.Target, args, nil, def.File, n.Line)
			if err != nil {
				return nil, err
			}
			sub.called = true
			out = append(out, &InvokeStmt{Name: sub.Name, Line: n.Line})

		case *RecallStmt:
			if !n.Explicit {
				// Implicit recall re-enters the currently active
				// specialization; it never creates a new key.
				fn.called = true
				out = append(out, &InvokeStmt{Name: fn.Name, Line: n.Line})
				break
			}
			args, err := s.resolveArgs(n.Args, env, def)
			if err != nil {
				return nil, err
			}
			sub, err := s.specialize(def, args, env, def.File, n.Line)
			if err != nil {
				return nil, err
			}
			sub.called = true
			out = append(out, &InvokeStmt{Name: sub.Name, Line: n.Line})

		case *LambdaStmt:
			args, err := s.resolveArgs(n.Args, env, def)
			if err != nil {
				return nil, err
			}
			sub, err := s.specialize(n.Def, args, env, def.File, n.Line)
			if err != nil {
				return nil, err
			}
			sub.called = true
			out = append(out, &InvokeStmt{Name: sub.Name, Line: n.Line})

		case *PushStmt:
			args, err := s.resolveArgs(n.Args, env, def)
			if err != nil {
				return nil, err
			}
			sub, err := s.specialize(n.Callee, args, nil, def.File, n.Line)
			if err != nil {
				return nil, err
			}
			out = append(out, &LoweredPushStmt{Callee: sub.Name, Binding: n.Binding, Line: n.Line})

		default:
			return nil, structuralErr(def.File, 0, "internal: unexpected %T in source body", st)
		}
	}
	return out, nil
}

// resolveArgs resolves a call site's template arguments against the active
// bindings, producing concrete fragments.
func (s *Session) resolveArgs(args []Fragment, env bindings, def *Definition) ([]Fragment, error) {
	if args == nil {
		return nil, nil
	}
	out := make([]Fragment, 0, len(args))
	for _, f := range args {
		r, err := resolveFragment(f, env, def)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// resolveFragment resolves one fragment. A forwarded parameter is replaced by
// a deep copy of its binding so two uses of the same argument never alias;
// statement fragments have all template references substituted eagerly, so
// the result carries no trace of the environment it was written under.
func resolveFragment(f Fragment, env bindings, def *Definition) (Fragment, error) {
	switch {
	case f.Param != "":
		bound, ok := env[f.Param]
		if !ok {
			return Fragment{}, structuralErr(def.File, f.Line, "unresolved template target [%s]", f.Param)
		}
		// The binding is concrete; resolving it under empty bindings is a
		// deep copy.
		return resolveFragment(bound, nil, def)

	case f.Cond != nil:
		c := *f.Cond
		return Fragment{Cond: &c, Line: f.Line}, nil

	case f.Count != nil:
		c := *f.Count
		return Fragment{Count: &c, Line: f.Line}, nil

	default:
		sub, err := substStmts(f.Stmts, env, def)
		if err != nil {
			return Fragment{}, err
		}
		return Fragment{Stmts: sub, Line: f.Line}, nil
	}
}

// substStmts rewrites source statements with every template reference
// resolved against env, without lowering anything. It is used to snapshot
// statement fragments at the call site that supplies them.
func substStmts(stmts []Stmt, env bindings, def *Definition) ([]Stmt, error) {
	out := make([]Stmt, 0, len(stmts))
	for _, st := range stmts {
		switch n := st.(type) {
		case *BuiltinStmt:
			out = append(out, &BuiltinStmt{Op: n.Op, Line: n.Line})
		case *NoOpStmt:
			out = append(out, &NoOpStmt{Line: n.Line})
		case *CommitStmt:
			out = append(out, &CommitStmt{Line: n.Line})
		case *PopStmt:
			out = append(out, &PopStmt{Binding: n.Binding, Line: n.Line})

		case *TargetStmt:
			frag, ok := env[n.Name]
			if !ok {
				return nil, structuralErr(def.File, n.Line, "unresolved template target [%s]", n.Name)
			}
			if frag.Stmts == nil {
				return nil, structuralErr(def.File, n.Line, "template target [%s] used in statement position but bound to a %s fragment", n.Name, fragKind(frag))
			}
			sub, err := substStmts(frag.Stmts, nil, def)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)

		case *IfStmt:
			cond, err := substCond(n.Cond, env, def)
			if err != nil {
				return nil, err
			}
			then, err := substStmts(n.Then, env, def)
			if err != nil {
				return nil, err
			}
			els, err := substStmts(n.Else, env, def)
			if err != nil {
				return nil, err
			}
			out = append(out, &IfStmt{Cond: cond, Then: then, Else: els, Line: n.Line})

		case *WhileStmt:
			cond, err := substCond(n.Cond, env, def)
			if err != nil {
				return nil, err
			}
			body, err := substStmts(n.Body, env, def)
			if err != nil {
				return nil, err
			}
			out = append(out, &WhileStmt{Cond: cond, Body: body, Line: n.Line})

		case *ForStmt:
			count, err := substCount(n.Count, env, def)
			if err != nil {
				return nil, err
			}
			body, err := substStmts(n.Body, env, def)
			if err != nil {
				return nil, err
			}
			out = append(out, &ForStmt{Count: count, Body: body, Line: n.Line})

		case *CallStmt:
			args, err := substFragments(n.Args, env, def)
			if err != nil {
				return nil, err
			}
			out = append(out, &CallStmt{Name: n.Name, Target: n.Target, Args: args, Line: n.Line})

		case *RecallStmt:
			args, err := substFragments(n.Args, env, def)
			if err != nil {
				return nil, err
			}
			out = append(out, &RecallStmt{Args: args, Explicit: n.Explicit, Line: n.Line})

		case *PushStmt:
			args, err := substFragments(n.Args, env, def)
			if err != nil {
				return nil, err
			}
			out = append(out, &PushStmt{CalleeName: n.CalleeName, Callee: n.Callee, Args: args, Binding: n.Binding, Line: n.Line})

		case *LambdaStmt:
			args, err := substFragments(n.Args, env, def)
			if err != nil {
				return nil, err
			}
			// The lambda's own parameters shadow whatever the fragment's
			// writer had in scope.
			inner := env
			if len(n.Def.Params) > 0 && len(env) > 0 {
				inner = make(bindings, len(env))
				for k, v := range env {
					inner[k] = v
				}
				for _, p := range n.Def.Params {
					delete(inner, p)
				}
			}
			body, err := substStmts(n.Def.Body, inner, def)
			if err != nil {
				return nil, err
			}
			clone := *n.Def
			clone.Body = body
			out = append(out, &LambdaStmt{Def: &clone, Args: args, Line: n.Line})

		default:
			return nil, structuralErr(def.File, 0, "internal: unexpected %T in fragment", st)
		}
	}
	return out, nil
}

func substFragments(frags []Fragment, env bindings, def *Definition) ([]Fragment, error) {
	if frags == nil {
		return nil, nil
	}
	out := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		r, err := resolveFragment(f, env, def)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// substCond resolves a parametrized condition against the active bindings.
func substCond(c Cond, env bindings, def *Definition) (Cond, error) {
	if c.Param == "" {
		return c, nil
	}
	bound, ok := env[c.Param]
	if !ok {
		return Cond{}, structuralErr(def.File, c.Line, "unresolved template target [%s]", c.Param)
	}
	if bound.Cond == nil {
		return Cond{}, structuralErr(def.File, c.Line, "template target [%s] used as a condition but bound to a %s fragment", c.Param, fragKind(bound))
	}
	r := *bound.Cond
	r.Line = c.Line
	return r, nil
}

// substCount resolves a parametrized loop bound against the active bindings.
func substCount(c Count, env bindings, def *Definition) (Count, error) {
	if c.Param == "" {
		return c, nil
	}
	bound, ok := env[c.Param]
	if !ok {
		return Count{}, structuralErr(def.File, c.Line, "unresolved template target [%s]", c.Param)
	}
	if bound.Count == nil {
		return Count{}, structuralErr(def.File, c.Line, "template target [%s] used as a loop count but bound to a %s fragment", c.Param, fragKind(bound))
	}
	r := *bound.Count
	r.Line = c.Line
	return r, nil
}

func fragKind(f Fragment) string {
	switch {
	case f.Cond != nil:
		return "condition"
	case f.Count != nil:
		return "count"
	case f.Param != "":
		return "parameter reference"
	}
	return "statement"
}

// loweredHasCommit reports whether a commit survives in a lowered body.
func loweredHasCommit(stmts []Stmt) bool {
	for _, st := range stmts {
		switch n := st.(type) {
		case *CommitStmt:
			return true
		case *IfStmt:
			if loweredHasCommit(n.Then) || loweredHasCommit(n.Else) {
				return true
			}
		case *WhileStmt:
			if loweredHasCommit(n.Body) {
				return true
			}
		case *ForStmt:
			if loweredHasCommit(n.Body) {
				return true
			}
		}
	}
	return false
}

//  Canonical keys and name mangling

// canonBindings renders an environment as a canonical string. Structurally
// identical argument tuples produce identical strings, which is what makes
// the dedup invariant hold.
func canonBindings(env bindings) string {
	if len(env) == 0 {
		return ""
	}
	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, k := range names {
		b.WriteString(k)
		b.WriteByte('=')
		canonFragment(&b, env[k])
		b.WriteByte(';')
	}
	return b.String()
}

func canonFragment(b *strings.Builder, f Fragment) {
	switch {
	case f.Param != "":
		fmt.Fprintf(b, "[%s]", f.Param)
	case f.Cond != nil:
		fmt.Fprintf(b, "cond:%s", f.Cond.String())
	case f.Count != nil:
		fmt.Fprintf(b, "count:%d", f.Count.Value)
	default:
		b.WriteByte('{')
		canonStmts(b, f.Stmts)
		b.WriteByte('}')
	}
}

func canonFragments(b *strings.Builder, frags []Fragment) {
	b.WriteByte('(')
	for i, f := range frags {
		if i > 0 {
			b.WriteByte(',')
		}
		canonFragment(b, f)
	}
	b.WriteByte(')')
}

func canonStmts(b *strings.Builder, stmts []Stmt) {
	for _, st := range stmts {
		switch n := st.(type) {
		case *BuiltinStmt:
			fmt.Fprintf(b, "%s;", n.Op)
		case *NoOpStmt:
			b.WriteString("nop;")
		case *CommitStmt:
			b.WriteString("commit;")
		case *PopStmt:
			fmt.Fprintf(b, "pop:%s;", n.Binding)
		case *TargetStmt:
			fmt.Fprintf(b, "[%s];", n.Name)
		case *CallStmt:
			fmt.Fprintf(b, "call:%s", n.Target.ident())
			canonFragments(b, n.Args)
			b.WriteByte(';')
		case *RecallStmt:
			b.WriteString("recall")
			if n.Explicit {
				canonFragments(b, n.Args)
			}
			b.WriteByte(';')
		case *IfStmt:
			fmt.Fprintf(b, "if(%s){", n.Cond.String())
			canonStmts(b, n.Then)
			b.WriteString("}else{")
			canonStmts(b, n.Else)
			b.WriteByte('}')
		case *WhileStmt:
			fmt.Fprintf(b, "while(%s){", n.Cond.String())
			canonStmts(b, n.Body)
			b.WriteByte('}')
		case *ForStmt:
			fmt.Fprintf(b, "for(%s){", n.Count.String())
			canonStmts(b, n.Body)
			b.WriteByte('}')
		case *PushStmt:
			fmt.Fprintf(b, "push:%s=%s", n.Binding, n.Callee.ident())
			canonFragments(b, n.Args)
			b.WriteByte(';')
		case *LambdaStmt:
			fmt.Fprintf(b, "fn:%s", n.Def.ident())
			canonFragments(b, n.Args)
			b.WriteByte('{')
			canonStmts(b, n.Def.Body)
			b.WriteByte('}')
		}
	}
}

// mangle derives a synthetic emitted name from the definition name and the
// canonical specialization key: deterministic for unchanged input and unique
// per key.
func mangle(name, key string) string {
	h := fnv.New64a()
	h.Write([]byte(key))
	return fmt.Sprintf("%s_%016X", sanitizeUpper(name), h.Sum64())
}

// sanitizeUpper maps a source name onto the target's [A-Z0-9_] alphabet.
func sanitizeUpper(name string) string {
	up := strings.ToUpper(name)
	var b strings.Builder
	for _, r := range up {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
