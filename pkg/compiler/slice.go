package compiler

import "fmt"

// maxSliceDepth bounds segment expansion so a slice function that pushes
// itself fails cleanly instead of expanding forever.
const maxSliceDepth = 128

// liveBinding is one not-yet-popped slice binding in the current region.
type liveBinding struct {
	name   string
	callee string // specialized slice function name
	line   int
}

// sliceXform carries the per-run state of the stack-slice transform.
type sliceXform struct {
	s      *Session
	byName map[string]*Function
	bodies map[*Function][]Stmt // bodies as lowered, before any rewriting
	posts  map[string]*Function // slice function name -> shared post-commit segment
	preOrd map[string]int       // slice function name -> last pre segment ordinal
	resOrd map[string]int       // owner function name -> last resume segment ordinal
	depth  int
}

// TransformSlices rewrites every push/pop/commit in the session's functions
// into plain calls between synthesized segments. Per push site it
// instantiates a pre-commit copy of the slice callee whose commit calls the
// site's resume segment; pop becomes a call of the callee's shared
// post-commit segment; the pusher's tail relocates into the resume segment.
// After this pass no Push, Pop or Commit survives in any emitted body.
func (s *Session) TransformSlices() error {
	x := &sliceXform{
		s:      s,
		byName: make(map[string]*Function),
		bodies: make(map[*Function][]Stmt),
		posts:  make(map[string]*Function),
		preOrd: make(map[string]int),
		resOrd: make(map[string]int),
	}
	for _, fn := range s.funcs {
		x.byName[fn.Name] = fn
		x.bodies[fn] = fn.Body
	}

	// A specialization referenced only through pushes is not part of the
	// normal call graph; its code survives only inside its segments.
	snapshot := append([]*Function(nil), s.funcs...)
	for _, fn := range snapshot {
		fn.emit = fn.called
	}

	for _, fn := range snapshot {
		if !fn.emit {
			continue
		}
		var stack []liveBinding
		body, err := x.region(fn, fn.Body, &stack)
		if err != nil {
			return err
		}
		fn.Body = body
	}
	return nil
}

// region rewrites one straight-line statement list. If/While/For bodies are
// independent regions with their own binding stacks: a binding can neither
// escape the block that pushed it nor be popped across a branch.
func (x *sliceXform) region(owner *Function, stmts []Stmt, stack *[]liveBinding) ([]Stmt, error) {
	if x.depth++; x.depth > maxSliceDepth {
		x.depth--
		return nil, structuralErr(owner.file, 0, "slice segment expansion in %q exceeds depth %d; does a slice function push itself?", owner.Name, maxSliceDepth)
	}
	defer func() { x.depth-- }()

	var out []Stmt
	for i, st := range stmts {
		switch n := st.(type) {
		case *LoweredPushStmt:
			callee, ok := x.byName[n.Callee]
			if !ok {
				return nil, structuralErr(owner.file, n.Line, "internal: push of unknown function %q", n.Callee)
			}

			resumeName := x.freshName(owner.Name+"_R", x.resOrd, owner.Name)

			pre, err := x.instantiatePre(callee, resumeName)
			if err != nil {
				return nil, err
			}

			out = append(out, &InvokeStmt{Name: pre.Name, Line: n.Line})

			// Everything after the push, through the matching pop and
			// beyond, relocates into the resume segment. It is reached
			// only from the callee's commit, never from here.
			*stack = append(*stack, liveBinding{name: n.Binding, callee: callee.Name, line: n.Line})
			resume := &Function{Name: resumeName, file: owner.file, emit: true}
			x.s.funcs = append(x.s.funcs, resume)
			x.byName[resume.Name] = resume
			body, err := x.region(owner, stmts[i+1:], stack)
			if err != nil {
				return nil, err
			}
			resume.Body = body
			return out, nil

		case *PopStmt:
			if len(*stack) == 0 {
				return nil, scopeErr(owner.file, n.Line, "pop of %q with no live slice binding in this scope", n.Binding)
			}
			top := (*stack)[len(*stack)-1]
			if top.name != n.Binding {
				for _, b := range *stack {
					if b.name == n.Binding {
						return nil, scopeErr(owner.file, n.Line, "slice binding %q popped out of order; %q must be popped first", n.Binding, top.name)
					}
				}
				return nil, scopeErr(owner.file, n.Line, "pop of %q with no live slice binding in this scope", n.Binding)
			}
			*stack = (*stack)[:len(*stack)-1]
			post, err := x.postSegment(x.byName[top.callee])
			if err != nil {
				return nil, err
			}
			out = append(out, &InvokeStmt{Name: post.Name, Line: n.Line})

		case *CommitStmt:
			x.s.rep.Warnf(owner.file, n.Line, "commit outside a push context has no effect")

		case *IfStmt:
			var ts, es []liveBinding
			then, err := x.region(owner, n.Then, &ts)
			if err != nil {
				return nil, err
			}
			els, err := x.region(owner, n.Else, &es)
			if err != nil {
				return nil, err
			}
			out = append(out, &IfStmt{Cond: n.Cond, Then: then, Else: els, Line: n.Line})

		case *WhileStmt:
			var bs []liveBinding
			body, err := x.region(owner, n.Body, &bs)
			if err != nil {
				return nil, err
			}
			out = append(out, &WhileStmt{Cond: n.Cond, Body: body, Line: n.Line})

		case *ForStmt:
			var bs []liveBinding
			body, err := x.region(owner, n.Body, &bs)
			if err != nil {
				return nil, err
			}
			out = append(out, &ForStmt{Count: n.Count, Body: body, Line: n.Line})

		default:
			out = append(out, st)
		}
	}

	if len(*stack) > 0 {
		top := (*stack)[len(*stack)-1]
		return nil, scopeErr(owner.file, top.line, "slice binding %q is never popped before the end of its scope", top.name)
	}
	return out, nil
}

// freshName returns prefix plus the next free ordinal for key. Segment names
// share the emitted namespace with user functions, and nothing stops a source
// file from defining a function whose uppercased name looks like a segment,
// so taken names are skipped rather than emitted twice.
func (x *sliceXform) freshName(prefix string, ord map[string]int, key string) string {
	for {
		ord[key]++
		name := fmt.Sprintf("%s%d", prefix, ord[key])
		if _, taken := x.byName[name]; !taken {
			return name
		}
	}
}

// instantiatePre builds a per-push-site copy of the slice callee up to and
// including its commit, with the commit rewritten into a call of the push
// site's resume segment. Each push site gets its own copy: the same slice
// specialization pushed twice must resume two different continuations.
func (x *sliceXform) instantiatePre(callee *Function, resumeName string) (*Function, error) {
	preStmts, _ := splitAtCommit(x.bodies[callee])

	pre := &Function{
		Name: x.freshName(callee.Name+"_P", x.preOrd, callee.Name),
		file: callee.file,
		emit: true,
	}
	x.s.funcs = append(x.s.funcs, pre)
	x.byName[pre.Name] = pre

	var stack []liveBinding
	body, err := x.region(pre, replaceCommits(preStmts, resumeName), &stack)
	if err != nil {
		return nil, err
	}
	pre.Body = body
	return pre, nil
}

// postSegment returns the slice function's shared post-commit segment,
// creating it on first use. All commit-carrying branches merge after the
// enclosing conditional, so one segment per slice function suffices; every
// pop of this callee calls it.
func (x *sliceXform) postSegment(callee *Function) (*Function, error) {
	if post, ok := x.posts[callee.Name]; ok {
		return post, nil
	}
	_, postStmts := splitAtCommit(x.bodies[callee])

	name := callee.Name + "_POST"
	for n := 2; ; n++ {
		if _, taken := x.byName[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s_POST%d", callee.Name, n)
	}
	post := &Function{
		Name: name,
		file: callee.file,
		emit: true,
	}
	x.posts[callee.Name] = post
	x.s.funcs = append(x.s.funcs, post)
	x.byName[post.Name] = post

	var stack []liveBinding
	body, err := x.region(post, postStmts, &stack)
	if err != nil {
		return nil, err
	}
	post.Body = body
	return post, nil
}

// splitAtCommit splits a slice body at the first top-level statement that
// contains a commit. A body with no commit at all yields an empty post
// segment; by the documented contract that program is already miscompiled
// and no diagnosis is attempted.
func splitAtCommit(stmts []Stmt) (pre, post []Stmt) {
	for i, st := range stmts {
		if stmtHasCommit(st) {
			return stmts[:i+1], stmts[i+1:]
		}
	}
	return stmts, nil
}

func stmtHasCommit(st Stmt) bool {
	switch n := st.(type) {
	case *CommitStmt:
		return true
	case *IfStmt:
		return loweredHasCommit(n.Then) || loweredHasCommit(n.Else)
	case *WhileStmt:
		return loweredHasCommit(n.Body)
	case *ForStmt:
		return loweredHasCommit(n.Body)
	}
	return false
}

// replaceCommits rewrites every commit into a call of the resume segment,
// without mutating the input statements.
func replaceCommits(stmts []Stmt, resumeName string) []Stmt {
	out := make([]Stmt, 0, len(stmts))
	for _, st := range stmts {
		switch n := st.(type) {
		case *CommitStmt:
			out = append(out, &InvokeStmt{Name: resumeName, Line: n.Line})
		case *IfStmt:
			out = append(out, &IfStmt{
				Cond: n.Cond,
				Then: replaceCommits(n.Then, resumeName),
				Else: replaceCommits(n.Else, resumeName),
				Line: n.Line,
			})
		case *WhileStmt:
			out = append(out, &WhileStmt{Cond: n.Cond, Body: replaceCommits(n.Body, resumeName), Line: n.Line})
		case *ForStmt:
			out = append(out, &ForStmt{Count: n.Count, Body: replaceCommits(n.Body, resumeName), Line: n.Line})
		default:
			out = append(out, st)
		}
	}
	return out
}
