// Package karel parses and runs flat karel-lang programs, the output
// format of the compiler: named functions built from primitive ops, calls,
// IF/ELSE, WHILE and bounded REPEAT blocks.
package karel

import (
	"fmt"
	"strconv"
	"strings"
)

// Instr is implemented by every karel-lang instruction node.
type Instr interface {
	instrNode()
}

// Prim is one primitive robot op: STEP, LEFT, PLACE, PICK or STOP.
type Prim struct {
	Op   string
	Line int
}

// Call invokes another function by name.
type Call struct {
	Name string
	Line int
}

// If branches on a world condition.
type If struct {
	Not  bool
	Test string
	Then []Instr
	Else []Instr
	Line int
}

// While loops on a world condition.
type While struct {
	Not  bool
	Test string
	Body []Instr
	Line int
}

// Repeat runs its body a fixed number of times.
type Repeat struct {
	N    int
	Body []Instr
	Line int
}

func (*Prim) instrNode()   {}
func (*Call) instrNode()   {}
func (*If) instrNode()     {}
func (*While) instrNode()  {}
func (*Repeat) instrNode() {}

var primOps = map[string]bool{
	"STEP": true, "LEFT": true, "PLACE": true, "PICK": true, "STOP": true,
}

var condTests = map[string]bool{
	"WALL": true, "FLAG": true, "NORTH": true, "SOUTH": true,
	"EAST": true, "WEST": true, "HOME": true,
}

// Program is one parsed karel-lang unit. Order preserves source order, so
// the first function is the conventional entry point.
type Program struct {
	Funcs map[string][]Instr
	Order []string
}

// scanner walks source lines, skipping blanks and '#' comments.
type scanner struct {
	lines []string
	pos   int
}

func (sc *scanner) next() (fields []string, line int, ok bool) {
	for sc.pos < len(sc.lines) {
		sc.pos++
		raw := sc.lines[sc.pos-1]
		if j := strings.IndexByte(raw, '#'); j >= 0 {
			raw = raw[:j]
		}
		f := strings.Fields(raw)
		if len(f) > 0 {
			return f, sc.pos, true
		}
	}
	return nil, sc.pos, false
}

// Parse reads karel-lang text into a Program. Every call target must be
// defined somewhere in the unit.
func Parse(src string) (*Program, error) {
	sc := &scanner{lines: strings.Split(src, "\n")}
	prog := &Program{Funcs: make(map[string][]Instr)}

	for {
		fields, line, ok := sc.next()
		if !ok {
			break
		}
		if len(fields) != 1 {
			return nil, fmt.Errorf("line %d: expected a function name, got %q", line, strings.Join(fields, " "))
		}
		name := fields[0]
		if primOps[name] || name == "END" || name == "ELSE" {
			return nil, fmt.Errorf("line %d: %q cannot name a function", line, name)
		}
		if _, dup := prog.Funcs[name]; dup {
			return nil, fmt.Errorf("line %d: function %q defined twice", line, name)
		}

		body, term, err := parseBlock(sc, name)
		if err != nil {
			return nil, err
		}
		if term != "END" {
			return nil, fmt.Errorf("function %q: missing END", name)
		}
		prog.Funcs[name] = body
		prog.Order = append(prog.Order, name)
	}

	if len(prog.Order) == 0 {
		return nil, fmt.Errorf("empty program")
	}
	if err := prog.checkCalls(); err != nil {
		return nil, err
	}
	return prog, nil
}

// parseBlock reads instructions until END or ELSE and reports which
// terminator closed the block.
func parseBlock(sc *scanner, fn string) (body []Instr, term string, err error) {
	for {
		fields, line, ok := sc.next()
		if !ok {
			return nil, "", fmt.Errorf("function %q: unexpected end of input", fn)
		}
		head := fields[0]

		switch {
		case head == "END" || head == "ELSE":
			if len(fields) != 1 {
				return nil, "", fmt.Errorf("line %d: trailing tokens after %s", line, head)
			}
			return body, head, nil

		case primOps[head]:
			if len(fields) != 1 {
				return nil, "", fmt.Errorf("line %d: trailing tokens after %s", line, head)
			}
			body = append(body, &Prim{Op: head, Line: line})

		case head == "IF":
			not, test, err := parseCond(fields, line)
			if err != nil {
				return nil, "", err
			}
			then, t, err := parseBlock(sc, fn)
			if err != nil {
				return nil, "", err
			}
			var els []Instr
			if t == "ELSE" {
				els, t, err = parseBlock(sc, fn)
				if err != nil {
					return nil, "", err
				}
				if t != "END" {
					return nil, "", fmt.Errorf("line %d: ELSE block must end with END", line)
				}
			}
			body = append(body, &If{Not: not, Test: test, Then: then, Else: els, Line: line})

		case head == "WHILE":
			not, test, err := parseCond(fields, line)
			if err != nil {
				return nil, "", err
			}
			loop, t, err := parseBlock(sc, fn)
			if err != nil {
				return nil, "", err
			}
			if t != "END" {
				return nil, "", fmt.Errorf("line %d: WHILE block must end with END", line)
			}
			body = append(body, &While{Not: not, Test: test, Body: loop, Line: line})

		case head == "REPEAT":
			if len(fields) != 3 || fields[2] != "TIMES" {
				return nil, "", fmt.Errorf("line %d: REPEAT wants \"REPEAT n TIMES\"", line)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 0 {
				return nil, "", fmt.Errorf("line %d: bad repeat count %q", line, fields[1])
			}
			loop, t, err := parseBlock(sc, fn)
			if err != nil {
				return nil, "", err
			}
			if t != "END" {
				return nil, "", fmt.Errorf("line %d: REPEAT block must end with END", line)
			}
			body = append(body, &Repeat{N: n, Body: loop, Line: line})

		default:
			if len(fields) != 1 {
				return nil, "", fmt.Errorf("line %d: trailing tokens after call of %s", line, head)
			}
			body = append(body, &Call{Name: head, Line: line})
		}
	}
}

func parseCond(fields []string, line int) (not bool, test string, err error) {
	if len(fields) != 3 {
		return false, "", fmt.Errorf("line %d: %s wants \"%s IS|NOT cond\"", line, fields[0], fields[0])
	}
	switch fields[1] {
	case "IS":
	case "NOT":
		not = true
	default:
		return false, "", fmt.Errorf("line %d: expected IS or NOT, got %q", line, fields[1])
	}
	if !condTests[fields[2]] {
		return false, "", fmt.Errorf("line %d: unknown condition %q", line, fields[2])
	}
	return not, fields[2], nil
}

func (p *Program) checkCalls() error {
	var walk func(instrs []Instr) error
	walk = func(instrs []Instr) error {
		for _, in := range instrs {
			switch n := in.(type) {
			case *Call:
				if _, ok := p.Funcs[n.Name]; !ok {
					return fmt.Errorf("line %d: call of undefined function %q", n.Line, n.Name)
				}
			case *If:
				if err := walk(n.Then); err != nil {
					return err
				}
				if err := walk(n.Else); err != nil {
					return err
				}
			case *While:
				if err := walk(n.Body); err != nil {
					return err
				}
			case *Repeat:
				if err := walk(n.Body); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, name := range p.Order {
		if err := walk(p.Funcs[name]); err != nil {
			return fmt.Errorf("in %s: %w", name, err)
		}
	}
	return nil
}
