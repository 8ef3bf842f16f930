package compiler

import (
	"fmt"
	"strings"
)

// Emit serializes the final reachable set as karel-lang text, one flat
// function per paragraph, in first-discovery order. By this point every body
// consists purely of calls, builtins, conditionals and loops.
func (s *Session) Emit() (string, error) {
	var b strings.Builder
	first := true
	for _, fn := range s.funcs {
		if !fn.emit {
			continue
		}
		if !first {
			b.WriteByte('\n')
		}
		first = false
		b.WriteString(fn.Name)
		b.WriteByte('\n')
		if err := emitStmts(&b, fn.Body, 1); err != nil {
			return "", fmt.Errorf("emitting %s: %w", fn.Name, err)
		}
		b.WriteString("END\n")
	}
	return b.String(), nil
}

func emitStmts(b *strings.Builder, stmts []Stmt, depth int) error {
	indent := strings.Repeat("  ", depth)
	for _, st := range stmts {
		switch n := st.(type) {
		case *NoOpStmt:
			// nothing to emit

		case *BuiltinStmt:
			op, ok := Builtins[n.Op]
			if !ok {
				return fmt.Errorf("unknown builtin %q", n.Op)
			}
			fmt.Fprintf(b, "%s%s\n", indent, op)

		case *InvokeStmt:
			fmt.Fprintf(b, "%s%s\n", indent, n.Name)

		case *IfStmt:
			fmt.Fprintf(b, "%sIF %s\n", indent, condText(n.Cond))
			if err := emitStmts(b, n.Then, depth+1); err != nil {
				return err
			}
			if len(n.Else) > 0 {
				fmt.Fprintf(b, "%sELSE\n", indent)
				if err := emitStmts(b, n.Else, depth+1); err != nil {
					return err
				}
			}
			fmt.Fprintf(b, "%sEND\n", indent)

		case *WhileStmt:
			fmt.Fprintf(b, "%sWHILE %s\n", indent, condText(n.Cond))
			if err := emitStmts(b, n.Body, depth+1); err != nil {
				return err
			}
			fmt.Fprintf(b, "%sEND\n", indent)

		case *ForStmt:
			fmt.Fprintf(b, "%sREPEAT %d TIMES\n", indent, n.Count.Value)
			if err := emitStmts(b, n.Body, depth+1); err != nil {
				return err
			}
			fmt.Fprintf(b, "%sEND\n", indent)

		default:
			return fmt.Errorf("%T must not survive past the slice transform", st)
		}
	}
	return nil
}

func condText(c Cond) string {
	word := "IS"
	if c.Not {
		word = "NOT"
	}
	return word + " " + CondTests[c.Test]
}
