package compiler

import (
	"fmt"
	"os"
	"path/filepath"
)

// loader reads source files once each, depth-first through imports, the way
// the original tool walked its import statements.
type loader struct {
	seen  map[string]bool // absolute path -> already loaded
	dirs  []string        // -I import search directories
	rep   *Reporter
	units []*Unit
}

// LoadProgram parses the given source files and everything they import, then
// links every call and push site to its definition identity. Unit order is
// import-depth-first, which fixes the seed order of the reachability pass.
func LoadProgram(paths []string, importDirs []string, rep *Reporter) ([]*Unit, error) {
	ld := &loader{seen: make(map[string]bool), dirs: importDirs, rep: rep}
	for _, p := range paths {
		if err := ld.load(p, "", 0, ""); err != nil {
			return nil, err
		}
	}
	if err := linkUnits(ld.units, rep); err != nil {
		return nil, err
	}
	return ld.units, nil
}

// load reads one file and recurses into its imports before recording the
// unit itself. fromFile/fromLine locate the import statement for errors.
func (ld *loader) load(path, fromDir string, fromLine int, fromFile string) error {
	full, err := ld.resolve(path, fromDir)
	if err != nil {
		if fromFile != "" {
			return syntaxErr(fromFile, fromLine, "source file %q not found", path)
		}
		return fmt.Errorf("source file %q not found", path)
	}
	if ld.seen[full] {
		return nil
	}
	ld.seen[full] = true

	data, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("reading %q: %w", full, err)
	}
	src := string(data)
	ld.rep.AddSource(full, src)

	unit, err := Parse(src, full)
	if err != nil {
		return err
	}
	for _, imp := range unit.Imports {
		if err := ld.load(imp.Path, filepath.Dir(full), imp.Line, full); err != nil {
			return err
		}
	}
	ld.units = append(ld.units, unit)
	return nil
}

// resolve finds a source file relative to the importing file's directory
// first, then the -I search directories.
func (ld *loader) resolve(path, fromDir string) (string, error) {
	try := func(p string) (string, bool) {
		if _, err := os.Stat(p); err != nil {
			return "", false
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", false
		}
		return abs, true
	}

	if filepath.IsAbs(path) {
		if p, ok := try(path); ok {
			return p, nil
		}
		return "", os.ErrNotExist
	}
	if fromDir != "" {
		if p, ok := try(filepath.Join(fromDir, path)); ok {
			return p, nil
		}
	} else if p, ok := try(path); ok {
		return p, nil
	}
	for _, dir := range ld.dirs {
		if p, ok := try(filepath.Join(dir, path)); ok {
			return p, nil
		}
	}
	return "", os.ErrNotExist
}

// linkUnits resolves every call and push site to a definition identity.
// After linking, nothing in the back end looks anything up by name.
func linkUnits(units []*Unit, rep *Reporter) error {
	defs := make(map[string]*Definition)
	for _, u := range units {
		for _, d := range u.Defs {
			if _, shadows := Builtins[d.Name]; shadows {
				rep.Warnf(d.File, d.Line, "definition %q shadows a builtin and can never be called", d.Name)
			} else if _, isCond := condFromIdent(d.Name); isCond {
				rep.Warnf(d.File, d.Line, "definition %q shadows a condition name", d.Name)
			}
			if prev, dup := defs[d.Name]; dup {
				return syntaxErr(d.File, d.Line, "duplicate definition of %q (first defined at %s:%d)", d.Name, prev.File, prev.Line)
			}
			defs[d.Name] = d
		}
	}
	for _, u := range units {
		for _, d := range u.Defs {
			if err := resolveStmts(d.Body, defs, d.File); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolveStmts(stmts []Stmt, defs map[string]*Definition, file string) error {
	for _, st := range stmts {
		switch n := st.(type) {
		case *CallStmt:
			target, ok := defs[n.Name]
			if !ok {
				return syntaxErr(file, n.Line, "call of undefined function %q", n.Name)
			}
			n.Target = target
			if err := resolveFragments(n.Args, defs, file); err != nil {
				return err
			}

		case *RecallStmt:
			if err := resolveFragments(n.Args, defs, file); err != nil {
				return err
			}

		case *PushStmt:
			callee, ok := defs[n.CalleeName]
			if !ok {
				return syntaxErr(file, n.Line, "push of undefined function %q", n.CalleeName)
			}
			if !callee.IsSlicing {
				return syntaxErr(file, n.Line, "push of %q, which is not declared as a slice function", n.CalleeName)
			}
			n.Callee = callee
			if err := resolveFragments(n.Args, defs, file); err != nil {
				return err
			}

		case *IfStmt:
			if err := resolveStmts(n.Then, defs, file); err != nil {
				return err
			}
			if err := resolveStmts(n.Else, defs, file); err != nil {
				return err
			}

		case *WhileStmt:
			if err := resolveStmts(n.Body, defs, file); err != nil {
				return err
			}

		case *ForStmt:
			if err := resolveStmts(n.Body, defs, file); err != nil {
				return err
			}

		case *LambdaStmt:
			if err := resolveStmts(n.Def.Body, defs, file); err != nil {
				return err
			}
			if err := resolveFragments(n.Args, defs, file); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolveFragments(frags []Fragment, defs map[string]*Definition, file string) error {
	for _, f := range frags {
		if f.Stmts != nil {
			if err := resolveStmts(f.Stmts, defs, file); err != nil {
				return err
			}
		}
	}
	return nil
}
