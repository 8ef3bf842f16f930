package compiler

import (
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
)

// compileOK compiles one in-memory source file and fails the test on any error.
func compileOK(t *testing.T, src string) string {
	t.Helper()
	rep := NewReporter(io.Discard)
	out, err := CompileSource(src, "test.nk", rep)
	if err != nil {
		t.Fatalf("compilation failed: %v", err)
	}
	return out
}

// compileErr compiles source that must fail and returns the typed error.
func compileErr(t *testing.T, src string) *Error {
	t.Helper()
	rep := NewReporter(io.Discard)
	out, err := CompileSource(src, "test.nk", rep)
	if err == nil {
		t.Fatalf("expected an error, got output:\n%s", out)
	}
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected a *compiler.Error, got %T: %v", err, err)
	}
	return ce
}

// parseOut splits emitted karel-lang into per-function trimmed body lines,
// preserving emission order.
func parseOut(t *testing.T, out string) (order []string, bodies map[string][]string) {
	t.Helper()
	bodies = make(map[string][]string)
	current := ""
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, " ") {
			if line == "END" && current != "" {
				current = ""
				continue
			}
			current = line
			if _, dup := bodies[current]; dup {
				t.Fatalf("function %q emitted twice:\n%s", current, out)
			}
			order = append(order, current)
			bodies[current] = nil
			continue
		}
		if current == "" {
			t.Fatalf("indented line outside any function:\n%s", out)
		}
		bodies[current] = append(bodies[current], strings.TrimSpace(line))
	}
	return order, bodies
}

func TestCompileTripleStep(t *testing.T) {
	out := compileOK(t, `
fn triple_step {
	step;
	step;
	step;
}
`)
	want := "TRIPLE_STEP\n  STEP\n  STEP\n  STEP\nEND\n"
	if out != want {
		t.Errorf("output mismatch\n got:\n%s\nwant:\n%s", out, want)
	}
}

func TestImplicitRecall(t *testing.T) {
	out := compileOK(t, `
fn go_home {
	if not_home {
		step;
		recall;
	}
}
`)
	want := "GO_HOME\n  IF NOT HOME\n    STEP\n    GO_HOME\n  END\nEND\n"
	if out != want {
		t.Errorf("output mismatch\n got:\n%s\nwant:\n%s", out, want)
	}
}

func TestPlacePickShorthand(t *testing.T) {
	out := compileOK(t, `fn m { ++; --; stop; }`)
	want := "M\n  PLACE\n  PICK\n  STOP\nEND\n"
	if out != want {
		t.Errorf("output mismatch\n got:\n%s\nwant:\n%s", out, want)
	}
}

func TestDeadCodeDropped(t *testing.T) {
	out := compileOK(t, `
fn unused(n) { for [n] { step; } }
fn main_fn { step; }
`)
	order, _ := parseOut(t, out)
	if len(order) != 1 || order[0] != "MAIN_FN" {
		t.Errorf("expected only MAIN_FN, got %v", order)
	}
}

func TestUncalledImplicitStillEmitted(t *testing.T) {
	out := compileOK(t, `
fn one { step; }
fn two { left; }
`)
	order, _ := parseOut(t, out)
	if len(order) != 2 || order[0] != "ONE" || order[1] != "TWO" {
		t.Errorf("expected ONE and TWO, got %v", order)
	}
}

var mangledName = regexp.MustCompile(`^[A-Z0-9_]+_[0-9A-F]{16}$`)

func TestMangledNamesAreDeterministic(t *testing.T) {
	src := `
fn walk(n) { for [n] { step; } }
fn main_fn { walk(4); }
`
	out1 := compileOK(t, src)
	out2 := compileOK(t, src)
	if out1 != out2 {
		t.Errorf("same input produced different output:\n%s\nvs\n%s", out1, out2)
	}
	order, _ := parseOut(t, out1)
	if len(order) != 2 {
		t.Fatalf("expected 2 functions, got %v", order)
	}
	if !mangledName.MatchString(order[1]) {
		t.Errorf("specialized name %q is not of the form NAME_<16 hex digits>", order[1])
	}
}

func TestDuplicateDefinition(t *testing.T) {
	e := compileErr(t, `
fn a { step; }
fn a { left; }
`)
	if e.Kind != SyntaxError {
		t.Errorf("expected SyntaxError, got %s: %v", e.Kind, e)
	}
}

func TestUndefinedCall(t *testing.T) {
	e := compileErr(t, `fn m { nope(); }`)
	if e.Kind != SyntaxError {
		t.Errorf("expected SyntaxError, got %s: %v", e.Kind, e)
	}
	if !strings.Contains(e.Msg, "nope") {
		t.Errorf("error should name the missing function: %v", e)
	}
}

func TestPushOfNonSliceFunction(t *testing.T) {
	e := compileErr(t, `
fn plain { step; }
fn m { push p = plain(); pop p; }
`)
	if e.Kind != SyntaxError {
		t.Errorf("expected SyntaxError, got %s: %v", e.Kind, e)
	}
}

func TestBuiltinShadowWarning(t *testing.T) {
	rep := NewReporter(io.Discard)
	if _, err := CompileSource(`fn step { left; }`, "test.nk", rep); err != nil {
		t.Fatalf("compilation failed: %v", err)
	}
	if rep.Warnings() != 1 {
		t.Errorf("expected 1 warning, got %d", rep.Warnings())
	}
}
