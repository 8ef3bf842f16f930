package compiler

import (
	"strings"
	"testing"
)

func TestSpecializationDedup(t *testing.T) {
	out := compileOK(t, `
fn walk(n) { for [n] { step; } }
fn a { walk(6); }
fn b { walk(6); walk(2); }
`)
	order, bodies := parseOut(t, out)
	if len(order) != 4 {
		t.Fatalf("expected 4 functions (A, B and two walk specializations), got %v", order)
	}

	aCall := bodies["A"][0]
	bCalls := bodies["B"]
	if len(bCalls) != 2 {
		t.Fatalf("B should make two calls, got %v", bCalls)
	}
	if bCalls[0] != aCall {
		t.Errorf("walk(6) should share one specialization: A calls %q, B calls %q", aCall, bCalls[0])
	}
	if bCalls[1] == aCall {
		t.Errorf("walk(2) must not share walk(6)'s specialization")
	}

	if body := bodies[aCall]; len(body) != 3 || body[0] != "REPEAT 6 TIMES" {
		t.Errorf("walk(6) body = %v", body)
	}
	if body := bodies[bCalls[1]]; len(body) != 3 || body[0] != "REPEAT 2 TIMES" {
		t.Errorf("walk(2) body = %v", body)
	}
}

func TestStatementFragment(t *testing.T) {
	out := compileOK(t, `
fn twice(body) { [body]; [body]; }
fn main_fn { twice({ step; left; }); }
`)
	_, bodies := parseOut(t, out)
	name := bodies["MAIN_FN"][0]
	want := []string{"STEP", "LEFT", "STEP", "LEFT"}
	got := bodies[name]
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("twice body = %v, want %v", got, want)
	}
}

func TestCondAndCountFragments(t *testing.T) {
	out := compileOK(t, `
fn sweep(c, n) { while [c] { for [n] { step; } place; } }
fn main_fn { sweep(not_wall, 3); }
`)
	_, bodies := parseOut(t, out)
	body := bodies[bodies["MAIN_FN"][0]]
	want := []string{"WHILE NOT WALL", "REPEAT 3 TIMES", "STEP", "END", "PLACE", "END"}
	if strings.Join(body, ",") != strings.Join(want, ",") {
		t.Errorf("sweep body = %v, want %v", body, want)
	}
}

func TestForwardedParameterDedups(t *testing.T) {
	out := compileOK(t, `
fn inner(n) { for [n] { step; } }
fn outer(n) { inner([n]); }
fn direct { inner(2); }
fn main_fn { outer(2); }
`)
	_, bodies := parseOut(t, out)
	viaOuter := bodies[bodies["MAIN_FN"][0]][0]
	viaDirect := bodies["DIRECT"][0]
	if viaOuter != viaDirect {
		t.Errorf("inner(2) reached through forwarding should dedup with the direct call: %q vs %q", viaOuter, viaDirect)
	}
}

func TestLambdaInheritsBindings(t *testing.T) {
	out := compileOK(t, `
fn outer(n) {
	fn { for [n] { step; } }();
}
fn main_fn { outer(2); }
`)
	_, bodies := parseOut(t, out)
	lambdaName := bodies[bodies["MAIN_FN"][0]][0]
	if !strings.HasPrefix(lambdaName, "OUTER_FN1_") {
		t.Fatalf("lambda name = %q", lambdaName)
	}
	body := bodies[lambdaName]
	if len(body) != 3 || body[0] != "REPEAT 2 TIMES" || body[1] != "STEP" {
		t.Errorf("lambda body = %v", body)
	}
}

func TestLambdaParamsShadowParent(t *testing.T) {
	out := compileOK(t, `
fn outer(n) {
	fn (n) { for [n] { step; } }(5);
	for [n] { left; }
}
fn main_fn { outer(2); }
`)
	_, bodies := parseOut(t, out)
	outerBody := bodies[bodies["MAIN_FN"][0]]
	lambdaBody := bodies[outerBody[0]]
	if lambdaBody[0] != "REPEAT 5 TIMES" {
		t.Errorf("lambda should use its own binding, got %v", lambdaBody)
	}
	if outerBody[1] != "REPEAT 2 TIMES" {
		t.Errorf("outer should keep its own binding, got %v", outerBody)
	}
}

func TestExplicitRecallSameArgsIsMemoized(t *testing.T) {
	out := compileOK(t, `
fn spin(n) {
	if is_flag {
		pick;
		recall([n]);
	}
	for [n] { step; }
}
fn main_fn { spin(3); }
`)
	order, bodies := parseOut(t, out)
	if len(order) != 2 {
		t.Fatalf("recall with identical arguments must not mint new specializations: %v", order)
	}
	spinName := bodies["MAIN_FN"][0]
	found := false
	for _, line := range bodies[spinName] {
		if line == spinName {
			found = true
		}
	}
	if !found {
		t.Errorf("spin should call itself, body = %v", bodies[spinName])
	}
}

func TestExplicitRecallWithCondParam(t *testing.T) {
	out := compileOK(t, `
fn f(v) {
	if [v] {
		step;
		recall([v]);
	}
}
fn main_fn { f(not_wall); }
`)
	order, bodies := parseOut(t, out)
	if len(order) != 2 {
		t.Fatalf("recall([v]) must resolve to the active specialization: %v", order)
	}
	fName := bodies["MAIN_FN"][0]
	body := bodies[fName]
	want := []string{"IF NOT WALL", "STEP", fName, "END"}
	if strings.Join(body, ",") != strings.Join(want, ",") {
		t.Errorf("f body = %v, want %v", body, want)
	}
}

func TestTemplateArityMismatch(t *testing.T) {
	e := compileErr(t, `
fn walk(n) { for [n] { step; } }
fn m { walk(); }
`)
	if e.Kind != StructuralError {
		t.Errorf("expected StructuralError, got %s: %v", e.Kind, e)
	}
}

func TestUnresolvedTarget(t *testing.T) {
	e := compileErr(t, `fn m { [x]; }`)
	if e.Kind != StructuralError {
		t.Errorf("expected StructuralError, got %s: %v", e.Kind, e)
	}
	if !strings.Contains(e.Msg, "[x]") {
		t.Errorf("error should name the target: %v", e)
	}
}

func TestFragmentKindMismatch(t *testing.T) {
	e := compileErr(t, `
fn walk(n) { for [n] { step; } }
fn m { walk(is_wall); }
`)
	if e.Kind != StructuralError {
		t.Errorf("expected StructuralError, got %s: %v", e.Kind, e)
	}
}

func TestRunawayInstantiationIsBounded(t *testing.T) {
	e := compileErr(t, `
fn f(a) { recall({ [a]; step; }); }
fn m { f({ step; }); }
`)
	if e.Kind != StructuralError {
		t.Errorf("expected StructuralError, got %s: %v", e.Kind, e)
	}
	if !strings.Contains(e.Msg, "depth") {
		t.Errorf("error should mention the depth guard: %v", e)
	}
}
