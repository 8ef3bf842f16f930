package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Karel-industries/NumKa/pkg/compiler"
	"github.com/Karel-industries/NumKa/pkg/grid"
	"github.com/Karel-industries/NumKa/pkg/karel"
)

// runSource compiles NumKa source, parses the emitted karel-lang and runs
// the named function on the given world.
func runSource(t *testing.T, src, entry string, w *grid.World) *karel.Interp {
	t.Helper()
	rep := compiler.NewReporter(io.Discard)
	code, err := compiler.CompileSource(src, "e2e.nk", rep)
	if err != nil {
		t.Fatalf("compilation failed: %v", err)
	}
	prog, err := karel.Parse(code)
	if err != nil {
		t.Fatalf("emitted program does not parse: %v\n%s", err, code)
	}
	in := karel.New(prog, w)
	if err := in.Run(entry); err != nil {
		t.Fatalf("run failed: %v\n%s", err, code)
	}
	return in
}

func TestE2EFlagLine(t *testing.T) {
	w := grid.New(1, 6) // robot at (0,5) facing north
	runSource(t, `
fn drop_line(n) {
	for [n] {
		place;
		step;
	}
	place;
}

fn main_fn { drop_line(5); }
`, "MAIN_FN", w)

	for y := 0; y < 6; y++ {
		if w.Flags[y][0] != 1 {
			t.Errorf("cell (0,%d) holds %d flags, want 1", y, w.Flags[y][0])
		}
	}
}

func TestE2ERecursiveWalkHome(t *testing.T) {
	w, err := grid.Load("1 8 0 7 N")
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	w.HomeX, w.HomeY = 0, 0 // home at the far end
	runSource(t, `
fn go_home {
	if not_home {
		step;
		recall;
	}
}
`, "GO_HOME", w)
	if !w.AtHome() {
		t.Errorf("robot at (%d,%d), want home (0,0)", w.X, w.Y)
	}
}

func TestE2ETemplatedZigZag(t *testing.T) {
	w := grid.New(4, 4) // robot at (0,3) facing north
	runSource(t, `
fn turn_right { left; left; left; }

fn zig(n) {
	for [n] { step; }
	turn_right;
}

fn main_fn {
	zig(2);
	zig(2);
}
`, "MAIN_FN", w)
	// Two legs of 2: up to (0,1), right to (2,1), facing south.
	if w.X != 2 || w.Y != 1 || w.Facing != grid.South {
		t.Errorf("robot at (%d,%d) facing %s", w.X, w.Y, w.Facing)
	}
}

func TestE2ESliceSaveResume(t *testing.T) {
	w := grid.New(1, 4) // robot at (0,3)
	in := runSource(t, `
slice fn bracket {
	place;
	commit;
	left;
	stop;
}

fn main_fn {
	push b = bracket();
	step;
	pop b;
}
`, "MAIN_FN", w)

	// The slice pre-part runs before the pusher's tail, the post-part after
	// the pop: place, then step, then left and stop.
	if w.Flags[3][0] != 1 {
		t.Errorf("pre-commit part should place a flag at the start cell")
	}
	if w.Y != 2 {
		t.Errorf("robot y = %d, want 2", w.Y)
	}
	if w.Facing != grid.West {
		t.Errorf("post-commit part should turn the robot, facing %s", w.Facing)
	}
	if !in.Halted {
		t.Errorf("post-commit stop should halt the program")
	}
}

func TestE2ELambdaRepeat(t *testing.T) {
	w := grid.New(1, 8)
	runSource(t, `
fn ladder(n) {
	fn { for [n] { step; place; } }();
}

fn main_fn { ladder(3); }
`, "MAIN_FN", w)
	for y := 4; y <= 6; y++ {
		if w.Flags[y][0] != 1 {
			t.Errorf("cell (0,%d) holds %d flags, want 1", y, w.Flags[y][0])
		}
	}
}

func TestE2EImports(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib.nk")
	mainSrc := filepath.Join(dir, "main.nk")

	if err := os.WriteFile(lib, []byte(`
fn step_twice { step; step; }
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(mainSrc, []byte(`
import "lib.nk";

fn main_fn { step_twice(); place; }
`), 0o644); err != nil {
		t.Fatal(err)
	}

	rep := compiler.NewReporter(io.Discard)
	code, err := compiler.Compile([]string{mainSrc}, compiler.Options{Reporter: rep})
	if err != nil {
		t.Fatalf("compilation failed: %v", err)
	}

	prog, err := karel.Parse(code)
	if err != nil {
		t.Fatalf("emitted program does not parse: %v\n%s", err, code)
	}
	w := grid.New(1, 5)
	in := karel.New(prog, w)
	if err := in.Run("MAIN_FN"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if w.Y != 2 || w.Flags[2][0] != 1 {
		t.Errorf("robot at (0,%d), flags %v", w.Y, w.Flags)
	}
}
