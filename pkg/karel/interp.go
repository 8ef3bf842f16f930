package karel

import (
	"errors"
	"fmt"

	"github.com/Karel-industries/NumKa/pkg/grid"
)

// Default interpreter limits. Compiled programs are loop-heavy but finite
// in well-behaved cases; the budget turns a runaway WHILE into an error
// instead of a hang.
const (
	DefaultMaxSteps = 1_000_000
	DefaultMaxDepth = 4096
)

// errStop unwinds the call tree when a STOP executes. Never escapes Run.
var errStop = errors.New("stop")

// Interp executes a parsed karel-lang program against one world.
type Interp struct {
	World *grid.World

	prog *Program

	// MaxSteps bounds executed primitives and calls; MaxDepth bounds the
	// call stack. Zero means the default.
	MaxSteps int
	MaxDepth int

	// OnStep, when set, observes the world after every primitive op.
	OnStep func(w *grid.World)

	// Steps counts executed primitives and calls across the whole run.
	Steps int
	// Halted is set once a STOP executes.
	Halted bool
}

// New creates an interpreter with default limits.
func New(prog *Program, world *grid.World) *Interp {
	return &Interp{
		prog:     prog,
		World:    world,
		MaxSteps: DefaultMaxSteps,
		MaxDepth: DefaultMaxDepth,
	}
}

// Run executes the named function. An empty entry name runs the program's
// first function. Robot runtime errors (stepping into a wall, picking on an
// empty cell) and an exhausted budget stop the run with an error.
func (in *Interp) Run(entry string) error {
	if entry == "" {
		entry = in.prog.Order[0]
	}
	body, ok := in.prog.Funcs[entry]
	if !ok {
		return fmt.Errorf("no function %q in program", entry)
	}
	if in.MaxSteps == 0 {
		in.MaxSteps = DefaultMaxSteps
	}
	if in.MaxDepth == 0 {
		in.MaxDepth = DefaultMaxDepth
	}

	err := in.exec(body, 1)
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

func (in *Interp) exec(instrs []Instr, depth int) error {
	if depth > in.MaxDepth {
		return fmt.Errorf("call depth exceeds %d", in.MaxDepth)
	}
	for _, instr := range instrs {
		if in.Steps++; in.Steps > in.MaxSteps {
			return fmt.Errorf("step budget of %d exhausted; infinite loop?", in.MaxSteps)
		}

		switch n := instr.(type) {
		case *Prim:
			if err := in.prim(n); err != nil {
				return err
			}

		case *Call:
			if err := in.exec(in.prog.Funcs[n.Name], depth+1); err != nil {
				return err
			}

		case *If:
			hit, err := in.test(n.Not, n.Test)
			if err != nil {
				return err
			}
			branch := n.Then
			if !hit {
				branch = n.Else
			}
			if err := in.exec(branch, depth); err != nil {
				return err
			}

		case *While:
			for {
				hit, err := in.test(n.Not, n.Test)
				if err != nil {
					return err
				}
				if !hit {
					break
				}
				if err := in.exec(n.Body, depth); err != nil {
					return err
				}
				if in.Steps++; in.Steps > in.MaxSteps {
					return fmt.Errorf("step budget of %d exhausted; infinite loop?", in.MaxSteps)
				}
			}

		case *Repeat:
			for i := 0; i < n.N; i++ {
				if err := in.exec(n.Body, depth); err != nil {
					return err
				}
			}

		default:
			return fmt.Errorf("unknown instruction %T", instr)
		}
	}
	return nil
}

func (in *Interp) prim(n *Prim) error {
	var err error
	switch n.Op {
	case "STEP":
		err = in.World.Step()
	case "LEFT":
		in.World.Left()
	case "PLACE":
		err = in.World.Place()
	case "PICK":
		err = in.World.Pick()
	case "STOP":
		in.Halted = true
		return errStop
	default:
		return fmt.Errorf("line %d: unknown op %q", n.Line, n.Op)
	}
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	if in.OnStep != nil {
		in.OnStep(in.World)
	}
	return nil
}

func (in *Interp) test(not bool, name string) (bool, error) {
	hit, err := in.World.Test(name)
	if err != nil {
		return false, err
	}
	return hit != not, nil
}
