package grid

import (
	"strings"
	"testing"
)

func TestStepAndWalls(t *testing.T) {
	w := New(3, 3) // robot at (0,2) facing north

	if err := w.Step(); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if err := w.Step(); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if w.X != 0 || w.Y != 0 {
		t.Fatalf("robot at (%d,%d), want (0,0)", w.X, w.Y)
	}
	if !w.FacingWall() {
		t.Errorf("robot at the top edge facing north should face a wall")
	}
	if err := w.Step(); err == nil {
		t.Errorf("stepping into the wall should fail")
	}
}

func TestLeftTurns(t *testing.T) {
	w := New(3, 3)
	dirs := []Dir{West, South, East, North}
	for _, want := range dirs {
		w.Left()
		if w.Facing != want {
			t.Fatalf("facing %s, want %s", w.Facing, want)
		}
	}
}

func TestPlacePickFlags(t *testing.T) {
	w := New(2, 2)
	if w.OnFlag() {
		t.Fatalf("new world should have no flags")
	}
	if err := w.Pick(); err == nil {
		t.Errorf("picking on an empty cell should fail")
	}
	for i := 0; i < MaxFlags; i++ {
		if err := w.Place(); err != nil {
			t.Fatalf("place %d failed: %v", i+1, err)
		}
	}
	if err := w.Place(); err == nil {
		t.Errorf("placing flag %d should fail", MaxFlags+1)
	}
	if !w.OnFlag() {
		t.Errorf("cell should hold flags")
	}
}

func TestConditions(t *testing.T) {
	w := New(3, 3)
	tests := []struct {
		name string
		want bool
	}{
		{"WALL", false},
		{"FLAG", false},
		{"NORTH", true},
		{"SOUTH", false},
		{"EAST", false},
		{"WEST", false},
		{"HOME", true},
	}
	for _, tt := range tests {
		got, err := w.Test(tt.name)
		if err != nil {
			t.Fatalf("Test(%s): %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("Test(%s) = %t, want %t", tt.name, got, tt.want)
		}
	}
	if _, err := w.Test("BLUE"); err == nil {
		t.Errorf("unknown condition should fail")
	}
}

func TestLoad(t *testing.T) {
	w, err := Load(`
# a small test world
4 3 1 2 E
0 0 2
3 2 8
`)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if w.Width != 4 || w.Height != 3 {
		t.Errorf("size = %dx%d", w.Width, w.Height)
	}
	if w.X != 1 || w.Y != 2 || w.Facing != East {
		t.Errorf("robot = (%d,%d) facing %s", w.X, w.Y, w.Facing)
	}
	if w.HomeX != 1 || w.HomeY != 2 {
		t.Errorf("home = (%d,%d)", w.HomeX, w.HomeY)
	}
	if w.Flags[0][0] != 2 || w.Flags[2][3] != 8 {
		t.Errorf("flags = %v", w.Flags)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"Empty", ""},
		{"BadHeader", "4 3 1 2"},
		{"BadDirection", "4 3 1 2 Q"},
		{"RobotOutside", "4 3 9 9 N"},
		{"FlagOutside", "4 3 0 0 N\n9 9 1"},
		{"TooManyFlags", "4 3 0 0 N\n1 1 9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.src); err == nil {
				t.Errorf("expected an error for %q", tt.src)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	w := New(2, 2)
	c := w.Clone()
	if err := w.Place(); err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if c.Flags[w.Y][w.X] != 0 {
		t.Errorf("clone shares flag storage with the original")
	}
}

func TestString(t *testing.T) {
	w, err := Load("3 2 1 1 E\n2 0 4")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := strings.Join([]string{
		"..4",
		".>.",
		"",
	}, "\n")
	if got := w.String(); got != want {
		t.Errorf("render mismatch\n got:\n%s\nwant:\n%s", got, want)
	}
}
