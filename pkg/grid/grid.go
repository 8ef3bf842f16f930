// Package grid models the rectangular flag grid a compiled karel-lang
// program runs on: cell flags, the robot's pose and its home square.
package grid

import (
	"fmt"
	"strings"
)

// MaxFlags is the most flags one cell can hold.
const MaxFlags = 8

// Dir is a compass direction.
type Dir int

const (
	North Dir = iota
	East
	South
	West
)

var dirNames = [...]string{North: "N", East: "E", South: "S", West: "W"}

func (d Dir) String() string {
	if int(d) >= 0 && int(d) < len(dirNames) {
		return dirNames[d]
	}
	return fmt.Sprintf("Dir(%d)", int(d))
}

// Left returns the direction after one counterclockwise turn.
func (d Dir) Left() Dir {
	return (d + 3) % 4
}

// ParseDir maps a world-file direction letter to a Dir.
func ParseDir(s string) (Dir, error) {
	switch strings.ToUpper(s) {
	case "N":
		return North, nil
	case "E":
		return East, nil
	case "S":
		return South, nil
	case "W":
		return West, nil
	}
	return North, fmt.Errorf("unknown direction %q (want N, E, S or W)", s)
}

// World is one robot world. (0,0) is the top-left cell; North decreases Y.
type World struct {
	Width  int
	Height int
	Flags  [][]int // [y][x], 0..MaxFlags

	X, Y   int
	Facing Dir

	HomeX, HomeY int
}

// New creates an empty w×h world with the robot at the home square (0, h-1),
// the bottom-left corner, facing north.
func New(w, h int) *World {
	flags := make([][]int, h)
	for y := range flags {
		flags[y] = make([]int, w)
	}
	return &World{
		Width: w, Height: h, Flags: flags,
		X: 0, Y: h - 1, Facing: North,
		HomeX: 0, HomeY: h - 1,
	}
}

// Clone returns a deep copy, so snapshots can outlive the running world.
func (w *World) Clone() *World {
	c := *w
	c.Flags = make([][]int, w.Height)
	for y := range w.Flags {
		c.Flags[y] = append([]int(nil), w.Flags[y]...)
	}
	return &c
}

// delta returns the cell offset of one step in direction d.
func delta(d Dir) (dx, dy int) {
	switch d {
	case North:
		return 0, -1
	case East:
		return 1, 0
	case South:
		return 0, 1
	default:
		return -1, 0
	}
}

// FacingWall reports whether the robot faces the world edge.
func (w *World) FacingWall() bool {
	dx, dy := delta(w.Facing)
	nx, ny := w.X+dx, w.Y+dy
	return nx < 0 || nx >= w.Width || ny < 0 || ny >= w.Height
}

// OnFlag reports whether the robot's cell holds at least one flag.
func (w *World) OnFlag() bool { return w.Flags[w.Y][w.X] > 0 }

// AtHome reports whether the robot stands on its home square.
func (w *World) AtHome() bool { return w.X == w.HomeX && w.Y == w.HomeY }

// Step moves the robot one cell forward. Walking into the wall is a runtime
// error, exactly as the target robot would crash.
func (w *World) Step() error {
	if w.FacingWall() {
		return fmt.Errorf("step into the wall at (%d,%d) facing %s", w.X, w.Y, w.Facing)
	}
	dx, dy := delta(w.Facing)
	w.X += dx
	w.Y += dy
	return nil
}

// Left turns the robot 90 degrees counterclockwise.
func (w *World) Left() {
	w.Facing = w.Facing.Left()
}

// Place puts one flag on the robot's cell.
func (w *World) Place() error {
	if w.Flags[w.Y][w.X] >= MaxFlags {
		return fmt.Errorf("cell (%d,%d) already holds %d flags", w.X, w.Y, MaxFlags)
	}
	w.Flags[w.Y][w.X]++
	return nil
}

// Pick removes one flag from the robot's cell.
func (w *World) Pick() error {
	if w.Flags[w.Y][w.X] == 0 {
		return fmt.Errorf("no flag to pick at (%d,%d)", w.X, w.Y)
	}
	w.Flags[w.Y][w.X]--
	return nil
}

// Test evaluates a target condition predicate by name.
func (w *World) Test(name string) (bool, error) {
	switch name {
	case "WALL":
		return w.FacingWall(), nil
	case "FLAG":
		return w.OnFlag(), nil
	case "NORTH":
		return w.Facing == North, nil
	case "SOUTH":
		return w.Facing == South, nil
	case "EAST":
		return w.Facing == East, nil
	case "WEST":
		return w.Facing == West, nil
	case "HOME":
		return w.AtHome(), nil
	}
	return false, fmt.Errorf("unknown condition %q", name)
}

// Load parses a world file: a "W H X Y DIR" header, then one "x y flags"
// line per non-empty cell. '#' starts a comment.
func Load(src string) (*World, error) {
	lines := strings.Split(src, "\n")
	var w *World
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if j := strings.IndexByte(line, '#'); j >= 0 {
			line = strings.TrimSpace(line[:j])
		}
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		if w == nil {
			if len(fields) != 5 {
				return nil, fmt.Errorf("line %d: world header wants \"W H X Y DIR\"", i+1)
			}
			var width, height, x, y int
			if _, err := fmt.Sscanf(strings.Join(fields[:4], " "), "%d %d %d %d", &width, &height, &x, &y); err != nil {
				return nil, fmt.Errorf("line %d: bad world header: %v", i+1, err)
			}
			dir, err := ParseDir(fields[4])
			if err != nil {
				return nil, fmt.Errorf("line %d: %v", i+1, err)
			}
			if width < 1 || height < 1 || x < 0 || x >= width || y < 0 || y >= height {
				return nil, fmt.Errorf("line %d: robot (%d,%d) outside %dx%d world", i+1, x, y, width, height)
			}
			w = New(width, height)
			w.X, w.Y, w.Facing = x, y, dir
			w.HomeX, w.HomeY = x, y
			continue
		}

		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: flag line wants \"x y flags\"", i+1)
		}
		var x, y, n int
		if _, err := fmt.Sscanf(line, "%d %d %d", &x, &y, &n); err != nil {
			return nil, fmt.Errorf("line %d: bad flag line: %v", i+1, err)
		}
		if x < 0 || x >= w.Width || y < 0 || y >= w.Height || n < 0 || n > MaxFlags {
			return nil, fmt.Errorf("line %d: flag cell (%d,%d)=%d out of range", i+1, x, y, n)
		}
		w.Flags[y][x] = n
	}
	if w == nil {
		return nil, fmt.Errorf("empty world file")
	}
	return w, nil
}

var robotGlyphs = [...]byte{North: '^', East: '>', South: 'v', West: '<'}

// String renders the world as ASCII: the robot as ^>v<, flag counts as
// digits, the home square as H and empty cells as dots.
func (w *World) String() string {
	var b strings.Builder
	for y := 0; y < w.Height; y++ {
		for x := 0; x < w.Width; x++ {
			switch {
			case x == w.X && y == w.Y:
				b.WriteByte(robotGlyphs[w.Facing])
			case w.Flags[y][x] > 0:
				b.WriteByte(byte('0' + w.Flags[y][x]))
			case x == w.HomeX && y == w.HomeY:
				b.WriteByte('H')
			default:
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
