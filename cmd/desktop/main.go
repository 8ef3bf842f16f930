// desktop compiles a NumKa source file and animates the robot running the
// result in a window.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"

	"github.com/Karel-industries/NumKa/pkg/compiler"
	"github.com/Karel-industries/NumKa/pkg/config"
	"github.com/Karel-industries/NumKa/pkg/grid"
	"github.com/Karel-industries/NumKa/pkg/karel"
)

const (
	cellSize  = 48
	statusBar = 20
)

var (
	bgColor    = color.RGBA{0x20, 0x20, 0x28, 0xff}
	cellColor  = color.RGBA{0x30, 0x30, 0x3c, 0xff}
	homeColor  = color.RGBA{0x28, 0x40, 0x28, 0xff}
	flagColor  = color.RGBA{0xc8, 0xa0, 0x20, 0xff}
	robotColor = color.RGBA{0x40, 0x90, 0xe0, 0xff}
	textColor  = color.RGBA{0xe0, 0xe0, 0xe0, 0xff}
)

type Game struct {
	world  *grid.World // display snapshot, replaced from the channel
	frames <-chan *grid.World
	errc   <-chan error

	pixel *ebiten.Image // reused 1x1 canvas, scaled per cell

	steps  int
	speed  int // snapshots consumed per frame
	paused bool
	done   bool
	runErr error
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && g.speed < 64 {
		g.speed *= 2
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) && g.speed > 1 {
		g.speed /= 2
	}
	if g.paused || g.done {
		return nil
	}

	for i := 0; i < g.speed; i++ {
		select {
		case w, ok := <-g.frames:
			if !ok {
				g.done = true
				g.runErr = <-g.errc
				return nil
			}
			g.world = w
			g.steps++
		default:
			return nil
		}
	}
	return nil
}

// fillRect draws a solid rectangle by scaling the shared 1x1 pixel.
func (g *Game) fillRect(screen *ebiten.Image, x, y, w, h int, c color.Color) {
	if g.pixel == nil {
		g.pixel = ebiten.NewImage(1, 1)
		g.pixel.Fill(color.White)
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(w), float64(h))
	op.GeoM.Translate(float64(x), float64(y))
	op.ColorScale.ScaleWithColor(c)
	screen.DrawImage(g.pixel, op)
}

var robotGlyphs = map[grid.Dir]string{
	grid.North: "^", grid.East: ">", grid.South: "v", grid.West: "<",
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	w := g.world
	face := basicfont.Face7x13

	for y := 0; y < w.Height; y++ {
		for x := 0; x < w.Width; x++ {
			px, py := x*cellSize, y*cellSize
			c := cellColor
			if x == w.HomeX && y == w.HomeY {
				c = homeColor
			}
			g.fillRect(screen, px+1, py+1, cellSize-2, cellSize-2, c)

			if n := w.Flags[y][x]; n > 0 {
				g.fillRect(screen, px+cellSize/4, py+cellSize/4, cellSize/2, cellSize/2, flagColor)
				text.Draw(screen, fmt.Sprintf("%d", n), face, px+cellSize/2-3, py+cellSize/2+5, bgColor)
			}
		}
	}

	// Robot on top, direction as a glyph.
	px, py := w.X*cellSize, w.Y*cellSize
	g.fillRect(screen, px+6, py+6, cellSize-12, cellSize-12, robotColor)
	text.Draw(screen, robotGlyphs[w.Facing], face, px+cellSize/2-3, py+cellSize/2+5, color.White)

	status := fmt.Sprintf("steps %d  speed %dx", g.steps, g.speed)
	switch {
	case g.runErr != nil:
		status += "  ERROR: " + g.runErr.Error()
	case g.done:
		status += "  done"
	case g.paused:
		status += "  paused"
	}
	text.Draw(screen, status, face, 4, w.Height*cellSize+statusBar-6, textColor)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.world.Width * cellSize, g.world.Height*cellSize + statusBar
}

func main() {
	worldPath := flag.String("world", "", "world file (default: manifest world, or an empty 8x8 world)")
	entry := flag.String("entry", "", "function to run (default: the first one)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: desktop [flags] program.nk")
		flag.Usage()
		os.Exit(2)
	}

	manifest := &config.Manifest{}
	if path, ok := config.Find("."); ok {
		m, err := config.Load(path)
		if err != nil {
			log.Fatalf("Failed to read manifest: %v", err)
		}
		manifest = m
	}

	code, err := loadCode(flag.Args(), manifest)
	if err != nil {
		log.Fatalf("Compilation failed: %v", err)
	}
	prog, err := karel.Parse(code)
	if err != nil {
		log.Fatalf("Bad karel-lang program: %v", err)
	}
	world, err := loadWorld(*worldPath, manifest)
	if err != nil {
		log.Fatalf("Failed to load world: %v", err)
	}

	// The interpreter runs in its own goroutine and hands a snapshot over
	// after every primitive op; the game loop drains them at display speed.
	frames := make(chan *grid.World, 64)
	errc := make(chan error, 1)
	in := karel.New(prog, world.Clone())
	in.OnStep = func(w *grid.World) {
		frames <- w.Clone()
	}
	go func() {
		errc <- in.Run(*entry)
		close(frames)
	}()

	ebiten.SetWindowSize(world.Width*cellSize, world.Height*cellSize+statusBar)
	ebiten.SetWindowTitle("NumKa Desktop")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	game := &Game{world: world, frames: frames, errc: errc, speed: 1}
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}

func loadCode(args []string, manifest *config.Manifest) (string, error) {
	if len(args) == 1 && strings.HasSuffix(args[0], ".kl") {
		data, err := os.ReadFile(args[0])
		return string(data), err
	}
	dirs := append([]string{}, manifest.ImportDirs...)
	dirs = append(dirs, config.EnvImportDirs()...)
	return compiler.Compile(args, compiler.Options{ImportDirs: dirs})
}

func loadWorld(path string, manifest *config.Manifest) (*grid.World, error) {
	if path == "" {
		path = manifest.World
	}
	if path == "" {
		return grid.New(8, 8), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return grid.Load(string(data))
}
