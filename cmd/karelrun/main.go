// karelrun compiles a NumKa source file (or loads already compiled
// karel-lang) and runs it against a world, printing the final world state.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Karel-industries/NumKa/pkg/compiler"
	"github.com/Karel-industries/NumKa/pkg/config"
	"github.com/Karel-industries/NumKa/pkg/grid"
	"github.com/Karel-industries/NumKa/pkg/karel"
)

func main() {
	worldPath := flag.String("world", "", "world file (default: manifest world, or an empty 8x8 world)")
	entry := flag.String("entry", "", "function to run (default: the first one)")
	maxSteps := flag.Int("max-steps", karel.DefaultMaxSteps, "primitive op budget")
	showCode := flag.Bool("show-code", false, "print the compiled karel-lang before running")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: karelrun [flags] program.nk")
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
	if *showCode {
		fmt.Print(code, "\n")
	}

	prog, err := karel.Parse(code)
	if err != nil {
		log.Fatalf("Bad karel-lang program: %v", err)
	}

	world, err := loadWorld(*worldPath, manifest)
	if err != nil {
		log.Fatalf("Failed to load world: %v", err)
	}

	in := karel.New(prog, world)
	in.MaxSteps = *maxSteps
	runErr := in.Run(*entry)

	fmt.Print(world)
	fmt.Printf("run complete: %d steps, halted=%t\n", in.Steps, in.Halted)
	if runErr != nil {
		log.Fatalf("Run failed: %v", runErr)
	}
}

// loadCode compiles NumKa sources, or reads the file directly when it is
// already karel-lang (.kl).
func loadCode(args []string, manifest *config.Manifest) (string, error) {
	if len(args) == 1 && strings.HasSuffix(args[0], ".kl") {
		data, err := os.ReadFile(args[0])
		return string(data), err
	}

	rep := compiler.NewReporter(os.Stderr)
	dirs := append([]string{}, manifest.ImportDirs...)
	dirs = append(dirs, config.EnvImportDirs()...)
	code, err := compiler.Compile(args, compiler.Options{ImportDirs: dirs, Reporter: rep})
	if err != nil {
		var ce *compiler.Error
		if errors.As(err, &ce) {
			rep.Errorf(ce)
		}
		return "", err
	}
	return code, nil
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
