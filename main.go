package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Karel-industries/NumKa/pkg/compiler"
	"github.com/Karel-industries/NumKa/pkg/config"
)

// dirList collects repeated -I flags.
type dirList []string

func (d *dirList) String() string { return strings.Join(*d, string(filepath.ListSeparator)) }

func (d *dirList) Set(v string) error {
	*d = append(*d, v)
	return nil
}

func main() {
	var importDirs dirList
	outPath := flag.String("o", "", "output karel-lang file path (default: first input with .kl extension)")
	warnLevel := flag.String("W", "", "warning level: none, all or err (default: all)")
	flag.Var(&importDirs, "I", "extra import search directory (repeatable)")
	flag.Parse()

	sources := flag.Args()
	if len(sources) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to do: provide one or more source files")
		flag.Usage()
		os.Exit(2)
	}

	// Flags override the manifest, the manifest overrides built-in defaults.
	manifest := &config.Manifest{}
	if path, ok := config.Find("."); ok {
		m, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read manifest: %v\n", err)
			os.Exit(1)
		}
		manifest = m
	}

	warn := manifest.Warnings
	if *warnLevel != "" {
		warn = *warnLevel
	}
	mode, err := compiler.ParseWarnMode(warn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	output := manifest.Output
	if *outPath != "" {
		output = *outPath
	}
	if output == "" {
		output = defaultOutputPath(sources[0])
	}

	dirs := append([]string{}, manifest.ImportDirs...)
	dirs = append(dirs, config.EnvImportDirs()...)
	dirs = append(dirs, importDirs...)

	rep := compiler.NewReporter(os.Stderr)
	rep.Mode = mode

	code, err := compiler.Compile(sources, compiler.Options{
		ImportDirs: dirs,
		Reporter:   rep,
	})
	if err != nil {
		var ce *compiler.Error
		if errors.As(err, &ce) {
			rep.Errorf(ce)
		} else {
			fmt.Fprintf(os.Stderr, "compilation failed: %v\n", err)
		}
		os.Exit(1)
	}

	if err := os.WriteFile(output, []byte(code), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write output file %q: %v\n", output, err)
		os.Exit(1)
	}
	fmt.Printf("compiled %d bytes -> %s\n", len(code), output)
}

func defaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".kl"
	}
	return strings.TrimSuffix(inPath, ext) + ".kl"
}
