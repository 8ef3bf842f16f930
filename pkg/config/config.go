// Package config loads the optional numka.yaml project manifest and the
// environment defaults the tools share.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// ManifestName is the file the tools look for in the working directory.
const ManifestName = "numka.yaml"

// Manifest is a project manifest. Every field is optional; command-line
// flags override whatever it sets.
type Manifest struct {
	// Output is the karel-lang file the compiler writes.
	Output string `yaml:"output"`
	// ImportDirs are extra directories searched by import statements.
	ImportDirs []string `yaml:"import_dirs"`
	// Warnings is the warning mode: none, all or err.
	Warnings string `yaml:"warnings"`
	// World is the default world file for the runner tools.
	World string `yaml:"world"`
}

// Load reads and decodes one manifest file. Unknown keys are errors, so a
// typo in the manifest does not silently do nothing.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	// Relative manifest paths resolve against the manifest's directory.
	dir := filepath.Dir(path)
	m.Output = rebase(dir, m.Output)
	m.World = rebase(dir, m.World)
	for i, d := range m.ImportDirs {
		m.ImportDirs[i] = rebase(dir, d)
	}
	return m, nil
}

func decode(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	switch m.Warnings {
	case "", "none", "all", "err":
	default:
		return nil, fmt.Errorf("warnings must be none, all or err, not %q", m.Warnings)
	}
	return &m, nil
}

func rebase(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Find looks for the manifest in dir. It returns ok=false when the project
// simply has none.
func Find(dir string) (path string, ok bool) {
	p := filepath.Join(dir, ManifestName)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// EnvImportDirs returns the import directories from NUMKA_PATH, an
// OS-specific path list like GOPATH.
func EnvImportDirs() []string {
	v := env.Str("NUMKA_PATH")
	if v == "" {
		return nil
	}
	return filepath.SplitList(v)
}
