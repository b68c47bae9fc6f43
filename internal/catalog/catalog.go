// Package catalog loads TaskSet definitions from YAML: the samples
// embedded in the binary plus any user-supplied files.
package catalog

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"loom/pkg/taskset"
)

//go:embed samples/*.yaml
var sampleFS embed.FS

// Parse decodes and validates a single definition.
func Parse(data []byte) (*taskset.Definition, error) {
	var def taskset.Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadSample reads a definition by name from the embedded samples.
func LoadSample(name string) (*taskset.Definition, error) {
	data, err := sampleFS.ReadFile("samples/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("sample %q not found (available: %s)",
			name, strings.Join(ListSamples(), ", "))
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("sample %q: %w", name, err)
	}
	return def, nil
}

// ListSamples returns the names of all embedded samples, sorted.
func ListSamples() []string {
	entries, _ := sampleFS.ReadDir("samples")
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names
}

// LoadFile reads a definition from a YAML file on disk.
func LoadFile(path string) (*taskset.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadDir loads every .yaml/.yml definition in a directory, in file name
// order.
func LoadDir(dir string) ([]*taskset.Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var defs []*taskset.Definition
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
