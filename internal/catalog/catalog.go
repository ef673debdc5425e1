// Package catalog defines the fixed list of benchmark workloads that a batch runs.
package catalog

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// DefaultSuffix is the file name suffix of NAS Parallel Benchmark executables.
const DefaultSuffix = ".x"

// Workload is one benchmark executable plus its size class.
type Workload struct {
	Name       string   `yaml:"name"`
	Executable string   `yaml:"executable"`
	Class      string   `yaml:"class"`
	Args       []string `yaml:"args"`
}

// ExecutableName returns the base name of the workload executable, e.g., "bt.C.x".
// Output files are named after it.
func (w Workload) ExecutableName() string {
	return filepath.Base(w.Executable)
}

// Catalog is an ordered, immutable list of workloads with unique names.
type Catalog struct {
	workloads []Workload
}

// New validates the workloads and returns a catalog holding a copy of them.
func New(workloads ...Workload) (*Catalog, error) {
	names := mapset.NewThreadUnsafeSet[string]()
	exes := mapset.NewThreadUnsafeSet[string]()
	c := &Catalog{}
	for i, w := range workloads {
		if w.Name == "" {
			return nil, fmt.Errorf("workload %d has no name", i)
		}
		if w.Executable == "" {
			return nil, fmt.Errorf("workload %s has no executable", w.Name)
		}
		if !names.Add(w.Name) {
			return nil, fmt.Errorf("duplicate workload name: %s", w.Name)
		}
		// output files are named by executable, two workloads sharing one would collide
		if !exes.Add(w.ExecutableName()) {
			return nil, fmt.Errorf("workload %s: executable name %s already used by another workload", w.Name, w.ExecutableName())
		}
		w.Args = append([]string(nil), w.Args...)
		c.workloads = append(c.workloads, w)
	}
	return c, nil
}

// List returns the workloads in catalog order.
func (c *Catalog) List() []Workload {
	out := make([]Workload, len(c.workloads))
	for i, w := range c.workloads {
		w.Args = append([]string(nil), w.Args...)
		out[i] = w
	}
	return out
}

// Len returns the number of workloads in the catalog.
func (c *Catalog) Len() int {
	return len(c.workloads)
}

// Lookup finds a workload by name.
func (c *Catalog) Lookup(name string) (Workload, bool) {
	for _, w := range c.workloads {
		if w.Name == name {
			return w, true
		}
	}
	return Workload{}, false
}

// FromExecutable derives a workload from an NPB style executable path,
// e.g., "bin/bt.C.x" becomes name "bt.C" and class "C".
func FromExecutable(path string, suffix string) Workload {
	base := strings.TrimSuffix(filepath.Base(path), suffix)
	w := Workload{Name: base, Executable: path}
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		w.Class = base[idx+1:]
	}
	return w
}

// Discover builds a catalog from the executables in dir whose names end in suffix.
// Workloads are ordered by file name.
func Discover(dir string, suffix string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read workload directory %s", dir)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	var workloads []Workload
	for _, name := range names {
		workloads = append(workloads, FromExecutable(filepath.Join(dir, name), suffix))
	}
	slog.Debug("discovered workloads", slog.String("dir", dir), slog.Int("count", len(workloads)))
	return New(workloads...)
}

type catalogFile struct {
	Workloads []Workload `yaml:"workloads"`
}

// Load reads a YAML catalog file. Relative executable paths are resolved
// against the directory that holds the file.
//
//	workloads:
//	  - name: bt.C
//	    executable: bin/bt.C.x
//	    class: C
//	    args: ["16"]
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "failed to read catalog file")
	}
	return parse(data, filepath.Dir(path))
}

func parse(data []byte, baseDir string) (*Catalog, error) {
	var cf catalogFile
	if err := yaml.UnmarshalStrict(data, &cf); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog file")
	}
	for i := range cf.Workloads {
		w := &cf.Workloads[i]
		if w.Executable != "" && !filepath.IsAbs(w.Executable) {
			w.Executable = filepath.Join(baseDir, w.Executable)
		}
		if w.Name == "" && w.Executable != "" {
			derived := FromExecutable(w.Executable, DefaultSuffix)
			w.Name = derived.Name
			if w.Class == "" {
				w.Class = derived.Class
			}
		}
	}
	return New(cf.Workloads...)
}
