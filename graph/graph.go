// Package graph assembles build targets into a dependency graph, enforcing
// naming and uniqueness invariants, and produces a deterministic topological
// order for the backend to emit.
package graph

import (
	"fmt"
	"strings"

	"github.com/mortar-build/mortar/deps"
	"github.com/mortar-build/mortar/util"
)

// Kind enumerates the target flavors.
type Kind int

const (
	Executable Kind = iota
	StaticLibrary
	SharedLibrary
	CustomTarget
	RunTarget
)

var kindNames = map[Kind]string{
	Executable:    "executable",
	StaticLibrary: "static_library",
	SharedLibrary: "shared_library",
	CustomTarget:  "custom_target",
	RunTarget:     "run_target",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Target is a single node of the build graph. Targets are mutable while the
// graph is being built and must not be touched after Finalize.
type Target struct {
	Name string
	// Subdir is the directory of the defining build file, relative to the
	// source root. Empty for the top-level file.
	Subdir string
	Kind   Kind

	Sources     []string
	IncludeDirs []string
	CompileArgs []string
	LinkArgs    []string

	// LinkWith holds target keys this target links against.
	LinkWith []string
	// Deps holds resolved external dependencies.
	Deps []*deps.Dependency

	// Custom and run targets.
	Command []string
	Outputs []string
	// ExtraDepends holds target keys that must be built first without being
	// linked in, e.g. generated-source producers.
	ExtraDepends []string
	AlwaysRun    bool

	Install    bool
	InstallDir string
}

// Key returns the unique graph key of the target.
func (t *Target) Key() string {
	if t.Subdir == "" {
		return t.Name
	}
	return t.Subdir + ":" + t.Name
}

// Linkable reports whether other targets may list this one in link_with.
func (t *Target) Linkable() bool {
	return t.Kind == StaticLibrary || t.Kind == SharedLibrary
}

// Target names that would collide with generated build rules.
var reservedNames = map[string]bool{
	"all":         true,
	"clean":       true,
	"install":     true,
	"test":        true,
	"benchmark":   true,
	"phony":       true,
	"build.ninja": true,
}

// Builder accumulates targets during interpretation.
type Builder struct {
	targets   util.OrderedMap[string, *Target]
	order     []string
	finalized bool
}

// NewBuilder creates an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{targets: util.NewOrderedMap[string, *Target]()}
}

// AddTarget registers a target, enforcing the naming invariants.
func (b *Builder) AddTarget(t *Target) error {
	if b.finalized {
		return fmt.Errorf("internal error: graph is already finalized")
	}
	if t.Name == "" {
		return fmt.Errorf("target name must not be empty")
	}
	if reservedNames[t.Name] {
		return fmt.Errorf("target name '%s' is reserved", t.Name)
	}
	if strings.ContainsAny(t.Name, "/\\:") {
		return fmt.Errorf("target name '%s' must not contain path separators or ':'", t.Name)
	}
	if _, ok := b.targets.Lookup(t.Key()); ok {
		return fmt.Errorf("target '%s' is already defined", t.Key())
	}
	b.targets.Insert(t.Key(), t)
	b.order = append(b.order, t.Key())
	return nil
}

// Lookup finds a target by key, or by bare name when it is unambiguous.
func (b *Builder) Lookup(ref string) (*Target, bool) {
	if t, ok := b.targets.Lookup(ref); ok {
		return t, true
	}
	var match *Target
	for _, t := range b.targets.Values() {
		if t.Name == ref {
			if match != nil {
				// Ambiguous bare name, caller must use the full key.
				return nil, false
			}
			match = t
		}
	}
	return match, match != nil
}

// Graph is the finalized, immutable target graph.
type Graph struct {
	// Targets in deterministic topological order: dependencies before
	// dependents, ties broken by definition order.
	Targets []*Target

	byKey map[string]*Target
}

// Lookup finds a target by its key.
func (g *Graph) Lookup(key string) (*Target, bool) {
	t, ok := g.byKey[key]
	return t, ok
}

// Finalize validates all edges, rejects cycles and fixes the emission order.
// The builder must not be used afterwards.
func (b *Builder) Finalize() (*Graph, error) {
	b.finalized = true

	// Resolve bare-name references into full keys so the backend only ever
	// sees keys.
	for _, t := range b.targets.Values() {
		for i, ref := range t.LinkWith {
			dep, ok := b.Lookup(ref)
			if !ok {
				return nil, fmt.Errorf("target '%s' links against unknown target '%s'", t.Key(), ref)
			}
			if !dep.Linkable() {
				return nil, fmt.Errorf("target '%s' cannot link against '%s' of kind %s", t.Key(), dep.Key(), dep.Kind)
			}
			t.LinkWith[i] = dep.Key()
		}
		for i, ref := range t.ExtraDepends {
			dep, ok := b.Lookup(ref)
			if !ok {
				return nil, fmt.Errorf("target '%s' depends on unknown target '%s'", t.Key(), ref)
			}
			t.ExtraDepends[i] = dep.Key()
		}
	}

	graph := &Graph{byKey: map[string]*Target{}}
	for _, t := range b.targets.Values() {
		graph.byKey[t.Key()] = t
	}

	// Depth-first topological sort over definition order. The visiting set
	// doubles as the cycle reporter.
	const (
		unvisited = iota
		visiting
		done
	)
	state := map[string]int{}
	var stack []string
	var visit func(key string) error
	visit = func(key string) error {
		switch state[key] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, k := range stack {
				if k == key {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, stack[start:]...), key)
			return fmt.Errorf("dependency cycle detected: %s", strings.Join(cycle, " -> "))
		}
		state[key] = visiting
		stack = append(stack, key)

		t := graph.byKey[key]
		for _, edge := range append(append([]string{}, t.LinkWith...), t.ExtraDepends...) {
			if err := visit(edge); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		state[key] = done
		graph.Targets = append(graph.Targets, t)
		return nil
	}

	for _, key := range b.order {
		if err := visit(key); err != nil {
			return nil, err
		}
	}
	return graph, nil
}
