// Package deps implements external dependency discovery. Dependencies are
// located via pkg-config, config-tool style probes or vendored wrap
// subprojects, and the results are cached across reconfigurations.
package deps

import (
	"fmt"

	"github.com/mortar-build/mortar/log"
	"github.com/mortar-build/mortar/machine"
	"github.com/mortar-build/mortar/util"
	"github.com/mortar-build/mortar/wrap"
)

// Dependency is the result of resolving an external dependency.
type Dependency struct {
	Name        string
	Version     string
	CompileArgs []string
	LinkArgs    []string
	// Method records which backend found the dependency: pkg-config,
	// config-tool, subproject or declared.
	Method string
	// LinkTargets holds graph keys of build targets that consumers must link
	// against, carried by declared dependencies.
	LinkTargets []string

	found bool
}

// Found reports whether the dependency was located.
func (d *Dependency) Found() bool {
	return d != nil && d.found
}

// NotFound returns a placeholder result for an optional dependency that could
// not be located.
func NotFound(name string) *Dependency {
	return &Dependency{Name: name}
}

// Declared creates a found dependency from explicit flags, used for
// declare_dependency blocks in subprojects.
func Declared(name, version string, compileArgs, linkArgs []string) *Dependency {
	return &Dependency{
		Name:        name,
		Version:     version,
		CompileArgs: compileArgs,
		LinkArgs:    linkArgs,
		Method:      "declared",
		found:       true,
	}
}

// Query describes a single dependency request.
type Query struct {
	Name string
	// Version is an optional constraint such as ">=1.2".
	Version  string
	Required bool
	// Fallback names the wrap subproject to build when discovery fails.
	// When empty, a wrap providing Name is searched for.
	Fallback string
}

// Resolver resolves dependency queries. It is safe to reuse across the whole
// configure run; results are cached by name.
type Resolver struct {
	Machine *machine.File
	Wraps   *wrap.Resolver

	// ConfigureSubproject is called to configure a wrap subproject the first
	// time one is needed as a fallback. Configuring it is expected to register
	// the dependencies the subproject declares via RegisterOverride.
	ConfigureSubproject func(wrapName string) error

	cache     map[string]*Dependency
	overrides map[string]*Dependency
}

// NewResolver creates an empty resolver.
func NewResolver(m *machine.File, wraps *wrap.Resolver) *Resolver {
	return &Resolver{
		Machine:   m,
		Wraps:     wraps,
		cache:     map[string]*Dependency{},
		overrides: map[string]*Dependency{},
	}
}

// RegisterOverride makes a dependency resolvable by name without discovery.
// Subprojects use this to offer the dependencies they declare.
func (r *Resolver) RegisterOverride(name string, dep *Dependency) error {
	if _, ok := r.overrides[name]; ok {
		return fmt.Errorf("dependency '%s' is already declared", name)
	}
	r.overrides[name] = dep
	return nil
}

// Resolve runs the discovery backends in order and returns the result. A
// required dependency that cannot be found anywhere is an error; an optional
// one resolves to a not-found placeholder.
func (r *Resolver) Resolve(q Query) (*Dependency, error) {
	if dep, ok := r.overrides[q.Name]; ok {
		return r.checkVersion(dep, q)
	}
	if dep, ok := r.cache[q.Name]; ok {
		log.Debug("Dependency '%s' served from cache.\n", q.Name)
		return r.checkVersion(dep, q)
	}

	dep, err := r.discover(q)
	if err != nil {
		return nil, err
	}
	if dep.Found() {
		r.cache[q.Name] = dep
	}
	return r.checkVersion(dep, q)
}

func (r *Resolver) discover(q Query) (*Dependency, error) {
	if dep := r.pkgConfig(q.Name); dep.Found() {
		log.Log("Dependency '%s' found: \033[32mYES\033[0m (pkg-config, %s)\n", q.Name, dep.Version)
		return dep, nil
	}
	if dep := r.configTool(q.Name); dep.Found() {
		log.Log("Dependency '%s' found: \033[32mYES\033[0m (config-tool)\n", q.Name)
		return dep, nil
	}

	if dep, err := r.wrapFallback(q); err != nil {
		return nil, err
	} else if dep.Found() {
		log.Log("Dependency '%s' found: \033[32mYES\033[0m (subproject)\n", q.Name)
		return dep, nil
	}

	log.Log("Dependency '%s' found: \033[31mNO\033[0m\n", q.Name)
	if q.Required {
		return nil, fmt.Errorf("required dependency '%s' not found", q.Name)
	}
	return NotFound(q.Name), nil
}

func (r *Resolver) wrapFallback(q Query) (*Dependency, error) {
	if r.ConfigureSubproject == nil {
		return NotFound(q.Name), nil
	}

	wrapName := q.Fallback
	if wrapName == "" {
		if r.Wraps == nil {
			return NotFound(q.Name), nil
		}
		def, ok := r.Wraps.FindProvider(q.Name)
		if !ok {
			return NotFound(q.Name), nil
		}
		wrapName = def.Name
	}

	log.Log("Looking for a fallback subproject for the dependency '%s'.\n", q.Name)
	if err := r.ConfigureSubproject(wrapName); err != nil {
		return nil, fmt.Errorf("fallback subproject '%s' failed: %s", wrapName, err)
	}

	if dep, ok := r.overrides[q.Name]; ok {
		return dep, nil
	}
	return NotFound(q.Name), nil
}

func (r *Resolver) checkVersion(dep *Dependency, q Query) (*Dependency, error) {
	if !dep.Found() || q.Version == "" {
		return dep, nil
	}
	if dep.Version != "" && !util.VersionSatisfies(dep.Version, q.Version) {
		if q.Required {
			return nil, fmt.Errorf("dependency '%s' version %s does not satisfy '%s'",
				q.Name, dep.Version, q.Version)
		}
		log.Warning("Dependency '%s' version %s does not satisfy '%s'.\n", q.Name, dep.Version, q.Version)
		return NotFound(q.Name), nil
	}
	return dep, nil
}

// SavedDependency is the serialized form of a cache entry.
type SavedDependency struct {
	Name        string   `yaml:"name" json:"name"`
	Version     string   `yaml:"version" json:"version"`
	CompileArgs []string `yaml:"compile_args,omitempty" json:"compile_args,omitempty"`
	LinkArgs    []string `yaml:"link_args,omitempty" json:"link_args,omitempty"`
	Method      string   `yaml:"method" json:"method"`
}

// Save serializes the discovery cache, ordered by name.
func (r *Resolver) Save() []SavedDependency {
	saved := []SavedDependency{}
	for _, name := range util.OrderedKeys(r.cache) {
		dep := r.cache[name]
		saved = append(saved, SavedDependency{
			Name:        dep.Name,
			Version:     dep.Version,
			CompileArgs: dep.CompileArgs,
			LinkArgs:    dep.LinkArgs,
			Method:      dep.Method,
		})
	}
	return saved
}

// Restore primes the cache from a previous run.
func (r *Resolver) Restore(saved []SavedDependency) {
	for _, sd := range saved {
		r.cache[sd.Name] = &Dependency{
			Name:        sd.Name,
			Version:     sd.Version,
			CompileArgs: sd.CompileArgs,
			LinkArgs:    sd.LinkArgs,
			Method:      sd.Method,
			found:       true,
		}
	}
}

// ClearCache drops all cached discovery results.
func (r *Resolver) ClearCache() {
	r.cache = map[string]*Dependency{}
}
