// Package backend lowers a finalized target graph into concrete build files
// for ninja, together with the install manifest, the test list and the
// compile command database.
package backend

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/mortar-build/mortar/graph"
	"github.com/mortar-build/mortar/log"
	"github.com/mortar-build/mortar/machine"
	"github.com/mortar-build/mortar/options"
	"github.com/mortar-build/mortar/runner"
	"github.com/mortar-build/mortar/util"
)

// NinjaFileName is the entry point ninja expects.
const NinjaFileName = "build.ninja"

// Config carries everything the backend needs to emit a build directory.
type Config struct {
	Graph   *graph.Graph
	Options *options.Store
	Machine *machine.File

	SourceDir string
	BuildDir  string

	// BuildFiles lists every interpreted build description file; changing
	// any of them triggers regeneration.
	BuildFiles []string

	Tests []runner.Test

	// ExtraInstall holds install entries produced during interpretation
	// (headers, data, man pages, configured files). Target entries are added
	// by the backend itself.
	ExtraInstall []InstallEntry
}

type generator struct {
	cfg *Config
}

// Generate writes build.ninja, the install manifest and the test list into
// the build directory.
func Generate(cfg *Config) error {
	g := &generator{cfg: cfg}

	util.MkdirAll(cfg.BuildDir)
	file, err := os.Create(path.Join(cfg.BuildDir, NinjaFileName))
	if err != nil {
		return err
	}
	defer file.Close()

	n := newNinjaWriter(file)
	if err := g.emit(n); err != nil {
		return err
	}

	manifest := &InstallManifest{Entries: append([]InstallEntry{}, cfg.ExtraInstall...)}
	for _, t := range cfg.Graph.Targets {
		if !t.Install {
			continue
		}
		for _, out := range g.targetOutputs(t) {
			manifest.Entries = append(manifest.Entries, InstallEntry{
				Source:     out,
				DestDir:    g.installDirFor(t),
				Executable: t.Kind == graph.Executable,
				Strip:      g.boolOption("strip") && t.Kind != graph.CustomTarget,
			})
		}
	}
	if err := manifest.Save(cfg.BuildDir); err != nil {
		return err
	}

	if err := runner.SaveTests(cfg.BuildDir, cfg.Tests); err != nil {
		return err
	}
	return nil
}

func (g *generator) emit(n *ninjaWriter) error {
	cfg := g.cfg

	n.Comment("This file is generated by mortar. Do not edit by hand.")
	n.BlankLine()
	n.Variable("ninja_required_version", "1.5.1", 0)
	n.Variable("cc", g.compiler(), 0)
	n.Variable("ar", g.archiver(), 0)
	n.BlankLine()

	n.Rule("c_COMPILER", [][2]string{
		{"command", "$cc $ARGS -MD -MF $out.d -c $in -o $out"},
		{"depfile", "$out.d"},
		{"deps", "gcc"},
		{"description", "Compiling $in"},
	})
	n.Rule("c_LINKER", [][2]string{
		{"command", "$cc $ARGS $in -o $out $LINK_ARGS"},
		{"description", "Linking target $out"},
	})
	n.Rule("STATIC_LINKER", [][2]string{
		{"command", "$ar csr $out $in"},
		{"description", "Creating static library $out"},
	})

	var allOutputs []string
	for _, t := range cfg.Graph.Targets {
		if err := g.emitTarget(n, t); err != nil {
			return err
		}
		if t.Kind != graph.RunTarget {
			allOutputs = append(allOutputs, g.targetOutputs(t)...)
		}
	}

	// Aliases so that 'ninja name' works for every target.
	for _, t := range cfg.Graph.Targets {
		outputs := g.targetOutputs(t)
		if t.Kind == graph.RunTarget || (len(outputs) == 1 && outputs[0] == t.Name) {
			continue
		}
		n.Build("phony", []string{t.Name}, outputs, nil, nil, nil)
	}
	n.BlankLine()

	n.Build("phony", []string{"all"}, allOutputs, nil, nil, nil)
	n.BlankLine()

	// Rebuild the ninja file when any build description changes.
	n.Rule("REGENERATE_BUILD", [][2]string{
		{"command", fmt.Sprintf("mortar setup --reconfigure %s %s",
			escapeValue(cfg.BuildDir), escapeValue(cfg.SourceDir))},
		{"description", "Regenerating build files"},
		{"generator", "1"},
	})
	n.Build("REGENERATE_BUILD", []string{NinjaFileName}, cfg.BuildFiles, nil, nil, nil)
	n.BlankLine()

	n.Default("all")
	return n.Err()
}

func (g *generator) emitTarget(n *ninjaWriter, t *graph.Target) error {
	switch t.Kind {
	case graph.CustomTarget:
		return g.emitCustomTarget(n, t)
	case graph.RunTarget:
		return g.emitRunTarget(n, t)
	}

	objs := []string{}
	orderOnly := g.dependOutputs(t)
	for _, src := range t.Sources {
		if !compilable(src) {
			continue
		}
		obj := g.objectPath(t, src)
		n.Build("c_COMPILER", []string{obj}, []string{g.sourcePath(t, src)}, nil, orderOnly, [][2]string{
			{"ARGS", escapeValue(strings.Join(g.compileArgs(t), " "))},
		})
		objs = append(objs, obj)
	}

	outputs := g.targetOutputs(t)
	switch t.Kind {
	case graph.StaticLibrary:
		n.Build("STATIC_LINKER", outputs, objs, nil, nil, nil)
	case graph.SharedLibrary:
		n.Build("c_LINKER", outputs, objs, g.linkImplicit(t), nil, [][2]string{
			{"ARGS", "-shared"},
			{"LINK_ARGS", escapeValue(strings.Join(g.linkArgs(t), " "))},
		})
	case graph.Executable:
		n.Build("c_LINKER", outputs, objs, g.linkImplicit(t), nil, [][2]string{
			{"ARGS", ""},
			{"LINK_ARGS", escapeValue(strings.Join(g.linkArgs(t), " "))},
		})
	}
	n.BlankLine()
	return n.Err()
}

func (g *generator) emitCustomTarget(n *ninjaWriter, t *graph.Target) error {
	rule := "CUSTOM_" + sanitize(t.Key())
	n.Rule(rule, [][2]string{
		{"command", escapeValue(strings.Join(g.substituteCommand(t), " "))},
		{"description", fmt.Sprintf("Generating %s", t.Name)},
	})

	inputs := util.MappedSlice(t.Sources, func(src string) string { return g.sourcePath(t, src) })
	n.Build(rule, g.targetOutputs(t), inputs, g.dependOutputs(t), nil, nil)
	n.BlankLine()
	return n.Err()
}

func (g *generator) emitRunTarget(n *ninjaWriter, t *graph.Target) error {
	rule := "RUN_" + sanitize(t.Key())
	n.Rule(rule, [][2]string{
		{"command", escapeValue(strings.Join(g.substituteCommand(t), " "))},
		{"description", fmt.Sprintf("Running %s", t.Name)},
		{"pool", "console"},
	})
	// The declared output is never created, so ninja reruns the command on
	// every request.
	n.Build(rule, []string{t.Name}, nil, g.dependOutputs(t), nil, nil)
	n.BlankLine()
	return n.Err()
}

func (g *generator) compiler() string {
	if cc, ok := g.cfg.Machine.Binary("c"); ok {
		return cc
	}
	if cc := os.Getenv("CC"); cc != "" {
		return cc
	}
	return "cc"
}

func (g *generator) archiver() string {
	if ar, ok := g.cfg.Machine.Binary("ar"); ok {
		return ar
	}
	return "ar"
}

func (g *generator) boolOption(name string) bool {
	opt, ok := g.cfg.Options.Lookup(name)
	if !ok {
		return false
	}
	value, ok := opt.Value().(bool)
	return ok && value
}

func (g *generator) stringOption(name string) string {
	opt, ok := g.cfg.Options.Lookup(name)
	if !ok {
		return ""
	}
	value, _ := opt.Value().(string)
	return value
}

var buildtypeArgs = map[string][]string{
	"plain":          {},
	"debug":          {"-g"},
	"debugoptimized": {"-O2", "-g"},
	"release":        {"-O3"},
}

func (g *generator) compileArgs(t *graph.Target) []string {
	args := append([]string{}, buildtypeArgs[g.stringOption("buildtype")]...)
	if g.boolOption("werror") {
		args = append(args, "-Werror")
	}
	if t.Kind == graph.SharedLibrary {
		args = append(args, "-fPIC")
	}
	for _, dir := range t.IncludeDirs {
		args = append(args, "-I"+path.Join(g.cfg.SourceDir, t.Subdir, dir))
	}
	args = append(args, t.CompileArgs...)
	for _, dep := range t.Deps {
		args = append(args, dep.CompileArgs...)
	}
	return args
}

func (g *generator) linkArgs(t *graph.Target) []string {
	args := append([]string{}, t.LinkArgs...)
	for _, lib := range g.linkClosure(t) {
		args = append(args, g.targetOutputs(lib)...)
	}
	for _, dep := range t.Deps {
		args = append(args, dep.LinkArgs...)
	}
	for _, lib := range g.linkClosure(t) {
		for _, dep := range lib.Deps {
			args = append(args, dep.LinkArgs...)
		}
	}
	return args
}

// linkImplicit returns library outputs the link step depends on.
func (g *generator) linkImplicit(t *graph.Target) []string {
	implicit := []string{}
	for _, lib := range g.linkClosure(t) {
		implicit = append(implicit, g.targetOutputs(lib)...)
	}
	return implicit
}

// linkClosure returns the transitive link_with closure in first-seen order.
// Static libraries do not carry their own dependencies into the final link
// on their own, so the closure walks through them.
func (g *generator) linkClosure(t *graph.Target) []*graph.Target {
	seen := map[string]bool{}
	result := []*graph.Target{}
	var walk func(target *graph.Target)
	walk = func(target *graph.Target) {
		for _, key := range target.LinkWith {
			if seen[key] {
				continue
			}
			seen[key] = true
			lib, ok := g.cfg.Graph.Lookup(key)
			if !ok {
				log.Fatal("Internal error: finalized graph lost target '%s'.\n", key)
			}
			result = append(result, lib)
			if lib.Kind == graph.StaticLibrary {
				walk(lib)
			}
		}
	}
	walk(t)
	return result
}

// dependOutputs returns the outputs of extra dependencies, used as order-only
// or implicit inputs.
func (g *generator) dependOutputs(t *graph.Target) []string {
	outputs := []string{}
	for _, key := range t.ExtraDepends {
		dep, ok := g.cfg.Graph.Lookup(key)
		if !ok {
			log.Fatal("Internal error: finalized graph lost target '%s'.\n", key)
		}
		outputs = append(outputs, g.targetOutputs(dep)...)
	}
	return outputs
}

func (g *generator) sourcePath(t *graph.Target, src string) string {
	if path.IsAbs(src) {
		return src
	}
	return path.Join(g.cfg.SourceDir, t.Subdir, src)
}

func (g *generator) objectPath(t *graph.Target, src string) string {
	flat := strings.NewReplacer("/", "_", ".", "_").Replace(src)
	return path.Join(sanitize(t.Key())+".p", flat+".o")
}

// targetOutputs returns the build-directory relative outputs of a target.
func (g *generator) targetOutputs(t *graph.Target) []string {
	switch t.Kind {
	case graph.StaticLibrary:
		return []string{path.Join(t.Subdir, "lib"+t.Name+".a")}
	case graph.SharedLibrary:
		return []string{path.Join(t.Subdir, "lib"+t.Name+".so")}
	case graph.Executable:
		return []string{path.Join(t.Subdir, t.Name)}
	default:
		return util.MappedSlice(t.Outputs, func(out string) string {
			return path.Join(t.Subdir, out)
		})
	}
}

func (g *generator) installDirFor(t *graph.Target) string {
	if t.InstallDir != "" {
		return t.InstallDir
	}
	switch t.Kind {
	case graph.Executable:
		return g.stringOption("bindir")
	case graph.StaticLibrary, graph.SharedLibrary:
		return g.stringOption("libdir")
	default:
		return g.stringOption("datadir")
	}
}

// substituteCommand expands the command placeholders of custom and run
// targets.
func (g *generator) substituteCommand(t *graph.Target) []string {
	outputs := g.targetOutputs(t)
	inputs := util.MappedSlice(t.Sources, func(src string) string { return g.sourcePath(t, src) })

	result := []string{}
	for _, arg := range t.Command {
		switch arg {
		case "@OUTPUT@":
			result = append(result, outputs...)
			continue
		case "@INPUT@":
			result = append(result, inputs...)
			continue
		}
		arg = strings.ReplaceAll(arg, "@SOURCE_ROOT@", g.cfg.SourceDir)
		arg = strings.ReplaceAll(arg, "@BUILD_ROOT@", g.cfg.BuildDir)
		if len(outputs) > 0 {
			arg = strings.ReplaceAll(arg, "@OUTDIR@", path.Dir(outputs[0]))
		}
		result = append(result, arg)
	}
	return result
}

func sanitize(key string) string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(key)
}

func compilable(src string) bool {
	switch strings.ToLower(path.Ext(src)) {
	case ".c", ".cc", ".cpp", ".cxx", ".s":
		return true
	}
	return false
}
