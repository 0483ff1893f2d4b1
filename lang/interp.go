// Package lang interprets the declarative build description files: option
// declarations, target definitions, dependency lookups, subdirectory
// recursion and subproject configuration.
package lang

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/mortar-build/mortar/backend"
	"github.com/mortar-build/mortar/deps"
	"github.com/mortar-build/mortar/graph"
	"github.com/mortar-build/mortar/log"
	"github.com/mortar-build/mortar/machine"
	"github.com/mortar-build/mortar/options"
	"github.com/mortar-build/mortar/runner"
	"github.com/mortar-build/mortar/util"
	"github.com/mortar-build/mortar/wrap"
	"github.com/zclconf/go-cty/cty"
)

type projectInfo struct {
	Name      string   `hcl:"name"`
	Version   string   `hcl:"version,optional"`
	License   string   `hcl:"license,optional"`
	Languages []string `hcl:"languages,optional"`
	// DefaultOptions are "name=value" pairs applied unless overridden on the
	// command line.
	DefaultOptions []string `hcl:"default_options,optional"`
}

// state is shared between the root interpreter and subproject interpreters:
// everything that accumulates into one build directory.
type state struct {
	builder    *graph.Builder
	tests      []runner.Test
	install    []backend.InstallEntry
	buildFiles []string
	seenDirs   map[string]bool
	// configured guards against configuring the same subproject twice.
	configured map[string]bool

	// saved and pendingOverrides hold option values targeting subproject
	// scopes that have not been declared yet. They are applied when the
	// owning subproject is configured.
	saved            []options.SavedOption
	pendingOverrides map[string]string
}

// Interpreter evaluates the build description of one project. Subprojects get
// their own interpreter sharing the accumulated state.
type Interpreter struct {
	SourceDir string
	BuildDir  string
	Options   *options.Store
	Deps      *deps.Resolver
	Machine   *machine.File
	Wraps     *wrap.Resolver

	// Saved holds option values from a previous configuration, applied once
	// the project's own options are declared.
	Saved []options.SavedOption
	// Overrides holds -D command line assignments, applied after Saved.
	Overrides []string

	// Subproject is empty for the root project. For subprojects it is the
	// option scope and dependency namespace.
	Subproject string
	// baseDir is the directory of the project's top build file, relative to
	// the root source directory. Empty for the root project.
	baseDir string

	shared  *state
	parser  *hclparse.Parser
	project projectInfo
	locals  map[string]cty.Value
	depRefs map[string]*deps.Dependency
}

// Result is everything a configuration run produces for the backend.
type Result struct {
	ProjectName    string
	ProjectVersion string

	Graph      *graph.Graph
	Tests      []runner.Test
	Install    []backend.InstallEntry
	BuildFiles []string
}

// Run interprets the whole project and returns the finalized graph.
func (i *Interpreter) Run() (*Result, error) {
	i.shared = &state{
		builder:    graph.NewBuilder(),
		seenDirs:   map[string]bool{},
		configured: map[string]bool{},
	}
	i.parser = hclparse.NewParser()
	i.locals = map[string]cty.Value{}
	i.depRefs = map[string]*deps.Dependency{}

	if i.Deps != nil {
		i.Deps.ConfigureSubproject = i.configureSubproject
	}

	if err := i.declareOptions(); err != nil {
		return nil, err
	}
	if err := i.Options.Restore(i.Saved); err != nil {
		return nil, err
	}
	i.shared.saved = i.Saved

	// Overrides addressing subproject options wait until the subproject has
	// declared them.
	i.shared.pendingOverrides = map[string]string{}
	for _, override := range i.Overrides {
		if name, _, _ := strings.Cut(override, "="); strings.ContainsRune(name, ':') {
			i.shared.pendingOverrides[name] = override
			continue
		}
		if err := i.Options.SetFromAssignment(override); err != nil {
			return nil, err
		}
	}

	if err := i.evaluateDir(i.baseDir, true); err != nil {
		return nil, err
	}
	for name := range i.shared.pendingOverrides {
		return nil, fmt.Errorf("unknown option '%s'", name)
	}

	g, err := i.shared.builder.Finalize()
	if err != nil {
		return nil, err
	}
	return &Result{
		ProjectName:    i.project.Name,
		ProjectVersion: i.project.Version,
		Graph:          g,
		Tests:          i.shared.tests,
		Install:        i.shared.install,
		BuildFiles:     i.shared.buildFiles,
	}, nil
}

// declareOptions processes the project's option declaration file, which may
// contain nothing but option blocks.
func (i *Interpreter) declareOptions() error {
	filePath := path.Join(i.SourceDir, i.baseDir, util.OptionsFileName)
	if !util.FileExists(filePath) {
		return nil
	}
	body, err := i.parseFile(filePath)
	if err != nil {
		return err
	}
	i.shared.buildFiles = append(i.shared.buildFiles, filePath)

	for _, block := range body.Blocks {
		if block.Type != "option" {
			return fmt.Errorf("%s: only option blocks are allowed in %s, found '%s'",
				block.DefRange().String(), util.OptionsFileName, block.Type)
		}
		if err := i.declareOption(block); err != nil {
			return err
		}
	}
	return nil
}

type optionBlock struct {
	Type        string   `hcl:"type"`
	Description string   `hcl:"description,optional"`
	Choices     []string `hcl:"choices,optional"`
	Default     string   `hcl:"default,optional"`
}

func (i *Interpreter) declareOption(block *hclsyntax.Block) error {
	name, err := blockLabel(block)
	if err != nil {
		return err
	}
	var decl optionBlock
	if diags := gohcl.DecodeBody(block.Body, nil, &decl); diags.HasErrors() {
		return fmt.Errorf("failed to decode option '%s': %s", name, diags.Error())
	}
	kind, err := options.ParseKind(decl.Type)
	if err != nil {
		return fmt.Errorf("%s: %s", block.DefRange().String(), err)
	}
	if i.Subproject != "" {
		return i.Options.DeclareScoped(i.Subproject, name, kind, decl.Description, decl.Choices, decl.Default)
	}
	return i.Options.Declare(name, kind, decl.Description, decl.Choices, decl.Default)
}

func (i *Interpreter) parseFile(filePath string) (*hclsyntax.Body, error) {
	file, diags := i.parser.ParseHCLFile(filePath)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %s", filePath, diags.Error())
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("%s is not in native syntax", filePath)
	}
	return body, nil
}

// evaluateDir interprets one build file. Blocks are processed in file order,
// so definitions are visible to everything below them.
func (i *Interpreter) evaluateDir(subdir string, isProjectRoot bool) error {
	if i.shared.seenDirs[subdir] {
		return fmt.Errorf("directory '%s' is entered twice", subdir)
	}
	i.shared.seenDirs[subdir] = true

	filePath := path.Join(i.SourceDir, subdir, util.BuildFileName)
	body, err := i.parseFile(filePath)
	if err != nil {
		return err
	}
	i.shared.buildFiles = append(i.shared.buildFiles, filePath)
	log.Debug("Interpreting %s.\n", filePath)

	for n, block := range body.Blocks {
		if isProjectRoot && n == 0 {
			if block.Type != "project" {
				return fmt.Errorf("%s: the first block of the top-level %s must be project",
					block.DefRange().String(), util.BuildFileName)
			}
			if err := i.evalProject(block); err != nil {
				return err
			}
			continue
		}
		if err := i.evalBlock(subdir, block); err != nil {
			return err
		}
	}
	if len(body.Blocks) == 0 && isProjectRoot {
		return fmt.Errorf("%s does not declare a project", filePath)
	}
	return nil
}

func (i *Interpreter) evalBlock(subdir string, block *hclsyntax.Block) error {
	switch block.Type {
	case "project":
		return fmt.Errorf("%s: project may only be declared once, at the top of the top-level %s",
			block.DefRange().String(), util.BuildFileName)
	case "option":
		return fmt.Errorf("%s: options must be declared in %s",
			block.DefRange().String(), util.OptionsFileName)
	case "locals":
		return i.evalLocals(subdir, block)
	case "dependency":
		return i.evalDependency(subdir, block)
	case "declare_dependency":
		return i.evalDeclareDependency(subdir, block)
	case "executable":
		return i.evalTarget(subdir, block, graph.Executable)
	case "static_library":
		return i.evalTarget(subdir, block, graph.StaticLibrary)
	case "shared_library":
		return i.evalTarget(subdir, block, graph.SharedLibrary)
	case "library":
		return i.evalTarget(subdir, block, i.defaultLibraryKind())
	case "custom_target":
		return i.evalCustomTarget(subdir, block)
	case "run_target":
		return i.evalRunTarget(subdir, block)
	case "generator":
		return i.evalGenerator(subdir, block)
	case "subdir":
		return i.evalSubdir(subdir, block)
	case "subproject":
		return i.evalSubprojectBlock(subdir, block)
	case "test":
		return i.evalTest(subdir, block, "")
	case "benchmark":
		return i.evalTest(subdir, block, "benchmark")
	case "configure_file":
		return i.evalConfigureFile(subdir, block)
	case "install_headers":
		return i.evalInstallHeaders(subdir, block)
	case "install_data":
		return i.evalInstallData(subdir, block)
	case "install_man":
		return i.evalInstallMan(subdir, block)
	default:
		return fmt.Errorf("%s: unknown block type '%s'", block.DefRange().String(), block.Type)
	}
}

func blockLabel(block *hclsyntax.Block) (string, error) {
	if len(block.Labels) != 1 || block.Labels[0] == "" {
		return "", fmt.Errorf("%s: %s requires exactly one name label", block.DefRange().String(), block.Type)
	}
	return block.Labels[0], nil
}

func (i *Interpreter) decode(subdir string, block *hclsyntax.Block, target interface{}) error {
	ctx := i.evalContext(subdir)
	if diags := gohcl.DecodeBody(block.Body, ctx, target); diags.HasErrors() {
		return fmt.Errorf("failed to decode %s block: %s", block.Type, diags.Error())
	}
	return nil
}

func (i *Interpreter) evalProject(block *hclsyntax.Block) error {
	if err := i.decode(i.baseDir, block, &i.project); err != nil {
		return err
	}
	if i.project.Name == "" {
		return fmt.Errorf("%s: project name must not be empty", block.DefRange().String())
	}
	for _, d := range i.project.DefaultOptions {
		assignment := d
		if i.Subproject != "" {
			// Subproject defaults only apply to its own scoped options.
			name, _, _ := strings.Cut(assignment, "=")
			if _, ok := i.Options.Lookup(i.Subproject + ":" + name); ok {
				assignment = i.Subproject + ":" + d
			} else {
				continue
			}
		}
		if err := i.Options.SetProjectDefault(assignment); err != nil {
			return err
		}
	}
	if i.Subproject == "" {
		log.Log("Project name: %s\n", i.project.Name)
		if i.project.Version != "" {
			log.Log("Project version: %s\n", i.project.Version)
		}
	}
	return nil
}

func (i *Interpreter) evalLocals(subdir string, block *hclsyntax.Block) error {
	ctx := i.evalContext(subdir)
	for name, attr := range block.Body.Attributes {
		value, diags := attr.Expr.Value(ctx)
		if diags.HasErrors() {
			return fmt.Errorf("failed to evaluate local '%s': %s", name, diags.Error())
		}
		i.locals[name] = value
	}
	return nil
}

type dependencyBlock struct {
	Version  string `hcl:"version,optional"`
	Required *bool  `hcl:"required,optional"`
	Fallback string `hcl:"fallback,optional"`
}

func (i *Interpreter) evalDependency(subdir string, block *hclsyntax.Block) error {
	name, err := blockLabel(block)
	if err != nil {
		return err
	}
	if _, ok := i.depRefs[name]; ok {
		return fmt.Errorf("%s: dependency '%s' is already declared", block.DefRange().String(), name)
	}
	var decl dependencyBlock
	if err := i.decode(subdir, block, &decl); err != nil {
		return err
	}

	query := deps.Query{
		Name:     name,
		Version:  decl.Version,
		Required: decl.Required == nil || *decl.Required,
		Fallback: decl.Fallback,
	}
	dep, err := i.Deps.Resolve(query)
	if err != nil {
		return err
	}
	i.depRefs[name] = dep
	return nil
}

type declareDependencyBlock struct {
	CompileArgs []string `hcl:"compile_args,optional"`
	LinkArgs    []string `hcl:"link_args,optional"`
	LinkWith    []string `hcl:"link_with,optional"`
	Version     string   `hcl:"version,optional"`
}

func (i *Interpreter) evalDeclareDependency(subdir string, block *hclsyntax.Block) error {
	name, err := blockLabel(block)
	if err != nil {
		return err
	}
	var decl declareDependencyBlock
	if err := i.decode(subdir, block, &decl); err != nil {
		return err
	}

	dep := deps.Declared(name, decl.Version, decl.CompileArgs, decl.LinkArgs)
	// Linked targets contribute their outputs and usage requirements through
	// the consumer's link_with.
	for _, ref := range decl.LinkWith {
		target, ok := i.lookupTarget(subdir, ref)
		if !ok {
			return fmt.Errorf("declare_dependency '%s' links against unknown target '%s'", name, ref)
		}
		dep.LinkTargets = append(dep.LinkTargets, target.Key())
	}

	i.depRefs[name] = dep
	if i.Subproject != "" {
		if err := i.Deps.RegisterOverride(name, dep); err != nil {
			return err
		}
	}
	return nil
}

type targetBlock struct {
	Sources      []string `hcl:"sources,optional"`
	IncludeDirs  []string `hcl:"include_dirs,optional"`
	CArgs        []string `hcl:"c_args,optional"`
	LinkArgs     []string `hcl:"link_args,optional"`
	LinkWith     []string `hcl:"link_with,optional"`
	Dependencies []string `hcl:"dependencies,optional"`
	Install      bool     `hcl:"install,optional"`
	InstallDir   string   `hcl:"install_dir,optional"`
}

func (i *Interpreter) defaultLibraryKind() graph.Kind {
	if opt, ok := i.Options.Lookup("default_library"); ok && opt.StringValue() == "static" {
		return graph.StaticLibrary
	}
	return graph.SharedLibrary
}

func (i *Interpreter) evalTarget(subdir string, block *hclsyntax.Block, kind graph.Kind) error {
	name, err := blockLabel(block)
	if err != nil {
		return err
	}
	var decl targetBlock
	if err := i.decode(subdir, block, &decl); err != nil {
		return err
	}

	target := &graph.Target{
		Name:        name,
		Subdir:      subdir,
		Kind:        kind,
		Sources:     decl.Sources,
		IncludeDirs: decl.IncludeDirs,
		CompileArgs: decl.CArgs,
		LinkArgs:    decl.LinkArgs,
		Install:     decl.Install,
		InstallDir:  decl.InstallDir,
	}
	for _, ref := range decl.LinkWith {
		target.LinkWith = append(target.LinkWith, i.qualifyRef(subdir, ref))
	}
	if err := i.applyDependencies(target, decl.Dependencies); err != nil {
		return fmt.Errorf("%s: %s", block.DefRange().String(), err)
	}
	return i.shared.builder.AddTarget(target)
}

// applyDependencies attaches resolved dependency blocks to a target. A
// declared dependency may carry link targets which become graph edges.
func (i *Interpreter) applyDependencies(target *graph.Target, refs []string) error {
	for _, ref := range refs {
		dep, ok := i.depRefs[ref]
		if !ok {
			return fmt.Errorf("target '%s' uses undeclared dependency '%s'", target.Name, ref)
		}
		if !dep.Found() {
			return fmt.Errorf("target '%s' uses dependency '%s' which was not found", target.Name, ref)
		}
		target.Deps = append(target.Deps, dep)
		target.LinkWith = append(target.LinkWith, dep.LinkTargets...)
	}
	return nil
}

// qualifyRef resolves a target reference. Bare names refer to targets of the
// current project, "dir:name" keys are used as-is.
func (i *Interpreter) qualifyRef(subdir string, ref string) string {
	if target, ok := i.lookupTarget(subdir, ref); ok {
		return target.Key()
	}
	return ref
}

func (i *Interpreter) lookupTarget(subdir string, ref string) (*graph.Target, bool) {
	if subdir != "" {
		if target, ok := i.shared.builder.Lookup(subdir + ":" + ref); ok {
			return target, true
		}
	}
	return i.shared.builder.Lookup(ref)
}

type customTargetBlock struct {
	Input      []string `hcl:"input,optional"`
	Output     []string `hcl:"output"`
	Command    []string `hcl:"command"`
	Depends    []string `hcl:"depends,optional"`
	Install    bool     `hcl:"install,optional"`
	InstallDir string   `hcl:"install_dir,optional"`
}

func (i *Interpreter) evalCustomTarget(subdir string, block *hclsyntax.Block) error {
	name, err := blockLabel(block)
	if err != nil {
		return err
	}
	var decl customTargetBlock
	if err := i.decode(subdir, block, &decl); err != nil {
		return err
	}
	target := &graph.Target{
		Name:       name,
		Subdir:     subdir,
		Kind:       graph.CustomTarget,
		Sources:    decl.Input,
		Outputs:    decl.Output,
		Command:    decl.Command,
		Install:    decl.Install,
		InstallDir: decl.InstallDir,
	}
	for _, ref := range decl.Depends {
		target.ExtraDepends = append(target.ExtraDepends, i.qualifyRef(subdir, ref))
	}
	return i.shared.builder.AddTarget(target)
}

type runTargetBlock struct {
	Command []string `hcl:"command"`
	Depends []string `hcl:"depends,optional"`
}

func (i *Interpreter) evalRunTarget(subdir string, block *hclsyntax.Block) error {
	name, err := blockLabel(block)
	if err != nil {
		return err
	}
	var decl runTargetBlock
	if err := i.decode(subdir, block, &decl); err != nil {
		return err
	}
	target := &graph.Target{
		Name:      name,
		Subdir:    subdir,
		Kind:      graph.RunTarget,
		Command:   decl.Command,
		AlwaysRun: true,
	}
	for _, ref := range decl.Depends {
		target.ExtraDepends = append(target.ExtraDepends, i.qualifyRef(subdir, ref))
	}
	return i.shared.builder.AddTarget(target)
}

type generatorBlock struct {
	Sources []string `hcl:"sources"`
	Command []string `hcl:"command"`
	// Output is a template, @BASENAME@ is replaced by the source file name
	// without its extension.
	Output []string `hcl:"output"`
}

// evalGenerator expands into one custom target per source file.
func (i *Interpreter) evalGenerator(subdir string, block *hclsyntax.Block) error {
	name, err := blockLabel(block)
	if err != nil {
		return err
	}
	var decl generatorBlock
	if err := i.decode(subdir, block, &decl); err != nil {
		return err
	}
	for _, src := range decl.Sources {
		base := strings.TrimSuffix(path.Base(src), path.Ext(src))
		outputs := util.MappedSlice(decl.Output, func(out string) string {
			return strings.ReplaceAll(out, "@BASENAME@", base)
		})
		target := &graph.Target{
			Name:    name + "_" + base,
			Subdir:  subdir,
			Kind:    graph.CustomTarget,
			Sources: []string{src},
			Outputs: outputs,
			Command: decl.Command,
		}
		if err := i.shared.builder.AddTarget(target); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interpreter) evalSubdir(subdir string, block *hclsyntax.Block) error {
	name, err := blockLabel(block)
	if err != nil {
		return err
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return fmt.Errorf("%s: subdir '%s' must be a relative path inside the project", block.DefRange().String(), name)
	}
	return i.evaluateDir(path.Join(subdir, name), false)
}

type subprojectBlock struct {
	Required *bool `hcl:"required,optional"`
}

func (i *Interpreter) evalSubprojectBlock(subdir string, block *hclsyntax.Block) error {
	name, err := blockLabel(block)
	if err != nil {
		return err
	}
	if i.Subproject != "" {
		return fmt.Errorf("%s: subprojects may not configure further subprojects", block.DefRange().String())
	}
	var decl subprojectBlock
	if err := i.decode(subdir, block, &decl); err != nil {
		return err
	}
	if err := i.configureSubproject(name); err != nil {
		if decl.Required != nil && !*decl.Required {
			log.Warning("Optional subproject %s skipped: %s.\n", name, err)
			return nil
		}
		return err
	}
	return nil
}

// configureSubproject materializes a subproject (through its wrap if needed)
// and interprets its build description into the shared graph. It also serves
// as the fallback hook of the dependency resolver.
func (i *Interpreter) configureSubproject(name string) error {
	if i.shared.configured[name] {
		return nil
	}

	dir := path.Join(util.SubprojectsDirName, name)
	if !util.DirExists(path.Join(i.SourceDir, dir)) {
		if i.Wraps == nil {
			return fmt.Errorf("subproject directory '%s' does not exist", dir)
		}
		_, def, err := i.Wraps.Resolve(name)
		if err != nil {
			return err
		}
		dir = path.Join(util.SubprojectsDirName, def.Directory)
	}
	i.shared.configured[name] = true
	log.Log("Configuring subproject %s\n", name)
	log.IndentationLevel++
	defer func() { log.IndentationLevel-- }()

	sub := &Interpreter{
		SourceDir:  i.SourceDir,
		BuildDir:   i.BuildDir,
		Options:    i.Options,
		Deps:       i.Deps,
		Machine:    i.Machine,
		Wraps:      i.Wraps,
		Subproject: name,
		baseDir:    dir,
		shared:     i.shared,
		parser:     i.parser,
		locals:     map[string]cty.Value{},
		depRefs:    map[string]*deps.Dependency{},
	}
	if err := sub.declareOptions(); err != nil {
		return err
	}
	// Saved values and command line overrides for this scope become
	// applicable now.
	for _, sv := range i.shared.saved {
		if strings.HasPrefix(sv.Name, name+":") {
			if err := i.Options.Restore([]options.SavedOption{sv}); err != nil {
				return err
			}
		}
	}
	for key, override := range i.shared.pendingOverrides {
		if strings.HasPrefix(key, name+":") {
			if err := i.Options.SetFromAssignment(override); err != nil {
				return err
			}
			delete(i.shared.pendingOverrides, key)
		}
	}
	return sub.evaluateDir(dir, true)
}

type testBlock struct {
	Command    []string `hcl:"command"`
	Env        []string `hcl:"env,optional"`
	Workdir    string   `hcl:"workdir,optional"`
	Timeout    int      `hcl:"timeout,optional"`
	ShouldFail bool     `hcl:"should_fail,optional"`
	Suite      string   `hcl:"suite,optional"`
}

func (i *Interpreter) evalTest(subdir string, block *hclsyntax.Block, suite string) error {
	name, err := blockLabel(block)
	if err != nil {
		return err
	}
	var decl testBlock
	if err := i.decode(subdir, block, &decl); err != nil {
		return err
	}
	if len(decl.Command) == 0 {
		return fmt.Errorf("%s: test '%s' has an empty command", block.DefRange().String(), name)
	}
	if decl.Suite != "" {
		suite = decl.Suite
	}

	command := append([]string{}, decl.Command...)
	// A command naming an executable target runs its built binary.
	if target, ok := i.lookupTarget(subdir, command[0]); ok && target.Kind == graph.Executable {
		command[0] = path.Join(i.BuildDir, target.Subdir, target.Name)
	}

	i.shared.tests = append(i.shared.tests, runner.Test{
		Name:           name,
		Command:        command,
		Env:            decl.Env,
		Workdir:        decl.Workdir,
		TimeoutSeconds: decl.Timeout,
		ShouldFail:     decl.ShouldFail,
		Suite:          suite,
	})
	return nil
}

type configureFileBlock struct {
	Input         string    `hcl:"input"`
	Output        string    `hcl:"output"`
	Configuration cty.Value `hcl:"configuration"`
	InstallDir    string    `hcl:"install_dir,optional"`
}

var configRef = regexp.MustCompile(`@([a-zA-Z_][a-zA-Z0-9_]*)@`)

// evalConfigureFile substitutes @NAME@ references in a template and writes
// the result into the build directory at configure time.
func (i *Interpreter) evalConfigureFile(subdir string, block *hclsyntax.Block) error {
	var decl configureFileBlock
	if err := i.decode(subdir, block, &decl); err != nil {
		return err
	}
	if !decl.Configuration.Type().IsObjectType() && !decl.Configuration.Type().IsMapType() {
		return fmt.Errorf("%s: configuration must be a map of values", block.DefRange().String())
	}
	values := map[string]string{}
	for key, value := range decl.Configuration.AsValueMap() {
		switch value.Type() {
		case cty.String:
			values[key] = value.AsString()
		case cty.Bool:
			if value.True() {
				values[key] = "1"
			} else {
				values[key] = "0"
			}
		case cty.Number:
			values[key] = value.AsBigFloat().Text('f', -1)
		default:
			return fmt.Errorf("%s: configuration value '%s' must be a string, bool or number", block.DefRange().String(), key)
		}
	}

	content := string(util.ReadFile(path.Join(i.SourceDir, subdir, decl.Input)))
	var missing string
	content = configRef.ReplaceAllStringFunc(content, func(ref string) string {
		key := ref[1 : len(ref)-1]
		if value, ok := values[key]; ok {
			return value
		}
		missing = key
		return ref
	})
	if missing != "" {
		return fmt.Errorf("%s: template '%s' references undefined configuration value '%s'",
			block.DefRange().String(), decl.Input, missing)
	}

	outPath := path.Join(subdir, decl.Output)
	util.WriteFile(path.Join(i.BuildDir, outPath), []byte(content))
	if decl.InstallDir != "" {
		i.shared.install = append(i.shared.install, backend.InstallEntry{
			Source: outPath, DestDir: decl.InstallDir,
		})
	}
	return nil
}

type installHeadersBlock struct {
	Files  []string `hcl:"files"`
	Subdir string   `hcl:"subdir,optional"`
}

func (i *Interpreter) evalInstallHeaders(subdir string, block *hclsyntax.Block) error {
	var decl installHeadersBlock
	if err := i.decode(subdir, block, &decl); err != nil {
		return err
	}
	dest := path.Join(i.includeDir(), decl.Subdir)
	for _, file := range decl.Files {
		i.shared.install = append(i.shared.install, backend.InstallEntry{
			Source: path.Join(i.SourceDir, subdir, file), DestDir: dest,
		})
	}
	return nil
}

type installDataBlock struct {
	Files      []string `hcl:"files"`
	InstallDir string   `hcl:"install_dir,optional"`
}

func (i *Interpreter) evalInstallData(subdir string, block *hclsyntax.Block) error {
	var decl installDataBlock
	if err := i.decode(subdir, block, &decl); err != nil {
		return err
	}
	dest := decl.InstallDir
	if dest == "" {
		dest = path.Join(i.optionString("datadir"), i.project.Name)
	}
	for _, file := range decl.Files {
		i.shared.install = append(i.shared.install, backend.InstallEntry{
			Source: path.Join(i.SourceDir, subdir, file), DestDir: dest,
		})
	}
	return nil
}

type installManBlock struct {
	Files []string `hcl:"files"`
}

// evalInstallMan installs man pages into the section directory named by the
// page's numeric extension.
func (i *Interpreter) evalInstallMan(subdir string, block *hclsyntax.Block) error {
	var decl installManBlock
	if err := i.decode(subdir, block, &decl); err != nil {
		return err
	}
	for _, file := range decl.Files {
		section := strings.TrimPrefix(path.Ext(file), ".")
		if len(section) != 1 || section[0] < '1' || section[0] > '9' {
			return fmt.Errorf("%s: man page '%s' must end in a section number", block.DefRange().String(), file)
		}
		i.shared.install = append(i.shared.install, backend.InstallEntry{
			Source:  path.Join(i.SourceDir, subdir, file),
			DestDir: path.Join(i.optionString("mandir"), "man"+section),
		})
	}
	return nil
}

func (i *Interpreter) optionString(name string) string {
	opt, ok := i.Options.Lookup(name)
	if !ok {
		return ""
	}
	return opt.StringValue()
}

func (i *Interpreter) includeDir() string {
	return i.optionString("includedir")
}
