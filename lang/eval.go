package lang

import (
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/mortar-build/mortar/util"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// evalContext builds the expression scope for one build file. The scope is
// rebuilt per block so that locals and dependency results declared earlier in
// the file are visible to later blocks.
func (i *Interpreter) evalContext(subdir string) *hcl.EvalContext {
	vars := map[string]cty.Value{
		"project": cty.ObjectVal(map[string]cty.Value{
			"name":    cty.StringVal(i.project.Name),
			"version": cty.StringVal(i.project.Version),
		}),
		"option": i.optionValues(),
		"local":  objectOrEmpty(i.locals),
		"dep":    i.depValues(),
		"host":   machineValue(i.Machine.Property),
		"build":  machineValue(func(string) (string, bool) { return "", false }),
	}
	return &hcl.EvalContext{
		Variables: vars,
		Functions: i.functions(subdir),
	}
}

func objectOrEmpty(m map[string]cty.Value) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(m)
}

// optionValues exposes the option store. A subproject sees its own scoped
// options under their bare names, next to the unscoped builtins.
func (i *Interpreter) optionValues() cty.Value {
	values := map[string]cty.Value{}
	for _, opt := range i.Options.All() {
		name := opt.Name
		if scope, bare, scoped := strings.Cut(name, ":"); scoped {
			if scope != i.Subproject {
				continue
			}
			name = bare
		} else if i.Subproject != "" && strings.ContainsRune(opt.Name, ':') {
			continue
		}
		switch v := opt.Value().(type) {
		case bool:
			values[name] = cty.BoolVal(v)
		case []string:
			values[name] = stringListVal(v)
		default:
			values[name] = cty.StringVal(opt.StringValue())
		}
	}
	return objectOrEmpty(values)
}

func (i *Interpreter) depValues() cty.Value {
	values := map[string]cty.Value{}
	for name, dep := range i.depRefs {
		values[name] = cty.ObjectVal(map[string]cty.Value{
			"found":   cty.BoolVal(dep.Found()),
			"version": cty.StringVal(dep.Version),
		})
	}
	return objectOrEmpty(values)
}

// machineValue describes a machine as {system, cpu}. Without a machine file
// the values of the machine running the build are used.
func machineValue(property func(string) (string, bool)) cty.Value {
	system, ok := property("system")
	if !ok {
		system = runtime.GOOS
	}
	cpu, ok := property("cpu_family")
	if !ok {
		cpu = runtime.GOARCH
	}
	return cty.ObjectVal(map[string]cty.Value{
		"system": cty.StringVal(system),
		"cpu":    cty.StringVal(cpu),
	})
}

func stringListVal(s []string) cty.Value {
	if len(s) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	values := make([]cty.Value, len(s))
	for i, v := range s {
		values[i] = cty.StringVal(v)
	}
	return cty.ListVal(values)
}

// functions returns the function table. File functions resolve relative to
// the build file's directory.
func (i *Interpreter) functions(subdir string) map[string]function.Function {
	dir := path.Join(i.SourceDir, subdir)
	return map[string]function.Function{
		"format":  stdlib.FormatFunc,
		"join":    stdlib.JoinFunc,
		"split":   stdlib.SplitFunc,
		"replace": stdlib.ReplaceFunc,
		"upper":   stdlib.UpperFunc,
		"lower":   stdlib.LowerFunc,
		"concat":  stdlib.ConcatFunc,
		"length":  stdlib.LengthFunc,

		"join_paths": joinPathsFunc,
		"files":      filesFunc(dir),
		"glob":       globFunc(dir),
	}
}

var joinPathsFunc = function.New(&function.Spec{
	VarParam: &function.Parameter{Name: "parts", Type: cty.String},
	Type:     function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = arg.AsString()
		}
		return cty.StringVal(path.Join(parts...)), nil
	},
})

// filesFunc validates that the named source files exist and returns them
// unchanged, catching typos at configure time instead of build time.
func filesFunc(dir string) function.Function {
	return function.New(&function.Spec{
		VarParam: &function.Parameter{Name: "files", Type: cty.String},
		Type:     function.StaticReturnType(cty.List(cty.String)),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			names := make([]string, len(args))
			for i, arg := range args {
				name := arg.AsString()
				if !util.FileExists(path.Join(dir, name)) {
					return cty.NilVal, fmt.Errorf("file '%s' does not exist in '%s'", name, dir)
				}
				names[i] = name
			}
			return stringListVal(names), nil
		},
	})
}

// globFunc expands a pattern relative to the build file's directory. Matches
// are sorted so the build is reproducible.
func globFunc(dir string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "pattern", Type: cty.String}},
		Type:   function.StaticReturnType(cty.List(cty.String)),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			matches, err := filepath.Glob(path.Join(dir, args[0].AsString()))
			if err != nil {
				return cty.NilVal, err
			}
			names := make([]string, len(matches))
			for i, m := range matches {
				rel, err := filepath.Rel(dir, m)
				if err != nil {
					return cty.NilVal, err
				}
				names[i] = rel
			}
			sort.Strings(names)
			return stringListVal(names), nil
		},
	})
}
