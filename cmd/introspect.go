package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mortar-build/mortar/coredata"
	"github.com/mortar-build/mortar/deps"
	"github.com/mortar-build/mortar/lang"
	"github.com/mortar-build/mortar/log"
	"github.com/mortar-build/mortar/options"
	"github.com/mortar-build/mortar/runner"
	"github.com/mortar-build/mortar/wrap"

	"github.com/spf13/cobra"
)

var introspectTargets bool
var introspectOptions bool
var introspectTests bool
var introspectDeps bool

var introspectCmd = &cobra.Command{
	Use:   "introspect [builddir]",
	Args:  cobra.MaximumNArgs(1),
	Short: "Prints machine readable information about a configured build directory",
	Long: `Prints information about a configured build directory as JSON:
the project, its targets, option values and registered tests.`,
	Run: runIntrospect,
}

func init() {
	introspectCmd.Flags().BoolVar(&introspectTargets, "targets", false, "List build targets")
	introspectCmd.Flags().BoolVar(&introspectOptions, "options", false, "List build options")
	introspectCmd.Flags().BoolVar(&introspectTests, "tests", false, "List tests")
	introspectCmd.Flags().BoolVar(&introspectDeps, "dependencies", false, "List resolved dependencies")
	rootCmd.AddCommand(introspectCmd)
}

type introspectTarget struct {
	Name    string   `json:"name"`
	Subdir  string   `json:"subdir,omitempty"`
	Kind    string   `json:"kind"`
	Sources []string `json:"sources,omitempty"`
	Install bool     `json:"install"`
}

func runIntrospect(cmd *cobra.Command, args []string) {
	buildDir := buildDirArg(args)
	cd, err := coredata.Load(buildDir)
	if err != nil {
		log.Fatal("%s\n", err)
	}

	result := map[string]interface{}{}

	all := !introspectTargets && !introspectOptions && !introspectTests && !introspectDeps
	if all {
		result["project"] = map[string]string{
			"name":    cd.ProjectName,
			"version": cd.ProjectVersion,
		}
	}
	if all || introspectOptions {
		result["options"] = cd.Options
	}
	if all || introspectDeps {
		result["dependencies"] = cd.Deps
	}
	if all || introspectTests {
		tests, err := runner.LoadTests(buildDir)
		if err != nil {
			log.Fatal("%s\n", err)
		}
		result["tests"] = tests
	}
	if all || introspectTargets {
		result["targets"] = introspectedTargets(cd, buildDir)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatal("%s\n", err)
	}
	fmt.Fprintln(os.Stdout, string(data))
}

// introspectedTargets re-interprets the build description with the stored
// configuration. Dependency probes are served from the stored cache.
func introspectedTargets(cd *coredata.CoreData, buildDir string) []introspectTarget {
	hostMachine := loadMachineFile(cd.NativeFile)
	if cd.CrossFile != "" {
		hostMachine = loadMachineFile(cd.CrossFile)
	}
	wraps := wrap.NewResolver(cd.SourceDir, "")
	resolver := deps.NewResolver(hostMachine, wraps)
	resolver.Restore(cd.Deps)

	interp := &lang.Interpreter{
		SourceDir: cd.SourceDir,
		BuildDir:  buildDir,
		Options:   options.NewStore(),
		Deps:      resolver,
		Machine:   hostMachine,
		Wraps:     wraps,
		Saved:     cd.Options,
	}
	result, err := interp.Run()
	if err != nil {
		log.Fatal("%s\n", err)
	}

	targets := []introspectTarget{}
	for _, t := range result.Graph.Targets {
		targets = append(targets, introspectTarget{
			Name:    t.Name,
			Subdir:  t.Subdir,
			Kind:    t.Kind.String(),
			Sources: t.Sources,
			Install: t.Install,
		})
	}
	return targets
}
