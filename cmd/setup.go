package cmd

import (
	"path/filepath"

	"github.com/mortar-build/mortar/backend"
	"github.com/mortar-build/mortar/config"
	"github.com/mortar-build/mortar/coredata"
	"github.com/mortar-build/mortar/deps"
	"github.com/mortar-build/mortar/lang"
	"github.com/mortar-build/mortar/log"
	"github.com/mortar-build/mortar/machine"
	"github.com/mortar-build/mortar/options"
	"github.com/mortar-build/mortar/util"
	"github.com/mortar-build/mortar/wrap"

	"github.com/spf13/cobra"
)

var setupDefines []string
var setupNativeFile string
var setupCrossFile string
var setupReconfigure bool
var setupClearCache bool

var setupCmd = &cobra.Command{
	Use:   "setup [builddir] [sourcedir]",
	Args:  cobra.MaximumNArgs(2),
	Short: "Configures a build directory for a source tree",
	Long: `Configures a build directory for a source tree: interprets the build
description files, resolves options and dependencies, and generates the ninja
files that perform the actual build.`,
	Run: runSetup,
}

func init() {
	setupCmd.Flags().StringArrayVarP(&setupDefines, "define", "D", nil, "Set the value of a build option (name=value)")
	setupCmd.Flags().StringVar(&setupNativeFile, "native-file", "", "Machine file describing the build machine")
	setupCmd.Flags().StringVar(&setupCrossFile, "cross-file", "", "Machine file describing the host machine when cross compiling")
	setupCmd.Flags().BoolVar(&setupReconfigure, "reconfigure", false, "Reconfigure an already configured build directory")
	setupCmd.Flags().BoolVar(&setupClearCache, "clearcache", false, "Drop the cached dependency discovery results")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) {
	buildDir := "build"
	if len(args) > 0 {
		buildDir = args[0]
	}
	buildDir, err := filepath.Abs(buildDir)
	if err != nil {
		log.Fatal("Failed to resolve build directory: %s.\n", err)
	}

	var sourceDir string
	if len(args) > 1 {
		sourceDir, err = filepath.Abs(args[1])
	} else {
		sourceDir, err = util.GetSourceRoot()
	}
	if err != nil {
		log.Fatal("%s.\n", err)
	}
	if sourceDir == buildDir {
		log.Fatal("The build directory must be different from the source directory.\n")
	}

	var saved []options.SavedOption
	var savedDeps []deps.SavedDependency
	if coredata.IsConfigured(buildDir) {
		if !setupReconfigure {
			log.Fatal("Build directory '%s' is already configured. Use --reconfigure to force a new configuration.\n", buildDir)
		}
		previous, err := coredata.Load(buildDir)
		if err != nil {
			log.Fatal("%s\n", err)
		}
		saved = previous.Options
		if !setupClearCache {
			savedDeps = previous.Deps
		}
		if setupNativeFile == "" {
			setupNativeFile = previous.NativeFile
		}
		if setupCrossFile == "" {
			setupCrossFile = previous.CrossFile
		}
	}

	configureBuildDir(sourceDir, buildDir, saved, savedDeps, setupDefines)
}

// configureBuildDir runs a full configuration and writes all build directory
// state. Shared between setup and configure.
func configureBuildDir(sourceDir, buildDir string, saved []options.SavedOption, savedDeps []deps.SavedDependency, defines []string) {
	log.InitFileLog(buildDir)
	log.Log("Source dir: %s\n", sourceDir)
	log.Log("Build dir: %s\n", buildDir)

	hostMachine := loadMachineFile(setupNativeFile)
	if setupCrossFile != "" {
		hostMachine = loadMachineFile(setupCrossFile)
	}

	wraps := wrap.NewResolver(sourceDir, config.GetConfig().Mirror)
	resolver := deps.NewResolver(hostMachine, wraps)
	resolver.Restore(savedDeps)

	store := options.NewStore()
	// Machine file [paths] entries replace the builtin directory defaults but
	// lose against explicit -D values.
	if hostMachine != nil {
		for name, value := range hostMachine.Paths {
			if err := store.SetProjectDefault(name + "=" + value); err != nil {
				log.Warning("Ignoring machine file path '%s': %s.\n", name, err)
			}
		}
	}

	interp := &lang.Interpreter{
		SourceDir: sourceDir,
		BuildDir:  buildDir,
		Options:   store,
		Deps:      resolver,
		Machine:   hostMachine,
		Wraps:     wraps,
		Saved:     saved,
		Overrides: defines,
	}
	result, err := interp.Run()
	if err != nil {
		log.Fatal("%s\n", err)
	}

	cfg := &backend.Config{
		Graph:        result.Graph,
		Options:      interp.Options,
		Machine:      hostMachine,
		SourceDir:    sourceDir,
		BuildDir:     buildDir,
		BuildFiles:   result.BuildFiles,
		Tests:        result.Tests,
		ExtraInstall: result.Install,
	}
	if err := backend.Generate(cfg); err != nil {
		log.Fatal("Failed to generate build files: %s.\n", err)
	}
	if err := backend.WriteCompDB(cfg); err != nil {
		log.Fatal("Failed to write compile command database: %s.\n", err)
	}

	cd := coredata.New(sourceDir, buildDir)
	cd.ProjectName = result.ProjectName
	cd.ProjectVersion = result.ProjectVersion
	cd.NativeFile = setupNativeFile
	cd.CrossFile = setupCrossFile
	cd.Options = interp.Options.Save()
	cd.Deps = resolver.Save()
	if err := cd.Save(); err != nil {
		log.Fatal("Failed to save configuration: %s.\n", err)
	}

	log.Log("Found %d build targets.\n", len(result.Graph.Targets))
	log.Success("Build directory configured, run 'mortar compile %s' to build.\n", buildDir)
}

func loadMachineFile(filePath string) *machine.File {
	if filePath == "" {
		return nil
	}
	m, err := machine.Load(filePath)
	if err != nil {
		log.Fatal("%s\n", err)
	}
	return m
}
