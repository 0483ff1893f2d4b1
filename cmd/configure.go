package cmd

import (
	"path/filepath"

	"github.com/mortar-build/mortar/coredata"
	"github.com/mortar-build/mortar/log"

	"github.com/spf13/cobra"
)

var configureDefines []string

var configureCmd = &cobra.Command{
	Use:   "configure [builddir]",
	Args:  cobra.MaximumNArgs(1),
	Short: "Shows or changes the options of a configured build directory",
	Long: `Shows the current option values of a configured build directory.
With -D assignments the directory is reconfigured with the new values.`,
	Run: runConfigure,
}

func init() {
	configureCmd.Flags().StringArrayVarP(&configureDefines, "define", "D", nil, "Set the value of a build option (name=value)")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) {
	buildDir := buildDirArg(args)
	cd, err := coredata.Load(buildDir)
	if err != nil {
		log.Fatal("%s\n", err)
	}

	if len(configureDefines) == 0 {
		log.Log("Options of %s:\n", buildDir)
		for _, opt := range cd.Options {
			log.Log("  %-24s %s\n", opt.Name, opt.Value)
		}
		return
	}

	setupNativeFile = cd.NativeFile
	setupCrossFile = cd.CrossFile
	configureBuildDir(cd.SourceDir, buildDir, cd.Options, cd.Deps, configureDefines)
}

// buildDirArg resolves the optional build directory argument common to all
// commands operating on a configured directory.
func buildDirArg(args []string) string {
	buildDir := "build"
	if len(args) > 0 {
		buildDir = args[0]
	}
	abs, err := filepath.Abs(buildDir)
	if err != nil {
		log.Fatal("Failed to resolve build directory: %s.\n", err)
	}
	return abs
}
