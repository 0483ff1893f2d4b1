package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/mortar-build/mortar/config"
	"github.com/mortar-build/mortar/coredata"
	"github.com/mortar-build/mortar/log"

	"github.com/spf13/cobra"
)

var compileJobs int

var compileCmd = &cobra.Command{
	Use:   "compile [builddir] [targets...]",
	Short: "Builds a configured build directory",
	Long: `Builds all targets, or the named targets, of a configured build
directory by invoking ninja on the generated build files.`,
	Run: runCompile,
}

func init() {
	compileCmd.Flags().IntVarP(&compileJobs, "jobs", "j", 0, "Number of parallel build jobs")
	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) {
	buildDir := buildDirArg(args)
	if _, err := coredata.Load(buildDir); err != nil {
		log.Fatal("%s\n", err)
	}

	var targets []string
	if len(args) > 1 {
		targets = args[1:]
	}
	if err := runNinja(buildDir, targets); err != nil {
		log.Fatal("Build failed: %s.\n", err)
	}
	log.Success("Done.\n")
}

// runNinja invokes ninja on a configured build directory, streaming its
// output through.
func runNinja(buildDir string, targets []string) error {
	jobs := compileJobs
	if jobs == 0 {
		jobs = config.GetConfig().Jobs
	}

	ninjaArgs := []string{"-C", buildDir}
	if jobs > 0 {
		ninjaArgs = append(ninjaArgs, "-j", fmt.Sprintf("%d", jobs))
	}
	ninjaArgs = append(ninjaArgs, targets...)

	ninja := exec.Command("ninja", ninjaArgs...)
	ninja.Stdout = os.Stdout
	ninja.Stderr = os.Stderr
	ninja.Stdin = os.Stdin
	return ninja.Run()
}
