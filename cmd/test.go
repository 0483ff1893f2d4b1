package cmd

import (
	"context"
	"os"
	"os/signal"
	"path"
	"path/filepath"

	"github.com/mortar-build/mortar/log"
	"github.com/mortar-build/mortar/runner"
	"github.com/mortar-build/mortar/util"

	"github.com/spf13/cobra"
)

var testSuite string
var testJobs int
var testList bool
var testNoRebuild bool
var testTimeoutMultiplier float64

var testCmd = &cobra.Command{
	Use: "test [builddir] [names...]",
	Short: "Runs the tests of a configured build directory",
	Long: `Runs the tests registered in the build description. Targets are
rebuilt first so tests always run against current binaries.`,
	Run: runTest,
}

func init() {
	testCmd.Flags().StringVar(&testSuite, "suite", "", "Only run tests of the given suite")
	testCmd.Flags().IntVarP(&testJobs, "jobs", "j", 0, "Number of tests to run in parallel")
	testCmd.Flags().BoolVar(&testList, "list", false, "List tests instead of running them")
	testCmd.Flags().BoolVar(&testNoRebuild, "no-rebuild", false, "Do not rebuild before running tests")
	testCmd.Flags().Float64Var(&testTimeoutMultiplier, "timeout-multiplier", 0, "Scale all test timeouts by this factor")
	rootCmd.AddCommand(testCmd)
}

// splitTestArgs separates the optional build directory argument from test
// names. The first argument counts as the build directory only when it is a
// configured one, so 'mortar test mytest' selects a test.
func splitTestArgs(args []string) (string, []string) {
	if len(args) > 0 && util.DirExists(path.Join(args[0], util.PrivateDirName)) {
		return args[0], args[1:]
	}
	return "build", args
}

func runTest(cmd *cobra.Command, args []string) {
	buildDir, names := splitTestArgs(args)
	buildDir, err := filepath.Abs(buildDir)
	if err != nil {
		log.Fatal("Failed to resolve build directory: %s.\n", err)
	}
	tests, err := runner.LoadTests(buildDir)
	if err != nil {
		log.Fatal("%s\n", err)
	}

	if testList {
		for _, test := range tests {
			suite := test.Suite
			if suite == "" {
				suite = "main"
			}
			log.Log("%-40s %s\n", test.Name, suite)
		}
		return
	}

	if !testNoRebuild {
		if err := runNinja(buildDir, nil); err != nil {
			log.Fatal("Build failed, not running tests: %s.\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := &runner.Runner{
		BuildDir:          buildDir,
		Jobs:              testJobs,
		Suite:             testSuite,
		Names:             names,
		TimeoutMultiplier: testTimeoutMultiplier,
	}
	results, err := r.Run(ctx, tests)
	if err != nil {
		log.Fatal("%s\n", err)
	}
	if !runner.Summarize(results) {
		os.Exit(1)
	}
}
