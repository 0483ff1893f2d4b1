package cmd

import (
	"os"

	"github.com/mortar-build/mortar/log"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mortar",
	Short: "The mortar build system",
	Long: `Mortar configures software projects from declarative build description
files: it resolves options and dependencies, downloads wrapped subprojects,
and generates ninja files that perform the actual build.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.PersistentFlags().BoolVarP(&log.Verbose, "verbose", "v", false, "Print debug output")
	if rootCmd.Execute() != nil {
		os.Exit(1)
	}
}
