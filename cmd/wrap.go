package cmd

import (
	"path"

	"github.com/mortar-build/mortar/config"
	"github.com/mortar-build/mortar/log"
	"github.com/mortar-build/mortar/util"
	"github.com/mortar-build/mortar/wrap"

	"github.com/spf13/cobra"
)

var wrapCmd = &cobra.Command{
	Use:   "wrap",
	Short: "Manages wrap files for external subprojects",
	Long: `Manages the wrap files in the subprojects directory, which describe
where external subprojects are downloaded from.`,
}

var wrapListCmd = &cobra.Command{
	Use:   "list",
	Args:  cobra.NoArgs,
	Short: "Lists all wraps of the project",
	Long:  `Lists all wraps of the project.`,
	Run:   runWrapList,
}

var wrapStatusCmd = &cobra.Command{
	Use:   "status",
	Args:  cobra.NoArgs,
	Short: "Shows which wraps have been downloaded",
	Long:  `Shows which wraps have been downloaded.`,
	Run:   runWrapStatus,
}

var wrapInstallCmd = &cobra.Command{
	Use:   "install <name>",
	Args:  cobra.ExactArgs(1),
	Short: "Installs a wrap file from the configured mirror",
	Long:  `Installs a wrap file from the configured mirror into the subprojects directory.`,
	Run:   runWrapInstall,
}

func init() {
	wrapCmd.AddCommand(wrapListCmd)
	wrapCmd.AddCommand(wrapStatusCmd)
	wrapCmd.AddCommand(wrapInstallCmd)
	rootCmd.AddCommand(wrapCmd)
}

func projectWraps() *wrap.Resolver {
	sourceDir, err := util.GetSourceRoot()
	if err != nil {
		log.Fatal("%s.\n", err)
	}
	return wrap.NewResolver(sourceDir, config.GetConfig().Mirror)
}

func runWrapList(cmd *cobra.Command, args []string) {
	for _, name := range projectWraps().List() {
		log.Log("%s\n", name)
	}
}

func runWrapStatus(cmd *cobra.Command, args []string) {
	wraps := projectWraps()
	for _, name := range wraps.List() {
		def, err := wraps.Load(name)
		if err != nil {
			log.Error("%-24s broken: %s\n", name, err)
			continue
		}
		state := "not downloaded"
		if util.DirExists(path.Join(wraps.SubprojectsDir, def.Directory)) {
			state = "downloaded"
		}
		log.Log("%-24s %s\n", name, state)
	}
}

func runWrapInstall(cmd *cobra.Command, args []string) {
	wraps := projectWraps()
	if err := wraps.InstallFromMirror(args[0]); err != nil {
		log.Fatal("%s\n", err)
	}
	log.Success("Installed wrap '%s'.\n", args[0])
}
