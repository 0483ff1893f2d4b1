package cmd

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"path"

	"github.com/mortar-build/mortar/config"
	"github.com/mortar-build/mortar/log"
	"github.com/mortar-build/mortar/util"

	"github.com/spf13/cobra"
)

var subprojectsJobs int

var subprojectsCmd = &cobra.Command{
	Use:   "subprojects",
	Short: "Manages the subprojects of the current project",
	Long: `Manages the subprojects of the current project: downloading and
updating wrapped subprojects and running commands across all of them.`,
}

var subprojectsDownloadCmd = &cobra.Command{
	Use:   "download",
	Args:  cobra.NoArgs,
	Short: "Downloads all wrapped subprojects",
	Long:  `Downloads all wrapped subprojects up front so later configuration runs work offline.`,
	Run:   runSubprojectsDownload,
}

var subprojectsUpdateCmd = &cobra.Command{
	Use:   "update [names...]",
	Short: "Updates downloaded subprojects to their wrap definitions",
	Long:  `Updates downloaded subprojects to the revisions named in their wrap files.`,
	Run:   runSubprojectsUpdate,
}

var subprojectsForeachCmd = &cobra.Command{
	Use:   "foreach <command> [args...]",
	Args:  cobra.MinimumNArgs(1),
	Short: "Runs a command in each subproject directory",
	Long:  `Runs a command in each downloaded subproject directory.`,
	Run:   runSubprojectsForeach,
}

func init() {
	subprojectsDownloadCmd.Flags().IntVarP(&subprojectsJobs, "jobs", "j", 4, "Number of parallel downloads")
	subprojectsCmd.AddCommand(subprojectsDownloadCmd)
	subprojectsCmd.AddCommand(subprojectsUpdateCmd)
	subprojectsCmd.AddCommand(subprojectsForeachCmd)
	rootCmd.AddCommand(subprojectsCmd)
}

func runSubprojectsDownload(cmd *cobra.Command, args []string) {
	wraps := projectWraps()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	jobs := subprojectsJobs
	if jobs <= 0 {
		jobs = config.GetConfig().Jobs
	}
	if err := wraps.ResolveAll(ctx, jobs); err != nil {
		log.Fatal("%s\n", err)
	}
	log.Success("Done.\n")
}

func runSubprojectsUpdate(cmd *cobra.Command, args []string) {
	wraps := projectWraps()
	names := args
	if len(names) == 0 {
		names = wraps.List()
	}

	for _, name := range names {
		log.IndentationLevel = 0
		log.Log("Updating subproject '%s'.\n", name)
		log.IndentationLevel = 1
		if err := wraps.Update(name); err != nil {
			log.Fatal("%s\n", err)
		}
	}
	log.IndentationLevel = 0
	log.Success("Done.\n")
}

func runSubprojectsForeach(cmd *cobra.Command, args []string) {
	wraps := projectWraps()
	failed := 0
	for _, name := range wraps.List() {
		def, err := wraps.Load(name)
		if err != nil {
			log.Fatal("%s\n", err)
		}
		dir := path.Join(wraps.SubprojectsDir, def.Directory)
		if !util.DirExists(dir) {
			continue
		}

		log.IndentationLevel = 0
		log.Log("\nEntering subproject '%s'.\n", name)
		log.IndentationLevel = 1
		sub := exec.Command(args[0], args[1:]...)
		sub.Dir = dir
		sub.Stdout = os.Stdout
		sub.Stderr = os.Stderr
		if err := sub.Run(); err != nil {
			log.Error("Command failed: %s.\n", err)
			failed++
		}
	}
	log.IndentationLevel = 0
	if failed > 0 {
		log.Fatal("Command failed in %d subprojects.\n", failed)
	}
	log.Success("Done.\n")
}
