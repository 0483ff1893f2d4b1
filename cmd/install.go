package cmd

import (
	"github.com/mortar-build/mortar/backend"
	"github.com/mortar-build/mortar/coredata"
	"github.com/mortar-build/mortar/log"

	"github.com/spf13/cobra"
)

var installDestdir string

var installCmd = &cobra.Command{
	Use:   "install [builddir]",
	Args:  cobra.MaximumNArgs(1),
	Short: "Installs the built project",
	Long: `Installs everything the build description marked for installation
into the configured prefix. With --destdir the whole tree is staged under
another root, as used by package builds.`,
	Run: runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installDestdir, "destdir", "", "Stage the installation under this directory")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) {
	buildDir := buildDirArg(args)
	cd, err := coredata.Load(buildDir)
	if err != nil {
		log.Fatal("%s\n", err)
	}
	manifest, err := backend.LoadInstallManifest(buildDir)
	if err != nil {
		log.Fatal("%s\n", err)
	}

	if err := runNinja(buildDir, nil); err != nil {
		log.Fatal("Build failed, not installing: %s.\n", err)
	}

	prefix := "/usr/local"
	for _, opt := range cd.Options {
		if opt.Name == "prefix" {
			prefix = opt.Value
		}
	}

	installer := &backend.Installer{
		BuildDir:    buildDir,
		Prefix:      prefix,
		Destdir:     installDestdir,
		StripBinary: stripBinary(cd),
	}
	if err := installer.Install(manifest); err != nil {
		log.Fatal("%s\n", err)
	}
	log.Success("Installed %d files.\n", len(manifest.Entries))
}

func stripBinary(cd *coredata.CoreData) string {
	m := loadMachineFile(cd.NativeFile)
	if cd.CrossFile != "" {
		m = loadMachineFile(cd.CrossFile)
	}
	if bin, ok := m.Binary("strip"); ok {
		return bin
	}
	return "strip"
}
