package backend

import (
	"fmt"
	"os"
	"os/exec"
	"path"

	"github.com/mortar-build/mortar/log"
	"github.com/mortar-build/mortar/util"
)

const installFileName = "install.yaml"

// InstallEntry describes one file to copy on install. Source is relative to
// the build directory for built outputs and absolute for source files.
// DestDir is joined onto the prefix unless it is absolute.
type InstallEntry struct {
	Source     string `yaml:"source"`
	DestDir    string `yaml:"dest_dir"`
	Executable bool   `yaml:"executable,omitempty"`
	Strip      bool   `yaml:"strip,omitempty"`
	// Rename overrides the basename of the installed file.
	Rename string `yaml:"rename,omitempty"`
}

// InstallManifest is the serialized install plan of a configuration run.
type InstallManifest struct {
	Entries []InstallEntry `yaml:"entries"`
}

func installFilePath(buildDir string) string {
	return path.Join(buildDir, util.PrivateDirName, installFileName)
}

// Save writes the manifest into the build directory.
func (m *InstallManifest) Save(buildDir string) error {
	return util.WriteYaml(installFilePath(buildDir), m)
}

// LoadInstallManifest reads the install plan of a configured build directory.
func LoadInstallManifest(buildDir string) (*InstallManifest, error) {
	var m InstallManifest
	if err := util.ReadYaml(installFilePath(buildDir), &m); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no install data in '%s', run 'mortar setup' first", buildDir)
		}
		return nil, err
	}
	return &m, nil
}

// Installer copies the manifest entries to their destinations.
type Installer struct {
	BuildDir string
	Prefix   string
	// Destdir is prepended to every destination for staged installs.
	Destdir string
	// StripBinary is the tool used for entries marked Strip, empty disables
	// stripping.
	StripBinary string
}

func (in *Installer) destination(entry InstallEntry) string {
	dir := entry.DestDir
	if !path.IsAbs(dir) {
		dir = path.Join(in.Prefix, dir)
	}
	name := entry.Rename
	if name == "" {
		name = path.Base(entry.Source)
	}
	return path.Join(in.Destdir, dir, name)
}

func (in *Installer) source(entry InstallEntry) string {
	if path.IsAbs(entry.Source) {
		return entry.Source
	}
	return path.Join(in.BuildDir, entry.Source)
}

// Install copies all entries, logging each installed file.
func (in *Installer) Install(m *InstallManifest) error {
	for _, entry := range m.Entries {
		src := in.source(entry)
		dst := in.destination(entry)

		mode := os.FileMode(util.FileMode)
		if entry.Executable {
			mode = util.DirMode
		}
		if err := util.CopyFile(src, dst, mode); err != nil {
			return fmt.Errorf("failed to install '%s': %w", dst, err)
		}
		if entry.Strip && in.StripBinary != "" {
			if out, err := exec.Command(in.StripBinary, dst).CombinedOutput(); err != nil {
				return fmt.Errorf("failed to strip '%s': %s: %s", dst, err, out)
			}
		}
		log.Log("Installing %s to %s\n", entry.Source, dst)
	}
	return nil
}
