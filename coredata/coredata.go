// Package coredata holds all state that must persist over multiple
// invocations on the same build directory: option values, the dependency
// cache and the paths the configuration was created from.
package coredata

import (
	"fmt"
	"os"
	"path"

	"github.com/mortar-build/mortar/deps"
	"github.com/mortar-build/mortar/options"
	"github.com/mortar-build/mortar/util"
)

const fileName = "coredata.yaml"

// CoreData is the serialized configuration of a build directory.
type CoreData struct {
	// MortarVersion guards against loading state written by an incompatible
	// tool version.
	MortarVersion string `yaml:"mortar_version"`

	SourceDir string `yaml:"source_dir"`
	BuildDir  string `yaml:"build_dir"`

	ProjectName    string `yaml:"project_name"`
	ProjectVersion string `yaml:"project_version"`

	NativeFile string `yaml:"native_file,omitempty"`
	CrossFile  string `yaml:"cross_file,omitempty"`

	Options []options.SavedOption  `yaml:"options"`
	Deps    []deps.SavedDependency `yaml:"deps"`
}

// New creates core data for a fresh configuration.
func New(sourceDir, buildDir string) *CoreData {
	return &CoreData{
		MortarVersion: util.MortarVersion.String(),
		SourceDir:     sourceDir,
		BuildDir:      buildDir,
	}
}

func filePath(buildDir string) string {
	return path.Join(buildDir, util.PrivateDirName, fileName)
}

// IsConfigured reports whether the build directory has been set up before.
func IsConfigured(buildDir string) bool {
	return util.FileExists(filePath(buildDir))
}

// Load reads the core data of a configured build directory. State written by
// a different tool version is rejected with an error telling the user to set
// up the directory again.
func Load(buildDir string) (*CoreData, error) {
	var cd CoreData
	if err := util.ReadYaml(filePath(buildDir), &cd); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("build directory '%s' has not been configured, run 'mortar setup' first", buildDir)
		}
		return nil, fmt.Errorf("corrupted core data in '%s': %s", buildDir, err)
	}
	if cd.MortarVersion != util.MortarVersion.String() {
		return nil, fmt.Errorf(
			"build directory was configured with mortar %s, which is incompatible with the current version %s; remove it and run 'mortar setup' again",
			cd.MortarVersion, util.MortarVersion)
	}
	return &cd, nil
}

// Save writes the core data into the build directory.
func (cd *CoreData) Save() error {
	if cd.MortarVersion != util.MortarVersion.String() {
		return fmt.Errorf("fatal version mismatch corruption")
	}
	return util.WriteYaml(filePath(cd.BuildDir), cd)
}
