// Package wrap implements vendored subprojects: .wrap files describe where
// an external project comes from (archive or git repository), how to verify
// and patch it, and which dependencies it provides.
package wrap

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Kind distinguishes the wrap flavors.
type Kind int

const (
	WrapFile Kind = iota
	WrapGit
)

func (k Kind) String() string {
	if k == WrapGit {
		return "wrap-git"
	}
	return "wrap-file"
}

// Definition is a parsed .wrap file.
type Definition struct {
	Name string
	Kind Kind

	// Directory the subproject is materialized into, relative to
	// subprojects/. Defaults to the wrap name.
	Directory string

	// [wrap-file]
	SourceURL      string
	SourceFilename string
	SourceHash     string
	PatchURL       string
	PatchFilename  string
	PatchHash      string
	PatchDirectory string

	// [wrap-git]
	GitURL   string
	Revision string
	Depth    int

	// [provide]
	DependencyNames []string
	Programs        []string
}

// ParseFile reads a .wrap file from disk. The wrap name is taken from the
// file name.
func ParseFile(filePath string) (*Definition, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	base := filePath[strings.LastIndex(filePath, "/")+1:]
	name := strings.TrimSuffix(base, ".wrap")
	return Parse(name, data)
}

// iniSection extracts one INI section as a string map. Viper's typed getters
// do not descend into INI sections, only AllSettings exposes them.
func iniSection(v *viper.Viper, name string) map[string]string {
	raw, ok := v.AllSettings()[name].(map[string]interface{})
	if !ok {
		return nil
	}
	section := make(map[string]string, len(raw))
	for key, value := range raw {
		section[key] = fmt.Sprintf("%v", value)
	}
	return section
}

// Parse decodes wrap file content.
func Parse(name string, data []byte) (*Definition, error) {
	v := viper.New()
	v.SetConfigType("ini")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse wrap file for '%s': %s", name, err)
	}

	def := &Definition{Name: name, Directory: name}

	fileSection := iniSection(v, "wrap-file")
	gitSection := iniSection(v, "wrap-git")
	switch {
	case len(fileSection) > 0 && len(gitSection) > 0:
		return nil, fmt.Errorf("wrap '%s' has both a [wrap-file] and a [wrap-git] section", name)
	case len(fileSection) > 0:
		def.Kind = WrapFile
		section := fileSection
		if dir, ok := section["directory"]; ok {
			def.Directory = dir
		}
		def.SourceURL = section["source_url"]
		def.SourceFilename = section["source_filename"]
		def.SourceHash = section["source_hash"]
		def.PatchURL = section["patch_url"]
		def.PatchFilename = section["patch_filename"]
		def.PatchHash = section["patch_hash"]
		def.PatchDirectory = section["patch_directory"]
		if def.SourceURL == "" {
			return nil, fmt.Errorf("wrap '%s' is missing source_url", name)
		}
		if def.SourceHash == "" {
			return nil, fmt.Errorf("wrap '%s' is missing source_hash", name)
		}
		if def.SourceFilename == "" {
			def.SourceFilename = def.SourceURL[strings.LastIndex(def.SourceURL, "/")+1:]
		}
		if def.PatchURL != "" && def.PatchHash == "" {
			return nil, fmt.Errorf("wrap '%s' has patch_url but no patch_hash", name)
		}
	case len(gitSection) > 0:
		def.Kind = WrapGit
		section := gitSection
		if dir, ok := section["directory"]; ok {
			def.Directory = dir
		}
		def.GitURL = section["url"]
		def.Revision = section["revision"]
		if def.GitURL == "" {
			return nil, fmt.Errorf("wrap '%s' is missing url", name)
		}
		if def.Revision == "" {
			return nil, fmt.Errorf("wrap '%s' is missing revision", name)
		}
		if depth := section["depth"]; depth != "" {
			if _, err := fmt.Sscanf(depth, "%d", &def.Depth); err != nil {
				return nil, fmt.Errorf("wrap '%s' has invalid depth '%s'", name, depth)
			}
		}
	default:
		return nil, fmt.Errorf("wrap '%s' has neither a [wrap-file] nor a [wrap-git] section", name)
	}

	provide := iniSection(v, "provide")
	if names, ok := provide["dependency_names"]; ok {
		for _, dep := range strings.Split(names, ",") {
			dep = strings.TrimSpace(dep)
			if dep != "" {
				def.DependencyNames = append(def.DependencyNames, dep)
			}
		}
	}
	if progs, ok := provide["program_names"]; ok {
		for _, prog := range strings.Split(progs, ",") {
			prog = strings.TrimSpace(prog)
			if prog != "" {
				def.Programs = append(def.Programs, prog)
			}
		}
	}

	return def, nil
}

// Provides reports whether the wrap declares the given dependency name,
// either explicitly or implicitly by its own name.
func (d *Definition) Provides(depName string) bool {
	if depName == d.Name {
		return true
	}
	for _, name := range d.DependencyNames {
		if name == depName {
			return true
		}
	}
	return false
}
