package util

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/mortar-build/mortar/log"
	"gopkg.in/yaml.v2"
)

// FileMode is the default FileMode used when creating files.
const FileMode = 0664

// DirMode is the default FileMode used when creating directories.
const DirMode = 0775

// BuildFileName is the name of the build description file in each source directory.
const BuildFileName = "build.hcl"

// OptionsFileName is the name of the file declaring project build options.
const OptionsFileName = "options.hcl"

// SubprojectsDirName is the directory that wraps and subprojects live in.
const SubprojectsDirName = "subprojects"

// PrivateDirName is the directory inside the build directory holding
// persistent configuration state.
const PrivateDirName = "mortar-private"

// FileExists checks whether some file exists.
func FileExists(file string) bool {
	stat, err := os.Stat(file)
	return err == nil && !stat.IsDir()
}

// DirExists checks whether some directory exists.
func DirExists(dir string) bool {
	stat, err := os.Stat(dir)
	return err == nil && stat.IsDir()
}

// MkdirAll creates a directory and all missing parents.
func MkdirAll(dir string) {
	if err := os.MkdirAll(dir, DirMode); err != nil {
		log.Fatal("Failed to create directory '%s': %s.\n", dir, err)
	}
}

// ReadFile returns the content of a file and aborts on failure.
func ReadFile(filePath string) []byte {
	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal("Failed to read file '%s': %s.\n", filePath, err)
	}
	return data
}

// WriteFile writes data to a file, creating parent directories as needed.
func WriteFile(filePath string, data []byte) {
	MkdirAll(path.Dir(filePath))
	if err := os.WriteFile(filePath, data, FileMode); err != nil {
		log.Fatal("Failed to write file '%s': %s.\n", filePath, err)
	}
}

// ReadYaml decodes a YAML file into `v`.
func ReadYaml(filePath string, v interface{}) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

// WriteYaml encodes `v` as YAML and writes it to a file.
func WriteYaml(filePath string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	MkdirAll(path.Dir(filePath))
	return os.WriteFile(filePath, data, FileMode)
}

// CopyFile copies a single file, preserving the given mode.
func CopyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	MkdirAll(path.Dir(dst))
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// CopyDir recursively copies the content of the `src` directory over `dst`.
// Existing files in `dst` are overwritten. Used for patch overlays.
func CopyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := path.Join(src, entry.Name())
		dstPath := path.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := os.MkdirAll(dstPath, DirMode); err != nil {
				return err
			}
			if err := CopyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if err := CopyFile(srcPath, dstPath, info.Mode()); err != nil {
			return err
		}
	}
	return nil
}

// GetSourceRoot returns the root directory of the current project, i.e., the
// topmost directory containing a build description file, starting from the
// working directory.
func GetSourceRoot() (string, error) {
	workingDir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	root := ""
	p := workingDir
	for {
		if FileExists(path.Join(p, BuildFileName)) {
			root = p
		}
		if p == "/" {
			break
		}
		p = path.Dir(p)
	}
	if root == "" {
		return "", fmt.Errorf("not inside a project: no %s found in '%s' or any parent directory", BuildFileName, workingDir)
	}
	return root, nil
}
