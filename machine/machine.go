// Package machine reads native and cross machine files: INI files with
// [constants], [binaries], [paths] and [properties] sections describing the
// build or host machine.
package machine

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// File is a fully resolved machine file. Constants have already been
// substituted into the other sections.
type File struct {
	Constants  map[string]string
	Binaries   map[string]string
	Paths      map[string]string
	Properties map[string]string
}

var constantRef = regexp.MustCompile(`@([a-zA-Z_][a-zA-Z0-9_]*)@`)

// Load reads and resolves a machine file.
func Load(filePath string) (*File, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine file: %s", err)
	}
	return Parse(data)
}

// Parse resolves machine file content. [constants] entries are substituted
// into all other sections via @name@ references; referencing an undefined
// constant is an error.
func Parse(data []byte) (*File, error) {
	v := viper.New()
	v.SetConfigType("ini")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse machine file: %s", err)
	}

	file := &File{
		Constants:  iniSection(v, "constants"),
		Binaries:   iniSection(v, "binaries"),
		Paths:      iniSection(v, "paths"),
		Properties: iniSection(v, "properties"),
	}

	// Constants may reference earlier constants. A bounded number of passes
	// is enough since each pass resolves at least one level of nesting.
	for i := 0; i < len(file.Constants)+1; i++ {
		changed := false
		for key, value := range file.Constants {
			resolved, err := file.substitute(value)
			if err != nil {
				return nil, err
			}
			if resolved != value {
				file.Constants[key] = resolved
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	for _, section := range []map[string]string{file.Binaries, file.Paths, file.Properties} {
		for key, value := range section {
			resolved, err := file.substitute(value)
			if err != nil {
				return nil, err
			}
			section[key] = resolved
		}
	}
	return file, nil
}

// iniSection extracts one INI section as a string map. Viper's typed getters
// do not descend into INI sections, only AllSettings exposes them. Keys come
// back lowercased.
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

func (f *File) substitute(value string) (string, error) {
	var missing string
	result := constantRef.ReplaceAllStringFunc(value, func(ref string) string {
		// Constant keys are stored lowercased, references match
		// case-insensitively.
		name := strings.ToLower(ref[1 : len(ref)-1])
		if resolved, ok := f.Constants[name]; ok {
			return resolved
		}
		missing = ref[1 : len(ref)-1]
		return ref
	})
	if missing != "" {
		return "", fmt.Errorf("machine file references undefined constant '%s'", missing)
	}
	return result, nil
}

// Binary returns the configured path for a tool such as "c" or "pkg-config".
func (f *File) Binary(name string) (string, bool) {
	if f == nil {
		return "", false
	}
	bin, ok := f.Binaries[name]
	return bin, ok
}

// Property returns a free-form property value.
func (f *File) Property(name string) (string, bool) {
	if f == nil {
		return "", false
	}
	prop, ok := f.Properties[name]
	return prop, ok
}

// Path returns a directory override such as "prefix" or "libdir".
func (f *File) Path(name string) (string, bool) {
	if f == nil {
		return "", false
	}
	p, ok := f.Paths[name]
	return p, ok
}
