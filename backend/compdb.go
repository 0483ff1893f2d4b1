package backend

import (
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/mortar-build/mortar/graph"
	"github.com/mortar-build/mortar/util"
)

// CompDBFileName is the clang-style compile command database, consumed by
// language servers and static analyzers.
const CompDBFileName = "compile_commands.json"

type compDBEntry struct {
	Directory string `json:"directory"`
	Command   string `json:"command"`
	File      string `json:"file"`
	Output    string `json:"output"`
}

// WriteCompDB emits compile_commands.json with one entry per compiled source,
// matching the commands in the generated ninja file.
func WriteCompDB(cfg *Config) error {
	g := &generator{cfg: cfg}

	entries := []compDBEntry{}
	for _, t := range cfg.Graph.Targets {
		if !t.Linkable() && t.Kind != graph.Executable {
			continue
		}
		args := strings.Join(g.compileArgs(t), " ")
		for _, src := range t.Sources {
			if !compilable(src) {
				continue
			}
			obj := g.objectPath(t, src)
			file := g.sourcePath(t, src)
			entries = append(entries, compDBEntry{
				Directory: cfg.BuildDir,
				Command:   strings.TrimSpace(g.compiler() + " " + args + " -c " + file + " -o " + obj),
				File:      file,
				Output:    obj,
			})
		}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path.Join(cfg.BuildDir, CompDBFileName), data, util.FileMode)
}
