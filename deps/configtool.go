package deps

import (
	"strings"

	"github.com/mortar-build/mortar/log"
)

// configTool probes a dependency through its own <name>-config helper, the
// convention used by packages that predate pkg-config (sdl-config,
// llvm-config and friends). The machine file may pin the helper under the
// dependency name.
func (r *Resolver) configTool(name string) *Dependency {
	bin, ok := r.Machine.Binary(name + "-config")
	if !ok {
		bin = name + "-config"
	}

	version, err := runTool(bin, "--version")
	if err != nil {
		log.Debug("config-tool probe for '%s' failed: %s.\n", name, err)
		return NotFound(name)
	}

	cflags, err := runTool(bin, "--cflags")
	if err != nil {
		log.Warning("'%s --cflags' failed: %s.\n", bin, err)
		return NotFound(name)
	}
	libs, err := runTool(bin, "--libs")
	if err != nil {
		log.Warning("'%s --libs' failed: %s.\n", bin, err)
		return NotFound(name)
	}

	return &Dependency{
		Name:        name,
		Version:     version,
		CompileArgs: strings.Fields(cflags),
		LinkArgs:    strings.Fields(libs),
		Method:      "config-tool",
		found:       true,
	}
}
