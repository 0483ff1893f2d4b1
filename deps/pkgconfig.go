package deps

import (
	"os/exec"
	"strings"

	"github.com/mortar-build/mortar/log"
)

func (r *Resolver) pkgConfigBinary() string {
	if bin, ok := r.Machine.Binary("pkg-config"); ok {
		return bin
	}
	return "pkg-config"
}

// pkgConfig probes a dependency with pkg-config. A missing pkg-config binary
// or an unknown package both yield a not-found result; flag generation
// failures after a successful version probe are reported loudly since they
// point at a broken installation.
func (r *Resolver) pkgConfig(name string) *Dependency {
	bin := r.pkgConfigBinary()

	version, err := runTool(bin, "--modversion", name)
	if err != nil {
		log.Debug("pkg-config probe for '%s' failed: %s.\n", name, err)
		return NotFound(name)
	}

	cflags, err := runTool(bin, "--cflags", name)
	if err != nil {
		log.Warning("pkg-config could not generate cflags for '%s': %s.\n", name, err)
		return NotFound(name)
	}
	libs, err := runTool(bin, "--libs", name)
	if err != nil {
		log.Warning("pkg-config could not generate libs for '%s': %s.\n", name, err)
		return NotFound(name)
	}

	return &Dependency{
		Name:        name,
		Version:     version,
		CompileArgs: strings.Fields(cflags),
		LinkArgs:    strings.Fields(libs),
		Method:      "pkg-config",
		found:       true,
	}
}

func runTool(bin string, args ...string) (string, error) {
	out, err := exec.Command(bin, args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
