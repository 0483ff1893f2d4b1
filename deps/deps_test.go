package deps

import (
	"os"
	"path"
	"testing"

	"github.com/mortar-build/mortar/machine"
)

// fakePkgConfig writes a pkg-config stand-in that knows exactly one package.
func fakePkgConfig(t *testing.T, pkg, version, cflags, libs string) string {
	t.Helper()
	script := "#!/bin/sh\n" +
		"case \"$1\" in\n" +
		"--modversion) [ \"$2\" = \"" + pkg + "\" ] && echo \"" + version + "\" || exit 1 ;;\n" +
		"--cflags) echo \"" + cflags + "\" ;;\n" +
		"--libs) echo \"" + libs + "\" ;;\n" +
		"*) exit 1 ;;\n" +
		"esac\n"
	scriptPath := path.Join(t.TempDir(), "pkg-config")
	if err := os.WriteFile(scriptPath, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return scriptPath
}

func machineWith(binaries map[string]string) *machine.File {
	return &machine.File{Binaries: binaries}
}

func TestPkgConfigResolution(t *testing.T) {
	pc := fakePkgConfig(t, "zlib", "1.2.11", "-I/usr/include", "-lz")
	r := NewResolver(machineWith(map[string]string{"pkg-config": pc}), nil)

	dep, err := r.Resolve(Query{Name: "zlib", Required: true})
	if err != nil {
		t.Fatal(err)
	}
	if !dep.Found() {
		t.Fatal("dependency not found")
	}
	if dep.Version != "1.2.11" {
		t.Fatalf("unexpected version %q", dep.Version)
	}
	if len(dep.CompileArgs) != 1 || dep.CompileArgs[0] != "-I/usr/include" {
		t.Fatalf("unexpected cflags %v", dep.CompileArgs)
	}
	if len(dep.LinkArgs) != 1 || dep.LinkArgs[0] != "-lz" {
		t.Fatalf("unexpected libs %v", dep.LinkArgs)
	}
	if dep.Method != "pkg-config" {
		t.Fatalf("unexpected method %q", dep.Method)
	}
}

func TestOptionalNotFound(t *testing.T) {
	// An empty PATH keeps the config-tool probe from picking up a real
	// libpng-config on the host.
	t.Setenv("PATH", t.TempDir())
	pc := fakePkgConfig(t, "zlib", "1.2.11", "", "")
	r := NewResolver(machineWith(map[string]string{"pkg-config": pc}), nil)

	dep, err := r.Resolve(Query{Name: "libpng", Required: false})
	if err != nil {
		t.Fatal(err)
	}
	if dep.Found() {
		t.Fatal("nonexistent dependency reported as found")
	}
}

func TestRequiredNotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	pc := fakePkgConfig(t, "zlib", "1.2.11", "", "")
	r := NewResolver(machineWith(map[string]string{"pkg-config": pc}), nil)

	if _, err := r.Resolve(Query{Name: "libpng", Required: true}); err == nil {
		t.Fatal("required missing dependency did not error")
	}
}

func TestVersionConstraint(t *testing.T) {
	pc := fakePkgConfig(t, "zlib", "1.2.11", "-I/x", "-lz")
	r := NewResolver(machineWith(map[string]string{"pkg-config": pc}), nil)

	if _, err := r.Resolve(Query{Name: "zlib", Version: ">=2.0", Required: true}); err == nil {
		t.Fatal("unsatisfied version constraint accepted")
	}

	dep, err := r.Resolve(Query{Name: "zlib", Version: ">=2.0"})
	if err != nil {
		t.Fatal(err)
	}
	if dep.Found() {
		t.Fatal("optional dependency with unsatisfied constraint reported as found")
	}

	dep, err = r.Resolve(Query{Name: "zlib", Version: ">=1.2", Required: true})
	if err != nil {
		t.Fatal(err)
	}
	if !dep.Found() {
		t.Fatal("satisfied constraint rejected")
	}
}

func TestCaching(t *testing.T) {
	pc := fakePkgConfig(t, "zlib", "1.2.11", "-I/x", "-lz")
	r := NewResolver(machineWith(map[string]string{"pkg-config": pc}), nil)

	if _, err := r.Resolve(Query{Name: "zlib", Required: true}); err != nil {
		t.Fatal(err)
	}

	// Remove the probe binary; a second resolution must come from the cache.
	if err := os.Remove(pc); err != nil {
		t.Fatal(err)
	}
	dep, err := r.Resolve(Query{Name: "zlib", Required: true})
	if err != nil {
		t.Fatal(err)
	}
	if !dep.Found() {
		t.Fatal("cached dependency not found")
	}

	r.ClearCache()
	if _, err := r.Resolve(Query{Name: "zlib", Required: true}); err == nil {
		t.Fatal("cleared cache still served the dependency")
	}
}

func TestSaveRestore(t *testing.T) {
	pc := fakePkgConfig(t, "zlib", "1.2.11", "-I/x", "-lz")
	r := NewResolver(machineWith(map[string]string{"pkg-config": pc}), nil)
	if _, err := r.Resolve(Query{Name: "zlib", Required: true}); err != nil {
		t.Fatal(err)
	}
	saved := r.Save()
	if len(saved) != 1 || saved[0].Name != "zlib" {
		t.Fatalf("unexpected saved cache %v", saved)
	}

	fresh := NewResolver(machineWith(nil), nil)
	fresh.Restore(saved)
	dep, err := fresh.Resolve(Query{Name: "zlib", Required: true})
	if err != nil {
		t.Fatal(err)
	}
	if !dep.Found() || dep.Version != "1.2.11" {
		t.Fatal("restored cache entry lost")
	}
}

func TestConfigTool(t *testing.T) {
	script := "#!/bin/sh\n" +
		"case \"$1\" in\n" +
		"--version) echo 5.6.0 ;;\n" +
		"--cflags) echo -I/opt/foo/include ;;\n" +
		"--libs) echo -lfoo ;;\n" +
		"*) exit 1 ;;\n" +
		"esac\n"
	scriptPath := path.Join(t.TempDir(), "foo-config")
	if err := os.WriteFile(scriptPath, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(machineWith(map[string]string{"foo-config": scriptPath}), nil)
	dep, err := r.Resolve(Query{Name: "foo", Required: true})
	if err != nil {
		t.Fatal(err)
	}
	if !dep.Found() || dep.Method != "config-tool" {
		t.Fatalf("config-tool resolution failed: %+v", dep)
	}
	if dep.Version != "5.6.0" {
		t.Fatalf("unexpected version %q", dep.Version)
	}
}

func TestOverrides(t *testing.T) {
	r := NewResolver(machineWith(nil), nil)
	if err := r.RegisterOverride("mylib", Declared("mylib", "0.1", []string{"-Isub"}, []string{"-lmylib"})); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterOverride("mylib", Declared("mylib", "0.2", nil, nil)); err == nil {
		t.Fatal("duplicate override accepted")
	}

	dep, err := r.Resolve(Query{Name: "mylib", Required: true})
	if err != nil {
		t.Fatal(err)
	}
	if !dep.Found() || dep.Method != "declared" {
		t.Fatalf("override not used: %+v", dep)
	}
}

func TestFallbackConfiguresSubproject(t *testing.T) {
	r := NewResolver(machineWith(nil), nil)
	configured := ""
	r.ConfigureSubproject = func(wrapName string) error {
		configured = wrapName
		return r.RegisterOverride("bar", Declared("bar", "2.0", nil, []string{"-lbar"}))
	}

	dep, err := r.Resolve(Query{Name: "bar", Required: true, Fallback: "bar-wrap"})
	if err != nil {
		t.Fatal(err)
	}
	if configured != "bar-wrap" {
		t.Fatalf("subproject not configured, got %q", configured)
	}
	if !dep.Found() || dep.Method != "declared" {
		t.Fatalf("fallback dependency not used: %+v", dep)
	}
}
