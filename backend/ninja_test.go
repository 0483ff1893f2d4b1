package backend

import (
	"os"
	"path"
	"strings"
	"testing"

	"github.com/mortar-build/mortar/graph"
	"github.com/mortar-build/mortar/machine"
	"github.com/mortar-build/mortar/options"
	"github.com/mortar-build/mortar/runner"
)

func testConfig(t *testing.T, build func(b *graph.Builder)) *Config {
	t.Helper()
	b := graph.NewBuilder()
	build(b)
	g, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	return &Config{
		Graph:      g,
		Options:    options.NewStore(),
		Machine:    &machine.File{Binaries: map[string]string{"c": "gcc"}},
		SourceDir:  "/src/proj",
		BuildDir:   t.TempDir(),
		BuildFiles: []string{"/src/proj/build.hcl"},
	}
}

func mustAdd(t *testing.T, b *graph.Builder, target *graph.Target) {
	t.Helper()
	if err := b.AddTarget(target); err != nil {
		t.Fatal(err)
	}
}

func generateNinja(t *testing.T, cfg *Config) string {
	t.Helper()
	if err := Generate(cfg); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path.Join(cfg.BuildDir, NinjaFileName))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestGenerateExecutable(t *testing.T) {
	cfg := testConfig(t, func(b *graph.Builder) {
		mustAdd(t, b, &graph.Target{
			Name: "core", Kind: graph.StaticLibrary, Sources: []string{"core.c"},
		})
		mustAdd(t, b, &graph.Target{
			Name: "app", Kind: graph.Executable, Sources: []string{"main.c"},
			LinkWith: []string{"core"}, Install: true,
		})
	})
	content := generateNinja(t, cfg)

	for _, want := range []string{
		"cc = gcc",
		"rule c_COMPILER",
		"rule c_LINKER",
		"rule STATIC_LINKER",
		"build libcore.a:",
		"build app: c_LINKER",
		"default all",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("generated file missing %q:\n%s", want, content)
		}
	}

	// The static library is an implicit input of the link and appears in the
	// link arguments.
	if !strings.Contains(content, "| libcore.a") {
		t.Fatalf("link does not depend on library:\n%s", content)
	}

	// Debug buildtype is the default.
	if !strings.Contains(content, "-g") {
		t.Fatalf("debug flags missing:\n%s", content)
	}
}

func TestGenerateRegenerateRule(t *testing.T) {
	cfg := testConfig(t, func(b *graph.Builder) {
		mustAdd(t, b, &graph.Target{Name: "app", Kind: graph.Executable, Sources: []string{"main.c"}})
	})
	content := generateNinja(t, cfg)

	if !strings.Contains(content, "rule REGENERATE_BUILD") {
		t.Fatalf("regenerate rule missing:\n%s", content)
	}
	if !strings.Contains(content, "build build.ninja: REGENERATE_BUILD /src/proj/build.hcl") {
		t.Fatalf("build file not an input of regeneration:\n%s", content)
	}
	if !strings.Contains(content, "generator = 1") {
		t.Fatalf("regenerate rule not marked as generator:\n%s", content)
	}
}

func TestGenerateCustomTarget(t *testing.T) {
	cfg := testConfig(t, func(b *graph.Builder) {
		mustAdd(t, b, &graph.Target{
			Name: "gen", Kind: graph.CustomTarget,
			Sources: []string{"gen.py"},
			Command: []string{"python3", "@INPUT@", "-o", "@OUTPUT@", "--root", "@SOURCE_ROOT@"},
			Outputs: []string{"gen.c"},
		})
	})
	content := generateNinja(t, cfg)

	if !strings.Contains(content, "rule CUSTOM_gen") {
		t.Fatalf("custom rule missing:\n%s", content)
	}
	if !strings.Contains(content, "python3 /src/proj/gen.py -o gen.c --root /src/proj") {
		t.Fatalf("placeholders not substituted:\n%s", content)
	}
	if !strings.Contains(content, "build gen.c: CUSTOM_gen /src/proj/gen.py") {
		t.Fatalf("custom build statement missing:\n%s", content)
	}
}

func TestGenerateRunTarget(t *testing.T) {
	cfg := testConfig(t, func(b *graph.Builder) {
		mustAdd(t, b, &graph.Target{
			Name: "lint", Kind: graph.RunTarget,
			Command: []string{"scripts/lint.sh"}, AlwaysRun: true,
		})
	})
	content := generateNinja(t, cfg)

	if !strings.Contains(content, "rule RUN_lint") {
		t.Fatalf("run rule missing:\n%s", content)
	}
	// Run targets must not become prerequisites of 'all'.
	if strings.Contains(content, "build all: phony lint") {
		t.Fatalf("run target wired into all:\n%s", content)
	}
}

func TestGenerateBuildtypeAndWerror(t *testing.T) {
	cfg := testConfig(t, func(b *graph.Builder) {
		mustAdd(t, b, &graph.Target{Name: "app", Kind: graph.Executable, Sources: []string{"main.c"}})
	})
	if err := cfg.Options.SetAll([]string{"buildtype=release", "werror=true"}); err != nil {
		t.Fatal(err)
	}
	content := generateNinja(t, cfg)

	if !strings.Contains(content, "-O3") || !strings.Contains(content, "-Werror") {
		t.Fatalf("release and werror flags missing:\n%s", content)
	}
	if strings.Contains(content, "ARGS = -g\n") {
		t.Fatalf("debug flags present in release build:\n%s", content)
	}
}

func TestGenerateInstallManifest(t *testing.T) {
	cfg := testConfig(t, func(b *graph.Builder) {
		mustAdd(t, b, &graph.Target{
			Name: "app", Kind: graph.Executable, Sources: []string{"main.c"}, Install: true,
		})
		mustAdd(t, b, &graph.Target{
			Name: "core", Kind: graph.SharedLibrary, Sources: []string{"core.c"},
			Install: true, InstallDir: "lib/custom",
		})
		mustAdd(t, b, &graph.Target{
			Name: "internal", Kind: graph.Executable, Sources: []string{"x.c"},
		})
	})
	cfg.ExtraInstall = []InstallEntry{{Source: "/src/proj/api.h", DestDir: "include"}}
	if err := Generate(cfg); err != nil {
		t.Fatal(err)
	}

	m, err := LoadInstallManifest(cfg.BuildDir)
	if err != nil {
		t.Fatal(err)
	}
	bySource := map[string]InstallEntry{}
	for _, entry := range m.Entries {
		bySource[entry.Source] = entry
	}
	if len(m.Entries) != 3 {
		t.Fatalf("expected 3 install entries, got %+v", m.Entries)
	}
	if entry := bySource["app"]; entry.DestDir != "bin" || !entry.Executable {
		t.Fatalf("unexpected executable entry %+v", entry)
	}
	if entry := bySource["libcore.so"]; entry.DestDir != "lib/custom" {
		t.Fatalf("install_dir override ignored: %+v", entry)
	}
	if _, ok := bySource["/src/proj/api.h"]; !ok {
		t.Fatal("extra install entry lost")
	}
}

func TestGenerateRecordsTests(t *testing.T) {
	cfg := testConfig(t, func(b *graph.Builder) {
		mustAdd(t, b, &graph.Target{Name: "app", Kind: graph.Executable, Sources: []string{"main.c"}})
	})
	cfg.Tests = []runner.Test{{Name: "smoke", Command: []string{"./app"}}}
	if err := Generate(cfg); err != nil {
		t.Fatal(err)
	}

	tests, err := runner.LoadTests(cfg.BuildDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(tests) != 1 || tests[0].Name != "smoke" {
		t.Fatalf("unexpected test list %+v", tests)
	}
}

func TestEscaping(t *testing.T) {
	if got := escapePath("a b:c$d"); got != "a$ b$:c$$d" {
		t.Fatalf("unexpected escaped path %q", got)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("newline in value not rejected")
		}
	}()
	escapeValue("a\nb")
}
