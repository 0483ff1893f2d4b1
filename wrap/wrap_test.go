package wrap

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"testing"
)

const sampleWrapFile = `
[wrap-file]
directory = zlib-1.2.11
source_url = https://example.com/zlib-1.2.11.tar.gz
source_filename = zlib-1.2.11.tar.gz
source_hash = abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789

[provide]
dependency_names = zlib, libz
`

const sampleWrapGit = `
[wrap-git]
url = https://example.com/sqlite.git
revision = v3.36.0
depth = 1
`

func TestParseWrapFile(t *testing.T) {
	def, err := Parse("zlib", []byte(sampleWrapFile))
	if err != nil {
		t.Fatal(err)
	}
	if def.Kind != WrapFile {
		t.Fatal("wrong kind")
	}
	if def.Directory != "zlib-1.2.11" {
		t.Fatalf("unexpected directory %q", def.Directory)
	}
	if def.SourceFilename != "zlib-1.2.11.tar.gz" {
		t.Fatalf("unexpected filename %q", def.SourceFilename)
	}
	if len(def.DependencyNames) != 2 || def.DependencyNames[0] != "zlib" || def.DependencyNames[1] != "libz" {
		t.Fatalf("unexpected dependency names %v", def.DependencyNames)
	}
}

func TestParseWrapGit(t *testing.T) {
	def, err := Parse("sqlite", []byte(sampleWrapGit))
	if err != nil {
		t.Fatal(err)
	}
	if def.Kind != WrapGit {
		t.Fatal("wrong kind")
	}
	if def.Revision != "v3.36.0" {
		t.Fatalf("unexpected revision %q", def.Revision)
	}
	if def.Depth != 1 {
		t.Fatalf("unexpected depth %d", def.Depth)
	}
	// Directory defaults to the wrap name.
	if def.Directory != "sqlite" {
		t.Fatalf("unexpected directory %q", def.Directory)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":       "[provide]\ndependency_names = x\n",
		"no url":      "[wrap-file]\nsource_hash = aa\n",
		"no hash":     "[wrap-file]\nsource_url = https://example.com/a.tar.gz\n",
		"no revision": "[wrap-git]\nurl = https://example.com/a.git\n",
		"both kinds":  "[wrap-file]\nsource_url = u\nsource_hash = h\n[wrap-git]\nurl = u\nrevision = r\n",
	}
	for name, content := range cases {
		if _, err := Parse("bad", []byte(content)); err == nil {
			t.Errorf("case %q: malformed wrap accepted", name)
		}
	}
}

func TestProvides(t *testing.T) {
	def, err := Parse("zlib", []byte(sampleWrapFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"zlib", "libz"} {
		if !def.Provides(name) {
			t.Errorf("should provide %q", name)
		}
	}
	if def.Provides("libpng") {
		t.Error("should not provide libpng")
	}
}

// makeArchive builds an in-memory tar.gz with the given files, all under
// `root`.
func makeArchive(t *testing.T, root string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	if err := tw.WriteHeader(&tar.Header{Name: root + "/", Typeflag: tar.TypeDir, Mode: 0775}); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		hdr := &tar.Header{Name: root + "/" + name, Typeflag: tar.TypeReg, Mode: 0664, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractTarGz(t *testing.T) {
	archive := makeArchive(t, "pkg-1.0", map[string]string{
		"build.hcl":   "project \"pkg\" {}\n",
		"src/pkg.c":   "int f(void) { return 0; }\n",
		"include/p.h": "#pragma once\n",
	})

	destDir := t.TempDir()
	if err := extractTarGz(bytes.NewReader(archive), destDir); err != nil {
		t.Fatal(err)
	}

	// The archive root is stripped.
	data, err := os.ReadFile(path.Join(destDir, "src/pkg.c"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "int f(void) { return 0; }\n" {
		t.Fatal("unexpected file content")
	}
}

func TestExtractRejectsMultipleRoots(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range []string{"a/x.txt", "b/y.txt"} {
		hdr := &tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0664, Size: 1}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte("z")); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()
	gz.Close()

	if err := extractTarGz(bytes.NewReader(buf.Bytes()), t.TempDir()); err == nil {
		t.Fatal("archive with two root directories accepted")
	}
}

func TestResolveFileWrap(t *testing.T) {
	archive := makeArchive(t, "hello-2.0", map[string]string{
		"hello.c": "int main(void) { return 0; }\n",
	})
	sum := sha256.Sum256(archive)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	sourceRoot := t.TempDir()
	subprojects := path.Join(sourceRoot, "subprojects")
	if err := os.MkdirAll(subprojects, 0775); err != nil {
		t.Fatal(err)
	}
	wrapContent := "[wrap-file]\n" +
		"directory = hello-2.0\n" +
		"source_url = " + server.URL + "/hello-2.0.tar.gz\n" +
		"source_hash = " + hex.EncodeToString(sum[:]) + "\n" +
		"patch_directory = hello\n" +
		"[provide]\n" +
		"dependency_names = hello\n"
	if err := os.WriteFile(path.Join(subprojects, "hello.wrap"), []byte(wrapContent), 0664); err != nil {
		t.Fatal(err)
	}

	// Overlay file applied on top of the extracted tree.
	overlay := path.Join(subprojects, "packagefiles", "hello")
	if err := os.MkdirAll(overlay, 0775); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path.Join(overlay, "build.hcl"), []byte("project \"hello\" {}\n"), 0664); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(sourceRoot, "")
	dir, def, err := r.Resolve("hello")
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "hello" {
		t.Fatalf("unexpected definition %+v", def)
	}
	if _, err := os.Stat(path.Join(dir, "hello.c")); err != nil {
		t.Fatal("extracted source missing")
	}
	if _, err := os.Stat(path.Join(dir, "build.hcl")); err != nil {
		t.Fatal("patch overlay not applied")
	}

	// The archive is now cached; resolving again must not hit the network.
	server.Close()
	if _, _, err := r.Resolve("hello"); err != nil {
		t.Fatal(err)
	}

	if _, ok := r.FindProvider("hello"); !ok {
		t.Fatal("provider lookup failed")
	}
	if _, ok := r.FindProvider("nonexistent"); ok {
		t.Fatal("unexpected provider")
	}
}

func TestLoadZeroValueResolver(t *testing.T) {
	sourceRoot := t.TempDir()
	subprojects := path.Join(sourceRoot, "subprojects")
	if err := os.MkdirAll(subprojects, 0775); err != nil {
		t.Fatal(err)
	}
	content := "[wrap-git]\nurl = https://example.com/zlib.git\nrevision = main\n"
	if err := os.WriteFile(path.Join(subprojects, "zlib.wrap"), []byte(content), 0664); err != nil {
		t.Fatal(err)
	}

	r := &Resolver{SubprojectsDir: subprojects}
	def, err := r.Load("zlib")
	if err != nil {
		t.Fatal(err)
	}
	if def.GitURL != "https://example.com/zlib.git" {
		t.Fatalf("unexpected definition %+v", def)
	}
}

func TestResolveBadHash(t *testing.T) {
	archive := makeArchive(t, "x-1.0", map[string]string{"x.c": "x"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	sourceRoot := t.TempDir()
	subprojects := path.Join(sourceRoot, "subprojects")
	if err := os.MkdirAll(subprojects, 0775); err != nil {
		t.Fatal(err)
	}
	wrapContent := "[wrap-file]\n" +
		"source_url = " + server.URL + "/x-1.0.tar.gz\n" +
		"source_hash = 0000000000000000000000000000000000000000000000000000000000000000\n"
	if err := os.WriteFile(path.Join(subprojects, "x.wrap"), []byte(wrapContent), 0664); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(sourceRoot, "")
	if _, _, err := r.Resolve("x"); err == nil {
		t.Fatal("hash mismatch accepted")
	}
	// A failed materialization must not leave a half-extracted directory.
	if _, err := os.Stat(path.Join(subprojects, "x")); !os.IsNotExist(err) {
		t.Fatal("broken subproject directory left behind")
	}
}

func TestResolveAll(t *testing.T) {
	archive := makeArchive(t, "p-1.0", map[string]string{"p.c": "p"})
	sum := sha256.Sum256(archive)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	sourceRoot := t.TempDir()
	subprojects := path.Join(sourceRoot, "subprojects")
	if err := os.MkdirAll(subprojects, 0775); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"one", "two", "three"} {
		content := "[wrap-file]\n" +
			"directory = " + name + "-dir\n" +
			"source_url = " + server.URL + "/p-1.0.tar.gz\n" +
			"source_hash = " + hex.EncodeToString(sum[:]) + "\n"
		if err := os.WriteFile(path.Join(subprojects, name+".wrap"), []byte(content), 0664); err != nil {
			t.Fatal(err)
		}
	}

	r := NewResolver(sourceRoot, "")
	if err := r.ResolveAll(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"one-dir", "two-dir", "three-dir"} {
		if _, err := os.Stat(path.Join(subprojects, name, "p.c")); err != nil {
			t.Fatalf("subproject %s not materialized", name)
		}
	}
}

func TestInstallFromMirror(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/good.wrap" {
			w.Write([]byte("[wrap-git]\nurl = https://example.com/good.git\nrevision = main\n"))
			return
		}
		w.Write([]byte("not a wrap file at all"))
	}))
	defer server.Close()

	sourceRoot := t.TempDir()
	r := NewResolver(sourceRoot, server.URL)

	if err := r.InstallFromMirror("good"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path.Join(sourceRoot, "subprojects", "good.wrap")); err != nil {
		t.Fatal("wrap file not installed")
	}
	if err := r.InstallFromMirror("good"); err == nil {
		t.Fatal("reinstall over existing wrap accepted")
	}

	if err := r.InstallFromMirror("bad"); err == nil {
		t.Fatal("invalid wrap from mirror accepted")
	}
	if _, err := os.Stat(path.Join(sourceRoot, "subprojects", "bad.wrap")); !os.IsNotExist(err) {
		t.Fatal("invalid wrap file left behind")
	}

	noMirror := NewResolver(sourceRoot, "")
	if err := noMirror.InstallFromMirror("x"); err == nil {
		t.Fatal("install without mirror accepted")
	}
}
