package machine

import (
	"strings"
	"testing"
)

const sampleMachineFile = `
[constants]
toolchain = /opt/cross
arch = arm-linux-gnueabihf

[binaries]
c = @toolchain@/bin/@arch@-gcc
strip = @toolchain@/bin/@arch@-strip
pkg-config = /usr/bin/pkg-config

[paths]
prefix = /usr/@arch@

[properties]
needs_exe_wrapper = true
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleMachineFile))
	if err != nil {
		t.Fatal(err)
	}

	cc, ok := f.Binary("c")
	if !ok {
		t.Fatal("c binary missing")
	}
	if cc != "/opt/cross/bin/arm-linux-gnueabihf-gcc" {
		t.Fatalf("constant substitution failed: %q", cc)
	}

	prefix, ok := f.Path("prefix")
	if !ok || prefix != "/usr/arm-linux-gnueabihf" {
		t.Fatalf("unexpected prefix %q", prefix)
	}

	prop, ok := f.Property("needs_exe_wrapper")
	if !ok || prop != "true" {
		t.Fatalf("unexpected property %q", prop)
	}

	if _, ok := f.Binary("objcopy"); ok {
		t.Fatal("unexpected binary entry")
	}
}

func TestNestedConstants(t *testing.T) {
	content := `
[constants]
base = /opt
tools = @base@/tools

[binaries]
c = @tools@/gcc
`
	f, err := Parse([]byte(content))
	if err != nil {
		t.Fatal(err)
	}
	cc, _ := f.Binary("c")
	if cc != "/opt/tools/gcc" {
		t.Fatalf("nested constant not resolved: %q", cc)
	}
}

func TestUppercaseConstantReference(t *testing.T) {
	content := `
[constants]
SYSROOT = /opt/sysroot

[binaries]
c = @SYSROOT@/bin/gcc
`
	f, err := Parse([]byte(content))
	if err != nil {
		t.Fatal(err)
	}
	cc, _ := f.Binary("c")
	if cc != "/opt/sysroot/bin/gcc" {
		t.Fatalf("uppercase constant not resolved: %q", cc)
	}
}

func TestUndefinedConstant(t *testing.T) {
	content := `
[binaries]
c = @toolchain@/bin/gcc
`
	_, err := Parse([]byte(content))
	if err == nil {
		t.Fatal("undefined constant accepted")
	}
	if !strings.Contains(err.Error(), "toolchain") {
		t.Fatalf("error does not name the constant: %s", err)
	}
}

func TestNilFileLookups(t *testing.T) {
	var f *File
	if _, ok := f.Binary("c"); ok {
		t.Fatal("nil file lookup succeeded")
	}
	if _, ok := f.Property("x"); ok {
		t.Fatal("nil file lookup succeeded")
	}
	if _, ok := f.Path("prefix"); ok {
		t.Fatal("nil file lookup succeeded")
	}
}
