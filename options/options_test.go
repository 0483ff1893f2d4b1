package options

import "testing"

func TestBuiltinDefaults(t *testing.T) {
	s := NewStore()

	buildtype, ok := s.Lookup("buildtype")
	if !ok {
		t.Fatal("buildtype option missing")
	}
	if buildtype.Value() != "debug" {
		t.Fatalf("unexpected default buildtype %v", buildtype.Value())
	}
	if buildtype.Changed() {
		t.Fatal("default value must not count as changed")
	}

	prefix, _ := s.Lookup("prefix")
	if prefix.Value() != "/usr/local" {
		t.Fatalf("unexpected default prefix %v", prefix.Value())
	}
}

func TestDeclareAndSet(t *testing.T) {
	s := NewStore()
	if err := s.Declare("with_docs", Boolean, "Build documentation", nil, "false"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFromAssignment("with_docs=true"); err != nil {
		t.Fatal(err)
	}
	opt, _ := s.Lookup("with_docs")
	if opt.Value() != true {
		t.Fatal("override not applied")
	}
	if !opt.Changed() {
		t.Fatal("override must mark the option as changed")
	}
}

func TestComboValidation(t *testing.T) {
	s := NewStore()
	if err := s.SetFromAssignment("buildtype=release"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFromAssignment("buildtype=fastest"); err == nil {
		t.Fatal("invalid combo value accepted")
	}
}

func TestBooleanValidation(t *testing.T) {
	s := NewStore()
	if err := s.SetFromAssignment("strip=yes"); err == nil {
		t.Fatal("invalid boolean value accepted")
	}
}

func TestUnknownOption(t *testing.T) {
	s := NewStore()
	if err := s.SetFromAssignment("no_such_option=1"); err == nil {
		t.Fatal("unknown option accepted")
	}
	if err := s.SetFromAssignment("garbage"); err == nil {
		t.Fatal("malformed assignment accepted")
	}
}

func TestArrayOption(t *testing.T) {
	s := NewStore()
	if err := s.Declare("langs", Array, "", nil, "c"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFromAssignment("langs=c, cpp,rust"); err != nil {
		t.Fatal(err)
	}
	opt, _ := s.Lookup("langs")
	got := opt.Value().([]string)
	want := []string{"c", "cpp", "rust"}
	if len(got) != len(want) {
		t.Fatalf("unexpected array %v", got)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("unexpected array %v", got)
		}
	}
	if opt.StringValue() != "c,cpp,rust" {
		t.Fatalf("unexpected string form %q", opt.StringValue())
	}
}

func TestFeatureOption(t *testing.T) {
	s := NewStore()
	if err := s.Declare("x11", Feature, "", nil, ""); err != nil {
		t.Fatal(err)
	}
	opt, _ := s.Lookup("x11")
	if opt.Value() != FeatureAuto {
		t.Fatalf("feature default should be auto, got %v", opt.Value())
	}
	if err := opt.Set("maybe"); err == nil {
		t.Fatal("invalid feature value accepted")
	}
	if err := opt.Set(FeatureDisabled); err != nil {
		t.Fatal(err)
	}
}

func TestScopedOptions(t *testing.T) {
	s := NewStore()
	if err := s.DeclareScoped("zlib", "small", Boolean, "", nil, "false"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFromAssignment("zlib:small=true"); err != nil {
		t.Fatal(err)
	}
	opt, ok := s.Lookup("zlib:small")
	if !ok || opt.Value() != true {
		t.Fatal("scoped override not applied")
	}
}

func TestDuplicateDeclaration(t *testing.T) {
	s := NewStore()
	if err := s.Declare("dup", String, "", nil, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Declare("dup", String, "", nil, "b"); err == nil {
		t.Fatal("duplicate declaration accepted")
	}
	if err := s.Declare("buildtype", String, "", nil, ""); err == nil {
		t.Fatal("builtin name collision accepted")
	}
}

func TestSaveRestore(t *testing.T) {
	s := NewStore()
	if err := s.Declare("with_docs", Boolean, "", nil, "false"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAll([]string{"with_docs=true", "buildtype=release"}); err != nil {
		t.Fatal(err)
	}
	saved := s.Save()

	fresh := NewStore()
	if err := fresh.Declare("with_docs", Boolean, "", nil, "false"); err != nil {
		t.Fatal(err)
	}
	if err := fresh.Restore(saved); err != nil {
		t.Fatal(err)
	}
	opt, _ := fresh.Lookup("with_docs")
	if opt.Value() != true {
		t.Fatal("restored value lost")
	}
	bt, _ := fresh.Lookup("buildtype")
	if bt.Value() != "release" {
		t.Fatal("restored builtin lost")
	}
}
