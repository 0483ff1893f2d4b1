// Package options implements the typed build option store: builtin options,
// project options declared in options.hcl, command-line overrides and
// per-subproject scoping.
package options

import (
	"fmt"
	"strings"

	"github.com/mortar-build/mortar/util"
)

// Kind enumerates the supported option types.
type Kind int

const (
	String Kind = iota
	Boolean
	Combo
	Array
	Feature
)

var kindNames = map[Kind]string{
	String:  "string",
	Boolean: "boolean",
	Combo:   "combo",
	Array:   "array",
	Feature: "feature",
}

func (k Kind) String() string {
	return kindNames[k]
}

// ParseKind maps an option type name from an options.hcl declaration to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return String, fmt.Errorf("unknown option type '%s'", s)
}

// Feature option states.
const (
	FeatureEnabled  = "enabled"
	FeatureDisabled = "disabled"
	FeatureAuto     = "auto"
)

// Option is a single typed configuration value. The zero value is not usable,
// options are created through Declare or the builtin table.
type Option struct {
	Name        string
	Description string
	Kind        Kind
	// Choices constrains Combo options.
	Choices []string

	value   interface{}
	changed bool
}

// Value returns the current value: string for String/Combo/Feature, bool for
// Boolean, []string for Array.
func (o *Option) Value() interface{} {
	return o.value
}

// Changed reports whether the value differs from the declared default.
func (o *Option) Changed() bool {
	return o.changed
}

// StringValue renders the current value the way it would be typed on the
// command line.
func (o *Option) StringValue() string {
	switch v := o.value.(type) {
	case bool:
		if v {
			return "true"
		}
		return "false"
	case []string:
		return strings.Join(v, ",")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Set parses a command-line representation of the value and validates it
// against the option type.
func (o *Option) Set(raw string) error {
	switch o.Kind {
	case String:
		o.value = raw
	case Boolean:
		switch raw {
		case "true":
			o.value = true
		case "false":
			o.value = false
		default:
			return fmt.Errorf("option '%s' is boolean, got '%s' (use true or false)", o.Name, raw)
		}
	case Combo:
		for _, choice := range o.Choices {
			if raw == choice {
				o.value = raw
				o.changed = true
				return nil
			}
		}
		return fmt.Errorf("option '%s' must be one of [%s], got '%s'", o.Name, strings.Join(o.Choices, ", "), raw)
	case Array:
		if raw == "" {
			o.value = []string{}
		} else {
			parts := strings.Split(raw, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			o.value = parts
		}
	case Feature:
		switch raw {
		case FeatureEnabled, FeatureDisabled, FeatureAuto:
			o.value = raw
		default:
			return fmt.Errorf("option '%s' is a feature, got '%s' (use enabled, disabled or auto)", o.Name, raw)
		}
	}
	o.changed = true
	return nil
}

// Store holds all options of a configuration run. Subproject options are
// stored under "subproject:name" keys.
type Store struct {
	opts util.OrderedMap[string, *Option]
}

// NewStore creates a store populated with the builtin options every project has.
func NewStore() *Store {
	s := &Store{opts: util.NewOrderedMap[string, *Option]()}
	for _, b := range builtins {
		opt := b
		s.opts.Insert(opt.Name, &opt)
	}
	return s
}

// The builtin option table. Directory defaults follow the usual Unix layout
// under the configured prefix.
var builtins = []Option{
	{Name: "prefix", Description: "Installation prefix", Kind: String, value: "/usr/local"},
	{Name: "bindir", Description: "Executable directory", Kind: String, value: "bin"},
	{Name: "libdir", Description: "Library directory", Kind: String, value: "lib"},
	{Name: "includedir", Description: "Header file directory", Kind: String, value: "include"},
	{Name: "datadir", Description: "Data file directory", Kind: String, value: "share"},
	{Name: "mandir", Description: "Manual page directory", Kind: String, value: "share/man"},
	{Name: "localedir", Description: "Locale data directory", Kind: String, value: "share/locale"},
	{Name: "buildtype", Description: "Build type to use", Kind: Combo,
		Choices: []string{"plain", "debug", "debugoptimized", "release"}, value: "debug"},
	{Name: "backend", Description: "Backend to use", Kind: Combo,
		Choices: []string{"ninja"}, value: "ninja"},
	{Name: "default_library", Description: "Default library type", Kind: Combo,
		Choices: []string{"static", "shared"}, value: "shared"},
	{Name: "strip", Description: "Strip targets on install", Kind: Boolean, value: false},
	{Name: "werror", Description: "Treat warnings as errors", Kind: Boolean, value: false},
}

// Declare adds a project option. The name may not collide with a builtin or
// previously declared option and may not contain the subproject separator.
func (s *Store) Declare(name string, kind Kind, description string, choices []string, defaultValue string) error {
	if strings.Contains(name, ":") {
		return fmt.Errorf("option name '%s' must not contain ':'", name)
	}
	return s.declare(name, kind, description, choices, defaultValue)
}

// DeclareScoped adds an option owned by a subproject, addressable on the
// command line as -Dsubproject:name=value.
func (s *Store) DeclareScoped(subproject, name string, kind Kind, description string, choices []string, defaultValue string) error {
	if strings.Contains(name, ":") {
		return fmt.Errorf("option name '%s' must not contain ':'", name)
	}
	return s.declare(subproject+":"+name, kind, description, choices, defaultValue)
}

func (s *Store) declare(name string, kind Kind, description string, choices []string, defaultValue string) error {
	if _, ok := s.opts.Lookup(name); ok {
		return fmt.Errorf("option '%s' is already defined", name)
	}
	opt := &Option{Name: name, Description: description, Kind: kind, Choices: choices}

	// Every kind has a sensible default when none is given.
	if defaultValue == "" {
		switch kind {
		case Boolean:
			defaultValue = "true"
		case Feature:
			defaultValue = FeatureAuto
		case Combo:
			if len(choices) > 0 {
				defaultValue = choices[0]
			}
		}
	}
	if err := opt.Set(defaultValue); err != nil {
		return err
	}
	opt.changed = false
	s.opts.Insert(name, opt)
	return nil
}

// Lookup returns the option with the given (possibly scoped) name.
func (s *Store) Lookup(name string) (*Option, bool) {
	return s.opts.Lookup(name)
}

// All returns all options ordered by name.
func (s *Store) All() []*Option {
	return s.opts.Values()
}

// SetFromAssignment applies a single "name=value" override as given with -D.
func (s *Store) SetFromAssignment(assignment string) error {
	name, value, found := strings.Cut(assignment, "=")
	if !found {
		return fmt.Errorf("invalid option assignment '%s', expected name=value", assignment)
	}
	opt, ok := s.opts.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown option '%s'", name)
	}
	return opt.Set(value)
}

// SetProjectDefault applies a default_options entry from a project
// declaration. Values the user overrode on the command line win and are left
// alone.
func (s *Store) SetProjectDefault(assignment string) error {
	name, value, found := strings.Cut(assignment, "=")
	if !found {
		return fmt.Errorf("invalid default option '%s', expected name=value", assignment)
	}
	opt, ok := s.opts.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown option '%s' in default_options", name)
	}
	if opt.changed {
		return nil
	}
	if err := opt.Set(value); err != nil {
		return err
	}
	opt.changed = false
	return nil
}

// SetAll applies a list of "name=value" overrides, stopping at the first error.
func (s *Store) SetAll(assignments []string) error {
	for _, a := range assignments {
		if err := s.SetFromAssignment(a); err != nil {
			return err
		}
	}
	return nil
}

// SavedOption is the serialized form of an option value.
type SavedOption struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Save returns the current values of all options for persistence.
func (s *Store) Save() []SavedOption {
	saved := []SavedOption{}
	for _, opt := range s.opts.Values() {
		saved = append(saved, SavedOption{Name: opt.Name, Value: opt.StringValue()})
	}
	return saved
}

// Restore applies previously saved values. Unknown saved options are skipped;
// they belong to project options that have since been deleted.
func (s *Store) Restore(saved []SavedOption) error {
	for _, sv := range saved {
		opt, ok := s.opts.Lookup(sv.Name)
		if !ok {
			continue
		}
		if err := opt.Set(sv.Value); err != nil {
			return err
		}
	}
	return nil
}
