package backend

import (
	"fmt"
	"io"
	"strings"
)

// ninjaWriter emits syntactically correct ninja files: statements, indented
// variable blocks and escaped paths.
type ninjaWriter struct {
	w io.Writer

	err error
}

func newNinjaWriter(w io.Writer) *ninjaWriter {
	return &ninjaWriter{w: w}
}

func (n *ninjaWriter) printf(format string, a ...interface{}) {
	if n.err != nil {
		return
	}
	_, n.err = fmt.Fprintf(n.w, format, a...)
}

// Err returns the first write error encountered.
func (n *ninjaWriter) Err() error {
	return n.err
}

func (n *ninjaWriter) Comment(comment string) {
	n.printf("# %s\n", comment)
}

func (n *ninjaWriter) BlankLine() {
	n.printf("\n")
}

// Variable writes a top-level or rule/build-scoped variable assignment.
func (n *ninjaWriter) Variable(name, value string, indent int) {
	n.printf("%s%s = %s\n", strings.Repeat(" ", indent), name, value)
}

// Rule opens a rule statement. The variables map must at least contain
// "command"; they are written in the given order.
func (n *ninjaWriter) Rule(name string, vars [][2]string) {
	n.printf("rule %s\n", name)
	for _, v := range vars {
		n.Variable(v[0], v[1], 1)
	}
	n.BlankLine()
}

// Build writes a build statement with explicit, implicit and order-only
// inputs, followed by scoped variables.
func (n *ninjaWriter) Build(rule string, outputs, inputs, implicit, orderOnly []string, vars [][2]string) {
	n.printf("build")
	for _, out := range outputs {
		n.printf(" %s", escapePath(out))
	}
	n.printf(": %s", rule)
	for _, in := range inputs {
		n.printf(" %s", escapePath(in))
	}
	if len(implicit) > 0 {
		n.printf(" |")
		for _, in := range implicit {
			n.printf(" %s", escapePath(in))
		}
	}
	if len(orderOnly) > 0 {
		n.printf(" ||")
		for _, in := range orderOnly {
			n.printf(" %s", escapePath(in))
		}
	}
	n.printf("\n")
	for _, v := range vars {
		n.Variable(v[0], v[1], 1)
	}
}

func (n *ninjaWriter) Default(targets ...string) {
	n.printf("default")
	for _, t := range targets {
		n.printf(" %s", escapePath(t))
	}
	n.printf("\n")
}

// escapePath escapes the characters ninja treats specially in paths: '$',
// ' ' and ':'.
func escapePath(p string) string {
	var sb strings.Builder
	for _, r := range p {
		switch r {
		case '$':
			sb.WriteString("$$")
		case ' ':
			sb.WriteString("$ ")
		case ':':
			sb.WriteString("$:")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// escapeValue escapes '$' in variable values. Newlines cannot be represented
// in the ninja syntax at all.
func escapeValue(v string) string {
	if strings.ContainsRune(v, '\n') {
		panic("ninja variable value must not contain a newline")
	}
	return strings.ReplaceAll(v, "$", "$$")
}
