package runner

import (
	"context"
	"os"
	"path"
	"strings"
	"testing"
)

// script writes an executable shell script and returns its path.
func script(t *testing.T, body string) string {
	t.Helper()
	file := path.Join(t.TempDir(), "test.sh")
	if err := os.WriteFile(file, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return file
}

func run(t *testing.T, tests []Test) []Result {
	t.Helper()
	r := &Runner{BuildDir: t.TempDir(), Jobs: 2}
	results, err := r.Run(context.Background(), tests)
	if err != nil {
		t.Fatal(err)
	}
	return results
}

func TestStatusProtocol(t *testing.T) {
	results := run(t, []Test{
		{Name: "ok", Command: []string{script(t, "exit 0")}},
		{Name: "fail", Command: []string{script(t, "echo boom; exit 1")}},
		{Name: "skip", Command: []string{script(t, "exit 77")}},
		{Name: "error", Command: []string{script(t, "exit 99")}},
		{Name: "xfail", Command: []string{script(t, "exit 1")}, ShouldFail: true},
		{Name: "xpass", Command: []string{script(t, "exit 0")}, ShouldFail: true},
	})

	want := []Status{StatusOK, StatusFail, StatusSkip, StatusError, StatusOK, StatusFail}
	for i, res := range results {
		if res.Status != want[i] {
			t.Fatalf("test %s: got %s, want %s", res.Test.Name, res.Status, want[i])
		}
	}
	if !strings.Contains(string(results[1].Output), "boom") {
		t.Fatal("failing test output not captured")
	}
	if Summarize(results) {
		t.Fatal("run with failures summarized as passing")
	}
}

func TestTimeout(t *testing.T) {
	results := run(t, []Test{
		{Name: "slow", Command: []string{script(t, "sleep 10")}, TimeoutSeconds: 1},
	})
	if results[0].Status != StatusTimeout {
		t.Fatalf("got %s, want TIMEOUT", results[0].Status)
	}
}

func TestInterruptedRunIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{BuildDir: t.TempDir()}
	results, err := r.Run(ctx, []Test{
		{Name: "ok", Command: []string{script(t, "exit 0")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status == StatusTimeout {
		t.Fatal("interrupted test reported as TIMEOUT")
	}
	if results[0].Status != StatusError {
		t.Fatalf("got %s, want ERROR", results[0].Status)
	}
}

func TestSuiteSelection(t *testing.T) {
	tests := []Test{
		{Name: "unit", Command: []string{script(t, "exit 0")}},
		{Name: "bench", Command: []string{script(t, "exit 1")}, Suite: "bench"},
	}
	r := &Runner{BuildDir: t.TempDir(), Suite: "bench"}
	results, err := r.Run(context.Background(), tests)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Test.Name != "bench" {
		t.Fatalf("unexpected selection %+v", results)
	}

	r.Suite = "nope"
	if _, err := r.Run(context.Background(), tests); err == nil {
		t.Fatal("empty selection accepted")
	}
}

func TestEnvAndWorkdir(t *testing.T) {
	workdir := t.TempDir()
	results := run(t, []Test{{
		Name:    "env",
		Command: []string{script(t, `[ "$MORTAR_TEST" = "1" ] && [ "$(pwd)" = "`+workdir+`" ]`)},
		Env:     []string{"MORTAR_TEST=1"},
		Workdir: workdir,
	}})
	if results[0].Status != StatusOK {
		t.Fatalf("env or workdir not applied: %s\n%s", results[0].Status, results[0].Output)
	}
}

func TestSaveLoadTests(t *testing.T) {
	buildDir := t.TempDir()
	saved := []Test{{Name: "smoke", Command: []string{"./app"}, TimeoutSeconds: 5}}
	if err := SaveTests(buildDir, saved); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadTests(buildDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].Name != "smoke" || loaded[0].TimeoutSeconds != 5 {
		t.Fatalf("unexpected roundtrip %+v", loaded)
	}

	if _, err := LoadTests(t.TempDir()); err == nil || !strings.Contains(err.Error(), "mortar setup") {
		t.Fatalf("expected setup hint, got %v", err)
	}
}

func TestWritesTestLog(t *testing.T) {
	r := &Runner{BuildDir: t.TempDir()}
	if _, err := r.Run(context.Background(), []Test{
		{Name: "ok", Command: []string{script(t, "exit 0")}},
	}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path.Join(r.BuildDir, "mortar-logs", "testlog.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "ok") {
		t.Fatal("test log does not mention the test")
	}
}
