// Package runner executes the test suite recorded during configuration:
// parallel scheduling, timeouts and the exit-code protocol for skipped and
// errored tests.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"runtime"
	"sync"
	"time"

	"github.com/mortar-build/mortar/log"
	"github.com/mortar-build/mortar/util"
	"github.com/sirupsen/logrus"
)

const testFileName = "tests.yaml"

// Exit codes with a defined meaning in the test protocol.
const (
	// ExitSkip marks a test that decided at runtime it does not apply.
	ExitSkip = 77
	// ExitError marks a test that failed to set itself up, as opposed to a
	// regular assertion failure.
	ExitError = 99
)

// Test is a single registered test case.
type Test struct {
	Name    string   `yaml:"name" json:"name"`
	Command []string `yaml:"command" json:"command"`
	Env     []string `yaml:"env,omitempty" json:"env,omitempty"`
	Workdir string   `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	// TimeoutSeconds of 0 means the default of 30 seconds.
	TimeoutSeconds int  `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	ShouldFail     bool `yaml:"should_fail,omitempty" json:"should_fail,omitempty"`
	// Suite groups tests for selection, empty means the main suite.
	Suite string `yaml:"suite,omitempty" json:"suite,omitempty"`
}

const defaultTimeout = 30 * time.Second

func (t *Test) timeout() time.Duration {
	if t.TimeoutSeconds > 0 {
		return time.Duration(t.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

// Status classifies a test outcome.
type Status int

const (
	StatusOK Status = iota
	StatusFail
	StatusSkip
	StatusError
	StatusTimeout
)

var statusNames = map[Status]string{
	StatusOK:      "OK",
	StatusFail:    "FAIL",
	StatusSkip:    "SKIP",
	StatusError:   "ERROR",
	StatusTimeout: "TIMEOUT",
}

func (s Status) String() string {
	return statusNames[s]
}

// Result is the outcome of one executed test.
type Result struct {
	Test     *Test
	Status   Status
	Duration time.Duration
	Output   []byte
	Err      error
}

func testFilePath(buildDir string) string {
	return path.Join(buildDir, util.PrivateDirName, testFileName)
}

// SaveTests records the test list of a configuration run in the build
// directory.
func SaveTests(buildDir string, tests []Test) error {
	return util.WriteYaml(testFilePath(buildDir), tests)
}

// LoadTests reads the recorded test list of a configured build directory.
func LoadTests(buildDir string) ([]Test, error) {
	var tests []Test
	if err := util.ReadYaml(testFilePath(buildDir), &tests); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no tests have been recorded in '%s', run 'mortar setup' first", buildDir)
		}
		return nil, err
	}
	return tests, nil
}

// Runner schedules tests over a pool of workers.
type Runner struct {
	BuildDir string
	// Jobs is the number of parallel workers, 0 means one per CPU.
	Jobs int
	// Suite restricts the run to a single suite when non-empty.
	Suite string
	// Names restricts the run to the named tests when non-empty.
	Names []string
	// TimeoutMultiplier scales all test timeouts, for slow machines.
	TimeoutMultiplier float64
}

func (r *Runner) jobs() int {
	if r.Jobs > 0 {
		return r.Jobs
	}
	return runtime.NumCPU()
}

func (r *Runner) selected(tests []Test) []*Test {
	byName := map[string]bool{}
	for _, name := range r.Names {
		byName[name] = true
	}
	result := []*Test{}
	for i := range tests {
		if r.Suite != "" && tests[i].Suite != r.Suite {
			continue
		}
		if len(byName) > 0 && !byName[tests[i].Name] {
			continue
		}
		result = append(result, &tests[i])
	}
	return result
}

// Run executes all selected tests and returns their results in registration
// order. Canceling the context aborts outstanding tests, their results report
// StatusError.
func (r *Runner) Run(ctx context.Context, tests []Test) ([]Result, error) {
	selected := r.selected(tests)
	if len(selected) == 0 {
		return nil, errors.New("no tests match the selection")
	}

	results := make([]Result, len(selected))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.jobs(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = r.runOne(ctx, selected[i])
			}
		}()
	}

	for i := range selected {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	testLog := r.openTestLog()
	for _, res := range results {
		r.report(res, testLog)
	}
	return results, nil
}

// openTestLog creates the full-output log of the run under the build
// directory. Console output stays terse, the log keeps everything.
func (r *Runner) openTestLog() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})

	logDir := path.Join(r.BuildDir, "mortar-logs")
	util.MkdirAll(logDir)
	file, err := os.OpenFile(path.Join(logDir, "testlog.txt"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, util.FileMode)
	if err != nil {
		logger.SetOutput(os.Stderr)
		return logger
	}
	logger.SetOutput(file)
	return logger
}

func (r *Runner) runOne(ctx context.Context, test *Test) Result {
	timeout := test.timeout()
	if r.TimeoutMultiplier > 0 {
		timeout = time.Duration(float64(timeout) * r.TimeoutMultiplier)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, test.Command[0], test.Command[1:]...)
	cmd.Env = append(os.Environ(), test.Env...)
	cmd.Dir = test.Workdir
	if cmd.Dir == "" {
		cmd.Dir = r.BuildDir
	}
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	result := Result{Test: test, Duration: time.Since(start), Output: output.Bytes(), Err: err}

	switch ctx.Err() {
	case context.DeadlineExceeded:
		result.Status = StatusTimeout
		return result
	case context.Canceled:
		// The run was interrupted, not the test's fault.
		result.Status = StatusError
		return result
	}

	exitCode := 0
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		exitCode = exitErr.ExitCode()
	default:
		result.Status = StatusError
		return result
	}

	switch {
	case exitCode == ExitSkip:
		result.Status = StatusSkip
	case exitCode == ExitError:
		result.Status = StatusError
	case (exitCode == 0) != test.ShouldFail:
		result.Status = StatusOK
	default:
		result.Status = StatusFail
	}
	return result
}

func (r *Runner) report(res Result, testLog *logrus.Logger) {
	line := fmt.Sprintf("%-40s %-8s %6.2fs\n", res.Test.Name, res.Status, res.Duration.Seconds())
	switch res.Status {
	case StatusOK, StatusSkip:
		log.Log("%s", line)
	default:
		log.Error("%s", line)
		if len(res.Output) > 0 {
			log.Log("%s\n", string(res.Output))
		}
	}

	entry := testLog.WithFields(logrus.Fields{
		"test":     res.Test.Name,
		"status":   res.Status.String(),
		"duration": res.Duration.String(),
	})
	if len(res.Output) > 0 {
		entry = entry.WithField("output", string(res.Output))
	}
	entry.Info("test finished")
}

// Summarize prints the aggregate counts and reports whether the run passed.
func Summarize(results []Result) bool {
	counts := map[Status]int{}
	for _, res := range results {
		counts[res.Status]++
	}
	log.Log("\nOk: %d, Failed: %d, Skipped: %d, Errors: %d, Timeouts: %d\n",
		counts[StatusOK], counts[StatusFail], counts[StatusSkip],
		counts[StatusError], counts[StatusTimeout])
	return counts[StatusFail] == 0 && counts[StatusError] == 0 && counts[StatusTimeout] == 0
}
