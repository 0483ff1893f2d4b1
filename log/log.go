package log

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/sirupsen/logrus"
)

// Verbose controls whether debug messages are being printed.
var Verbose bool

// IndentationLevel controls the amount of indentation of log messages.
var IndentationLevel = 0

// Spinner indicates progress during long-running operations such as
// downloading wraps or cloning subproject repositories.
var Spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))

var errorOccured = false

// fileLog mirrors all console output into the build directory once
// InitFileLog has been called.
var fileLog *logrus.Logger

// LogDirName is the directory inside the build directory that holds log files.
const LogDirName = "mortar-logs"

const logFileName = "mortar-log.txt"

// ErrorOccured reports whether any errors have occured.
func ErrorOccured() bool {
	return errorOccured
}

// InitFileLog attaches a persistent log file under `buildDir`. All messages
// printed after this call are also recorded there, uncolored and timestamped.
func InitFileLog(buildDir string) {
	logDir := path.Join(buildDir, LogDirName)
	if err := os.MkdirAll(logDir, 0775); err != nil {
		Warning("Failed to create log directory '%s': %s.\n", logDir, err)
		return
	}
	file, err := os.Create(path.Join(logDir, logFileName))
	if err != nil {
		Warning("Failed to create log file: %s.\n", err)
		return
	}
	fileLog = logrus.New()
	fileLog.SetOutput(file)
	fileLog.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	fileLog.SetLevel(logrus.DebugLevel)
}

// FileLog returns the persistent logger, or nil when no build directory
// log has been set up yet.
func FileLog() *logrus.Logger {
	return fileLog
}

func toFile(level logrus.Level, format string, a ...interface{}) {
	if fileLog == nil {
		return
	}
	fileLog.Log(level, strings.TrimRight(fmt.Sprintf(format, a...), "\n"))
}

// Log prints an indented and formatted message to os.Stderr.
func Log(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, strings.Repeat("  ", IndentationLevel)+format, a...)
	toFile(logrus.InfoLevel, format, a...)
}

// Debug prints an indented and formatted debug message to os.Stderr if verbose output is selected.
func Debug(format string, a ...interface{}) {
	if Verbose {
		fmt.Fprintf(os.Stderr, strings.Repeat("  ", IndentationLevel)+"\033[36mDebug: \033[0m"+format, a...)
	}
	toFile(logrus.DebugLevel, format, a...)
}

// Success prints an indented and formatted success message to os.Stderr.
func Success(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, strings.Repeat("  ", IndentationLevel)+"\033[32mSuccess: \033[0m"+format, a...)
	toFile(logrus.InfoLevel, "Success: "+format, a...)
}

// Warning prints an indented and formatted warning to os.Stderr.
func Warning(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, strings.Repeat("  ", IndentationLevel)+"\033[33mWarning: \033[0m"+format, a...)
	toFile(logrus.WarnLevel, format, a...)
}

// Error prints an indented and formatted error message to os.Stderr.
func Error(format string, a ...interface{}) {
	errorOccured = true
	fmt.Fprintf(os.Stderr, strings.Repeat("  ", IndentationLevel)+"\033[31mError: \033[0m"+format, a...)
	toFile(logrus.ErrorLevel, format, a...)
}

// Fatal prints an indented and formatted error message to os.Stderr and terminates the program.
func Fatal(format string, a ...interface{}) {
	Error(format, a...)
	fmt.Fprintf(os.Stderr, "\033[31mA fatal error occured. Exiting...\033[0m\n")
	os.Exit(1)
}
